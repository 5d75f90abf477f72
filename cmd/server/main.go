package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/onche-connect/clients"
	"github.com/jrsteele09/onche-connect/interaction"
	"github.com/jrsteele09/onche-connect/internal/config"
	"github.com/jrsteele09/onche-connect/pin"
	"github.com/jrsteele09/onche-connect/provider"
	"github.com/jrsteele09/onche-connect/server"
	"github.com/jrsteele09/onche-connect/storage"
	"github.com/jrsteele09/onche-connect/token"
	"github.com/jrsteele09/onche-connect/upstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env")
	}

	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	configureLogging(c)
	displayAppname(c.GetAppName())

	handler, cleanup, err := build(c)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(server)
	}()

	if err := waitForStopSignal(serveErr); err != nil {
		return err
	}
	returnError = shutdown(server)
	return returnError
}

// build wires the upstream client, PIN exchange, protocol engine and forms into one handler
func build(c config.Config) (http.Handler, func(), error) {
	store, pins, cleanup, err := stores(c)
	if err != nil {
		return nil, nil, err
	}

	layout, err := upstream.LayoutByName(c.GetUpstreamLayout())
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	session, err := upstream.NewSession(c.GetUpstreamBaseURL(), c.GetUpstreamUsername(), c.GetUpstreamPassword(), upstream.WithLayout(layout))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	client, err := upstream.NewClient(session,
		upstream.WithRequestTimeout(c.GetUpstreamRequestTimeout()),
		upstream.WithMaxAttempts(c.GetUpstreamMaxAttempts()),
		upstream.WithCandidatePages(c.GetUpstreamCandidatePages()),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	exchange, err := pin.NewExchange(pins, client)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	accounts, err := interaction.NewAccounts(client)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	p, err := newProvider(c, store, accounts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	renderer, err := server.NewTemplateRenderer(c.GetAppName())
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	orchestrator, err := interaction.NewOrchestrator(p, exchange, renderer)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	s, err := server.New(c.GetEnv(), c, p, orchestrator)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return s, cleanup, nil
}

func newProvider(c config.Config, store storage.Adapter, accounts *interaction.Accounts) (*provider.Provider, error) {
	keyPair, err := token.LoadOrCreateKeyFile(c.GetKeysFile(), token.DefaultKeyID)
	if err != nil {
		return nil, err
	}
	tokens := token.New(token.NewKeyPairSigner(keyPair),
		token.WithIssuer(c.GetIssuer()),
		token.WithTokenExpiry(c.GetDefaultAccessTokenExpiry(), c.GetDefaultIDTokenExpiry()),
	)

	registered, err := clients.LoadFile(c.GetClientsFile())
	if err != nil {
		return nil, err
	}

	return provider.New(c.GetIssuer(), store, clients.NewInMemoryRepo(registered...), tokens, accounts.FindAccount,
		provider.WithInteractionTTL(c.GetInteractionTTL()),
		provider.WithSessionTTL(c.GetSessionTTL()),
		provider.WithAuthCodeTTL(c.GetAuthCodeTimeout()),
		provider.WithRefreshTokenTTL(c.GetDefaultRefreshTokenExpiry()),
		provider.WithSecretBytes(c.GetRefreshTokenLength()),
		provider.WithRequirePKCE(c.GetRequirePKCE()),
		provider.WithSecureCookies(c.GetSecureCookies()),
	)
}

// stores selects Redis when REDIS_URL is set and in-memory stores otherwise
func stores(c config.Config) (storage.Adapter, pin.Store, func(), error) {
	if c.GetRedisURL() == "" {
		log.Warn().Msg("REDIS_URL not set, using in-memory stores")
		return storage.NewMemory(), pin.NewInMemoryStore(pin.WithTTL(c.GetPinTTL())), func() {}, nil
	}

	opts, err := redis.ParseURL(c.GetRedisURL())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Str("prefix", c.GetRedisPrefix()).Msg("Connected to Redis")

	cleanup := func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	return storage.NewRedis(rdb, c.GetRedisPrefix()), pin.NewRedisStore(rdb, c.GetRedisPrefix(), pin.WithTTL(c.GetPinTTL())), cleanup, nil
}

func configureLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

// waitForStopSignal blocks until the process is asked to stop or the listener fails
func waitForStopSignal(serveErr <-chan error) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		return nil
	case err := <-serveErr:
		return err
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
