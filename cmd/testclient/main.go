package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jrsteele09/onche-connect/internal/authflow"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := authflow.Config{}
	var scope string

	cmd := &cobra.Command{
		Use:          "testclient",
		Short:        "Relying party that runs the authorization code flow against the provider",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.Scopes = strings.Fields(scope)
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.Issuer, "issuer", "http://localhost:3000", "provider issuer URL")
	cmd.Flags().StringVar(&cfg.ClientID, "client-id", "test", "registered client id")
	cmd.Flags().StringVar(&cfg.ClientSecret, "client-secret", "thisisatest", "client secret, empty for a public client")
	cmd.Flags().StringVar(&cfg.RedirectURL, "redirect-uri", "http://localhost:4000/callback", "registered redirect URI, served by this client")
	cmd.Flags().StringVar(&scope, "scope", "openid profile", "space separated scopes to request")
	return cmd
}

func run(ctx context.Context, cfg authflow.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	redirect, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return fmt.Errorf("parse redirect uri: %w", err)
	}

	rp, err := authflow.NewRelyingParty(ctx, cfg, authflow.NewInMemoryRepo())
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", rp.Login())
	mux.HandleFunc("GET "+redirect.Path, rp.Callback())

	server := &http.Server{Addr: redirect.Host, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Msgf("OIDC client running on %s://%s/login", redirect.Scheme, redirect.Host)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
