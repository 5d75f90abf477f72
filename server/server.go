package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/onche-connect/interaction"
	"github.com/jrsteele09/onche-connect/internal/config"
	"github.com/jrsteele09/onche-connect/provider"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Endpoints is the protocol surface mounted by the server
type Endpoints interface {
	Routes() []provider.Route
}

var _ Endpoints = (*provider.Provider)(nil)

type Server struct {
	env          string // Environment (e.g., "DEV", "PROD")
	mux          *http.ServeMux
	routes       []string
	config       config.CorsConfig
	endpoints    Endpoints
	interactions *interaction.Orchestrator
}

func New(env string, cors config.CorsConfig, endpoints Endpoints, interactions *interaction.Orchestrator) (*Server, error) {
	if cors == nil || endpoints == nil || interactions == nil {
		return nil, errors.New("[Server New] cors config, endpoints and interactions are required")
	}

	s := &Server{
		env:          env,
		mux:          http.NewServeMux(),
		config:       cors,
		endpoints:    endpoints,
		interactions: interactions,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", displayMethod(method), path)
}

func displayMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
