package server

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

func (s *Server) initRoutes() {
	// OAuth2 / OIDC routes
	for _, route := range s.endpoints.Routes() {
		if route.CORS {
			s.RegisterRouteHandler(route.Pattern, ChainMiddleware(route.Handler, s.APIMiddleware()...))
			continue
		}
		s.RegisterRouteHandler(route.Pattern, ChainMiddleware(route.Handler, s.HTMLMiddleWare()...))
	}

	// Preflight for the cross-origin endpoints
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(noContent, s.APIMiddleware()...))

	// Interaction forms
	s.RegisterRouteHandler("GET "+RouteInteraction, ChainMiddleware(s.interactions.PresentForm(), s.HTMLMiddleWare(NoStoreMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteInteractionUsername, ChainMiddleware(s.interactions.SendPin(), s.HTMLMiddleWare(NoStoreMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteInteractionVerify, ChainMiddleware(s.interactions.VerifyPin(), s.HTMLMiddleWare(NoStoreMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteInteractionConsent, ChainMiddleware(s.interactions.Consent(), s.HTMLMiddleWare(NoStoreMiddleware)...))

	s.RegisterRouteHandler("GET "+RouteStaticCSS, ChainMiddleware(s.serveFileHandler(), s.HTMLMiddleWare(CacheMiddleware)...))
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) serveFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filePath := strings.TrimPrefix(r.URL.Path, "/")
		if filePath == "" {
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
		err := StreamFile(w, r, filePath)
		if err != nil {
			logError(r.Method, filePath, err.Error())
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
	}
}

func logError(method, path, error string) {
	errorString := Red + error + ResetColor
	log.Error().Msgf("[%-19s] %s %s", displayMethod(method), path, errorString)
}
