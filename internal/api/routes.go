package api

import (
	"net/http"
	"strings"

	"gatekeeper/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouteOption configures optional route behavior.
type RouteOption func(*routeSettings)

type routeSettings struct {
	middlewares []mux.MiddlewareFunc
	gateway     http.Handler
	admission   func(http.Handler) http.Handler
}

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(s *routeSettings) {
		s.middlewares = append(s.middlewares, otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health"
			}),
		))
	}
}

// WithGateway proxies every non-API path to upstream. admission wraps the
// proxy, typically ratelimit.Middleware; nil proxies without admission checks.
func WithGateway(upstream http.Handler, admission func(http.Handler) http.Handler) RouteOption {
	return func(s *routeSettings) {
		s.gateway = upstream
		s.admission = admission
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	settings := &routeSettings{}
	for _, opt := range opts {
		opt(settings)
	}

	router := mux.NewRouter()

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	api.HandleFunc("/admit", handlers.Admit).Methods("POST")
	api.HandleFunc("/load", handlers.GetLoad).Methods("GET")
	api.HandleFunc("/buckets/{client_id}", handlers.GetBucket).Methods("GET")
	api.HandleFunc("/sweeps", handlers.ListSweeps).Methods("GET")
	api.HandleFunc("/sweeps/{id}", handlers.GetSweep).Methods("GET")
	api.HandleFunc("/stats", handlers.GetStats).Methods("GET")

	admin := adminTokenMiddleware(config.Security.AdminToken)
	api.Handle("/load", admin(http.HandlerFunc(handlers.UpdateLoad))).Methods("PUT")
	api.Handle("/buckets/{client_id}", admin(http.HandlerFunc(handlers.InitializeBucket))).Methods("PUT")
	api.Handle("/buckets/{client_id}/refill", admin(http.HandlerFunc(handlers.RefillBucket))).Methods("POST")
	api.Handle("/sweep", admin(http.HandlerFunc(handlers.TriggerSweep))).Methods("POST")

	if settings.gateway != nil {
		var upstream http.Handler = settings.gateway
		if settings.admission != nil {
			upstream = settings.admission(upstream)
		}
		// The matcher runs before any path matcher so a method mismatch on
		// an API route still reaches MethodNotAllowedHandler.
		router.MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool {
			return !isServicePath(r.URL.Path)
		}).Handler(upstream)
	}

	// Outermost first.
	router.Use(requestIDMiddleware)
	for _, mw := range settings.middlewares {
		router.Use(mw)
	}
	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	router.NotFoundHandler = requestIDMiddleware(http.HandlerFunc(notFoundHandler))
	router.MethodNotAllowedHandler = requestIDMiddleware(http.HandlerFunc(methodNotAllowedHandler))

	return router
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, models.ErrorCodeInvalidRequest, "Method not allowed")
}

// isServicePath reports whether path belongs to gatekeeper itself and must
// never be proxied.
func isServicePath(path string) bool {
	return path == "/health" || path == "/api/v1" || strings.HasPrefix(path, "/api/v1/")
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "Not found")
}
