package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/auth0-api/app"
	"github.com/upb/auth0-api/handlers"
	"github.com/upb/auth0-api/middleware"
)

// ReadMessagesScope is required by /api/private-scoped
const ReadMessagesScope = "read:messages"

// Route binds a GET path to its gates and handler
type Route struct {
	Path    string
	Gates   []middleware.Gate
	Handler http.HandlerFunc
}

// APIRoutes returns the protected API surface. Gates run in the listed order.
func APIRoutes(deps *app.Dependencies) []Route {
	requireAuth := deps.AuthMiddleware.RequireAuth()

	return []Route{
		{
			Path:    "/api/public",
			Handler: handlers.PublicMessage,
		},
		{
			Path:    "/api/private",
			Gates:   []middleware.Gate{requireAuth},
			Handler: handlers.PrivateMessage,
		},
		{
			Path:    "/api/private-scoped",
			Gates:   []middleware.Gate{requireAuth, middleware.RequireScopes(ReadMessagesScope)},
			Handler: handlers.ScopedMessage,
		},
	}
}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(deps.Logger.Named("http")))
	r.Use(middleware.Recoverer(deps.Logger.Named("http")))
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.Config.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	// Health check endpoints
	health := handlers.NewHealthHandler(deps.Resolver, deps.KeyCache, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	for _, route := range APIRoutes(deps) {
		r.With(deps.AuthMiddleware.Chain(route.Gates...)).Get(route.Path, route.Handler)
	}

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	return r
}
