package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/abxy/internal/api/middleware"
	"github.com/eldtechnologies/abxy/internal/crypto"
	"github.com/eldtechnologies/abxy/internal/handlers"
	"github.com/eldtechnologies/abxy/internal/store"
)

// Deps are the collaborators the router wires into handlers and middleware.
type Deps struct {
	Logger    zerolog.Logger
	Data      store.DataStore
	Sessions  store.SessionStore
	Tokens    *crypto.TokenIssuer
	Redis     *redis.Client // optional; enables rate limiting
	Whitelist []string
	AutoBlock bool
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Request IDs and client IPs first so everything after can log them
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Instrument(d.Logger))
	r.Use(chimw.Recoverer)

	// Request hygiene
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.RequireJSON)
	r.Use(middleware.RejectSuspiciousPaths)

	// Rate limiting
	limiter := middleware.NewRateLimiter(d.Redis, d.Logger, middleware.RateLimiterConfig{
		Whitelist:        d.Whitelist,
		AutoBlockEnabled: d.AutoBlock,
	})
	r.Use(limiter.Middleware)

	// CORS - browser builds of the client may be served from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create handler and auth middleware
	h := handlers.NewHandler(d.Data, d.Sessions, d.Tokens, d.Logger)
	auth := middleware.NewAuthMiddleware(d.Data, d.Sessions, d.Tokens, d.Logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Post("/signup", h.SignUp)
	r.Post("/login", h.Login)

	// Authenticated routes (require bearer token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Post("/signout", h.SignOut)
		r.Get("/user", h.CurrentUser)
		r.Post("/v1/graphql", h.GraphQL)
	})

	return r
}
