package handlers

import (
	"net/http"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/metrics"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/ratelimit"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

type RouterConfig struct {
	Products       *ProductHandler
	Health         *HealthHandler
	Limiter        *ratelimit.Limiter
	Metrics        *metrics.Registry
	AllowedOrigins []string
}

// NewRouter mounts every route and wraps the result in CORS.
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.Use(RequestLogger(cfg.Metrics))

	limited := func(h http.HandlerFunc) http.Handler {
		if cfg.Limiter == nil {
			return h
		}
		return cfg.Limiter.Middleware(h)
	}

	api := r.PathPrefix("/api/amazon").Subrouter()
	api.Handle("/search", limited(cfg.Products.Search)).Methods("GET")
	api.Handle("/items", limited(cfg.Products.Items)).Methods("GET")
	api.Handle("/variations", limited(cfg.Products.Variations)).Methods("GET")
	api.HandleFunc("/health", cfg.Health.Health).Methods("GET")

	// Load balancers probe the unprefixed path; both serve the same document.
	r.HandleFunc("/health", cfg.Health.Health).Methods("GET")
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods("GET")
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader, "Retry-After"},
	})
	return c.Handler(r)
}
