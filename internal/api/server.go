// Package api serves the broker over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/pipeline"
	"github.com/parcabul/broker/internal/registry"
	"github.com/parcabul/broker/internal/store"
)

// Broker runs searches and submissions.
type Broker interface {
	Search(ctx context.Context, in pipeline.SearchInput) (*pipeline.SearchResult, error)
	Submit(ctx context.Context, in pipeline.SubmitInput) (*pipeline.Submission, error)
}

// Vendors manages the known-supplier list.
type Vendors interface {
	Create(ctx context.Context, in registry.VendorInput) (*model.SupplierRecord, error)
	Update(ctx context.Context, id int64, p registry.VendorPatch) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, query string, limit int) ([]model.SupplierRecord, error)
}

// Requests reads the request audit trail.
type Requests interface {
	GetRequest(ctx context.Context, requestID string) (*model.RequestRecord, error)
	ListMatches(ctx context.Context, requestID string) ([]model.MatchRecord, error)
	ListRequests(ctx context.Context, filter store.RequestFilter) ([]model.RequestRecord, error)
}

// Config configures the HTTP surface.
type Config struct {
	AdminToken      string
	RateLimitPerMin int
	RateBurst       int
	AllowedOrigins  []string
}

// Server holds the handlers' collaborators.
type Server struct {
	cfg      Config
	broker   Broker
	vendors  Vendors
	requests Requests
	limiter  *clientLimiter
}

// New creates a Server.
func New(cfg Config, broker Broker, vendors Vendors, requests Requests) *Server {
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 20
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 40
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{
		cfg:      cfg,
		broker:   broker,
		vendors:  vendors,
		requests: requests,
		limiter:  newClientLimiter(time.Minute/time.Duration(cfg.RateLimitPerMin), cfg.RateBurst),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(accessLog)
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", adminTokenHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Post("/parts/search", s.search)
		r.Post("/requests", s.submit)
		r.Get("/vendors", s.listVendors)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Get("/requests", s.listRequests)
			r.Get("/requests/{id}", s.getRequest)
			r.Post("/vendors", s.createVendor)
			r.Put("/vendors/{id}", s.updateVendor)
			r.Delete("/vendors/{id}", s.deleteVendor)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeFail(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeFail(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ok"})
}
