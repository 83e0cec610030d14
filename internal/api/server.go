package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Jojodayolo/testforge/internal/store"
)

// maxRequestBody is the maximum allowed request body size (1 MB).
const maxRequestBody int64 = 1 << 20

// IdentityResetter drops the reusable backend identity.
type IdentityResetter interface {
	ResetIdentity(ctx context.Context) error
}

// Server holds the HTTP handlers and dependencies.
type Server struct {
	store      store.Repository
	identity   IdentityResetter
	metrics    http.Handler
	corsOrigin string
	mux        *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithIdentityResetter enables POST /api/identity/reset.
func WithIdentityResetter(r IdentityResetter) Option {
	return func(s *Server) { s.identity = r }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithCORSOrigin sets the allowed CORS origin (default "*").
func WithCORSOrigin(origin string) Option {
	return func(s *Server) { s.corsOrigin = origin }
}

// New creates a new API server.
func New(s store.Repository, opts ...Option) *Server {
	srv := &Server{store: s, corsOrigin: "*", mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(srv)
	}
	srv.routes()
	return srv
}

// Handler returns the root http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	root := http.NewServeMux()
	root.Handle("/", corsMiddleware(s.corsOrigin, limitBody(jsonContent(s.mux))))
	if s.metrics != nil {
		root.Handle("GET /metrics", s.metrics)
	}
	return root
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/crawls", s.handleCreateCrawl)
	s.mux.HandleFunc("POST /api/generations", s.handleCreateGeneration)
	s.mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("POST /api/jobs/{id}/retry", s.handleRetry)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/pages", s.handleListPages)
	s.mux.HandleFunc("GET /api/generations", s.handleListGenerations)
	s.mux.HandleFunc("GET /api/generations/{id}", s.handleGetGeneration)
	s.mux.HandleFunc("POST /api/identity/reset", s.handleResetIdentity)
	s.mux.HandleFunc("GET /api/decode", s.handleDecode)
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// corsMiddleware sets CORS headers for the configured origin.
func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitBody restricts the request body to maxRequestBody bytes.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		next.ServeHTTP(w, r)
	})
}

func jsonContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
