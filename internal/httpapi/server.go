// Package httpapi exposes the automation engine over HTTP: a JSON
// request/response surface for starting, cancelling, and inspecting jobs,
// and a server-sent-events stream pushing state updates to live viewers.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/homedash/dashd/internal/jobengine"
)

// Server wires the job registry to the HTTP control surface.
type Server struct {
	registry *jobengine.Registry
	logger   *slog.Logger

	// authToken, when non-empty, is required as a bearer token on mutating
	// endpoints. Read-only endpoints stay open to the LAN.
	authToken string
}

// NewServer creates a Server for the given registry.
func NewServer(
	registry *jobengine.Registry,
	logger *slog.Logger,
	authToken string,
) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		registry:  registry,
		logger:    logger,
		authToken: authToken,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/api/automations", s.handleListAutomations)
	r.Get("/api/automations/status", s.handleAllStatus)
	r.Get("/api/automation/{name}/status", s.handleStatus)
	r.Get("/api/events", s.handleEvents)

	r.Group(func(g chi.Router) {
		g.Use(s.requireAuth)

		g.Post("/api/automation/{name}", s.handleStart)
		g.Post("/api/automation/{name}/cancel", s.handleCancel)
	})

	return r
}

// response is the JSON envelope for request/response endpoints.
type response struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		const prefix = "Bearer "

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, prefix)

		if !ok || subtle.ConstantTimeCompare(
			[]byte(token),
			[]byte(s.authToken),
		) != 1 {
			s.writeJSON(w, http.StatusUnauthorized, response{
				Success: false,
				Error:   "unauthorized",
			})

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "err", err)
	}
}
