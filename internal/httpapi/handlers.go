package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/homedash/dashd/internal/automation"
	"github.com/homedash/dashd/internal/jobengine"
)

type startRequest struct {
	Args string `json:"args"`
}

func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, struct {
		Automations []automation.Automation `json:"automations"`
	}{
		Automations: s.registry.Automations(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil &&
		!errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, response{
			Success: false,
			Error:   "invalid request body",
		})

		return
	}

	id, err := s.registry.Start(name, strings.TrimSpace(req.Args))
	if err != nil {
		s.writeJSON(w, startErrorStatus(err), response{
			Success: false,
			Error:   err.Error(),
		})

		return
	}

	s.writeJSON(w, http.StatusOK, response{
		Success: true,
		JobID:   id,
		Message: name + " started",
	})
}

// startErrorStatus maps registry errors to HTTP statuses. Launch failures
// are the server's fault (bad config, missing executable); the rest are the
// caller's.
func startErrorStatus(err error) int {
	switch {
	case errors.Is(err, jobengine.ErrUnknownAutomation):
		return http.StatusBadRequest
	case errors.Is(err, jobengine.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.As(err, new(jobengine.LaunchError)):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.registry.Cancel(name); err != nil {
		status := http.StatusOK
		if errors.Is(err, jobengine.ErrUnknownAutomation) {
			status = http.StatusNotFound
		}

		s.writeJSON(w, status, response{
			Success: false,
			Error:   err.Error(),
		})

		return
	}

	s.writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: name + " cancelled",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	view, err := s.registry.Snapshot(name)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, response{
			Success: false,
			Error:   err.Error(),
		})

		return
	}

	s.writeJSON(w, http.StatusOK, struct {
		Success    bool              `json:"success"`
		Automation string            `json:"automation"`
		State      jobengine.JobView `json:"state"`
	}{
		Success:    true,
		Automation: name,
		State:      view,
	})
}

func (s *Server) handleAllStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, struct {
		Success     bool                         `json:"success"`
		Automations map[string]jobengine.JobView `json:"automations"`
	}{
		Success:     true,
		Automations: s.registry.SnapshotAll(),
	})
}
