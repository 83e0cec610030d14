package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/Jojodayolo/testforge/internal/model"
	"github.com/Jojodayolo/testforge/internal/store"
	"github.com/Jojodayolo/testforge/internal/urlcodec"
)

// ---------------------------------------------------------------------------
// POST /api/crawls
// ---------------------------------------------------------------------------

type crawlRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleCreateCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) url")
		return
	}

	s.enqueue(w, r, model.NewJob(uuid.New().String(), model.JobCrawl, req.URL))
}

// ---------------------------------------------------------------------------
// POST /api/generations
// ---------------------------------------------------------------------------

func (s *Server) handleCreateGeneration(w http.ResponseWriter, r *http.Request) {
	// The body is optional; drain it so clients may send {}.
	io.Copy(io.Discard, r.Body)
	s.enqueue(w, r, model.NewJob(uuid.New().String(), model.JobGenerate, ""))
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, job model.Job) {
	if err := s.store.CreateJob(r.Context(), job); err != nil {
		slog.Error("create job failed", "kind", job.Kind, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":     job.ID,
		"kind":   job.Kind,
		"status": job.Status,
	})
}

// ---------------------------------------------------------------------------
// GET /api/jobs
// ---------------------------------------------------------------------------

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := model.JobFilter{
		Status: splitComma(r.URL.Query().Get("status")),
		Kind:   splitComma(r.URL.Query().Get("kind")),
	}

	jobs, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// ---------------------------------------------------------------------------
// GET /api/jobs/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ---------------------------------------------------------------------------
// POST /api/jobs/{id}/retry
// ---------------------------------------------------------------------------

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := s.store.RetryJob(r.Context(), id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, store.ErrNotRetryable):
		writeError(w, http.StatusConflict, "only FAILED jobs can be retried")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to retry job")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": model.JobQueued})
}

// ---------------------------------------------------------------------------
// GET /api/stats
// ---------------------------------------------------------------------------

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count jobs")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// ---------------------------------------------------------------------------
// GET /api/pages
// ---------------------------------------------------------------------------

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.store.ListPages(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list pages")
		return
	}
	if pages == nil {
		pages = []model.PageRecord{}
	}
	writeJSON(w, http.StatusOK, pages)
}

// ---------------------------------------------------------------------------
// GET /api/generations
// ---------------------------------------------------------------------------

func (s *Server) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	gens, err := s.store.ListGenerations(r.Context(), r.URL.Query().Get("job_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list generations")
		return
	}
	if gens == nil {
		gens = []model.Generation{}
	}
	writeJSON(w, http.StatusOK, gens)
}

// ---------------------------------------------------------------------------
// GET /api/generations/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	gen, err := s.store.GetGeneration(r.Context(), r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "generation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get generation")
		return
	}
	writeJSON(w, http.StatusOK, gen)
}

// ---------------------------------------------------------------------------
// POST /api/identity/reset
// ---------------------------------------------------------------------------

func (s *Server) handleResetIdentity(w http.ResponseWriter, r *http.Request) {
	if s.identity == nil {
		writeError(w, http.StatusNotImplemented, "identity reset is not available")
		return
	}
	if err := s.identity.ResetIdentity(r.Context()); err != nil {
		slog.Error("reset identity failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset identity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ---------------------------------------------------------------------------
// GET /api/decode
// ---------------------------------------------------------------------------

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "url": urlcodec.Decode(name)})
}
