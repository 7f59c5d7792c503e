// Package httpadapter is the invocation surface for the external front-end.
// It is not the end-user transport; delivery of results to end users stays
// outside this engine.
package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"urlwarden/internal/domain"
	"urlwarden/internal/ports"
	"urlwarden/internal/workers/batchrunner"
)

type Server struct {
	analyzer ports.Analyzer
	batch    *batchrunner.Runner
	store    ports.Store
	logger   *slog.Logger
}

func New(analyzer ports.Analyzer, batch *batchrunner.Runner, store ports.Store, logger *slog.Logger) *Server {
	return &Server{analyzer: analyzer, batch: batch, store: store, logger: logger}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.getHealthz)
	r.Post("/analyze", s.postAnalyze)
	r.Post("/analyze/batch", s.postAnalyzeBatch)
	r.Get("/entitlements/check", s.getEntitlementCheck)
	r.Get("/stats", s.getStats)
	r.Post("/vacuum", s.postVacuum)
	return r
}

type analyzeRequest struct {
	URL         string   `json:"url"`
	URLs        []string `json:"urls"`
	RequesterID string   `json:"requester_id"`
	GroupID     string   `json:"group_id"`
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) postAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	result, err := s.analyzer.Analyze(r.Context(), req.URL, domain.Requester{ID: req.RequesterID, GroupID: req.GroupID})
	if err != nil {
		s.writeAnalyzeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// postAnalyzeBatch streams one NDJSON progress event per URL as units
// complete, then a final summary line.
func (s *Server) postAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls are required")
		return
	}
	job, err := s.batch.Submit(r.Context(), req.URLs, domain.Requester{ID: req.RequesterID, GroupID: req.GroupID})
	if err != nil {
		s.writeAnalyzeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for update := range job.Updates() {
		if err := enc.Encode(update); err != nil {
			// client went away; stop the job
			job.Cancel()
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	job.Wait()
	_ = enc.Encode(job.Summary())
	if flusher != nil {
		flusher.Flush()
	}
}

func (s *Server) getEntitlementCheck(w http.ResponseWriter, r *http.Request) {
	req := domain.Requester{
		ID:      r.URL.Query().Get("requester_id"),
		GroupID: r.URL.Query().Get("group_id"),
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "requester_id is required")
		return
	}
	dec, err := s.analyzer.CheckEntitlement(r.Context(), req)
	if err != nil {
		s.logger.Error("entitlement check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "entitlement check unavailable")
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) postVacuum(w http.ResponseWriter, r *http.Request) {
	removed, err := s.store.Vacuum(r.Context())
	if err != nil {
		s.logger.Error("vacuum failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "vacuum failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) writeAnalyzeError(w http.ResponseWriter, err error) {
	var denied *domain.DeniedError
	if errors.As(err, &denied) {
		writeJSON(w, http.StatusForbidden, domain.Decision{Allowed: false, Reason: denied.Reason})
		return
	}
	if errors.Is(err, domain.ErrMalformedURL) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var perr *domain.PersistenceError
	if errors.As(err, &perr) {
		s.logger.Error("persistence failure", "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	s.logger.Error("analyze failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
