package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/pipeline"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.ListFiles(r.Context())
	if err != nil {
		writeStoreError(w, r, err, "file")
		return
	}
	if files == nil {
		files = []model.FileSummary{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) createFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	f, err := s.store.CreateFile(r.Context(), name, 0)
	if err != nil {
		writeStoreError(w, r, err, "file")
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")
	f, err := s.store.GetFile(r.Context(), fileID)
	if err != nil {
		writeStoreError(w, r, err, "file")
		return
	}
	stats, err := s.store.FileStats(r.Context(), fileID)
	if err != nil {
		writeStoreError(w, r, err, "file")
		return
	}
	writeJSON(w, http.StatusOK, model.FileSummary{File: *f, Stats: *stats})
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	leads, ok := s.fileLeads(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *Server) getLead(w http.ResponseWriter, r *http.Request) {
	lead, err := s.store.GetLead(r.Context(), chi.URLParam(r, "leadId"))
	if err != nil {
		writeStoreError(w, r, err, "lead")
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ExtractRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.intake.Intake(r.Context(), req)
	switch {
	case errors.Is(err, pipeline.ErrNoLeads):
		writeError(w, http.StatusBadRequest, "no valid leads: each lead needs fullName and company")
		return
	case err != nil:
		writeStoreError(w, r, err, "file")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")
	if _, err := s.store.GetFile(r.Context(), fileID); err != nil {
		writeStoreError(w, r, err, "file")
		return
	}
	stats, err := s.store.FileStats(r.Context(), fileID)
	if err != nil {
		writeStoreError(w, r, err, "file")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// fileLeads loads the leads of the {fileId} file, writing the error
// response itself when the file is missing.
func (s *Server) fileLeads(w http.ResponseWriter, r *http.Request) ([]model.Lead, bool) {
	fileID := chi.URLParam(r, "fileId")
	if _, err := s.store.GetFile(r.Context(), fileID); err != nil {
		writeStoreError(w, r, err, "file")
		return nil, false
	}
	leads, err := s.store.ListLeads(r.Context(), fileID)
	if err != nil {
		writeStoreError(w, r, err, "file")
		return nil, false
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	return leads, true
}
