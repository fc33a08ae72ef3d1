package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/jobforge/huntd/internal/errors"
	"github.com/jobforge/huntd/pkg/handshake"
	"github.com/jobforge/huntd/pkg/jobstore"
	"github.com/jobforge/huntd/pkg/session"
	"github.com/jobforge/huntd/pkg/worker"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.deps.Version})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

func (s *Server) handleSessionLog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"lines": s.deps.Session.Logs()})
}

type startRequest struct {
	Keywords   string `json:"keywords"`
	Location   string `json:"location"`
	Remote     bool   `json:"remote"`
	MaxJobs    int    `json:"max_jobs"`
	MaxAgeDays int    `json:"max_age_days"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeBody(w, r, &req) {
		return
	}

	run := worker.DefaultRunConfig()
	run.Keywords = req.Keywords
	run.Location = req.Location
	run.Remote = req.Remote
	if req.MaxJobs > 0 {
		run.MaxJobs = req.MaxJobs
	}
	if req.MaxAgeDays > 0 {
		run.MaxAgeDays = req.MaxAgeDays
	}
	if len(s.deps.BaseProviders) > 0 {
		run.Providers = s.deps.BaseProviders
	}

	if err := s.deps.Session.Start(r.Context(), run); err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.deps.Session.Snapshot())
}

type selectionRequest struct {
	SelectedJobIDs []jobstore.ID `json:"selected_job_ids"`
}

func (s *Server) handleSessionSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.SelectedJobIDs) == 0 {
		apperrors.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "selected_job_ids must not be empty")
		return
	}

	if err := s.deps.Session.SubmitSelection(r.Context(), req.SelectedJobIDs); err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

type approvalRequest struct {
	ApprovedApplications []handshake.ApprovalItem `json:"approved_applications"`
}

func (s *Server) handleSessionApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.deps.Session.SubmitApproval(r.Context(), req.ApprovedApplications); err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

func (s *Server) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Session.Cancel(); err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

type resetRequest struct {
	// Scope is "config" (default) or "all".
	Scope string `json:"scope"`
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	req := resetRequest{Scope: "config"}
	if r.ContentLength > 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}

	switch req.Scope {
	case "", "config":
		s.deps.Session.ResetSearchConfig()
	case "all":
		s.deps.Session.ResetAll(r.Context())
	default:
		apperrors.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "scope must be \"config\" or \"all\"")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

type jobsResponse struct {
	Jobs    []jobstore.Job `json:"jobs"`
	SavedAt *time.Time     `json:"saved_at,omitempty"`
}

func (s *Server) handleJobsList(w http.ResponseWriter, r *http.Request) {
	resp := jobsResponse{Jobs: s.deps.Store.Load(r.Context())}
	if ts, ok := s.deps.Store.SavedAt(r.Context()); ok {
		resp.SavedAt = &ts
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) jobMutation(op func(context.Context, jobstore.ID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := jobstore.ID(chi.URLParam(r, "id"))
		if err := op(r.Context(), id); err != nil {
			apperrors.RespondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleConfirmationsList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"confirmations": s.deps.Session.PendingConfirmations(),
	})
}

type confirmationCreateRequest struct {
	Action session.ConfirmAction `json:"action"`
	JobID  jobstore.ID           `json:"job_id,omitempty"`
	Prompt string                `json:"prompt"`
}

func (s *Server) handleConfirmationCreate(w http.ResponseWriter, r *http.Request) {
	var req confirmationCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	switch req.Action {
	case session.ConfirmDeleteJob, session.ConfirmHideJob, session.ConfirmClearAll:
	default:
		apperrors.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown confirmation action")
		return
	}

	created := s.deps.Session.RequestConfirmation(req.Action, req.JobID, req.Prompt)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleConfirmationConfirm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Session.Confirm(r.Context(), id, s.deps.Mutator); err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfirmationDismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Session.Dismiss(id); err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type retentionResponse struct {
	RetentionDays int `json:"retention_days"`
}

func (s *Server) handleRetentionGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, retentionResponse{
		RetentionDays: s.deps.Store.Retention(r.Context()),
	})
}

func (s *Server) handleRetentionPut(w http.ResponseWriter, r *http.Request) {
	var req retentionResponse
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RetentionDays < 0 {
		apperrors.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "retention_days must be >= 0")
		return
	}

	if err := s.deps.Store.SetRetention(r.Context(), req.RetentionDays); err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, retentionResponse{RetentionDays: req.RetentionDays})
}
