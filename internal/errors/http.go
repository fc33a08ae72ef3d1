// Package errors defines the JSON error envelope shared by all HTTP
// surfaces and the mapping from domain errors to status codes.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jobforge/huntd/pkg/handshake"
	"github.com/jobforge/huntd/pkg/jobstore"
	"github.com/jobforge/huntd/pkg/session"
	"github.com/jobforge/huntd/pkg/worker"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID stores the request id for later envelope stamping. The
// request-id middleware is the only writer.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the stored request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// HTTPErrorResponse is the wire envelope for every error the API returns.
type HTTPErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// WriteError writes the envelope with the given status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorDetail(w, status, ErrorDetail{Code: code, Message: message})
}

// WriteErrorDetail writes a fully specified envelope.
func WriteErrorDetail(w http.ResponseWriter, status int, detail ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: detail})
}

// RespondWithError maps a domain error onto a status code and envelope,
// stamping the request id when the middleware attached one.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	WriteErrorDetail(w, status, ErrorDetail{
		Code:      code,
		Message:   err.Error(),
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func classify(err error) (int, string) {
	var verr *session.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, "VALIDATION_ERROR"
	}

	var terr *handshake.TransportError
	if errors.As(err, &terr) {
		return http.StatusBadGateway, "HANDSHAKE_FAILED"
	}

	switch {
	case errors.Is(err, session.ErrNotIdle),
		errors.Is(err, session.ErrTerminal),
		errors.Is(err, session.ErrNoPendingSelection),
		errors.Is(err, session.ErrNoPendingApproval),
		errors.Is(err, worker.ErrAlreadyRunning):
		return http.StatusConflict, "INVALID_SESSION_STATE"
	case errors.Is(err, jobstore.ErrJobNotFound),
		errors.Is(err, session.ErrConfirmationNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, handshake.ErrNoActiveProcess),
		errors.Is(err, worker.ErrNotRunning):
		return http.StatusConflict, "NO_ACTIVE_PROCESS"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
