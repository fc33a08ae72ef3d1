package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobforge/huntd/pkg/jobstore"
	"github.com/jobforge/huntd/pkg/session"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) HTTPErrorResponse {
	t.Helper()
	var resp HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRespondWithErrorStampsRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req = req.WithContext(WithRequestID(req.Context(), "req-abc-123"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, jobstore.ErrJobNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "req-abc-123", resp.Error.RequestID)
}

func TestRespondWithErrorOmitsMissingRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.Empty(t, resp.Error.RequestID)
	assert.NotContains(t, rec.Body.String(), "request_id")
}

func TestClassifyValidationError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/session/start", nil)
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, &session.ValidationError{Msg: "keywords too short"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, "keywords too short", resp.Error.Message)
}
