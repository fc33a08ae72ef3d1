package handshake

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prober bool

func (p prober) Active() bool { return bool(p) }

func TestSendSelectionViaHTTP(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/job-selection", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewChannel(prober(true), srv.URL, t.TempDir(), srv.Client(), nil)
	require.NoError(t, ch.SendSelection(context.Background(), []int64{1, 3}))

	assert.Equal(t, "job_selection", got["type"])
	assert.Equal(t, []any{float64(1), float64(3)}, got["selected_job_ids"])
}

func TestSendApprovalViaHTTP(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/application-approval", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	text := "Sehr geehrte Damen und Herren,"
	ch := NewChannel(prober(true), srv.URL, t.TempDir(), srv.Client(), nil)
	require.NoError(t, ch.SendApproval(context.Background(), []ApprovalItem{
		{JobID: 3, ApplicationText: &text},
		{JobID: 5, ForcePDF: true},
	}))

	assert.Equal(t, "application_approval", got["type"])
	apps := got["approved_applications"].([]any)
	require.Len(t, apps, 2)

	first := apps[0].(map[string]any)
	assert.Equal(t, float64(3), first["job_id"])
	assert.Equal(t, text, first["application_text"])
	// Untouched fields serialize as explicit null for the worker.
	assert.Contains(t, first, "company_address")
	assert.Nil(t, first["company_address"])

	second := apps[1].(map[string]any)
	assert.Nil(t, second["application_text"])
	assert.Equal(t, true, second["force_pdf"])
}

func TestSendFailsFastWithoutActiveProcess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no transport should be attempted")
	}))
	defer srv.Close()

	ch := NewChannel(prober(false), srv.URL, t.TempDir(), srv.Client(), nil)
	assert.ErrorIs(t, ch.SendSelection(context.Background(), []int64{1}), ErrNoActiveProcess)
	assert.ErrorIs(t, ch.SendApproval(context.Background(), nil), ErrNoActiveProcess)
}

func TestHTTPFailureFallsBackToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	ch := NewChannel(prober(true), srv.URL, dir, srv.Client(), nil)
	require.NoError(t, ch.SendSelection(context.Background(), []int64{7}))

	raw, err := os.ReadFile(filepath.Join(dir, "job_selection.json"))
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "job_selection", payload["type"])
	assert.Equal(t, []any{float64(7)}, payload["selected_job_ids"])
}

func TestUnreachableBridgeFallsBackToFile(t *testing.T) {
	dir := t.TempDir()
	ch := NewChannel(prober(true), "http://127.0.0.1:1", dir, nil, nil)
	require.NoError(t, ch.SendApproval(context.Background(), []ApprovalItem{{JobID: 1}}))

	_, err := os.Stat(filepath.Join(dir, "application_approval.json"))
	assert.NoError(t, err)
}

func TestBothTransportsFailing(t *testing.T) {
	// Point the file fallback at a path that cannot be a directory.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	badDir := filepath.Join(blocker, "sub")

	ch := NewChannel(prober(true), "http://127.0.0.1:1", badDir, nil, nil)
	err := ch.SendSelection(context.Background(), []int64{1})
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Error(t, terr.HTTPErr)
	assert.Error(t, terr.FileErr)
}
