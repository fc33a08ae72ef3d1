// Package handshake delivers user decisions back to a suspended worker.
//
// The worker's stdin is not reliably available in every deployment, so
// decisions travel out-of-band: an HTTP POST to the local companion bridge
// first, then a JSON file at a predictable temp path the worker also polls.
// Only when both transports fail is the decision reported as undeliverable,
// and the caller re-presents it instead of dropping it.
package handshake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrNoActiveProcess indicates there is no running worker to hand the
// decision to. No transport is attempted in that case.
var ErrNoActiveProcess = errors.New("no active worker process")

// Wire payload type tags.
const (
	payloadTypeSelection = "job_selection"
	payloadTypeApproval  = "application_approval"
)

// Fallback file names. These are part of the contract with the worker, which
// polls for them by exact name.
const (
	selectionFileName = "job_selection.json"
	approvalFileName  = "application_approval.json"
)

// TransportError reports that both delivery paths failed.
type TransportError struct {
	HTTPErr error
	FileErr error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("handshake transport failed: http: %v; file fallback: %v", e.HTTPErr, e.FileErr)
}

// ApprovalItem is one approved (or user-edited) application draft.
//
// ApplicationText and CompanyAddress are pointers so the wire value is an
// explicit null when the user left them untouched, matching what the worker
// expects.
type ApprovalItem struct {
	JobID           int64   `json:"job_id"`
	ApplicationText *string `json:"application_text"`
	CompanyAddress  *string `json:"company_address"`
	SenderAddress   *string `json:"sender_address,omitempty"`
	ForcePDF        bool    `json:"force_pdf,omitempty"`
}

type selectionPayload struct {
	Type           string  `json:"type"`
	SelectedJobIDs []int64 `json:"selected_job_ids"`
}

type approvalPayload struct {
	Type                 string         `json:"type"`
	ApprovedApplications []ApprovalItem `json:"approved_applications"`
}

// ProcessProber answers whether a worker is a legitimate handshake target.
// *worker.Manager satisfies it.
type ProcessProber interface {
	Active() bool
}

// Channel sends decisions over the transport chain.
type Channel struct {
	proc        ProcessProber
	bridgeURL   string
	client      *http.Client
	fallbackDir string
	log         *zap.Logger
}

// DefaultFallbackDir is where the file transport writes when no directory is
// configured. The worker polls the same location.
func DefaultFallbackDir() string {
	return filepath.Join(os.TempDir(), "huntd-handshake")
}

func NewChannel(proc ProcessProber, bridgeURL, fallbackDir string, client *http.Client, log *zap.Logger) *Channel {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(fallbackDir) == "" {
		fallbackDir = DefaultFallbackDir()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Channel{
		proc:        proc,
		bridgeURL:   strings.TrimRight(bridgeURL, "/"),
		client:      client,
		fallbackDir: fallbackDir,
		log:         log,
	}
}

// SendSelection delivers the user's chosen job ids.
func (c *Channel) SendSelection(ctx context.Context, jobIDs []int64) error {
	if jobIDs == nil {
		jobIDs = []int64{}
	}
	return c.send(ctx, "/job-selection", selectionFileName, selectionPayload{
		Type:           payloadTypeSelection,
		SelectedJobIDs: jobIDs,
	})
}

// SendApproval delivers the approved application drafts.
func (c *Channel) SendApproval(ctx context.Context, items []ApprovalItem) error {
	if items == nil {
		items = []ApprovalItem{}
	}
	return c.send(ctx, "/application-approval", approvalFileName, approvalPayload{
		Type:                 payloadTypeApproval,
		ApprovedApplications: items,
	})
}

func (c *Channel) send(ctx context.Context, path, fileName string, payload any) error {
	if c.proc == nil || !c.proc.Active() {
		return ErrNoActiveProcess
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpErr := c.post(ctx, path, body)
	if httpErr == nil {
		return nil
	}
	c.log.Warn("Handshake HTTP transport failed, trying file fallback",
		zap.String("path", path), zap.Error(httpErr))

	if fileErr := c.writeFallback(fileName, body); fileErr != nil {
		return &TransportError{HTTPErr: httpErr, FileErr: fileErr}
	}
	return nil
}

func (c *Channel) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.bridgeURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bridge returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Channel) writeFallback(fileName string, body []byte) error {
	if err := os.MkdirAll(c.fallbackDir, 0755); err != nil {
		return fmt.Errorf("create fallback dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.fallbackDir, fileName+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write fallback payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close fallback payload: %w", err)
	}

	final := filepath.Join(c.fallbackDir, fileName)
	if err := os.Rename(tmpName, final); err != nil {
		return fmt.Errorf("rename fallback payload: %w", err)
	}
	c.log.Info("Handshake payload written to fallback file", zap.String("path", final))
	return nil
}
