// Package protocol decodes the line-oriented event stream the search worker
// writes on stdout: one JSON object per line, with anything that fails to
// parse treated as free-text diagnostics rather than a stream error.
package protocol

import (
	"encoding/json"

	"github.com/jobforge/huntd/pkg/jobstore"
)

// Wire type tags emitted by the worker.
const (
	TypeStageChange       = "stage_change"
	TypeSelectionRequired = "user_selection_required"
	TypeApprovalRequired  = "user_approval_required"
	TypeFinalResults      = "final_results"
	TypeHeartbeat         = "heartbeat"
	TypeError             = "error"
)

// Kind classifies a decoded event.
type Kind string

const (
	KindStageChange       Kind = "stage_change"
	KindSelectionRequired Kind = "selection_required"
	KindApprovalRequired  Kind = "approval_required"
	KindFinalResults      Kind = "final_results"
	KindHeartbeat         Kind = "heartbeat"
	KindWorkerError       Kind = "worker_error"
	KindLogLine           Kind = "log_line"
	KindUnknown           Kind = "unknown"
)

// StageChange reports worker progress within the running phase.
type StageChange struct {
	Stage    string  `json:"stage"`
	Message  string  `json:"message"`
	Progress float64 `json:"progress"`
}

// SelectionRequired carries the ranked candidate batch awaiting user choice.
type SelectionRequired struct {
	RankedJobs    []jobstore.Job `json:"ranked_jobs"`
	TotalFound    int            `json:"total_found,omitempty"`
	RelevantCount int            `json:"relevant_count,omitempty"`
}

// GeneratedApplication is a drafted cover letter awaiting approval. It lives
// only for the duration of the session.
type GeneratedApplication struct {
	JobID           int64  `json:"job_id"`
	Company         string `json:"company,omitempty"`
	JobTitle        string `json:"job_title,omitempty"`
	ApplicationText string `json:"application_text,omitempty"`
	Filename        string `json:"filename,omitempty"`
	PDFPath         string `json:"pdf_path,omitempty"`
	TxtPath         string `json:"txt_path,omitempty"`
	CompanyAddress  string `json:"company_address,omitempty"`
}

// ApprovalRequired carries the drafted applications awaiting user approval.
type ApprovalRequired struct {
	Applications []GeneratedApplication `json:"applications"`
	Count        int                    `json:"count,omitempty"`
}

// FinalResults is the terminal batch. Jobs may be empty when the run ended
// early (no relevant jobs, user selected nothing, worker-side error).
type FinalResults struct {
	Jobs          []jobstore.Job  `json:"jobs,omitempty"`
	Applications  json.RawMessage `json:"applications,omitempty"`
	Message       string          `json:"message,omitempty"`
	Status        string          `json:"status,omitempty"`
	ApprovedCount int             `json:"approved_count,omitempty"`
}

// WorkerError is a structured error report from inside the worker. It does
// not terminate the stream by itself.
type WorkerError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// Event is the discriminated union delivered to the session for every line.
// Exactly one payload pointer is set for the structured kinds; Line carries
// the raw text for KindLogLine and KindUnknown.
type Event struct {
	Kind      Kind
	Stage     *StageChange
	Selection *SelectionRequired
	Approval  *ApprovalRequired
	Final     *FinalResults
	WorkerErr *WorkerError

	// RawType is the unrecognized wire tag for KindUnknown.
	RawType string
	// Line is the original text for KindLogLine and KindUnknown.
	Line string
}
