// Package session is the orchestrator: a finite-state machine over one
// interactive job search. Decoded worker events and user commands drive
// transitions; the job store, handshake channel, and process manager are
// collaborators behind small interfaces.
//
// All externally visible mutation is serialized behind one mutex, so from
// the caller's perspective the session is single-threaded: a decoded line,
// a user command, or a process-exit notification runs to completion before
// the next one is applied.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/jobforge/huntd/pkg/handshake"
	"github.com/jobforge/huntd/pkg/jobstore"
	"github.com/jobforge/huntd/pkg/protocol"
	"github.com/jobforge/huntd/pkg/worker"
)

// Sentinel errors for command preconditions.
var (
	// ErrNotIdle indicates start was called while a session is in progress
	// or an unreset terminal state.
	ErrNotIdle = errors.New("session is not idle")

	// ErrNoPendingSelection indicates submitSelection outside the matching
	// suspended state.
	ErrNoPendingSelection = errors.New("no job selection is awaited")

	// ErrNoPendingApproval indicates submitApproval outside the matching
	// suspended state.
	ErrNoPendingApproval = errors.New("no application approval is awaited")

	// ErrTerminal indicates a command that needs a live session hit a
	// terminal state.
	ErrTerminal = errors.New("session is in a terminal state")
)

// ValidationError is a user-facing parameter problem: surfaced as a message,
// never spawns a process.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// maxLogLines bounds the diagnostic ring buffer.
const maxLogLines = 500

// ProcessManager is the slice of *worker.Manager the session needs.
type ProcessManager interface {
	Start(ctx context.Context, run worker.RunConfig, cb worker.Callbacks) (*worker.Handle, error)
	Cancel() error
	Active() bool
}

// Channel is the slice of *handshake.Channel the session needs.
type Channel interface {
	SendSelection(ctx context.Context, jobIDs []int64) error
	SendApproval(ctx context.Context, items []handshake.ApprovalItem) error
}

// DraftSaver persists approved application drafts when no worker is attached
// (manual/offline approval).
type DraftSaver interface {
	SaveDraft(ctx context.Context, company, jobTitle, letterText string) error
}

// Options tunes session behavior beyond its collaborators.
type Options struct {
	// ExcludeURLPatterns drops incoming jobs whose URL matches any
	// doublestar pattern (e.g. "https://*.example-board.com/**").
	ExcludeURLPatterns []string
}

// Session owns one interactive search workflow.
type Session struct {
	store   *jobstore.Store
	procs   ProcessManager
	channel Channel
	drafts  DraftSaver
	decoder *protocol.Decoder
	opts    Options
	log     *zap.Logger

	mu          sync.Mutex
	state       State
	runID       string
	searchCfg   worker.RunConfig
	stage       string
	message     string
	progress    float64
	lastError   string
	failReason  FailureReason
	handshakeOK bool // false while a failed submit awaits retry

	pendingSelection *protocol.SelectionRequired
	pendingApps      []protocol.GeneratedApplication

	logLines []string

	confirmations map[string]ConfirmationRequest
}

func New(store *jobstore.Store, procs ProcessManager, channel Channel, drafts DraftSaver, opts Options, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		store:         store,
		procs:         procs,
		channel:       channel,
		drafts:        drafts,
		decoder:       protocol.NewDecoder(log),
		opts:          opts,
		log:           log,
		state:         StateIdle,
		searchCfg:     worker.DefaultRunConfig(),
		handshakeOK:   true,
		confirmations: map[string]ConfirmationRequest{},
	}
}

// Snapshot is the read model the UI polls.
type Snapshot struct {
	State          State                           `json:"state"`
	RunID          string                          `json:"run_id,omitempty"`
	Stage          string                          `json:"stage,omitempty"`
	Message        string                          `json:"message,omitempty"`
	Progress       float64                         `json:"progress"`
	Error          string                          `json:"error,omitempty"`
	FailureReason  FailureReason                   `json:"failure_reason,omitempty"`
	HandshakeError bool                            `json:"handshake_error,omitempty"`
	SearchConfig   worker.RunConfig                `json:"search_config"`
	RankedJobs     []jobstore.Job                  `json:"ranked_jobs,omitempty"`
	Applications   []protocol.GeneratedApplication `json:"applications,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:          s.state,
		RunID:          s.runID,
		Stage:          s.stage,
		Message:        s.message,
		Progress:       s.progress,
		Error:          s.lastError,
		FailureReason:  s.failReason,
		HandshakeError: !s.handshakeOK,
		SearchConfig:   s.searchCfg,
	}
	if s.pendingSelection != nil {
		snap.RankedJobs = s.pendingSelection.RankedJobs
	}
	snap.Applications = s.pendingApps
	return snap
}

// State returns the current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Logs returns a copy of the diagnostic line ring.
func (s *Session) Logs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.logLines))
	copy(out, s.logLines)
	return out
}

// Start validates the search parameters and spawns the worker. Only legal
// from idle; validation failures stay idle and never spawn anything.
func (s *Session) Start(ctx context.Context, run worker.RunConfig) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrNotIdle
	}
	if err := run.Validate(); err != nil {
		s.lastError = err.Error()
		s.mu.Unlock()
		return &ValidationError{Msg: err.Error()}
	}

	s.searchCfg = run
	s.lastError = ""
	s.failReason = ""
	s.handshakeOK = true
	s.progress = 0
	s.stage = ""
	s.message = ""
	s.mustTransition(StateStarting)
	s.mu.Unlock()

	h, err := s.procs.Start(ctx, run, worker.Callbacks{
		OnLine: s.handleLine,
		OnExit: s.handleExit,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		// Spawn failure is fatal to the run but leaves the machine ready
		// for another attempt.
		s.mustTransition(StateIdle)
		s.lastError = fmt.Sprintf("failed to start worker: %v", err)
		s.log.Error("Worker spawn failed", zap.Error(err))
		return err
	}

	s.runID = h.RunID
	if s.state == StateStarting {
		s.mustTransition(StateRunning)
	}
	return nil
}

// SubmitSelection hands the chosen job ids to the suspended worker. On
// transport success the session resumes; on failure it stays suspended with
// the handshake error flagged so the UI re-presents the decision.
func (s *Session) SubmitSelection(ctx context.Context, ids []jobstore.ID) error {
	s.mu.Lock()
	if s.state != StateAwaitingSelection {
		s.mu.Unlock()
		return ErrNoPendingSelection
	}
	numeric, err := numericIDs(ids)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	sendErr := s.channel.SendSelection(ctx, numeric)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingSelection {
		// Cancelled or failed while the transport was in flight.
		return sendErr
	}
	if sendErr != nil {
		s.handshakeOK = false
		s.lastError = fmt.Sprintf("could not deliver selection: %v", sendErr)
		s.log.Warn("Selection handshake failed", zap.Error(sendErr))
		return sendErr
	}

	s.handshakeOK = true
	s.lastError = ""
	s.pendingSelection = nil
	s.mustTransition(StateRunning)
	return nil
}

// SubmitApproval resolves the approval suspension. With a live worker the
// decision goes through the handshake channel; without one (manual/offline
// approval) the approved drafts are persisted directly and the session
// completes.
func (s *Session) SubmitApproval(ctx context.Context, items []handshake.ApprovalItem) error {
	s.mu.Lock()
	if s.state != StateAwaitingApproval {
		s.mu.Unlock()
		return ErrNoPendingApproval
	}

	if !s.procs.Active() {
		err := s.persistDraftsLocked(ctx, items)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.pendingApps = nil
		s.progress = 100
		s.mustTransition(StateCompleted)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	sendErr := s.channel.SendApproval(ctx, items)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingApproval {
		return sendErr
	}
	if sendErr != nil {
		s.handshakeOK = false
		s.lastError = fmt.Sprintf("could not deliver approval: %v", sendErr)
		s.log.Warn("Approval handshake failed", zap.Error(sendErr))
		return sendErr
	}

	s.handshakeOK = true
	s.lastError = ""
	s.pendingApps = nil
	s.mustTransition(StateRunning)
	return nil
}

// Cancel aborts the session from any non-terminal state. Process teardown is
// cooperative-then-forced inside the process manager, so cancellation always
// eventually succeeds.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return ErrTerminal
	}

	if err := s.procs.Cancel(); err != nil && !errors.Is(err, worker.ErrNotRunning) {
		s.log.Warn("Worker cancel reported error", zap.Error(err))
	}

	s.pendingSelection = nil
	s.pendingApps = nil
	s.mustTransition(StateCancelled)
	return nil
}

// ResetSearchConfig cancels any live process and restores default search
// parameters, but deliberately preserves the job store and the diagnostic
// log: the user is starting a new search, not wiping their session.
func (s *Session) ResetSearchConfig() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// ResetAll is the full session reset: everything ResetSearchConfig does,
// plus clearing the stored job collection and the diagnostic log.
func (s *Session) ResetAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.logLines = nil
	if err := s.store.Save(ctx, nil); err != nil {
		s.log.Warn("Failed to clear job store on reset", zap.Error(err))
	}
}

func (s *Session) resetLocked() {
	if err := s.procs.Cancel(); err != nil && !errors.Is(err, worker.ErrNotRunning) {
		s.log.Warn("Worker cancel reported error during reset", zap.Error(err))
	}
	s.state = StateIdle
	s.runID = ""
	s.stage = ""
	s.message = ""
	s.progress = 0
	s.lastError = ""
	s.failReason = ""
	s.handshakeOK = true
	s.pendingSelection = nil
	s.pendingApps = nil
	s.searchCfg = worker.DefaultRunConfig()
}

// handleLine is the worker stdout/stderr callback. Lines arrive one at a
// time, already in write order.
func (s *Session) handleLine(line []byte) {
	ev, ok := s.decoder.DecodeLine(line)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(ev)
}

func (s *Session) applyLocked(ev protocol.Event) {
	if s.state.Terminal() || s.state == StateIdle {
		// Late output from a torn-down worker.
		return
	}
	if s.state == StateStarting {
		// Output can beat the start call's own bookkeeping.
		s.mustTransition(StateRunning)
	}

	switch ev.Kind {
	case protocol.KindStageChange:
		s.stage = ev.Stage.Stage
		s.message = ev.Stage.Message
		s.progress = ev.Stage.Progress

	case protocol.KindSelectionRequired:
		// Validate before touching pending state: a refused transition must
		// not leave a half-applied decision behind.
		if err := validateTransition(s.state, StateAwaitingSelection); err != nil {
			s.log.Error("Dropping selection request", zap.Error(err))
			return
		}
		s.mergeIntoStoreLocked(ev.Selection.RankedJobs)
		s.pendingSelection = ev.Selection
		s.mustTransition(StateAwaitingSelection)

	case protocol.KindApprovalRequired:
		if err := validateTransition(s.state, StateAwaitingApproval); err != nil {
			s.log.Error("Dropping approval request", zap.Error(err))
			return
		}
		s.pendingApps = ev.Approval.Applications
		s.mustTransition(StateAwaitingApproval)

	case protocol.KindFinalResults:
		s.mergeIntoStoreLocked(ev.Final.Jobs)
		s.progress = 100
		if ev.Final.Message != "" {
			s.message = ev.Final.Message
		}
		s.pendingSelection = nil
		s.pendingApps = nil
		s.mustTransition(StateCompleted)

	case protocol.KindWorkerError:
		s.appendLogLocked("worker error: " + ev.WorkerErr.Message)

	case protocol.KindLogLine:
		s.appendLogLocked(ev.Line)

	case protocol.KindHeartbeat, protocol.KindUnknown:
		// Nothing to do; unknown types were already logged by the decoder.
	}
}

// handleExit is the asynchronous process-exit callback. A worker dying while
// the session still expects interaction is a protocol violation, not a quiet
// end.
func (s *Session) handleExit(runID string, exitErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// An empty runID means the exit raced the start call's bookkeeping;
	// that is still the current run.
	if (s.runID != "" && runID != s.runID) || s.state.Terminal() || s.state == StateIdle {
		return
	}

	s.failReason = ReasonUnexpectedExit
	if exitErr != nil {
		s.lastError = fmt.Sprintf("worker exited unexpectedly: %v", exitErr)
	} else {
		s.lastError = "worker exited before delivering final results"
	}
	// Clear suspended decision state so the UI never shows a stale approval
	// screen for a dead process.
	s.pendingSelection = nil
	s.pendingApps = nil
	s.mustTransition(StateFailed)
	s.log.Error("Worker exit treated as protocol violation",
		zap.String("run_id", runID), zap.String("state", string(s.state)))
}

func (s *Session) mergeIntoStoreLocked(incoming []jobstore.Job) {
	if len(incoming) == 0 {
		return
	}
	ctx := context.Background()

	filtered := incoming[:0:0]
	for _, j := range incoming {
		if s.urlExcluded(j.URL) {
			continue
		}
		filtered = append(filtered, j)
	}

	existing := s.store.Load(ctx)
	known := make(map[jobstore.ID]struct{}, len(existing))
	for _, j := range existing {
		known[j.ID] = struct{}{}
	}

	now := time.Now().UTC()
	for i := range filtered {
		if _, ok := known[filtered[i].ID]; !ok {
			if filtered[i].FirstSeen == nil {
				t := now
				filtered[i].FirstSeen = &t
			}
			filtered[i].IsNew = true
		}
	}

	merged := jobstore.Merge(existing, filtered)
	if err := s.store.Save(ctx, merged); err != nil {
		s.log.Warn("Failed to persist merged jobs", zap.Error(err))
	}
}

func (s *Session) urlExcluded(url string) bool {
	if url == "" {
		return false
	}
	lowered := strings.ToLower(url)
	for _, pattern := range s.opts.ExcludeURLPatterns {
		if ok, err := doublestar.Match(strings.ToLower(pattern), lowered); err == nil && ok {
			return true
		}
	}
	return false
}

func (s *Session) persistDraftsLocked(ctx context.Context, items []handshake.ApprovalItem) error {
	if s.drafts == nil {
		return errors.New("no draft storage configured for offline approval")
	}

	byID := make(map[int64]protocol.GeneratedApplication, len(s.pendingApps))
	for _, app := range s.pendingApps {
		byID[app.JobID] = app
	}

	for _, item := range items {
		app, ok := byID[item.JobID]
		if !ok {
			s.log.Warn("Approval for unknown application", zap.Int64("job_id", item.JobID))
			continue
		}
		text := app.ApplicationText
		if item.ApplicationText != nil && strings.TrimSpace(*item.ApplicationText) != "" {
			text = *item.ApplicationText
		}
		if err := s.drafts.SaveDraft(ctx, app.Company, app.JobTitle, text); err != nil {
			return fmt.Errorf("persist draft for job %d: %w", item.JobID, err)
		}
	}
	return nil
}

func (s *Session) appendLogLocked(line string) {
	s.logLines = append(s.logLines, line)
	if len(s.logLines) > maxLogLines {
		s.logLines = s.logLines[len(s.logLines)-maxLogLines:]
	}
}

// mustTransition applies a transition that the calling command already
// guaranteed is legal; a table violation here is a bug worth loud logging.
func (s *Session) mustTransition(to State) {
	if err := validateTransition(s.state, to); err != nil {
		s.log.Error("Illegal session transition", zap.Error(err))
		return
	}
	s.log.Debug("Session transition",
		zap.String("from", string(s.state)), zap.String("to", string(to)))
	s.state = to
}

func numericIDs(ids []jobstore.ID) ([]int64, error) {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		n, err := id.Int64()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
