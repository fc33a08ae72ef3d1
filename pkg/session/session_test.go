package session

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobforge/huntd/pkg/handshake"
	"github.com/jobforge/huntd/pkg/jobstore"
	"github.com/jobforge/huntd/pkg/worker"
)

type fakeProcs struct {
	startErr  error
	started   int
	cancelled int
	active    bool
	runID     string
	cb        worker.Callbacks
}

func (p *fakeProcs) Start(_ context.Context, _ worker.RunConfig, cb worker.Callbacks) (*worker.Handle, error) {
	p.started++
	if p.startErr != nil {
		return nil, p.startErr
	}
	p.runID = uuid.NewString()
	p.cb = cb
	p.active = true
	return &worker.Handle{RunID: p.runID}, nil
}

func (p *fakeProcs) Cancel() error {
	p.cancelled++
	if !p.active {
		return worker.ErrNotRunning
	}
	p.active = false
	return nil
}

func (p *fakeProcs) Active() bool { return p.active }

// emit pushes a worker output line through the session's line callback.
func (p *fakeProcs) emit(t *testing.T, line string) {
	t.Helper()
	require.NotNil(t, p.cb.OnLine, "worker was never started")
	p.cb.OnLine([]byte(line))
}

func (p *fakeProcs) exit(err error) {
	p.active = false
	if p.cb.OnExit != nil {
		p.cb.OnExit(p.runID, err)
	}
}

type fakeChannel struct {
	selections [][]int64
	approvals  [][]handshake.ApprovalItem
	err        error
}

func (c *fakeChannel) SendSelection(_ context.Context, ids []int64) error {
	if c.err != nil {
		return c.err
	}
	c.selections = append(c.selections, ids)
	return nil
}

func (c *fakeChannel) SendApproval(_ context.Context, items []handshake.ApprovalItem) error {
	if c.err != nil {
		return c.err
	}
	c.approvals = append(c.approvals, items)
	return nil
}

type savedDraft struct {
	company, title, text string
}

type fakeDrafts struct {
	saved []savedDraft
	err   error
}

func (d *fakeDrafts) SaveDraft(_ context.Context, company, title, text string) error {
	if d.err != nil {
		return d.err
	}
	d.saved = append(d.saved, savedDraft{company, title, text})
	return nil
}

type harness struct {
	session *Session
	store   *jobstore.Store
	procs   *fakeProcs
	channel *fakeChannel
	drafts  *fakeDrafts
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	store := jobstore.NewStore(jobstore.NewFileBackend(t.TempDir()), zap.NewNop())
	procs := &fakeProcs{}
	channel := &fakeChannel{}
	drafts := &fakeDrafts{}
	return &harness{
		session: New(store, procs, channel, drafts, opts, zap.NewNop()),
		store:   store,
		procs:   procs,
		channel: channel,
		drafts:  drafts,
	}
}

func validRun() worker.RunConfig {
	run := worker.DefaultRunConfig()
	run.Keywords = "golang backend"
	run.Remote = true
	return run
}

// startRunning drives a fresh session into the running state.
func startRunning(t *testing.T, h *harness) {
	t.Helper()
	require.NoError(t, h.session.Start(context.Background(), validRun()))
	require.Equal(t, StateRunning, h.session.State())
}

// suspendOnSelection drives the session to the selection decision point with
// one ranked job.
func suspendOnSelection(t *testing.T, h *harness) {
	t.Helper()
	startRunning(t, h)
	h.procs.emit(t, `{"type":"stage_change","stage":"scraping","message":"searching boards","progress":35}`)
	h.procs.emit(t, `{"type":"user_selection_required","ranked_jobs":[{"id":"1","title":"Go Engineer","company":"Acme","url":"https://jobs.acme.test/1"}],"total_found":12,"relevant_count":1}`)
	require.Equal(t, StateAwaitingSelection, h.session.State())
}

func TestApprovalRequestWhileAwaitingSelectionIsDropped(t *testing.T) {
	h := newHarness(t, Options{})
	suspendOnSelection(t, h)

	// The worker must not request approval while a selection decision is
	// outstanding; the offending event leaves no trace behind.
	h.procs.emit(t, `{"type":"user_approval_required","applications":[{"job_id":7,"company":"Acme","job_title":"Go Engineer","application_text":"Dear team"}],"count":1}`)

	assert.Equal(t, StateAwaitingSelection, h.session.State())
	snap := h.session.Snapshot()
	assert.Empty(t, snap.Applications)
	require.Len(t, snap.RankedJobs, 1)

	err := h.session.SubmitApproval(context.Background(), []handshake.ApprovalItem{{JobID: 7}})
	assert.ErrorIs(t, err, ErrNoPendingApproval)

	// The legitimate selection flow is still intact.
	require.NoError(t, h.session.SubmitSelection(context.Background(), []jobstore.ID{"1"}))
	assert.Equal(t, StateRunning, h.session.State())
}

func TestStartRejectsInvalidParametersWithoutSpawning(t *testing.T) {
	h := newHarness(t, Options{})

	run := worker.DefaultRunConfig()
	run.Keywords = "x"
	run.Remote = true

	err := h.session.Start(context.Background(), run)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StateIdle, h.session.State())
	assert.Zero(t, h.procs.started, "validation failure must not spawn a worker")
}

func TestStartSpawnFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, Options{})
	h.procs.startErr = errors.New("exec: python3 not found")

	err := h.session.Start(context.Background(), validRun())

	require.Error(t, err)
	assert.Equal(t, StateIdle, h.session.State())
	assert.Contains(t, h.session.Snapshot().Error, "python3 not found")
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	h := newHarness(t, Options{})
	startRunning(t, h)

	err := h.session.Start(context.Background(), validRun())
	assert.ErrorIs(t, err, ErrNotIdle)
	assert.Equal(t, 1, h.procs.started)
}

func TestStageChangeUpdatesProgress(t *testing.T) {
	h := newHarness(t, Options{})
	startRunning(t, h)

	h.procs.emit(t, `{"type":"stage_change","stage":"ranking","message":"scoring jobs","progress":60}`)

	snap := h.session.Snapshot()
	assert.Equal(t, "ranking", snap.Stage)
	assert.Equal(t, "scoring jobs", snap.Message)
	assert.Equal(t, 60.0, snap.Progress)
	assert.Equal(t, StateRunning, snap.State)
}

func TestSelectionRequiredSuspendsAndMergesJobs(t *testing.T) {
	h := newHarness(t, Options{})
	suspendOnSelection(t, h)

	snap := h.session.Snapshot()
	require.Len(t, snap.RankedJobs, 1)
	assert.Equal(t, jobstore.ID("1"), snap.RankedJobs[0].ID)

	stored := h.store.Load(context.Background())
	require.Len(t, stored, 1)
	assert.Equal(t, jobstore.ID("1"), stored[0].ID)
	assert.True(t, stored[0].IsNew)
	require.NotNil(t, stored[0].FirstSeen)
}

func TestURLExcludePatternsFilterIncomingJobs(t *testing.T) {
	h := newHarness(t, Options{ExcludeURLPatterns: []string{"https://*.blocked.test/**"}})
	startRunning(t, h)

	h.procs.emit(t, `{"type":"user_selection_required","ranked_jobs":[`+
		`{"id":"1","title":"Keep","company":"A","url":"https://jobs.acme.test/1"},`+
		`{"id":"2","title":"Drop","company":"B","url":"https://jobs.blocked.test/spam/2"}]}`)

	stored := h.store.Load(context.Background())
	require.Len(t, stored, 1)
	assert.Equal(t, jobstore.ID("1"), stored[0].ID)
}

func TestSubmitSelectionResumesOnSuccess(t *testing.T) {
	h := newHarness(t, Options{})
	suspendOnSelection(t, h)

	require.NoError(t, h.session.SubmitSelection(context.Background(), []jobstore.ID{"1"}))

	assert.Equal(t, StateRunning, h.session.State())
	require.Len(t, h.channel.selections, 1)
	assert.Equal(t, []int64{1}, h.channel.selections[0])
	assert.Empty(t, h.session.Snapshot().RankedJobs, "resolved decision must be cleared")
}

func TestSubmitSelectionTransportFailureStaysSuspended(t *testing.T) {
	h := newHarness(t, Options{})
	suspendOnSelection(t, h)
	h.channel.err = errors.New("bridge unreachable and fallback dir read-only")

	err := h.session.SubmitSelection(context.Background(), []jobstore.ID{"1"})

	require.Error(t, err)
	snap := h.session.Snapshot()
	assert.Equal(t, StateAwaitingSelection, snap.State)
	assert.True(t, snap.HandshakeError)
	assert.Contains(t, snap.Error, "could not deliver selection")
	require.Len(t, snap.RankedJobs, 1, "undelivered decision must be re-presentable")

	// A later retry after the transport recovers succeeds.
	h.channel.err = nil
	require.NoError(t, h.session.SubmitSelection(context.Background(), []jobstore.ID{"1"}))
	assert.Equal(t, StateRunning, h.session.State())
	assert.False(t, h.session.Snapshot().HandshakeError)
}

func TestSubmitSelectionOutsideSuspensionIsRejected(t *testing.T) {
	h := newHarness(t, Options{})
	startRunning(t, h)

	err := h.session.SubmitSelection(context.Background(), []jobstore.ID{"1"})
	assert.ErrorIs(t, err, ErrNoPendingSelection)
	assert.Empty(t, h.channel.selections)
}

func TestSubmitApprovalThroughChannel(t *testing.T) {
	h := newHarness(t, Options{})
	startRunning(t, h)
	h.procs.emit(t, `{"type":"user_approval_required","applications":[{"job_id":7,"company":"Acme","job_title":"Go Engineer","application_text":"Dear team"}],"count":1}`)
	require.Equal(t, StateAwaitingApproval, h.session.State())

	require.NoError(t, h.session.SubmitApproval(context.Background(), []handshake.ApprovalItem{{JobID: 7}}))

	assert.Equal(t, StateRunning, h.session.State())
	require.Len(t, h.channel.approvals, 1)
	assert.Empty(t, h.drafts.saved, "live worker approval must not write drafts directly")
}

func TestOfflineApprovalPersistsDraftsAndCompletes(t *testing.T) {
	h := newHarness(t, Options{})
	startRunning(t, h)
	h.procs.emit(t, `{"type":"user_approval_required","applications":[`+
		`{"job_id":7,"company":"Acme","job_title":"Go Engineer","application_text":"Dear team"},`+
		`{"job_id":8,"company":"Globex","job_title":"SRE","application_text":"Hello"}],"count":2}`)
	require.Equal(t, StateAwaitingApproval, h.session.State())

	// Worker died between generating applications and the user's decision:
	// the session owns persistence now.
	h.procs.active = false

	override := "Dear Acme, revised letter"
	err := h.session.SubmitApproval(context.Background(), []handshake.ApprovalItem{
		{JobID: 7, ApplicationText: &override},
		{JobID: 8},
	})

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, h.session.State())
	require.Len(t, h.drafts.saved, 2)
	assert.Equal(t, savedDraft{"Acme", "Go Engineer", override}, h.drafts.saved[0])
	assert.Equal(t, savedDraft{"Globex", "SRE", "Hello"}, h.drafts.saved[1])
	assert.Empty(t, h.channel.approvals)
}

func TestFinalResultsCompletesAndMerges(t *testing.T) {
	h := newHarness(t, Options{})
	suspendOnSelection(t, h)
	require.NoError(t, h.session.SubmitSelection(context.Background(), []jobstore.ID{"1"}))

	h.procs.emit(t, `{"type":"final_results","jobs":[{"id":"2","title":"Platform Engineer","company":"Globex","url":"https://jobs.globex.test/2"}],"message":"run complete","status":"success"}`)

	snap := h.session.Snapshot()
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, 100.0, snap.Progress)
	assert.Equal(t, "run complete", snap.Message)
	assert.Len(t, h.store.Load(context.Background()), 2)
}

func TestUnexpectedExitWhileSuspendedFailsSession(t *testing.T) {
	h := newHarness(t, Options{})
	suspendOnSelection(t, h)

	h.procs.exit(errors.New("exit status 1"))

	snap := h.session.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, ReasonUnexpectedExit, snap.FailureReason)
	assert.Empty(t, snap.RankedJobs, "dead worker must not leave a stale decision screen")
}

func TestExitFromStaleRunIsIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	suspendOnSelection(t, h)

	staleCb := h.procs.cb.OnExit
	staleCb("some-old-run-id", errors.New("exit status 137"))

	assert.Equal(t, StateAwaitingSelection, h.session.State())
}

func TestExitAfterCompletionIsQuiet(t *testing.T) {
	h := newHarness(t, Options{})
	startRunning(t, h)
	h.procs.emit(t, `{"type":"final_results","jobs":[],"status":"success"}`)
	require.Equal(t, StateCompleted, h.session.State())

	h.procs.exit(nil)

	snap := h.session.Snapshot()
	assert.Equal(t, StateCompleted, snap.State)
	assert.Empty(t, snap.FailureReason)
}

func TestCancelFromSuspendedState(t *testing.T) {
	h := newHarness(t, Options{})
	suspendOnSelection(t, h)

	require.NoError(t, h.session.Cancel())

	snap := h.session.Snapshot()
	assert.Equal(t, StateCancelled, snap.State)
	assert.Empty(t, snap.RankedJobs)
	assert.Equal(t, 1, h.procs.cancelled)

	assert.ErrorIs(t, h.session.Cancel(), ErrTerminal)
}

func TestCancelFromIdleNeedsNoProcess(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.session.Cancel())
	assert.Equal(t, StateCancelled, h.session.State())
}

func TestResetSearchConfigPreservesStoreAndLogs(t *testing.T) {
	h := newHarness(t, Options{})
	suspendOnSelection(t, h)
	h.procs.emit(t, "worker log line")
	require.NoError(t, h.session.Cancel())

	h.session.ResetSearchConfig()

	snap := h.session.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, worker.DefaultRunConfig(), snap.SearchConfig)
	assert.Zero(t, snap.Progress)
	assert.Empty(t, snap.Error)
	assert.Len(t, h.store.Load(context.Background()), 1, "stored jobs survive a config reset")
	assert.NotEmpty(t, h.session.Logs(), "diagnostic log survives a config reset")

	// The machine is fully usable again.
	require.NoError(t, h.session.Start(context.Background(), validRun()))
	assert.Equal(t, StateRunning, h.session.State())
}

func TestResetAllClearsEverything(t *testing.T) {
	h := newHarness(t, Options{})
	suspendOnSelection(t, h)
	h.procs.emit(t, "worker log line")

	h.session.ResetAll(context.Background())

	assert.Equal(t, StateIdle, h.session.State())
	assert.Empty(t, h.store.Load(context.Background()))
	assert.Empty(t, h.session.Logs())
	assert.False(t, h.procs.active, "reset tears down a live process")
}

func TestLogLinesAndWorkerErrorsLandInRing(t *testing.T) {
	h := newHarness(t, Options{})
	startRunning(t, h)

	h.procs.emit(t, "plain progress note")
	h.procs.emit(t, `{"type":"error","message":"stepstone scrape failed"}`)

	logs := h.session.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, "plain progress note", logs[0])
	assert.Equal(t, "worker error: stepstone scrape failed", logs[1])
	assert.Equal(t, StateRunning, h.session.State(), "a recoverable worker error does not end the run")
}

func TestConfirmationFlowGuardsDeletion(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	require.NoError(t, h.store.Save(ctx, []jobstore.Job{{ID: "9", Title: "Go Dev", Company: "Acme"}}))
	mut := jobstore.NewMutator(h.store, jobstore.NopRemoteSync{}, zap.NewNop())

	req := h.session.RequestConfirmation(ConfirmDeleteJob, "9", "Delete job 9?")
	require.NotEmpty(t, req.ID)
	require.Len(t, h.session.PendingConfirmations(), 1)

	require.NoError(t, h.session.Confirm(ctx, req.ID, mut))
	assert.Empty(t, h.store.Load(ctx))

	// Tokens are single-use.
	assert.ErrorIs(t, h.session.Confirm(ctx, req.ID, mut), ErrConfirmationNotFound)
}

func TestDismissDropsConfirmationWithoutExecuting(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	require.NoError(t, h.store.Save(ctx, []jobstore.Job{{ID: "9", Title: "Go Dev", Company: "Acme"}}))

	req := h.session.RequestConfirmation(ConfirmDeleteJob, "9", "Delete job 9?")
	require.NoError(t, h.session.Dismiss(req.ID))

	assert.Empty(t, h.session.PendingConfirmations())
	assert.Len(t, h.store.Load(ctx), 1)
	assert.ErrorIs(t, h.session.Dismiss(req.ID), ErrConfirmationNotFound)
}
