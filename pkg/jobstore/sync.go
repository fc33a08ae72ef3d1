package jobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ErrJobNotFound indicates the target job is not in the local collection.
var ErrJobNotFound = errors.New("job not found")

// ErrRemoteNotFound indicates the backend has no record of the job. The
// mutation is kept locally in that case: "not found" means "already
// local-only", not a failed sync.
var ErrRemoteNotFound = errors.New("job not found on backend")

// RemoteSync mirrors local job mutations to the backend, best-effort.
type RemoteSync interface {
	HideJob(ctx context.Context, id ID) error
	UnhideJob(ctx context.Context, id ID) error
	DeleteJob(ctx context.Context, id ID) error
	MarkApplied(ctx context.Context, id ID) error
}

// NopRemoteSync accepts every mutation without doing anything. Used when the
// backend is not configured (fully offline operation).
type NopRemoteSync struct{}

func (NopRemoteSync) HideJob(context.Context, ID) error     { return nil }
func (NopRemoteSync) UnhideJob(context.Context, ID) error   { return nil }
func (NopRemoteSync) DeleteJob(context.Context, ID) error   { return nil }
func (NopRemoteSync) MarkApplied(context.Context, ID) error { return nil }

// HTTPRemoteSync talks to the backend REST API.
type HTTPRemoteSync struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRemoteSync(baseURL string, client *http.Client) *HTTPRemoteSync {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRemoteSync{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (r *HTTPRemoteSync) HideJob(ctx context.Context, id ID) error {
	return r.call(ctx, http.MethodPost, fmt.Sprintf("/jobs/%s/hide", id))
}

func (r *HTTPRemoteSync) UnhideJob(ctx context.Context, id ID) error {
	return r.call(ctx, http.MethodPost, fmt.Sprintf("/jobs/%s/unhide", id))
}

func (r *HTTPRemoteSync) DeleteJob(ctx context.Context, id ID) error {
	return r.call(ctx, http.MethodDelete, fmt.Sprintf("/jobs/%s", id))
}

func (r *HTTPRemoteSync) MarkApplied(ctx context.Context, id ID) error {
	return r.call(ctx, http.MethodPost, fmt.Sprintf("/jobs/%s/applied", id))
}

func (r *HTTPRemoteSync) call(ctx context.Context, method, path string) error {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrRemoteNotFound
	default:
		return fmt.Errorf("backend returned %d for %s %s", resp.StatusCode, method, path)
	}
}

// Mutator applies optimistic local mutations with best-effort backend sync.
//
// The local change is applied and saved first, then the remote call is
// attempted. Only a confirmed remote failure rolls the local change back;
// ErrRemoteNotFound is treated as success so offline or backend-unaware jobs
// stay editable.
type Mutator struct {
	store  *Store
	remote RemoteSync
	log    *zap.Logger
}

func NewMutator(store *Store, remote RemoteSync, log *zap.Logger) *Mutator {
	if remote == nil {
		remote = NopRemoteSync{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Mutator{store: store, remote: remote, log: log}
}

func (m *Mutator) Hide(ctx context.Context, id ID) error {
	return m.apply(ctx, id, "hide", func(j *Job) { j.Hidden = true }, m.remote.HideJob)
}

func (m *Mutator) Unhide(ctx context.Context, id ID) error {
	return m.apply(ctx, id, "unhide", func(j *Job) { j.Hidden = false }, m.remote.UnhideJob)
}

func (m *Mutator) MarkApplied(ctx context.Context, id ID) error {
	return m.apply(ctx, id, "applied", func(j *Job) { j.Applied = true }, m.remote.MarkApplied)
}

// Delete removes the job from the local collection and best-effort deletes it
// on the backend. A confirmed remote failure restores the record.
func (m *Mutator) Delete(ctx context.Context, id ID) error {
	jobs := m.store.Load(ctx)
	idx := indexOf(jobs, id)
	if idx < 0 {
		return ErrJobNotFound
	}
	removed := jobs[idx]
	jobs = append(jobs[:idx], jobs[idx+1:]...)
	if err := m.store.Save(ctx, jobs); err != nil {
		return err
	}

	if err := m.remote.DeleteJob(ctx, id); err != nil && !errors.Is(err, ErrRemoteNotFound) {
		m.log.Warn("Backend delete failed, restoring job",
			zap.String("job_id", id.String()), zap.Error(err))
		jobs = append(jobs, removed)
		if saveErr := m.store.Save(ctx, jobs); saveErr != nil {
			return saveErr
		}
		return err
	}
	return nil
}

func (m *Mutator) apply(ctx context.Context, id ID, op string, mutate func(*Job), remote func(context.Context, ID) error) error {
	jobs := m.store.Load(ctx)
	idx := indexOf(jobs, id)
	if idx < 0 {
		return ErrJobNotFound
	}
	before := jobs[idx]
	mutate(&jobs[idx])
	if err := m.store.Save(ctx, jobs); err != nil {
		return err
	}

	if err := remote(ctx, id); err != nil && !errors.Is(err, ErrRemoteNotFound) {
		m.log.Warn("Backend sync failed, rolling back local mutation",
			zap.String("op", op), zap.String("job_id", id.String()), zap.Error(err))
		jobs[idx] = before
		if saveErr := m.store.Save(ctx, jobs); saveErr != nil {
			return saveErr
		}
		return err
	}
	return nil
}

func indexOf(jobs []Job, id ID) int {
	for i := range jobs {
		if jobs[i].ID == id {
			return i
		}
	}
	return -1
}
