package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jobforge/huntd/pkg/jobstore"
)

// Destructive job mutations go through a two-step confirm flow: the first
// request registers the intent and returns a token, the second executes it.
// Tokens are single-use and expire quietly.

// ErrConfirmationNotFound indicates an unknown, already-used, or expired
// confirmation token.
var ErrConfirmationNotFound = errors.New("confirmation request not found")

// ConfirmationTTL is how long a pending confirmation stays redeemable.
const ConfirmationTTL = 5 * time.Minute

// ConfirmAction names the mutation a confirmation guards.
type ConfirmAction string

const (
	ConfirmDeleteJob ConfirmAction = "delete_job"
	ConfirmHideJob   ConfirmAction = "hide_job"
	ConfirmClearAll  ConfirmAction = "clear_all_jobs"
)

// ConfirmationRequest is a pending destructive action awaiting a second call.
type ConfirmationRequest struct {
	ID        string        `json:"id"`
	Action    ConfirmAction `json:"action"`
	JobID     jobstore.ID   `json:"job_id,omitempty"`
	Prompt    string        `json:"prompt"`
	CreatedAt time.Time     `json:"created_at"`
}

func (r ConfirmationRequest) expired(now time.Time) bool {
	return now.Sub(r.CreatedAt) > ConfirmationTTL
}

// RequestConfirmation registers a destructive intent and returns the request
// the caller must echo back via Confirm.
func (s *Session) RequestConfirmation(action ConfirmAction, jobID jobstore.ID, prompt string) ConfirmationRequest {
	req := ConfirmationRequest{
		ID:        uuid.NewString(),
		Action:    action,
		JobID:     jobID,
		Prompt:    prompt,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneConfirmationsLocked(req.CreatedAt)
	s.confirmations[req.ID] = req
	return req
}

// PendingConfirmations lists unexpired confirmation requests.
func (s *Session) PendingConfirmations() []ConfirmationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneConfirmationsLocked(time.Now().UTC())

	out := make([]ConfirmationRequest, 0, len(s.confirmations))
	for _, req := range s.confirmations {
		out = append(out, req)
	}
	return out
}

// Confirm redeems a token and executes the guarded mutation through the
// store mutator. The token is consumed whether or not the mutation succeeds;
// a failed mutation needs a fresh request.
func (s *Session) Confirm(ctx context.Context, id string, mut *jobstore.Mutator) error {
	s.mu.Lock()
	s.pruneConfirmationsLocked(time.Now().UTC())
	req, ok := s.confirmations[id]
	if ok {
		delete(s.confirmations, id)
	}
	s.mu.Unlock()

	if !ok {
		return ErrConfirmationNotFound
	}

	switch req.Action {
	case ConfirmDeleteJob:
		return mut.Delete(ctx, req.JobID)
	case ConfirmHideJob:
		return mut.Hide(ctx, req.JobID)
	case ConfirmClearAll:
		return s.store.Save(ctx, nil)
	default:
		return ErrConfirmationNotFound
	}
}

// Dismiss drops a pending confirmation without executing it.
func (s *Session) Dismiss(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.confirmations[id]; !ok {
		return ErrConfirmationNotFound
	}
	delete(s.confirmations, id)
	return nil
}

func (s *Session) pruneConfirmationsLocked(now time.Time) {
	for id, req := range s.confirmations {
		if req.expired(now) {
			delete(s.confirmations, id)
		}
	}
}
