package jobstore

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultRetentionDays is how long a saved collection stays valid when the
// user never configured retention.
const DefaultRetentionDays = 7

// RetentionUnlimited disables expiry.
const RetentionUnlimited = 0

// Store owns the persisted job collection.
//
// Expiry is batch-level, not per-record: when the time since the last save
// exceeds the retention window, Load discards the whole collection. Job data
// is not safety-critical, so storage failures degrade to an empty collection
// instead of propagating.
type Store struct {
	backend Backend
	log     *zap.Logger
}

func NewStore(backend Backend, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{backend: backend, log: log}
}

// Retention returns the configured retention window in days.
// RetentionUnlimited (0) means the collection never expires.
func (s *Store) Retention(ctx context.Context) int {
	raw, err := s.backend.Get(ctx, KeyRetention)
	if err != nil {
		if !IsKeyNotFound(err) {
			s.log.Warn("Failed to read retention setting", zap.Error(err))
		}
		return DefaultRetentionDays
	}
	days, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || days < 0 {
		s.log.Warn("Invalid retention setting, using default", zap.ByteString("value", raw))
		return DefaultRetentionDays
	}
	return days
}

// SetRetention stores the retention window. It takes effect on the next load
// evaluation; an already-loaded collection is not retroactively expired.
func (s *Store) SetRetention(ctx context.Context, days int) error {
	if days < 0 {
		days = RetentionUnlimited
	}
	return s.backend.Set(ctx, KeyRetention, []byte(strconv.Itoa(days)))
}

// Load returns the persisted collection, or an empty one when the persisted
// age exceeds the retention window or the backend fails.
func (s *Store) Load(ctx context.Context) []Job {
	if s.expired(ctx) {
		s.log.Info("Stored jobs exceeded retention window, discarding")
		s.clear(ctx)
		return nil
	}

	raw, err := s.backend.Get(ctx, KeyJobs)
	if err != nil {
		if !IsKeyNotFound(err) {
			s.log.Warn("Failed to load stored jobs", zap.Error(err))
		}
		return nil
	}

	var jobs []Job
	if err := json.Unmarshal(raw, &jobs); err != nil {
		s.log.Warn("Stored jobs are corrupt, discarding", zap.Error(err))
		s.clear(ctx)
		return nil
	}
	return jobs
}

// Save persists the collection with a fresh timestamp.
func (s *Store) Save(ctx context.Context, jobs []Job) error {
	if jobs == nil {
		jobs = []Job{}
	}
	raw, err := json.Marshal(jobs)
	if err != nil {
		return err
	}

	if err := s.backend.SetWithTTL(ctx, KeyJobs, raw, s.retentionTTL(ctx)); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.backend.Set(ctx, KeySavedAt, []byte(now))
}

// SavedAt returns the timestamp of the last save, if any.
func (s *Store) SavedAt(ctx context.Context) (time.Time, bool) {
	raw, err := s.backend.Get(ctx, KeySavedAt)
	if err != nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw)))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// ExpireStale discards the collection if it has outlived the retention
// window. Returns true when something was discarded. The retention sweeper
// calls this periodically so a long-lived daemon does not serve stale jobs
// between loads.
func (s *Store) ExpireStale(ctx context.Context) bool {
	if !s.expired(ctx) {
		return false
	}
	s.log.Info("Retention sweep discarding stale job collection")
	s.clear(ctx)
	return true
}

func (s *Store) expired(ctx context.Context) bool {
	days := s.Retention(ctx)
	if days == RetentionUnlimited {
		return false
	}
	savedAt, ok := s.SavedAt(ctx)
	if !ok {
		return false
	}
	return time.Since(savedAt) > time.Duration(days)*24*time.Hour
}

func (s *Store) retentionTTL(ctx context.Context) time.Duration {
	days := s.Retention(ctx)
	if days == RetentionUnlimited {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}

func (s *Store) clear(ctx context.Context) {
	if err := s.backend.Delete(ctx, KeyJobs); err != nil {
		s.log.Warn("Failed to delete stored jobs", zap.Error(err))
	}
	if err := s.backend.Delete(ctx, KeySavedAt); err != nil {
		s.log.Warn("Failed to delete job timestamp", zap.Error(err))
	}
}
