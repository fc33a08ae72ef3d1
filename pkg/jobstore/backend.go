package jobstore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for storage backends.
var (
	// ErrKeyNotFound indicates the requested key has never been written.
	ErrKeyNotFound = errors.New("storage key not found")
)

// Storage keys. These are part of the on-disk/in-Redis contract and must stay
// stable across releases.
const (
	KeyJobs      = "jobs"
	KeySavedAt   = "jobs_saved_at"
	KeyRetention = "retention_days"
)

// Backend is the key/value persistence layer under the Store.
//
// Values are opaque JSON blobs; the Store owns serialization. SetWithTTL is a
// hint for backends with native expiry (Redis); file backends may ignore the
// TTL since the Store enforces retention on load anyway.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IsKeyNotFound returns true if the error indicates a missing storage key.
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
