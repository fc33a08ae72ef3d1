package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, *FileBackend) {
	t.Helper()
	backend := NewFileBackend(t.TempDir())
	return NewStore(backend, zap.NewNop()), backend
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	jobs := []Job{
		job("1", "Gärtner", "Grünwerk GmbH", "https://example.com/jobs/1"),
		job("2", "Florist", "Blumen AG", "https://example.com/jobs/2"),
	}
	require.NoError(t, store.Save(ctx, jobs))

	loaded := store.Load(ctx)
	assert.Equal(t, jobs, loaded)

	savedAt, ok := store.SavedAt(ctx)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().UTC(), savedAt, 5*time.Second)
}

func TestStoreLoadEmptyWhenNothingSaved(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	assert.Empty(t, store.Load(ctx))
}

func TestStoreRetentionDefaultsToSevenDays(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	assert.Equal(t, 7, store.Retention(ctx))
}

func TestStoreLoadDiscardsExpiredCollection(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	require.NoError(t, store.Save(ctx, []Job{job("1", "Gärtner", "Grünwerk GmbH", "https://example.com/jobs/1")}))

	// Backdate the save beyond the 7 day default window.
	stale := time.Now().UTC().Add(-8 * 24 * time.Hour).Format(time.RFC3339Nano)
	require.NoError(t, backend.Set(ctx, KeySavedAt, []byte(stale)))

	assert.Empty(t, store.Load(ctx))

	// The whole batch is discarded, not filtered: a subsequent load stays empty.
	assert.Empty(t, store.Load(ctx))
}

func TestStoreLoadKeepsCollectionWithinWindow(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	jobs := []Job{job("1", "Gärtner", "Grünwerk GmbH", "https://example.com/jobs/1")}
	require.NoError(t, store.Save(ctx, jobs))

	recent := time.Now().UTC().Add(-6 * 24 * time.Hour).Format(time.RFC3339Nano)
	require.NoError(t, backend.Set(ctx, KeySavedAt, []byte(recent)))

	assert.Equal(t, jobs, store.Load(ctx))
}

func TestStoreUnlimitedRetentionNeverExpires(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	jobs := []Job{job("1", "Gärtner", "Grünwerk GmbH", "https://example.com/jobs/1")}
	require.NoError(t, store.Save(ctx, jobs))
	require.NoError(t, store.SetRetention(ctx, RetentionUnlimited))

	ancient := time.Now().UTC().Add(-365 * 24 * time.Hour).Format(time.RFC3339Nano)
	require.NoError(t, backend.Set(ctx, KeySavedAt, []byte(ancient)))

	assert.Equal(t, jobs, store.Load(ctx))
}

func TestStoreRetentionChangeTakesEffectOnNextLoad(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	jobs := []Job{job("1", "Gärtner", "Grünwerk GmbH", "https://example.com/jobs/1")}
	require.NoError(t, store.Save(ctx, jobs))

	threeDaysAgo := time.Now().UTC().Add(-3 * 24 * time.Hour).Format(time.RFC3339Nano)
	require.NoError(t, backend.Set(ctx, KeySavedAt, []byte(threeDaysAgo)))

	assert.Equal(t, jobs, store.Load(ctx))

	require.NoError(t, store.SetRetention(ctx, 2))
	assert.Empty(t, store.Load(ctx))
}

func TestStoreLoadSurvivesCorruptData(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	require.NoError(t, backend.Set(ctx, KeyJobs, []byte("{not json")))
	assert.Empty(t, store.Load(ctx))
}

func TestExpireStale(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	require.NoError(t, store.Save(ctx, []Job{job("1", "Gärtner", "Grünwerk GmbH", "https://example.com/jobs/1")}))
	assert.False(t, store.ExpireStale(ctx))

	stale := time.Now().UTC().Add(-30 * 24 * time.Hour).Format(time.RFC3339Nano)
	require.NoError(t, backend.Set(ctx, KeySavedAt, []byte(stale)))

	assert.True(t, store.ExpireStale(ctx))
	assert.Empty(t, store.Load(ctx))
}
