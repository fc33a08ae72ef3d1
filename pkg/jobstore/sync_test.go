package jobstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRemote struct {
	err   error
	calls []string
}

func (f *fakeRemote) HideJob(_ context.Context, id ID) error {
	f.calls = append(f.calls, "hide:"+id.String())
	return f.err
}

func (f *fakeRemote) UnhideJob(_ context.Context, id ID) error {
	f.calls = append(f.calls, "unhide:"+id.String())
	return f.err
}

func (f *fakeRemote) DeleteJob(_ context.Context, id ID) error {
	f.calls = append(f.calls, "delete:"+id.String())
	return f.err
}

func (f *fakeRemote) MarkApplied(_ context.Context, id ID) error {
	f.calls = append(f.calls, "applied:"+id.String())
	return f.err
}

func seedStore(t *testing.T, remote RemoteSync) (*Mutator, *Store) {
	t.Helper()
	store, _ := newTestStore(t)
	require.NoError(t, store.Save(context.Background(), []Job{
		job("1", "Gärtner", "Grünwerk GmbH", "https://example.com/jobs/1"),
		job("2", "Florist", "Blumen AG", "https://example.com/jobs/2"),
	}))
	return NewMutator(store, remote, zap.NewNop()), store
}

func TestMutatorHideAppliesLocallyAndSyncs(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	mut, store := seedStore(t, remote)

	require.NoError(t, mut.Hide(ctx, "1"))

	jobs := store.Load(ctx)
	assert.True(t, jobs[0].Hidden)
	assert.Equal(t, []string{"hide:1"}, remote.calls)
}

func TestMutatorKeepsLocalMutationOnRemoteNotFound(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{err: ErrRemoteNotFound}
	mut, store := seedStore(t, remote)

	require.NoError(t, mut.Hide(ctx, "1"))
	assert.True(t, store.Load(ctx)[0].Hidden)
}

func TestMutatorRollsBackOnConfirmedRemoteFailure(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{err: errors.New("backend down")}
	mut, store := seedStore(t, remote)

	err := mut.Hide(ctx, "1")
	require.Error(t, err)
	assert.False(t, store.Load(ctx)[0].Hidden)
}

func TestMutatorDeleteRestoresJobOnRemoteFailure(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{err: errors.New("backend down")}
	mut, store := seedStore(t, remote)

	err := mut.Delete(ctx, "2")
	require.Error(t, err)

	jobs := store.Load(ctx)
	require.Len(t, jobs, 2)
}

func TestMutatorDeleteRemovesJob(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	mut, store := seedStore(t, remote)

	require.NoError(t, mut.Delete(ctx, "1"))

	jobs := store.Load(ctx)
	require.Len(t, jobs, 1)
	assert.Equal(t, ID("2"), jobs[0].ID)
}

func TestMutatorUnknownJob(t *testing.T) {
	mut, _ := seedStore(t, &fakeRemote{})
	assert.ErrorIs(t, mut.Hide(context.Background(), "999"), ErrJobNotFound)
}

func TestHTTPRemoteSyncStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"ok", http.StatusOK, nil},
		{"no content", http.StatusNoContent, nil},
		{"not found maps to sentinel", http.StatusNotFound, ErrRemoteNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			sync := NewHTTPRemoteSync(srv.URL, srv.Client())
			err := sync.HideJob(context.Background(), "1")
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestHTTPRemoteSyncServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sync := NewHTTPRemoteSync(srv.URL, srv.Client())
	assert.Error(t, sync.DeleteJob(context.Background(), "1"))
}
