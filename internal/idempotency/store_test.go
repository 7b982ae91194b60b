package idempotency

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replayContract is the behavior every Store must share.
func replayContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Get(ctx, "never-seen")
	require.NoError(t, err)
	assert.Nil(t, got)

	accepted := Record{
		SubmissionID: "sub-1",
		StatusCode:   202,
		Response:     []byte(`{"submissionId":"sub-1","busy":true}`),
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, store.Save(ctx, "retry-me", accepted))

	got, err = store.Get(ctx, "retry-me")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sub-1", got.SubmissionID)
	assert.Equal(t, 202, got.StatusCode)
	assert.JSONEq(t, string(accepted.Response), string(got.Response))

	// a later final answer for the same key replaces the accepted one
	minted := accepted
	minted.StatusCode = 200
	minted.Response = []byte(`{"submissionId":"sub-1","minted":true}`)
	require.NoError(t, store.Save(ctx, "retry-me", minted))
	got, err = store.Get(ctx, "retry-me")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 200, got.StatusCode)

	require.NoError(t, store.Save(ctx, "gone", Record{SubmissionID: "sub-0", ExpiresAt: time.Now().Add(-time.Minute)}))
	got, err = store.Get(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, got, "expired replay must not be served")
}

func TestStoresReplaySubmissions(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		replayContract(t, NewMemoryStore())
	})
	t.Run("file", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "replays.json"))
		require.NoError(t, err)
		replayContract(t, store)
	})
}

func TestMemoryStoreHidesRecordOnceItExpires(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "k", Record{SubmissionID: "sub-9", ExpiresAt: now.Add(time.Second)}))
	got, _ := store.Get(ctx, "k")
	require.NotNil(t, got)

	now = now.Add(2 * time.Second)
	got, _ = store.Get(ctx, "k")
	assert.Nil(t, got)
}

func TestFileStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "replays.json")
	ctx := context.Background()

	first, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, "key", Record{
		SubmissionID: "sub-2",
		StatusCode:   202,
		Response:     []byte(`{"submissionId":"sub-2"}`),
		ExpiresAt:    time.Now().Add(time.Hour),
	}))
	require.NoError(t, first.Save(ctx, "stale", Record{SubmissionID: "sub-3", ExpiresAt: time.Now().Add(-time.Hour)}))
	assert.FileExists(t, path)

	second, err := NewFileStore(path)
	require.NoError(t, err)
	got, err := second.Get(ctx, "key")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sub-2", got.SubmissionID)
	assert.NotContains(t, second.data, "stale", "expired records are dropped on load")
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replays.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}
