package idempotency

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreReplaysAndPrunes(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Ping(ctx))

	t.Run("contract", func(t *testing.T) {
		replayContract(t, prefixed{Store: store, prefix: time.Now().Format(time.RFC3339Nano) + "/"})
	})

	stale := "stale/" + time.Now().Format(time.RFC3339Nano)
	require.NoError(t, store.Save(ctx, stale, Record{SubmissionID: "sub-old", ExpiresAt: time.Now().Add(-time.Minute).UTC()}))
	n, err := store.Prune(ctx, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}

// prefixed isolates keys so runs against a shared database do not collide.
type prefixed struct {
	Store
	prefix string
}

func (p prefixed) Get(ctx context.Context, key string) (*Record, error) {
	return p.Store.Get(ctx, p.prefix+key)
}

func (p prefixed) Save(ctx context.Context, key string, r Record) error {
	return p.Store.Save(ctx, p.prefix+key, r)
}
