package repo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sbk2k1/sbk-assistant/internal/db"
	"github.com/sbk2k1/sbk-assistant/internal/model"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *EmbeddingCacheRepo {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is not set")
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.ApplyMigrations(ctx, conn))
	_, err = conn.ExecContext(ctx, "DELETE FROM embedding_cache")
	require.NoError(t, err)
	return NewEmbeddingCacheRepo(conn)
}

func TestEmbeddingCacheRepoRoundTrip(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()

	_, ok, err := r.Get(ctx, "m", "RETRIEVAL_DOCUMENT", "h1")
	require.NoError(t, err)
	require.False(t, ok)

	now := time.Now().Unix()
	require.NoError(t, r.Save(ctx, &model.CachedEmbedding{
		ModelName: "m", TaskType: "RETRIEVAL_DOCUMENT", ContentHash: "h1",
		Vector: []float32{0.5, 1}, Ctime: now - 100,
	}))
	require.NoError(t, r.Save(ctx, &model.CachedEmbedding{
		ModelName: "m", TaskType: "RETRIEVAL_DOCUMENT", ContentHash: "h2",
		Vector: []float32{1, 0}, Ctime: now,
	}))

	vec, ok, err := r.Get(ctx, "m", "RETRIEVAL_DOCUMENT", "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float32{0.5, 1}, vec)

	n, err := r.DeleteBefore(ctx, now-10)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, ok, err = r.Get(ctx, "m", "RETRIEVAL_DOCUMENT", "h1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEmbeddingCacheRepoDimensionMismatchIsMiss(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, r.Save(ctx, &model.CachedEmbedding{
		ModelName: "m", TaskType: "RETRIEVAL_QUERY", ContentHash: "h",
		Vector: []float32{1, 2, 3}, Dimension: 4, Ctime: time.Now().Unix(),
	}))
	_, ok, err := r.Get(ctx, "m", "RETRIEVAL_QUERY", "h")
	require.NoError(t, err)
	require.False(t, ok)
}
