package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCleaner struct {
	cutoff int64
	err    error
}

func (f *fakeCleaner) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

type fakePruner struct {
	before time.Time
	calls  int
}

func (f *fakePruner) Prune(ctx context.Context, before time.Time) (int, error) {
	f.calls++
	f.before = before
	return 2, nil
}

func TestEmbeddingCacheCleanupJob(t *testing.T) {
	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	cleaner := &fakeCleaner{}
	job := NewEmbeddingCacheCleanupJob(cleaner, 0)
	job.now = func() time.Time { return now }

	require.Equal(t, "embedding_cache_cleanup", job.Name())
	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, now.Add(-30*24*time.Hour).Unix(), cleaner.cutoff)

	cleaner.err = errors.New("db down")
	require.Error(t, job.Run(context.Background()))

	require.NoError(t, NewEmbeddingCacheCleanupJob(nil, 7).Run(context.Background()))
}

func TestUploadCleanupJob(t *testing.T) {
	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	pruner := &fakePruner{}
	job := NewUploadCleanupJob(pruner, 48*time.Hour)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 1, pruner.calls)
	require.Equal(t, now.Add(-48*time.Hour), pruner.before)

	disabled := NewUploadCleanupJob(pruner, 0)
	require.NoError(t, disabled.Run(context.Background()))
	require.Equal(t, 1, pruner.calls)
}
