package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sbk2k1/sbk-assistant/internal/ai"
)

// WrapLruCacheToEmbedder memoizes embeddings in process. Concurrent requests
// for the same text share one backend call.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next     ai.IEmbedder
	cache    *expirable.LRU[string, []float32]
	inflight singleflight.Group
}

func (l *lruEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key, _, _ := buildCacheKey(l.next.ModelName(), taskType, text)
	if vec, ok := l.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.String("task_type", taskType))
		return copyVector(vec), nil
	}
	// the shared call outlives any single caller; each caller still honours its own ctx
	ch := l.inflight.DoChan(key, func() (interface{}, error) {
		vec, err := l.next.Embed(context.WithoutCancel(ctx), text, taskType)
		if err != nil {
			return nil, err
		}
		l.cache.Add(key, copyVector(vec))
		return vec, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		vec := res.Val.([]float32)
		if res.Shared {
			return copyVector(vec), nil
		}
		return vec, nil
	}
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func copyVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
