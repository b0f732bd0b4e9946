package ai

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/sbk2k1/sbk-assistant/internal/model"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type RetryPolicy struct {
	// Timeout bounds a single attempt. For streams it bounds the wait for the first token.
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// CalculateBackoff returns an exponential delay with +/-25% jitter, capped at 30s.
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	if backoff > 30*time.Second || backoff <= 0 {
		backoff = 30 * time.Second
	}
	half := int64(backoff) / 2
	if half <= 0 {
		return backoff
	}
	jitter := time.Duration(rand.Int64N(half)) - backoff/4
	return backoff + jitter
}

func (p RetryPolicy) retryable(err error) bool {
	return !IsPermanent(err) && !errors.Is(err, ErrUnavailable)
}

// run executes fn until it succeeds, the error is not retryable, the parent
// context ends or retries are exhausted. fn reports whether it already produced
// output, in which case it is never repeated.
func (p RetryPolicy) run(ctx context.Context, op string, fn func(ctx context.Context) (bool, error)) error {
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(p.BaseDelay, attempt)
			logutil.GetLogger(ctx).Warn("ai call failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(lastErr),
			)
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}
		attempts++
		emitted, err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if emitted || !p.retryable(err) {
			break
		}
	}
	return &BackendError{Op: op, Attempts: attempts, Err: lastErr}
}

type retryChatModel struct {
	next   IChatModel
	policy RetryPolicy
}

func WithRetryChatModel(next IChatModel, policy RetryPolicy) IChatModel {
	if next == nil {
		return nil
	}
	return &retryChatModel{next: next, policy: policy}
}

func (r *retryChatModel) Stream(ctx context.Context, messages []model.Message, onToken TokenFunc) error {
	return r.policy.run(ctx, "chat stream", func(ctx context.Context) (bool, error) {
		attemptCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		var emitted atomic.Bool
		var timer *time.Timer
		if r.policy.Timeout > 0 {
			timer = time.AfterFunc(r.policy.Timeout, func() {
				if !emitted.Load() {
					cancel()
				}
			})
			defer timer.Stop()
		}
		err := r.next.Stream(attemptCtx, messages, func(token string) error {
			if emitted.CompareAndSwap(false, true) && timer != nil {
				timer.Stop()
			}
			return onToken(token)
		})
		if err != nil && ctx.Err() == nil && attemptCtx.Err() != nil {
			err = context.DeadlineExceeded
		}
		return emitted.Load(), err
	})
}

func (r *retryChatModel) ModelName() string {
	return r.next.ModelName()
}

type retryEmbedder struct {
	next   IEmbedder
	policy RetryPolicy
}

func WithRetryEmbedder(next IEmbedder, policy RetryPolicy) IEmbedder {
	if next == nil {
		return nil
	}
	return &retryEmbedder{next: next, policy: policy}
}

func (r *retryEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	var out []float32
	err := r.policy.run(ctx, "embed", func(ctx context.Context) (bool, error) {
		attemptCtx, cancel := r.policy.withTimeout(ctx)
		defer cancel()
		vec, err := r.next.Embed(attemptCtx, text, taskType)
		if err != nil {
			return false, err
		}
		out = vec
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *retryEmbedder) ModelName() string {
	return r.next.ModelName()
}

type retryGenerator struct {
	next   IGenerator
	policy RetryPolicy
}

func WithRetryGenerator(next IGenerator, policy RetryPolicy) IGenerator {
	if next == nil {
		return nil
	}
	return &retryGenerator{next: next, policy: policy}
}

func (r *retryGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := r.policy.run(ctx, "generate", func(ctx context.Context) (bool, error) {
		attemptCtx, cancel := r.policy.withTimeout(ctx)
		defer cancel()
		text, err := r.next.Generate(attemptCtx, prompt)
		if err != nil {
			return false, err
		}
		if text == "" {
			return false, ErrEmptyResponse
		}
		out = text
		return false, nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (p RetryPolicy) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}
