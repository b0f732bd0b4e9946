package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sbk2k1/sbk-assistant/internal/model"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoff(t *testing.T) {
	require.Equal(t, time.Duration(0), CalculateBackoff(time.Second, 0))
	require.Equal(t, time.Duration(0), CalculateBackoff(0, 3))
	for i := 0; i < 50; i++ {
		d := CalculateBackoff(100*time.Millisecond, 1)
		require.GreaterOrEqual(t, d, 150*time.Millisecond)
		require.LessOrEqual(t, d, 250*time.Millisecond)
	}
	for i := 0; i < 50; i++ {
		d := CalculateBackoff(time.Second, 100)
		require.GreaterOrEqual(t, d, 22500*time.Millisecond)
		require.LessOrEqual(t, d, 37500*time.Millisecond)
	}
}

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{Timeout: time.Second, MaxRetries: retries, BaseDelay: time.Millisecond}
}

func TestRetryEmbedderRecovers(t *testing.T) {
	inner := &fakeEmbedder{errs: []error{errBoom, errBoom}, vec: []float32{1, 2}}
	e := WithRetryEmbedder(inner, fastPolicy(2))
	vec, err := e.Embed(context.Background(), "x", "")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2}, vec)
	require.Equal(t, 3, inner.calls)
}

func TestRetryEmbedderExhausted(t *testing.T) {
	inner := &fakeEmbedder{errs: []error{errBoom, errBoom, errBoom, errBoom}}
	e := WithRetryEmbedder(inner, fastPolicy(2))
	_, err := e.Embed(context.Background(), "x", "")
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.ErrorIs(t, err, errBoom)
	var be *BackendError
	require.True(t, errors.As(err, &be))
	require.Equal(t, 3, be.Attempts)
	require.Equal(t, "embed", be.Op)
	require.Equal(t, 3, inner.calls)
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	inner := &fakeEmbedder{errs: []error{Permanent(errBoom)}}
	_, err := WithRetryEmbedder(inner, fastPolicy(3)).Embed(context.Background(), "x", "")
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Equal(t, 1, inner.calls)
}

func TestRetryDisabled(t *testing.T) {
	inner := &fakeEmbedder{errs: []error{errBoom}}
	_, err := WithRetryEmbedder(inner, fastPolicy(-1)).Embed(context.Background(), "x", "")
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Equal(t, 1, inner.calls)
}

func TestRetryStopsWhenParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inner := &fakeEmbedder{errs: []error{errBoom}}
	_, err := WithRetryEmbedder(inner, fastPolicy(3)).Embed(ctx, "x", "")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrBackendUnavailable)
	require.Equal(t, 1, inner.calls)
}

func TestRetryChatModelNoRetryAfterTokens(t *testing.T) {
	inner := &fakeChatModel{name: "m", tokens: []string{"a", "b"}, failAfter: 1, err: errBoom}
	m := WithRetryChatModel(inner, fastPolicy(3))
	tokens, err := collect(t, m)
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Equal(t, []string{"a"}, tokens)
	require.Equal(t, 1, inner.calls)
}

func TestRetryChatModelRetriesBeforeTokens(t *testing.T) {
	inner := &fakeChatModel{name: "m", tokens: []string{"a"}, failAfter: 0, err: errBoom}
	m := WithRetryChatModel(inner, fastPolicy(2))
	_, err := collect(t, m)
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Equal(t, 3, inner.calls)
}

type slowChatModel struct{ calls int }

func (s *slowChatModel) Stream(ctx context.Context, _ []model.Message, onToken TokenFunc) error {
	s.calls++
	<-ctx.Done()
	return ctx.Err()
}

func (s *slowChatModel) ModelName() string { return "slow" }

func TestRetryChatModelFirstTokenTimeout(t *testing.T) {
	inner := &slowChatModel{}
	m := WithRetryChatModel(inner, RetryPolicy{Timeout: 20 * time.Millisecond, MaxRetries: 1, BaseDelay: time.Millisecond})
	_, err := collect(t, m)
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 2, inner.calls)
}

func TestRetryGeneratorEmptyResponse(t *testing.T) {
	g := WithRetryGenerator(&fakeGenerator{out: ""}, fastPolicy(0))
	_, err := g.Generate(context.Background(), "p")
	require.ErrorIs(t, err, ErrEmptyResponse)
}
