package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newOllamaTestProvider(t *testing.T, handler http.HandlerFunc) IProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewProvider("ollama", map[string]interface{}{"host": srv.URL})
	require.NoError(t, err)
	return p
}

func TestOllamaEmbed(t *testing.T) {
	p := newOllamaTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"all-minilm","embeddings":[[0.5,0.25]]}`)
	})
	vec, err := p.Embed(context.Background(), "all-minilm", "hello", TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, 0.25}, vec)
}

func TestOllamaErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{name: "model not found", status: http.StatusNotFound, permanent: true},
		{name: "bad request", status: http.StatusBadRequest, permanent: true},
		{name: "rate limited", status: http.StatusTooManyRequests, permanent: false},
		{name: "request timeout", status: http.StatusRequestTimeout, permanent: false},
		{name: "server error", status: http.StatusInternalServerError, permanent: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newOllamaTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":"model \"missing\" not found"}`)
			})
			_, err := p.Embed(context.Background(), "missing", "hello", "")
			require.Error(t, err)
			require.Equal(t, tt.permanent, IsPermanent(err))
		})
	}
}

func TestOllamaUnknownModelIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	p := newOllamaTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model \"missing\" not found"}`)
	})
	e := WithRetryEmbedder(NewEmbedder(p, "missing"), RetryPolicy{Timeout: time.Second, MaxRetries: 3, BaseDelay: time.Millisecond})
	_, err := e.Embed(context.Background(), "hello", "")
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Equal(t, int32(1), calls.Load())
}
