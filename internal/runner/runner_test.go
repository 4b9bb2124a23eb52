package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basetenlabs/loadbench/internal/adapter"
	"github.com/basetenlabs/loadbench/internal/dashboard"
	"github.com/basetenlabs/loadbench/internal/eventbus"
	"github.com/basetenlabs/loadbench/internal/executor"
	"github.com/basetenlabs/loadbench/internal/metricscollector"
	"github.com/basetenlabs/loadbench/internal/model"
	"github.com/basetenlabs/loadbench/internal/sampler"
)

func newTestExecutor(t *testing.T, handler http.HandlerFunc) (*executor.Executor, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	ex := executor.New(executor.Config{BaseURL: srv.URL, Builder: adapter.OpenAIChatAdapter{}})
	return ex, srv.Close
}

func TestRunTerminatesOnMaxRequests(t *testing.T) {
	var served atomic.Int64
	ex, closeSrv := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`data: {"choices":[{"index":0,"delta":{"content":"x"}}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	})
	defer closeSrv()

	pool := New(Config{
		Concurrency: 2,
		MaxRequests: 10,
		Sampler:     sampler.Fixed{Request: model.UserRequest{Kind: model.RequestChat, Model: "m", Prompt: "p"}},
		Executor:    ex,
		Collector:   metricscollector.New(),
	})

	result := pool.Run(context.Background())

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 10, result.TotalRequests)
	assert.Equal(t, int64(10), served.Load())
}

func TestRunWithZeroMaxRequestsCompletesImmediately(t *testing.T) {
	var served atomic.Int64
	ex, closeSrv := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: [DONE]\n\n"))
	})
	defer closeSrv()

	pool := New(Config{
		Concurrency: 4,
		MaxRequests: 0,
		Sampler:     sampler.Fixed{Request: model.UserRequest{Kind: model.RequestChat, Model: "m", Prompt: "p"}},
		Executor:    ex,
		Collector:   metricscollector.New(),
	})

	result := pool.Run(context.Background())

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 0, result.TotalRequests)
	assert.Equal(t, int64(0), served.Load())
}

func TestRunPublishesMetricsHistogramAndScatterPerRequest(t *testing.T) {
	ex, closeSrv := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		w.Write([]byte(`data: {"choices":[{"index":0,"delta":{"content":"x"}}]}` + "\n\n"))
		flusher.Flush()
		time.Sleep(5 * time.Millisecond)
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	})
	defer closeSrv()

	bus := eventbus.New(nil)
	d := dashboard.New(bus, nil)
	sub, unsub := bus.Subscribe()
	defer unsub()

	pool := New(Config{
		Concurrency: 1,
		MaxRequests: 1,
		Sampler:     sampler.Fixed{Request: model.UserRequest{Kind: model.RequestChat, Model: "m", Prompt: "p"}},
		Executor:    ex,
		Collector:   metricscollector.New(),
		Dashboard:   d,
	})

	result := pool.Run(context.Background())
	require.Equal(t, StateDone, result.State)

	seen := map[model.EventType]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 5 { // run_started, metrics, histogram, scatter, request_processed
		select {
		case evt := <-sub.Events():
			seen[evt.EventType] = true
		case <-deadline:
			t.Fatalf("timed out waiting for events, saw: %v", seen)
		}
	}

	assert.True(t, seen[model.EventMetrics])
	assert.True(t, seen[model.EventHistogram])
	assert.True(t, seen[model.EventScatter])
	assert.True(t, seen[model.EventRequestDone])
}

func TestRunTerminatesOnMaxDuration(t *testing.T) {
	ex, closeSrv := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`data: {"choices":[{"index":0,"delta":{"content":"x"}}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	})
	defer closeSrv()

	pool := New(Config{
		Concurrency: 2,
		MaxRequests: 1000000,
		MaxDuration: 50 * time.Millisecond,
		Sampler:     sampler.Fixed{Request: model.UserRequest{Kind: model.RequestChat, Model: "m", Prompt: "p"}},
		Executor:    ex,
	})

	start := time.Now()
	result := pool.Run(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, StateDone, result.State)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Greater(t, result.TotalRequests, 0)
}

func TestRunRespectsExternalCancellation(t *testing.T) {
	ex, closeSrv := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`data: {"choices":[{"index":0,"delta":{"content":"x"}}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	})
	defer closeSrv()

	ctx, cancel := context.WithCancel(context.Background())
	pool := New(Config{
		Concurrency: 1,
		MaxRequests: 1000000,
		Sampler:     sampler.Fixed{Request: model.UserRequest{Kind: model.RequestChat, Model: "m", Prompt: "p"}},
		Executor:    ex,
	})

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	result := pool.Run(ctx)
	assert.Equal(t, StateCancelled, result.State)
}

func TestRunFailsAfterConsecutive5xxThreshold(t *testing.T) {
	ex, closeSrv := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})
	defer closeSrv()

	pool := New(Config{
		Concurrency:      1,
		MaxRequests:      1000000,
		FailureThreshold: 3,
		Sampler:          sampler.Fixed{Request: model.UserRequest{Kind: model.RequestChat, Model: "m", Prompt: "p"}},
		Executor:         ex,
	})

	result := pool.Run(context.Background())
	assert.Equal(t, StateFailed, result.State)
	assert.Error(t, result.Err)
	assert.GreaterOrEqual(t, result.TotalRequests, 3)
}

func TestPoolStateStartsQueuedAndEndsDone(t *testing.T) {
	ex, closeSrv := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: [DONE]\n\n"))
	})
	defer closeSrv()

	pool := New(Config{
		Concurrency: 1,
		MaxRequests: 1,
		Sampler:     sampler.Fixed{Request: model.UserRequest{Kind: model.RequestChat, Model: "m", Prompt: "p"}},
		Executor:    ex,
	})
	require.Equal(t, StateQueued, pool.State())
	pool.Run(context.Background())
	require.Equal(t, StateDone, pool.State())
}
