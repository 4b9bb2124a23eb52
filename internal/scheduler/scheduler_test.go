package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

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

func TestSchedulerRunsFullMatrixAndCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`data: {"choices":[{"index":0,"delta":{"content":"x"}}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	ex := executor.New(executor.Config{BaseURL: srv.URL, Builder: adapter.OpenAIChatAdapter{}})
	bus := eventbus.New(nil)
	d := dashboard.New(bus, nil)
	collector := metricscollector.New()

	sched := New(Config{
		Scenarios:         []string{"scenario-a"},
		ConcurrencyLevels: []int{1, 2},
		MaxRequestsPerRun: 5,
		Sampler: func(scenario string) sampler.Sampler {
			return sampler.Fixed{Request: model.UserRequest{Kind: model.RequestChat, Model: "m", Prompt: scenario}}
		},
		Executor:  ex,
		Collector: collector,
		Dashboard: d,
	})

	err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, sched.Status().Status)
	assert.Equal(t, float64(100), sched.Status().ProgressPercentage)

	history := bus.HistoricalData()
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Concurrency)
	assert.Equal(t, 2, history[1].Concurrency)
	for _, h := range history {
		assert.Equal(t, 5, h.TotalRequests)
	}
}

func TestSchedulerFailsWithoutSamplerFactory(t *testing.T) {
	sched := New(Config{
		Scenarios:         []string{"s"},
		ConcurrencyLevels: []int{1},
		Collector:         metricscollector.New(),
	})
	err := sched.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.StateFailed, sched.Status().Status)
	assert.NotEmpty(t, sched.Status().ErrorMessage)
}

func TestSchedulerRespectsPreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sched := New(Config{
		Scenarios:         []string{"s"},
		ConcurrencyLevels: []int{1},
		Collector:         metricscollector.New(),
		Sampler: func(scenario string) sampler.Sampler {
			return sampler.Fixed{Request: model.UserRequest{}}
		},
	})
	err := sched.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, model.StateFailed, sched.Status().Status)
}
