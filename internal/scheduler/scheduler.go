// Package scheduler implements the scheduler: it iterates scenarios x
// concurrency_levels, resetting and snapshotting the metrics collector at
// each cell boundary and delegating the actual request-driving to the
// worker pool / run controller. Progress-percentage bookkeeping follows an
// iterate-reset-emit-delegate-snapshot loop shape.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/basetenlabs/loadbench/internal/dashboard"
	"github.com/basetenlabs/loadbench/internal/executor"
	"github.com/basetenlabs/loadbench/internal/metrics"
	"github.com/basetenlabs/loadbench/internal/metricscollector"
	"github.com/basetenlabs/loadbench/internal/model"
	"github.com/basetenlabs/loadbench/internal/runner"
	"github.com/basetenlabs/loadbench/internal/sampler"
	"github.com/basetenlabs/loadbench/internal/tracing"
)

// SamplerFactory builds the Sampler for one traffic scenario. Scenario
// strings are opaque to the core and are simply handed to this factory.
type SamplerFactory func(scenario string) sampler.Sampler

// Config wires one Scheduler run across its full scenario x concurrency
// matrix.
type Config struct {
	Scenarios         []string
	ConcurrencyLevels []int
	MaxRequestsPerRun int
	MaxDuration       time.Duration

	Sampler   SamplerFactory
	Executor  *executor.Executor
	Collector *metricscollector.Collector
	Dashboard dashboard.Facade
	Logger    *zap.Logger

	// FailureThreshold is forwarded to each cell's runner.Config, an optional
	// persistent-5xx failure predicate. Zero disables it.
	FailureThreshold int
}

// Scheduler drives Config's full matrix and owns the BenchmarkStatus
// singleton: only the scheduler mutates it, the dashboard facade only reads
// and broadcasts it.
type Scheduler struct {
	cfg    Config
	status model.BenchmarkStatus
}

// New builds a Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scheduler{cfg: cfg}
}

// Status returns a copy of the current BenchmarkStatus.
func (s *Scheduler) Status() model.BenchmarkStatus { return s.status }

// Run drives every (scenario, concurrency) cell in order, returning early
// with ctx.Err() if the caller cancels mid-matrix. On any uncaught error the
// scheduler transitions status to failed with error_message and ends;
// cancellation carries its own error and is reported the same way.
func (s *Scheduler) Run(ctx context.Context) error {
	totalCells := len(s.cfg.Scenarios) * len(s.cfg.ConcurrencyLevels)
	s.status = model.BenchmarkStatus{
		Status:          model.StateInitializing,
		TotalScenarios:  len(s.cfg.Scenarios),
		TotalIterations: totalCells,
		StartTime:       time.Now(),
	}
	if s.cfg.Dashboard != nil {
		s.cfg.Dashboard.UpdateBenchmarkStatus(s.status)
	}

	cell := 0
	for _, scenario := range s.cfg.Scenarios {
		for _, concurrency := range s.cfg.ConcurrencyLevels {
			cell++

			if err := ctx.Err(); err != nil {
				return s.fail(err)
			}

			if err := s.runCell(ctx, scenario, concurrency, cell, totalCells); err != nil {
				return s.fail(err)
			}
		}
	}

	s.status.Status = model.StateCompleted
	s.status.ProgressPercentage = 100
	if s.cfg.Dashboard != nil {
		s.cfg.Dashboard.UpdateBenchmarkStatus(s.status)
	}
	return nil
}

func (s *Scheduler) runCell(ctx context.Context, scenario string, concurrency, cell, totalCells int) error {
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("scheduler.cell %s", scenario))
	defer span.End()

	// Step 1: reset the collector's sliding windows for this cell.
	s.cfg.Collector.Reset()
	if s.cfg.Dashboard != nil {
		s.cfg.Dashboard.ResetPlotMetrics()
		s.cfg.Dashboard.ResetPanels()
	}

	// Step 2: task_created; run_started is emitted by the Pool itself.
	runName := fmt.Sprintf("%s-concurrency-%d", scenario, concurrency)
	if s.cfg.Dashboard != nil {
		s.cfg.Dashboard.TaskCreated(runName)
	}

	// Step 3: update BenchmarkStatus for this cell.
	s.status.Status = model.StateRunning
	s.status.CurrentScenario = scenario
	s.status.CurrentIteration = cell
	s.status.CurrentConcurrency = concurrency
	s.status.ProgressPercentage = float64(cell-1) / float64(totalCells) * 100
	if s.cfg.Dashboard != nil {
		s.cfg.Dashboard.UpdateBenchmarkStatus(s.status)
	}

	if s.cfg.Sampler == nil {
		return fmt.Errorf("scheduler: no sampler factory configured")
	}

	// Step 4: delegate to the Worker Pool.
	pool := runner.New(runner.Config{
		Concurrency:      concurrency,
		MaxRequests:      s.cfg.MaxRequestsPerRun,
		MaxDuration:      s.cfg.MaxDuration,
		Sampler:          s.cfg.Sampler(scenario),
		Executor:         s.cfg.Executor,
		Collector:        s.cfg.Collector,
		Dashboard:        s.cfg.Dashboard,
		Logger:           s.cfg.Logger,
		FailureThreshold: s.cfg.FailureThreshold,
	})
	result := pool.Run(ctx)
	metrics.RecordRunCompleted(string(result.State))
	switch result.State {
	case runner.StateCancelled:
		return ctx.Err()
	case runner.StateFailed:
		return result.Err
	}

	// Step 5: snapshot, compute RPS, pick latency proxy, emit exactly once.
	agg, ttftValid, outputValid := s.cfg.Collector.Snapshot()
	runTimeSeconds := result.RunTime.Seconds()
	var rps float64
	if runTimeSeconds > 0 {
		rps = float64(result.TotalRequests) / runTimeSeconds
	}
	latency, proxy := model.SelectLatencyProxy(agg, ttftValid, outputValid)
	if s.cfg.Dashboard != nil {
		s.cfg.Dashboard.UpdateRPSVsLatency(rps, latency, proxy)
	}

	// Step 6: append the completed-run summary to historical_data.
	summary := model.RunSummary{
		Scenario:      scenario,
		Concurrency:   concurrency,
		RunTime:       runTimeSeconds,
		TotalRequests: result.TotalRequests,
		RPS:           rps,
		Latency:       latency,
		LatencyProxy:  proxy,
		Aggregates:    agg,
	}
	if s.cfg.Dashboard != nil {
		s.cfg.Dashboard.AddHistoricalData(summary)
	}

	s.status.ProgressPercentage = float64(cell) / float64(totalCells) * 100
	if s.cfg.Dashboard != nil {
		s.cfg.Dashboard.UpdateProgress(s.status.ProgressPercentage)
	}
	return nil
}

func (s *Scheduler) fail(err error) error {
	s.status.Status = model.StateFailed
	s.status.ErrorMessage = err.Error()
	if s.cfg.Dashboard != nil {
		s.cfg.Dashboard.UpdateBenchmarkStatus(s.status)
	}
	return err
}
