// Package runner implements the worker pool / run controller: N
// tail-launching goroutines driving one (scenario, concurrency) cell until a
// termination predicate fires. Persistent per-worker goroutines avoid a
// pool-library dependency; the optional run-failure predicate is a plain
// atomic consecutive-5xx counter rather than a standalone
// breaker state machine.
package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/basetenlabs/loadbench/internal/dashboard"
	"github.com/basetenlabs/loadbench/internal/executor"
	"github.com/basetenlabs/loadbench/internal/metricscollector"
	"github.com/basetenlabs/loadbench/internal/model"
	"github.com/basetenlabs/loadbench/internal/sampler"
)

// State enumerates the per-run state machine:
// queued -> starting -> running -> draining -> done|failed|cancelled.
type State string

const (
	StateQueued    State = "queued"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateDraining  State = "draining"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Config wires one Pool. Every field is resolved once at construction, no
// global mutable state.
type Config struct {
	Concurrency int
	// MaxRequests is the run's request-count termination predicate. Zero is
	// a legitimate boundary value, not "unbounded": a run configured with
	// MaxRequests == 0 completes immediately in StateDone with zero
	// requests issued and zero metrics recorded, never launching a worker.
	MaxRequests int
	MaxDuration time.Duration // 0 means unbounded (request-count-bound only)
	Sampler     sampler.Sampler
	Executor    *executor.Executor
	Collector   *metricscollector.Collector
	Dashboard   dashboard.Facade
	Logger      *zap.Logger

	// FailureThreshold, when > 0, moves the run to StateFailed once this many
	// consecutive 5xx responses are observed. Zero disables this predicate;
	// a run then only ever ends in done/cancelled.
	FailureThreshold int
}

// Result summarizes one completed run.
type Result struct {
	State         State
	TotalRequests int
	RunTime       time.Duration
	Err           error
}

// Pool drives Config.Concurrency tail-launching workers against one cell.
type Pool struct {
	cfg   Config
	state atomic.Value // State
}

// New builds a Pool in StateQueued.
func New(cfg Config) *Pool {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	p := &Pool{cfg: cfg}
	p.state.Store(StateQueued)
	return p
}

// State reports the pool's current state, safe to call concurrently with Run.
func (p *Pool) State() State { return p.state.Load().(State) }

func (p *Pool) setState(s State) { p.state.Store(s) }

// Run drives the pool until a termination predicate fires or ctx is
// cancelled by the caller, then waits for any in-flight requests to drain
// before returning.
func (p *Pool) Run(ctx context.Context) Result {
	p.setState(StateStarting)
	start := time.Now()

	if p.cfg.Dashboard != nil {
		p.cfg.Dashboard.StartRun(p.cfg.MaxDuration, start, p.cfg.MaxRequests)
	}

	if p.cfg.MaxRequests == 0 {
		p.setState(StateDraining)
		p.setState(StateDone)
		return Result{State: StateDone, TotalRequests: 0, RunTime: time.Since(start)}
	}

	runCtx := ctx
	var cancelDeadline context.CancelFunc
	if p.cfg.MaxDuration > 0 {
		runCtx, cancelDeadline = context.WithTimeout(ctx, p.cfg.MaxDuration)
		defer cancelDeadline()
	}
	runCtx, cancelRun := context.WithCancel(runCtx)
	defer cancelRun()

	var issued atomic.Int64
	var completed atomic.Int64
	var consecutive5xx atomic.Int64
	var failed atomic.Bool
	var wg sync.WaitGroup

	p.setState(StateRunning)
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go p.worker(runCtx, cancelRun, &wg, &issued, &completed, &consecutive5xx, &failed)
	}

	wg.Wait()

	runTime := time.Since(start)
	total := int(completed.Load())

	var state State
	var err error
	switch {
	case failed.Load():
		state = StateFailed
		err = fmt.Errorf("runner: %d consecutive 5xx responses reached failure threshold %d", consecutive5xx.Load(), p.cfg.FailureThreshold)
	case ctx.Err() == context.Canceled:
		state = StateCancelled
	default:
		state = StateDone
	}
	p.setState(state)

	return Result{State: state, TotalRequests: total, RunTime: runTime, Err: err}
}

// worker tail-launches: after each completed request it re-checks the
// termination predicates and reserves one of the run's MaxRequests slots
// before sampling the next one, and exactly N workers run concurrently for
// the lifetime of the run, never more. The first worker to stop moves the
// run from running to draining while the others finish in-flight requests.
func (p *Pool) worker(ctx context.Context, cancelRun context.CancelFunc, wg *sync.WaitGroup, issued, completed, consecutive5xx *atomic.Int64, failed *atomic.Bool) {
	defer wg.Done()
	defer p.state.CompareAndSwap(StateRunning, StateDraining)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if issued.Add(1) > int64(p.cfg.MaxRequests) {
			return
		}

		resp := func() (resp model.UserResponse) {
			defer func() {
				if r := recover(); r != nil {
					p.cfg.Logger.Error("runner: request task panicked", zap.Any("panic", r))
					resp = model.UserResponse{StatusCode: -1, ErrorMessage: fmt.Sprint(r)}
				}
			}()
			return p.cfg.Executor.Do(ctx, p.cfg.Sampler.Next())
		}()
		n := completed.Add(1)

		if resp.StatusCode >= 500 {
			streak := consecutive5xx.Add(1)
			if p.cfg.FailureThreshold > 0 && streak >= int64(p.cfg.FailureThreshold) {
				failed.Store(true)
				cancelRun()
			}
		} else {
			consecutive5xx.Store(0)
		}

		var point model.ScatterPoint
		var pointValid bool
		if p.cfg.Collector != nil {
			point, pointValid = p.cfg.Collector.Record(resp)
		}

		if p.cfg.Dashboard != nil {
			errorCode := 0
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				errorCode = resp.StatusCode
			}
			var live model.Aggregates
			var samples model.LiveSamples
			if errorCode == 0 && p.cfg.Collector != nil {
				live, _, _ = p.cfg.Collector.Snapshot()
				samples = p.cfg.Collector.Samples()
			}
			p.cfg.Dashboard.HandleSingleRequest(live, samples, int(n), errorCode)
			if pointValid {
				p.cfg.Dashboard.UpdateScatterPlotPanel(point.TTFT, point.OutputLatency, point.InputThroughput, point.OutputThroughput)
			}
		}
	}
}
