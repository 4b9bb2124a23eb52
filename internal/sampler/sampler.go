// Package sampler produces the UserRequest each worker-pool iteration feeds
// to the executor. Scenario-specific sampling (prompt corpora, image
// datasets, token-length distributions) is out of scope here — the sampler
// is an opaque capability the core calls through a narrow interface, leaving
// production scenario semantics to be layered on separately.
package sampler

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/basetenlabs/loadbench/internal/model"
)

// Sampler produces one UserRequest per call. Implementations decide their
// own prompt/scenario semantics; the core only needs a Next. Next is called
// concurrently by up to Concurrency worker goroutines per run (see
// internal/runner), so every implementation must be safe for concurrent use.
type Sampler interface {
	Next() model.UserRequest
}

// Fixed replays the same UserRequest every call, useful for benchmarks that
// intentionally measure one fixed-shape prompt and for tests driving the
// pipeline end-to-end. Immutable after construction, so it needs no locking.
type Fixed struct {
	Request model.UserRequest
}

func (f Fixed) Next() model.UserRequest { return f.Request }

// RoundRobin cycles through a fixed pool of requests, useful for scenarios
// with a handful of representative prompts rather than one. The cursor is an
// atomic counter since Next is called from every worker goroutine in a run.
type RoundRobin struct {
	Requests []model.UserRequest
	i        atomic.Int64
}

func NewRoundRobin(requests []model.UserRequest) *RoundRobin {
	return &RoundRobin{Requests: requests}
}

func (r *RoundRobin) Next() model.UserRequest {
	if len(r.Requests) == 0 {
		return model.UserRequest{}
	}
	idx := r.i.Add(1) - 1
	return r.Requests[idx%int64(len(r.Requests))]
}

// UniformRandom draws uniformly at random from a fixed pool of requests on
// every call — the reference sampler sufficient to drive concurrent load
// end-to-end in tests without committing to any particular scenario's
// prompt-corpus or token-length distribution (that remains an external
// collaborator per spec.md §1). math/rand/v2's package-level IntN is safe
// for concurrent use, so UniformRandom needs no locking of its own.
type UniformRandom struct {
	Requests []model.UserRequest
}

func NewUniformRandom(requests []model.UserRequest) UniformRandom {
	return UniformRandom{Requests: requests}
}

func (u UniformRandom) Next() model.UserRequest {
	if len(u.Requests) == 0 {
		return model.UserRequest{}
	}
	return u.Requests[rand.IntN(len(u.Requests))]
}
