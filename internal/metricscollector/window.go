package metricscollector

import (
	"sort"
	"sync"

	"github.com/basetenlabs/loadbench/internal/model"
)

// windowCap bounds each sliding window at 1000 samples, old samples evicted
// FIFO as new ones arrive.
const windowCap = 1000

// slidingWindow is a capped ring buffer of float64 samples with an
// atomically-consistent stats snapshot: a window update and its stats
// snapshot always happen under the same lock.
type slidingWindow struct {
	mu      sync.Mutex
	samples []float64
	next    int
	filled  bool
}

func newSlidingWindow() *slidingWindow {
	return &slidingWindow{samples: make([]float64, 0, windowCap)}
}

func (w *slidingWindow) add(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) < windowCap {
		w.samples = append(w.samples, v)
		return
	}
	w.filled = true
	w.samples[w.next] = v
	w.next = (w.next + 1) % windowCap
}

func (w *slidingWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = w.samples[:0]
	w.next = 0
	w.filled = false
}

// stats returns a Stats snapshot and whether the window holds any sample at
// all (an empty window is "not valid" for latency-proxy selection purposes).
func (w *slidingWindow) stats() (model.Stats, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return model.Stats{}, false
	}

	sorted := make([]float64, len(w.samples))
	copy(sorted, w.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return model.Stats{
		Mean: sum / float64(len(sorted)),
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		P50:  percentile(sorted, 0.50),
		P90:  percentile(sorted, 0.90),
		P95:  percentile(sorted, 0.95),
		P99:  percentile(sorted, 0.99),
	}, true
}

// rawSamples returns a copy of the values currently buffered, in ring order
// rather than insertion order; sufficient for histogram bucketing, which
// doesn't care about sample sequence.
func (w *slidingWindow) rawSamples() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]float64, len(w.samples))
	copy(out, w.samples)
	return out
}

// percentile linearly interpolates between the two adjacent ranks around
// p*(n-1) in an already-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
