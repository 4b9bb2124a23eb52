// Package metricscollector maintains the sliding-window latency/throughput
// statistics and error-class counters the scheduler snapshots once per
// scenario x concurrency cell. The append/evict/cap shape follows the same
// bounded ring-buffer discipline as the event bus's replay history.
package metricscollector

import (
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/basetenlabs/loadbench/internal/model"
)

// Collector aggregates UserResponses into the five Stats blocks
// model.Aggregates bundles, plus 2XX/4XX/5XX/other counters.
type Collector struct {
	ttft             *slidingWindow
	inputThroughput  *slidingWindow
	outputThroughput *slidingWindow
	outputLatency    *slidingWindow
	e2eLatency       *slidingWindow

	mu     sync.Mutex
	counts errorCounts
}

type errorCounts struct {
	ok2xx  int
	err4xx int
	err5xx int
	other  int
}

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadbench_requests_total",
			Help: "Total number of sample requests completed, by status class",
		},
		[]string{"status_class"},
	)

	ttftSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loadbench_ttft_seconds",
			Help:    "Time to first token in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	e2eLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loadbench_e2e_latency_seconds",
			Help:    "End-to-end request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// New builds an empty Collector.
func New() *Collector {
	return &Collector{
		ttft:             newSlidingWindow(),
		inputThroughput:  newSlidingWindow(),
		outputThroughput: newSlidingWindow(),
		outputLatency:    newSlidingWindow(),
		e2eLatency:       newSlidingWindow(),
	}
}

// Record admits one completed UserResponse. Non-2xx responses only update
// the error-class counters; only successful responses feed the latency and
// throughput windows. It returns this request's own derived scalars as a
// ScatterPoint for the caller to feed the scatter-plot panel, and whether
// that point is valid (TTFT was captured).
func (c *Collector) Record(resp model.UserResponse) (model.ScatterPoint, bool) {
	class := statusClass(resp.StatusCode)

	c.mu.Lock()
	switch class {
	case "2xx":
		c.counts.ok2xx++
	case "4xx":
		c.counts.err4xx++
	case "5xx":
		c.counts.err5xx++
	default:
		c.counts.other++
	}
	c.mu.Unlock()

	requestsTotal.WithLabelValues(class).Inc()

	if class != "2xx" {
		return model.ScatterPoint{}, false
	}

	e2e := resp.EndTime.Sub(resp.StartTime).Seconds()
	if e2e > 0 {
		c.e2eLatency.add(e2e)
		e2eLatencySeconds.Observe(e2e)
	}

	var point model.ScatterPoint
	valid := false

	if resp.HasTTFT() {
		ttft := resp.TimeAtFirstToken.Sub(resp.StartTime).Seconds()
		if ttft >= 0 {
			c.ttft.add(ttft)
			ttftSeconds.Observe(ttft)
			point.TTFT = ttft
			valid = true
		}

		outLatency := resp.EndTime.Sub(resp.TimeAtFirstToken).Seconds()
		if outLatency > 0 {
			perToken := outLatency / math.Max(float64(resp.TokensReceived-1), 1)
			c.outputLatency.add(perToken)
			point.OutputLatency = perToken
			if resp.TokensReceived > 0 {
				outputThroughput := float64(resp.TokensReceived) / outLatency
				c.outputThroughput.add(outputThroughput)
				point.OutputThroughput = outputThroughput
			}
		}

		if resp.HasPrefillTokens && resp.NumPrefillTokens > 0 && ttft > 0 {
			inputThroughput := float64(resp.NumPrefillTokens) / ttft
			c.inputThroughput.add(inputThroughput)
			point.InputThroughput = inputThroughput
		}
	}

	return point, valid
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "other"
	}
}

// Snapshot returns the current Aggregates plus validity flags for the TTFT
// and output-latency windows, which model.SelectLatencyProxy consumes to
// pick the RPS-vs-latency proxy.
func (c *Collector) Snapshot() (agg model.Aggregates, ttftValid, outputValid bool) {
	var ok bool
	agg.TTFT, ttftValid = c.ttft.stats()
	agg.InputThroughput, _ = c.inputThroughput.stats()
	agg.OutputThroughput, _ = c.outputThroughput.stats()
	agg.OutputLatency, ok = c.outputLatency.stats()
	outputValid = ok
	agg.E2ELatency, _ = c.e2eLatency.stats()
	return agg, ttftValid, outputValid
}

// Samples returns a copy of the raw ttft and output-latency windows, for the
// dashboard's histogram panel, which buckets individual samples rather than
// summary statistics.
func (c *Collector) Samples() model.LiveSamples {
	return model.LiveSamples{
		TTFT:          c.ttft.rawSamples(),
		OutputLatency: c.outputLatency.rawSamples(),
	}
}

// ErrorCounts reports the 2xx/4xx/5xx/other totals accumulated since the
// last Reset.
func (c *Collector) ErrorCounts() (ok2xx, err4xx, err5xx, other int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts.ok2xx, c.counts.err4xx, c.counts.err5xx, c.counts.other
}

// Reset clears all windows and counters, called once per scenario x
// concurrency cell.
func (c *Collector) Reset() {
	c.ttft.reset()
	c.inputThroughput.reset()
	c.outputThroughput.reset()
	c.outputLatency.reset()
	c.e2eLatency.reset()

	c.mu.Lock()
	c.counts = errorCounts{}
	c.mu.Unlock()
}
