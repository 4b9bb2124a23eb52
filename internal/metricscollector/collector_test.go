package metricscollector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/basetenlabs/loadbench/internal/model"
)

func mkResponse(status int, start time.Time, ttftMs, endMs int64, tokens int) model.UserResponse {
	r := model.UserResponse{
		StatusCode:     status,
		StartTime:      start,
		EndTime:        start.Add(time.Duration(endMs) * time.Millisecond),
		TokensReceived: tokens,
	}
	if ttftMs >= 0 {
		r.TimeAtFirstToken = start.Add(time.Duration(ttftMs) * time.Millisecond)
	}
	return r
}

func TestCollectorRecordSuccessPopulatesWindows(t *testing.T) {
	c := New()
	start := time.Now()
	c.Record(mkResponse(200, start, 10, 100, 20))

	agg, ttftValid, outputValid := c.Snapshot()
	assert.True(t, ttftValid)
	assert.True(t, outputValid)
	assert.InDelta(t, 0.010, agg.TTFT.Mean, 0.0005)
	assert.InDelta(t, 0.1, agg.E2ELatency.Mean, 0.0005)
	assert.Greater(t, agg.OutputThroughput.Mean, 0.0)
}

func TestCollectorOutputLatencyIsPerOutputToken(t *testing.T) {
	c := New()
	start := time.Now()
	// ttft=10ms, end=100ms -> 90ms of output time spread across 20 tokens,
	// i.e. 19 post-first-token intervals.
	c.Record(mkResponse(200, start, 10, 100, 20))

	agg, _, outputValid := c.Snapshot()
	assert.True(t, outputValid)
	assert.InDelta(t, 0.090/19, agg.OutputLatency.Mean, 1e-6)
}

func TestCollectorOutputLatencySingleTokenDivisorFloorsAtOne(t *testing.T) {
	c := New()
	start := time.Now()
	// tokens_received-1 would be 0 (or negative); divisor must floor at 1.
	c.Record(mkResponse(200, start, 10, 100, 1))

	agg, _, outputValid := c.Snapshot()
	assert.True(t, outputValid)
	assert.InDelta(t, 0.090, agg.OutputLatency.Mean, 1e-6)
}

func TestCollectorErrorResponsesDoNotFeedWindows(t *testing.T) {
	c := New()
	start := time.Now()
	c.Record(mkResponse(500, start, -1, 50, 0))

	_, ttftValid, outputValid := c.Snapshot()
	assert.False(t, ttftValid)
	assert.False(t, outputValid)

	ok2xx, err4xx, err5xx, other := c.ErrorCounts()
	assert.Equal(t, 0, ok2xx)
	assert.Equal(t, 0, err4xx)
	assert.Equal(t, 1, err5xx)
	assert.Equal(t, 0, other)
}

func TestCollectorErrorClassCounters(t *testing.T) {
	c := New()
	start := time.Now()
	c.Record(mkResponse(200, start, 1, 2, 1))
	c.Record(mkResponse(404, start, -1, 1, 0))
	c.Record(mkResponse(503, start, -1, 1, 0))
	c.Record(mkResponse(-1, start, -1, 1, 0))

	ok2xx, err4xx, err5xx, other := c.ErrorCounts()
	assert.Equal(t, 1, ok2xx)
	assert.Equal(t, 1, err4xx)
	assert.Equal(t, 1, err5xx)
	assert.Equal(t, 1, other)
}

func TestCollectorResetClearsWindowsAndCounters(t *testing.T) {
	c := New()
	start := time.Now()
	c.Record(mkResponse(200, start, 5, 50, 10))
	c.Reset()

	_, ttftValid, _ := c.Snapshot()
	assert.False(t, ttftValid)

	ok2xx, _, _, _ := c.ErrorCounts()
	assert.Equal(t, 0, ok2xx)
}

func TestSlidingWindowCapEvictsOldest(t *testing.T) {
	w := newSlidingWindow()
	for i := 0; i < windowCap+10; i++ {
		w.add(float64(i))
	}
	stats, ok := w.stats()
	assert.True(t, ok)
	assert.Equal(t, float64(windowCap+9), stats.Max)
	assert.Equal(t, float64(10), stats.Min)
}

func TestPercentileMonotonic(t *testing.T) {
	w := newSlidingWindow()
	for i := 1; i <= 100; i++ {
		w.add(float64(i))
	}
	stats, ok := w.stats()
	assert.True(t, ok)
	assert.LessOrEqual(t, stats.P50, stats.P90)
	assert.LessOrEqual(t, stats.P90, stats.P95)
	assert.LessOrEqual(t, stats.P95, stats.P99)
}
