// Package dashboard is the single producer-facing facade the scheduler and
// metrics collector call into; it is the only thing that knows an event bus
// exists. A polymorphic interface keeps panel updates, WebSocket serving, and
// plain state storage separable, so a future terminal or null implementation
// can stand in without touching the scheduler.
package dashboard

import (
	"time"

	"go.uber.org/zap"

	"github.com/basetenlabs/loadbench/internal/eventbus"
	"github.com/basetenlabs/loadbench/internal/model"
)

// Facade is the interface every dashboard backend implements. Streaming is
// the only implementation; a Streaming built over a nil bus drops every
// event and so serves as the null backend. There is no terminal backend.
type Facade interface {
	UpdateBenchmarkStatus(status model.BenchmarkStatus)
	UpdateMetricsPanels(agg model.Aggregates)
	UpdateHistogramPanel(ttft, outputLatency []float64)
	UpdateScatterPlotPanel(ttft, outputLatency, inputThroughput, outputThroughput float64)
	UpdateRPSVsLatency(rps, latency float64, proxy model.LatencyProxy)
	UpdateIterationRPSVsLatency(concurrency int, agg model.Aggregates, runTime float64, totalRequests int, ttftValid, outputValid bool)
	UpdateProgress(percentage float64)
	StartRun(runTime time.Duration, start time.Time, maxRequestsPerRun int)
	HandleSingleRequest(live model.Aggregates, samples model.LiveSamples, totalRequests, errorCode int)
	ResetPlotMetrics()
	ResetRunTracking()
	ResetPanels()
	AddLogMessage(level, message string)
	AddHistoricalData(summary model.RunSummary)
	TaskCreated(runName string)
}

// Streaming is the Facade implementation that publishes every update as a
// StreamEvent onto an eventbus.Bus, for WebSocket dashboard clients.
type Streaming struct {
	bus    *eventbus.Bus
	logger *zap.Logger
}

// New builds a Streaming facade over bus. A nil bus is accepted and turns
// every call into a no-op, for when no dashboard consumer is attached.
func New(bus *eventbus.Bus, logger *zap.Logger) *Streaming {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Streaming{bus: bus, logger: logger}
}

func (s *Streaming) publish(eventType model.EventType, data any) {
	if s.bus == nil {
		s.logger.Debug("dashboard: no event bus attached, dropping event", zap.String("event_type", string(eventType)))
		return
	}
	s.bus.Publish(model.StreamEvent{EventType: eventType, Timestamp: time.Now(), Data: data})
}

func (s *Streaming) UpdateBenchmarkStatus(status model.BenchmarkStatus) {
	s.publish(model.EventStatus, status)
}

func (s *Streaming) UpdateMetricsPanels(agg model.Aggregates) {
	s.publish(model.EventMetrics, agg)
}

type histogramData struct {
	TTFTBuckets          []float64 `json:"ttft_histogram"`
	OutputLatencyBuckets []float64 `json:"output_latency_histogram"`
}

func (s *Streaming) UpdateHistogramPanel(ttft, outputLatency []float64) {
	s.publish(model.EventHistogram, histogramData{TTFTBuckets: ttft, OutputLatencyBuckets: outputLatency})
}

type scatterPoint struct {
	TTFT             float64 `json:"ttft"`
	OutputLatency    float64 `json:"output_latency"`
	InputThroughput  float64 `json:"input_throughput"`
	OutputThroughput float64 `json:"output_throughput"`
}

func (s *Streaming) UpdateScatterPlotPanel(ttft, outputLatency, inputThroughput, outputThroughput float64) {
	s.publish(model.EventScatter, scatterPoint{
		TTFT: ttft, OutputLatency: outputLatency,
		InputThroughput: inputThroughput, OutputThroughput: outputThroughput,
	})
}

type rpsVsLatency struct {
	RPS          float64            `json:"rps"`
	Latency      float64            `json:"latency"`
	LatencyProxy model.LatencyProxy `json:"latency_proxy"`
}

func (s *Streaming) UpdateRPSVsLatency(rps, latency float64, proxy model.LatencyProxy) {
	s.publish(model.EventRPSVsLatency, rpsVsLatency{RPS: rps, Latency: latency, LatencyProxy: proxy})
	s.logger.Debug("rps vs latency update", zap.Float64("rps", rps), zap.Float64("latency", latency), zap.String("proxy", string(proxy)))
}

// UpdateIterationRPSVsLatency computes RPS for a completed scenario x
// concurrency cell and picks the latency proxy via model.SelectLatencyProxy's
// ttft -> output_latency -> e2e_latency fallback chain.
func (s *Streaming) UpdateIterationRPSVsLatency(concurrency int, agg model.Aggregates, runTime float64, totalRequests int, ttftValid, outputValid bool) {
	if runTime <= 0 || totalRequests <= 0 {
		s.logger.Debug("invalid run data for RPS calculation", zap.Float64("run_time", runTime), zap.Int("total_requests", totalRequests))
		return
	}
	rps := float64(totalRequests) / runTime
	latency, proxy := model.SelectLatencyProxy(agg, ttftValid, outputValid)
	if latency <= 0 {
		s.logger.Debug("no valid latency data for iteration", zap.Int("concurrency", concurrency))
		return
	}
	s.UpdateRPSVsLatency(rps, latency, proxy)
}

func (s *Streaming) UpdateProgress(percentage float64) {
	s.publish(model.EventProgress, map[string]float64{"progress": percentage})
}

type runStarted struct {
	RunTimeSeconds    float64   `json:"run_time_seconds"`
	StartTime         time.Time `json:"start_time"`
	MaxRequestsPerRun int       `json:"max_requests_per_run"`
}

func (s *Streaming) StartRun(runTime time.Duration, start time.Time, maxRequestsPerRun int) {
	s.publish(model.EventRunStarted, runStarted{
		RunTimeSeconds:    runTime.Seconds(),
		StartTime:         start,
		MaxRequestsPerRun: maxRequestsPerRun,
	})
}

type requestProcessed struct {
	TotalRequests int       `json:"total_requests"`
	ErrorCode     int       `json:"error_code,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// HandleSingleRequest publishes a request_processed event for every request.
// errorCode is zero for a successful (2xx) request and the HTTP status
// otherwise; only a zero errorCode updates the metrics and histogram panels,
// matching the source's "only stream metrics for successful requests" rule.
func (s *Streaming) HandleSingleRequest(live model.Aggregates, samples model.LiveSamples, totalRequests, errorCode int) {
	if errorCode == 0 {
		s.UpdateMetricsPanels(live)
		s.UpdateHistogramPanel(samples.TTFT, samples.OutputLatency)
	}
	s.publish(model.EventRequestDone, requestProcessed{
		TotalRequests: totalRequests,
		ErrorCode:     errorCode,
		Timestamp:     time.Now(),
	})
}

func (s *Streaming) ResetPlotMetrics() {
	s.publish(model.EventMetricsReset, struct{}{})
}

func (s *Streaming) ResetRunTracking() {
	// No event bus side effect: this clears in-process RPS-calculation state,
	// which this facade keeps no copy of (the caller, the scheduler, owns it
	// directly).
}

func (s *Streaming) ResetPanels() {
	s.publish(model.EventPanelsReset, struct{}{})
}

type logMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (s *Streaming) AddLogMessage(level, message string) {
	s.publish(model.EventLog, logMessage{Level: level, Message: message})
}

func (s *Streaming) AddHistoricalData(summary model.RunSummary) {
	if s.bus != nil {
		s.bus.AppendHistorical(summary)
	}
	s.publish(model.EventHistoricalData, summary)
}

func (s *Streaming) TaskCreated(runName string) {
	s.publish(model.EventTaskCreated, map[string]string{"run_name": runName})
}
