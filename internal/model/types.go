// Package model holds the data types shared across the load-generation and
// telemetry pipeline: requests/responses produced per sample, the live
// aggregates the collector maintains, and the events the bus fans out.
package model

import "time"

// RequestKind selects which payload shape a UserRequest carries.
type RequestKind string

const (
	RequestChat       RequestKind = "chat"
	RequestImageChat  RequestKind = "image_chat"
	RequestEmbeddings RequestKind = "embeddings"
)

// UserRequest is built once per sample by the Sampler and consumed by exactly
// one Executor call.
type UserRequest struct {
	Kind              RequestKind
	Model             string
	Prompt            string
	ImageContent      []string // data URLs, populated when Kind == RequestImageChat
	NumPrefillTokens  int
	MaxTokens         int
	AdditionalParams  map[string]any
}

// UserResponse is built exactly once per request by the Executor and consumed
// once by the Metrics Collector.
//
// Invariant: if StatusCode == 200 then StartTime <= TimeAtFirstToken <=
// EndTime and TokensReceived >= 0.
type UserResponse struct {
	StatusCode       int
	StartTime        time.Time
	EndTime          time.Time
	TimeAtFirstToken time.Time // zero value means "not set"
	TokensReceived   int
	NumPrefillTokens int
	HasPrefillTokens bool
	GeneratedText    string
	FinishReason     string
	ErrorMessage     string
}

// HasTTFT reports whether TimeAtFirstToken was ever set.
func (r *UserResponse) HasTTFT() bool {
	return !r.TimeAtFirstToken.IsZero()
}

// Stats is the summary block computed over a sliding window.
type Stats struct {
	Mean float64
	Min  float64
	Max  float64
	P50  float64
	P90  float64
	P95  float64
	P99  float64
}

// Aggregates bundles the five named Stats blocks LiveMetrics exposes.
type Aggregates struct {
	TTFT             Stats
	InputThroughput  Stats
	OutputThroughput Stats
	OutputLatency    Stats
	E2ELatency       Stats
}

// ScatterPoint is one request's derived scalars, fed to the scatter-plot
// panel as a single vec4 point per successful request.
type ScatterPoint struct {
	TTFT             float64
	OutputLatency    float64
	InputThroughput  float64
	OutputThroughput float64
}

// LiveSamples carries the raw sliding-window samples behind two of
// Aggregates' Stats blocks, for histogram bucketing (which needs the
// individual values, not just their summary statistics).
type LiveSamples struct {
	TTFT          []float64
	OutputLatency []float64
}

// LatencyProxy names which field of Aggregates was used as the RPS-vs-latency
// proxy, following a deterministic ttft -> output_latency -> e2e_latency
// preference order.
type LatencyProxy string

const (
	LatencyProxyTTFT          LatencyProxy = "ttft"
	LatencyProxyOutputLatency LatencyProxy = "output_latency"
	LatencyProxyE2ELatency    LatencyProxy = "e2e_latency"
)

// SelectLatencyProxy implements the deterministic preference order
// ttft.mean -> output_latency.mean -> e2e_latency.mean. A Stats block counts
// as "present" once at least one sample has been admitted (tracked by the
// caller; this helper only picks among values the caller asserts are valid).
func SelectLatencyProxy(agg Aggregates, ttftValid, outputValid bool) (float64, LatencyProxy) {
	if ttftValid {
		return agg.TTFT.Mean, LatencyProxyTTFT
	}
	if outputValid {
		return agg.OutputLatency.Mean, LatencyProxyOutputLatency
	}
	return agg.E2ELatency.Mean, LatencyProxyE2ELatency
}

// BenchmarkState enumerates BenchmarkStatus.Status values.
type BenchmarkState string

const (
	StateIdle         BenchmarkState = "idle"
	StateInitializing BenchmarkState = "initializing"
	StateRunning       BenchmarkState = "running"
	StateCompleted     BenchmarkState = "completed"
	StateFailed        BenchmarkState = "failed"
)

// BenchmarkStatus is the mutable singleton the Scheduler owns and the
// Dashboard Facade reads/broadcasts.
type BenchmarkStatus struct {
	Status              BenchmarkState `json:"status"`
	CurrentScenario     string         `json:"current_scenario,omitempty"`
	CurrentIteration    int            `json:"current_iteration"`
	TotalScenarios      int            `json:"total_scenarios"`
	TotalIterations     int            `json:"total_iterations"`
	CurrentConcurrency  int            `json:"current_concurrency"`
	ProgressPercentage  float64        `json:"progress_percentage"`
	StartTime           time.Time      `json:"start_time"`
	EstimatedEndTime    *time.Time     `json:"estimated_end_time,omitempty"`
	ErrorMessage        string         `json:"error_message,omitempty"`
}

// EventType enumerates StreamEvent.EventType values.
type EventType string

const (
	EventStatus         EventType = "status"
	EventMetrics        EventType = "metrics"
	EventHistogram      EventType = "histogram"
	EventScatter        EventType = "scatter"
	EventRPSVsLatency   EventType = "rps_vs_latency"
	EventProgress       EventType = "progress"
	EventLog            EventType = "log"
	EventTaskCreated    EventType = "task_created"
	EventRunStarted     EventType = "run_started"
	EventRequestDone    EventType = "request_processed"
	EventPanelsReset    EventType = "panels_reset"
	EventMetricsReset   EventType = "metrics_reset"
	EventHeartbeat      EventType = "heartbeat"
	EventHistoricalData EventType = "historical_data"
)

// StreamEvent is the append-only unit the Event Bus broadcasts and retains.
// Data carries the payload for EventType, typically a small per-type struct
// built by the dashboard facade.
type StreamEvent struct {
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// RunSummary is a completed-run record appended to the historical_data list.
type RunSummary struct {
	Scenario      string       `json:"scenario"`
	Concurrency   int          `json:"concurrency"`
	RunTime       float64      `json:"run_time"`
	TotalRequests int          `json:"total_requests"`
	RPS           float64      `json:"rps"`
	Latency       float64      `json:"latency"`
	LatencyProxy  LatencyProxy `json:"latency_proxy"`
	Aggregates    Aggregates   `json:"aggregates"`
}
