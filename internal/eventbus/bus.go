// Package eventbus fans out StreamEvents to connected dashboard clients and
// retains bounded replay history for newly-connecting ones.
//
// Every subscriber gets its own bounded ring buffer plus a writer goroutine,
// so a slow client's backpressure drops its OLDEST queued event rather than
// ever blocking the publisher; severity-escalated drop logging flags which
// event types are costliest to lose (see DESIGN.md for the full rationale).
package eventbus

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/basetenlabs/loadbench/internal/metrics"
	"github.com/basetenlabs/loadbench/internal/model"
)

const (
	metricsCap   = 1000
	logsCap      = 1000
	statusCap    = 1000
	scatterCap   = 1000
	histogramCap = 100

	defaultSubscriberQueueCap = 256
)

// Bus is the single producer-facing event stream for one benchmark run. All
// methods are goroutine-safe.
type Bus struct {
	logger *zap.Logger

	metrics   *ringBuffer
	logs      *ringBuffer
	status    *ringBuffer
	scatter   *ringBuffer
	histogram *ringBuffer

	mu         sync.RWMutex
	historical []model.RunSummary
	subs       map[string]*Subscriber
}

// New builds an empty Bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger:    logger,
		metrics:   newRingBuffer(metricsCap),
		logs:      newRingBuffer(logsCap),
		status:    newRingBuffer(statusCap),
		scatter:   newRingBuffer(scatterCap),
		histogram: newRingBuffer(histogramCap),
		subs:      make(map[string]*Subscriber),
	}
}

// Publish records evt into the appropriate capped buffer (when its type has
// one) and fans it out to every live subscriber without blocking.
func (b *Bus) Publish(evt model.StreamEvent) {
	switch evt.EventType {
	case model.EventMetrics:
		b.metrics.add(evt)
	case model.EventLog:
		b.logs.add(evt)
	case model.EventStatus:
		b.status.add(evt)
	case model.EventScatter:
		b.scatter.add(evt)
	case model.EventHistogram:
		b.histogram.add(evt)
	}

	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.enqueue(evt)
	}
}

// AppendHistorical appends one completed run to the unbounded historical
// data list, which is never truncated.
func (b *Bus) AppendHistorical(r model.RunSummary) {
	b.mu.Lock()
	b.historical = append(b.historical, r)
	b.mu.Unlock()
}

// HistoricalData returns a copy of the full run history.
func (b *Bus) HistoricalData() []model.RunSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.RunSummary, len(b.historical))
	copy(out, b.historical)
	return out
}

// LatestStatus returns the most recent status event retained in the status
// history, if any.
func (b *Bus) LatestStatus() (model.StreamEvent, bool) {
	return b.status.latest()
}

// History returns the replay snapshot across every capped buffer, used by
// the /api/history endpoint.
func (b *Bus) History() map[model.EventType][]model.StreamEvent {
	return map[model.EventType][]model.StreamEvent{
		model.EventMetrics:   b.metrics.snapshot(),
		model.EventLog:       b.logs.snapshot(),
		model.EventStatus:    b.status.snapshot(),
		model.EventScatter:   b.scatter.snapshot(),
		model.EventHistogram: b.histogram.snapshot(),
	}
}

// Subscribe registers a new client and returns its Subscriber (read events
// from its Events channel) plus an unsubscribe function the caller must
// defer.
func (b *Bus) Subscribe() (*Subscriber, func()) {
	id := uuid.NewString()
	s := newSubscriber(id, defaultSubscriberQueueCap, b.logger)

	b.mu.Lock()
	b.subs[id] = s
	count := len(b.subs)
	b.mu.Unlock()
	metrics.SetConnectedClients(count)

	return s, func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	s, ok := b.subs[id]
	delete(b.subs, id)
	count := len(b.subs)
	b.mu.Unlock()
	metrics.SetConnectedClients(count)
	if ok {
		s.close()
	}
}

// SubscriberCount reports the number of currently connected clients, mirrored
// into a Prometheus gauge by internal/metrics.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
