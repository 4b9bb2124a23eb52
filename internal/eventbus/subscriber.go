package eventbus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/basetenlabs/loadbench/internal/metrics"
	"github.com/basetenlabs/loadbench/internal/model"
)

// Subscriber is one WebSocket client's outbound queue. Publish never blocks
// on a slow subscriber: enqueue drops the OLDEST queued event once the
// subscriber's own bounded queue is full (see DESIGN.md for why this beats
// dropping the newest via a select-default channel send).
type Subscriber struct {
	id     string
	logger *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []model.StreamEvent
	cap    int
	closed bool

	out chan model.StreamEvent
}

func newSubscriber(id string, queueCap int, logger *zap.Logger) *Subscriber {
	s := &Subscriber{
		id:     id,
		logger: logger,
		queue:  make([]model.StreamEvent, 0, queueCap),
		cap:    queueCap,
		out:    make(chan model.StreamEvent, 1),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// Events is the channel the WebSocket handler's select loop reads from.
func (s *Subscriber) Events() <-chan model.StreamEvent { return s.out }

func (s *Subscriber) enqueue(evt model.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.queue) >= s.cap {
		dropped := s.queue[0]
		s.queue = s.queue[1:]
		if isCriticalEvent(dropped.EventType) {
			s.logger.Error("dropped critical event: subscriber queue full",
				zap.String("subscriber", s.id), zap.String("event_type", string(dropped.EventType)))
		} else {
			s.logger.Debug("dropped oldest queued event: subscriber slow",
				zap.String("subscriber", s.id), zap.String("event_type", string(dropped.EventType)))
		}
		metrics.RecordEventDropped(string(dropped.EventType))
	}
	s.queue = append(s.queue, evt)
	s.cond.Signal()
}

// pump drains the queue into out, one event at a time, blocking on a slow
// consumer without blocking enqueue (enqueue only ever touches the queue).
func (s *Subscriber) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			close(s.out)
			return
		}
		evt := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.out <- evt
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// isCriticalEvent flags the event types whose loss is worth escalating in
// the drop log above debug level.
func isCriticalEvent(t model.EventType) bool {
	switch t {
	case model.EventStatus, model.EventRunStarted, model.EventPanelsReset, model.EventMetricsReset:
		return true
	default:
		return false
	}
}
