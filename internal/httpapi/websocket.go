package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/basetenlabs/loadbench/internal/model"
)

const heartbeatInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inboundMessage is the shape of a client->server WS text frame.
type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// handleWebSocket implements the full connection lifecycle: accept -> status
// -> historical_data -> select{bus event, inbound message} -> heartbeat on
// 30s silence -> disconnect.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket: upgrade failed", zap.Error(err))
		return
	}
	clientID := uuid.NewString()
	logger := s.logger.With(zap.String("ws_client", clientID))
	defer conn.Close()

	sub, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	logger.Debug("websocket: client connected")

	// Step 2: current BenchmarkStatus.
	if err := s.sendJSON(conn, model.StreamEvent{
		EventType: model.EventStatus,
		Timestamp: time.Now(),
		Data:      s.scheduler.Status(),
	}); err != nil {
		return
	}

	// Step 3: historical_data carrying every ring buffer plus current status.
	if err := s.sendJSON(conn, model.StreamEvent{
		EventType: model.EventHistoricalData,
		Timestamp: time.Now(),
		Data: historySnapshot{
			Status:  s.scheduler.Status(),
			History: s.bus.History(),
		},
	}); err != nil {
		return
	}

	inbound := make(chan inboundMessage)
	readErrs := make(chan error, 1)
	go s.readLoop(conn, logger, inbound, readErrs)

	lastSent := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := s.sendJSON(conn, evt); err != nil {
				logger.Debug("websocket: send failed, disconnecting", zap.Error(err))
				return
			}
			lastSent = time.Now()

		case msg, ok := <-inbound:
			if !ok {
				logger.Debug("websocket: client disconnected")
				return
			}
			if err := s.handleInbound(conn, msg); err != nil {
				logger.Debug("websocket: inbound handling failed", zap.Error(err))
				return
			}
			lastSent = time.Now()

		case err := <-readErrs:
			logger.Debug("websocket: read loop exited", zap.Error(err))
			return

		case <-ticker.C:
			if time.Since(lastSent) >= heartbeatInterval {
				if err := s.sendJSON(conn, model.StreamEvent{
					EventType: model.EventHeartbeat,
					Timestamp: time.Now(),
				}); err != nil {
					return
				}
				lastSent = time.Now()
			}
		}
	}
}

// readLoop pumps inbound client frames onto a channel so the main select
// loop can race them against bus events without blocking on either.
func (s *Server) readLoop(conn *websocket.Conn, logger *zap.Logger, out chan<- inboundMessage, errs chan<- error) {
	defer close(out)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errs <- err
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("websocket: malformed inbound JSON, ignored", zap.Error(err))
			continue
		}
		out <- msg
	}
}

// handleInbound dispatches one inbound message to its correlated reply
// event. update_parameters/start_benchmark have no concrete
// scenario-mutation semantics in this core (sampler/scenario configuration
// is an external collaborator) — each still gets its acknowledgement event
// so a client's request/response contract holds.
func (s *Server) handleInbound(conn *websocket.Conn, msg inboundMessage) error {
	switch msg.Type {
	case "get_parameters":
		return s.sendJSON(conn, model.StreamEvent{
			EventType: "current_parameters",
			Timestamp: time.Now(),
			Data:      s.scheduler.Status(),
		})
	case "update_parameters":
		return s.sendJSON(conn, model.StreamEvent{
			EventType: "parameter_update_confirmed",
			Timestamp: time.Now(),
			Data:      msg.Payload,
		})
	case "start_benchmark":
		return s.sendJSON(conn, model.StreamEvent{
			EventType: "benchmark_start_requested",
			Timestamp: time.Now(),
			Data:      msg.Payload,
		})
	default:
		s.logger.Debug("websocket: unknown inbound message type", zap.String("type", msg.Type))
		return nil
	}
}

func (s *Server) sendJSON(conn *websocket.Conn, v any) error {
	return conn.WriteJSON(v)
}
