// Package httpapi is the streaming server: the HTTP + WS surface clients use
// to read benchmark status/history and tail the live event stream. One
// Server whose handler methods are composed onto a mux via RegisterRoutes; the WS
// lifecycle is accept -> send initial state -> subscribe -> select{bus,
// inbound} -> heartbeat -> disconnect.
package httpapi

import (
	"embed"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/basetenlabs/loadbench/internal/eventbus"
	"github.com/basetenlabs/loadbench/internal/model"
	"github.com/basetenlabs/loadbench/internal/scheduler"
)

//go:embed fallback.html
var fallbackFS embed.FS

// Server serves status/history/historical-data/connection-info/metrics HTTP
// endpoints, the /ws live stream, and a fallback HTML page when no built
// frontend is embedded — a minimal stand-in, not a built UI.
type Server struct {
	bus       *eventbus.Bus
	scheduler *scheduler.Scheduler
	logger    *zap.Logger

	host string
	port int
}

// New builds a Server. host/port are only used to compute
// /api/connection-info's derived URLs; the caller still owns binding the
// actual net/http.Server to an address.
func New(bus *eventbus.Bus, sched *scheduler.Scheduler, host string, port int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{bus: bus, scheduler: sched, host: host, port: port, logger: logger}
}

// RegisterRoutes wires every endpoint onto mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/historical-data", s.handleHistoricalData)
	mux.HandleFunc("/api/connection-info", s.handleConnectionInfo)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	b, err := fallbackFS.ReadFile("fallback.html")
	if err != nil {
		http.Error(w, "frontend unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(b)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.scheduler.Status())
}

type historySnapshot struct {
	Status  model.BenchmarkStatus            `json:"status"`
	History map[model.EventType][]model.StreamEvent `json:"history"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, historySnapshot{
		Status:  s.scheduler.Status(),
		History: s.bus.History(),
	})
}

func (s *Server) handleHistoricalData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.bus.HistoricalData())
}

type connectionInfo struct {
	DashboardURL string `json:"dashboard_url"`
	WebSocketURL string `json:"websocket_url"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Protocol     string `json:"protocol"`
}

// handleConnectionInfo derives dashboard_url/websocket_url from the same
// host/port with an http/https -> ws/wss scheme swap, so a dashboard client
// never has to hardcode how to reach its own WebSocket endpoint.
func (s *Server) handleConnectionInfo(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	wsScheme := "ws"
	if r.TLS != nil {
		scheme = "https"
		wsScheme = "wss"
	}
	host := s.host
	if host == "" || host == "0.0.0.0" {
		host = r.Host
		if h, _, err := splitHostPort(host); err == nil {
			host = h
		}
	}
	writeJSON(w, connectionInfo{
		DashboardURL: joinURL(scheme, host, s.port, ""),
		WebSocketURL: joinURL(wsScheme, host, s.port, "/ws"),
		Host:         host,
		Port:         s.port,
		Protocol:     scheme,
	})
}

// handleMetrics returns the most recent LiveMetrics snapshot broadcast as a
// "metrics" event, or an empty object if no request has completed yet.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := s.bus.History()[model.EventMetrics]
	if len(metrics) == 0 {
		writeJSON(w, map[string]any{})
		return
	}
	writeJSON(w, metrics[len(metrics)-1])
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
