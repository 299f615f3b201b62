// Package diag serves a read-only websocket status feed for a browser
// dashboard: session count, current epoch, and recording state, pushed on a
// fixed tick. It sits off the TCP streaming hot path entirely — spec.md's
// Non-goals exclude adaptive transport for the video path, not a read-only
// side-channel — grounded on the pack's gorilla/websocket server-upgrade
// idiom (helixml-helix's desktop package: Upgrader with CheckOrigin, a
// per-connection write goroutine, periodic JSON pushes).
package diag

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StatusProvider is the read-only view of server state the diagnostics
// endpoint reports. streamserver.Server implements it.
type StatusProvider interface {
	SessionCount() int
	CurrentEpoch() uint32
	RecordingActive() bool
}

// Status is the JSON shape pushed to every connected dashboard client.
type Status struct {
	SessionCount    int    `json:"session_count"`
	Epoch           uint32 `json:"epoch"`
	RecordingActive bool   `json:"recording_active"`
	TimestampMs     int64  `json:"timestamp_ms"`
}

// pushInterval is how often a connected dashboard receives a fresh Status.
const pushInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server serves the /ws/status endpoint over plain HTTP.
type Server struct {
	httpSrv  *http.Server
	provider StatusProvider
	log      *zap.SugaredLogger
}

// New constructs a diagnostics Server bound to addr, reporting provider's
// state to every connected client.
func New(addr string, provider StatusProvider, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{provider: provider, log: log.With("component", "diag")}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/status", s.handleStatus)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in a background goroutine. It never blocks.
func (s *Server) Start() {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Warnw("diag server exited", "error", err)
		}
	}()
}

// Stop shuts the HTTP server down.
func (s *Server) Stop() error {
	return s.httpSrv.Close()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("diag upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	for range ticker.C {
		status := Status{
			SessionCount:    s.provider.SessionCount(),
			Epoch:           s.provider.CurrentEpoch(),
			RecordingActive: s.provider.RecordingActive(),
			TimestampMs:     time.Now().UnixMilli(),
		}
		data, err := json.Marshal(status)
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
