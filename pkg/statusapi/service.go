// Package statusapi serves the rig status over HTTP and streams changes to
// websocket clients.
package statusapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/errors"
	"github.com/NotCoffee418/vitals_rig/pkg/logger"
	"github.com/NotCoffee418/vitals_rig/pkg/rigstatus"
	"github.com/gorilla/websocket"
)

type StatusSource interface {
	Snapshot() rigstatus.RigStatus
}

type Controller interface {
	Control(sensor, action string) error
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

type Server struct {
	source     StatusSource
	controller Controller
	interval   time.Duration
	upgrader   websocket.Upgrader

	wsClientsMutex sync.RWMutex
	wsClients      map[*wsClient]bool

	lastMutex sync.Mutex
	last      []byte
}

// NewServer creates a status server. controller may be nil for a read-only
// server.
func NewServer(source StatusSource, controller Controller, interval time.Duration) *Server {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Server{
		source:     source,
		controller: controller,
		interval:   interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Kiosk UI is served from another origin
			},
		},
		wsClients: make(map[*wsClient]bool),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Vitals Rig API",
			"status":  "running",
		})
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.source.Snapshot())
	})

	mux.HandleFunc("GET /bp", func(w http.ResponseWriter, r *http.Request) {
		status := s.source.Snapshot()
		if status.BP == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "Blood pressure decoder not running",
			})
			return
		}
		writeJSON(w, http.StatusOK, status.BP)
	})

	mux.HandleFunc("POST /control/{sensor}/{action}", s.handleControl)

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return mux
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Control is disabled"})
		return
	}

	sensor, action := r.PathValue("sensor"), r.PathValue("action")
	if err := s.controller.Control(sensor, action); err != nil {
		status := http.StatusBadGateway
		if errors.HasCode(err, errors.ErrInvalidArgument) {
			status = http.StatusBadRequest
		}
		logger.Warn().Err(err).Str("sensor", sensor).Str("action", action).Msg("Control request failed")
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	logger.Info().Str("sensor", sensor).Str("action", action).Msg("Control request handled")
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := &wsClient{conn: conn}
	s.addWebSocketClient(client)

	// Send current status immediately
	if err := client.write(s.snapshotJSON()); err != nil {
		s.removeWebSocketClient(client)
		return
	}

	// Keep connection alive until the client leaves
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.removeWebSocketClient(client)
			return
		}
	}
}

// Run polls the status and broadcasts it to websocket clients whenever it
// changes, until ctx ends.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			s.broadcastIfChanged()
		}
	}
}

// ListenAndServe serves on addr until ctx ends, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("address", addr).Msg("Starting status API")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) broadcastIfChanged() {
	status := s.source.Snapshot()
	// Generation time alone is not a change
	status.GeneratedAt = time.Time{}
	fingerprint, err := json.Marshal(status)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode status")
		return
	}

	s.lastMutex.Lock()
	changed := !bytes.Equal(fingerprint, s.last)
	if changed {
		s.last = fingerprint
	}
	s.lastMutex.Unlock()

	if changed {
		s.broadcast(s.snapshotJSON())
	}
}

func (s *Server) broadcast(payload []byte) {
	s.wsClientsMutex.RLock()
	clients := make([]*wsClient, 0, len(s.wsClients))
	for client := range s.wsClients {
		clients = append(clients, client)
	}
	s.wsClientsMutex.RUnlock()

	for _, client := range clients {
		if err := client.write(payload); err != nil {
			s.removeWebSocketClient(client)
		}
	}
}

func (s *Server) snapshotJSON() []byte {
	payload, err := json.Marshal(s.source.Snapshot())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode status")
		return []byte("{}")
	}
	return payload
}

func (s *Server) addWebSocketClient(client *wsClient) {
	s.wsClientsMutex.Lock()
	s.wsClients[client] = true
	s.wsClientsMutex.Unlock()
}

func (s *Server) removeWebSocketClient(client *wsClient) {
	s.wsClientsMutex.Lock()
	delete(s.wsClients, client)
	s.wsClientsMutex.Unlock()
	client.conn.Close()
}

func (s *Server) closeAll() {
	s.wsClientsMutex.Lock()
	defer s.wsClientsMutex.Unlock()
	for client := range s.wsClients {
		client.conn.Close()
		delete(s.wsClients, client)
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}
