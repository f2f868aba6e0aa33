// Package dashboard provides a WebSocket status feed for serve mode.
//
// Connected clients receive a message for every reconciliation run and
// sprint report post, plus a snapshot of the most recent run on
// connect, so an operator can watch the sync without tailing logs.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/talkingcactus/meetsync/internal/reconcile"
)

// MessageType identifies a dashboard message.
type MessageType string

const (
	// MessageTypeSyncComplete carries the summary of a finished
	// reconciliation run.
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeReportPosted signals a delivered sprint report.
	MessageTypeReportPosted MessageType = "report_posted"
)

// Message is one broadcast frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// RunData is the payload of a sync_complete message.
type RunData struct {
	Fetched     int  `json:"fetched"`
	Created     int  `json:"created"`
	Updated     int  `json:"updated"`
	Skipped     int  `json:"skipped"`
	Failed      int  `json:"failed"`
	Removed     int  `json:"removed"`
	FetchFailed bool `json:"fetch_failed,omitempty"`
}

// ReportData is the payload of a report_posted message.
type ReportData struct {
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Blocked    int `json:"blocked"`
	Pages      int `json:"pages"`
}

// Config holds server configuration.
type Config struct {
	// Port to listen on.
	Port int

	// Logger defaults to log.Default().
	Logger *log.Logger
}

// Server accepts WebSocket clients and broadcasts status messages.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// lastRun is replayed to newly connected clients.
	lastRun   *Message
	lastRunMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a dashboard server.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      fmt.Sprintf(":%d", cfg.Port),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 64),
		ctx:       ctx,
		cancel:    cancel,
		logger:    cfg.Logger,
	}
}

// Start begins listening and serving. Non-blocking.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Dashboard server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts the server down and closes every client connection.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard shutdown error: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// PublishRun broadcasts a finished reconciliation run.
func (s *Server) PublishRun(summary *reconcile.Summary) {
	data, err := json.Marshal(RunData{
		Fetched:     summary.Fetched,
		Created:     summary.Created,
		Updated:     summary.Updated,
		Skipped:     summary.Skipped,
		Failed:      summary.Failed,
		Removed:     summary.Removed,
		FetchFailed: summary.FetchFailed,
	})
	if err != nil {
		s.logger.Printf("Failed to marshal run data: %v", err)
		return
	}

	msg := Message{Type: MessageTypeSyncComplete, Timestamp: summary.RanAt, Data: data}

	s.lastRunMu.Lock()
	s.lastRun = &msg
	s.lastRunMu.Unlock()

	s.send(msg)
}

// PublishReport broadcasts a delivered sprint report.
func (s *Server) PublishReport(completed, inProgress, blocked, pages int) {
	data, err := json.Marshal(ReportData{
		Completed:  completed,
		InProgress: inProgress,
		Blocked:    blocked,
		Pages:      pages,
	})
	if err != nil {
		s.logger.Printf("Failed to marshal report data: %v", err)
		return
	}
	s.send(Message{Type: MessageTypeReportPosted, Timestamp: time.Now(), Data: data})
}

func (s *Server) send(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// broadcastLoop fans queued messages out to every client.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range conns {
				if err := s.write(conn, data); err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// handleWebSocket upgrades a connection and registers the client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("Dashboard client connected (total: %d)", count)

	// Replay the most recent run so a new client is not blind until
	// the next sync.
	s.lastRunMu.RLock()
	last := s.lastRun
	s.lastRunMu.RUnlock()
	if last != nil {
		if data, err := json.Marshal(*last); err == nil {
			_ = s.write(conn, data)
		}
	}

	go s.readLoop(conn)
}

// readLoop drains client frames so pings are handled, and detects
// disconnects.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	_, exists := s.clients[conn]
	if exists {
		delete(s.clients, conn)
	}
	count := len(s.clients)
	s.clientsMu.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Dashboard client disconnected (total: %d)", count)
	}
}

// handleHealth reports liveness and client count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}
