package dispatch

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/smartcabb-dispatch/internal/models"
)

// WSSession is one connected driver app.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(n)
}

// WSRegistry holds live driver sessions and pushes offer notifications
// to them. Drivers without a session fall back to polling the outbox;
// a missing session is reported but never treated as a dispatch
// failure upstream.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(driverID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[driverID]; ok {
		_ = old.conn.Close()
	}
	r.sessions[driverID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(driverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, driverID)
}

func (r *WSRegistry) Notify(driverID string, n *models.Notification) error {
	r.mu.RLock()
	s, ok := r.sessions[driverID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(n); err != nil {
		log.Printf("ws send error: %v", err)
		return err
	}
	return nil
}

var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no ws session" }
