package presentation

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ambulance-tracking/internal/observability"
)

const wsWriteWait = 5 * time.Second

// WSSession represents a connected live map client
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(f)
}

func (s *WSSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"), time.Now().Add(time.Second))
	return s.conn.Close()
}

// WSSurface fans frames out to every client watching one session. Clients
// that fail a write are dropped.
type WSSurface struct {
	mu       sync.RWMutex
	sessions map[*WSSession]struct{}
	last     *Frame
	closed   bool
}

func NewWSSurface() *WSSurface { return &WSSurface{sessions: make(map[*WSSession]struct{})} }

// Add registers a client and sends it the latest frame.
func (w *WSSurface) Add(conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = s.Close()
		return s
	}
	w.sessions[s] = struct{}{}
	last := w.last
	w.mu.Unlock()
	observability.WSClients.Inc()
	if last != nil {
		if err := s.Send(*last); err != nil {
			w.Remove(s)
		}
	}
	return s
}

func (w *WSSurface) Remove(s *WSSession) {
	w.mu.Lock()
	_, ok := w.sessions[s]
	delete(w.sessions, s)
	w.mu.Unlock()
	if ok {
		observability.WSClients.Dec()
		_ = s.Close()
	}
}

func (w *WSSurface) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.sessions)
}

func (w *WSSurface) Draw(_ context.Context, f Frame) error {
	w.mu.Lock()
	w.last = &f
	targets := make([]*WSSession, 0, len(w.sessions))
	for s := range w.sessions {
		targets = append(targets, s)
	}
	w.mu.Unlock()
	for _, s := range targets {
		if err := s.Send(f); err != nil {
			w.Remove(s)
		}
	}
	return nil
}

// Close disconnects every client.
func (w *WSSurface) Close() error {
	w.mu.Lock()
	w.closed = true
	targets := make([]*WSSession, 0, len(w.sessions))
	for s := range w.sessions {
		targets = append(targets, s)
	}
	w.sessions = make(map[*WSSession]struct{})
	w.mu.Unlock()
	for _, s := range targets {
		observability.WSClients.Dec()
		_ = s.Close()
	}
	return nil
}
