package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Session is one live authenticated connection. A user with several
// tabs or devices holds several sessions; the router keys group
// membership by session, not user.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	premium atomic.Bool

	conn *websocket.Conn

	// sendMu serializes queue against close: a broadcast that
	// snapshotted this session just before it disconnected must see the
	// closed flag, not a closed channel.
	sendMu sync.Mutex
	closed bool
	send   chan Envelope
}

func newSession(userID string, isPremium bool, conn *websocket.Conn) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now(),
		conn:      conn,
		send:      make(chan Envelope, sendBuffer),
	}
	s.premium.Store(isPremium)
	return s
}

// IsPremium is the session's last-known premium flag. It trails the
// authoritative account record until the next status-change event.
func (s *Session) IsPremium() bool {
	return s.premium.Load()
}

func (s *Session) setPremium(v bool) {
	s.premium.Store(v)
}

// queue hands env to the session's writer without blocking. A full
// buffer means the recipient is too slow; the message is dropped so one
// stalled connection cannot stall delivery to others. A closed session
// drops too, it never errors.
func (s *Session) queue(env Envelope) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.send <- env:
		return true
	default:
		return false
	}
}

// close releases the writer. Safe to call more than once.
func (s *Session) close() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// writePump drains the send buffer onto the connection and keeps the
// peer alive with pings. It exits when close() runs or a write fails.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case env, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
