package session

import (
	"sync"
	"time"

	"github.com/wfunc/arcade/network"
)

// Session is one connected client. Its ID is the peer identity seated in rooms.
type Session struct {
	ID        string
	Conn      network.Connection
	CreatedAt time.Time

	mutex      sync.RWMutex
	username   string
	roomPIN    string
	lastActive time.Time
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
	}
}

func (s *Session) Send(msgID uint16, data []byte) error {
	return s.Conn.Send(msgID, data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

// Username is the last name the client announced on create or join.
func (s *Session) Username() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.username
}

func (s *Session) SetUsername(name string) {
	s.mutex.Lock()
	s.username = name
	s.mutex.Unlock()
}

// RoomPIN is the room the session is seated in, empty when none.
func (s *Session) RoomPIN() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomPIN
}

func (s *Session) SetRoom(pin string) {
	s.mutex.Lock()
	s.roomPIN = pin
	s.mutex.Unlock()
}

// ClearRoom forgets pin if it is still the current room and reports whether it was.
func (s *Session) ClearRoom(pin string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.roomPIN != pin {
		return false
	}
	s.roomPIN = ""
	return true
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot; sending to it does not hold the manager lock.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	result := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	return result
}
