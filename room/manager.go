package room

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	mathrand "math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/wfunc/arcade/game"
	"github.com/wfunc/arcade/session"
)

const (
	minPIN   = 1000
	maxPIN   = 9999
	pinSpace = maxPIN - minPIN + 1

	randomPINAttempts = 64
)

var (
	ErrPINSpaceExhausted = errors.New("no free room PIN")
	ErrUnknownGameType   = errors.New("unknown game type")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrAlreadySeated     = errors.New("already seated in this room")
	ErrNotSeated         = errors.New("not seated in this room")
)

// Manager is the registry of live rooms keyed by PIN. Its lock only guards the
// map and seat changes; game state is guarded per room.
type Manager struct {
	rooms   map[string]*Room
	mutex   sync.RWMutex
	factory GameFactory
	pinFn   func() int
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(factory GameFactory) *Manager {
	if factory == nil {
		factory = DefaultGameFactory()
	}
	return &Manager{
		rooms:   make(map[string]*Room),
		factory: factory,
		pinFn:   randomPIN,
	}
}

func randomPIN() int {
	n, err := rand.Int(rand.Reader, big.NewInt(pinSpace))
	if err != nil {
		return minPIN + mathrand.Intn(pinSpace)
	}
	return minPIN + int(n.Int64())
}

// SetPINSource replaces the PIN generator. fn must return values in [1000, 9999].
func (m *Manager) SetPINSource(fn func() int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.pinFn = fn
}

// Allocate creates a room of gameType with creator seated in p1.
func (m *Manager) Allocate(gameType game.Type, creator *session.Session, name string) (*Room, error) {
	g, err := m.factory(gameType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownGameType, err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	pin, err := m.freePIN()
	if err != nil {
		return nil, err
	}
	room := NewRoom(pin, g, creator, name)
	m.rooms[pin] = room
	return room, nil
}

// freePIN draws random PINs and falls back to a scan from the last draw once
// collisions pile up. Callers hold the write lock.
func (m *Manager) freePIN() (string, error) {
	if len(m.rooms) >= pinSpace {
		return "", ErrPINSpaceExhausted
	}
	n := m.pinFn()
	for i := 0; i < randomPINAttempts; i++ {
		if _, taken := m.rooms[pinString(n)]; !taken {
			return pinString(n), nil
		}
		n = m.pinFn()
	}
	for i := 0; i < pinSpace; i++ {
		candidate := minPIN + (n-minPIN+i)%pinSpace
		if _, taken := m.rooms[pinString(candidate)]; !taken {
			return pinString(candidate), nil
		}
	}
	return "", ErrPINSpaceExhausted
}

func pinString(n int) string {
	return strconv.Itoa(n)
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(pin string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[pin]
	return room, exists
}

// IsLive reports whether room is still the one registered under its PIN.
func (m *Manager) IsLive(room *Room) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.rooms[room.PIN] == room
}

// SeatSecondPlayer seats s in p2.
func (m *Manager) SeatSecondPlayer(pin string, s *session.Session, name string) (*Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room, exists := m.rooms[pin]
	if !exists {
		return nil, ErrRoomNotFound
	}

	room.playerMutex.Lock()
	defer room.playerMutex.Unlock()
	for _, seat := range room.seats {
		if seat != nil && seat.Session.ID == s.ID {
			return room, ErrAlreadySeated
		}
	}
	if room.seats[1] != nil {
		return room, ErrRoomFull
	}
	room.seats[1] = &Seat{Session: s, Name: name}
	room.Touch()
	return room, nil
}

// Vacate clears the slot held by sessionID. The room is unregistered once both
// slots are empty; otherwise the other seat is returned.
func (m *Manager) Vacate(pin, sessionID string) (remaining *Seat, removed bool, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room, exists := m.rooms[pin]
	if !exists {
		return nil, false, ErrRoomNotFound
	}

	room.playerMutex.Lock()
	defer room.playerMutex.Unlock()

	idx := -1
	for i, seat := range room.seats {
		if seat != nil && seat.Session.ID == sessionID {
			idx = i
		}
	}
	if idx < 0 {
		return nil, false, ErrNotSeated
	}
	room.seats[idx] = nil

	if other := room.seats[1-idx]; other != nil {
		cp := *other
		return &cp, false, nil
	}
	delete(m.rooms, pin)
	return nil, true, nil
}

// SweepIdle unregisters rooms idle for longer than maxIdle. Rooms busy with an
// action are skipped until the next sweep.
func (m *Manager) SweepIdle(maxIdle time.Duration, now time.Time) []*Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var swept []*Room
	for pin, room := range m.rooms {
		if now.Sub(room.LastActive()) <= maxIdle {
			continue
		}
		if !room.mu.TryLock() {
			continue
		}
		delete(m.rooms, pin)
		room.mu.Unlock()
		swept = append(swept, room)
	}
	return swept
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

func (m *Manager) Rooms() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
