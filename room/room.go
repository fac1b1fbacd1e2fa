package room

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/arcade/game"
	"github.com/wfunc/arcade/session"
	"github.com/wfunc/arcade/state"
)

// Seat is a peer identity held in a slot.
type Seat struct {
	Session *session.Session
	Name    string
}

// Room 是游戏房间的核心结构
//
// mu serializes every action on the room (moves, resets, joins, leaves, settle
// tasks). Game, Lifecycle, the generation and the settle timer are only touched under mu. The
// seats have their own lock so broadcasts and lookups never wait on an action.
type Room struct {
	PIN       string
	GameType  game.Type
	Game      game.Game
	Lifecycle *state.Lifecycle
	CreatedAt time.Time

	mu          sync.Mutex
	playerMutex sync.RWMutex
	seats       [2]*Seat
	generation  uint64
	settleTimer int64
	lastActive  atomic.Int64
}

func NewRoom(pin string, g game.Game, creator *session.Session, name string) *Room {
	room := &Room{
		PIN:       pin,
		GameType:  g.Type(),
		Game:      g,
		CreatedAt: time.Now(),
	}
	room.seats[0] = &Seat{Session: creator, Name: name}
	room.Lifecycle = state.NewLifecycle(room)
	room.Touch()
	return room
}

// GetID implements state.RoomContext.
func (r *Room) GetID() string {
	return r.PIN
}

// Do runs fn while holding the room's action lock.
func (r *Room) Do(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

func slotIndex(slot game.Slot) int {
	if slot == game.SlotP2 {
		return 1
	}
	return 0
}

func indexSlot(i int) game.Slot {
	if i == 1 {
		return game.SlotP2
	}
	return game.SlotP1
}

// SlotOf returns the slot held by sessionID, or game.NoSlot.
func (r *Room) SlotOf(sessionID string) game.Slot {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	for i, seat := range r.seats {
		if seat != nil && seat.Session.ID == sessionID {
			return indexSlot(i)
		}
	}
	return game.NoSlot
}

// Occupant returns a copy of the seat in slot, nil when empty.
func (r *Room) Occupant(slot game.Slot) *Seat {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	if seat := r.seats[slotIndex(slot)]; seat != nil {
		cp := *seat
		return &cp
	}
	return nil
}

// Players returns copies of both seats keyed by slot; empty slots are absent.
func (r *Room) Players() map[game.Slot]Seat {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	players := make(map[game.Slot]Seat, 2)
	for i, seat := range r.seats {
		if seat != nil {
			players[indexSlot(i)] = *seat
		}
	}
	return players
}

// GetSessions returns a slice of all sessions in the room (thread-safe).
func (r *Room) GetSessions() []*session.Session {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	sessions := make([]*session.Session, 0, len(r.seats))
	for _, seat := range r.seats {
		if seat != nil {
			sessions = append(sessions, seat.Session)
		}
	}
	return sessions
}

func (r *Room) IsEmpty() bool {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	return r.seats[0] == nil && r.seats[1] == nil
}

// Generation identifies the current deal. Callers hold the action lock.
func (r *Room) Generation() uint64 {
	return r.generation
}

// NextGeneration invalidates tasks scheduled against the previous deal.
func (r *Room) NextGeneration() uint64 {
	r.generation++
	return r.generation
}

// SetSettleTimer remembers the pending settle task. Callers hold the action lock.
func (r *Room) SetSettleTimer(id int64) {
	r.settleTimer = id
}

// TakeSettleTimer returns and forgets the pending settle task, 0 when none.
func (r *Room) TakeSettleTimer() int64 {
	id := r.settleTimer
	r.settleTimer = 0
	return id
}

func (r *Room) Touch() {
	r.lastActive.Store(time.Now().UnixNano())
}

func (r *Room) LastActive() time.Time {
	return time.Unix(0, r.lastActive.Load())
}

// Info is a read-only summary for admin surfaces.
type Info struct {
	PIN        string
	GameType   string
	Phase      string
	Players    []string
	CreatedAt  time.Time
	LastActive time.Time
}

func (r *Room) Info() Info {
	info := Info{
		PIN:        r.PIN,
		GameType:   string(r.GameType),
		Phase:      r.Lifecycle.Phase(),
		CreatedAt:  r.CreatedAt,
		LastActive: r.LastActive(),
	}
	for _, slot := range []game.Slot{game.SlotP1, game.SlotP2} {
		if seat := r.Occupant(slot); seat != nil {
			info.Players = append(info.Players, seat.Name)
		}
	}
	return info
}
