package state

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/arcade/logger"
)

type State interface {
	OnEnter()
	OnExit()
	GetID() string
}

// ErrTransitionNotAllowed is returned for a transition that is not registered or
// whose condition refuses it.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine only follows registered transitions.
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool // fromState -> toState -> condition
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[string]map[string]func() bool),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	condition, ok := sm.transitions[sm.currentState.GetID()][newState.GetID()]
	if !ok || (condition != nil && !condition()) {
		return ErrTransitionNotAllowed
	}

	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

// AddTransition registers from -> to. A nil condition always allows it.
func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	fromID := from.GetID()
	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}
	sm.transitions[fromID][to.GetID()] = condition
	return nil
}

const (
	PhaseAwaiting = "awaiting"
	PhaseActive   = "active"
	PhaseTerminal = "terminal"
)

// 房间状态基础结构
type RoomStateBase struct {
	ID   string
	Room RoomContext
}

func (s *RoomStateBase) GetID() string {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {
	logger.Log.Debugw("room phase entered", "pin", s.Room.GetID(), "phase", s.ID)
}

func (s *RoomStateBase) OnExit() {}

// AwaitingState: only p1 is seated, or a peer left and the seat is open again.
type AwaitingState struct {
	RoomStateBase
}

func NewAwaitingState(room RoomContext) *AwaitingState {
	return &AwaitingState{RoomStateBase{ID: PhaseAwaiting, Room: room}}
}

// ActiveState accepts moves. StartedAt is stamped on every entry, so a reset
// starts a new round.
type ActiveState struct {
	RoomStateBase
	StartedAt time.Time
}

func NewActiveState(room RoomContext) *ActiveState {
	return &ActiveState{RoomStateBase: RoomStateBase{ID: PhaseActive, Room: room}}
}

func (s *ActiveState) OnEnter() {
	s.StartedAt = time.Now()
	s.RoomStateBase.OnEnter()
}

type TerminalState struct {
	RoomStateBase
	FinishedAt time.Time
}

func NewTerminalState(room RoomContext) *TerminalState {
	return &TerminalState{RoomStateBase: RoomStateBase{ID: PhaseTerminal, Room: room}}
}

func (s *TerminalState) OnEnter() {
	s.FinishedAt = time.Now()
	s.RoomStateBase.OnEnter()
}
