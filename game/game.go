// Package game holds the rule sets of the arcade variants. Each variant owns its
// state and validates and applies moves; deciding whose turn it is belongs to the
// caller.
package game

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

type Type string

const (
	TypeTurnBoard  Type = "tictactoe"
	TypeMatchBoard Type = "memory"
	TypeSpeedDuel  Type = "mathwars"
)

var (
	ErrUnknownType = errors.New("unknown game type")
	ErrInvalidMove = errors.New("invalid move")

	ErrGameOver        = fmt.Errorf("%w: game is over", ErrInvalidMove)
	ErrCellOutOfRange  = fmt.Errorf("%w: cell out of range", ErrInvalidMove)
	ErrCellOccupied    = fmt.Errorf("%w: cell already marked", ErrInvalidMove)
	ErrCardUnavailable = fmt.Errorf("%w: card already matched or face up", ErrInvalidMove)
	ErrRevealPending   = fmt.Errorf("%w: previous pair not resolved", ErrInvalidMove)
	ErrNotANumber      = fmt.Errorf("%w: answer is not a number", ErrInvalidMove)
	ErrWrongAnswer     = fmt.Errorf("%w: wrong answer", ErrInvalidMove)
)

func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeTurnBoard, TypeMatchBoard, TypeSpeedDuel:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Slot is one of the two seats of a room.
type Slot string

const (
	SlotP1 Slot = "p1"
	SlotP2 Slot = "p2"
	NoSlot Slot = ""
)

func (s Slot) Other() Slot {
	if s == SlotP1 {
		return SlotP2
	}
	return SlotP1
}

type OutcomeKind int

const (
	Continue OutcomeKind = iota
	Win
	Draw
)

type Outcome struct {
	Kind   OutcomeKind
	Winner Slot
}

func (o Outcome) Terminal() bool {
	return o.Kind != Continue
}

type EventKind string

const (
	EvtBoardUpdated    EventKind = "board_updated"
	EvtCardFlipped     EventKind = "card_flipped"
	EvtPairMatched     EventKind = "pair_matched"
	EvtPairMismatched  EventKind = "pair_mismatched"
	EvtQuestionChanged EventKind = "question_changed"
)

type Event struct {
	Kind EventKind
	Data any
}

// Move carries the variant specific input: Index for board variants, Answer for SpeedDuel.
type Move struct {
	Index  int
	Answer string
}

type Result struct {
	Events  []Event
	Outcome Outcome
	// Settle asks the caller to call ResolveMismatch after the settle delay.
	Settle bool
}

type Game interface {
	Type() Type
	// TurnBased reports whether only Turn() may act.
	TurnBased() bool
	Turn() Slot
	Apply(slot Slot, move Move) (Result, error)
	// Reset re-initializes the state as a freshly created game.
	Reset()
	Snapshot() any
}

// Settler is implemented by variants with a deferred reveal step.
type Settler interface {
	ResolveMismatch() (Result, bool)
}

type Scores struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

func (s *Scores) Add(slot Slot) int {
	if slot == SlotP1 {
		s.P1++
		return s.P1
	}
	s.P2++
	return s.P2
}

func (s Scores) Of(slot Slot) int {
	if slot == SlotP1 {
		return s.P1
	}
	return s.P2
}

type options struct {
	rng      *rand.Rand
	winScore int
}

type Option func(*options)

// WithRand makes boards and questions reproducible. The source must not be shared
// between games.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithWinScore sets the SpeedDuel target score.
func WithWinScore(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.winScore = n
		}
	}
}

func New(t Type, opts ...Option) (Game, error) {
	o := options{winScore: DefaultWinScore}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	switch t {
	case TypeTurnBoard:
		return NewTurnBoard(), nil
	case TypeMatchBoard:
		return NewMatchBoard(o.rng), nil
	case TypeSpeedDuel:
		return NewSpeedDuel(o.rng, o.winScore), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}
