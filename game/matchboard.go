package game

import (
	"errors"
	"math/rand"
	"slices"
)

const matchCards = 16

// CardFaces are the eight values dealt twice onto a MatchBoard.
var CardFaces = [matchCards / 2]string{"🍎", "🍌", "🍇", "🍉", "🍒", "🍓", "🥝", "🍍"}

var ErrInvalidDeck = errors.New("deck must hold every card face exactly twice")

type CardFlip struct {
	Index int    `json:"index"`
	Value string `json:"value"`
}

type PairMatch struct {
	Matches [2]int `json:"matches"`
	Scores  Scores `json:"scores"`
	Turn    Slot   `json:"turn"`
}

type PairMismatch struct {
	Indices [2]int `json:"indices"`
	Turn    Slot   `json:"turn"`
}

// MatchBoardSnapshot never exposes face-down values. Flipped cards are visible to
// both peers, so they carry theirs.
type MatchBoardSnapshot struct {
	Matched []int      `json:"matched"`
	Flipped []CardFlip `json:"flipped"`
	Scores  Scores     `json:"scores"`
	Turn    Slot       `json:"turn"`
}

type MatchBoard struct {
	rng     *rand.Rand
	fixed   *[matchCards]string
	cards   [matchCards]string
	matched [matchCards]bool
	pairs   int
	flipped []int
	scores  Scores
	turn    Slot
	over    bool
}

func NewMatchBoard(rng *rand.Rand) *MatchBoard {
	mb := &MatchBoard{rng: rng}
	mb.Reset()
	return mb
}

// NewMatchBoardFromDeck deals cards in the given order, including after Reset.
func NewMatchBoardFromDeck(deck [matchCards]string) (*MatchBoard, error) {
	counts := make(map[string]int, len(CardFaces))
	for _, c := range deck {
		counts[c]++
	}
	for _, face := range CardFaces {
		if counts[face] != 2 {
			return nil, ErrInvalidDeck
		}
	}
	mb := &MatchBoard{fixed: &deck}
	mb.Reset()
	return mb, nil
}

func (mb *MatchBoard) Type() Type      { return TypeMatchBoard }
func (mb *MatchBoard) TurnBased() bool { return true }
func (mb *MatchBoard) Turn() Slot      { return mb.turn }
func (mb *MatchBoard) Scores() Scores  { return mb.scores }

func (mb *MatchBoard) Reset() {
	if mb.fixed != nil {
		mb.cards = *mb.fixed
	} else {
		mb.cards = mb.shuffle()
	}
	mb.matched = [matchCards]bool{}
	mb.pairs = 0
	mb.flipped = nil
	mb.scores = Scores{}
	mb.turn = SlotP1
	mb.over = false
}

func (mb *MatchBoard) shuffle() [matchCards]string {
	var cards [matchCards]string
	for i, face := range CardFaces {
		cards[2*i], cards[2*i+1] = face, face
	}
	mb.rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	return cards
}

// Card returns the value under index, face up or not.
func (mb *MatchBoard) Card(index int) string {
	return mb.cards[index]
}

func (mb *MatchBoard) Flipped() []int {
	return slices.Clone(mb.flipped)
}

func (mb *MatchBoard) IsMatched(index int) bool {
	return mb.matched[index]
}

func (mb *MatchBoard) Apply(slot Slot, move Move) (Result, error) {
	if mb.over {
		return Result{}, ErrGameOver
	}
	idx := move.Index
	if idx < 0 || idx >= matchCards {
		return Result{}, ErrCellOutOfRange
	}
	if len(mb.flipped) >= 2 {
		return Result{}, ErrRevealPending
	}
	if mb.matched[idx] || slices.Contains(mb.flipped, idx) {
		return Result{}, ErrCardUnavailable
	}

	mb.flipped = append(mb.flipped, idx)
	result := Result{Events: []Event{{Kind: EvtCardFlipped, Data: CardFlip{Index: idx, Value: mb.cards[idx]}}}}
	if len(mb.flipped) < 2 {
		return result, nil
	}

	a, b := mb.flipped[0], mb.flipped[1]
	if mb.cards[a] != mb.cards[b] {
		// Both stay face up until ResolveMismatch.
		result.Settle = true
		return result, nil
	}

	mb.matched[a], mb.matched[b] = true, true
	mb.pairs++
	mb.scores.Add(slot)
	mb.flipped = nil
	result.Events = append(result.Events, Event{
		Kind: EvtPairMatched,
		Data: PairMatch{Matches: [2]int{a, b}, Scores: mb.scores, Turn: mb.turn},
	})

	if mb.pairs == matchCards/2 {
		mb.over = true
		switch {
		case mb.scores.P1 > mb.scores.P2:
			result.Outcome = Outcome{Kind: Win, Winner: SlotP1}
		case mb.scores.P2 > mb.scores.P1:
			result.Outcome = Outcome{Kind: Win, Winner: SlotP2}
		default:
			result.Outcome = Outcome{Kind: Draw}
		}
	}
	return result, nil
}

// ResolveMismatch turns a mismatched pair face down and passes the turn. It
// reports false when no mismatched pair is pending.
func (mb *MatchBoard) ResolveMismatch() (Result, bool) {
	if len(mb.flipped) != 2 {
		return Result{}, false
	}
	indices := [2]int{mb.flipped[0], mb.flipped[1]}
	mb.flipped = nil
	mb.turn = mb.turn.Other()
	return Result{Events: []Event{{
		Kind: EvtPairMismatched,
		Data: PairMismatch{Indices: indices, Turn: mb.turn},
	}}}, true
}

func (mb *MatchBoard) Snapshot() any {
	snap := MatchBoardSnapshot{
		Matched: []int{},
		Flipped: []CardFlip{},
		Scores:  mb.scores,
		Turn:    mb.turn,
	}
	for i, m := range mb.matched {
		if m {
			snap.Matched = append(snap.Matched, i)
		}
	}
	for _, i := range mb.flipped {
		snap.Flipped = append(snap.Flipped, CardFlip{Index: i, Value: mb.cards[i]})
	}
	return snap
}
