package game

type Mark string

const (
	MarkEmpty Mark = ""
	MarkX     Mark = "X"
	MarkO     Mark = "O"
)

// MarkOf returns the symbol drawn by slot: X for p1, O for p2.
func MarkOf(slot Slot) Mark {
	if slot == SlotP1 {
		return MarkX
	}
	return MarkO
}

const boardCells = 9

var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// BoardUpdate is emitted after every accepted mark. Turn is the symbol to move next.
type BoardUpdate struct {
	Board [boardCells]Mark `json:"board"`
	Turn  Mark             `json:"turn"`
}

type TurnBoardSnapshot struct {
	Board [boardCells]Mark `json:"board"`
	Turn  Slot             `json:"turn"`
}

type TurnBoard struct {
	cells [boardCells]Mark
	turn  Slot
	over  bool
}

func NewTurnBoard() *TurnBoard {
	tb := &TurnBoard{}
	tb.Reset()
	return tb
}

func (tb *TurnBoard) Type() Type      { return TypeTurnBoard }
func (tb *TurnBoard) TurnBased() bool { return true }
func (tb *TurnBoard) Turn() Slot      { return tb.turn }

func (tb *TurnBoard) Reset() {
	tb.cells = [boardCells]Mark{}
	tb.turn = SlotP1
	tb.over = false
}

func (tb *TurnBoard) Cells() [boardCells]Mark {
	return tb.cells
}

func (tb *TurnBoard) Apply(slot Slot, move Move) (Result, error) {
	if tb.over {
		return Result{}, ErrGameOver
	}
	if move.Index < 0 || move.Index >= boardCells {
		return Result{}, ErrCellOutOfRange
	}
	if tb.cells[move.Index] != MarkEmpty {
		return Result{}, ErrCellOccupied
	}

	tb.cells[move.Index] = MarkOf(slot)
	update := BoardUpdate{Board: tb.cells, Turn: MarkOf(slot.Other())}
	result := Result{Events: []Event{{Kind: EvtBoardUpdated, Data: update}}}

	switch winner := tb.winner(); {
	case winner != MarkEmpty:
		tb.over = true
		result.Outcome = Outcome{Kind: Win, Winner: slot}
	case tb.full():
		tb.over = true
		result.Outcome = Outcome{Kind: Draw}
	default:
		tb.turn = slot.Other()
	}
	return result, nil
}

func (tb *TurnBoard) winner() Mark {
	for _, line := range winLines {
		a, b, c := tb.cells[line[0]], tb.cells[line[1]], tb.cells[line[2]]
		if a != MarkEmpty && a == b && a == c {
			return a
		}
	}
	return MarkEmpty
}

func (tb *TurnBoard) full() bool {
	for _, c := range tb.cells {
		if c == MarkEmpty {
			return false
		}
	}
	return true
}

func (tb *TurnBoard) Snapshot() any {
	return TurnBoardSnapshot{Board: tb.cells, Turn: tb.turn}
}
