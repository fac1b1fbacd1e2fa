package game

import (
	"math/rand"
	"strconv"
	"strings"
)

const DefaultWinScore = 10

type NextQuestion struct {
	Question string `json:"q"`
	Scores   Scores `json:"scores"`
	Scorer   Slot   `json:"scorer"`
}

type SpeedDuelSnapshot struct {
	Question string `json:"q"`
	Scores   Scores `json:"scores"`
	Target   int    `json:"target"`
}

// SpeedDuel is not turn based: both seats race to answer the live question.
type SpeedDuel struct {
	rng      *rand.Rand
	question Question
	scores   Scores
	target   int
	over     bool
}

func NewSpeedDuel(rng *rand.Rand, target int) *SpeedDuel {
	if target <= 0 {
		target = DefaultWinScore
	}
	sd := &SpeedDuel{rng: rng, target: target}
	sd.Reset()
	return sd
}

func (sd *SpeedDuel) Type() Type         { return TypeSpeedDuel }
func (sd *SpeedDuel) TurnBased() bool    { return false }
func (sd *SpeedDuel) Turn() Slot         { return NoSlot }
func (sd *SpeedDuel) Question() Question { return sd.question }
func (sd *SpeedDuel) Scores() Scores     { return sd.scores }

func (sd *SpeedDuel) Reset() {
	sd.scores = Scores{}
	sd.question = NewQuestion(sd.rng)
	sd.over = false
}

func (sd *SpeedDuel) Apply(slot Slot, move Move) (Result, error) {
	if sd.over {
		return Result{}, ErrGameOver
	}
	n, err := strconv.Atoi(strings.TrimSpace(move.Answer))
	if err != nil {
		return Result{}, ErrNotANumber
	}
	if n != sd.question.Answer {
		return Result{}, ErrWrongAnswer
	}

	if sd.scores.Add(slot) >= sd.target {
		sd.over = true
		return Result{Outcome: Outcome{Kind: Win, Winner: slot}}, nil
	}

	sd.question = NewQuestion(sd.rng)
	return Result{Events: []Event{{
		Kind: EvtQuestionChanged,
		Data: NextQuestion{Question: sd.question.String(), Scores: sd.scores, Scorer: slot},
	}}}, nil
}

func (sd *SpeedDuel) Snapshot() any {
	return SpeedDuelSnapshot{Question: sd.question.String(), Scores: sd.scores, Target: sd.target}
}
