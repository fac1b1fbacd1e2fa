package game

import (
	"errors"
	"fmt"
	"math/rand"
)

type Operator string

const (
	OpAdd      Operator = "+"
	OpSubtract Operator = "-"
	OpMultiply Operator = "*"
)

var operators = [...]Operator{OpAdd, OpSubtract, OpMultiply}

var ErrUnknownOperator = errors.New("unknown operator")

func (op Operator) Apply(a, b int) (int, error) {
	switch op {
	case OpAdd:
		return a + b, nil
	case OpSubtract:
		return a - b, nil
	case OpMultiply:
		return a * b, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperator, string(op))
}

const (
	maxSumOperand     = 20
	maxProductOperand = 10
)

type Question struct {
	A      int
	B      int
	Op     Operator
	Answer int
}

func (q Question) String() string {
	return fmt.Sprintf("%d %s %d", q.A, q.Op, q.B)
}

// NewQuestion draws an operator uniformly. Multiplication uses smaller operands so
// answers stay quick to compute.
func NewQuestion(rng *rand.Rand) Question {
	op := operators[rng.Intn(len(operators))]
	limit := maxSumOperand
	if op == OpMultiply {
		limit = maxProductOperand
	}
	q := Question{A: rng.Intn(limit) + 1, B: rng.Intn(limit) + 1, Op: op}
	q.Answer, _ = op.Apply(q.A, q.B)
	return q
}
