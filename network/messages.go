package network

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrInvalidPayload wraps every decode or validation failure of a client payload.
var ErrInvalidPayload = errors.New("invalid payload")

// Decode unmarshals a JSON payload into v and runs its validate tags.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

type CreateRoomRequest struct {
	GameType string `json:"gameType" validate:"required,max=16"`
	Username string `json:"username" validate:"max=32"`
}

type JoinRoomRequest struct {
	PIN      string `json:"pin" validate:"required,len=4,numeric"`
	Username string `json:"username" validate:"max=32"`
}

// MoveRequest serves mark_cell and flip_card (Index) and submit_answer (Answer).
// Index is nil when the client left it out.
type MoveRequest struct {
	PIN    string `json:"pin" validate:"required,len=4,numeric"`
	Index  *int   `json:"index,omitempty"`
	Answer Answer `json:"answer" validate:"max=16"`
}

// Answer accepts a JSON string or number; clients send either.
type Answer string

func (a *Answer) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Answer(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = Answer(n.String())
	return nil
}

// PinRequest serves leave and reset.
type PinRequest struct {
	PIN string `json:"pin" validate:"required,len=4,numeric"`
}

type ChatRequest struct {
	PIN      string `json:"pin" validate:"required,len=4,numeric"`
	Message  string `json:"message" validate:"required,max=500"`
	Username string `json:"username" validate:"max=32"`
}

type RoomCreatedResponse struct {
	PIN string `json:"pin"`
}

type RoleAssignedResponse struct {
	Role string `json:"role"`
}

type PlayerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GameStartedResponse struct {
	PIN     string                `json:"pin"`
	Type    string                `json:"type"`
	Players map[string]PlayerInfo `json:"players"`
	Turn    string                `json:"turn"`
	State   any                   `json:"state"`
}

type GameOverResponse struct {
	Winner string `json:"winner"`
	State  any    `json:"state"`
}

type RestartResponse struct {
	Type  string `json:"type"`
	State any    `json:"state"`
}

type ChatMessageResponse struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
