package network

// Inbound message ids.
const (
	MsgTypeHeartbeat    = 1
	MsgTypeJoinRoom     = 101
	MsgTypeLeaveRoom    = 102
	MsgTypeCreateRoom   = 103
	MsgTypeMarkCell     = 201
	MsgTypeFlipCard     = 202
	MsgTypeSubmitAnswer = 203
	MsgTypeResetGame    = 204
	MsgTypeChat         = 205
)

// Outbound message ids.
const (
	MsgTypeRoomCreated    = 103
	MsgTypeRoleAssigned   = 104
	MsgTypeGameStart      = 303
	MsgTypeGameUpdate     = 304
	MsgTypeGameOver       = 305
	MsgTypeMemoryFlip     = 306
	MsgTypeMemoryMatch    = 307
	MsgTypeMemoryMismatch = 308
	MsgTypeNextQuestion   = 309
	MsgTypeRestart        = 310
	MsgTypeOpponentLeft   = 311
	MsgTypeChatMessage    = 312
	MsgTypeError          = 400
	MsgTypeLeaderboard    = 401
)

var inboundNames = map[uint16]string{
	MsgTypeHeartbeat:    "heartbeat",
	MsgTypeJoinRoom:     "join",
	MsgTypeLeaveRoom:    "leave",
	MsgTypeCreateRoom:   "create",
	MsgTypeMarkCell:     "mark_cell",
	MsgTypeFlipCard:     "flip_card",
	MsgTypeSubmitAnswer: "submit_answer",
	MsgTypeResetGame:    "reset",
	MsgTypeChat:         "chat",
}

// InboundName labels a client message id for logs and metrics.
func InboundName(msgID uint16) string {
	if name, ok := inboundNames[msgID]; ok {
		return name
	}
	return "unknown"
}
