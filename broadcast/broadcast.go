package broadcast

import (
	"errors"

	"github.com/wfunc/arcade/logger"
	"github.com/wfunc/arcade/room"
	"github.com/wfunc/arcade/session"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrSessionNotFound = errors.New("session not found")
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(pin string, msgID uint16, data []byte) error
	BroadcastToAll(msgID uint16, data []byte) error
	SendTo(sessionID string, msgID uint16, data []byte) error
}

// 基于房间的广播器
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
}

func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
	}
}

// BroadcastToRoom sends to every seated peer. A failing peer does not stop the
// others; its read loop will notice the broken connection.
func (b *RoomBroadcaster) BroadcastToRoom(pin string, msgID uint16, data []byte) error {
	r, exists := b.roomManager.GetRoom(pin)
	if !exists {
		return ErrRoomNotFound
	}
	sendAll(r.GetSessions(), msgID, data)
	return nil
}

func (b *RoomBroadcaster) BroadcastToAll(msgID uint16, data []byte) error {
	sendAll(b.sessionManager.All(), msgID, data)
	return nil
}

func (b *RoomBroadcaster) SendTo(sessionID string, msgID uint16, data []byte) error {
	s, ok := b.sessionManager.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	return s.Send(msgID, data)
}

func sendAll(sessions []*session.Session, msgID uint16, data []byte) {
	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			logger.Log.Debugw("Send failed", "session", s.ID, "msg", msgID, "error", err)
		}
	}
}
