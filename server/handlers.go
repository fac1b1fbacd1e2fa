package server

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"time"

	"github.com/wfunc/arcade/game"
	"github.com/wfunc/arcade/logger"
	"github.com/wfunc/arcade/models"
	"github.com/wfunc/arcade/network"
	"github.com/wfunc/arcade/room"
	"github.com/wfunc/arcade/session"
	"github.com/wfunc/arcade/state"
)

const persistTimeout = 5 * time.Second

// Reasons a move or reset is dropped without telling the sender.
var (
	ErrNotYourTurn  = errors.New("not your turn")
	ErrNotActive    = errors.New("room is not active")
	ErrNotHost      = errors.New("only the host may reset")
	ErrWrongGame    = errors.New("move does not belong to this room's game")
	ErrMissingIndex = errors.New("move has no index")
)

// Error texts shown to the sender.
const (
	msgInvalidPIN     = "Invalid PIN"
	msgRoomFull       = "Room is full"
	msgAlreadySeated  = "You are already in this room"
	msgInvalidRequest = "Invalid request"
	msgUnknownGame    = "Unknown game type"
	msgServerFull     = "No free rooms, try again later"
	msgRoomExpired    = "Room closed after inactivity"
)

var moveGame = map[uint16]game.Type{
	network.MsgTypeMarkCell:     game.TypeTurnBoard,
	network.MsgTypeFlipCard:     game.TypeMatchBoard,
	network.MsgTypeSubmitAnswer: game.TypeSpeedDuel,
}

var eventMsg = map[game.EventKind]uint16{
	game.EvtBoardUpdated:    network.MsgTypeGameUpdate,
	game.EvtCardFlipped:     network.MsgTypeMemoryFlip,
	game.EvtPairMatched:     network.MsgTypeMemoryMatch,
	game.EvtPairMismatched:  network.MsgTypeMemoryMismatch,
	game.EvtQuestionChanged: network.MsgTypeNextQuestion,
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	name := network.InboundName(packet.MsgID)
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorw("Packet handler panic", "session", sess.ID, "msg", name, "panic", r, "stack", string(debug.Stack()))
		}
		s.monitor.ObserveMessageLatency(time.Since(start))
	}()
	s.monitor.IncMessagesReceived(name)
	sess.Touch()

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		s.handleHeartbeat(sess)
	case network.MsgTypeCreateRoom:
		s.handleCreateRoom(sess, packet)
	case network.MsgTypeJoinRoom:
		s.handleJoinRoom(sess, packet)
	case network.MsgTypeLeaveRoom:
		s.handleLeaveRoom(sess, packet)
	case network.MsgTypeMarkCell, network.MsgTypeFlipCard, network.MsgTypeSubmitAnswer:
		s.handleMove(sess, packet)
	case network.MsgTypeResetGame:
		s.handleReset(sess, packet)
	case network.MsgTypeChat:
		s.handleChat(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

func (s *GameServer) handleHeartbeat(sess *session.Session) {
	if pin := sess.RoomPIN(); pin != "" {
		if r, ok := s.roomManager.GetRoom(pin); ok {
			r.Touch()
		}
	}
}

func (s *GameServer) handleCreateRoom(sess *session.Session, packet *network.Packet) {
	var req network.CreateRoomRequest
	if err := network.Decode(packet.Data, &req); err != nil {
		logger.Log.Debugw("Rejected create", "session", sess.ID, "error", err)
		s.sendError(sess, msgInvalidRequest)
		return
	}
	gameType, err := game.ParseType(req.GameType)
	if err != nil {
		logger.Log.Debugw("Rejected create", "session", sess.ID, "type", req.GameType, "error", err)
		s.sendError(sess, msgUnknownGame)
		return
	}
	previous := sess.RoomPIN()

	r, err := s.roomManager.Allocate(gameType, sess, req.Username)
	if err != nil {
		if errors.Is(err, room.ErrPINSpaceExhausted) {
			logger.Log.Errorw("Room PIN space exhausted", "rooms", s.roomManager.Count())
			s.sendError(sess, msgServerFull)
			return
		}
		logger.Log.Warnw("Room allocation failed", "type", gameType, "error", err)
		s.sendError(sess, msgUnknownGame)
		return
	}
	sess.SetUsername(req.Username)
	sess.SetRoom(r.PIN)
	if previous != "" {
		s.leaveRoom(sess, previous, false)
	}
	s.monitor.SetActiveRooms(s.roomManager.Count())
	s.ensurePlayer(req.Username)

	logger.Log.Infow("Room created", "pin", r.PIN, "type", gameType, "session", sess.ID, "username", req.Username)
	s.send(sess, network.MsgTypeRoomCreated, network.RoomCreatedResponse{PIN: r.PIN})
	s.send(sess, network.MsgTypeRoleAssigned, network.RoleAssignedResponse{Role: roleOf(gameType, game.SlotP1)})
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) {
	var req network.JoinRoomRequest
	if err := network.Decode(packet.Data, &req); err != nil {
		s.sendError(sess, msgInvalidPIN)
		return
	}
	r, ok := s.roomManager.GetRoom(req.PIN)
	if !ok {
		s.sendError(sess, msgInvalidPIN)
		return
	}
	previous := sess.RoomPIN()

	joined := false
	r.Do(func() {
		if !s.roomManager.IsLive(r) {
			s.sendError(sess, msgInvalidPIN)
			return
		}
		if _, err := s.roomManager.SeatSecondPlayer(req.PIN, sess, req.Username); err != nil {
			switch {
			case errors.Is(err, room.ErrRoomFull):
				s.sendError(sess, msgRoomFull)
			case errors.Is(err, room.ErrAlreadySeated):
				s.sendError(sess, msgAlreadySeated)
			default:
				s.sendError(sess, msgInvalidPIN)
			}
			return
		}
		joined = true
		sess.SetUsername(req.Username)
		sess.SetRoom(r.PIN)

		if err := r.Lifecycle.Activate(); err != nil {
			logger.Log.Warnw("Unexpected phase on join", "pin", r.PIN, "phase", r.Lifecycle.Phase(), "error", err)
		}
		logger.Log.Infow("Player joined", "pin", r.PIN, "session", sess.ID, "username", req.Username)

		s.send(sess, network.MsgTypeRoleAssigned, network.RoleAssignedResponse{Role: roleOf(r.GameType, game.SlotP2)})
		s.broadcastRoom(r, network.MsgTypeGameStart, s.startPayload(r))
	})
	if !joined {
		return
	}
	if previous != "" && previous != r.PIN {
		s.leaveRoom(sess, previous, false)
	}
	s.ensurePlayer(req.Username)
}

// finished carries what must be persisted once the room lock is released.
type finished struct {
	outcome    game.Outcome
	gameType   game.Type
	winnerName string
	record     *models.GameRecord
}

func (s *GameServer) handleMove(sess *session.Session, packet *network.Packet) {
	var req network.MoveRequest
	if err := network.Decode(packet.Data, &req); err != nil {
		s.reject(sess, "", "invalid_payload", err)
		return
	}
	r, ok := s.roomManager.GetRoom(req.PIN)
	if !ok {
		s.sendError(sess, msgInvalidPIN)
		return
	}

	var done *finished
	r.Do(func() {
		if !s.roomManager.IsLive(r) {
			s.sendError(sess, msgInvalidPIN)
			return
		}
		if moveGame[packet.MsgID] != r.GameType {
			s.reject(sess, r.PIN, "wrong_game", ErrWrongGame)
			return
		}
		slot := r.SlotOf(sess.ID)
		if slot == game.NoSlot {
			s.reject(sess, r.PIN, "not_seated", room.ErrNotSeated)
			return
		}
		if !r.Lifecycle.IsActive() {
			s.reject(sess, r.PIN, "not_active", ErrNotActive)
			return
		}
		if r.Game.TurnBased() && r.Game.Turn() != slot {
			s.reject(sess, r.PIN, "not_your_turn", ErrNotYourTurn)
			return
		}

		move := game.Move{Answer: string(req.Answer)}
		if packet.MsgID != network.MsgTypeSubmitAnswer {
			if req.Index == nil {
				s.reject(sess, r.PIN, "invalid_move", ErrMissingIndex)
				return
			}
			move.Index = *req.Index
		}
		res, err := r.Game.Apply(slot, move)
		if err != nil {
			s.reject(sess, r.PIN, "invalid_move", err)
			return
		}
		r.Touch()
		s.broadcastEvents(r, res.Events)
		if res.Settle {
			s.scheduleSettle(r)
		}
		if res.Outcome.Terminal() {
			done = s.finish(r, res.Outcome)
		}
	})
	if done != nil {
		s.persist(done)
	}
}

func (s *GameServer) scheduleSettle(r *room.Room) {
	gen := r.Generation()
	r.SetSettleTimer(s.timers.AddTimer(s.opts.SettleDelay, 0, func() {
		s.resolveSettle(r, gen)
	}))
}

// cancelSettle drops a pending revert. Callers hold the room lock.
func (s *GameServer) cancelSettle(r *room.Room) {
	if id := r.TakeSettleTimer(); id != 0 {
		s.timers.RemoveTimer(id)
	}
}

// resolveSettle flips a mismatched pair back. Tasks from an earlier deal or a
// removed room do nothing.
func (s *GameServer) resolveSettle(r *room.Room, gen uint64) {
	r.Do(func() {
		if !s.roomManager.IsLive(r) || r.Generation() != gen {
			logger.Log.Debugw("Dropped stale settle task", "pin", r.PIN, "generation", gen)
			return
		}
		r.TakeSettleTimer()
		settler, ok := r.Game.(game.Settler)
		if !ok {
			return
		}
		if res, ok := settler.ResolveMismatch(); ok {
			s.broadcastEvents(r, res.Events)
		}
	})
}

// finish moves the room to terminal and announces the result. Callers hold the
// room lock.
func (s *GameServer) finish(r *room.Room, outcome game.Outcome) *finished {
	if err := r.Lifecycle.Finish(); err != nil {
		logger.Log.Warnw("Unexpected phase on game over", "pin", r.PIN, "phase", r.Lifecycle.Phase(), "error", err)
	}

	winner := "Draw"
	result := models.OutcomeDraw
	if outcome.Kind == game.Win {
		winner = roleOf(r.GameType, outcome.Winner)
		result = models.OutcomeWin
	}
	s.broadcastRoom(r, network.MsgTypeGameOver, network.GameOverResponse{Winner: winner, State: r.Game.Snapshot()})
	s.monitor.IncGamesFinished(string(r.GameType), result)

	done := &finished{
		outcome:  outcome,
		gameType: r.GameType,
		record: &models.GameRecord{
			RoomPIN:   r.PIN,
			GameType:  string(r.GameType),
			Outcome:   result,
			Duration:  r.Lifecycle.RoundDuration(),
			CreatedAt: time.Now(),
		},
	}
	scores := scoresOf(r.Game, outcome)
	for _, slot := range []game.Slot{game.SlotP1, game.SlotP2} {
		seat := r.Occupant(slot)
		if seat == nil {
			continue
		}
		done.record.Players = append(done.record.Players, models.PlayerInfo{
			Slot:  string(slot),
			Name:  seat.Name,
			Score: scores.Of(slot),
		})
		if outcome.Kind == game.Win && slot == outcome.Winner {
			done.winnerName = seat.Name
		}
	}
	done.record.Winner = done.winnerName

	logger.Log.Infow("Game over", "pin", r.PIN, "type", r.GameType, "winner", winner, "username", done.winnerName)
	return done
}

// scoresOf reads variant scores; TurnBoard has none, so the winner counts one.
func scoresOf(g game.Game, outcome game.Outcome) game.Scores {
	if scored, ok := g.(interface{ Scores() game.Scores }); ok {
		return scored.Scores()
	}
	var scores game.Scores
	if outcome.Kind == game.Win {
		scores.Add(outcome.Winner)
	}
	return scores
}

func (s *GameServer) persist(done *finished) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if done.outcome.Kind == game.Win {
		if err := s.leaderboard.RecordWin(ctx, done.winnerName, string(done.gameType)); err != nil {
			logger.Log.Errorw("Failed to record win", "username", done.winnerName, "type", done.gameType, "error", err)
		}
	}
	if err := s.leaderboard.SaveGameRecord(ctx, done.record); err != nil {
		logger.Log.Errorw("Failed to save game record", "pin", done.record.RoomPIN, "error", err)
	}
}

func (s *GameServer) handleReset(sess *session.Session, packet *network.Packet) {
	var req network.PinRequest
	if err := network.Decode(packet.Data, &req); err != nil {
		s.reject(sess, "", "invalid_payload", err)
		return
	}
	r, ok := s.roomManager.GetRoom(req.PIN)
	if !ok {
		s.sendError(sess, msgInvalidPIN)
		return
	}

	r.Do(func() {
		if !s.roomManager.IsLive(r) {
			s.sendError(sess, msgInvalidPIN)
			return
		}
		if r.SlotOf(sess.ID) != game.SlotP1 {
			s.reject(sess, r.PIN, "not_host", ErrNotHost)
			return
		}

		s.cancelSettle(r)
		r.Game.Reset()
		r.NextGeneration()
		r.Touch()
		var err error
		if r.Occupant(game.SlotP2) == nil {
			err = r.Lifecycle.Await()
		} else {
			err = r.Lifecycle.Activate()
		}
		if err != nil {
			logger.Log.Warnw("Unexpected phase on reset", "pin", r.PIN, "phase", r.Lifecycle.Phase(), "error", err)
		}

		logger.Log.Infow("Game reset", "pin", r.PIN, "type", r.GameType)
		s.broadcastRoom(r, network.MsgTypeRestart, network.RestartResponse{Type: string(r.GameType), State: r.Game.Snapshot()})
	})
}

func (s *GameServer) handleLeaveRoom(sess *session.Session, packet *network.Packet) {
	var req network.PinRequest
	if err := network.Decode(packet.Data, &req); err != nil {
		s.sendError(sess, msgInvalidPIN)
		return
	}
	s.leaveRoom(sess, req.PIN, true)
}

// handleDisconnect vacates every seat the session still holds. It never replies.
func (s *GameServer) handleDisconnect(sess *session.Session) {
	if pin := sess.RoomPIN(); pin != "" {
		s.leaveRoom(sess, pin, false)
	}
	for _, r := range s.roomManager.Rooms() {
		if r.SlotOf(sess.ID) != game.NoSlot {
			s.leaveRoom(sess, r.PIN, false)
		}
	}
}

// leaveRoom vacates sess from pin and tells a remaining peer. Errors reach the
// sender only when explicit is set.
func (s *GameServer) leaveRoom(sess *session.Session, pin string, explicit bool) {
	r, ok := s.roomManager.GetRoom(pin)
	if !ok {
		sess.ClearRoom(pin)
		if explicit {
			s.sendError(sess, msgInvalidPIN)
		}
		return
	}

	r.Do(func() {
		if !s.roomManager.IsLive(r) {
			sess.ClearRoom(pin)
			return
		}
		remaining, removed, err := s.roomManager.Vacate(pin, sess.ID)
		if err != nil {
			if explicit && errors.Is(err, room.ErrRoomNotFound) {
				s.sendError(sess, msgInvalidPIN)
			}
			logger.Log.Debugw("Leave ignored", "pin", pin, "session", sess.ID, "error", err)
			return
		}
		sess.ClearRoom(pin)

		if removed {
			s.cancelSettle(r)
			logger.Log.Infow("Room closed", "pin", pin, "type", r.GameType)
			return
		}
		if r.Lifecycle.Phase() == state.PhaseTerminal {
			// The next peer starts a fresh round.
			s.cancelSettle(r)
			r.Game.Reset()
			r.NextGeneration()
		}
		if r.Lifecycle.Phase() != state.PhaseAwaiting {
			if err := r.Lifecycle.Await(); err != nil {
				logger.Log.Warnw("Unexpected phase on leave", "pin", pin, "phase", r.Lifecycle.Phase(), "error", err)
			}
		}
		r.Touch()
		logger.Log.Infow("Player left", "pin", pin, "session", sess.ID)
		if err := s.broadcaster.SendTo(remaining.Session.ID, network.MsgTypeOpponentLeft, []byte("{}")); err != nil {
			logger.Log.Debugw("Opponent already gone", "pin", pin, "error", err)
		}
	})
	s.monitor.SetActiveRooms(s.roomManager.Count())
}

func (s *GameServer) handleChat(sess *session.Session, packet *network.Packet) {
	var req network.ChatRequest
	if err := network.Decode(packet.Data, &req); err != nil {
		s.reject(sess, "", "invalid_payload", err)
		return
	}
	r, ok := s.roomManager.GetRoom(req.PIN)
	if !ok {
		s.sendError(sess, msgInvalidPIN)
		return
	}

	r.Do(func() {
		slot := r.SlotOf(sess.ID)
		if slot == game.NoSlot {
			s.reject(sess, r.PIN, "not_seated", room.ErrNotSeated)
			return
		}
		name := req.Username
		if seat := r.Occupant(slot); seat != nil && seat.Name != "" {
			name = seat.Name
		}
		s.broadcastRoom(r, network.MsgTypeChatMessage, network.ChatMessageResponse{Username: name, Message: req.Message})
	})
}

func (s *GameServer) sweepIdleRooms() {
	swept := s.roomManager.SweepIdle(s.opts.RoomIdleTimeout, time.Now())
	for _, r := range swept {
		for _, sess := range r.GetSessions() {
			if sess.ClearRoom(r.PIN) {
				s.sendError(sess, msgRoomExpired)
			}
		}
		logger.Log.Infow("Idle room removed", "pin", r.PIN, "type", r.GameType, "idle", time.Since(r.LastActive()))
	}
	if len(swept) > 0 {
		s.monitor.SetActiveRooms(s.roomManager.Count())
	}
}

func (s *GameServer) startPayload(r *room.Room) network.GameStartedResponse {
	players := make(map[string]network.PlayerInfo, 2)
	for slot, seat := range r.Players() {
		players[string(slot)] = network.PlayerInfo{ID: seat.Session.ID, Name: seat.Name}
	}
	return network.GameStartedResponse{
		PIN:     r.PIN,
		Type:    string(r.GameType),
		Players: players,
		Turn:    roleOf(r.GameType, r.Game.Turn()),
		State:   r.Game.Snapshot(),
	}
}

// roleOf is the label a client knows a slot by: X/O on a TurnBoard, p1/p2 elsewhere.
func roleOf(t game.Type, slot game.Slot) string {
	if slot == game.NoSlot {
		return ""
	}
	if t == game.TypeTurnBoard {
		return string(game.MarkOf(slot))
	}
	return string(slot)
}

func (s *GameServer) ensurePlayer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.leaderboard.EnsurePlayer(ctx, name); err != nil {
		logger.Log.Errorw("Failed to register player", "username", name, "error", err)
	}
}

func (s *GameServer) reject(sess *session.Session, pin, reason string, err error) {
	s.monitor.IncMovesRejected(reason)
	logger.Log.Debugw("Action rejected", "pin", pin, "session", sess.ID, "reason", reason, "error", err)
}

func (s *GameServer) broadcastEvents(r *room.Room, events []game.Event) {
	for _, ev := range events {
		msgID, ok := eventMsg[ev.Kind]
		if !ok {
			logger.Log.Warnw("No message for game event", "kind", ev.Kind)
			continue
		}
		s.broadcastRoom(r, msgID, ev.Data)
	}
}

func (s *GameServer) broadcastRoom(r *room.Room, msgID uint16, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Log.Errorw("Failed to encode message", "msg", msgID, "error", err)
		return
	}
	if err := s.broadcaster.BroadcastToRoom(r.PIN, msgID, data); err != nil {
		logger.Log.Debugw("Broadcast skipped", "pin", r.PIN, "msg", msgID, "error", err)
	}
}

func (s *GameServer) send(sess *session.Session, msgID uint16, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Log.Errorw("Failed to encode message", "msg", msgID, "error", err)
		return
	}
	if err := sess.Send(msgID, data); err != nil {
		logger.Log.Debugw("Send failed", "session", sess.ID, "msg", msgID, "error", err)
	}
}

func (s *GameServer) sendError(sess *session.Session, message string) {
	s.send(sess, network.MsgTypeError, network.ErrorResponse{Message: message})
}
