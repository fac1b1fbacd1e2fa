package server

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/arcade/game"
	"github.com/wfunc/arcade/models"
	"github.com/wfunc/arcade/network"
	"github.com/wfunc/arcade/persistence"
	"github.com/wfunc/arcade/room"
	"github.com/wfunc/arcade/session"
)

type frame struct {
	id   uint16
	data []byte
}

// MockConnection records every frame sent to it.
type MockConnection struct {
	mu     sync.Mutex
	frames []frame
}

func (c *MockConnection) Send(msgID uint16, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame{msgID, append([]byte(nil), data...)})
	return nil
}
func (c *MockConnection) Close() error                         { return nil }
func (c *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (c *MockConnection) SetHeartbeat(time.Duration)           {}
func (c *MockConnection) ReadPacket() (*network.Packet, error) { return nil, io.EOF }

// take returns the frames received so far and forgets them.
func (c *MockConnection) take() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

func (c *MockConnection) has(msgID uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.frames {
		if f.id == msgID {
			return true
		}
	}
	return false
}

func ids(frames []frame) []uint16 {
	out := make([]uint16, len(frames))
	for i, f := range frames {
		out[i] = f.id
	}
	return out
}

func decode[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.data, &v))
	return v
}

type client struct {
	sess *session.Session
	conn *MockConnection
}

func (c *client) send(s *GameServer, msgID uint16, payload any) {
	data, _ := json.Marshal(payload)
	s.handlePacket(c.sess, &network.Packet{MsgID: msgID, Data: data, Length: uint16(len(data))})
}

func orderedDeck() [16]string {
	var deck [16]string
	for i, face := range game.CardFaces {
		deck[2*i], deck[2*i+1] = face, face
	}
	return deck
}

// seededFactory deals MatchBoards in pair order and seeds everything else.
func seededFactory(opts ...game.Option) room.GameFactory {
	return func(t game.Type) (game.Game, error) {
		if t == game.TypeMatchBoard {
			return game.NewMatchBoardFromDeck(orderedDeck())
		}
		return game.New(t, append([]game.Option{game.WithRand(rand.New(rand.NewSource(1)))}, opts...)...)
	}
}

func newTestServer(t *testing.T, factory room.GameFactory) (*GameServer, *persistence.Memory) {
	t.Helper()
	db := persistence.NewMemory()
	s := NewGameServer(Options{
		SettleDelay:     30 * time.Millisecond,
		TimerResolution: 5 * time.Millisecond,
		LeaderboardSize: 10,
		GameFactory:     factory,
	}, db)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s, db
}

func connect(s *GameServer) *client {
	conn := &MockConnection{}
	sess := s.connect(conn)
	conn.take()
	return &client{sess: sess, conn: conn}
}

// startRoom creates a room of gameType for ann and seats bob.
func startRoom(t *testing.T, s *GameServer, gameType game.Type) (host, guest *client, r *room.Room) {
	t.Helper()
	host, guest = connect(s), connect(s)
	host.send(s, network.MsgTypeCreateRoom, network.CreateRoomRequest{GameType: string(gameType), Username: "ann"})
	created := host.conn.take()
	require.Equal(t, []uint16{network.MsgTypeRoomCreated, network.MsgTypeRoleAssigned}, ids(created))
	pin := decode[network.RoomCreatedResponse](t, created[0]).PIN

	guest.send(s, network.MsgTypeJoinRoom, network.JoinRoomRequest{PIN: pin, Username: "bob"})
	require.Equal(t, []uint16{network.MsgTypeRoleAssigned, network.MsgTypeGameStart}, ids(guest.conn.take()))
	require.Equal(t, []uint16{network.MsgTypeGameStart}, ids(host.conn.take()))

	r, ok := s.roomManager.GetRoom(pin)
	require.True(t, ok)
	return host, guest, r
}

func TestConnect_SendsLeaderboard(t *testing.T) {
	s, db := newTestServer(t, nil)
	require.NoError(t, db.RecordWin(context.Background(), "ann", "memory"))

	conn := &MockConnection{}
	s.connect(conn)
	frames := conn.take()
	require.Len(t, frames, 1)
	assert.EqualValues(t, network.MsgTypeLeaderboard, frames[0].id)
	assert.Equal(t, []models.LeaderboardEntry{{Name: "ann", Wins: 1}}, decode[[]models.LeaderboardEntry](t, frames[0]))
}

func TestCreateAndJoin_TurnBoard(t *testing.T) {
	s, _ := newTestServer(t, nil)
	host, guest := connect(s), connect(s)

	host.send(s, network.MsgTypeCreateRoom, map[string]string{"gameType": "tictactoe", "username": "ann"})
	created := host.conn.take()
	require.Len(t, created, 2)
	pin := decode[network.RoomCreatedResponse](t, created[0]).PIN
	assert.Len(t, pin, 4)
	assert.Equal(t, "X", decode[network.RoleAssignedResponse](t, created[1]).Role)

	guest.send(s, network.MsgTypeJoinRoom, map[string]string{"pin": pin, "username": "bob"})
	frames := guest.conn.take()
	require.Len(t, frames, 2)
	assert.Equal(t, "O", decode[network.RoleAssignedResponse](t, frames[0]).Role)

	started := decode[network.GameStartedResponse](t, frames[1])
	assert.Equal(t, pin, started.PIN)
	assert.Equal(t, "tictactoe", started.Type)
	assert.Equal(t, "X", started.Turn)
	assert.Equal(t, "ann", started.Players["p1"].Name)
	assert.Equal(t, "bob", started.Players["p2"].Name)
	assert.Equal(t, guest.sess.ID, started.Players["p2"].ID)

	assert.Equal(t, []uint16{network.MsgTypeGameStart}, ids(host.conn.take()))
	assert.Equal(t, pin, guest.sess.RoomPIN())
}

func TestCreate_RejectsUnknownGame(t *testing.T) {
	s, _ := newTestServer(t, nil)
	c := connect(s)
	c.send(s, network.MsgTypeCreateRoom, map[string]string{"gameType": "chess"})

	frames := c.conn.take()
	require.Len(t, frames, 1)
	assert.EqualValues(t, network.MsgTypeError, frames[0].id)
	assert.Equal(t, "Unknown game type", decode[network.ErrorResponse](t, frames[0]).Message)
	assert.Zero(t, s.roomManager.Count())

	c.send(s, network.MsgTypeCreateRoom, map[string]string{"username": "ann"})
	assert.Equal(t, "Invalid request", decode[network.ErrorResponse](t, c.conn.take()[0]).Message)
}

func TestTurnBoard_P1WinsTopRow(t *testing.T) {
	s, db := newTestServer(t, nil)
	host, guest, r := startRoom(t, s, game.TypeTurnBoard)
	spectator := connect(s)

	for _, m := range []struct {
		c   *client
		idx int
	}{{host, 0}, {guest, 4}, {host, 1}, {guest, 8}, {host, 2}} {
		m.c.send(s, network.MsgTypeMarkCell, map[string]any{"pin": r.PIN, "index": m.idx})
	}

	frames := host.conn.take()
	assert.Equal(t, []uint16{
		network.MsgTypeGameUpdate, network.MsgTypeGameUpdate, network.MsgTypeGameUpdate,
		network.MsgTypeGameUpdate, network.MsgTypeGameUpdate,
		network.MsgTypeGameOver, network.MsgTypeLeaderboard,
	}, ids(frames))

	update := decode[game.BoardUpdate](t, frames[4])
	assert.Equal(t, [9]game.Mark{"X", "X", "X", "", "O", "", "", "", "O"}, update.Board)
	assert.Equal(t, "X", decode[network.GameOverResponse](t, frames[5]).Winner)
	assert.Equal(t, []models.LeaderboardEntry{{Name: "ann", Wins: 1}, {Name: "bob", Wins: 0}},
		decode[[]models.LeaderboardEntry](t, frames[6]))

	assert.Equal(t, []uint16{network.MsgTypeLeaderboard}, ids(spectator.conn.take()), "every client sees the leaderboard")
	assert.Equal(t, "terminal", r.Lifecycle.Phase())

	stats, err := db.PlayerStats(context.Background(), "ann")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Games["tictactoe"])

	records := db.GameRecords()
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeWin, records[0].Outcome)
	assert.Equal(t, "ann", records[0].Winner)
	assert.Equal(t, []models.PlayerInfo{{Slot: "p1", Name: "ann", Score: 1}, {Slot: "p2", Name: "bob"}}, records[0].Players)

	// Terminal rooms ignore further moves.
	guest.conn.take()
	guest.send(s, network.MsgTypeMarkCell, map[string]any{"pin": r.PIN, "index": 5})
	assert.Empty(t, guest.conn.take())
	assert.Empty(t, host.conn.take())
}

func TestTurnBoard_SilentRejections(t *testing.T) {
	s, _ := newTestServer(t, nil)
	host, guest, r := startRoom(t, s, game.TypeTurnBoard)
	board := r.Game.(*game.TurnBoard)

	// Out of turn.
	guest.send(s, network.MsgTypeMarkCell, map[string]any{"pin": r.PIN, "index": 0})
	// Wrong variant message.
	host.send(s, network.MsgTypeFlipCard, map[string]any{"pin": r.PIN, "index": 0})
	// Malformed payload.
	host.send(s, network.MsgTypeMarkCell, map[string]any{"pin": "12", "index": 0})
	assert.Equal(t, [9]game.Mark{}, board.Cells())

	host.send(s, network.MsgTypeMarkCell, map[string]any{"pin": r.PIN, "index": 4})
	host.conn.take()
	guest.conn.take()

	// Occupied cell.
	guest.send(s, network.MsgTypeMarkCell, map[string]any{"pin": r.PIN, "index": 4})
	assert.Empty(t, host.conn.take())
	assert.Empty(t, guest.conn.take())
	assert.Equal(t, game.SlotP2, board.Turn())
}

func TestMove_WithoutIndexIsIgnored(t *testing.T) {
	s, _ := newTestServer(t, seededFactory())
	host, guest, r := startRoom(t, s, game.TypeTurnBoard)

	host.send(s, network.MsgTypeMarkCell, map[string]string{"pin": r.PIN})
	assert.Empty(t, host.conn.take())
	assert.Empty(t, guest.conn.take())
	assert.Equal(t, [9]game.Mark{}, r.Game.(*game.TurnBoard).Cells())
	assert.Equal(t, game.SlotP1, r.Game.Turn())

	host.send(s, network.MsgTypeMarkCell, map[string]any{"pin": r.PIN, "index": 0})
	assert.Equal(t, []uint16{network.MsgTypeGameUpdate}, ids(guest.conn.take()))

	flipper, watcher, mr := startRoom(t, s, game.TypeMatchBoard)
	flipper.send(s, network.MsgTypeFlipCard, map[string]string{"pin": mr.PIN})
	assert.Empty(t, watcher.conn.take())
	assert.Empty(t, mr.Game.(*game.MatchBoard).Flipped())
}

func TestTurnBoard_DrawSkipsLeaderboard(t *testing.T) {
	s, db := newTestServer(t, nil)
	host, guest, r := startRoom(t, s, game.TypeTurnBoard)

	players := []*client{host, guest}
	for i, idx := range []int{0, 1, 2, 4, 3, 5, 7, 6, 8} {
		players[i%2].send(s, network.MsgTypeMarkCell, map[string]any{"pin": r.PIN, "index": idx})
	}

	frames := host.conn.take()
	last := frames[len(frames)-1]
	require.EqualValues(t, network.MsgTypeGameOver, last.id)
	assert.Equal(t, "Draw", decode[network.GameOverResponse](t, last).Winner)

	top, _ := db.TopPlayers(context.Background(), 10)
	for _, e := range top {
		assert.Zero(t, e.Wins)
	}
	records := db.GameRecords()
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeDraw, records[0].Outcome)
}

func TestJoin_Errors(t *testing.T) {
	s, _ := newTestServer(t, nil)
	host, guest, r := startRoom(t, s, game.TypeMatchBoard)
	third := connect(s)

	third.send(s, network.MsgTypeJoinRoom, map[string]string{"pin": r.PIN, "username": "carol"})
	frames := third.conn.take()
	require.Len(t, frames, 1)
	assert.Equal(t, "Room is full", decode[network.ErrorResponse](t, frames[0]).Message)
	assert.Empty(t, host.conn.take())
	assert.Empty(t, guest.conn.take())
	assert.Equal(t, "bob", r.Occupant(game.SlotP2).Name)
	assert.Equal(t, game.NoSlot, r.SlotOf(third.sess.ID))

	third.send(s, network.MsgTypeJoinRoom, map[string]string{"pin": "0001"})
	assert.Equal(t, "Invalid PIN", decode[network.ErrorResponse](t, third.conn.take()[0]).Message)

	host.send(s, network.MsgTypeJoinRoom, map[string]string{"pin": r.PIN})
	assert.Equal(t, "You are already in this room", decode[network.ErrorResponse](t, host.conn.take()[0]).Message)
}

func TestReset_OnlyHost(t *testing.T) {
	s, _ := newTestServer(t, nil)
	host, guest, r := startRoom(t, s, game.TypeTurnBoard)
	host.send(s, network.MsgTypeMarkCell, map[string]any{"pin": r.PIN, "index": 0})
	host.conn.take()
	guest.conn.take()
	gen := r.Generation()

	guest.send(s, network.MsgTypeResetGame, map[string]string{"pin": r.PIN})
	assert.Empty(t, host.conn.take())
	assert.Empty(t, guest.conn.take())
	assert.Equal(t, game.MarkX, r.Game.(*game.TurnBoard).Cells()[0])
	assert.Equal(t, gen, r.Generation())

	host.send(s, network.MsgTypeResetGame, map[string]string{"pin": r.PIN})
	frames := guest.conn.take()
	require.Equal(t, []uint16{network.MsgTypeRestart}, ids(frames))
	assert.Equal(t, "tictactoe", decode[network.RestartResponse](t, frames[0]).Type)
	assert.Equal(t, [9]game.Mark{}, r.Game.(*game.TurnBoard).Cells())
	assert.Equal(t, "active", r.Lifecycle.Phase())
	assert.Equal(t, gen+1, r.Generation())
}

func TestReset_BeforeSecondPeerStaysAwaiting(t *testing.T) {
	s, _ := newTestServer(t, nil)
	host := connect(s)
	host.send(s, network.MsgTypeCreateRoom, map[string]string{"gameType": "mathwars"})
	pin := decode[network.RoomCreatedResponse](t, host.conn.take()[0]).PIN

	host.send(s, network.MsgTypeResetGame, map[string]string{"pin": pin})
	assert.Equal(t, []uint16{network.MsgTypeRestart}, ids(host.conn.take()))
	r, _ := s.roomManager.GetRoom(pin)
	assert.Equal(t, "awaiting", r.Lifecycle.Phase())

	// Moves wait for the second peer.
	q := r.Game.(*game.SpeedDuel).Question()
	host.send(s, network.MsgTypeSubmitAnswer, map[string]any{"pin": pin, "answer": q.Answer})
	assert.Empty(t, host.conn.take())
}

func TestMatchBoard_MatchKeepsTurn(t *testing.T) {
	s, _ := newTestServer(t, seededFactory())
	host, guest, r := startRoom(t, s, game.TypeMatchBoard)

	host.send(s, network.MsgTypeFlipCard, map[string]any{"pin": r.PIN, "index": 0})
	host.send(s, network.MsgTypeFlipCard, map[string]any{"pin": r.PIN, "index": 1})

	frames := guest.conn.take()
	require.Equal(t, []uint16{network.MsgTypeMemoryFlip, network.MsgTypeMemoryFlip, network.MsgTypeMemoryMatch}, ids(frames))
	assert.Equal(t, game.CardFlip{Index: 1, Value: game.CardFaces[0]}, decode[game.CardFlip](t, frames[1]))
	match := decode[game.PairMatch](t, frames[2])
	assert.Equal(t, [2]int{0, 1}, match.Matches)
	assert.Equal(t, game.Scores{P1: 1}, match.Scores)
	assert.Equal(t, game.SlotP1, match.Turn)

	// p1 still holds the turn, p2 cannot flip.
	host.conn.take()
	guest.send(s, network.MsgTypeFlipCard, map[string]any{"pin": r.PIN, "index": 2})
	assert.Empty(t, host.conn.take())
}

func TestMatchBoard_MismatchSettlesAfterDelay(t *testing.T) {
	s, _ := newTestServer(t, seededFactory())
	host, guest, r := startRoom(t, s, game.TypeMatchBoard)

	host.send(s, network.MsgTypeFlipCard, map[string]any{"pin": r.PIN, "index": 2})
	host.send(s, network.MsgTypeFlipCard, map[string]any{"pin": r.PIN, "index": 4})
	// A third flip during the settle delay is refused.
	host.send(s, network.MsgTypeFlipCard, map[string]any{"pin": r.PIN, "index": 6})

	require.Eventually(t, func() bool { return guest.conn.has(network.MsgTypeMemoryMismatch) }, time.Second, 5*time.Millisecond)
	frames := guest.conn.take()
	require.Equal(t, []uint16{network.MsgTypeMemoryFlip, network.MsgTypeMemoryFlip, network.MsgTypeMemoryMismatch}, ids(frames))
	assert.Equal(t, game.PairMismatch{Indices: [2]int{2, 4}, Turn: game.SlotP2}, decode[game.PairMismatch](t, frames[2]))

	host.conn.take()
	guest.send(s, network.MsgTypeFlipCard, map[string]any{"pin": r.PIN, "index": 6})
	assert.Equal(t, []uint16{network.MsgTypeMemoryFlip}, ids(host.conn.take()))
}

func TestMatchBoard_ResetCancelsPendingSettle(t *testing.T) {
	s, _ := newTestServer(t, seededFactory())
	s.opts.SettleDelay = time.Second
	host, guest, r := startRoom(t, s, game.TypeMatchBoard)

	host.send(s, network.MsgTypeFlipCard, map[string]any{"pin": r.PIN, "index": 2})
	host.send(s, network.MsgTypeFlipCard, map[string]any{"pin": r.PIN, "index": 4})
	require.Equal(t, 1, s.timers.Pending())
	host.send(s, network.MsgTypeResetGame, map[string]string{"pin": r.PIN})
	assert.Zero(t, s.timers.Pending(), "reset removes the revert task")

	// A task that escaped cancellation is still ignored by generation.
	s.resolveSettle(r, r.Generation()-1)
	host.send(s, network.MsgTypeFlipCard, map[string]any{"pin": r.PIN, "index": 8})

	assert.False(t, guest.conn.has(network.MsgTypeMemoryMismatch))
	mb := r.Game.(*game.MatchBoard)
	assert.Equal(t, []int{8}, mb.Flipped(), "the stale revert must not touch the new deal")
	assert.Equal(t, game.SlotP1, mb.Turn())
}

func TestSpeedDuel_RaceToTarget(t *testing.T) {
	s, db := newTestServer(t, seededFactory(game.WithWinScore(3)))
	host, guest, r := startRoom(t, s, game.TypeSpeedDuel)
	sd := r.Game.(*game.SpeedDuel)

	answer := func(c *client, text any) {
		c.send(s, network.MsgTypeSubmitAnswer, map[string]any{"pin": r.PIN, "answer": text})
	}

	answer(guest, "not a number")
	answer(guest, sd.Question().Answer+1)
	assert.Empty(t, host.conn.take())

	answer(guest, sd.Question().Answer)
	frames := host.conn.take()
	require.Equal(t, []uint16{network.MsgTypeNextQuestion}, ids(frames))
	next := decode[game.NextQuestion](t, frames[0])
	assert.Equal(t, game.SlotP2, next.Scorer)
	assert.Equal(t, game.Scores{P2: 1}, next.Scores)
	assert.Equal(t, sd.Question().String(), next.Question)
	guest.conn.take()

	for i := 0; i < 3; i++ {
		answer(host, " "+strconv.Itoa(sd.Question().Answer)+" ")
	}
	frames = guest.conn.take()
	require.Equal(t, []uint16{
		network.MsgTypeNextQuestion, network.MsgTypeNextQuestion,
		network.MsgTypeGameOver, network.MsgTypeLeaderboard,
	}, ids(frames), "the winning answer ends the duel without a new question")
	assert.Equal(t, "p1", decode[network.GameOverResponse](t, frames[2]).Winner)

	stats, err := db.PlayerStats(context.Background(), "ann")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"mathwars": 1}, stats.Games)
}

func TestLeaveAndDisconnect(t *testing.T) {
	s, _ := newTestServer(t, nil)
	host, guest, r := startRoom(t, s, game.TypeTurnBoard)

	guest.send(s, network.MsgTypeLeaveRoom, map[string]string{"pin": r.PIN})
	assert.Equal(t, []uint16{network.MsgTypeOpponentLeft}, ids(host.conn.take()))
	assert.Empty(t, guest.conn.take())
	assert.Equal(t, "awaiting", r.Lifecycle.Phase())
	assert.Empty(t, guest.sess.RoomPIN())

	// A new peer may take the free seat.
	late := connect(s)
	late.send(s, network.MsgTypeJoinRoom, map[string]string{"pin": r.PIN, "username": "dave"})
	assert.Equal(t, []uint16{network.MsgTypeRoleAssigned, network.MsgTypeGameStart}, ids(late.conn.take()))
	host.conn.take()

	s.disconnect(late.sess)
	assert.Equal(t, []uint16{network.MsgTypeOpponentLeft}, ids(host.conn.take()))

	s.disconnect(host.sess)
	assert.False(t, s.roomManager.IsLive(r))
	assert.Zero(t, s.roomManager.Count())

	guest.send(s, network.MsgTypeLeaveRoom, map[string]string{"pin": r.PIN})
	assert.Equal(t, "Invalid PIN", decode[network.ErrorResponse](t, guest.conn.take()[0]).Message)
}

func TestCreate_LeavesPreviousRoom(t *testing.T) {
	s, _ := newTestServer(t, nil)
	host := connect(s)
	host.send(s, network.MsgTypeCreateRoom, map[string]string{"gameType": "memory"})
	first := decode[network.RoomCreatedResponse](t, host.conn.take()[0]).PIN

	host.send(s, network.MsgTypeCreateRoom, map[string]string{"gameType": "tictactoe"})
	second := decode[network.RoomCreatedResponse](t, host.conn.take()[0]).PIN

	_, ok := s.roomManager.GetRoom(first)
	assert.False(t, ok)
	assert.Equal(t, second, host.sess.RoomPIN())
	assert.Equal(t, 1, s.roomManager.Count())
}

func TestChat(t *testing.T) {
	s, _ := newTestServer(t, nil)
	host, guest, r := startRoom(t, s, game.TypeTurnBoard)
	outsider := connect(s)

	guest.send(s, network.MsgTypeChat, map[string]string{"pin": r.PIN, "message": "gl hf", "username": "mallory"})
	frames := host.conn.take()
	require.Equal(t, []uint16{network.MsgTypeChatMessage}, ids(frames))
	assert.Equal(t, network.ChatMessageResponse{Username: "bob", Message: "gl hf"}, decode[network.ChatMessageResponse](t, frames[0]))

	outsider.send(s, network.MsgTypeChat, map[string]string{"pin": r.PIN, "message": "hi"})
	assert.Empty(t, host.conn.take())
	assert.Empty(t, outsider.conn.take())
}

type panicGame struct{ game.Game }

func (panicGame) Apply(game.Slot, game.Move) (game.Result, error) { panic("boom") }

func TestHandlePacket_RecoversFromPanic(t *testing.T) {
	s, _ := newTestServer(t, func(gt game.Type) (game.Game, error) {
		g, err := game.New(gt)
		return panicGame{g}, err
	})
	host, guest, r := startRoom(t, s, game.TypeTurnBoard)

	assert.NotPanics(t, func() {
		host.send(s, network.MsgTypeMarkCell, map[string]any{"pin": r.PIN, "index": 0})
	})
	// The room lock was released.
	guest.send(s, network.MsgTypeChat, map[string]string{"pin": r.PIN, "message": "still here"})
	assert.True(t, host.conn.has(network.MsgTypeChatMessage))
}

func TestSweepIdleRooms(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.opts.RoomIdleTimeout = time.Millisecond
	host, guest, r := startRoom(t, s, game.TypeTurnBoard)

	time.Sleep(5 * time.Millisecond)
	s.sweepIdleRooms()

	assert.False(t, s.roomManager.IsLive(r))
	for _, c := range []*client{host, guest} {
		frames := c.conn.take()
		require.Len(t, frames, 1)
		assert.Equal(t, "Room closed after inactivity", decode[network.ErrorResponse](t, frames[0]).Message)
		assert.Empty(t, c.sess.RoomPIN())
	}
}

func TestHTTPEndpoints(t *testing.T) {
	s, db := newTestServer(t, nil)
	require.NoError(t, db.RecordWin(context.Background(), "ann", "memory"))
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])

	resp, err = http.Get(srv.URL + "/leaderboard")
	require.NoError(t, err)
	var top []models.LeaderboardEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&top))
	resp.Body.Close()
	assert.Equal(t, []models.LeaderboardEntry{{Name: "ann", Wins: 1}}, top)
}

func TestWebSocket_CreateRoom(t *testing.T) {
	s, _ := newTestServer(t, nil)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	conn := network.NewWSConnection(ws)
	defer conn.Close()

	pkt, err := conn.ReadPacket()
	require.NoError(t, err)
	assert.EqualValues(t, network.MsgTypeLeaderboard, pkt.MsgID)

	require.NoError(t, conn.Send(network.MsgTypeCreateRoom, []byte(`{"gameType":"memory","username":"ann"}`)))
	pkt, err = conn.ReadPacket()
	require.NoError(t, err)
	assert.EqualValues(t, network.MsgTypeRoomCreated, pkt.MsgID)
	pkt, err = conn.ReadPacket()
	require.NoError(t, err)
	assert.EqualValues(t, network.MsgTypeRoleAssigned, pkt.MsgID)
	assert.JSONEq(t, `{"role":"p1"}`, string(pkt.Data))

	conn.Close()
	assert.Eventually(t, func() bool { return s.roomManager.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestJoin_AfterGameOverStartsFreshRound(t *testing.T) {
	s, _ := newTestServer(t, nil)
	host, guest, r := startRoom(t, s, game.TypeTurnBoard)
	for _, m := range []struct {
		c   *client
		idx int
	}{{host, 0}, {guest, 4}, {host, 1}, {guest, 8}, {host, 2}} {
		m.c.send(s, network.MsgTypeMarkCell, map[string]any{"pin": r.PIN, "index": m.idx})
	}
	require.Equal(t, "terminal", r.Lifecycle.Phase())
	gen := r.Generation()

	guest.send(s, network.MsgTypeLeaveRoom, map[string]string{"pin": r.PIN})
	assert.Equal(t, "awaiting", r.Lifecycle.Phase())
	assert.Equal(t, gen+1, r.Generation())
	host.conn.take()

	late := connect(s)
	late.send(s, network.MsgTypeJoinRoom, map[string]string{"pin": r.PIN, "username": "dave"})
	frames := late.conn.take()
	require.Equal(t, []uint16{network.MsgTypeRoleAssigned, network.MsgTypeGameStart}, ids(frames))
	started := decode[network.GameStartedResponse](t, frames[1])
	assert.Equal(t, "X", started.Turn)
	assert.Equal(t, "active", r.Lifecycle.Phase())
	host.conn.take()

	host.send(s, network.MsgTypeMarkCell, map[string]any{"pin": r.PIN, "index": 4})
	assert.Equal(t, []uint16{network.MsgTypeGameUpdate}, ids(late.conn.take()))
	late.send(s, network.MsgTypeMarkCell, map[string]any{"pin": r.PIN, "index": 0})
	assert.Equal(t, []uint16{network.MsgTypeGameUpdate}, ids(host.conn.take()))
	assert.Equal(t, [9]game.Mark{"O", "", "", "", "X"}, r.Game.(*game.TurnBoard).Cells())
}
