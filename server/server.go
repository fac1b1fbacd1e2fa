package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/arcade/broadcast"
	"github.com/wfunc/arcade/config"
	"github.com/wfunc/arcade/game"
	"github.com/wfunc/arcade/logger"
	"github.com/wfunc/arcade/monitor"
	"github.com/wfunc/arcade/network"
	"github.com/wfunc/arcade/persistence"
	"github.com/wfunc/arcade/room"
	arcaderpc "github.com/wfunc/arcade/rpc"
	"github.com/wfunc/arcade/services"
	"github.com/wfunc/arcade/session"
	"github.com/wfunc/arcade/timer"
)

// Options configures a GameServer. Empty addresses disable the matching listener.
type Options struct {
	HTTPAddress       string
	RPCAddress        string
	MetricsAddress    string
	MetricsNamespace  string
	HeartbeatInterval time.Duration
	SettleDelay       time.Duration
	SpeedDuelTarget   int
	LeaderboardSize   int
	RoomIdleTimeout   time.Duration
	IdleSweepInterval time.Duration
	TimerResolution   time.Duration
	// GameFactory overrides variant construction, mainly to seed boards in tests.
	GameFactory room.GameFactory
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		HTTPAddress:       cfg.Server.HTTPAddress,
		RPCAddress:        cfg.Server.RPCAddress,
		MetricsAddress:    cfg.Monitor.MetricsAddress,
		MetricsNamespace:  cfg.Monitor.Namespace,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		SettleDelay:       cfg.Game.SettleDelay,
		SpeedDuelTarget:   cfg.Game.SpeedDuelTarget,
		LeaderboardSize:   cfg.Game.LeaderboardSize,
		RoomIdleTimeout:   cfg.Game.RoomIdleTimeout,
		IdleSweepInterval: cfg.Game.IdleSweepInterval,
	}
}

type GameServer struct {
	opts           Options
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	leaderboard    *services.LeaderboardService
	monitor        *monitor.Monitor
	timers         *timer.TimerManager
	rpcServer      *arcaderpc.Server
	httpServer     *http.Server
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

// NewGameServer wires the components. No listener is opened until Start.
func NewGameServer(opts Options, db persistence.Database) *GameServer {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = time.Second
	}
	if opts.MetricsNamespace == "" {
		opts.MetricsNamespace = "arcade"
	}
	factory := opts.GameFactory
	if factory == nil {
		factory = room.DefaultGameFactory(game.WithWinScore(opts.SpeedDuelTarget))
	}

	s := &GameServer{
		opts:           opts,
		roomManager:    room.NewRoomManager(factory),
		sessionManager: session.NewManager(),
		monitor:        monitor.NewMonitor(opts.MetricsNamespace),
		timers:         timer.NewTimerManager(opts.TimerResolution),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	roomBroadcaster := broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager)
	s.broadcaster = roomBroadcaster
	s.leaderboard = services.NewLeaderboardService(db, roomBroadcaster, opts.LeaderboardSize)

	s.rpcServer = arcaderpc.NewServer(opts.RPCAddress)
	if err := s.rpcServer.Register(arcaderpc.NewArcadeService(s.leaderboard, s.roomManager)); err != nil {
		logger.Log.Fatalf("Failed to register RPC service: %v", err)
	}
	return s
}

// Router serves the WebSocket endpoint and the small JSON surface next to it.
func (s *GameServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealth)
	r.Get("/leaderboard", s.handleLeaderboard)
	return r
}

// Start blocks serving HTTP until Shutdown.
func (s *GameServer) Start() error {
	if s.opts.RPCAddress != "" {
		if err := s.rpcServer.Listen(); err != nil {
			return err
		}
		go s.rpcServer.Start()
	}
	if s.opts.MetricsAddress != "" {
		s.monitor.StartServer(s.opts.MetricsAddress)
	}
	if s.opts.RoomIdleTimeout > 0 {
		interval := s.opts.IdleSweepInterval
		if interval <= 0 {
			interval = time.Minute
		}
		s.timers.AddTimer(interval, interval, s.sweepIdleRooms)
	}

	s.httpServer = &http.Server{Addr: s.opts.HTTPAddress, Handler: s.Router()}
	logger.Log.Infof("Game server listening on %s", s.opts.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting work and drops every connected client.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		s.timers.Stop()
		s.rpcServer.Stop()
		if s.httpServer != nil {
			err = s.httpServer.Shutdown(ctx)
		}
		for _, sess := range s.sessionManager.All() {
			sess.Close()
		}
		err = errors.Join(err, s.monitor.Shutdown(ctx))
	})
	return err
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn))
}

func (s *GameServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"rooms":    s.roomManager.Count(),
		"sessions": s.sessionManager.Count(),
	})
}

func (s *GameServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	top, err := s.leaderboard.Top(r.Context())
	if err != nil {
		logger.Log.Errorw("Failed to load leaderboard", "error", err)
		writeJSON(w, http.StatusInternalServerError, network.ErrorResponse{Message: "leaderboard unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, top)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *GameServer) handleConnection(conn network.Connection) {
	sess := s.connect(conn)
	defer s.disconnect(sess)

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}
		packet, err := conn.ReadPacket()
		if err != nil {
			return
		}
		s.handlePacket(sess, packet)
	}
}

// connect registers a session and greets it with the current leaderboard.
func (s *GameServer) connect(conn network.Connection) *session.Session {
	sess := session.NewSession(uuid.New().String(), conn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()
	if s.opts.HeartbeatInterval > 0 {
		conn.SetHeartbeat(s.opts.HeartbeatInterval)
	}
	logger.Log.Infof("New connection from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if top, err := s.leaderboard.Top(ctx); err != nil {
		logger.Log.Warnw("Leaderboard unavailable for new session", "session", sess.ID, "error", err)
	} else {
		s.send(sess, network.MsgTypeLeaderboard, top)
	}
	return sess
}

func (s *GameServer) disconnect(sess *session.Session) {
	logger.Log.Infof("Connection closed from %s, session ID: %s", sess.Conn.RemoteAddr(), sess.GetID())
	s.handleDisconnect(sess)
	s.sessionManager.Remove(sess.GetID())
	s.monitor.DecOnlinePlayers()
	sess.Close()
}
