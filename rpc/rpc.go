package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"net/rpc"
	"sort"
	"time"

	"github.com/wfunc/arcade/logger"
	"github.com/wfunc/arcade/models"
	"github.com/wfunc/arcade/room"
	"github.com/wfunc/arcade/services"
)

const callTimeout = 5 * time.Second

// Server manages the admin RPC listener. Services are registered on a private
// rpc.Server rather than the package default.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

func NewServer(addr string) *Server {
	return &Server{address: addr, rpc: rpc.NewServer()}
}

func (s *Server) Register(rcvr any) error {
	return s.rpc.Register(rcvr)
}

func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.listener = listener
	return nil
}

// Start accepts connections until Stop. Listen must have succeeded.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// ServeConn serves a single connection and blocks until the client hangs up.
func (s *Server) ServeConn(conn io.ReadWriteCloser) {
	s.rpc.ServeConn(conn)
}

func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// ArcadeService exposes the leaderboard and live rooms to operators.
type ArcadeService struct {
	leaderboard *services.LeaderboardService
	rooms       *room.Manager
}

func NewArcadeService(lb *services.LeaderboardService, rooms *room.Manager) *ArcadeService {
	return &ArcadeService{leaderboard: lb, rooms: rooms}
}

// LeaderboardArgs.Limit trims the configured top view; zero keeps it whole.
type LeaderboardArgs struct {
	Limit int
}

type LeaderboardReply struct {
	Entries []models.LeaderboardEntry
}

func (a *ArcadeService) Leaderboard(args *LeaderboardArgs, reply *LeaderboardReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	entries, err := a.leaderboard.Top(ctx)
	if err != nil {
		return err
	}
	if args.Limit > 0 && len(entries) > args.Limit {
		entries = entries[:args.Limit]
	}
	reply.Entries = entries
	return nil
}

type PlayerStatsArgs struct {
	Name string
}

type PlayerStatsReply struct {
	Stats models.PlayerStats
}

func (a *ArcadeService) PlayerStats(args *PlayerStatsArgs, reply *PlayerStatsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	stats, err := a.leaderboard.PlayerStats(ctx, args.Name)
	if err != nil {
		return err
	}
	reply.Stats = *stats
	return nil
}

// RoomStatsArgs.GameType filters by variant when set.
type RoomStatsArgs struct {
	GameType string
}

type RoomStatsReply struct {
	Count int
	Rooms []room.Info
}

// RoomStats lists live rooms ordered by PIN.
func (a *ArcadeService) RoomStats(args *RoomStatsArgs, reply *RoomStatsReply) error {
	for _, r := range a.rooms.Rooms() {
		if args.GameType != "" && string(r.GameType) != args.GameType {
			continue
		}
		reply.Rooms = append(reply.Rooms, r.Info())
	}
	sort.Slice(reply.Rooms, func(i, j int) bool { return reply.Rooms[i].PIN < reply.Rooms[j].PIN })
	reply.Count = len(reply.Rooms)
	return nil
}
