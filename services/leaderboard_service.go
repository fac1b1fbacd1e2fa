package services

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/wfunc/arcade/logger"
	"github.com/wfunc/arcade/models"
	"github.com/wfunc/arcade/network"
	"github.com/wfunc/arcade/persistence"
)

const DefaultLeaderboardSize = 10

// Notifier delivers a frame to every connected client.
type Notifier interface {
	BroadcastToAll(msgID uint16, data []byte) error
}

// LeaderboardService records wins and keeps the top-N view that clients see.
// Empty usernames are anonymous players and never reach the store.
type LeaderboardService struct {
	db       persistence.Database
	notifier Notifier
	size     int

	// refreshMu is held from reading the store until the view is cached.
	refreshMu sync.Mutex
	mu        sync.RWMutex
	top       []models.LeaderboardEntry
	loaded    bool
}

func NewLeaderboardService(db persistence.Database, notifier Notifier, size int) *LeaderboardService {
	if size <= 0 {
		size = DefaultLeaderboardSize
	}
	return &LeaderboardService{db: db, notifier: notifier, size: size}
}

func (s *LeaderboardService) EnsurePlayer(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	return s.db.EnsurePlayer(ctx, name)
}

// RecordWin stores the win, recomputes the top view and pushes it to every client.
func (s *LeaderboardService) RecordWin(ctx context.Context, name, gameType string) error {
	if name == "" {
		return nil
	}
	if err := s.db.RecordWin(ctx, name, gameType); err != nil {
		return err
	}
	top, err := s.Refresh(ctx)
	if err != nil {
		return err
	}
	s.publish(top)
	return nil
}

// Refresh reloads the top view from the store.
func (s *LeaderboardService) Refresh(ctx context.Context) ([]models.LeaderboardEntry, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	top, err := s.db.TopPlayers(ctx, s.size)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.top, s.loaded = top, true
	s.mu.Unlock()
	return slices.Clone(top), nil
}

// Top returns the cached view, loading it on first use.
func (s *LeaderboardService) Top(ctx context.Context) ([]models.LeaderboardEntry, error) {
	s.mu.RLock()
	top, loaded := s.top, s.loaded
	s.mu.RUnlock()
	if loaded {
		return slices.Clone(top), nil
	}
	return s.Refresh(ctx)
}

func (s *LeaderboardService) PlayerStats(ctx context.Context, name string) (*models.PlayerStats, error) {
	return s.db.PlayerStats(ctx, name)
}

func (s *LeaderboardService) SaveGameRecord(ctx context.Context, record *models.GameRecord) error {
	return s.db.SaveGameRecord(ctx, record)
}

func (s *LeaderboardService) publish(top []models.LeaderboardEntry) {
	if s.notifier == nil {
		return
	}
	data, err := json.Marshal(top)
	if err != nil {
		logger.Log.Errorw("Failed to encode leaderboard", "error", err)
		return
	}
	if err := s.notifier.BroadcastToAll(network.MsgTypeLeaderboard, data); err != nil {
		logger.Log.Warnw("Leaderboard broadcast failed", "error", err)
	}
}
