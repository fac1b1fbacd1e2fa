package persistence

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/wfunc/arcade/models"
)

type memPlayer struct {
	id    int
	name  string
	wins  int
	games map[string]int
}

// Memory keeps the leaderboard in process. Used by tests and driver "memory".
type Memory struct {
	mu      sync.RWMutex
	players map[string]*memPlayer
	nextID  int
	records []models.GameRecord
}

func NewMemory() *Memory {
	return &Memory{players: make(map[string]*memPlayer)}
}

func (m *Memory) ensure(name string) *memPlayer {
	p, ok := m.players[name]
	if !ok {
		m.nextID++
		p = &memPlayer{id: m.nextID, name: name, games: make(map[string]int)}
		m.players[name] = p
	}
	return p
}

func (m *Memory) EnsurePlayer(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(name)
	return nil
}

func (m *Memory) RecordWin(_ context.Context, name, gameType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.ensure(name)
	p.wins++
	p.games[gameType]++
	return nil
}

func (m *Memory) TopPlayers(_ context.Context, limit int) ([]models.LeaderboardEntry, error) {
	m.mu.RLock()
	players := make([]*memPlayer, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.RUnlock()

	sort.Slice(players, func(i, j int) bool {
		if players[i].wins != players[j].wins {
			return players[i].wins > players[j].wins
		}
		return players[i].id < players[j].id
	})

	if limit >= 0 && len(players) > limit {
		players = players[:limit]
	}
	entries := make([]models.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, models.LeaderboardEntry{Name: p.name, Wins: p.wins})
	}
	return entries, nil
}

func (m *Memory) PlayerStats(_ context.Context, name string) (*models.PlayerStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[name]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &models.PlayerStats{Name: p.name, Wins: p.wins, Games: maps.Clone(p.games)}, nil
}

func (m *Memory) SaveGameRecord(_ context.Context, record *models.GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *record)
	return nil
}

// GameRecords returns a copy of every saved record in insertion order.
func (m *Memory) GameRecords() []models.GameRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.GameRecord(nil), m.records...)
}

func (m *Memory) Close() error { return nil }
