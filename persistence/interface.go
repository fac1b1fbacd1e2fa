package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/arcade/config"
	"github.com/wfunc/arcade/models"
)

// Database is the leaderboard store. Implementations are safe for concurrent use.
type Database interface {
	// EnsurePlayer creates name with zero wins if it does not exist yet.
	EnsurePlayer(ctx context.Context, name string) error
	// RecordWin adds one total win and one win for gameType, creating the player
	// when needed.
	RecordWin(ctx context.Context, name, gameType string) error
	// TopPlayers orders by wins descending, then by creation order.
	TopPlayers(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	PlayerStats(ctx context.Context, name string) (*models.PlayerStats, error)
	SaveGameRecord(ctx context.Context, record *models.GameRecord) error
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownDriver  = errors.New("unknown database driver")
)

// Open builds the store selected by cfg.Driver.
func Open(cfg config.DatabaseConfig) (Database, error) {
	pg := cfg.Postgres
	switch cfg.Driver {
	case "gorm", "":
		return NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "sql":
		return NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
}

func dsn(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

var (
	_ Database = (*GormPostgreSQL)(nil)
	_ Database = (*PostgreSQL)(nil)
	_ Database = (*Memory)(nil)
)
