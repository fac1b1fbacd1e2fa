package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/lib/pq" // PostgreSQL 驱动

	"github.com/wfunc/arcade/models"
)

// PostgreSQL is the database/sql implementation. Schema matches the GORM models.
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn(host, port, user, password, dbname))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		return nil, err
	}
	return &PostgreSQL{db: db}, nil
}

func initTables(ctx context.Context, db *sql.DB) error {
	statements := []string{`
        CREATE TABLE IF NOT EXISTS players (
            id BIGSERIAL PRIMARY KEY,
            name TEXT UNIQUE NOT NULL,
            wins INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`, `
        CREATE TABLE IF NOT EXISTS player_game_wins (
            player_id BIGINT NOT NULL REFERENCES players(id),
            game_type VARCHAR(32) NOT NULL,
            wins INTEGER NOT NULL DEFAULT 0,
            PRIMARY KEY (player_id, game_type)
        )`, `
        CREATE TABLE IF NOT EXISTS game_records (
            id BIGSERIAL PRIMARY KEY,
            room_pin VARCHAR(4) NOT NULL,
            game_type VARCHAR(32) NOT NULL,
            outcome VARCHAR(8) NOT NULL,
            winner TEXT,
            players JSONB NOT NULL,
            duration_ms BIGINT DEFAULT 0,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`, `
        CREATE INDEX IF NOT EXISTS idx_players_wins ON players(wins DESC, id);
        CREATE INDEX IF NOT EXISTS idx_game_records_room_pin ON game_records(room_pin);
        CREATE INDEX IF NOT EXISTS idx_game_records_created_at ON game_records(created_at);
    `}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgreSQL) EnsurePlayer(ctx context.Context, name string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO players (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	return err
}

func (p *PostgreSQL) RecordWin(ctx context.Context, name, gameType string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var playerID int64
	err = tx.QueryRowContext(ctx, `
        INSERT INTO players (name, wins) VALUES ($1, 1)
        ON CONFLICT (name)
        DO UPDATE SET wins = players.wins + 1, updated_at = CURRENT_TIMESTAMP
        RETURNING id`, name).Scan(&playerID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO player_game_wins (player_id, game_type, wins) VALUES ($1, $2, 1)
        ON CONFLICT (player_id, game_type)
        DO UPDATE SET wins = player_game_wins.wins + 1`, playerID, gameType)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgreSQL) TopPlayers(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT name, wins FROM players ORDER BY wins DESC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.Name, &e.Wins); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgreSQL) PlayerStats(ctx context.Context, name string) (*models.PlayerStats, error) {
	stats := &models.PlayerStats{Games: map[string]int{}}
	var playerID int64
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, wins FROM players WHERE name = $1`, name).Scan(&playerID, &stats.Name, &stats.Wins)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT game_type, wins FROM player_game_wins WHERE player_id = $1`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var gameType string
		var wins int
		if err := rows.Scan(&gameType, &wins); err != nil {
			return nil, err
		}
		stats.Games[gameType] = wins
	}
	return stats, rows.Err()
}

func (p *PostgreSQL) SaveGameRecord(ctx context.Context, record *models.GameRecord) error {
	playersJSON, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
        INSERT INTO game_records (room_pin, game_type, outcome, winner, players, duration_ms, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.RoomPIN, record.GameType, record.Outcome, record.Winner,
		playersJSON, record.Duration.Milliseconds(), record.CreatedAt)
	return err
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
