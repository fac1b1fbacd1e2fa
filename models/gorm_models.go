package models

import (
	"time"
)

// GormPlayer is a leaderboard user. ID grows with creation order and breaks ties
// between equal win counts.
type GormPlayer struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	Wins      int    `gorm:"not null;default:0;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GormPlayer) TableName() string { return "players" }

// GormPlayerGameWin counts wins per variant.
type GormPlayerGameWin struct {
	PlayerID uint   `gorm:"primaryKey"`
	GameType string `gorm:"primaryKey;size:32"`
	Wins     int    `gorm:"not null;default:0"`
}

func (GormPlayerGameWin) TableName() string { return "player_game_wins" }

// GormGameRecord 游戏记录模型
type GormGameRecord struct {
	ID         uint         `gorm:"primaryKey"`
	RoomPIN    string       `gorm:"index;not null;size:4"`
	GameType   string       `gorm:"not null;size:32"`
	Outcome    string       `gorm:"not null;size:8"`
	Winner     string       `gorm:"index"`
	Players    []PlayerInfo `gorm:"serializer:json;type:jsonb;not null"`
	DurationMs int64        `gorm:"default:0"` // 游戏时长(毫秒)
	CreatedAt  time.Time    `gorm:"index"`
}

func (GormGameRecord) TableName() string { return "game_records" }

func NewGormGameRecord(r *GameRecord) *GormGameRecord {
	return &GormGameRecord{
		RoomPIN:    r.RoomPIN,
		GameType:   r.GameType,
		Outcome:    r.Outcome,
		Winner:     r.Winner,
		Players:    r.Players,
		DurationMs: r.Duration.Milliseconds(),
		CreatedAt:  r.CreatedAt,
	}
}
