package models

import (
	"time"
)

// LeaderboardEntry is one row of the top-N view sent to clients.
type LeaderboardEntry struct {
	Name string `json:"name"`
	Wins int    `json:"wins"`
}

// PlayerStats 玩家统计信息
type PlayerStats struct {
	Name  string         `json:"name"`
	Wins  int            `json:"wins"`
	Games map[string]int `json:"games"`
}

// 对局结果
const (
	OutcomeWin  = "win"
	OutcomeDraw = "draw"
)

// GameRecord 游戏记录模型
type GameRecord struct {
	RoomPIN   string        `json:"room_pin"`
	GameType  string        `json:"game_type"`
	Outcome   string        `json:"outcome"`
	Winner    string        `json:"winner,omitempty"`
	Players   []PlayerInfo  `json:"players"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// PlayerInfo 玩家信息（用于游戏记录）
type PlayerInfo struct {
	Slot  string `json:"slot"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}
