package persistence

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/arcade/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn(host, port, user, password, dbname)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}
	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormPlayer{},
		&models.GormPlayerGameWin{},
		&models.GormGameRecord{},
	)
}

func (p *GormPostgreSQL) EnsurePlayer(ctx context.Context, name string) error {
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&models.GormPlayer{Name: name}).Error
}

// RecordWin bumps both counters in one transaction.
func (p *GormPostgreSQL) RecordWin(ctx context.Context, name, gameType string) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"wins":       gorm.Expr("players.wins + 1"),
				"updated_at": time.Now(),
			}),
		}).Create(&models.GormPlayer{Name: name, Wins: 1}).Error
		if err != nil {
			return err
		}

		var player models.GormPlayer
		if err := tx.Select("id").Where("name = ?", name).First(&player).Error; err != nil {
			return err
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "player_id"}, {Name: "game_type"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"wins": gorm.Expr("player_game_wins.wins + 1")}),
		}).Create(&models.GormPlayerGameWin{PlayerID: player.ID, GameType: gameType, Wins: 1}).Error
	})
}

func (p *GormPostgreSQL) TopPlayers(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	entries := []models.LeaderboardEntry{}
	err := p.db.WithContext(ctx).
		Model(&models.GormPlayer{}).
		Select("name, wins").
		Order("wins DESC, id ASC").
		Limit(limit).
		Scan(&entries).Error
	return entries, err
}

func (p *GormPostgreSQL) PlayerStats(ctx context.Context, name string) (*models.PlayerStats, error) {
	db := p.db.WithContext(ctx)

	var player models.GormPlayer
	if err := db.Where("name = ?", name).First(&player).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	var perGame []models.GormPlayerGameWin
	if err := db.Where("player_id = ?", player.ID).Find(&perGame).Error; err != nil {
		return nil, err
	}

	stats := &models.PlayerStats{Name: player.Name, Wins: player.Wins, Games: make(map[string]int, len(perGame))}
	for _, g := range perGame {
		stats.Games[g.GameType] = g.Wins
	}
	return stats, nil
}

func (p *GormPostgreSQL) SaveGameRecord(ctx context.Context, record *models.GameRecord) error {
	return p.db.WithContext(ctx).Create(models.NewGormGameRecord(record)).Error
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
