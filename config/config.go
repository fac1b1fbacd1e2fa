package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
}

type ServerConfig struct {
	HTTPAddress       string        `mapstructure:"http_address"`
	RPCAddress        string        `mapstructure:"rpc_address"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type MonitorConfig struct {
	MetricsAddress string `mapstructure:"metrics_address"`
	Namespace      string `mapstructure:"namespace"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	// Driver selects the leaderboard store: gorm, sql or memory.
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type GameConfig struct {
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	SpeedDuelTarget   int           `mapstructure:"speed_duel_target"`
	LeaderboardSize   int           `mapstructure:"leaderboard_size"`
	RoomIdleTimeout   time.Duration `mapstructure:"room_idle_timeout"`
	IdleSweepInterval time.Duration `mapstructure:"idle_sweep_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("monitor.metrics_address", ":9090")
	v.SetDefault("monitor.namespace", "arcade")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "gorm")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "arcade")
	v.SetDefault("game.settle_delay", time.Second)
	v.SetDefault("game.speed_duel_target", 10)
	v.SetDefault("game.leaderboard_size", 10)
	v.SetDefault("game.room_idle_timeout", 0)
	v.SetDefault("game.idle_sweep_interval", time.Minute)
}

// LoadConfig reads config.yaml from path. A missing file is not an error: defaults
// and ARCADE_* environment variables (optionally from path/.env) still apply.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("arcade")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, err
	}
	return config, nil
}
