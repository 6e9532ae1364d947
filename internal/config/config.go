// Package config loads battle server configuration with viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/magefree/battle-server-go/internal/battle"
	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Rules   battle.Rules  `mapstructure:"rules"`
	Storage StorageConfig `mapstructure:"storage"`
	Display DisplayConfig `mapstructure:"display"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Game    GameConfig    `mapstructure:"game"`
}

// ServerConfig configures the gRPC listener and game sessions.
type ServerConfig struct {
	GRPC        GRPCConfig    `mapstructure:"grpc"`
	MaxGames    int           `mapstructure:"max_games"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// GRPCConfig configures the gRPC server.
type GRPCConfig struct {
	Address              string `mapstructure:"address"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
}

// LoggingConfig selects the zap level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StorageConfig points at the snapshot store and the battle record database.
// Empty URLs disable the corresponding store.
type StorageConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DatabaseURL string        `mapstructure:"database_url"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
	ReplayDir   string        `mapstructure:"replay_dir"`
}

// DisplayConfig configures the websocket display hub.
type DisplayConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuthConfig holds the bcrypt hash guarding admin RPCs.
type AuthConfig struct {
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
}

// GameConfig selects the map and dice used by headless runs and new games.
type GameConfig struct {
	MapPath  string `mapstructure:"map_path"`
	DiceSeed int64  `mapstructure:"dice_seed"`
	Player   string `mapstructure:"player"`
}

const envPrefix = "BATTLED"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc.address", ":50051")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)
	v.SetDefault("server.max_games", 256)
	v.SetDefault("server.idle_timeout", 30*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	rules := battle.DefaultRules()
	v.SetDefault("rules.land_battle_rounds", rules.LandBattleRounds)
	v.SetDefault("rules.sea_battle_rounds", rules.SeaBattleRounds)
	v.SetDefault("rules.air_battle_rounds", rules.AirBattleRounds)
	v.SetDefault("rules.allied_air_independent", rules.AlliedAirIndependent)
	v.SetDefault("rules.pu_multiplier", rules.PUMultiplier)
	v.SetDefault("rules.low_luck", false)
	v.SetDefault("rules.scramble_rules_in_effect", false)
	v.SetDefault("rules.raids_may_be_preceded_by_air_battles", false)

	v.SetDefault("storage.redis_url", "")
	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.snapshot_ttl", 7*24*time.Hour)
	v.SetDefault("storage.replay_dir", "replays")

	v.SetDefault("display.enabled", true)
	v.SetDefault("display.address", ":8080")
	v.SetDefault("display.allowed_origins", []string{})

	v.SetDefault("auth.admin_password_hash", "")

	v.SetDefault("game.map_path", "maps/pacific.yaml")
	v.SetDefault("game.dice_seed", 0)
	v.SetDefault("game.player", "")
}

// Load reads the YAML file at path, applies BATTLED_* environment overrides
// and validates the result. A missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}
	if c.Server.GRPC.Address == "" {
		return fmt.Errorf("server.grpc.address is required")
	}
	if c.Server.GRPC.MaxConcurrentStreams <= 0 {
		return fmt.Errorf("server.grpc.max_concurrent_streams must be positive")
	}
	if c.Rules.AirBattleRounds < 1 {
		return fmt.Errorf("rules.air_battle_rounds must be at least 1")
	}
	if c.Rules.PUMultiplier < 1 {
		return fmt.Errorf("rules.pu_multiplier must be at least 1")
	}
	if c.Storage.SnapshotTTL < 0 {
		return fmt.Errorf("storage.snapshot_ttl must not be negative")
	}
	return nil
}
