package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":50051", cfg.Server.GRPC.Address)
	assert.Equal(t, 100, cfg.Server.GRPC.MaxConcurrentStreams)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, -1, cfg.Rules.LandBattleRounds)
	assert.Equal(t, 1, cfg.Rules.AirBattleRounds)
	assert.Equal(t, 1, cfg.Rules.PUMultiplier)
	assert.True(t, cfg.Rules.AlliedAirIndependent)
	assert.Equal(t, 7*24*time.Hour, cfg.Storage.SnapshotTTL)
	assert.Empty(t, cfg.Storage.RedisURL)
	assert.True(t, cfg.Display.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battled.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: json
server:
  grpc:
    address: "127.0.0.1:6000"
rules:
  land_battle_rounds: 3
  scramble_rules_in_effect: true
  scramble_fuel_check: true
storage:
  redis_url: "redis://localhost:6379/2"
  snapshot_ttl: 90m
auth:
  admin_password_hash: "$2a$10$abc"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "127.0.0.1:6000", cfg.Server.GRPC.Address)
	assert.Equal(t, 100, cfg.Server.GRPC.MaxConcurrentStreams, "unset keys keep their defaults")
	assert.Equal(t, 3, cfg.Rules.LandBattleRounds)
	assert.Equal(t, -1, cfg.Rules.SeaBattleRounds)
	assert.True(t, cfg.Rules.ScrambleRulesInEffect)
	assert.True(t, cfg.Rules.ScrambleFuelCheck)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Storage.RedisURL)
	assert.Equal(t, 90*time.Minute, cfg.Storage.SnapshotTTL)
	assert.Equal(t, "$2a$10$abc", cfg.Auth.AdminPasswordHash)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("BATTLED_LOGGING_LEVEL", "warn")
	t.Setenv("BATTLED_SERVER_GRPC_ADDRESS", ":7000")
	t.Setenv("BATTLED_RULES_AIR_BATTLE_ROUNDS", "2")
	t.Setenv("BATTLED_STORAGE_DATABASE_URL", "postgres://localhost/battles")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, ":7000", cfg.Server.GRPC.Address)
	assert.Equal(t, 2, cfg.Rules.AirBattleRounds)
	assert.Equal(t, "postgres://localhost/battles", cfg.Storage.DatabaseURL)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"level", "logging:\n  level: verbose\n"},
		{"format", "logging:\n  format: xml\n"},
		{"streams", "server:\n  grpc:\n    max_concurrent_streams: 0\n"},
		{"air rounds", "rules:\n  air_battle_rounds: 0\n"},
		{"multiplier", "rules:\n  pu_multiplier: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "battled.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battled.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
