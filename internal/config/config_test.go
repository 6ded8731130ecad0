package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"STORAGE_TYPE", "DATA_DIR", "DATABASE_URL", "HTTP_ADDR", "ADMIN_TOKEN",
	"SWEEP_INTERVAL", "SWEEP_TIMEOUT", "SWEEP_LOOKBACK", "CLOSE_THRESHOLD",
	"REDIS_ADDR", "AMQP_URL", "AMQP_EXCHANGE", "ELASTICSEARCH_URL",
	"DISCORD_TOKEN", "APP_ID", "GUILD_ID", "DISCORD_RESULTS_CHANNEL", "GAMES_FILE", "ENVIRONMENT", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv("/srv/wingo")

	require.NoError(t, err)
	assert.Equal(t, StorageSQLite, cfg.StorageType)
	assert.Equal(t, "/srv/wingo/data", cfg.DataDir)
	assert.Equal(t, "/srv/wingo/data/wingo.db", cfg.SQLitePath())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, 30*time.Second, cfg.SweepTimeout)
	assert.Equal(t, 3, cfg.LookBack)
	assert.Equal(t, 5*time.Second, cfg.Catalog.CloseThreshold)
	assert.Len(t, cfg.Catalog.Modes(), 12)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.DiscordEnabled())
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_TYPE", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://wingo@localhost/wingo?sslmode=disable")
	t.Setenv("SWEEP_INTERVAL", "15")
	t.Setenv("SWEEP_TIMEOUT", "1m")
	t.Setenv("CLOSE_THRESHOLD", "3s")

	cfg, err := FromEnv("/tmp")

	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.StorageType)
	assert.Equal(t, 15*time.Second, cfg.SweepInterval)
	assert.Equal(t, time.Minute, cfg.SweepTimeout)
	assert.Equal(t, 3*time.Second, cfg.Catalog.CloseThreshold)
}

func TestFromEnvRejects(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{"unknown storage", map[string]string{"STORAGE_TYPE": "mongo"}},
		{"postgres without url", map[string]string{"STORAGE_TYPE": "postgres"}},
		{"bad duration", map[string]string{"SWEEP_INTERVAL": "soon"}},
		{"zero interval", map[string]string{"SWEEP_INTERVAL": "0"}},
		{"bad lookback", map[string]string{"SWEEP_LOOKBACK": "many"}},
		{"discord without app", map[string]string{"DISCORD_TOKEN": "abc"}},
		{"missing games file", map[string]string{"GAMES_FILE": "/nonexistent/games.yaml"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv("/tmp")
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	// Setup
	path := filepath.Join(t.TempDir(), "games.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
games:
  - type: parity
    durations: [60, 180]
  - type: sapre
    durations: [300]
close_threshold: 10s
max_stake: 500
`), 0644))

	// Execute
	catalog, err := LoadCatalog(path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []entities.Mode{
		entities.NewMode("parity", 60),
		entities.NewMode("parity", 180),
		entities.NewMode("sapre", 300),
	}, catalog.Modes())
	assert.Equal(t, 10*time.Second, catalog.CloseThreshold)
	assert.Equal(t, int64(500), catalog.MaxStake)
	assert.Equal(t, int64(10), catalog.MinStake, "unset fields keep defaults")
	assert.NoError(t, catalog.validate())
}

func TestCatalogValidate(t *testing.T) {
	dup := DefaultCatalog()
	dup.Games = append(dup.Games, GameConfig{Type: "parity", Durations: []int{60}})
	assert.Error(t, dup.validate())

	empty := DefaultCatalog()
	empty.Games = nil
	assert.Error(t, empty.validate())

	limits := DefaultCatalog()
	limits.MinStake, limits.MaxStake = 100, 50
	assert.Error(t, limits.validate())

	badDuration := DefaultCatalog()
	badDuration.Games = []GameConfig{{Type: "parity", Durations: []int{0}}}
	assert.Error(t, badDuration.validate())
}
