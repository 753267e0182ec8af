package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Messaging.OutboxDrainInterval)
	assert.Equal(t, "kafka", cfg.Messaging.Backend)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linehaul.yaml")
	yml := "database:\n  driver: postgres\nweb:\n  port: 9000\ndispatch:\n  timezone: America/Chicago\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 9000, cfg.Web.Port)
	assert.Equal(t, "linehaul", cfg.Database.Postgres.Database, "unset fields keep defaults")
	assert.Equal(t, "America/Chicago", cfg.Location().String())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LINEHAUL_PG_PASSWORD", "s3cret")
	t.Setenv("LINEHAUL_WEB_PORT", "9100")
	t.Setenv("LINEHAUL_REDIS_ADDR", "redis:6380")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Postgres.Password)
	assert.Equal(t, 9100, cfg.Web.Port)
	assert.Equal(t, "redis:6380", cfg.Redis.Address)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := Defaults()
	cfg.Dispatch.Timezone = "Not/AZone"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.Web.RateLimitPerMinute = 42
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, got.Web.RateLimitPerMinute)
}
