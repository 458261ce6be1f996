package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalYAML = `
discord:
  token: "bot-token"
  radio_channel_id: "111"
  admin_channel_id: "222"
  staff_role_id: "333"
`

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "bot-token", cfg.Discord.Token)
	assert.Equal(t, 24*time.Hour, cfg.Relay.Retention)
	assert.Equal(t, "ResurgenceRP Radio", cfg.Relay.PublicFooter)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TickInterval)
	assert.Equal(t, 5, cfg.Scheduler.MaxAttempts)
	assert.True(t, cfg.Scheduler.HaltOnStorageError)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "deletion_schedule.json", cfg.Storage.File.Path)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalYAML+`
relay:
  retention: 1h
  public_footer: "Custom Radio"
scheduler:
  tick_interval: 5s
  max_attempts: 3
storage:
  backend: postgres
  postgres:
    host: db.internal
    user: radio
    password: secret
    database: radiorelay
`))
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Relay.Retention)
	assert.Equal(t, "Custom Radio", cfg.Relay.PublicFooter)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.TickInterval)
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "db.internal", cfg.Storage.Postgres.Host)
	assert.Equal(t, 5432, cfg.Storage.Postgres.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("RADIORELAY_DISCORD__TOKEN", "env-token")
	t.Setenv("RADIORELAY_RELAY__RETENTION", "2h")

	cfg, err := Load(writeConfigFile(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Discord.Token)
	assert.Equal(t, 2*time.Hour, cfg.Relay.Retention)
}

func TestLoad_MissingToken(t *testing.T) {
	_, err := Load(writeConfigFile(t, `
discord:
  radio_channel_id: "111"
  admin_channel_id: "222"
  staff_role_id: "333"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Token")
}

func TestLoad_InvalidBackend(t *testing.T) {
	_, err := Load(writeConfigFile(t, minimalYAML+`
storage:
  backend: redis
`))
	require.Error(t, err)
}

func TestLoad_PostgresBackendRequiresConnection(t *testing.T) {
	_, err := Load(writeConfigFile(t, minimalYAML+`
storage:
  backend: postgres
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestLoad_BackoffCeilingBelowBase(t *testing.T) {
	_, err := Load(writeConfigFile(t, minimalYAML+`
scheduler:
  base_backoff: 10m
  max_backoff: 1m
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_backoff")
}

func TestLoad_MissingFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("RADIORELAY_DISCORD__TOKEN", "env-token")
	t.Setenv("RADIORELAY_DISCORD__RADIO_CHANNEL_ID", "111")
	t.Setenv("RADIORELAY_DISCORD__ADMIN_CHANNEL_ID", "222")
	t.Setenv("RADIORELAY_DISCORD__STAFF_ROLE_ID", "333")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Discord.Token)
	assert.Equal(t, "file", cfg.Storage.Backend)
}
