package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(homeDir, ".botfleet", "accounts.toml"), cfg.Accounts.Path)
	assert.Equal(t, filepath.Join(homeDir, ".botfleet", "history.db"), cfg.History.Path)
	assert.Equal(t, CooldownBackendTOML, cfg.Cooldowns.Backend)
	assert.Equal(t, SecretsBackendChain, cfg.Secrets.Backend)
	assert.Equal(t, "127.0.0.1:8090", cfg.Control.Address)
	assert.Equal(t, filepath.Join(homeDir, ".botfleet", "secrets"), cfg.Secrets.Path)
	assert.Equal(t, 5*time.Minute, cfg.Cooldowns.UserCooldown)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.RequestDelay)
	assert.True(t, cfg.Retry.Enabled)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, 100, cfg.Selection.MaxAmount)
	assert.Equal(t, 1, cfg.Selection.MaxCommentsPerAccount)
}

func TestLoadReadsConfigFile(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)

	dir := filepath.Join(homeDir, ".botfleet")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[scheduler]
request_delay = "250ms"

[retry]
enabled = false

[selection]
max_comments_per_account = 3

[cooldowns]
exempt_users = ["admin"]
`), 0o600))

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.RequestDelay)
	assert.False(t, cfg.Retry.Enabled)
	assert.Equal(t, 3, cfg.Selection.MaxCommentsPerAccount)
	assert.Equal(t, []string{"admin"}, cfg.Cooldowns.ExemptUsers)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLEET_SELECTION_MAX_AMOUNT", "7")
	t.Setenv("FLEET_COOLDOWNS_BACKEND", "memory")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Selection.MaxAmount)
	assert.Equal(t, CooldownBackendMemory, cfg.Cooldowns.Backend)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLEET_COOLDOWNS_BACKEND", "etcd")

	_, err := Load(viper.New())
	require.Error(t, err)
	assert.ErrorContains(t, err, "validate config")
}

func TestValidateRequiresRedisAddress(t *testing.T) {
	t.Parallel()

	v := viper.New()
	SetDefaults(v, t.TempDir())

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	require.NoError(t, cfg.Validate())

	cfg.Cooldowns.Backend = CooldownBackendRedis
	cfg.Redis.Address = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "redis.address is required")
}
