package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PROCURA_HOME", dir)
	for _, k := range []string{
		"PROCURA_LISTEN_ADDR", "PROCURA_DB_PATH", "PROCURA_LOG_LEVEL", "PROCURA_LOG_FORMAT",
		"PROCURA_SCHEDULER_SPEC", "PROCURA_RULES_FILE", "PROCURA_SCHEDULER_POOL_SIZE",
		"PROCURA_CIRCUIT_FAILURE_THRESHOLD", "PROCURA_ACTION_TIMEOUT", "PROCURA_CIRCUIT_COOLDOWN",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := withHome(t)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, filepath.Join(dir, "procura.db"), cfg.DBPath)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.ActionTimeout))
}

func TestLoadConfig_SettingsOverDefaults(t *testing.T) {
	dir := withHome(t)
	settings := `{"listen_addr":":9000","action_timeout":"5s","circuit_cooldown":90,"scheduler_pool_size":8}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(settings), 0o644))

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, time.Duration(cfg.ActionTimeout))
	assert.Equal(t, 90*time.Second, time.Duration(cfg.CircuitCooldown))
	assert.Equal(t, 8, cfg.SchedulerPoolSize)
	assert.Equal(t, "info", cfg.LogLevel, "unset fields keep their defaults")
	assert.Equal(t, 0, cfg.CircuitFailureThreshold)
}

func TestLoadConfig_ZeroThresholdDisablesBreaker(t *testing.T) {
	dir := withHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"circuit_failure_threshold":5}`), 0o644))

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.CircuitFailureThreshold)

	t.Setenv("PROCURA_CIRCUIT_FAILURE_THRESHOLD", "0")
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.CircuitFailureThreshold)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"circuit_failure_threshold":0}`), 0o644))
	t.Setenv("PROCURA_CIRCUIT_FAILURE_THRESHOLD", "")
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.CircuitFailureThreshold)
}

func TestLoadConfig_EnvOverSettings(t *testing.T) {
	dir := withHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"listen_addr":":9000","log_level":"warn"}`), 0o644))
	t.Setenv("PROCURA_LISTEN_ADDR", ":9100")
	t.Setenv("PROCURA_CIRCUIT_FAILURE_THRESHOLD", "2")
	t.Setenv("PROCURA_ACTION_TIMEOUT", "750ms")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 2, cfg.CircuitFailureThreshold)
	assert.Equal(t, 750*time.Millisecond, time.Duration(cfg.ActionTimeout))
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := withHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"listen_addr":`), 0o644))
	_, err := loadConfig()
	assert.Error(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "settings.json")))
	t.Setenv("PROCURA_SCHEDULER_POOL_SIZE", "many")
	_, err = loadConfig()
	assert.Error(t, err)
}

func TestDurationJSON(t *testing.T) {
	data, err := json.Marshal(Duration(45 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"45s"`, string(data))

	var d Duration
	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file:/data/procura.db", Config{DBPath: "/data/procura.db"}.dsn())
	assert.Equal(t, "file:procura.db", Config{DBPath: "procura.db"}.dsn())
	assert.Equal(t, "file:/x.db", Config{DBPath: "file:/x.db"}.dsn())
	assert.Equal(t, "libsql://db.example.com", Config{DBPath: "libsql://db.example.com"}.dsn())
}
