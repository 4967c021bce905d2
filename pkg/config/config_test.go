package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  address: "0.0.0.0"
  port: 9100
storage:
  db_path: "/var/lib/vaultgram"
  op_timeout: "2s"
  retry_attempts: 3
  retry_backoff: "100ms"
security:
  passphrase_env: "SHADOW_PASS"
  api_keys: ["k1", "k2"]
  rate_limit:
    rps: 20
    burst: 40
ghost:
  enabled: true
  hide_online: true
buffer:
  max_entries: 2048
  max_bytes: "64MB"
dispatch:
  lanes: 16
  lane_depth: 512
history:
  fetch_rps: 1.5
limits:
  max_text_bytes: "4KB"
  max_batch_size: 100
retention:
  enabled: true
  cron: "0 3 * * *"
  period: "720h"
  batch_size: 500
feed:
  source: "/var/run/updates.pipe"
  max_update_bytes: "1MB"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

// TestLoadParsesHumanUnits verifies durations and byte sizes parse from
// their human-friendly forms.
func TestLoadParsesHumanUnits(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:9100", cfg.Addr())
	require.Equal(t, "/var/lib/vaultgram", cfg.Storage.DBPath)
	require.Equal(t, 2*time.Second, cfg.Storage.OpTimeout.Duration())
	require.Equal(t, 100*time.Millisecond, cfg.Storage.RetryBackoff.Duration())
	require.Equal(t, "SHADOW_PASS", cfg.Security.PassphraseEnv)
	require.Equal(t, []string{"k1", "k2"}, cfg.Security.APIKeys)
	require.Equal(t, float64(20), cfg.Security.RateLimit.RPS)
	require.True(t, cfg.Ghost.Enabled)
	require.True(t, cfg.Ghost.HideOnline)
	require.False(t, cfg.Ghost.HideTyping)
	require.EqualValues(t, 64*1000*1000, cfg.Buffer.MaxBytes)
	require.Equal(t, 16, cfg.Dispatch.Lanes)
	require.Equal(t, 1.5, cfg.History.FetchRPS)
	require.EqualValues(t, 4*1000, cfg.Limits.MaxTextBytes)
	require.True(t, cfg.Retention.Enabled)
	require.Equal(t, 720*time.Hour, cfg.Retention.Period.Duration())
	require.Equal(t, "/var/run/updates.pipe", cfg.Feed.Source)
}

// TestLoadPlainIntegers verifies bare integers still work for size fields.
func TestLoadPlainIntegers(t *testing.T) {
	cfg, err := Load(writeConfig(t, "buffer:\n  max_bytes: 1048576\n"))
	require.NoError(t, err)
	require.EqualValues(t, 1048576, cfg.Buffer.MaxBytes)
}

// TestAddrDefaults verifies the loopback default when server is unset.
func TestAddrDefaults(t *testing.T) {
	var cfg Config
	require.Equal(t, "127.0.0.1:8090", cfg.Addr())
}

// TestEnvOverrides verifies env vars override the file values.
func TestEnvOverrides(t *testing.T) {
	t.Setenv("VAULTGRAM_ADDR", "127.0.0.1:7777")
	t.Setenv("VAULTGRAM_DB_PATH", "/tmp/override")
	t.Setenv("VAULTGRAM_CONFIG", writeConfig(t, sampleYAML))

	eff, err := LoadEffective(Flags{Set: map[string]bool{}})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7777", eff.Addr)
	require.Equal(t, "/tmp/override", eff.DBPath)
	require.Contains(t, eff.Source, "env")
}

// TestPassphraseEnvIndirection verifies the passphrase comes from the
// configured variable name.
func TestPassphraseEnvIndirection(t *testing.T) {
	t.Setenv("SHADOW_PASS", "hunter2")
	eff := Effective{Config: &Config{Security: SecurityConfig{PassphraseEnv: "SHADOW_PASS"}}}
	require.Equal(t, "hunter2", eff.Passphrase())
}
