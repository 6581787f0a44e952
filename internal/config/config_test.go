package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Environment)
	assert.Equal(t, 40, cfg.Backfill.Days)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.RunOffset)
	assert.Equal(t, time.Minute, cfg.Scheduler.Cooldown)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.ReadyInterval)
	assert.Equal(t, 30*time.Second, cfg.Victoria.PushTimeout)
	assert.Equal(t, []string{"uuew5-iiaaa-aaaaa-qbx4q-cai"}, cfg.IC.RewardsCanisters)
	assert.Equal(t, "rrkah-fqaaa-aaaaa-aaaaq-cai", cfg.IC.GovernanceCanister)
	assert.Equal(t, "https://ic0.app", cfg.IC.URL)
	assert.Equal(t, "canister_id", cfg.Metrics.EndpointLabel)
	assert.False(t, cfg.Database.Enabled())
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("VICTORIA_METRICS_URL", "http://victoria:8428")
	t.Setenv("NODE_REWARDS_BACKFILL_DAYS", "7")

	cfg, err := Load(writeConfig(t, `
ic:
  rewards_canisters: [aaaaa-aa, bbbbb-bb]
victoria:
  compression: zstd
  headers:
    authorization: Bearer token
metrics:
  extended: true
database:
  dsn: postgres://ingester@localhost/rewards
`))
	require.NoError(t, err)

	assert.Equal(t, "http://victoria:8428", cfg.Victoria.URL)
	assert.Equal(t, 7, cfg.Backfill.Days)
	assert.Equal(t, []string{"aaaaa-aa", "bbbbb-bb"}, cfg.IC.RewardsCanisters)
	assert.Equal(t, "zstd", cfg.Victoria.Compression)
	assert.Equal(t, "Bearer token", cfg.Victoria.Headers["authorization"])
	assert.True(t, cfg.Metrics.Extended)
	assert.True(t, cfg.Database.Enabled())
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"bad compression":    "victoria:\n  compression: snappy\n",
		"duplicate canister": "ic:\n  rewards_canisters: [a, a]\n",
		"negative days":      "backfill:\n  days: -1\n",
		"offset too large":   "scheduler:\n  run_offset: 25h\n",
		"telegram no token":  "alerting:\n  telegram:\n    enabled: true\n    chat_id: \"1\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestResolveDays(t *testing.T) {
	cfg := &Config{Export: ExportConfig{Days: 30}}
	assert.Equal(t, 30, cfg.ResolveDays(0))
	assert.Equal(t, 5, cfg.ResolveDays(5))
}
