package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, yamlBody string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))
	return path
}

const minimalYAML = `
users:
  - id: alice
    abs_url: https://abs.example.com
    abs_token: abs-token
    hardcover_token: hc-token
`

func TestLoad_DefaultsAppliedWhenFieldsOmitted(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 5.0, cfg.MinProgressThreshold)
	require.Equal(t, 3, cfg.Workers)
	require.Equal(t, "0 3 * * *", cfg.SyncSchedule)
	require.Equal(t, 55, cfg.HardcoverRateLimit)
	require.Len(t, cfg.Users, 1)
	require.Equal(t, "alice", cfg.Users[0].ID)
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_RequiresAtLeastOneUser(t *testing.T) {
	path := writeTempConfig(t, "users: []\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_YAMLValueWinsOverEnv(t *testing.T) {
	path := writeTempConfig(t, minimalYAML+"workers: 7\n")
	t.Setenv("SHELFBRIDGE_WORKERS", "99")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Workers, "YAML must win over environment")
}

func TestLoad_EnvFillsFieldYAMLLeftUnset(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	t.Setenv("SHELFBRIDGE_WORKERS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.Workers)
}

func TestLoad_BooleanEnvParsing(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	t.Setenv("SHELFBRIDGE_DRY_RUN", "TRUE")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.DryRun)
}

func TestConfig_SessionConfigAndThresholdsProjections(t *testing.T) {
	cfg := Default()
	cfg.DelayedUpdates.Enabled = true
	sc := cfg.SessionConfig()
	require.True(t, sc.Enabled)
	require.Equal(t, 900, sc.SessionTimeout)

	th := cfg.Thresholds()
	require.Equal(t, 85.0, th.HighProgressThreshold)
}

func TestValidate_RejectsUserMissingRequiredField(t *testing.T) {
	cfg := Default()
	cfg.Users = []User{{ID: "bob"}}
	require.Error(t, cfg.Validate())
}
