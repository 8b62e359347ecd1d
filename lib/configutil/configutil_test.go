package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	ApiKey  string `json:"api_key"`
	Timeout int    `json:"timeout"`
}

func TestReadConfigMergesLocalOverride(t *testing.T) {
	dir := t.TempDir()

	err := os.WriteFile(
		filepath.Join(dir, "app.json5"),
		[]byte(`{api_key: "base", timeout: 30}`),
		0o644,
	)
	require.NoError(t, err)
	err = os.WriteFile(
		filepath.Join(dir, "app.local.json5"),
		[]byte(`{timeout: 5}`),
		0o644,
	)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.NoError(t, err)
	require.Equal(t, "base", cfg.ApiKey)
	require.Equal(t, 5, cfg.Timeout)
}

func TestReadConfigExpandsEnvRefs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SERPFORGE_TEST_KEY", "secret-value")

	err := os.WriteFile(
		filepath.Join(dir, "app.json5"),
		[]byte(`{api_key: "${SERPFORGE_TEST_KEY}"}`),
		0o644,
	)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.NoError(t, err)
	require.Equal(t, "secret-value", cfg.ApiKey)
}

func TestReadConfigNotFound(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "missing.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
