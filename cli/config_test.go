package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := "color: false\nestimate_bytes: 4096\nopen_urls: true\nfilter_prefixes:\n  - vendor/\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Color)
	require.False(t, *cfg.Color)
	require.Equal(t, int64(4096), cfg.EstimateBytes)
	require.True(t, cfg.OpenURLs)
	require.Equal(t, []string{"vendor/"}, cfg.FilterPrefixes)
}

func TestLoadConfig_MissingDefaultIsFine(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Nil(t, cfg.Color)
	require.Zero(t, cfg.EstimateBytes)
}

func TestLoadConfig_MissingExplicitFails(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("color: [unclosed\n"), 0o644))

	_, err := loadConfig(path)
	require.Error(t, err)
}
