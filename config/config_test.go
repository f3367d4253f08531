package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/cutout/asset"
	"github.com/chaos-io/cutout/pixel"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, getDefaultConfig(), cfg)
	assert.Equal(t, pixel.DefaultParams(), cfg.Classifier.Params())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: ":9090"
  mode: release
rembg:
  timeout: 5s
  max_upload_side: 0
classifier:
  threshold: 60
redis:
  enabled: true
  ttl: 1h
`), 0o644))

	t.Setenv(APIKeyEnv, "from-env")
	t.Setenv("CUTOUT_SPOOL_DIR", "/tmp/cutout")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, 5*time.Second, cfg.RemBG.Timeout)
	assert.Equal(t, 0, cfg.RemBG.MaxUploadSide)
	assert.Equal(t, 60.0, cfg.Classifier.Threshold)
	assert.Equal(t, pixel.DefaultBrightAbove, cfg.Classifier.BrightAbove)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, "from-env", cfg.RemBG.APIKey)
	assert.Equal(t, "/tmp/cutout", cfg.Spool.Dir)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("classifier:\n  threshold: 0\n"), 0o644))
	_, err = Load(path)
	assert.ErrorIs(t, err, pixel.ErrInvalidThreshold)
}

func TestNew_FallsBackToDefaults(t *testing.T) {
	t.Setenv(APIKeyEnv, "key")

	cfg, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "key", cfg.RemBG.APIKey)
	assert.Equal(t, int64(asset.DefaultMaxPixels), cfg.Upload.MaxPixels)
}

func TestNew_ReportsInvalidFile(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("classifier:\n  threshold: 0\n"), 0o644))

	cfg, err := New(path)
	assert.ErrorIs(t, err, pixel.ErrInvalidThreshold)
	assert.Equal(t, pixel.DefaultThreshold, cfg.Classifier.Threshold)

	cfg, err = New("")
	assert.NoError(t, err)
	assert.Equal(t, getDefaultConfig(), cfg)
}

func TestConfig_Fingerprint(t *testing.T) {
	base := getDefaultConfig()
	assert.Len(t, base.Fingerprint(), 12)
	assert.Equal(t, base.Fingerprint(), getDefaultConfig().Fingerprint())

	threshold := getDefaultConfig()
	threshold.Classifier.Threshold = 60
	assert.NotEqual(t, base.Fingerprint(), threshold.Fingerprint())

	key := getDefaultConfig()
	key.RemBG.APIKey = "secret"
	assert.NotEqual(t, base.Fingerprint(), key.Fingerprint())
	assert.NotContains(t, key.Fingerprint(), "secret")

	port := getDefaultConfig()
	port.Server.Port = ":9999"
	assert.Equal(t, base.Fingerprint(), port.Fingerprint())
}
