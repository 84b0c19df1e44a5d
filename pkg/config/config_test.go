package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1<<20, cfg.BlockSize)
	assert.Equal(t, 3072, cfg.InlineThreshold)
	assert.Equal(t, 10*time.Minute, cfg.GCInterval())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garage.yaml")
	content := `
data_dir: /tmp/garage-test
block_size: 65536
inline_threshold: 512
gc_interval_secs: 60
default_quotas:
  max_objects: 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/garage-test", cfg.DataDir)
	assert.Equal(t, 65536, cfg.BlockSize)
	assert.Equal(t, 512, cfg.InlineThreshold)
	assert.Equal(t, time.Minute, cfg.GCInterval())
	require.NotNil(t, cfg.DefaultQuotas.MaxObjects)
	assert.Equal(t, int64(100), *cfg.DefaultQuotas.MaxObjects)
	// untouched keys keep their defaults
	assert.Equal(t, ":3900", cfg.Listen)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("block_size: -1\n"), 0600))
	_, err := Load(path)
	assert.Error(t, err)
}
