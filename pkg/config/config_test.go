package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
node_id: edge-01
origin:
  base_url: https://origin.example.com/nexxgate/api/v1
  api_key: test-key
signing:
  private_key_path: /etc/edge/signing.pem
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "edge-01", cfg.NodeID)
	assert.Equal(t, 300e9, float64(cfg.Periods.AccessList))
	assert.Equal(t, 100, cfg.Periods.PublishLimit)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingRequiredField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_id: edge-01\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
