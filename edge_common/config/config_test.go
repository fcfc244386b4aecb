package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "edge.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	assert := require.New(t)

	path := writeTempConfig(t, `
model:
  resnet18:
    input_height: 32
    input_width: 32
    last_offloading_layer: 10
`)
	cfg, err := Load(path)
	assert.NoError(err)
	assert.Equal(CommHTTP, cfg.Communication.Mode)
	assert.Equal(10, cfg.Variance.WindowSize)
	assert.Equal(0.15, cfg.Variance.Threshold)
	assert.Equal(0.2, cfg.EWMA.Alpha)
}

func TestLoadRejectsMissingModels(t *testing.T) {
	assert := require.New(t)

	path := writeTempConfig(t, `communication:
  mode: http
`)
	_, err := Load(path)
	assert.Error(err)
}

func TestLoadRejectsUnknownCommunicationMode(t *testing.T) {
	assert := require.New(t)

	path := writeTempConfig(t, `
communication:
  mode: carrier_pigeon
model:
  m:
    input_height: 1
    input_width: 1
    last_offloading_layer: 1
`)
	_, err := Load(path)
	assert.Error(err)
}

func TestLoadRejectsOutOfRangeProbability(t *testing.T) {
	assert := require.New(t)

	path := writeTempConfig(t, `
local_inference_mode:
  enabled: true
  probability: 1.5
model:
  m:
    input_height: 1
    input_width: 1
    last_offloading_layer: 1
`)
	_, err := Load(path)
	assert.Error(err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	assert := require.New(t)

	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(err)
}

func TestLoadEnvReadsOverlay(t *testing.T) {
	assert := require.New(t)

	os.Setenv("EDGE_HOST", "0.0.0.0")
	os.Setenv("EDGE_PORT", "9090")
	defer os.Unsetenv("EDGE_HOST")
	defer os.Unsetenv("EDGE_PORT")

	env, err := LoadEnv()
	assert.NoError(err)
	assert.Equal("0.0.0.0", env.Host)
	assert.Equal("9090", env.Port)
}
