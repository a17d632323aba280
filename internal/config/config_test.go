package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eggjnd/internal/blob"
	"eggjnd/internal/storage"
	"eggjnd/pkg/domain"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "avg.v", cfg.Visual.VisualSystem)
	assert.Equal(t, blob.DriverFilesystem, cfg.Blob.Driver)
	assert.Equal(t, storage.DriverSQLite, cfg.Storage.Driver)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Noise, cfg.Noise)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg", "eggjnd.yaml")
	cfg := DefaultConfig()
	cfg.Input = "spectra.csv"
	cfg.Groups = []string{"host", "cuckoo"}
	cfg.Parallel = true
	cfg.Noise.Weber = 0.05
	cfg.Projection.CenterMode = domain.CenterCustom
	cfg.Projection.CenterPoint = domain.Vec3{1, 2, 3}
	cfg.Curves = map[string]string{"d65": "curves/d65.csv"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"host", "cuckoo"}, loaded.Groups)
	assert.True(t, loaded.Parallel)
	assert.InDelta(t, 0.05, loaded.Noise.Weber, 0)
	assert.Equal(t, domain.Vec3{1, 2, 3}, loaded.Projection.CenterPoint)
	assert.Equal(t, filepath.Join(dir, "cfg", "curves", "d65.csv"), loaded.Curves["d65"], "curve paths resolve against the file")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("noise: [unclosed"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EGGJND_INPUT", "eggs.csv")
	t.Setenv("EGGJND_GROUPS", "host, cuckoo ,")
	t.Setenv("EGGJND_PARALLEL", "true")
	t.Setenv("EGGJND_LOG_LEVEL", "debug")
	t.Setenv("EGGJND_BLOB_DRIVER", "memory")
	t.Setenv("EGGJND_STORAGE_DRIVER", "memory")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "eggs.csv", cfg.Input)
	assert.Equal(t, []string{"host", "cuckoo"}, cfg.Groups)
	assert.True(t, cfg.Parallel)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, blob.DriverMemory, cfg.Blob.Driver)
	assert.Equal(t, storage.DriverMemory, cfg.Storage.Driver)
}

func TestValidateReportsConfigErrors(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"span":       func(c *Config) { c.Preprocess.Span = 2 },
		"scale":      func(c *Config) { c.Visual.Scale = 0 },
		"noise":      func(c *Config) { c.Noise.Noise = "thermal" },
		"curve path": func(c *Config) { c.Curves = map[string]string{"d65": " "} },
		"group tag":  func(c *Config) { c.Groups = []string{""} },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, domain.ErrConfig), "got %v", err)
		})
	}
}

func TestDigestTracksModelParameters(t *testing.T) {
	a, b := DefaultConfig(), DefaultConfig()
	assert.Equal(t, a.Digest(), b.Digest())
	b.Input = "other.csv"
	assert.Equal(t, a.Digest(), b.Digest(), "input does not affect the model")
	b.Noise.Weber = 0.2
	assert.NotEqual(t, a.Digest(), b.Digest())
	assert.Len(t, a.Digest(), 16)
}
