// Package config loads the pipeline configuration from YAML with
// environment overrides.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"eggjnd/internal/blob"
	"eggjnd/internal/logging"
	"eggjnd/internal/preprocess"
	"eggjnd/internal/storage"
	"eggjnd/internal/swatch"
	"eggjnd/pkg/domain"
)

// Config holds all eggjnd configuration.
type Config struct {
	// Input is the wide reflectance CSV.
	Input string `yaml:"input"`
	// Groups are the column-name tags that split samples into groups.
	Groups   []string `yaml:"groups"`
	Parallel bool     `yaml:"parallel"`

	Preprocess preprocess.Options       `yaml:"preprocess"`
	Visual     domain.VisualModelConfig `yaml:"visual"`
	Noise      domain.NoiseModelConfig  `yaml:"noise"`
	Projection domain.ProjectionConfig  `yaml:"projection"`
	Swatch     swatch.Options           `yaml:"swatch"`
	// Curves maps names usable in the visual section to two-column (or, for
	// visual systems, multi-column) CSV files.
	Curves map[string]string `yaml:"curves,omitempty"`

	Blob    blob.Config    `yaml:"blob"`
	Storage storage.Config `yaml:"storage"`
	Logging logging.Config `yaml:"logging"`

	MetricsFile string `yaml:"metrics_file,omitempty"`
	TraceFile   string `yaml:"trace_file,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Preprocess: preprocess.DefaultOptions(),
		Visual:     domain.DefaultVisualModelConfig(),
		Noise:      domain.DefaultNoiseModelConfig(),
		Projection: domain.DefaultProjectionConfig(),
		Blob:       blob.Config{Driver: blob.DriverFilesystem, FSRoot: "out"},
		Storage:    storage.Config{Driver: storage.DriverSQLite, SQLitePath: filepath.Join("out", "runs.db")},
		Logging:    logging.Config{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
			cfg.resolveCurvePaths(filepath.Dir(path))
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Curve paths in a config file are relative to the file.
func (c *Config) resolveCurvePaths(dir string) {
	for name, p := range c.Curves {
		if p != "" && !filepath.IsAbs(p) {
			c.Curves[name] = filepath.Join(dir, p)
		}
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EGGJND_INPUT"); v != "" {
		c.Input = v
	}
	if v := os.Getenv("EGGJND_GROUPS"); v != "" {
		c.Groups = splitList(v)
	}
	if v := os.Getenv("EGGJND_PARALLEL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Parallel = b
		}
	}
	if v := os.Getenv("EGGJND_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EGGJND_METRICS_FILE"); v != "" {
		c.MetricsFile = v
	}
	c.Blob = blob.ConfigFromEnv(c.Blob)
	c.Storage = storage.ConfigFromEnv(c.Storage)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks every section that can be checked without the input data.
// Channel-dependent noise and projection checks run once the visual system
// is resolved.
func (c *Config) Validate() error {
	if err := c.Preprocess.Validate(); err != nil {
		return err
	}
	if err := c.Visual.Validate(); err != nil {
		return err
	}
	if _, err := domain.ParseNoiseType(string(c.Noise.Noise)); err != nil {
		return err
	}
	for name, p := range c.Curves {
		if strings.TrimSpace(p) == "" {
			return domain.ConfigError{Stage: domain.StageVisual, Field: "curves." + name, Reason: "path must not be empty"}
		}
	}
	for _, g := range c.Groups {
		if strings.TrimSpace(g) == "" {
			return domain.ConfigError{Stage: domain.StageIngest, Field: "groups", Reason: "group tags must not be empty"}
		}
	}
	return nil
}

// Digest fingerprints the model sections so run records show which
// parameters produced them.
func (c *Config) Digest() string {
	data, err := yaml.Marshal(struct {
		Preprocess preprocess.Options       `yaml:"preprocess"`
		Visual     domain.VisualModelConfig `yaml:"visual"`
		Noise      domain.NoiseModelConfig  `yaml:"noise"`
		Projection domain.ProjectionConfig  `yaml:"projection"`
		Curves     map[string]string        `yaml:"curves,omitempty"`
	}{c.Preprocess, c.Visual, c.Noise, c.Projection, c.Curves})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
