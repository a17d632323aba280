package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"eggjnd/internal/infra/blob/fs"
	memorystore "eggjnd/internal/infra/blob/memory"
	infraS3 "eggjnd/internal/infra/blob/s3"
)

// S3Config configures the s3 driver.
type S3Config = infraS3.Config

// Config selects and configures a driver.
type Config struct {
	Driver Driver   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root,omitempty"`
	S3     S3Config `yaml:"s3,omitempty"`
}

// ConfigFromEnv reads the driver selection from the environment:
//
//	EGGJND_BLOB_DRIVER: fs|s3|memory (default fs)
//	EGGJND_BLOB_FS_ROOT: directory root when driver=fs (default ./out)
//	EGGJND_BLOB_S3_BUCKET, EGGJND_BLOB_S3_REGION, EGGJND_BLOB_S3_ENDPOINT,
//	EGGJND_BLOB_S3_PATH_STYLE: s3 driver settings
//
// Unset variables keep the values already in base.
func ConfigFromEnv(base Config) Config {
	cfg := base
	if v := os.Getenv("EGGJND_BLOB_DRIVER"); v != "" {
		cfg.Driver = Driver(v)
	}
	if v := os.Getenv("EGGJND_BLOB_FS_ROOT"); v != "" {
		cfg.FSRoot = v
	}
	if v := os.Getenv("EGGJND_BLOB_S3_BUCKET"); v != "" {
		cfg.S3.Bucket = v
	}
	if v := os.Getenv("EGGJND_BLOB_S3_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv("EGGJND_BLOB_S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv("EGGJND_BLOB_S3_PATH_STYLE"); v != "" {
		cfg.S3.PathStyle = strings.EqualFold(v, "true")
	}
	return cfg
}

// Open builds the store described by cfg. An empty driver selects fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return infraS3.New(ctx, cfg.S3)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }

// NewMockS3ForTests returns an s3 driver talking to an in-process fake.
func NewMockS3ForTests() Store { return infraS3.NewMock() }

// ArtifactKey builds runs/<run>/<group>/<name>. Empty groups map to "all".
func ArtifactKey(runID, group, name string) string {
	if group == "" {
		group = "all"
	}
	return path.Join("runs", runID, sanitizeSegment(group), name)
}

func sanitizeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, strings.ReplaceAll(s, "..", "_"))
}

// WriteArtifact renders into memory first and stores the result only when
// render succeeds, so a failed render leaves no artifact behind.
func WriteArtifact(ctx context.Context, s Store, key, contentType string, render func(io.Writer) error) (Info, error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return Info{}, err
	}
	info, err := s.Put(ctx, key, bytes.NewReader(buf.Bytes()), PutOptions{ContentType: contentType})
	if err != nil {
		return Info{}, fmt.Errorf("store %s: %w", key, err)
	}
	return info, nil
}

// ReadArtifact returns the full contents stored at key.
func ReadArtifact(ctx context.Context, s Store, key string) ([]byte, error) {
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
