package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names the pipeline step that produced an error or artifact.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StagePreprocess Stage = "preprocess"
	StageVisual     Stage = "vismodel"
	StageDistance   Stage = "distance"
	StageProjection Stage = "projection"
	StagePersist    Stage = "persist"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrValidation = errors.New("validation error")
	ErrConfig     = errors.New("config error")
	ErrDegenerate = errors.New("degenerate input")
)

// ValidationError reports malformed or inconsistent spectral input.
type ValidationError struct {
	Stage     Stage
	SampleIDs []string
	Reason    string
}

func (e ValidationError) Error() string { return formatError("validation", e.Stage, e.SampleIDs, e.Reason) }

// Is lets callers match with errors.Is(err, ErrValidation).
func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// ConfigError reports an invalid model configuration such as an
// out-of-range channel index or mismatched vector lengths.
type ConfigError struct {
	Stage  Stage
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	reason := e.Reason
	if e.Field != "" {
		reason = e.Field + ": " + reason
	}
	return formatError("config", e.Stage, nil, reason)
}

// Is lets callers match with errors.Is(err, ErrConfig).
func (e ConfigError) Is(target error) bool { return target == ErrConfig }

// DegenerateInputError reports a geometrically under-determined projection.
type DegenerateInputError struct {
	Stage     Stage
	SampleIDs []string
	Reason    string
}

func (e DegenerateInputError) Error() string {
	return formatError("degenerate input", e.Stage, e.SampleIDs, e.Reason)
}

// Is lets callers match with errors.Is(err, ErrDegenerate).
func (e DegenerateInputError) Is(target error) bool { return target == ErrDegenerate }

func formatError(kind string, stage Stage, ids []string, reason string) string {
	var b strings.Builder
	b.WriteString(kind)
	if stage != "" {
		fmt.Fprintf(&b, " [%s]", stage)
	}
	if len(ids) > 0 {
		fmt.Fprintf(&b, " (samples: %s)", strings.Join(ids, ", "))
	}
	if reason != "" {
		b.WriteString(": ")
		b.WriteString(reason)
	}
	return b.String()
}

// ErrNotFound indicates the requested record does not exist.
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e ErrNotFound) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }
