package preprocess

import (
	"fmt"

	"eggjnd/pkg/domain"
)

// Options configures Clean.
type Options struct {
	// Smooth enables LOESS smoothing with the given Span.
	Smooth bool    `yaml:"smooth" json:"smooth"`
	Span   float64 `yaml:"span" json:"span"`
	// FixNegative clamps values below zero to zero after smoothing.
	FixNegative bool `yaml:"fix_negative" json:"fix_negative"`
	// MinWL, MaxWL and Step, when Step > 0, trim and resample the grid
	// before smoothing.
	MinWL float64 `yaml:"min_wl,omitempty" json:"min_wl,omitempty"`
	MaxWL float64 `yaml:"max_wl,omitempty" json:"max_wl,omitempty"`
	Step  float64 `yaml:"step,omitempty" json:"step,omitempty"`
}

// DefaultOptions smooths with a quarter span and zeroes negatives.
func DefaultOptions() Options {
	return Options{Smooth: true, Span: DefaultSpan, FixNegative: true}
}

// Validate checks option consistency.
func (o Options) Validate() error {
	if o.Smooth && !(o.Span > 0 && o.Span <= 1) {
		return domain.ConfigError{Stage: domain.StagePreprocess, Field: "span", Reason: fmt.Sprintf("must be in (0,1], got %g", o.Span)}
	}
	if o.Step < 0 {
		return domain.ConfigError{Stage: domain.StagePreprocess, Field: "step", Reason: "must not be negative"}
	}
	if o.Step > 0 && o.MaxWL <= o.MinWL {
		return domain.ConfigError{Stage: domain.StagePreprocess, Field: "max_wl", Reason: "must exceed min_wl"}
	}
	return nil
}

// ClampNegative returns a new set where every value below zero is exactly 0.
func ClampNegative(set domain.ReflectanceSet) (domain.ReflectanceSet, error) {
	return set.Map(domain.StagePreprocess, func(_ string, values []float64) ([]float64, error) {
		for i, v := range values {
			if v < 0 {
				values[i] = 0
			}
		}
		return values, nil
	})
}

// Clean runs the configured steps in order: resample, smooth, clamp.
func Clean(set domain.ReflectanceSet, opts Options) (domain.ReflectanceSet, error) {
	if err := opts.Validate(); err != nil {
		return domain.ReflectanceSet{}, err
	}
	out := set
	var err error
	if opts.Step > 0 {
		if out, err = Resample(out, opts.MinWL, opts.MaxWL, opts.Step); err != nil {
			return domain.ReflectanceSet{}, err
		}
	}
	if opts.Smooth {
		if out, err = Smooth(out, opts.Span); err != nil {
			return domain.ReflectanceSet{}, err
		}
	}
	if opts.FixNegative {
		if out, err = ClampNegative(out); err != nil {
			return domain.ReflectanceSet{}, err
		}
	}
	return out, nil
}
