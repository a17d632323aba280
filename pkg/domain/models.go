package domain

import (
	"fmt"
	"math"
	"strings"
)

// Built-in curve name meaning "flat, 1.0 at every wavelength".
const Ideal = "ideal"

// Achromatic channel selectors recognised besides a receptor name.
const (
	AchromaticDoubleCone = "dc"
	AchromaticML         = "ml"
	AchromaticNone       = "none"
)

// VisualModelConfig enumerates every option of the visual model.
type VisualModelConfig struct {
	// VisualSystem names a built-in receptor set ("avg.v", "avg.uv") or a
	// curve library entry holding tabulated sensitivities.
	VisualSystem string `yaml:"system" json:"system"`
	Illuminant   string `yaml:"illuminant" json:"illuminant"`
	Background   string `yaml:"background" json:"background"`
	Transmission string `yaml:"transmission" json:"transmission"`
	// Achromatic is "dc", "ml", "none" or the name of one receptor channel.
	Achromatic string  `yaml:"achromatic" json:"achromatic"`
	VonKries   bool    `yaml:"von_kries" json:"von_kries"`
	Relative   bool    `yaml:"relative" json:"relative"`
	Scale      float64 `yaml:"scale" json:"scale"`
}

// DefaultVisualModelConfig matches a violet-sensitive bird viewing eggs
// under flat light with absolute (un-normalised) catches.
func DefaultVisualModelConfig() VisualModelConfig {
	return VisualModelConfig{
		VisualSystem: "avg.v",
		Illuminant:   Ideal,
		Background:   Ideal,
		Transmission: Ideal,
		Achromatic:   AchromaticDoubleCone,
		VonKries:     true,
		Relative:     false,
		Scale:        1,
	}
}

// Validate checks the options that do not depend on the curve library.
func (c VisualModelConfig) Validate() error {
	for field, v := range map[string]string{
		"system": c.VisualSystem, "illuminant": c.Illuminant,
		"background": c.Background, "transmission": c.Transmission, "achromatic": c.Achromatic,
	} {
		if strings.TrimSpace(v) == "" {
			return ConfigError{Stage: StageVisual, Field: field, Reason: "must not be empty"}
		}
	}
	if !(c.Scale > 0) || math.IsInf(c.Scale, 0) {
		return ConfigError{Stage: StageVisual, Field: "scale", Reason: fmt.Sprintf("must be positive, got %g", c.Scale)}
	}
	return nil
}

// NoiseType selects the receptor noise regime.
type NoiseType string

const (
	// NoiseNeural: noise independent of catch magnitude.
	NoiseNeural NoiseType = "neural"
	// NoisePhoton: adds shot noise whose variance scales with 1/catch.
	NoisePhoton NoiseType = "photon"
)

// ParseNoiseType accepts "neural", "photon" and the synonym "quantum".
func ParseNoiseType(s string) (NoiseType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(NoiseNeural):
		return NoiseNeural, nil
	case string(NoisePhoton), "quantum":
		return NoisePhoton, nil
	}
	return "", ConfigError{Stage: StageDistance, Field: "noise", Reason: fmt.Sprintf("unknown noise type %q", s)}
}

// NoiseModelConfig parameterises the receptor-noise-limited model.
type NoiseModelConfig struct {
	Noise             NoiseType `yaml:"type" json:"type"`
	IncludeAchromatic bool      `yaml:"achromatic" json:"achromatic"`
	// Densities are relative receptor densities, one per chromatic channel.
	Densities []float64 `yaml:"densities" json:"densities"`
	Weber     float64   `yaml:"weber" json:"weber"`
	// WeberRef indexes the channel whose Weber fraction is Weber.
	WeberRef        int     `yaml:"weber_ref" json:"weber_ref"`
	WeberAchromatic float64 `yaml:"weber_achromatic" json:"weber_achromatic"`
}

// DefaultNoiseModelConfig is the usual tetrachromat setup: neural noise,
// densities 1:2:2:4, Weber fraction 0.1 on the long-wavelength cone.
func DefaultNoiseModelConfig() NoiseModelConfig {
	return NoiseModelConfig{
		Noise:             NoiseNeural,
		IncludeAchromatic: true,
		Densities:         []float64{1, 2, 2, 4},
		Weber:             0.1,
		WeberRef:          3,
		WeberAchromatic:   0.1,
	}
}

// Validate checks the configuration against the number of chromatic channels.
func (c NoiseModelConfig) Validate(channels int) error {
	if _, err := ParseNoiseType(string(c.Noise)); err != nil {
		return err
	}
	if channels < 2 {
		return ConfigError{Stage: StageDistance, Field: "channels", Reason: fmt.Sprintf("need at least 2 chromatic channels, got %d", channels)}
	}
	if len(c.Densities) != channels {
		return ConfigError{Stage: StageDistance, Field: "densities",
			Reason: fmt.Sprintf("%d densities for %d channels", len(c.Densities), channels)}
	}
	for i, n := range c.Densities {
		if !(n > 0) || math.IsInf(n, 0) {
			return ConfigError{Stage: StageDistance, Field: "densities", Reason: fmt.Sprintf("density %d must be positive, got %g", i, n)}
		}
	}
	if c.WeberRef < 0 || c.WeberRef >= channels {
		return ConfigError{Stage: StageDistance, Field: "weber_ref",
			Reason: fmt.Sprintf("index %d out of range [0,%d)", c.WeberRef, channels)}
	}
	if !(c.Weber > 0) || math.IsInf(c.Weber, 0) {
		return ConfigError{Stage: StageDistance, Field: "weber", Reason: fmt.Sprintf("must be positive, got %g", c.Weber)}
	}
	if c.IncludeAchromatic && (!(c.WeberAchromatic > 0) || math.IsInf(c.WeberAchromatic, 0)) {
		return ConfigError{Stage: StageDistance, Field: "weber_achromatic", Reason: fmt.Sprintf("must be positive, got %g", c.WeberAchromatic)}
	}
	return nil
}

// CenterMode selects what ends up at the origin of the projection.
type CenterMode string

const (
	CenterMean   CenterMode = "mean"
	CenterCustom CenterMode = "custom"
)

// Vec3 is a point or direction in perceptual space.
type Vec3 [3]float64

// ProjectionConfig controls centring and rotation of the perceptual space.
type ProjectionConfig struct {
	Rotate     bool       `yaml:"rotate" json:"rotate"`
	Center     bool       `yaml:"center" json:"center"`
	CenterMode CenterMode `yaml:"center_mode" json:"center_mode"`
	// CenterID names a sample or reference stimulus used as origin when
	// CenterMode is custom. When empty, CenterPoint is used instead.
	CenterID    string `yaml:"center_id,omitempty" json:"center_id,omitempty"`
	CenterPoint Vec3   `yaml:"center_point,omitempty" json:"center_point,omitempty"`
	// Ref1 and Ref2 index the receptor channels whose axes are aligned.
	Ref1  int  `yaml:"ref1" json:"ref1"`
	Ref2  int  `yaml:"ref2" json:"ref2"`
	Axis1 Vec3 `yaml:"axis1" json:"axis1"`
	Axis2 Vec3 `yaml:"axis2" json:"axis2"`
	// Tolerance is the relative numerical slack of the embedding checks.
	// Zero selects the default.
	Tolerance float64 `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	// MetricTolerance is the relative excess over d(a,k)+d(k,b) a sample pair
	// may show before the matrix is rejected as non-metric. Photon noise
	// weights each pair by its own catches, so its distances break the
	// triangle inequality by a few tenths of a percent. Zero selects the
	// default.
	MetricTolerance float64 `yaml:"metric_tolerance,omitempty" json:"metric_tolerance,omitempty"`
}

// DefaultTolerance is used when ProjectionConfig.Tolerance is zero.
const DefaultTolerance = 1e-6

// DefaultMetricTolerance is used when ProjectionConfig.MetricTolerance is zero.
const DefaultMetricTolerance = 0.05

// DefaultProjectionConfig puts the long-wavelength receptor on the x=y
// diagonal and the violet receptor straight up.
func DefaultProjectionConfig() ProjectionConfig {
	return ProjectionConfig{
		Rotate:     true,
		Center:     true,
		CenterMode: CenterMean,
		Ref1:       3,
		Ref2:       0,
		Axis1:      Vec3{1, 1, 0},
		Axis2:      Vec3{0, 0, 1},
	}
}

// Tol returns the effective relative tolerance.
func (c ProjectionConfig) Tol() float64 {
	if c.Tolerance > 0 {
		return c.Tolerance
	}
	return DefaultTolerance
}

// MetricTol returns the effective triangle-inequality tolerance.
func (c ProjectionConfig) MetricTol() float64 {
	if c.MetricTolerance > 0 {
		return c.MetricTolerance
	}
	return DefaultMetricTolerance
}

// Validate checks the configuration against the number of chromatic channels.
func (c ProjectionConfig) Validate(channels int) error {
	if c.Center {
		switch c.CenterMode {
		case CenterMean, CenterCustom:
		default:
			return ConfigError{Stage: StageProjection, Field: "center_mode", Reason: fmt.Sprintf("unknown mode %q", c.CenterMode)}
		}
	}
	if c.Tolerance < 0 {
		return ConfigError{Stage: StageProjection, Field: "tolerance", Reason: "must not be negative"}
	}
	if c.MetricTolerance < 0 {
		return ConfigError{Stage: StageProjection, Field: "metric_tolerance", Reason: "must not be negative"}
	}
	if !c.Rotate {
		return nil
	}
	for field, idx := range map[string]int{"ref1": c.Ref1, "ref2": c.Ref2} {
		if idx < 0 || idx >= channels {
			return ConfigError{Stage: StageProjection, Field: field, Reason: fmt.Sprintf("channel index %d out of range [0,%d)", idx, channels)}
		}
	}
	if c.Ref1 == c.Ref2 {
		return ConfigError{Stage: StageProjection, Field: "ref2", Reason: "must differ from ref1"}
	}
	if c.Axis1.Norm() == 0 || c.Axis2.Norm() == 0 {
		return ConfigError{Stage: StageProjection, Field: "axis", Reason: "target axes must be non-zero"}
	}
	if c.Axis1.Cross(c.Axis2).Norm() <= 1e-12*c.Axis1.Norm()*c.Axis2.Norm() {
		return ConfigError{Stage: StageProjection, Field: "axis2", Reason: "target axes must not be parallel"}
	}
	return nil
}

// Sub returns v-w.
func (v Vec3) Sub(w Vec3) Vec3 { return Vec3{v[0] - w[0], v[1] - w[1], v[2] - w[2]} }

// Dot returns the scalar product.
func (v Vec3) Dot(w Vec3) float64 { return v[0]*w[0] + v[1]*w[1] + v[2]*w[2] }

// Cross returns the vector product.
func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{v[1]*w[2] - v[2]*w[1], v[2]*w[0] - v[0]*w[2], v[0]*w[1] - v[1]*w[0]}
}

// Norm returns the Euclidean length.
func (v Vec3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// Scale returns v*k.
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v[0] * k, v[1] * k, v[2] * k} }
