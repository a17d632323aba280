// Package rnl computes receptor-noise-limited colour and luminance
// distances (in just-noticeable differences) between quantum catches.
package rnl

import (
	"fmt"
	"math"
	"slices"

	"eggjnd/pkg/domain"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RefOffset is the log-catch step that places each receptor reference
// stimulus away from the achromatic reference.
const RefOffset = 0.1

// CheckModels rejects visual/noise combinations that cannot be evaluated.
func CheckModels(vis domain.VisualModelConfig, noise domain.NoiseModelConfig, hasAchromatic bool) error {
	if noise.Noise == domain.NoisePhoton && vis.Relative {
		return domain.ConfigError{Stage: domain.StageDistance, Field: "noise",
			Reason: "photon noise needs absolute catches; disable relative"}
	}
	if noise.IncludeAchromatic && !hasAchromatic {
		return domain.ConfigError{Stage: domain.StageDistance, Field: "achromatic",
			Reason: "achromatic distances requested but the visual model has no achromatic channel"}
	}
	return nil
}

// stimulus is a catch in log space.
type stimulus struct {
	id    string
	q     []float64
	f     []float64
	lum   float64
	flum  float64
	isRef bool
}

// Distances computes the JND matrix of one group. Every unordered pair of
// samples appears once in Pairs; reference stimuli (achromatic grey plus one
// per receptor) and their pairs go to References and RefPairs.
func Distances(group string, channels []string, catches []domain.QuantumCatch, cfg domain.NoiseModelConfig) (domain.JNDMatrix, error) {
	if err := cfg.Validate(len(channels)); err != nil {
		return domain.JNDMatrix{}, err
	}
	if len(catches) == 0 {
		return domain.JNDMatrix{}, domain.ValidationError{Stage: domain.StageDistance, Reason: fmt.Sprintf("group %q has no samples", group)}
	}
	samples, err := toStimuli(channels, catches, cfg.IncludeAchromatic)
	if err != nil {
		return domain.JNDMatrix{}, err
	}
	refs := references(channels, samples)

	m := domain.JNDMatrix{
		Group:      group,
		Channels:   slices.Clone(channels),
		Noise:      cfg,
		Achromatic: cfg.IncludeAchromatic,
	}
	for _, s := range samples {
		m.SampleIDs = append(m.SampleIDs, s.id)
	}
	m.References = append(m.References, domain.Reference{ID: domain.AchromaticRefID})
	for _, ch := range channels {
		m.References = append(m.References, domain.Reference{ID: domain.RefID(ch), Channel: ch})
	}

	calc := newCalculator(cfg)
	refCalc := calc.neural()
	for i := range samples {
		for j := i + 1; j < len(samples); j++ {
			m.Pairs = append(m.Pairs, calc.pair(samples[i], samples[j]))
		}
	}
	all := append(slices.Clone(samples), refs...)
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			if all[i].isRef || all[j].isRef {
				m.RefPairs = append(m.RefPairs, refCalc.pair(all[i], all[j]))
			}
		}
	}
	return m, nil
}

func toStimuli(channels []string, catches []domain.QuantumCatch, achromatic bool) ([]stimulus, error) {
	seen := make(map[string]struct{}, len(catches))
	out := make([]stimulus, len(catches))
	for i, c := range catches {
		if _, dup := seen[c.SampleID]; dup {
			return nil, domain.ValidationError{Stage: domain.StageDistance, SampleIDs: []string{c.SampleID}, Reason: "duplicate sample id"}
		}
		seen[c.SampleID] = struct{}{}
		if len(c.Channels) != len(channels) {
			return nil, domain.ConfigError{Stage: domain.StageDistance, Field: "channels",
				Reason: fmt.Sprintf("sample %s has %d channels, model has %d", c.SampleID, len(c.Channels), len(channels))}
		}
		s := stimulus{id: c.SampleID, q: slices.Clone(c.Channels), f: make([]float64, len(channels))}
		for k, q := range c.Channels {
			if !(q > 0) || math.IsInf(q, 0) {
				return nil, domain.ValidationError{Stage: domain.StageDistance, SampleIDs: []string{c.SampleID},
					Reason: fmt.Sprintf("%s catch %g is not positive", channels[k], q)}
			}
			s.f[k] = math.Log(q)
		}
		if achromatic {
			if !(c.Achromatic > 0) || math.IsInf(c.Achromatic, 0) {
				return nil, domain.ValidationError{Stage: domain.StageDistance, SampleIDs: []string{c.SampleID},
					Reason: fmt.Sprintf("achromatic catch %g is not positive", c.Achromatic)}
			}
			s.lum = c.Achromatic
			s.flum = math.Log(c.Achromatic)
		}
		out[i] = s
	}
	return out, nil
}

// references builds the grey point at the mean log catch of the samples and
// one point per receptor, offset by RefOffset along that receptor only.
func references(channels []string, samples []stimulus) []stimulus {
	n := float64(len(samples))
	grey := stimulus{id: domain.AchromaticRefID, f: make([]float64, len(channels)), isRef: true}
	for _, s := range samples {
		floats.Add(grey.f, s.f)
		grey.flum += s.flum
	}
	floats.Scale(1/n, grey.f)
	grey.flum /= n
	grey.lum = math.Exp(grey.flum)
	grey.q = expAll(grey.f)

	out := []stimulus{grey}
	for k, ch := range channels {
		r := stimulus{id: domain.RefID(ch), f: slices.Clone(grey.f), lum: grey.lum, flum: grey.flum, isRef: true}
		r.f[k] += RefOffset
		r.q = expAll(r.f)
		out = append(out, r)
	}
	return out
}

func expAll(f []float64) []float64 {
	out := make([]float64, len(f))
	for i, v := range f {
		out[i] = math.Exp(v)
	}
	return out
}

// calculator evaluates the RNL quadratic form. With neural noise the
// weights do not depend on the pair and the form is built once.
type calculator struct {
	cfg   domain.NoiseModelConfig
	base  []float64 // neural variance per channel
	fixed *mat.SymDense
}

func newCalculator(cfg domain.NoiseModelConfig) *calculator {
	ref := cfg.Densities[cfg.WeberRef]
	c := &calculator{cfg: cfg, base: make([]float64, len(cfg.Densities))}
	for k, n := range cfg.Densities {
		c.base[k] = cfg.Weber * cfg.Weber * ref / n
	}
	if cfg.Noise != domain.NoisePhoton {
		c.fixed = contrastForm(c.base)
	}
	return c
}

// neural returns a calculator with the same Weber fractions and densities
// but pair-independent noise. Reference stimuli are synthetic, so their
// distances use these fixed weights and stay an exact metric whatever the
// noise type of the samples.
func (c *calculator) neural() *calculator {
	if c.fixed != nil {
		return c
	}
	cfg := c.cfg
	cfg.Noise = domain.NoiseNeural
	return newCalculator(cfg)
}

// contrastForm returns W - W11ᵀW/(1ᵀW1) with W = diag(1/variance): the
// noise-weighted metric with the achromatic (all-equal) direction removed.
func contrastForm(variance []float64) *mat.SymDense {
	n := len(variance)
	w := make([]float64, n)
	for k, v := range variance {
		w[k] = 1 / v
	}
	total := floats.Sum(w)
	form := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := -w[i] * w[j] / total
			if i == j {
				v += w[i]
			}
			form.SetSym(i, j, v)
		}
	}
	return form
}

func (c *calculator) pair(a, b stimulus) domain.JNDPair {
	n := len(a.f)
	diffs := make([]float64, n)
	floats.SubTo(diffs, a.f, b.f)

	form := c.fixed
	if form == nil {
		variance := slices.Clone(c.base)
		for k := range variance {
			variance[k] += 2 / (a.q[k] + b.q[k])
		}
		form = contrastForm(variance)
	}
	d := mat.NewVecDense(n, diffs)
	ds2 := mat.Inner(d, form, d)
	p := domain.JNDPair{A: a.id, B: b.id, DS: math.Sqrt(math.Max(ds2, 0)), Diffs: diffs}

	if c.cfg.IncludeAchromatic {
		p.DiffL = a.flum - b.flum
		variance := c.cfg.WeberAchromatic * c.cfg.WeberAchromatic
		if c.cfg.Noise == domain.NoisePhoton {
			variance += 2 / (a.lum + b.lum)
		}
		p.DL = math.Abs(p.DiffL) / math.Sqrt(variance)
	}
	return p
}
