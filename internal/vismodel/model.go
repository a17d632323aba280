// Package vismodel turns reflectance spectra into photoreceptor quantum
// catches under a configured illuminant, background and ocular filter.
package vismodel

import (
	"fmt"
	"slices"

	"eggjnd/internal/preprocess"
	"eggjnd/pkg/domain"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Library resolves named spectra loaded from disk. Single-curve entries are
// illuminants, backgrounds or transmissions; multi-curve entries are visual
// systems with one curve per receptor, where a curve named "dc" is the
// double cone.
type Library map[string][]domain.Curve

// Model computes quantum catches on a fixed wavelength grid. It is
// immutable and safe for concurrent use.
type Model struct {
	cfg      domain.VisualModelConfig
	grid     []float64
	channels []string

	// kernel rows are S_k·T·I·scale·Δλ, so a catch is kernel·R.
	kernel *mat.Dense
	// background catch per kernel row, used for von Kries adaptation.
	background []float64

	// achromatic source: a dedicated kernel row (dcRow >= 0) or a sum of
	// adapted chromatic channels.
	dcRow      int
	achroFrom  []int
	achromatic bool
}

// New builds a model for cfg on grid. Named curves that are not "ideal" or a
// built-in system are looked up in lib and interpolated onto the grid.
func New(cfg domain.VisualModelConfig, grid []float64, lib Library) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := domain.CheckGrid(grid); err != nil {
		return nil, domain.ConfigError{Stage: domain.StageVisual, Field: "grid", Reason: err.Error()}
	}
	if len(grid) < 2 {
		return nil, domain.ConfigError{Stage: domain.StageVisual, Field: "grid", Reason: "need at least two wavelengths"}
	}
	grid = slices.Clone(grid)

	chromatic, dc, err := resolveSystem(cfg.VisualSystem, grid, lib)
	if err != nil {
		return nil, err
	}
	illum, err := resolveCurve("illuminant", cfg.Illuminant, grid, lib)
	if err != nil {
		return nil, err
	}
	bkg, err := resolveCurve("background", cfg.Background, grid, lib)
	if err != nil {
		return nil, err
	}
	trans, err := resolveCurve("transmission", cfg.Transmission, grid, lib)
	if err != nil {
		return nil, err
	}

	m := &Model{cfg: cfg, grid: grid, dcRow: -1}
	curves := make([]domain.Curve, 0, len(chromatic)+1)
	for _, c := range chromatic {
		m.channels = append(m.channels, c.Name)
		curves = append(curves, c)
	}
	if err := m.selectAchromatic(cfg.Achromatic, dc, &curves); err != nil {
		return nil, err
	}

	widths := Widths(grid)
	m.kernel = mat.NewDense(len(curves), len(grid), nil)
	for r, c := range curves {
		for i := range grid {
			m.kernel.Set(r, i, c.Values[i]*trans[i]*illum[i]*cfg.Scale*widths[i])
		}
	}
	var bg mat.VecDense
	bg.MulVec(m.kernel, mat.NewVecDense(len(grid), bkg))
	m.background = make([]float64, len(curves))
	for r := range curves {
		m.background[r] = bg.AtVec(r)
		if cfg.VonKries && !(m.background[r] > 0) {
			return nil, domain.ConfigError{Stage: domain.StageVisual, Field: "background",
				Reason: fmt.Sprintf("background catch for %s is %g; von Kries needs a positive catch", curves[r].Name, m.background[r])}
		}
	}
	return m, nil
}

func (m *Model) selectAchromatic(sel string, dc *domain.Curve, curves *[]domain.Curve) error {
	switch sel {
	case domain.AchromaticNone:
		return nil
	case domain.AchromaticDoubleCone:
		if dc == nil {
			return domain.ConfigError{Stage: domain.StageVisual, Field: "achromatic",
				Reason: fmt.Sprintf("visual system %q has no double cone", m.cfg.VisualSystem)}
		}
		m.dcRow = len(*curves)
		*curves = append(*curves, *dc)
	case domain.AchromaticML:
		mi, li := slices.Index(m.channels, "m"), slices.Index(m.channels, "l")
		if mi < 0 || li < 0 {
			return domain.ConfigError{Stage: domain.StageVisual, Field: "achromatic",
				Reason: fmt.Sprintf("%q needs m and l channels, system has %v", sel, m.channels)}
		}
		m.achroFrom = []int{mi, li}
	default:
		idx := slices.Index(m.channels, sel)
		if idx < 0 {
			return domain.ConfigError{Stage: domain.StageVisual, Field: "achromatic",
				Reason: fmt.Sprintf("unknown achromatic channel %q (system has %v)", sel, m.channels)}
		}
		m.achroFrom = []int{idx}
	}
	m.achromatic = true
	return nil
}

// Channels returns the chromatic channel names in catch order.
func (m *Model) Channels() []string { return slices.Clone(m.channels) }

// HasAchromatic reports whether catches carry an achromatic value.
func (m *Model) HasAchromatic() bool { return m.achromatic }

// Grid returns the wavelength grid the model integrates over.
func (m *Model) Grid() []float64 { return slices.Clone(m.grid) }

// Config returns the configuration the model was built from.
func (m *Model) Config() domain.VisualModelConfig { return m.cfg }

// Catch integrates one spectrum. The spectrum must lie on the model grid.
func (m *Model) Catch(s domain.ReflectanceSpectrum) (domain.QuantumCatch, error) {
	if err := s.Validate(domain.StageVisual); err != nil {
		return domain.QuantumCatch{}, err
	}
	if !floats.Equal(s.Wavelengths, m.grid) {
		return domain.QuantumCatch{}, domain.ValidationError{Stage: domain.StageVisual, SampleIDs: []string{s.ID},
			Reason: "spectrum grid differs from the visual model grid"}
	}
	var raw mat.VecDense
	raw.MulVec(m.kernel, mat.NewVecDense(len(s.Values), slices.Clone(s.Values)))
	return m.adapt(s.ID, raw.RawVector().Data)
}

// CatchSet integrates every spectrum of set in set order.
func (m *Model) CatchSet(set domain.ReflectanceSet) ([]domain.QuantumCatch, error) {
	if set.Len() == 0 {
		return nil, nil
	}
	if !floats.Equal(set.Wavelengths(), m.grid) {
		return nil, domain.ValidationError{Stage: domain.StageVisual, SampleIDs: set.IDs(),
			Reason: "set grid differs from the visual model grid"}
	}
	spectra := set.Spectra()
	refl := mat.NewDense(len(spectra), len(m.grid), nil)
	for i, s := range spectra {
		refl.SetRow(i, s.Values)
	}
	// raw is samples × receptors
	var raw mat.Dense
	raw.Mul(refl, m.kernel.T())
	out := make([]domain.QuantumCatch, len(spectra))
	for i, s := range spectra {
		q, err := m.adapt(s.ID, raw.RawRowView(i))
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

func (m *Model) adapt(id string, raw []float64) (domain.QuantumCatch, error) {
	q := slices.Clone(raw)
	for r, v := range q {
		if !(v > 0) {
			name := m.rowName(r)
			return domain.QuantumCatch{}, domain.ValidationError{Stage: domain.StageVisual, SampleIDs: []string{id},
				Reason: fmt.Sprintf("non-positive %s catch %g", name, v)}
		}
		if m.cfg.VonKries {
			q[r] = v / m.background[r]
		}
	}
	out := domain.QuantumCatch{SampleID: id, Channels: q[:len(m.channels)]}
	switch {
	case m.dcRow >= 0:
		out.Achromatic = q[m.dcRow]
	case len(m.achroFrom) > 0:
		for _, k := range m.achroFrom {
			out.Achromatic += q[k]
		}
	}
	if m.cfg.Relative {
		floats.Scale(1/floats.Sum(out.Channels), out.Channels)
	}
	return out, nil
}

func (m *Model) rowName(r int) string {
	if r < len(m.channels) {
		return m.channels[r]
	}
	return DoubleCone
}

func resolveSystem(name string, grid []float64, lib Library) ([]domain.Curve, *domain.Curve, error) {
	if sys, ok := LookupSystem(name); ok {
		chromatic, dc := sys.Sensitivities(grid)
		return chromatic, dc, nil
	}
	curves, ok := lib[name]
	if !ok {
		return nil, nil, domain.ConfigError{Stage: domain.StageVisual, Field: "system",
			Reason: fmt.Sprintf("unknown visual system %q (built-in: %v)", name, BuiltinSystems())}
	}
	var chromatic []domain.Curve
	var dc *domain.Curve
	for _, c := range curves {
		vals, err := onGrid("system", c, grid)
		if err != nil {
			return nil, nil, err
		}
		rc := domain.Curve{Name: c.Name, Wavelengths: slices.Clone(grid), Values: vals}
		if c.Name == DoubleCone {
			dc = &rc
			continue
		}
		chromatic = append(chromatic, rc)
	}
	if len(chromatic) < 2 {
		return nil, nil, domain.ConfigError{Stage: domain.StageVisual, Field: "system",
			Reason: fmt.Sprintf("visual system %q has %d chromatic receptors, need at least 2", name, len(chromatic))}
	}
	return chromatic, dc, nil
}

func resolveCurve(field, name string, grid []float64, lib Library) ([]float64, error) {
	if name == domain.Ideal {
		out := make([]float64, len(grid))
		for i := range out {
			out[i] = 1
		}
		return out, nil
	}
	curves, ok := lib[name]
	if !ok {
		return nil, domain.ConfigError{Stage: domain.StageVisual, Field: field, Reason: fmt.Sprintf("unknown spectrum %q", name)}
	}
	if len(curves) != 1 {
		return nil, domain.ConfigError{Stage: domain.StageVisual, Field: field,
			Reason: fmt.Sprintf("spectrum %q has %d curves, want 1", name, len(curves))}
	}
	return onGrid(field, curves[0], grid)
}

// onGrid interpolates c onto grid. The curve must cover the grid.
func onGrid(field string, c domain.Curve, grid []float64) ([]float64, error) {
	if err := domain.CheckGrid(c.Wavelengths); err != nil || len(c.Wavelengths) != len(c.Values) {
		return nil, domain.ConfigError{Stage: domain.StageVisual, Field: field, Reason: fmt.Sprintf("curve %q is malformed", c.Name)}
	}
	lo, hi := c.Wavelengths[0], c.Wavelengths[len(c.Wavelengths)-1]
	if grid[0] < lo || grid[len(grid)-1] > hi {
		return nil, domain.ConfigError{Stage: domain.StageVisual, Field: field,
			Reason: fmt.Sprintf("curve %q covers %g-%g nm, grid needs %g-%g nm", c.Name, lo, hi, grid[0], grid[len(grid)-1])}
	}
	vals, err := preprocess.InterpolateOnto(c.Wavelengths, c.Values, grid)
	if err != nil {
		return nil, domain.ConfigError{Stage: domain.StageVisual, Field: field, Reason: err.Error()}
	}
	return vals, nil
}
