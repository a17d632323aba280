// Package swatch renders reflectance spectra as display colours for the
// plotting side of the pipeline.
package swatch

import (
	"math"

	"eggjnd/internal/vismodel"
	"eggjnd/pkg/domain"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/floats"
)

// Options controls spectrum interpretation.
type Options struct {
	// Percent marks reflectance in 0-100 rather than 0-1.
	Percent bool `yaml:"percent" json:"percent"`
}

// Swatch is the display colour of one sample.
type Swatch struct {
	SampleID string  `json:"id"`
	Hex      string  `json:"hex"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
}

// Bradford adaptation from the equal-energy white to D65.
var bradfordEToD65 = [3][3]float64{
	{0.9531874, -0.0265906, 0.0238731},
	{-0.0382467, 1.0288406, 0.0094060},
	{0.0026068, -0.0030332, 1.0892565},
}

// lobe is a piecewise Gaussian with different widths left and right of mu.
type lobe struct{ w, mu, left, right float64 }

func (l lobe) at(x float64) float64 {
	s := l.right
	if x < l.mu {
		s = l.left
	}
	t := (x - l.mu) / s
	return l.w * math.Exp(-0.5*t*t)
}

// Multi-lobe fit of the CIE 1931 2° colour matching functions (Wyman, Sloan
// & Shirley 2013).
var (
	xBar = []lobe{{1.056, 599.8, 37.9, 31.0}, {0.362, 442.0, 16.0, 26.7}, {-0.065, 501.1, 20.4, 26.2}}
	yBar = []lobe{{0.821, 568.8, 46.9, 40.5}, {0.286, 530.9, 16.3, 31.1}}
	zBar = []lobe{{1.217, 437.0, 11.8, 36.0}, {0.681, 459.0, 26.0, 13.8}}
)

func cmf(lobes []lobe, wl []float64) []float64 {
	out := make([]float64, len(wl))
	for i, x := range wl {
		for _, l := range lobes {
			out[i] += l.at(x)
		}
	}
	return out
}

// FromSpectrum integrates the spectrum under an equal-energy illuminant,
// adapts the tristimulus values to D65 and converts them to sRGB.
func FromSpectrum(s domain.ReflectanceSpectrum, opts Options) (Swatch, error) {
	if err := s.Validate(domain.StagePersist); err != nil {
		return Swatch{}, err
	}
	w := vismodel.Widths(s.Wavelengths)
	r := make([]float64, len(s.Values))
	copy(r, s.Values)
	if opts.Percent {
		floats.Scale(0.01, r)
	}
	floats.Mul(r, w)

	yb := cmf(yBar, s.Wavelengths)
	norm := floats.Dot(yb, w)
	if norm <= 0 {
		return Swatch{SampleID: s.ID, Hex: "#000000"}, nil
	}
	e := [3]float64{
		floats.Dot(r, cmf(xBar, s.Wavelengths)) / norm,
		floats.Dot(r, yb) / norm,
		floats.Dot(r, cmf(zBar, s.Wavelengths)) / norm,
	}
	var d65 [3]float64
	for i := range d65 {
		for j := range e {
			d65[i] += bradfordEToD65[i][j] * e[j]
		}
	}
	c := colorful.Xyz(d65[0], d65[1], d65[2]).Clamped()
	return Swatch{SampleID: s.ID, Hex: c.Hex(), X: d65[0], Y: d65[1], Z: d65[2]}, nil
}

// FromSet renders every sample of set in order.
func FromSet(set domain.ReflectanceSet, opts Options) ([]Swatch, error) {
	out := make([]Swatch, 0, set.Len())
	for _, s := range set.Spectra() {
		sw, err := FromSpectrum(s, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, sw)
	}
	return out, nil
}
