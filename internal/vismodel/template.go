package vismodel

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Govardovskii returns the A1 visual pigment absorbance template of
// Govardovskii et al. (2000) for a pigment peaking at lambdaMax, evaluated on
// wl and normalised to unit area over the grid.
func Govardovskii(lambdaMax float64, wl []float64) []float64 {
	const (
		A = 69.7
		B = 28.0
		b = 0.922
		C = -14.9
		c = 1.104
		D = 0.674
	)
	a := 0.8795 + 0.0459*math.Exp(-math.Pow(lambdaMax-300, 2)/11940)
	betaPeak := 189 + 0.315*lambdaMax
	betaWidth := -40.5 + 0.195*lambdaMax

	out := make([]float64, len(wl))
	for i, l := range wl {
		x := lambdaMax / l
		alpha := 1 / (math.Exp(A*(a-x)) + math.Exp(B*(b-x)) + math.Exp(C*(c-x)) + D)
		beta := 0.26 * math.Exp(-math.Pow((l-betaPeak)/betaWidth, 2))
		out[i] = alpha + beta
	}
	return normaliseArea(out, wl)
}

// OilDroplet is the transmission of a coloured oil droplet described by its
// cut-off wavelength and the slope at the half-maximum (Hart & Vorobyev 2005).
type OilDroplet struct {
	Cutoff float64
	Bmid   float64
}

// Transmission evaluates the droplet on wl. A zero droplet is fully clear.
func (o OilDroplet) Transmission(wl []float64) []float64 {
	out := make([]float64, len(wl))
	for i, l := range wl {
		if o.Cutoff == 0 {
			out[i] = 1
			continue
		}
		out[i] = math.Exp(-math.Exp(-2.89*o.Bmid*(l-o.Cutoff) + 1.08))
	}
	return out
}

// Widths returns the integration weight of each grid point: half the
// distance to each neighbour, so irregular grids integrate correctly.
func Widths(wl []float64) []float64 {
	n := len(wl)
	out := make([]float64, n)
	if n < 2 {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i := range wl {
		lo, hi := i-1, i+1
		if lo < 0 {
			lo = 0
		}
		if hi > n-1 {
			hi = n - 1
		}
		out[i] = (wl[hi] - wl[lo]) / 2
	}
	return out
}

func normaliseArea(vals, wl []float64) []float64 {
	area := floats.Dot(vals, Widths(wl))
	if area <= 0 {
		return vals
	}
	floats.Scale(1/area, vals)
	return vals
}
