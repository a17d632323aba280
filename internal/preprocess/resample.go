package preprocess

import (
	"fmt"
	"math"

	"eggjnd/pkg/domain"

	"gonum.org/v1/gonum/interp"
)

// Grid builds lo, lo+step, ... up to and including hi (within rounding).
func Grid(lo, hi, step float64) []float64 {
	n := int(math.Floor((hi-lo)/step+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// Resample linearly interpolates every spectrum onto a regular grid from lo
// to hi. The target range must lie inside the measured range.
func Resample(set domain.ReflectanceSet, lo, hi, step float64) (domain.ReflectanceSet, error) {
	src := set.Wavelengths()
	if len(src) < 2 {
		return domain.ReflectanceSet{}, domain.ValidationError{Stage: domain.StagePreprocess, SampleIDs: set.IDs(),
			Reason: "need at least two wavelengths to resample"}
	}
	if lo < src[0] || hi > src[len(src)-1] {
		return domain.ReflectanceSet{}, domain.ValidationError{Stage: domain.StagePreprocess, SampleIDs: set.IDs(),
			Reason: fmt.Sprintf("range %g-%g nm outside measured %g-%g nm", lo, hi, src[0], src[len(src)-1])}
	}
	grid := Grid(lo, hi, step)
	spectra := set.Spectra()
	for i, sp := range spectra {
		vals, err := InterpolateOnto(src, sp.Values, grid)
		if err != nil {
			return domain.ReflectanceSet{}, domain.ValidationError{Stage: domain.StagePreprocess, SampleIDs: []string{sp.ID}, Reason: err.Error()}
		}
		spectra[i].Wavelengths = grid
		spectra[i].Values = vals
	}
	return domain.NewReflectanceSet(domain.StagePreprocess, grid, spectra)
}

// InterpolateOnto evaluates the piecewise-linear curve (xs, ys) at every
// point of grid. Points outside xs take the nearest end value.
func InterpolateOnto(xs, ys, grid []float64) ([]float64, error) {
	if len(xs) == 1 {
		out := make([]float64, len(grid))
		for i := range out {
			out[i] = ys[0]
		}
		return out, nil
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, err
	}
	out := make([]float64, len(grid))
	for i, x := range grid {
		switch {
		case x <= xs[0]:
			out[i] = ys[0]
		case x >= xs[len(xs)-1]:
			out[i] = ys[len(ys)-1]
		default:
			out[i] = pl.Predict(x)
		}
	}
	return out, nil
}
