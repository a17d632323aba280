// Package preprocess cleans raw reflectance spectra: LOESS smoothing,
// negative-value correction and optional trimming/resampling.
package preprocess

import (
	"fmt"
	"math"
	"sort"

	"eggjnd/pkg/domain"

	"gonum.org/v1/gonum/mat"
)

// DefaultSpan is the fraction of points in each local fit.
const DefaultSpan = 0.25

// minNeighbours keeps at least three points with non-zero tricube weight
// for the local quadratic.
const minNeighbours = 5

// Smooth replaces every value with a local quadratic fit (LOESS with
// tricube weights) over the span*n nearest wavelengths. The grid and the
// sample count are preserved.
func Smooth(set domain.ReflectanceSet, span float64) (domain.ReflectanceSet, error) {
	if !(span > 0 && span <= 1) {
		return domain.ReflectanceSet{}, domain.ConfigError{Stage: domain.StagePreprocess, Field: "span",
			Reason: fmt.Sprintf("must be in (0,1], got %g", span)}
	}
	wl := set.Wavelengths()
	plan := newLoessPlan(wl, span)
	return set.Map(domain.StagePreprocess, func(_ string, values []float64) ([]float64, error) {
		return plan.apply(values), nil
	})
}

// loessPlan caches neighbourhoods and weights; they depend only on the grid.
type loessPlan struct {
	wl      []float64
	windows []loessWindow
}

type loessWindow struct {
	idx []int
	w   []float64
	u   []float64 // (x - x0) / radius
}

func newLoessPlan(wl []float64, span float64) loessPlan {
	n := len(wl)
	q := int(math.Ceil(span * float64(n)))
	q = max(q, minNeighbours)
	q = min(q, n)
	plan := loessPlan{wl: wl, windows: make([]loessWindow, n)}
	order := make([]int, n)
	for i, x0 := range wl {
		for j := range order {
			order[j] = j
		}
		sort.SliceStable(order, func(a, b int) bool {
			return math.Abs(wl[order[a]]-x0) < math.Abs(wl[order[b]]-x0)
		})
		idx := append([]int(nil), order[:q]...)
		radius := 0.0
		for _, j := range idx {
			radius = math.Max(radius, math.Abs(wl[j]-x0))
		}
		win := loessWindow{idx: idx, w: make([]float64, q), u: make([]float64, q)}
		for k, j := range idx {
			if radius == 0 {
				win.w[k] = 1
				continue
			}
			r := math.Abs(wl[j]-x0) / radius
			c := 1 - r*r*r
			win.w[k] = c * c * c
			win.u[k] = (wl[j] - x0) / radius
		}
		plan.windows[i] = win
	}
	return plan
}

func (p loessPlan) apply(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, win := range p.windows {
		out[i] = localQuadratic(win, values)
	}
	return out
}

// localQuadratic solves the weighted normal equations for y ≈ b0 + b1 u + b2 u²
// and returns b0, the fitted value at the window centre. It falls back to
// the weighted mean when the system is singular.
func localQuadratic(win loessWindow, values []float64) float64 {
	var s [5]float64 // Σw u^k, k = 0..4
	var t [3]float64 // Σw u^k y, k = 0..2
	for k, j := range win.idx {
		w, u, y := win.w[k], win.u[k], values[j]
		pow := w
		for e := 0; e < 5; e++ {
			s[e] += pow
			if e < 3 {
				t[e] += pow * y
			}
			pow *= u
		}
	}
	if s[0] == 0 {
		return values[win.idx[0]]
	}
	a := mat.NewSymDense(3, []float64{
		s[0], s[1], s[2],
		s[1], s[2], s[3],
		s[2], s[3], s[4],
	})
	var chol mat.Cholesky
	if ok := chol.Factorize(a); ok && chol.Cond() < 1e12 {
		var beta mat.VecDense
		if err := chol.SolveVecTo(&beta, mat.NewVecDense(3, t[:])); err == nil {
			return beta.AtVec(0)
		}
	}
	return t[0] / s[0]
}
