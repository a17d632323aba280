package projection

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// classicalMDS embeds the distance matrix d into dim dimensions (Torgerson
// scaling). Eigen-directions with non-positive eigenvalues contribute zero
// coordinates.
func classicalMDS(d *mat.SymDense, dim int) (*mat.Dense, error) {
	n := d.SymmetricDim()
	b := doubleCentre(d)
	var es mat.EigenSym
	if ok := es.Factorize(b, true); !ok {
		return nil, errors.New("eigendecomposition did not converge")
	}
	vals := es.Values(nil) // ascending
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	x := mat.NewDense(n, dim, nil)
	for c := 0; c < dim && c < n; c++ {
		col := n - 1 - c
		if vals[col] <= 0 {
			continue
		}
		s := math.Sqrt(vals[col])
		for i := 0; i < n; i++ {
			x.Set(i, c, vecs.At(i, col)*s)
		}
	}
	return x, nil
}

// doubleCentre returns B = -1/2 J D² J.
func doubleCentre(d *mat.SymDense) *mat.SymDense {
	n := d.SymmetricDim()
	row := make([]float64, n)
	grand := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := d.At(i, j)
			row[i] += v * v
		}
		grand += row[i]
		row[i] /= float64(n)
	}
	grand /= float64(n * n)
	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := d.At(i, j)
			b.SetSym(i, j, -0.5*(v*v-row[i]-row[j]+grand))
		}
	}
	return b
}

// stress1 is Kruskal's stress-1 of the embedding x against d.
func stress1(x *mat.Dense, d *mat.SymDense) float64 {
	n := d.SymmetricDim()
	num, den := 0.0, 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := rowDist(x, i, j)
			num += (r - d.At(i, j)) * (r - d.At(i, j))
			den += d.At(i, j) * d.At(i, j)
		}
	}
	if den == 0 {
		return 0
	}
	return math.Sqrt(num / den)
}

func rowDist(x *mat.Dense, i, j int) float64 {
	s := 0.0
	_, c := x.Dims()
	for k := 0; k < c; k++ {
		v := x.At(i, k) - x.At(j, k)
		s += v * v
	}
	return math.Sqrt(s)
}

// refineStress minimises raw stress Σ(‖xi-xj‖ - dij)² from the starting
// configuration x with L-BFGS and returns the better of start and result.
func refineStress(x *mat.Dense, d *mat.SymDense) *mat.Dense {
	n, dim := x.Dims()
	f := func(p []float64) float64 {
		s := 0.0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				r := flatDist(p, dim, i, j)
				s += (r - d.At(i, j)) * (r - d.At(i, j))
			}
		}
		return s
	}
	grad := func(g, p []float64) {
		for k := range g {
			g[k] = 0
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				r := flatDist(p, dim, i, j)
				if r == 0 {
					continue
				}
				c := 2 * (r - d.At(i, j)) / r
				for k := 0; k < dim; k++ {
					delta := c * (p[i*dim+k] - p[j*dim+k])
					g[i*dim+k] += delta
					g[j*dim+k] -= delta
				}
			}
		}
	}
	start := make([]float64, n*dim)
	for i := 0; i < n; i++ {
		for k := 0; k < dim; k++ {
			start[i*dim+k] = x.At(i, k)
		}
	}
	problem := optimize.Problem{Func: f, Grad: grad}
	settings := &optimize.Settings{MajorIterations: 2000, GradientThreshold: 1e-12}
	// Minimize reports hitting the iteration limit as an error; the partial
	// result is still usable.
	res, _ := optimize.Minimize(problem, start, settings, &optimize.LBFGS{})
	if res == nil || res.F >= f(start) {
		return x
	}
	return mat.NewDense(n, dim, res.X)
}

func flatDist(p []float64, dim, i, j int) float64 {
	s := 0.0
	for k := 0; k < dim; k++ {
		v := p[i*dim+k] - p[j*dim+k]
		s += v * v
	}
	return math.Sqrt(s)
}
