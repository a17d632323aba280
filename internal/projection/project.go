// Package projection embeds a JND matrix into a centred, rotated 3D
// perceptual space with a separate luminance coordinate.
package projection

import (
	"fmt"
	"math"
	"slices"

	"eggjnd/pkg/domain"

	"gonum.org/v1/gonum/mat"
)

const dims = 3

// Project places every sample (and every reference stimulus) of m in 3D so
// that Euclidean distances reproduce the chromatic JND distances. The
// configuration decides the origin and the orientation of the axes.
func Project(m *domain.JNDMatrix, cfg domain.ProjectionConfig) (domain.Projection, error) {
	if err := cfg.Validate(len(m.Channels)); err != nil {
		return domain.Projection{}, err
	}
	n := len(m.SampleIDs)
	if n < 3 {
		return domain.Projection{}, degenerate(m.SampleIDs, "need at least 3 samples to fix the axes, got %d", n)
	}
	tol := cfg.Tol()
	ids := m.StimulusIDs()

	d, err := distanceMatrix(ids, m.Distance)
	if err != nil {
		return domain.Projection{}, err
	}
	if err := checkMetric(d, ids[:n], cfg.MetricTol(), tol); err != nil {
		return domain.Projection{}, err
	}
	x, err := classicalMDS(d, dims)
	if err != nil {
		return domain.Projection{}, degenerate(m.SampleIDs, "%v", err)
	}
	stress := stress1(x, d)
	if stress > tol {
		x = refineStress(x, d)
		stress = stress1(x, d)
	}
	pts := make([]domain.Vec3, len(ids))
	for i := range pts {
		pts[i] = domain.Vec3{x.At(i, 0), x.At(i, 1), x.At(i, 2)}
	}
	if err := checkSpread(pts[:n], m.SampleIDs, tol); err != nil {
		return domain.Projection{}, err
	}

	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	rot := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	if cfg.Rotate {
		if rot, err = axisRotation(m, cfg, pts, index, tol); err != nil {
			return domain.Projection{}, err
		}
	}

	var origin, shift domain.Vec3
	centreIdx := -1
	if cfg.Center {
		origin = mean(pts[:n])
		if cfg.CenterMode == domain.CenterCustom {
			if cfg.CenterID != "" {
				i, ok := index[cfg.CenterID]
				if !ok {
					return domain.Projection{}, domain.ConfigError{Stage: domain.StageProjection, Field: "center_id",
						Reason: fmt.Sprintf("unknown stimulus %q", cfg.CenterID)}
				}
				origin, centreIdx = pts[i], i
			} else {
				shift = cfg.CenterPoint
			}
		}
	}

	lum, err := luminance(m, ids, cfg, centreIdx)
	if err != nil {
		return domain.Projection{}, err
	}

	out := domain.Projection{Group: m.Group, Stress: stress}
	for i, id := range ids {
		p := apply(rot, pts[i].Sub(origin)).Sub(shift)
		if i < n {
			out.Points = append(out.Points, domain.XYZPoint{SampleID: id, X: p[0], Y: p[1], Z: p[2], Lum: lum[i]})
			continue
		}
		ref := m.References[i-n]
		out.References = append(out.References, domain.AxisPoint{ID: ref.ID, Channel: ref.Channel, X: p[0], Y: p[1], Z: p[2]})
	}
	return out, nil
}

func degenerate(ids []string, format string, args ...any) error {
	return domain.DegenerateInputError{Stage: domain.StageProjection, SampleIDs: slices.Clone(ids), Reason: fmt.Sprintf(format, args...)}
}

func distanceMatrix(ids []string, dist func(a, b string) (float64, bool)) (*mat.SymDense, error) {
	d := mat.NewSymDense(len(ids), nil)
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			v, ok := dist(ids[i], ids[j])
			if !ok {
				return nil, domain.ValidationError{Stage: domain.StageProjection, SampleIDs: []string{ids[i], ids[j]},
					Reason: "matrix has no distance for this pair"}
			}
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, degenerate([]string{ids[i], ids[j]}, "distance %g is not a valid metric value", v)
			}
			d.SetSym(i, j, v)
		}
	}
	return d, nil
}

// checkMetric rejects triangle-inequality violations among the samples,
// which are the first len(ids) rows of d. A pair may exceed the detour
// through a third sample by the relative slack rel, plus tol times the
// largest distance. Reference stimuli are left to the stress embedding.
func checkMetric(d *mat.SymDense, ids []string, rel, tol float64) error {
	n := len(ids)
	maxD := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			maxD = math.Max(maxD, d.At(i, j))
		}
	}
	slack := tol * maxD
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := 0; k < n; k++ {
				if k == i || k == j {
					continue
				}
				detour := d.At(i, k) + d.At(k, j)
				if d.At(i, j) > detour*(1+rel)+slack {
					return degenerate([]string{ids[i], ids[j], ids[k]},
						"triangle inequality violated: d(%s,%s)=%g > %g", ids[i], ids[j], d.At(i, j), detour)
				}
			}
		}
	}
	return nil
}

// checkSpread rejects sample sets that do not span at least a plane.
func checkSpread(pts []domain.Vec3, ids []string, tol float64) error {
	c := mean(pts)
	a := mat.NewDense(len(pts), 3, nil)
	for i, p := range pts {
		q := p.Sub(c)
		a.SetRow(i, q[:])
	}
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDNone); !ok {
		return degenerate(ids, "singular value decomposition failed")
	}
	sv := svd.Values(nil)
	if sv[0] == 0 || sv[1] <= tol*sv[0] {
		return degenerate(ids, "samples are collinear in perceptual space")
	}
	return nil
}

// axisRotation aligns the direction from the achromatic reference to the
// ref1 receptor with axis1, and the ref2 receptor into the axis1/axis2
// plane. The handedness is fixed so the first remaining receptor points to
// the positive side of axis1×axis2.
func axisRotation(m *domain.JNDMatrix, cfg domain.ProjectionConfig, pts []domain.Vec3, index map[string]int, tol float64) (*mat.Dense, error) {
	grey, ok := index[domain.AchromaticRefID]
	if !ok {
		return nil, degenerate(m.SampleIDs, "matrix has no reference stimuli; cannot rotate")
	}
	dir := func(ch int) (domain.Vec3, error) {
		i, ok := index[domain.RefID(m.Channels[ch])]
		if !ok {
			return domain.Vec3{}, degenerate(m.SampleIDs, "no reference stimulus for channel %s", m.Channels[ch])
		}
		return pts[i].Sub(pts[grey]), nil
	}
	v1, err := dir(cfg.Ref1)
	if err != nil {
		return nil, err
	}
	v2, err := dir(cfg.Ref2)
	if err != nil {
		return nil, err
	}
	src, err := orthonormal(v1, v2, tol)
	if err != nil {
		return nil, degenerate(m.SampleIDs, "reference axes %s and %s: %v", m.Channels[cfg.Ref1], m.Channels[cfg.Ref2], err)
	}
	dst, err := orthonormal(cfg.Axis1, cfg.Axis2, 1e-12)
	if err != nil {
		return nil, domain.ConfigError{Stage: domain.StageProjection, Field: "axis2", Reason: err.Error()}
	}
	for ch := range m.Channels {
		if ch == cfg.Ref1 || ch == cfg.Ref2 {
			continue
		}
		v3, err := dir(ch)
		if err != nil {
			return nil, err
		}
		if v3.Dot(src[2]) < 0 {
			src[2] = src[2].Scale(-1)
		}
		break
	}
	return rotation(src, dst), nil
}

// luminance embeds the achromatic distances on a line. The sign follows the
// signed achromatic difference of the most distant pair; the origin follows
// the chromatic centring.
func luminance(m *domain.JNDMatrix, ids []string, cfg domain.ProjectionConfig, centreIdx int) ([]float64, error) {
	out := make([]float64, len(ids))
	if !m.Achromatic {
		return out, nil
	}
	dl, err := distanceMatrix(ids, m.AchromaticDistance)
	if err != nil {
		return nil, err
	}
	x, err := classicalMDS(dl, 1)
	if err != nil {
		return nil, degenerate(m.SampleIDs, "luminance: %v", err)
	}
	for i := range out {
		out[i] = x.At(i, 0)
	}

	best, bi, bj := 0.0, -1, -1
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if v := dl.At(i, j); v > best {
				best, bi, bj = v, i, j
			}
		}
	}
	if bi >= 0 {
		p, _ := m.Pair(ids[bi], ids[bj])
		if (out[bi]-out[bj])*p.DiffL < 0 {
			for i := range out {
				out[i] = -out[i]
			}
		}
	}

	if cfg.Center {
		var c float64
		if centreIdx >= 0 {
			c = out[centreIdx]
		} else {
			for _, v := range out[:len(m.SampleIDs)] {
				c += v
			}
			c /= float64(len(m.SampleIDs))
		}
		for i := range out {
			out[i] -= c
		}
	}
	return out, nil
}

func mean(pts []domain.Vec3) domain.Vec3 {
	var c domain.Vec3
	for _, p := range pts {
		c = domain.Vec3{c[0] + p[0], c[1] + p[1], c[2] + p[2]}
	}
	return c.Scale(1 / float64(len(pts)))
}
