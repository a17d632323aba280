package projection

import (
	"errors"
	"math"
	"testing"

	"eggjnd/internal/rnl"
	"eggjnd/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// uniformMatrix builds a matrix where every pair of samples is dist apart,
// with overrides per pair.
func uniformMatrix(ids []string, dist float64, override map[[2]string]float64) *domain.JNDMatrix {
	m := &domain.JNDMatrix{Group: "g", Channels: []string{"v", "s", "m", "l"}, SampleIDs: ids}
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			d := dist
			if v, ok := override[[2]string{ids[i], ids[j]}]; ok {
				d = v
			}
			m.Pairs = append(m.Pairs, domain.JNDPair{A: ids[i], B: ids[j], DS: d})
		}
	}
	return m
}

func noRotation() domain.ProjectionConfig {
	cfg := domain.DefaultProjectionConfig()
	cfg.Rotate = false
	return cfg
}

func dist(a, b domain.XYZPoint) float64 { return a.Vec().Sub(b.Vec()).Norm() }

func TestRegularTetrahedronRoundTrip(t *testing.T) {
	m := uniformMatrix([]string{"a", "b", "c", "d"}, 5, nil)
	p, err := Project(m, noRotation())
	require.NoError(t, err)
	require.Len(t, p.Points, 4)
	for i := range p.Points {
		for j := i + 1; j < len(p.Points); j++ {
			assert.InEpsilon(t, 5, dist(p.Points[i], p.Points[j]), 1e-6)
		}
	}
	assert.Less(t, p.Stress, 1e-6)
	assert.Empty(t, p.References)
}

func TestMeanCentring(t *testing.T) {
	m := uniformMatrix([]string{"a", "b", "c", "d"}, 2, map[[2]string]float64{{"a", "b"}: 3})
	p, err := Project(m, noRotation())
	require.NoError(t, err)
	var sum domain.Vec3
	for _, pt := range p.Points {
		sum = domain.Vec3{sum[0] + pt.X, sum[1] + pt.Y, sum[2] + pt.Z}
	}
	for _, v := range sum {
		assert.InDelta(t, 0, v, 1e-9)
	}

	cfg := noRotation()
	cfg.CenterMode = domain.CenterCustom
	cfg.CenterPoint = domain.Vec3{1, 2, 3}
	shifted, err := Project(m, cfg)
	require.NoError(t, err)
	for i, pt := range shifted.Points {
		want, got := p.Points[i].Vec().Sub(cfg.CenterPoint), pt.Vec()
		assert.InDeltaSlice(t, want[:], got[:], 1e-9)
	}

	cfg.CenterPoint = domain.Vec3{}
	cfg.CenterID = "nope"
	_, err = Project(m, cfg)
	assert.True(t, errors.Is(err, domain.ErrConfig))
}

func eggCatches() []domain.QuantumCatch {
	return []domain.QuantumCatch{
		{SampleID: "bg1", Channels: []float64{0.20, 0.35, 0.55, 0.70}, Achromatic: 0.60},
		{SampleID: "bg2", Channels: []float64{0.25, 0.30, 0.50, 0.75}, Achromatic: 0.52},
		{SampleID: "bg3", Channels: []float64{0.18, 0.40, 0.45, 0.65}, Achromatic: 0.70},
		{SampleID: "spot1", Channels: []float64{0.10, 0.15, 0.25, 0.40}, Achromatic: 0.30},
		{SampleID: "spot2", Channels: []float64{0.12, 0.14, 0.30, 0.35}, Achromatic: 0.28},
	}
}

func TestRotationAlignsReferenceAxes(t *testing.T) {
	m, err := rnl.Distances("eggs", []string{"v", "s", "m", "l"}, eggCatches(), domain.DefaultNoiseModelConfig())
	require.NoError(t, err)
	cfg := domain.DefaultProjectionConfig()
	cfg.CenterMode = domain.CenterCustom
	cfg.CenterID = domain.AchromaticRefID
	p, err := Project(&m, cfg)
	require.NoError(t, err)
	require.Len(t, p.References, 5)

	refs := map[string]domain.Vec3{}
	for _, r := range p.References {
		refs[r.ID] = domain.Vec3{r.X, r.Y, r.Z}
	}
	grey := refs[domain.AchromaticRefID]
	assert.InDeltaSlice(t, []float64{0, 0, 0}, grey[:], 1e-9)

	l := refs[domain.RefID("l")]
	axis1 := cfg.Axis1.Scale(1 / cfg.Axis1.Norm())
	assert.InDelta(t, 0, l.Cross(axis1).Norm(), 1e-9*l.Norm())
	assert.Greater(t, l.Dot(axis1), 0.0)

	normal := cfg.Axis1.Cross(cfg.Axis2)
	v := refs[domain.RefID("v")]
	assert.InDelta(t, 0, v.Dot(normal), 1e-9)
	assert.Greater(t, v.Dot(cfg.Axis2), 0.0)
	s := refs[domain.RefID("s")]
	assert.GreaterOrEqual(t, s.Dot(normal), 0.0)

	for i, a := range p.Points {
		for _, b := range p.Points[i+1:] {
			want, _ := m.Distance(a.SampleID, b.SampleID)
			assert.InEpsilon(t, want, dist(a, b), 1e-6, "%s-%s", a.SampleID, b.SampleID)
			wantL, _ := m.AchromaticDistance(a.SampleID, b.SampleID)
			assert.InDelta(t, wantL, math.Abs(a.Lum-b.Lum), 1e-6*wantL+1e-9)
		}
	}
	byID := map[string]domain.XYZPoint{}
	for _, pt := range p.Points {
		byID[pt.SampleID] = pt
	}
	// brighter sample sits higher on the luminance axis
	assert.Greater(t, byID["bg3"].Lum, byID["spot2"].Lum)
}

func TestRotationWithMeanCentring(t *testing.T) {
	m, err := rnl.Distances("eggs", []string{"v", "s", "m", "l"}, eggCatches(), domain.DefaultNoiseModelConfig())
	require.NoError(t, err)
	p, err := Project(&m, domain.DefaultProjectionConfig())
	require.NoError(t, err)
	var sum domain.Vec3
	lum := 0.0
	for _, pt := range p.Points {
		sum = domain.Vec3{sum[0] + pt.X, sum[1] + pt.Y, sum[2] + pt.Z}
		lum += pt.Lum
	}
	assert.InDelta(t, 0, sum.Norm(), 1e-9)
	assert.InDelta(t, 0, lum, 1e-9)

	var grey, l domain.Vec3
	for _, r := range p.References {
		switch r.ID {
		case domain.AchromaticRefID:
			grey = domain.Vec3{r.X, r.Y, r.Z}
		case domain.RefID("l"):
			l = domain.Vec3{r.X, r.Y, r.Z}
		}
	}
	dir := l.Sub(grey)
	assert.InDelta(t, 0, dir.Cross(domain.Vec3{1, 1, 0}).Norm(), 1e-9*dir.Norm())
}

func TestDegenerateInputs(t *testing.T) {
	var derr domain.DegenerateInputError

	_, err := Project(uniformMatrix([]string{"a", "b"}, 1, nil), noRotation())
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.StageProjection, derr.Stage)
	assert.Equal(t, []string{"a", "b"}, derr.SampleIDs)

	violating := uniformMatrix([]string{"a", "b", "c", "d"}, 1, map[[2]string]float64{{"a", "c"}: 10})
	_, err = Project(violating, noRotation())
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Reason, "triangle")
	assert.Contains(t, derr.SampleIDs, "a")
	assert.Contains(t, derr.SampleIDs, "c")

	line := uniformMatrix([]string{"a", "b", "c"}, 1, map[[2]string]float64{{"a", "c"}: 2})
	_, err = Project(line, noRotation())
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Reason, "collinear")

	negative := uniformMatrix([]string{"a", "b", "c"}, 1, map[[2]string]float64{{"b", "c"}: -1})
	_, err = Project(negative, noRotation())
	assert.True(t, errors.Is(err, domain.ErrDegenerate))

	// rotation needs reference stimuli
	_, err = Project(uniformMatrix([]string{"a", "b", "c", "d"}, 1, nil), domain.DefaultProjectionConfig())
	assert.True(t, errors.Is(err, domain.ErrDegenerate))
}

func TestSlightlyNonMetricSamplesAreEmbedded(t *testing.T) {
	// a-c exceeds a-b + b-c by 1%, as photon-noise distances do
	m := uniformMatrix([]string{"a", "b", "c", "d"}, 1, map[[2]string]float64{{"a", "c"}: 2.02})
	p, err := Project(m, noRotation())
	require.NoError(t, err)
	require.Len(t, p.Points, 4)
	assert.Greater(t, p.Stress, 0.0)

	strict := noRotation()
	strict.MetricTolerance = 1e-3
	_, err = Project(m, strict)
	var derr domain.DegenerateInputError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Reason, "triangle")
}

func TestReferencesDoNotTriggerMetricCheck(t *testing.T) {
	m := uniformMatrix([]string{"a", "b", "c", "d"}, 1, nil)
	m.References = []domain.Reference{{ID: domain.AchromaticRefID}}
	for _, id := range m.SampleIDs {
		d := 0.6
		if id == "a" {
			d = 3 // far beyond the detour through any sample
		}
		m.RefPairs = append(m.RefPairs, domain.JNDPair{A: id, B: domain.AchromaticRefID, DS: d})
	}
	p, err := Project(m, noRotation())
	require.NoError(t, err)
	assert.Len(t, p.References, 1)
}

func TestNonEmbeddableMatrixIsApproximated(t *testing.T) {
	// five mutually equidistant points need four dimensions
	m := uniformMatrix([]string{"a", "b", "c", "d", "e"}, 1, nil)
	p, err := Project(m, noRotation())
	require.NoError(t, err)
	require.Len(t, p.Points, 5)
	assert.Greater(t, p.Stress, 1e-3)
	assert.Less(t, p.Stress, 0.3)

	classical, err := classicalMDS(mustDistances(t, m), dims)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.Stress, stress1(classical, mustDistances(t, m))+1e-12)
}

func mustDistances(t *testing.T, m *domain.JNDMatrix) *mat.SymDense {
	t.Helper()
	d, err := distanceMatrix(m.StimulusIDs(), m.Distance)
	require.NoError(t, err)
	return d
}
