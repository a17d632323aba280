package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"eggjnd/internal/blob"
	"eggjnd/internal/export"
	"eggjnd/internal/observability"
	"eggjnd/internal/preprocess"
	"eggjnd/internal/swatch"
	"eggjnd/pkg/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// eggSet builds bell-shaped reflectance spectra on 300-700 nm, one per
// (group, peak) entry.
func eggSet(t *testing.T, groups map[string][]float64) domain.ReflectanceSet {
	t.Helper()
	wl := preprocess.Grid(300, 700, 5)
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)
	var spectra []domain.ReflectanceSpectrum
	for _, g := range names {
		for i, peak := range groups[g] {
			vals := make([]float64, len(wl))
			for k, w := range wl {
				vals[k] = 0.05 + 0.6*math.Exp(-0.5*math.Pow((w-peak)/(40+5*float64(i)), 2))
			}
			spectra = append(spectra, domain.ReflectanceSpectrum{
				ID: fmt.Sprintf("%s_%d", g, i), Group: g, Wavelengths: wl, Values: vals,
			})
		}
	}
	set, err := domain.NewReflectanceSet(domain.StageIngest, wl, spectra)
	require.NoError(t, err)
	return set
}

func defaultSettings() Settings {
	return Settings{
		Preprocess: preprocess.DefaultOptions(),
		Visual:     domain.DefaultVisualModelConfig(),
		Noise:      domain.DefaultNoiseModelConfig(),
		Projection: domain.DefaultProjectionConfig(),
		Swatch:     swatch.Options{},
		Digest:     "cafe",
	}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%02d", n)
	}
}

func TestRunWritesEveryArtifactAndRecord(t *testing.T) {
	ctx := context.Background()
	tracer := observability.NewJSONTracer(nil)
	metrics := observability.NewPrometheusRecorder()
	r, err := NewRunner(defaultSettings(), WithTracer(tracer), WithMetricsRecorder(metrics), WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)

	set := eggSet(t, map[string][]float64{"host": {420, 480, 540, 600, 650}})
	res, err := r.Run(ctx, set)
	require.NoError(t, err)
	require.Equal(t, "id-01", res.RunID)
	require.Len(t, res.Groups, 1)
	gr := res.Groups[0]
	require.NoError(t, gr.Err)
	require.NotNil(t, gr.Projection)
	assert.Len(t, gr.Projection.Points, 5)
	assert.Len(t, gr.Swatches, 5)
	assert.Less(t, gr.Projection.Stress, 1e-6, "four channels embed exactly in 3D")

	want := []string{
		export.ArtifactCleaned, export.ArtifactCatches, export.ArtifactJNDTable, export.ArtifactJNDMatrix,
		export.ArtifactXYZ, export.ArtifactAxes, export.ArtifactColors, export.ArtifactProjection,
	}
	assert.Len(t, gr.Record.Artifacts(), len(want))
	for _, name := range want {
		key := blob.ArtifactKey(res.RunID, "host", name)
		_, err := r.Blobs().Head(ctx, key)
		assert.NoError(t, err, key)
	}

	rec, err := r.Runs().Get(ctx, gr.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, rec.Status)
	assert.Equal(t, "cafe", rec.ConfigDigest)
	assert.Equal(t, 5, rec.Samples)
	require.NotNil(t, rec.CompletedAt)
	stages := make([]domain.Stage, len(rec.Stages))
	for i, s := range rec.Stages {
		stages[i] = s.Stage
		assert.True(t, s.Success)
	}
	assert.Equal(t, []domain.Stage{domain.StagePreprocess, domain.StageVisual, domain.StageDistance, domain.StageProjection}, stages)

	entries := tracer.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, "host", entries[0].Attributes["group"])
	assert.Equal(t, res.RunID, entries[0].Attributes["run"])
}

func TestProjectionMatchesStoredMatrix(t *testing.T) {
	ctx := context.Background()
	r, err := NewRunner(defaultSettings())
	require.NoError(t, err)
	res, err := r.Run(ctx, eggSet(t, map[string][]float64{"a": {430, 500, 560, 620}}))
	require.NoError(t, err)

	data, err := blob.ReadArtifact(ctx, r.Blobs(), blob.ArtifactKey(res.RunID, "a", export.ArtifactJNDMatrix))
	require.NoError(t, err)
	m, err := export.DecodeMatrix(strings.NewReader(string(data)))
	require.NoError(t, err)
	p := res.Groups[0].Projection
	for i, a := range p.Points {
		for _, b := range p.Points[i+1:] {
			d, ok := m.Distance(a.SampleID, b.SampleID)
			require.True(t, ok)
			assert.InDelta(t, d, a.Vec().Sub(b.Vec()).Norm(), 1e-6*math.Max(1, d))
		}
	}
}

func TestFailedStageKeepsEarlierArtifacts(t *testing.T) {
	ctx := context.Background()
	r, err := NewRunner(defaultSettings(), WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)
	set := eggSet(t, map[string][]float64{
		"pair":   {450, 600},
		"clutch": {420, 480, 540, 600},
	})
	res, err := r.Run(ctx, set, "pair", "clutch")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDegenerate), "got %v", err)

	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "pair", failed[0].Group)
	assert.NoError(t, res.Groups[1].Err, "other groups still complete")

	keys := failed[0].Record.Artifacts()
	assert.Len(t, keys, 4, "preprocess, vismodel and distance artifacts remain")
	for _, k := range keys {
		_, err := r.Blobs().Head(ctx, k)
		assert.NoError(t, err)
	}
	_, err = r.Blobs().Head(ctx, blob.ArtifactKey(res.RunID, "pair", export.ArtifactXYZ))
	assert.ErrorIs(t, err, blob.ErrNotFound)

	rec, err := r.Runs().Get(ctx, failed[0].Record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "degenerate")
	last := rec.Stages[len(rec.Stages)-1]
	assert.Equal(t, domain.StageProjection, last.Stage)
	assert.False(t, last.Success)
	assert.Empty(t, last.Artifacts)
}

func TestParallelMatchesSequential(t *testing.T) {
	groups := map[string][]float64{
		"g1": {420, 480, 540, 600},
		"g2": {440, 500, 560, 640},
		"g3": {410, 470, 590, 650, 530},
	}
	run := func(parallel bool) Result {
		s := defaultSettings()
		s.Parallel = parallel
		r, err := NewRunner(s, WithClock(func() time.Time { return time.Unix(0, 0).UTC() }))
		require.NoError(t, err)
		res, err := r.Run(context.Background(), eggSet(t, groups))
		require.NoError(t, err)
		return res
	}
	seq, par := run(false), run(true)
	require.Len(t, par.Groups, 3)
	for i := range seq.Groups {
		assert.Equal(t, seq.Groups[i].Group, par.Groups[i].Group)
		assert.Equal(t, seq.Groups[i].Matrix.Pairs, par.Groups[i].Matrix.Pairs)
		assert.Equal(t, seq.Groups[i].Projection.Points, par.Groups[i].Projection.Points)
	}
}

func TestConfigErrorsStopBeforeDistances(t *testing.T) {
	s := defaultSettings()
	s.Noise.Noise = domain.NoisePhoton
	s.Visual.Relative = true
	r, err := NewRunner(s)
	require.NoError(t, err)
	res, err := r.Run(context.Background(), eggSet(t, map[string][]float64{"g": {420, 500, 580}}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfig))
	rec := res.Groups[0].Record
	assert.Equal(t, []string{blob.ArtifactKey(res.RunID, "g", export.ArtifactCleaned)}, rec.Artifacts())
	assert.Nil(t, res.Groups[0].Matrix)
}

func TestNewRunnerValidates(t *testing.T) {
	s := defaultSettings()
	s.Preprocess.Span = -1
	_, err := NewRunner(s)
	assert.ErrorIs(t, err, domain.ErrConfig)

	r, err := NewRunner(defaultSettings())
	require.NoError(t, err)
	_, err = r.Run(context.Background(), domain.ReflectanceSet{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPhotonNoiseRunCompletes(t *testing.T) {
	ctx := context.Background()
	settings := defaultSettings()
	settings.Noise.Noise = domain.NoisePhoton
	settings.Visual.Relative = false
	r, err := NewRunner(settings)
	require.NoError(t, err)

	set := eggSet(t, map[string][]float64{
		"spot":       {450, 520, 580, 620, 520},
		"background": {480, 500, 550},
	})
	res, err := r.Run(ctx, set)
	require.NoError(t, err)
	require.Len(t, res.Groups, 2)
	for _, gr := range res.Groups {
		require.NoError(t, gr.Err, gr.Group)
		require.NotNil(t, gr.Projection, gr.Group)
		assert.Len(t, gr.Projection.Points, gr.Cleaned.Len())
		assert.NotEmpty(t, gr.Projection.References)
		for _, p := range gr.Projection.Points {
			assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z), p.SampleID)
		}
		rec, err := r.Runs().Get(ctx, gr.Record.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusSucceeded, rec.Status)
	}
}

func TestCancelledRunReportsEveryGroup(t *testing.T) {
	set := eggSet(t, map[string][]float64{
		"clutch": {420, 480, 540, 600},
		"nest":   {430, 500, 560, 640},
	})
	for _, parallel := range []bool{false, true} {
		settings := defaultSettings()
		settings.Parallel = parallel
		r, err := NewRunner(settings)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := r.Run(ctx, set)
		require.ErrorIs(t, err, context.Canceled)
		require.Len(t, res.Groups, 2)
		assert.Len(t, res.Failed(), 2)
		for i, gr := range res.Groups {
			assert.Equal(t, set.Groups()[i], gr.Group)
			assert.ErrorIs(t, gr.Err, context.Canceled)
			assert.Nil(t, gr.Projection)
		}
	}
}

func TestRunGroupsCollectsEveryError(t *testing.T) {
	boom := errors.New("boom")
	for _, parallel := range []bool{false, true} {
		var mu sync.Mutex
		seen := map[string]int{}
		err := RunGroups(context.Background(), []string{"a", "b", "c"}, parallel, func(_ context.Context, i int, g string) error {
			mu.Lock()
			seen[g] = i
			mu.Unlock()
			if g != "b" {
				return fmt.Errorf("%s: %w", g, boom)
			}
			return nil
		})
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "a: boom")
		assert.Contains(t, err.Error(), "c: boom")
		assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2}, seen)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := RunGroups(ctx, []string{"x", "y"}, false, func(context.Context, int, string) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
