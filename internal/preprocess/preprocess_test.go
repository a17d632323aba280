package preprocess

import (
	"errors"
	"math"
	"testing"

	"eggjnd/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSet(t *testing.T, wl []float64, series map[string]func(x float64) float64) domain.ReflectanceSet {
	t.Helper()
	var spectra []domain.ReflectanceSpectrum
	for _, id := range []string{"a", "b", "c"} {
		f, ok := series[id]
		if !ok {
			continue
		}
		vals := make([]float64, len(wl))
		for i, x := range wl {
			vals[i] = f(x)
		}
		spectra = append(spectra, domain.ReflectanceSpectrum{ID: id, Wavelengths: wl, Values: vals})
	}
	set, err := domain.NewReflectanceSet(domain.StageIngest, wl, spectra)
	require.NoError(t, err)
	return set
}

func TestSmoothReproducesQuadratics(t *testing.T) {
	wl := Grid(300, 700, 5)
	quad := func(x float64) float64 { return 0.001*(x-500)*(x-500) + 0.1*x - 20 }
	set := buildSet(t, wl, map[string]func(float64) float64{"a": quad})

	out, err := Smooth(set, 0.25)
	require.NoError(t, err)
	got, _ := out.Get("a")
	require.Len(t, got.Values, len(wl))
	for i, x := range wl {
		assert.InDelta(t, quad(x), got.Values[i], 1e-6, "at %g nm", x)
	}
}

func TestSmoothDampsNoise(t *testing.T) {
	wl := Grid(300, 700, 1)
	noisy := func(x float64) float64 {
		if int(x)%2 == 0 {
			return 11
		}
		return 9
	}
	set := buildSet(t, wl, map[string]func(float64) float64{"a": noisy})
	out, err := Smooth(set, 0.1)
	require.NoError(t, err)
	got, _ := out.Get("a")
	for i := 25; i < len(wl)-25; i++ {
		assert.InDelta(t, 10, got.Values[i], 0.05)
	}
}

func TestCleanClampsNegativesAndKeepsShape(t *testing.T) {
	wl := Grid(300, 700, 2)
	set := buildSet(t, wl, map[string]func(float64) float64{
		"a": func(x float64) float64 { return 10 * math.Sin(x/20) },
		"b": func(x float64) float64 { return x/100 - 5 },
		"c": func(x float64) float64 { return 20 },
	})
	out, err := Clean(set, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, set.Len(), out.Len())
	assert.Equal(t, set.IDs(), out.IDs())
	assert.Equal(t, wl, out.Wavelengths())

	smoothed, err := Smooth(set, DefaultSpan)
	require.NoError(t, err)
	for _, id := range out.IDs() {
		cleaned, _ := out.Get(id)
		raw, _ := smoothed.Get(id)
		for i, v := range cleaned.Values {
			if raw.Values[i] < 0 {
				assert.Equal(t, 0.0, v, "%s at %g nm", id, wl[i])
			} else {
				assert.Equal(t, raw.Values[i], v)
			}
		}
	}
}

func TestClampNegativeLeavesInputUntouched(t *testing.T) {
	wl := []float64{400, 500, 600}
	set := buildSet(t, wl, map[string]func(float64) float64{"a": func(x float64) float64 { return 500 - x }})
	out, err := ClampNegative(set)
	require.NoError(t, err)
	got, _ := out.Get("a")
	assert.Equal(t, []float64{100, 0, 0}, got.Values)
	orig, _ := set.Get("a")
	assert.Equal(t, []float64{100, 0, -100}, orig.Values)
}

func TestSmoothRejectsBadSpan(t *testing.T) {
	set := buildSet(t, []float64{400, 500}, map[string]func(float64) float64{"a": func(float64) float64 { return 1 }})
	for _, span := range []float64{0, -0.1, 1.5, math.NaN()} {
		_, err := Smooth(set, span)
		assert.True(t, errors.Is(err, domain.ErrConfig), "span %g: %v", span, err)
	}
}

func TestResample(t *testing.T) {
	wl := []float64{300, 310, 330, 400}
	set := buildSet(t, wl, map[string]func(float64) float64{"a": func(x float64) float64 { return 2 * x }})
	out, err := Resample(set, 300, 400, 5)
	require.NoError(t, err)
	grid := out.Wavelengths()
	require.Len(t, grid, 21)
	got, _ := out.Get("a")
	for i, x := range grid {
		assert.InDelta(t, 2*x, got.Values[i], 1e-9)
	}

	_, err = Resample(set, 250, 400, 5)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestCleanWithResampling(t *testing.T) {
	wl := Grid(290, 710, 0.5)
	set := buildSet(t, wl, map[string]func(float64) float64{"a": func(x float64) float64 { return x / 10 }})
	opts := DefaultOptions()
	opts.MinWL, opts.MaxWL, opts.Step = 300, 700, 1
	out, err := Clean(set, opts)
	require.NoError(t, err)
	assert.Len(t, out.Wavelengths(), 401)
	got, _ := out.Get("a")
	assert.InDelta(t, 50, got.Values[200], 1e-6)

	opts.MaxWL = 200
	_, err = Clean(set, opts)
	assert.True(t, errors.Is(err, domain.ErrConfig))
}
