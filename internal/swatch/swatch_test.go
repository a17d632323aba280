package swatch

import (
	"testing"

	"eggjnd/internal/preprocess"
	"eggjnd/pkg/domain"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spectrum(id string, f func(float64) float64) domain.ReflectanceSpectrum {
	wl := preprocess.Grid(380, 780, 1)
	vals := make([]float64, len(wl))
	for i, l := range wl {
		vals[i] = f(l)
	}
	return domain.ReflectanceSpectrum{ID: id, Wavelengths: wl, Values: vals}
}

func rgb(t *testing.T, hex string) colorful.Color {
	t.Helper()
	c, err := colorful.Hex(hex)
	require.NoError(t, err)
	return c
}

func TestFlatSpectraAreNeutral(t *testing.T) {
	white, err := FromSpectrum(spectrum("w", func(float64) float64 { return 1 }), Options{})
	require.NoError(t, err)
	c := rgb(t, white.Hex)
	for _, v := range []float64{c.R, c.G, c.B} {
		assert.Greater(t, v, 0.95)
	}
	assert.InDelta(t, 1, white.Y, 1e-9)

	black, err := FromSpectrum(spectrum("k", func(float64) float64 { return 0 }), Options{})
	require.NoError(t, err)
	assert.Equal(t, "#000000", black.Hex)

	pct, err := FromSpectrum(spectrum("p", func(float64) float64 { return 100 }), Options{Percent: true})
	require.NoError(t, err)
	assert.Equal(t, white.Hex, pct.Hex)
}

func TestLongWavelengthSpectrumIsRed(t *testing.T) {
	red, err := FromSpectrum(spectrum("r", func(l float64) float64 {
		if l > 600 {
			return 0.9
		}
		return 0.05
	}), Options{})
	require.NoError(t, err)
	c := rgb(t, red.Hex)
	assert.Greater(t, c.R, c.G)
	assert.Greater(t, c.R, c.B)
}

func TestFromSetKeepsOrder(t *testing.T) {
	a := spectrum("a", func(float64) float64 { return 0.2 })
	b := spectrum("b", func(float64) float64 { return 0.8 })
	set, err := domain.NewReflectanceSet(domain.StageIngest, a.Wavelengths, []domain.ReflectanceSpectrum{a, b})
	require.NoError(t, err)
	out, err := FromSet(set, Options{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].SampleID)
	assert.Less(t, out[0].Y, out[1].Y)
}
