package spectra

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"eggjnd/pkg/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wide = `wl,Egg1_Background,egg1_spot,Egg2_BACKGROUND,odd
# measured with an integrating sphere
300,10.5,4,11,1
301,10.75,4.25,11.5,2
302,11,-0.5,12,3
`

func TestReadWideAssignsGroups(t *testing.T) {
	set, err := ReadWide(strings.NewReader(wide), []string{"background", "spot"})
	require.NoError(t, err)
	assert.Equal(t, []float64{300, 301, 302}, set.Wavelengths())
	assert.Equal(t, []string{"Egg1_Background", "egg1_spot", "Egg2_BACKGROUND", "odd"}, set.IDs())

	bg := set.Subset("background")
	assert.Equal(t, []string{"Egg1_Background", "Egg2_BACKGROUND"}, bg.IDs())
	spot, _ := set.Get("egg1_spot")
	assert.Equal(t, "spot", spot.Group)
	assert.Equal(t, []float64{4, 4.25, -0.5}, spot.Values)
	odd, _ := set.Get("odd")
	assert.Empty(t, odd.Group)
}

func TestWriteWideRoundTrip(t *testing.T) {
	set, err := ReadWide(strings.NewReader(wide), nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteWide(&buf, set))
	again, err := ReadWide(&buf, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(set.Spectra(), again.Spectra()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadWideRejectsMalformedTables(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no data column": "wl\n300\n",
		"bad value":      "wl,a\n300,x\n",
		"descending":     "wl,a\n301,1\n300,1\n",
		"ragged":         "wl,a,b\n300,1\n",
		"duplicate id":   "wl,a,a\n300,1,2\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadWide(strings.NewReader(in), nil)
			assert.True(t, errors.Is(err, domain.ErrValidation), "%v", err)
		})
	}
}

func TestLoadLibrary(t *testing.T) {
	dir := t.TempDir()
	d65 := filepath.Join(dir, "d65.csv")
	sys := filepath.Join(dir, "tit.csv")
	require.NoError(t, os.WriteFile(d65, []byte("wl,irradiance\n300,0.5\n700,1\n"), 0o600))
	require.NoError(t, os.WriteFile(sys, []byte("wl,u,s,m,l,dc\n300,1,0,0,0,0\n700,0,0,1,1,1\n"), 0o600))

	lib, err := LoadLibrary(map[string]string{"d65": d65, "bluetit": sys})
	require.NoError(t, err)
	require.Len(t, lib["d65"], 1)
	assert.Equal(t, "d65", lib["d65"][0].Name)
	require.Len(t, lib["bluetit"], 5)
	assert.Equal(t, "dc", lib["bluetit"][4].Name)

	_, err = LoadLibrary(map[string]string{"missing": filepath.Join(dir, "nope.csv")})
	assert.Error(t, err)
}
