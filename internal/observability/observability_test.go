package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONTracerWritesOneLinePerSpan(t *testing.T) {
	var buf bytes.Buffer
	tr := NewJSONTracer(&buf)
	step := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time {
		step = step.Add(250 * time.Millisecond)
		return step
	}
	ctx := WithAttributes(context.Background(), map[string]string{"run": "r1"})
	ctx = WithAttributes(ctx, map[string]string{"group": "host"})

	_, span := tr.Start(ctx, "distance")
	span.End(nil)
	span.End(errors.New("ignored"))
	_, span = tr.Start(ctx, "projection")
	span.End(errors.New("collinear"))

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "success", entries[0].Status)
	assert.InDelta(t, 250, entries[0].DurationMS, 1e-9)
	assert.Equal(t, map[string]string{"run": "r1", "group": "host"}, entries[0].Attributes)
	assert.Equal(t, "error", entries[1].Status)
	assert.Equal(t, "collinear", entries[1].Error)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var decoded TraceEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &decoded))
	assert.Equal(t, "projection", decoded.Operation)
}

func TestPrometheusRecorder(t *testing.T) {
	r := NewPrometheusRecorder()
	ctx := context.Background()
	r.Observe(ctx, "distance", true, 20*time.Millisecond)
	r.Observe(ctx, "distance", false, time.Millisecond)
	r.Observe(ctx, "", true, time.Second)
	r.SetSamples("host", 12)

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "," + lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				got[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				got[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				got[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	assert.Equal(t, map[string]float64{
		"eggjnd_stage_results_total,distance,success": 1,
		"eggjnd_stage_results_total,distance,error":   1,
		"eggjnd_group_samples,host":                   12,
		"eggjnd_stage_duration_seconds,distance":      2,
	}, got)

	path := filepath.Join(t.TempDir(), "eggjnd.prom")
	require.NoError(t, r.WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "eggjnd_stage_results_total")
}

func TestNopImplementations(t *testing.T) {
	NopRecorder{}.Observe(context.Background(), "x", true, 0)
	ctx, span := NopTracer{}.Start(context.Background(), "x")
	assert.NotNil(t, ctx)
	span.End(nil)
}
