// Package export renders pipeline results as the artifacts handed to
// downstream tools: flat CSV tables and the canonical JSON JND matrix.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"eggjnd/internal/swatch"
	"eggjnd/pkg/domain"
)

// Artifact names used inside a group's output directory or blob prefix.
const (
	ArtifactCleaned    = "cleaned.csv"
	ArtifactCatches    = "catches.csv"
	ArtifactJNDTable   = "jnd.csv"
	ArtifactJNDMatrix  = "jnd.json"
	ArtifactXYZ        = "xyz.csv"
	ArtifactAxes       = "axes.csv"
	ArtifactColors     = "colors.csv"
	ArtifactProjection = "projection.json"
)

// MatrixFormat tags the JSON envelope of a serialized JND matrix.
const MatrixFormat = "eggjnd.jnd/v1"

func f(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func writeAll(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteCatches writes id, one column per chromatic channel and, when
// achromatic is set, a lum column.
func WriteCatches(w io.Writer, channels []string, catches []domain.QuantumCatch, achromatic bool) error {
	header := append([]string{"id"}, channels...)
	if achromatic {
		header = append(header, "lum")
	}
	rows := [][]string{header}
	for _, c := range catches {
		row := []string{c.SampleID}
		for _, q := range c.Channels {
			row = append(row, f(q))
		}
		if achromatic {
			row = append(row, f(c.Achromatic))
		}
		rows = append(rows, row)
	}
	return writeAll(w, rows)
}

// WriteJNDTable writes one row per sample pair: a, b, dS, dL and the signed
// log-catch difference of every chromatic channel.
func WriteJNDTable(w io.Writer, m *domain.JNDMatrix) error {
	header := []string{"a", "b", "dS", "dL"}
	for _, ch := range m.Channels {
		header = append(header, "d_"+ch)
	}
	if m.Achromatic {
		header = append(header, "d_lum")
	}
	rows := [][]string{header}
	for _, p := range m.Pairs {
		row := []string{p.A, p.B, f(p.DS), f(p.DL)}
		for _, d := range p.Diffs {
			row = append(row, f(d))
		}
		if m.Achromatic {
			row = append(row, f(p.DiffL))
		}
		rows = append(rows, row)
	}
	return writeAll(w, rows)
}

// WriteXYZ writes id,x,y,z,lum for every sample.
func WriteXYZ(w io.Writer, p domain.Projection) error {
	rows := [][]string{{"id", "x", "y", "z", "lum"}}
	for _, pt := range p.Points {
		rows = append(rows, []string{pt.SampleID, f(pt.X), f(pt.Y), f(pt.Z), f(pt.Lum)})
	}
	return writeAll(w, rows)
}

// WriteAxes writes the reference stimuli the renderer draws as arrows from
// the achromatic point.
func WriteAxes(w io.Writer, p domain.Projection) error {
	rows := [][]string{{"id", "channel", "x", "y", "z"}}
	for _, r := range p.References {
		rows = append(rows, []string{r.ID, r.Channel, f(r.X), f(r.Y), f(r.Z)})
	}
	return writeAll(w, rows)
}

// WriteColors writes id,hex for every swatch.
func WriteColors(w io.Writer, swatches []swatch.Swatch) error {
	rows := [][]string{{"id", "hex"}}
	for _, s := range swatches {
		rows = append(rows, []string{s.SampleID, s.Hex})
	}
	return writeAll(w, rows)
}

type matrixEnvelope struct {
	Format string            `json:"format"`
	Matrix *domain.JNDMatrix `json:"matrix"`
}

// EncodeMatrix writes the lossless JSON form of m.
func EncodeMatrix(w io.Writer, m *domain.JNDMatrix) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(matrixEnvelope{Format: MatrixFormat, Matrix: m}); err != nil {
		return fmt.Errorf("encode jnd matrix: %w", err)
	}
	return nil
}

// DecodeMatrix reads a matrix written by EncodeMatrix.
func DecodeMatrix(r io.Reader) (*domain.JNDMatrix, error) {
	var env matrixEnvelope
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, domain.ValidationError{Stage: domain.StageProjection, Reason: fmt.Sprintf("decode jnd matrix: %v", err)}
	}
	if env.Format != MatrixFormat {
		return nil, domain.ValidationError{Stage: domain.StageProjection, Reason: fmt.Sprintf("unsupported matrix format %q", env.Format)}
	}
	if env.Matrix == nil {
		return nil, domain.ValidationError{Stage: domain.StageProjection, Reason: "matrix missing"}
	}
	return env.Matrix, nil
}

// EncodeProjection writes the projection as JSON.
func EncodeProjection(w io.Writer, p domain.Projection) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
