// Package spectra reads and writes reflectance tables and auxiliary curves
// as CSV: one row per wavelength, one column per sample.
package spectra

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"eggjnd/internal/vismodel"
	"eggjnd/pkg/domain"
)

// WavelengthHeader is the name written for the first column.
const WavelengthHeader = "wl"

type table struct {
	headers []string
	wl      []float64
	cols    [][]float64
}

func readTable(r io.Reader) (table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return table{}, domain.ValidationError{Stage: domain.StageIngest, Reason: "empty table"}
		}
		return table{}, fmt.Errorf("read csv header: %w", err)
	}
	if len(headers) < 2 {
		return table{}, domain.ValidationError{Stage: domain.StageIngest, Reason: "need a wavelength column and at least one data column"}
	}
	t := table{headers: make([]string, len(headers)-1), cols: make([][]float64, len(headers)-1)}
	for i, h := range headers[1:] {
		t.headers[i] = strings.TrimSpace(h)
		if t.headers[i] == "" {
			return table{}, domain.ValidationError{Stage: domain.StageIngest, Reason: fmt.Sprintf("column %d has no name", i+2)}
		}
	}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return table{}, domain.ValidationError{Stage: domain.StageIngest, Reason: fmt.Sprintf("line %d: %v", line, err)}
		}
		wl, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return table{}, domain.ValidationError{Stage: domain.StageIngest, Reason: fmt.Sprintf("line %d: bad wavelength %q", line, record[0])}
		}
		t.wl = append(t.wl, wl)
		for i, field := range record[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return table{}, domain.ValidationError{Stage: domain.StageIngest, SampleIDs: []string{t.headers[i]},
					Reason: fmt.Sprintf("line %d: bad value %q", line, field)}
			}
			t.cols[i] = append(t.cols[i], v)
		}
	}
	if len(t.wl) == 0 {
		return table{}, domain.ValidationError{Stage: domain.StageIngest, Reason: "table has no rows"}
	}
	return t, nil
}

// GroupOf returns the first tag contained (case-insensitively) in the
// column name, or "" when none matches.
func GroupOf(name string, tags []string) string {
	lower := strings.ToLower(name)
	for _, tag := range tags {
		if tag != "" && strings.Contains(lower, strings.ToLower(tag)) {
			return tag
		}
	}
	return ""
}

// ReadWide parses a reflectance table. Sample groups are assigned from tags
// by substring match on the column name.
func ReadWide(r io.Reader, tags []string) (domain.ReflectanceSet, error) {
	t, err := readTable(r)
	if err != nil {
		return domain.ReflectanceSet{}, err
	}
	spectra := make([]domain.ReflectanceSpectrum, len(t.headers))
	for i, id := range t.headers {
		spectra[i] = domain.ReflectanceSpectrum{ID: id, Group: GroupOf(id, tags), Wavelengths: t.wl, Values: t.cols[i]}
	}
	return domain.NewReflectanceSet(domain.StageIngest, t.wl, spectra)
}

// ReadWideFile opens path and parses it with ReadWide.
func ReadWideFile(path string, tags []string) (domain.ReflectanceSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.ReflectanceSet{}, fmt.Errorf("open spectra: %w", err)
	}
	defer f.Close()
	return ReadWide(f, tags)
}

// WriteWide writes set in the layout ReadWide accepts.
func WriteWide(w io.Writer, set domain.ReflectanceSet) error {
	cw := csv.NewWriter(w)
	spectra := set.Spectra()
	header := make([]string, 0, len(spectra)+1)
	header = append(header, WavelengthHeader)
	for _, s := range spectra {
		header = append(header, s.ID)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, wl := range set.Wavelengths() {
		row[0] = formatFloat(wl)
		for j, s := range spectra {
			row[j+1] = formatFloat(s.Values[i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCurves parses a curve table; every data column becomes one curve named
// after its header.
func ReadCurves(r io.Reader) ([]domain.Curve, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckGrid(t.wl); err != nil {
		return nil, domain.ValidationError{Stage: domain.StageIngest, Reason: err.Error()}
	}
	out := make([]domain.Curve, len(t.headers))
	for i, name := range t.headers {
		out[i] = domain.Curve{Name: name, Wavelengths: t.wl, Values: t.cols[i]}
	}
	return out, nil
}

// LoadLibrary reads every named curve file. Single-column files are
// illuminants, backgrounds or filters; multi-column files are visual systems.
func LoadLibrary(paths map[string]string) (vismodel.Library, error) {
	lib := make(vismodel.Library, len(paths))
	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, err := os.Open(paths[name])
		if err != nil {
			return nil, fmt.Errorf("open curve %s: %w", name, err)
		}
		curves, err := ReadCurves(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("curve %s: %w", name, err)
		}
		if len(curves) == 1 {
			curves[0].Name = name
		}
		lib[name] = curves
	}
	return lib, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
