package domain

import (
	"fmt"
	"math"
	"slices"
)

// ReflectanceSpectrum is one measured sample: reflectance per wavelength.
// Wavelengths are in nm and strictly increasing.
type ReflectanceSpectrum struct {
	ID          string    `json:"id"`
	Group       string    `json:"group,omitempty"`
	Wavelengths []float64 `json:"wavelengths"`
	Values      []float64 `json:"values"`
}

// Clone returns a deep copy.
func (s ReflectanceSpectrum) Clone() ReflectanceSpectrum {
	return ReflectanceSpectrum{
		ID:          s.ID,
		Group:       s.Group,
		Wavelengths: slices.Clone(s.Wavelengths),
		Values:      slices.Clone(s.Values),
	}
}

// Validate checks the spectrum is well formed on its own.
func (s ReflectanceSpectrum) Validate(stage Stage) error {
	if s.ID == "" {
		return ValidationError{Stage: stage, Reason: "spectrum without sample id"}
	}
	if len(s.Wavelengths) != len(s.Values) {
		return ValidationError{Stage: stage, SampleIDs: []string{s.ID},
			Reason: fmt.Sprintf("%d wavelengths but %d values", len(s.Wavelengths), len(s.Values))}
	}
	if err := CheckGrid(s.Wavelengths); err != nil {
		return ValidationError{Stage: stage, SampleIDs: []string{s.ID}, Reason: err.Error()}
	}
	for i, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ValidationError{Stage: stage, SampleIDs: []string{s.ID},
				Reason: fmt.Sprintf("non-finite reflectance at %g nm", s.Wavelengths[i])}
		}
	}
	return nil
}

// CheckGrid reports whether wavelengths are finite and strictly increasing.
func CheckGrid(wl []float64) error {
	if len(wl) == 0 {
		return fmt.Errorf("empty wavelength grid")
	}
	for i, w := range wl {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("non-finite wavelength at index %d", i)
		}
		if i > 0 && w <= wl[i-1] {
			return fmt.Errorf("wavelengths not strictly increasing at %g nm", w)
		}
	}
	return nil
}

// ReflectanceSet holds spectra sharing one wavelength grid, in input order.
// A set is never modified after construction; transformations build a new one.
type ReflectanceSet struct {
	wavelengths []float64
	spectra     []ReflectanceSpectrum
	index       map[string]int
}

// NewReflectanceSet validates and copies the spectra into a set. Every
// spectrum must use exactly the reference grid wl.
func NewReflectanceSet(stage Stage, wl []float64, spectra []ReflectanceSpectrum) (ReflectanceSet, error) {
	if err := CheckGrid(wl); err != nil {
		return ReflectanceSet{}, ValidationError{Stage: stage, Reason: "reference grid: " + err.Error()}
	}
	set := ReflectanceSet{
		wavelengths: slices.Clone(wl),
		spectra:     make([]ReflectanceSpectrum, 0, len(spectra)),
		index:       make(map[string]int, len(spectra)),
	}
	for _, s := range spectra {
		if err := s.Validate(stage); err != nil {
			return ReflectanceSet{}, err
		}
		if len(s.Wavelengths) != len(wl) {
			return ReflectanceSet{}, ValidationError{Stage: stage, SampleIDs: []string{s.ID},
				Reason: fmt.Sprintf("grid length %d does not match reference grid length %d", len(s.Wavelengths), len(wl))}
		}
		for i := range wl {
			if s.Wavelengths[i] != wl[i] {
				return ReflectanceSet{}, ValidationError{Stage: stage, SampleIDs: []string{s.ID},
					Reason: fmt.Sprintf("wavelength %g nm differs from reference %g nm", s.Wavelengths[i], wl[i])}
			}
		}
		if _, dup := set.index[s.ID]; dup {
			return ReflectanceSet{}, ValidationError{Stage: stage, SampleIDs: []string{s.ID}, Reason: "duplicate sample id"}
		}
		set.index[s.ID] = len(set.spectra)
		set.spectra = append(set.spectra, s.Clone())
	}
	return set, nil
}

// Wavelengths returns a copy of the shared grid.
func (s ReflectanceSet) Wavelengths() []float64 { return slices.Clone(s.wavelengths) }

// Len returns the number of spectra.
func (s ReflectanceSet) Len() int { return len(s.spectra) }

// IDs returns sample ids in input order.
func (s ReflectanceSet) IDs() []string {
	out := make([]string, len(s.spectra))
	for i, sp := range s.spectra {
		out[i] = sp.ID
	}
	return out
}

// Spectra returns copies of all spectra in input order.
func (s ReflectanceSet) Spectra() []ReflectanceSpectrum {
	out := make([]ReflectanceSpectrum, len(s.spectra))
	for i, sp := range s.spectra {
		out[i] = sp.Clone()
	}
	return out
}

// Get returns a copy of the spectrum with the given id.
func (s ReflectanceSet) Get(id string) (ReflectanceSpectrum, bool) {
	i, ok := s.index[id]
	if !ok {
		return ReflectanceSpectrum{}, false
	}
	return s.spectra[i].Clone(), true
}

// Groups lists distinct group labels in first-seen order.
func (s ReflectanceSet) Groups() []string {
	var out []string
	for _, sp := range s.spectra {
		if !slices.Contains(out, sp.Group) {
			out = append(out, sp.Group)
		}
	}
	return out
}

// Subset returns the spectra labelled with group.
func (s ReflectanceSet) Subset(group string) ReflectanceSet {
	var picked []ReflectanceSpectrum
	for _, sp := range s.spectra {
		if sp.Group == group {
			picked = append(picked, sp)
		}
	}
	out, _ := NewReflectanceSet("", s.wavelengths, picked) // already validated
	return out
}

// Map builds a new set by applying fn to every spectrum's values. fn receives
// a private copy and returns the replacement values.
func (s ReflectanceSet) Map(stage Stage, fn func(id string, values []float64) ([]float64, error)) (ReflectanceSet, error) {
	out := make([]ReflectanceSpectrum, len(s.spectra))
	for i, sp := range s.spectra {
		vals, err := fn(sp.ID, slices.Clone(sp.Values))
		if err != nil {
			return ReflectanceSet{}, err
		}
		out[i] = ReflectanceSpectrum{ID: sp.ID, Group: sp.Group, Wavelengths: slices.Clone(s.wavelengths), Values: vals}
	}
	return NewReflectanceSet(stage, s.wavelengths, out)
}

// Curve is a named auxiliary spectrum: an illuminant, a background, an
// ocular transmission filter or a receptor sensitivity.
type Curve struct {
	Name        string    `json:"name"`
	Wavelengths []float64 `json:"wavelengths"`
	Values      []float64 `json:"values"`
}
