package domain

import "slices"

// QuantumCatch is the receptor response to one sample. Channels follow the
// visual system's channel order; Achromatic is carried separately.
type QuantumCatch struct {
	SampleID   string    `json:"sample_id"`
	Channels   []float64 `json:"channels"`
	Achromatic float64   `json:"achromatic,omitempty"`
}

// JNDPair is the perceptual distance between two stimuli.
type JNDPair struct {
	A string `json:"a"`
	B string `json:"b"`
	// DS is the chromatic distance in JND units.
	DS float64 `json:"dS"`
	// DL is the achromatic distance in JND units (zero when not computed).
	DL float64 `json:"dL"`
	// Diffs are signed log-catch differences ln(qA/qB) per chromatic channel.
	Diffs []float64 `json:"diffs"`
	// DiffL is the signed achromatic log-catch difference.
	DiffL float64 `json:"diffL"`
}

// Reference is a synthetic stimulus marking a receptor axis in perceptual
// space. Channel is empty for the achromatic (grey) reference.
type Reference struct {
	ID      string `json:"id"`
	Channel string `json:"channel,omitempty"`
}

// AchromaticRefID identifies the grey reference stimulus.
const AchromaticRefID = "ref:achromatic"

// RefID returns the reference stimulus id for a receptor channel.
func RefID(channel string) string { return "ref:" + channel }

// JNDMatrix holds the pairwise distances of one group. It is the canonical,
// lossless handoff between the distance calculator and the projector.
type JNDMatrix struct {
	Group      string           `json:"group"`
	Channels   []string         `json:"channels"`
	SampleIDs  []string         `json:"sample_ids"`
	Noise      NoiseModelConfig `json:"noise"`
	Achromatic bool             `json:"achromatic"`
	// Pairs covers every unordered pair of samples exactly once.
	Pairs []JNDPair `json:"pairs"`
	// References and RefPairs place receptor axes: RefPairs holds every pair
	// with at least one reference stimulus.
	References []Reference `json:"references,omitempty"`
	RefPairs   []JNDPair   `json:"ref_pairs,omitempty"`

	// built on first lookup; pairs must not change afterwards
	lookup map[[2]string]int
	all    []JNDPair
}

func (m *JNDMatrix) index() map[[2]string]int {
	if m.lookup != nil {
		return m.lookup
	}
	m.all = make([]JNDPair, 0, len(m.Pairs)+len(m.RefPairs))
	m.all = append(m.all, m.Pairs...)
	m.all = append(m.all, m.RefPairs...)
	m.lookup = make(map[[2]string]int, 2*len(m.all))
	for i, p := range m.all {
		m.lookup[[2]string{p.A, p.B}] = i
		m.lookup[[2]string{p.B, p.A}] = i
	}
	return m.lookup
}

// Pair returns the pair for a and b in either order. The pair of a stimulus
// with itself is never stored.
func (m *JNDMatrix) Pair(a, b string) (JNDPair, bool) {
	if a == b {
		return JNDPair{}, false
	}
	i, ok := m.index()[[2]string{a, b}]
	if !ok {
		return JNDPair{}, false
	}
	p := m.all[i]
	if p.A != a {
		p = p.Reversed()
	}
	return p, true
}

// Distance returns the chromatic distance between a and b.
func (m *JNDMatrix) Distance(a, b string) (float64, bool) {
	p, ok := m.Pair(a, b)
	return p.DS, ok
}

// AchromaticDistance returns the achromatic distance between a and b.
func (m *JNDMatrix) AchromaticDistance(a, b string) (float64, bool) {
	if !m.Achromatic {
		return 0, false
	}
	p, ok := m.Pair(a, b)
	return p.DL, ok
}

// StimulusIDs lists samples followed by reference stimuli.
func (m *JNDMatrix) StimulusIDs() []string {
	out := slices.Clone(m.SampleIDs)
	for _, r := range m.References {
		out = append(out, r.ID)
	}
	return out
}

// Reversed swaps A and B, negating the signed differences.
func (p JNDPair) Reversed() JNDPair {
	diffs := make([]float64, len(p.Diffs))
	for i, d := range p.Diffs {
		diffs[i] = -d
	}
	return JNDPair{A: p.B, B: p.A, DS: p.DS, DL: p.DL, Diffs: diffs, DiffL: -p.DiffL}
}

// XYZPoint is a stimulus placed in perceptual space, in JND units.
type XYZPoint struct {
	SampleID string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Lum      float64 `json:"lum"`
}

// Vec returns the chromatic coordinates.
func (p XYZPoint) Vec() Vec3 { return Vec3{p.X, p.Y, p.Z} }

// AxisPoint is a reference stimulus in perceptual space; the renderer draws
// an arrow from the achromatic point to it.
type AxisPoint struct {
	ID      string  `json:"id"`
	Channel string  `json:"channel,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
}

// Projection is the final artifact of one group.
type Projection struct {
	Group      string      `json:"group"`
	Points     []XYZPoint  `json:"points"`
	References []AxisPoint `json:"references,omitempty"`
	// Stress is Kruskal's stress-1 of the embedding; zero for exact embeddings.
	Stress float64 `json:"stress"`
}
