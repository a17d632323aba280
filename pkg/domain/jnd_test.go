package domain

import "testing"

func TestJNDMatrixLookupIsSymmetric(t *testing.T) {
	m := JNDMatrix{
		SampleIDs:  []string{"a", "b", "c"},
		Achromatic: true,
		Pairs: []JNDPair{
			{A: "a", B: "b", DS: 1.5, DL: 0.5, Diffs: []float64{0.1, -0.2}, DiffL: 0.05},
			{A: "a", B: "c", DS: 2},
			{A: "b", B: "c", DS: 3},
		},
		References: []Reference{{ID: AchromaticRefID}, {ID: RefID("l"), Channel: "l"}},
		RefPairs:   []JNDPair{{A: "a", B: AchromaticRefID, DS: 4}},
	}
	ab, ok := m.Distance("a", "b")
	ba, ok2 := m.Distance("b", "a")
	if !ok || !ok2 || ab != ba || ab != 1.5 {
		t.Fatalf("distance a-b %v/%v b-a %v/%v", ab, ok, ba, ok2)
	}
	if _, ok := m.Distance("a", "a"); ok {
		t.Fatalf("self distance must be excluded")
	}
	p, _ := m.Pair("b", "a")
	if p.A != "b" || p.Diffs[0] != -0.1 || p.DiffL != -0.05 {
		t.Fatalf("reversed pair = %+v", p)
	}
	if d, ok := m.AchromaticDistance("b", "a"); !ok || d != 0.5 {
		t.Fatalf("achromatic = %v %v", d, ok)
	}
	if d, ok := m.Distance(AchromaticRefID, "a"); !ok || d != 4 {
		t.Fatalf("ref pair = %v %v", d, ok)
	}
	ids := m.StimulusIDs()
	if len(ids) != 5 || ids[3] != AchromaticRefID || ids[4] != "ref:l" {
		t.Fatalf("stimulus ids = %v", ids)
	}
}
