package conceptset

import (
	"errors"
	"testing"
)

// =========== ParseCodesetIDs Tests ===========

func TestParseCodesetIDs(t *testing.T) {
	tests := []struct {
		raw  string
		want []int64
	}{
		{"", []int64{}},
		{"   ", []int64{}},
		{"100", []int64{100}},
		{"100|200", []int64{100, 200}},
		{" 100 | 200 ", []int64{100, 200}},
		{"200|100|200", []int64{200, 100, 200}},
		{"-7", []int64{-7}},
	}
	for _, tt := range tests {
		got, err := ParseCodesetIDs(tt.raw)
		if err != nil {
			t.Errorf("ParseCodesetIDs(%q): unexpected error %v", tt.raw, err)
			continue
		}
		if !equalIDs(got, tt.want) {
			t.Errorf("ParseCodesetIDs(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseCodesetIDs_Malformed(t *testing.T) {
	for _, raw := range []string{"abc", "100|abc", "100||200", "1.5", "100,200", "|"} {
		ids, err := ParseCodesetIDs(raw)
		if !errors.Is(err, ErrMalformedIdentifier) {
			t.Errorf("ParseCodesetIDs(%q): expected ErrMalformedIdentifier, got %v", raw, err)
		}
		if ids != nil {
			t.Errorf("ParseCodesetIDs(%q): expected no partial result, got %v", raw, ids)
		}
	}
}

// =========== ComputeMembership Tests ===========

func TestComputeMembership_Scenario(t *testing.T) {
	m := ComputeMembership(newTestIndex(), []int64{100, 200})

	if got := m.Universe(); !equalIDs(got, []int64{1, 2, 3}) {
		t.Fatalf("expected universe [1 2 3], got %v", got)
	}
	want := map[int64][]int64{1: {100}, 2: {100, 200}, 3: {200}}
	for id, sets := range want {
		c, ok := m.Concept(id)
		if !ok {
			t.Fatalf("concept %d missing", id)
		}
		if !equalIDs(c.ConceptSets, sets) {
			t.Errorf("concept %d: expected sets %v, got %v", id, sets, c.ConceptSets)
		}
	}
}

func TestComputeMembership_FirstSeenLabelWins(t *testing.T) {
	m := ComputeMembership(newTestIndex(), []int64{100, 200})
	c, _ := m.Concept(2)
	if c.ConceptName != "Type 2 diabetes" {
		t.Errorf("expected label from codeset 100, got %q", c.ConceptName)
	}

	m = ComputeMembership(newTestIndex(), []int64{200, 100})
	c, _ = m.Concept(2)
	if c.ConceptName != "Type II diabetes" {
		t.Errorf("expected label from codeset 200, got %q", c.ConceptName)
	}
	if !equalIDs(c.ConceptSets, []int64{200, 100}) {
		t.Errorf("expected request order [200 100], got %v", c.ConceptSets)
	}
}

func TestComputeMembership_UnknownIDsDropped(t *testing.T) {
	m := ComputeMembership(newTestIndex(), []int64{999, 100})
	if len(m.Codesets()) != 1 {
		t.Fatalf("expected 1 resolved codeset, got %d", len(m.Codesets()))
	}
	if _, ok := m.Codeset(999); ok {
		t.Error("unknown codeset should not resolve")
	}
	if !equalIDs(m.Requested(), []int64{999, 100}) {
		t.Errorf("expected requested ids to be kept, got %v", m.Requested())
	}
}

func TestComputeMembership_DuplicateRequestIDs(t *testing.T) {
	m := ComputeMembership(newTestIndex(), []int64{100, 100, 200, 100})
	if !equalIDs(m.Requested(), []int64{100, 200}) {
		t.Errorf("expected [100 200], got %v", m.Requested())
	}
	c, _ := m.Concept(1)
	if !equalIDs(c.ConceptSets, []int64{100}) {
		t.Errorf("expected concept 1 in [100] once, got %v", c.ConceptSets)
	}
}

func TestComputeMembership_CodesetWithoutMembers(t *testing.T) {
	m := ComputeMembership(newTestIndex(), []int64{300})
	cs, ok := m.Codeset(300)
	if !ok {
		t.Fatal("expected codeset 300 to resolve from its code_sets row")
	}
	if len(cs.ConceptIDs()) != 0 || len(m.Concepts()) != 0 {
		t.Error("expected empty membership")
	}
}

func TestComputeMembership_CodesetWithoutLabelRow(t *testing.T) {
	m := ComputeMembership(newTestIndex(), []int64{500})
	cs, ok := m.Codeset(500)
	if !ok {
		t.Fatal("expected codeset 500 to resolve from its member rows")
	}
	if cs.ConceptSetName != "Orphan set" {
		t.Errorf("expected name from member row, got %q", cs.ConceptSetName)
	}
}

func TestComputeMembership_Empty(t *testing.T) {
	m := ComputeMembership(newTestIndex(), nil)
	if len(m.Codesets()) != 0 || len(m.Concepts()) != 0 || len(m.Universe()) != 0 {
		t.Error("expected empty membership")
	}
}

func TestComputeMembership_EveryConceptHasASet(t *testing.T) {
	idx := newTestIndex()
	m := ComputeMembership(idx, []int64{100, 200, 300, 500, 600, 999})
	union := make(map[int64]bool)
	for _, cs := range m.Codesets() {
		for _, id := range cs.ConceptIDs() {
			union[id] = true
		}
	}
	if len(union) != len(m.Concepts()) {
		t.Errorf("universe size %d != union size %d", len(m.Concepts()), len(union))
	}
	for _, c := range m.Concepts() {
		if len(c.ConceptSets) == 0 {
			t.Errorf("concept %d has no concept sets", c.ConceptID)
		}
		if !union[c.ConceptID] {
			t.Errorf("concept %d not in any requested codeset", c.ConceptID)
		}
		for _, csID := range c.ConceptSets {
			cs, ok := m.Codeset(csID)
			if !ok || !cs.Contains(c.ConceptID) {
				t.Errorf("concept %d lists codeset %d which does not contain it", c.ConceptID, csID)
			}
		}
	}
}
