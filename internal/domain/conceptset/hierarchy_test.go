package conceptset

import (
	"errors"
	"reflect"
	"testing"
)

func rel(pairs ...[2]int64) []Edge {
	edges := make([]Edge, len(pairs))
	for i, p := range pairs {
		edges[i] = Edge{Parent: p[0], Child: p[1], Separation: 1}
	}
	return edges
}

// =========== TreeExpansion Tests ===========

func TestTreeExpansion_Chain(t *testing.T) {
	rows, err := TreeExpansion{}.Flatten(rel([2]int64{1, 2}, [2]int64{2, 3}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []HierarchyRow{{0, 1}, {1, 2}, {2, 3}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("got %v, want %v", rows, want)
	}
}

func TestTreeExpansion_SharedDescendantPerPath(t *testing.T) {
	rows, err := TreeExpansion{}.Flatten(rel(
		[2]int64{1, 3}, [2]int64{1, 2}, [2]int64{2, 4}, [2]int64{3, 4},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []HierarchyRow{{0, 1}, {1, 2}, {2, 4}, {1, 3}, {2, 4}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("got %v, want %v", rows, want)
	}
}

func TestTreeExpansion_MultipleRootsAscending(t *testing.T) {
	rows, err := TreeExpansion{}.Flatten(rel([2]int64{9, 10}, [2]int64{5, 6}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []HierarchyRow{{0, 5}, {1, 6}, {0, 9}, {1, 10}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("got %v, want %v", rows, want)
	}
}

func TestTreeExpansion_SelfEdgeIgnored(t *testing.T) {
	rows, err := TreeExpansion{}.Flatten(rel([2]int64{7, 7}, [2]int64{1, 2}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range rows {
		if r.ConceptID == 7 {
			t.Errorf("concept with only a self edge was emitted: %v", rows)
		}
	}
}

func TestTreeExpansion_DuplicateEdgesCollapse(t *testing.T) {
	rows, _ := TreeExpansion{}.Flatten(rel([2]int64{1, 2}, [2]int64{1, 2}))
	if len(rows) != 2 {
		t.Errorf("expected 2 rows, got %v", rows)
	}
}

func TestTreeExpansion_NoRootWithoutOutgoingEdge(t *testing.T) {
	// Leaves are only reached through their parents.
	rows, _ := TreeExpansion{}.Flatten(rel([2]int64{1, 2}))
	for _, r := range rows {
		if r.ConceptID == 2 && r.Level == 0 {
			t.Errorf("leaf emitted as root: %v", rows)
		}
	}
}

func TestTreeExpansion_Cycle(t *testing.T) {
	_, err := TreeExpansion{}.Flatten(rel([2]int64{1, 2}, [2]int64{2, 3}, [2]int64{3, 2}))
	if !IsCyclicRelationErr(err) {
		t.Fatalf("expected cyclic relation error, got %v", err)
	}
	var ce *CyclicRelationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CyclicRelationError, got %T", err)
	}
	if !reflect.DeepEqual(ce.Path, []int64{1, 2, 3, 2}) {
		t.Errorf("unexpected path %v", ce.Path)
	}
	if ce.DepthExceeded {
		t.Error("expected a cycle, not a depth overrun")
	}
}

func TestTreeExpansion_CycleWithoutRoot(t *testing.T) {
	rows, err := TreeExpansion{}.Flatten(rel([2]int64{1, 2}, [2]int64{2, 1}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %v", rows)
	}
}

func TestTreeExpansion_DepthCap(t *testing.T) {
	_, err := TreeExpansion{MaxDepth: 2}.Flatten(rel([2]int64{1, 2}, [2]int64{2, 3}, [2]int64{3, 4}))
	var ce *CyclicRelationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CyclicRelationError, got %v", err)
	}
	if !ce.DepthExceeded || ce.MaxDepth != 2 {
		t.Errorf("expected depth overrun at 2, got %+v", ce)
	}
	if !reflect.DeepEqual(ce.Path, []int64{1, 2, 3, 4}) {
		t.Errorf("unexpected path %v", ce.Path)
	}

	if _, err := (TreeExpansion{MaxDepth: 3}).Flatten(rel([2]int64{1, 2}, [2]int64{2, 3}, [2]int64{3, 4})); err != nil {
		t.Errorf("depth 3 should fit, got %v", err)
	}
}

func TestTreeExpansion_RowLimit(t *testing.T) {
	_, err := TreeExpansion{MaxRows: 4}.Flatten(rel(
		[2]int64{1, 2}, [2]int64{1, 3}, [2]int64{2, 4}, [2]int64{3, 4},
	))
	if !errors.Is(err, ErrRowLimitExceeded) {
		t.Fatalf("expected ErrRowLimitExceeded, got %v", err)
	}
}

// =========== LevelGrouping Tests ===========

func TestLevelGrouping_OnlyDirectDescendants(t *testing.T) {
	edges := []Edge{
		{Parent: 1, Child: 2, Separation: 1},
		{Parent: 1, Child: 3, Separation: 2},
	}
	rows, err := LevelGrouping{}.Flatten(edges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []HierarchyRow{{0, 1}, {1, 2}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("got %v, want %v", rows, want)
	}
	for _, r := range rows {
		if r.ConceptID == 3 {
			t.Error("separation 2 descendant was emitted")
		}
	}
}

func TestLevelGrouping_Group(t *testing.T) {
	edges := []Edge{
		{Parent: 5, Child: 6, Separation: 1},
		{Parent: 1, Child: 3, Separation: 1},
		{Parent: 1, Child: 2, Separation: 1},
		{Parent: 1, Child: 4, Separation: 3},
		{Parent: 1, Child: 1, Separation: 0},
	}
	g := LevelGrouping{}.Group(edges)
	if g.MaxLevel != 3 {
		t.Errorf("expected max level 3, got %d", g.MaxLevel)
	}
	lvl1 := g.Level(1)
	want := []AncestorGroup{
		{Ancestor: 1, Descendants: []int64{3, 2}},
		{Ancestor: 5, Descendants: []int64{6}},
	}
	if !reflect.DeepEqual(lvl1, want) {
		t.Errorf("got %v, want %v", lvl1, want)
	}
	if len(g.Level(0)) != 0 {
		t.Error("separation 0 should be ignored")
	}
	if len(g.Level(3)) != 1 {
		t.Error("expected one group at separation 3")
	}
}

func TestLevelGrouping_Empty(t *testing.T) {
	rows, err := LevelGrouping{}.Flatten(nil)
	if err != nil || len(rows) != 0 {
		t.Errorf("expected no rows, got %v %v", rows, err)
	}
}

func TestHierarchyStrategies(t *testing.T) {
	strategies := []HierarchyStrategy{TreeExpansion{}, LevelGrouping{}}
	names := map[string]bool{}
	for _, s := range strategies {
		names[s.Name()] = true
	}
	if !names["tree-expansion"] || !names["level-grouping"] {
		t.Errorf("unexpected strategy names %v", names)
	}
}
