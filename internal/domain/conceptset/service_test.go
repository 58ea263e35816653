package conceptset

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestService_NoSnapshot(t *testing.T) {
	svc := NewService(NewStore(zerolog.Nop(), nil), Limits{}, zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.OverlapSimple(ctx, []int64{100}); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
	if _, err := svc.CsetVersions(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
	if _, err := svc.Stats(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestService_Idempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ids := []int64{100, 200}

	calls := map[string]func() (interface{}, error){
		"with-concepts": func() (interface{}, error) { return svc.ConceptSetsWithConcepts(ctx, ids) },
		"by-concept":    func() (interface{}, error) { return svc.ConceptSetsByConcept(ctx, ids) },
		"simple":        func() (interface{}, error) { return svc.OverlapSimple(ctx, ids) },
		"simple-hier":   func() (interface{}, error) { return svc.OverlapSimpleHierarchy(ctx, ids) },
		"cr-hierarchy":  func() (interface{}, error) { return svc.CRHierarchy(ctx, ids, FormatXO) },
		"again":         func() (interface{}, error) { return svc.HierarchyAgain(ctx, ids) },
		"versions":      func() (interface{}, error) { return svc.CsetVersions(ctx) },
	}
	for name, call := range calls {
		a, err := call()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		b, _ := call()
		ja, _ := json.Marshal(a)
		jb, _ := json.Marshal(b)
		if string(ja) != string(jb) {
			t.Errorf("%s: output differs between calls:\n%s\n%s", name, ja, jb)
		}
	}
}

func TestService_CRHierarchyFormats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rows, err := svc.CRHierarchy(ctx, []int64{100, 200}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := rows[0].Get(ColumnLevel); !ok {
		t.Error("empty format should render the default format")
	}

	if _, err := svc.CRHierarchy(ctx, []int64{100}, "csv"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestService_EdgeLimit(t *testing.T) {
	store := NewStore(zerolog.Nop(), newTestIndex())
	svc := NewService(store, Limits{MaxFilteredEdges: 1}, zerolog.Nop())

	_, err := svc.HierarchyAgain(context.Background(), []int64{100, 200})
	if !errors.Is(err, ErrEdgeLimitExceeded) {
		t.Errorf("expected ErrEdgeLimitExceeded, got %v", err)
	}
	// The flat overlap table does not touch the edge tables.
	if _, err := svc.OverlapSimple(context.Background(), []int64{100, 200}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestService_CRHierarchyCycle(t *testing.T) {
	tables := newTestTables()
	tables.Relationships = append(tables.Relationships,
		RelationshipEdge{ConceptID1: 3, ConceptID2: 2, RelationshipID: RelationshipSubsumes})
	svc := NewService(NewStore(zerolog.Nop(), NewDatasetIndex(tables)), Limits{}, zerolog.Nop())

	_, err := svc.CRHierarchy(context.Background(), []int64{100, 200}, FormatDefault)
	if !IsCyclicRelationErr(err) {
		t.Errorf("expected cyclic relation error, got %v", err)
	}
}

func TestService_CanceledContext(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.ConceptSetsByConcept(ctx, []int64{100}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestService_SnapshotSwapVisible(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tables := newTestTables()
	tables.Members = append(tables.Members, MembershipRow{CodesetID: 100, ConceptID: 3, ConceptName: "Type 2 diabetes with complication", ConceptSetName: "Diabetes"})
	svc.Store().Swap(NewDatasetIndex(tables))

	out, err := svc.ConceptSetsByConcept(ctx, []int64{100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Concepts) != 3 {
		t.Errorf("expected the swapped snapshot, got %d concepts", len(out.Concepts))
	}
}
