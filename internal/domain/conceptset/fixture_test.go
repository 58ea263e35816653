package conceptset

import (
	"testing"

	"github.com/rs/zerolog"
)

// Fixture:
//
//	codeset 100 "Diabetes"       = {1, 2}
//	codeset 200 "Diabetes broad" = {2, 3}
//	codeset 300 "Diabetes"       = {} (later version of 100)
//	codeset 500 (no code_sets row) = {4}
//	codeset 600 "Unlabeled"      = {5} (concept 5 has no concept row)
//
//	ancestors:  1 -> 2 (1), 1 -> 3 (2), 2 -> 3 (1), 4 -> 1 (1), plus self rows
//	subsumes:   1 -> 2, 2 -> 3, 4 -> 1, plus a self edge and a non-Subsumes row
func newTestTables() *Tables {
	return &Tables{
		Concepts: []Concept{
			{ConceptID: 1, ConceptName: "Diabetes mellitus", VocabularyID: "SNOMED"},
			{ConceptID: 2, ConceptName: "Type 2 diabetes", VocabularyID: "SNOMED"},
			{ConceptID: 3, ConceptName: "Type 2 diabetes with complication", VocabularyID: "SNOMED"},
			{ConceptID: 4, ConceptName: "Endocrine disorder", VocabularyID: "SNOMED"},
		},
		ConceptSets: []ConceptSet{
			{CodesetID: 100, ConceptSetName: "Diabetes", Version: 1},
			{CodesetID: 200, ConceptSetName: "Diabetes broad", Version: 2},
			{CodesetID: 300, ConceptSetName: "Diabetes", Version: 3},
			{CodesetID: 400, ConceptSetName: "Draft"},
			{CodesetID: 600, ConceptSetName: "Unlabeled"},
		},
		Members: []MembershipRow{
			{CodesetID: 100, ConceptID: 1, ConceptName: "Diabetes mellitus", ConceptSetName: "Diabetes"},
			{CodesetID: 100, ConceptID: 2, ConceptName: "Type 2 diabetes", ConceptSetName: "Diabetes"},
			{CodesetID: 200, ConceptID: 2, ConceptName: "Type II diabetes", ConceptSetName: "Diabetes broad"},
			{CodesetID: 200, ConceptID: 3, ConceptName: "Type 2 diabetes with complication", ConceptSetName: "Diabetes broad"},
			{CodesetID: 500, ConceptID: 4, ConceptName: "Endocrine disorder", ConceptSetName: "Orphan set"},
			{CodesetID: 600, ConceptID: 5, ConceptName: "Mystery concept", ConceptSetName: "Unlabeled"},
		},
		Ancestors: []AncestorEdge{
			{AncestorConceptID: 1, DescendantConceptID: 1, MinLevelsOfSeparation: 0},
			{AncestorConceptID: 1, DescendantConceptID: 2, MinLevelsOfSeparation: 1},
			{AncestorConceptID: 1, DescendantConceptID: 3, MinLevelsOfSeparation: 2},
			{AncestorConceptID: 2, DescendantConceptID: 2, MinLevelsOfSeparation: 0},
			{AncestorConceptID: 2, DescendantConceptID: 3, MinLevelsOfSeparation: 1},
			{AncestorConceptID: 3, DescendantConceptID: 3, MinLevelsOfSeparation: 0},
			{AncestorConceptID: 4, DescendantConceptID: 4, MinLevelsOfSeparation: 0},
			{AncestorConceptID: 4, DescendantConceptID: 1, MinLevelsOfSeparation: 1},
			{AncestorConceptID: 5, DescendantConceptID: 5, MinLevelsOfSeparation: 0},
		},
		Relationships: []RelationshipEdge{
			{ConceptID1: 1, ConceptID2: 2, RelationshipID: RelationshipSubsumes},
			{ConceptID1: 1, ConceptID2: 1, RelationshipID: RelationshipSubsumes},
			{ConceptID1: 1, ConceptID2: 3, RelationshipID: "Maps to"},
			{ConceptID1: 2, ConceptID2: 3, RelationshipID: RelationshipSubsumes},
			{ConceptID1: 4, ConceptID2: 1, RelationshipID: RelationshipSubsumes},
		},
	}
}

func newTestIndex() *DatasetIndex {
	return NewDatasetIndex(newTestTables())
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := NewStore(zerolog.Nop(), newTestIndex())
	return NewService(store, Limits{MaxFilteredEdges: 1000, MaxTraversalDepth: 16, MaxHierarchyRows: 1000}, zerolog.Nop())
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
