package conceptset

import (
	"time"

	"github.com/google/uuid"
)

// DatasetIndex is an immutable, keyed view over one snapshot of the reference
// tables. It is never mutated after NewDatasetIndex returns, so any number of
// requests may read it concurrently.
type DatasetIndex struct {
	version  string
	loadedAt time.Time

	concepts    map[int64]*Concept
	conceptSets map[int64]*ConceptSet
	setOrder    []int64

	membersByCodeset      map[int64][]MembershipRow
	ancestorsByAncestor   map[int64][]AncestorEdge
	relationshipsBySource map[int64][]RelationshipEdge

	stats DatasetStats
}

// DatasetStats summarizes a snapshot for health reporting.
type DatasetStats struct {
	Version              string    `json:"version"`
	LoadedAt             time.Time `json:"loaded_at"`
	Concepts             int       `json:"concepts"`
	ConceptSets          int       `json:"concept_sets"`
	Members              int       `json:"members"`
	AncestorEdges        int       `json:"ancestor_edges"`
	RelationshipEdges    int       `json:"relationship_edges"`
	DuplicateConcepts    int       `json:"duplicate_concepts"`
	DuplicateConceptSets int       `json:"duplicate_concept_sets"`
}

// NewDatasetIndex builds the lookup maps for a snapshot. The slices in t are
// copied into the index; later changes to t are not observed. Duplicate
// concept_id or codeset_id rows keep the first occurrence and are counted in
// the stats.
func NewDatasetIndex(t *Tables) *DatasetIndex {
	if t == nil {
		t = &Tables{}
	}
	idx := &DatasetIndex{
		version:               uuid.New().String(),
		loadedAt:              time.Now().UTC(),
		concepts:              make(map[int64]*Concept, len(t.Concepts)),
		conceptSets:           make(map[int64]*ConceptSet, len(t.ConceptSets)),
		membersByCodeset:      make(map[int64][]MembershipRow),
		ancestorsByAncestor:   make(map[int64][]AncestorEdge),
		relationshipsBySource: make(map[int64][]RelationshipEdge),
	}

	for i := range t.Concepts {
		c := t.Concepts[i]
		if _, dup := idx.concepts[c.ConceptID]; dup {
			idx.stats.DuplicateConcepts++
			continue
		}
		idx.concepts[c.ConceptID] = &c
	}
	for i := range t.ConceptSets {
		cs := t.ConceptSets[i]
		if _, dup := idx.conceptSets[cs.CodesetID]; dup {
			idx.stats.DuplicateConceptSets++
			continue
		}
		idx.conceptSets[cs.CodesetID] = &cs
		idx.setOrder = append(idx.setOrder, cs.CodesetID)
	}
	for _, m := range t.Members {
		idx.membersByCodeset[m.CodesetID] = append(idx.membersByCodeset[m.CodesetID], m)
	}
	for _, e := range t.Ancestors {
		idx.ancestorsByAncestor[e.AncestorConceptID] = append(idx.ancestorsByAncestor[e.AncestorConceptID], e)
	}
	for _, e := range t.Relationships {
		idx.relationshipsBySource[e.ConceptID1] = append(idx.relationshipsBySource[e.ConceptID1], e)
	}

	idx.stats.Version = idx.version
	idx.stats.LoadedAt = idx.loadedAt
	idx.stats.Concepts = len(idx.concepts)
	idx.stats.ConceptSets = len(idx.conceptSets)
	idx.stats.Members = len(t.Members)
	idx.stats.AncestorEdges = len(t.Ancestors)
	idx.stats.RelationshipEdges = len(t.Relationships)
	return idx
}

// Version is a unique id assigned when the index was built.
func (idx *DatasetIndex) Version() string { return idx.version }

// Stats returns table counts for the snapshot.
func (idx *DatasetIndex) Stats() DatasetStats { return idx.stats }

// Concept looks up a concept label row.
func (idx *DatasetIndex) Concept(id int64) (*Concept, bool) {
	c, ok := idx.concepts[id]
	return c, ok
}

// ConceptSet looks up a code_sets label row.
func (idx *DatasetIndex) ConceptSet(id int64) (*ConceptSet, bool) {
	cs, ok := idx.conceptSets[id]
	return cs, ok
}

// ConceptSets returns all code_sets rows in source order.
func (idx *DatasetIndex) ConceptSets() []*ConceptSet {
	out := make([]*ConceptSet, 0, len(idx.setOrder))
	for _, id := range idx.setOrder {
		out = append(out, idx.conceptSets[id])
	}
	return out
}

// Members returns the membership rows of a codeset in source order. The
// returned slice must not be modified.
func (idx *DatasetIndex) Members(codesetID int64) []MembershipRow {
	return idx.membersByCodeset[codesetID]
}

// AncestorEdgesFrom returns the concept_ancestor rows whose ancestor is id.
func (idx *DatasetIndex) AncestorEdgesFrom(id int64) []AncestorEdge {
	return idx.ancestorsByAncestor[id]
}

// RelationshipEdgesFrom returns the concept_relationship rows whose
// concept_id_1 is id.
func (idx *DatasetIndex) RelationshipEdgesFrom(id int64) []RelationshipEdge {
	return idx.relationshipsBySource[id]
}
