package conceptset

import (
	"fmt"
)

// EdgeSource selects the relation that FilterEdges restricts to a universe.
type EdgeSource int

const (
	// SourceAncestor is concept_ancestor without its self-identity rows.
	SourceAncestor EdgeSource = iota
	// SourceAncestorWithSelf is concept_ancestor including separation 0
	// rows. Only the simple-hierarchy overlap table uses it.
	SourceAncestorWithSelf
	// SourceRelationship is the "Subsumes" subset of concept_relationship.
	SourceRelationship
)

func (s EdgeSource) String() string {
	switch s {
	case SourceAncestor:
		return "ancestor"
	case SourceAncestorWithSelf:
		return "ancestor_with_self"
	case SourceRelationship:
		return "relationship"
	default:
		return fmt.Sprintf("EdgeSource(%d)", int(s))
	}
}

// Edge is a parent -> child pair restricted to a request's universe.
// Separation is min_levels_of_separation for ancestor edges and 1 for
// relationship edges.
type Edge struct {
	Parent     int64
	Child      int64
	Separation int
}

// FilterEdges returns the edges of source whose endpoints are both in
// universe. Edges are ordered by the position of their parent in universe and
// then by snapshot order, so the result is stable for a fixed snapshot. If
// limit is positive and more than limit edges survive, FilterEdges stops and
// returns ErrEdgeLimitExceeded.
func FilterEdges(idx *DatasetIndex, universe []int64, source EdgeSource, limit int) ([]Edge, error) {
	in := make(map[int64]struct{}, len(universe))
	for _, id := range universe {
		in[id] = struct{}{}
	}

	var edges []Edge
	keep := func(e Edge) error {
		if _, ok := in[e.Child]; !ok {
			return nil
		}
		edges = append(edges, e)
		if limit > 0 && len(edges) > limit {
			return fmt.Errorf("%w: more than %d %s edges for %d concepts",
				ErrEdgeLimitExceeded, limit, source, len(universe))
		}
		return nil
	}

	visited := make(map[int64]struct{}, len(universe))
	for _, parent := range universe {
		if _, dup := visited[parent]; dup {
			continue
		}
		visited[parent] = struct{}{}

		switch source {
		case SourceAncestor, SourceAncestorWithSelf:
			for _, a := range idx.AncestorEdgesFrom(parent) {
				if a.MinLevelsOfSeparation < 0 {
					continue
				}
				if a.MinLevelsOfSeparation == 0 && source == SourceAncestor {
					continue
				}
				if err := keep(Edge{Parent: parent, Child: a.DescendantConceptID, Separation: a.MinLevelsOfSeparation}); err != nil {
					return nil, err
				}
			}
		case SourceRelationship:
			for _, r := range idx.RelationshipEdgesFrom(parent) {
				if r.RelationshipID != RelationshipSubsumes || r.ConceptID2 == parent {
					continue
				}
				if err := keep(Edge{Parent: parent, Child: r.ConceptID2, Separation: 1}); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("unknown edge source %s", source)
		}
	}
	return edges, nil
}
