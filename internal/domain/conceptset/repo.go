package conceptset

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Loader reads a complete snapshot of the reference tables from a backing
// source.
type Loader interface {
	Load(ctx context.Context) (*Tables, error)
}

// Reference table names, shared by every source (CSV file stem, SQL table).
const (
	TableConcept             = "concept"
	TableCodeSets            = "code_sets"
	TableConceptSetMembers   = "concept_set_members"
	TableConceptAncestor     = "concept_ancestor"
	TableConceptRelationship = "concept_relationship"
)

// requiredTables may not fall back to empty. concept_ancestor and
// concept_relationship only feed the hierarchy endpoints, which then return
// empty tables.
var requiredTables = map[string]bool{
	TableConcept:             true,
	TableCodeSets:            true,
	TableConceptSetMembers:   true,
	TableConceptAncestor:     false,
	TableConceptRelationship: false,
}

// ReferenceTables lists the table names every source reads.
func ReferenceTables() []string {
	return []string{TableConcept, TableCodeSets, TableConceptSetMembers, TableConceptAncestor, TableConceptRelationship}
}

// IsRequiredTable reports whether a load failure of table is fatal.
func IsRequiredTable(table string) bool {
	return requiredTables[table]
}

// tableReader is implemented by each source; every method reads one table.
type tableReader interface {
	concepts(ctx context.Context) ([]Concept, error)
	conceptSets(ctx context.Context) ([]ConceptSet, error)
	members(ctx context.Context) ([]MembershipRow, error)
	ancestors(ctx context.Context) ([]AncestorEdge, error)
	relationships(ctx context.Context) ([]RelationshipEdge, error)
}

// loadTables reads the five tables concurrently. Each goroutine writes a
// distinct field of the result.
func loadTables(ctx context.Context, logger zerolog.Logger, source string, r tableReader) (*Tables, error) {
	t := &Tables{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := r.concepts(gctx)
		t.Concepts = settle(logger, source, TableConcept, rows, &err)
		return err
	})
	g.Go(func() error {
		rows, err := r.conceptSets(gctx)
		t.ConceptSets = settle(logger, source, TableCodeSets, rows, &err)
		return err
	})
	g.Go(func() error {
		rows, err := r.members(gctx)
		t.Members = settle(logger, source, TableConceptSetMembers, rows, &err)
		return err
	})
	g.Go(func() error {
		rows, err := r.ancestors(gctx)
		t.Ancestors = settle(logger, source, TableConceptAncestor, rows, &err)
		return err
	})
	g.Go(func() error {
		rows, err := r.relationships(gctx)
		t.Relationships = settle(logger, source, TableConceptRelationship, rows, &err)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return t, nil
}

// errTableMissing marks a read that failed because the table does not exist
// in the source. Only this error lets an optional table fall back to empty.
var errTableMissing = errors.New("table does not exist")

// settle logs the outcome of one table read. A missing optional table is
// replaced by an empty one and *errp is cleared. Any other failure, and a
// missing required table, is wrapped in ErrDatasetUnavailable.
func settle[T any](logger zerolog.Logger, source, table string, rows []T, errp *error) []T {
	if *errp == nil {
		logger.Info().Str("source", source).Str("table", table).Int("rows", len(rows)).Msg("table loaded")
		return rows
	}
	if !IsRequiredTable(table) && errors.Is(*errp, errTableMissing) {
		logger.Warn().Err(*errp).Str("source", source).Str("table", table).Msg("optional table missing, using empty table")
		*errp = nil
		return []T{}
	}
	*errp = fmt.Errorf("%w: %s table %s: %v", ErrDatasetUnavailable, source, table, *errp)
	return nil
}
