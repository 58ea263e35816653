package conceptset

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/termhub/termhub/internal/platform/db"
)

// pgUndefinedTable is the SQLSTATE for a missing relation.
const pgUndefinedTable = "42P01"

// PGLoader reads the reference tables from a Postgres schema.
type PGLoader struct {
	pool   *pgxpool.Pool
	schema string
	logger zerolog.Logger
}

// NewPGLoader creates a loader for the tables in schema.
func NewPGLoader(pool *pgxpool.Pool, schema string, logger zerolog.Logger) (*PGLoader, error) {
	if err := db.ValidateSchemaName(schema); err != nil {
		return nil, err
	}
	return &PGLoader{pool: pool, schema: schema, logger: logger}, nil
}

// Load implements Loader.
func (l *PGLoader) Load(ctx context.Context) (*Tables, error) {
	return loadTables(ctx, l.logger, "postgres", l)
}

func (l *PGLoader) table(name string) string {
	// The schema is validated in NewPGLoader and table names are constants.
	qualified, _ := db.QualifiedTable(l.schema, name)
	return qualified
}

// pgCollect runs query and scans each row with scan.
func pgCollect[T any](ctx context.Context, pool *pgxpool.Pool, query string, scan func(pgx.Rows, *T) error, args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgTableMissing(err)
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		var v T
		if err := scan(rows, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, pgTableMissing(rows.Err())
}

// pgTableMissing marks undefined_table errors with errTableMissing.
func pgTableMissing(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return fmt.Errorf("%w: %v", errTableMissing, err)
	}
	return err
}

func (l *PGLoader) concepts(ctx context.Context) ([]Concept, error) {
	rows, err := pgCollect(ctx, l.pool,
		fmt.Sprintf(`SELECT concept_id, COALESCE(concept_name,''), COALESCE(vocabulary_id,'')
		 FROM %s`, l.table(TableConcept)),
		func(r pgx.Rows, c *Concept) error {
			return r.Scan(&c.ConceptID, &c.ConceptName, &c.VocabularyID)
		})
	if err != nil {
		return nil, fmt.Errorf("concept query: %w", err)
	}
	return rows, nil
}

func (l *PGLoader) conceptSets(ctx context.Context) ([]ConceptSet, error) {
	rows, err := pgCollect(ctx, l.pool,
		fmt.Sprintf(`SELECT codeset_id, COALESCE(concept_set_name,''), COALESCE(version,0)::int
		 FROM %s`, l.table(TableCodeSets)),
		func(r pgx.Rows, cs *ConceptSet) error {
			return r.Scan(&cs.CodesetID, &cs.ConceptSetName, &cs.Version)
		})
	if err != nil {
		return nil, fmt.Errorf("code_sets query: %w", err)
	}
	return rows, nil
}

func (l *PGLoader) members(ctx context.Context) ([]MembershipRow, error) {
	rows, err := pgCollect(ctx, l.pool,
		fmt.Sprintf(`SELECT codeset_id, concept_id, COALESCE(concept_name,''), COALESCE(concept_set_name,'')
		 FROM %s`, l.table(TableConceptSetMembers)),
		func(r pgx.Rows, m *MembershipRow) error {
			return r.Scan(&m.CodesetID, &m.ConceptID, &m.ConceptName, &m.ConceptSetName)
		})
	if err != nil {
		return nil, fmt.Errorf("concept_set_members query: %w", err)
	}
	return rows, nil
}

func (l *PGLoader) ancestors(ctx context.Context) ([]AncestorEdge, error) {
	rows, err := pgCollect(ctx, l.pool,
		fmt.Sprintf(`SELECT ancestor_concept_id, descendant_concept_id, min_levels_of_separation
		 FROM %s`, l.table(TableConceptAncestor)),
		func(r pgx.Rows, e *AncestorEdge) error {
			return r.Scan(&e.AncestorConceptID, &e.DescendantConceptID, &e.MinLevelsOfSeparation)
		})
	if err != nil {
		return nil, fmt.Errorf("concept_ancestor query: %w", err)
	}
	return rows, nil
}

func (l *PGLoader) relationships(ctx context.Context) ([]RelationshipEdge, error) {
	rows, err := pgCollect(ctx, l.pool,
		fmt.Sprintf(`SELECT concept_id_1, concept_id_2, relationship_id
		 FROM %s WHERE relationship_id = $1`, l.table(TableConceptRelationship)),
		func(r pgx.Rows, e *RelationshipEdge) error {
			return r.Scan(&e.ConceptID1, &e.ConceptID2, &e.RelationshipID)
		}, RelationshipSubsumes)
	if err != nil {
		return nil, fmt.Errorf("concept_relationship query: %w", err)
	}
	return rows, nil
}
