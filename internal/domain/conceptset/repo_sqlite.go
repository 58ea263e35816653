package conceptset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteLoader reads the reference tables from a single SQLite file, using
// the same table and column names as the Postgres schema.
type SQLiteLoader struct {
	Path   string
	logger zerolog.Logger
}

// NewSQLiteLoader creates a loader for the database at path.
func NewSQLiteLoader(path string, logger zerolog.Logger) *SQLiteLoader {
	return &SQLiteLoader{Path: path, logger: logger}
}

// Load implements Loader. The file is opened read-only for the duration of
// the load.
func (l *SQLiteLoader) Load(ctx context.Context) (*Tables, error) {
	conn, err := sql.Open("sqlite", "file:"+l.Path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite %s: %v", ErrDatasetUnavailable, l.Path, err)
	}
	defer conn.Close()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: ping sqlite %s: %v", ErrDatasetUnavailable, l.Path, err)
	}
	return loadTables(ctx, l.logger, "sqlite", &sqliteReader{db: conn})
}

type sqliteReader struct {
	db *sql.DB
}

func sqlCollect[T any](ctx context.Context, conn *sql.DB, query string, scan func(*sql.Rows, *T) error, args ...any) ([]T, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteTableMissing(err)
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
	return out, rows.Err()
}

// sqliteTableMissing marks "no such table" errors with errTableMissing. The
// driver reports them with the generic SQLITE_ERROR code, so the message is
// the only distinguishing part.
func sqliteTableMissing(err error) error {
	if err != nil && strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %v", errTableMissing, err)
	}
	return err
}

func (r *sqliteReader) concepts(ctx context.Context) ([]Concept, error) {
	rows, err := sqlCollect(ctx, r.db,
		`SELECT concept_id, COALESCE(concept_name,''), COALESCE(vocabulary_id,'') FROM concept`,
		func(rs *sql.Rows, c *Concept) error {
			return rs.Scan(&c.ConceptID, &c.ConceptName, &c.VocabularyID)
		})
	if err != nil {
		return nil, fmt.Errorf("concept query: %w", err)
	}
	return rows, nil
}

func (r *sqliteReader) conceptSets(ctx context.Context) ([]ConceptSet, error) {
	rows, err := sqlCollect(ctx, r.db,
		`SELECT codeset_id, COALESCE(concept_set_name,''), CAST(COALESCE(version,0) AS INTEGER) FROM code_sets`,
		func(rs *sql.Rows, cs *ConceptSet) error {
			return rs.Scan(&cs.CodesetID, &cs.ConceptSetName, &cs.Version)
		})
	if err != nil {
		return nil, fmt.Errorf("code_sets query: %w", err)
	}
	return rows, nil
}

func (r *sqliteReader) members(ctx context.Context) ([]MembershipRow, error) {
	rows, err := sqlCollect(ctx, r.db,
		`SELECT codeset_id, concept_id, COALESCE(concept_name,''), COALESCE(concept_set_name,'')
		 FROM concept_set_members`,
		func(rs *sql.Rows, m *MembershipRow) error {
			return rs.Scan(&m.CodesetID, &m.ConceptID, &m.ConceptName, &m.ConceptSetName)
		})
	if err != nil {
		return nil, fmt.Errorf("concept_set_members query: %w", err)
	}
	return rows, nil
}

func (r *sqliteReader) ancestors(ctx context.Context) ([]AncestorEdge, error) {
	rows, err := sqlCollect(ctx, r.db,
		`SELECT ancestor_concept_id, descendant_concept_id, min_levels_of_separation FROM concept_ancestor`,
		func(rs *sql.Rows, e *AncestorEdge) error {
			return rs.Scan(&e.AncestorConceptID, &e.DescendantConceptID, &e.MinLevelsOfSeparation)
		})
	if err != nil {
		return nil, fmt.Errorf("concept_ancestor query: %w", err)
	}
	return rows, nil
}

func (r *sqliteReader) relationships(ctx context.Context) ([]RelationshipEdge, error) {
	rows, err := sqlCollect(ctx, r.db,
		`SELECT concept_id_1, concept_id_2, relationship_id FROM concept_relationship WHERE relationship_id = ?`,
		func(rs *sql.Rows, e *RelationshipEdge) error {
			return rs.Scan(&e.ConceptID1, &e.ConceptID2, &e.RelationshipID)
		}, RelationshipSubsumes)
	if err != nil {
		return nil, fmt.Errorf("concept_relationship query: %w", err)
	}
	return rows, nil
}
