package conceptset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// CSVLoader reads the reference tables from <Dir>/<table>.csv files with a
// header row. Extra columns are ignored.
type CSVLoader struct {
	Dir    string
	logger zerolog.Logger
}

// NewCSVLoader creates a loader for a dataset directory.
func NewCSVLoader(dir string, logger zerolog.Logger) *CSVLoader {
	return &CSVLoader{Dir: dir, logger: logger}
}

// Load implements Loader.
func (l *CSVLoader) Load(ctx context.Context) (*Tables, error) {
	return loadTables(ctx, l.logger, "csv", l)
}

// csvTable is an open CSV file positioned after its header row.
type csvTable struct {
	name   string
	r      *csv.Reader
	f      *os.File
	cols   map[string]int
	line   int
	record []string
}

func (l *CSVLoader) open(table string, required ...string) (*csvTable, error) {
	path := filepath.Join(l.Dir, table+".csv")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", errTableMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	r := csv.NewReader(f)
	r.ReuseRecord = true
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			f.Close()
			return nil, fmt.Errorf("%s: missing column %q", path, c)
		}
	}
	return &csvTable{name: table, r: r, f: f, cols: cols, line: 1}, nil
}

// next advances to the next record. It returns false at EOF.
func (t *csvTable) next(ctx context.Context) (bool, error) {
	if t.line%10000 == 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}
	rec, err := t.r.Read()
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s line %d: %w", t.name, t.line+1, err)
	}
	t.line++
	t.record = rec
	return true, nil
}

func (t *csvTable) str(col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(t.record) {
		return ""
	}
	return t.record[i]
}

func (t *csvTable) id(col string) (int64, error) {
	v := strings.TrimSpace(t.str(col))
	n, err := strconv.ParseInt(v, 10, 64)
	if err == nil {
		return n, nil
	}
	// Some exports write integer ids as floats ("123.0").
	f, ferr := strconv.ParseFloat(v, 64)
	if ferr != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%s line %d: column %s: invalid id %q", t.name, t.line, col, v)
	}
	return int64(f), nil
}

func (t *csvTable) integer(col string) (int, error) {
	n, err := t.id(col)
	return int(n), err
}

func (l *CSVLoader) concepts(ctx context.Context) ([]Concept, error) {
	t, err := l.open(TableConcept, "concept_id", "concept_name")
	if err != nil {
		return nil, err
	}
	defer t.f.Close()
	var rows []Concept
	for {
		ok, err := t.next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		id, err := t.id("concept_id")
		if err != nil {
			return nil, err
		}
		rows = append(rows, Concept{ConceptID: id, ConceptName: t.str("concept_name"), VocabularyID: t.str("vocabulary_id")})
	}
}

func (l *CSVLoader) conceptSets(ctx context.Context) ([]ConceptSet, error) {
	t, err := l.open(TableCodeSets, "codeset_id", "concept_set_name")
	if err != nil {
		return nil, err
	}
	defer t.f.Close()
	var rows []ConceptSet
	for {
		ok, err := t.next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		id, err := t.id("codeset_id")
		if err != nil {
			return nil, err
		}
		cs := ConceptSet{CodesetID: id, ConceptSetName: t.str("concept_set_name")}
		if v := strings.TrimSpace(t.str("version")); v != "" {
			if cs.Version, err = t.integer("version"); err != nil {
				return nil, err
			}
		}
		rows = append(rows, cs)
	}
}

func (l *CSVLoader) members(ctx context.Context) ([]MembershipRow, error) {
	t, err := l.open(TableConceptSetMembers, "codeset_id", "concept_id")
	if err != nil {
		return nil, err
	}
	defer t.f.Close()
	var rows []MembershipRow
	for {
		ok, err := t.next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		csID, err := t.id("codeset_id")
		if err != nil {
			return nil, err
		}
		cID, err := t.id("concept_id")
		if err != nil {
			return nil, err
		}
		rows = append(rows, MembershipRow{
			CodesetID:      csID,
			ConceptID:      cID,
			ConceptName:    t.str("concept_name"),
			ConceptSetName: t.str("concept_set_name"),
		})
	}
}

func (l *CSVLoader) ancestors(ctx context.Context) ([]AncestorEdge, error) {
	t, err := l.open(TableConceptAncestor, "ancestor_concept_id", "descendant_concept_id", "min_levels_of_separation")
	if err != nil {
		return nil, err
	}
	defer t.f.Close()
	var rows []AncestorEdge
	for {
		ok, err := t.next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		anc, err := t.id("ancestor_concept_id")
		if err != nil {
			return nil, err
		}
		desc, err := t.id("descendant_concept_id")
		if err != nil {
			return nil, err
		}
		sep, err := t.integer("min_levels_of_separation")
		if err != nil {
			return nil, err
		}
		rows = append(rows, AncestorEdge{AncestorConceptID: anc, DescendantConceptID: desc, MinLevelsOfSeparation: sep})
	}
}

func (l *CSVLoader) relationships(ctx context.Context) ([]RelationshipEdge, error) {
	t, err := l.open(TableConceptRelationship, "concept_id_1", "concept_id_2", "relationship_id")
	if err != nil {
		return nil, err
	}
	defer t.f.Close()
	var rows []RelationshipEdge
	for {
		ok, err := t.next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		// Only Subsumes rows are ever used; skip the rest at load time.
		rel := t.str("relationship_id")
		if rel != RelationshipSubsumes {
			continue
		}
		c1, err := t.id("concept_id_1")
		if err != nil {
			return nil, err
		}
		c2, err := t.id("concept_id_2")
		if err != nil {
			return nil, err
		}
		rows = append(rows, RelationshipEdge{ConceptID1: c1, ConceptID2: c2, RelationshipID: rel})
	}
}
