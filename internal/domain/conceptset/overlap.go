package conceptset

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
)

// Markers and column names used in the rendered tables.
const (
	ColumnConceptID = "ConceptID"
	ColumnLevel     = "level"

	MarkerMember    = "O"
	MarkerNonMember = "X"
	MarkerCheck     = "✓"

	indentSimpleHierarchy = "---"
	indentXO              = " -- "
)

type rowField struct {
	key   string
	value any
}

// Row is a table row whose columns serialize in insertion order. Setting an
// existing column replaces its value and keeps its position.
type Row struct {
	fields []rowField
}

// NewRow returns an empty row.
func NewRow() *Row { return &Row{} }

// Set assigns a column value.
func (r *Row) Set(key string, value any) *Row {
	for i := range r.fields {
		if r.fields[i].key == key {
			r.fields[i].value = value
			return r
		}
	}
	r.fields = append(r.fields, rowField{key: key, value: value})
	return r
}

// Get returns a column value.
func (r *Row) Get(key string) (any, bool) {
	for _, f := range r.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return nil, false
}

// Keys returns the column names in order.
func (r *Row) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.key
	}
	return keys
}

// Len returns the number of columns.
func (r *Row) Len() int { return len(r.fields) }

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func memberMarker(ok bool) string {
	if ok {
		return MarkerMember
	}
	return MarkerNonMember
}

// SimpleOverlapRows renders one row per concept of the universe with an O/X
// column per requested codeset id. Unknown requested ids get a column of X.
func SimpleOverlapRows(m *MembershipIndex) []*Row {
	rows := make([]*Row, 0, len(m.Concepts()))
	for _, c := range m.Concepts() {
		row := NewRow().Set(ColumnConceptID, c.ConceptID)
		for _, id := range m.Requested() {
			row.Set(strconv.FormatInt(id, 10), memberMarker(slices.Contains(c.ConceptSets, id)))
		}
		rows = append(rows, row)
	}
	return rows
}

// SimpleHierarchyRows renders the ancestor-based overlap table. For each
// concept of the universe, in order, it emits one row per ancestor edge that
// ends at the concept, nearest separation first. The ConceptID column holds the
// ancestor's concept name indented by "---" per separation level, and each
// requested codeset gets a column named after the codeset holding O when the
// ancestor is a member of it.
//
// edges must come from FilterEdges with SourceAncestorWithSelf or
// SourceAncestor. Labels are resolved from the concept and code_sets tables
// after the table is built; a missing label fails the whole table with a
// *LabelNotFoundError. Codesets that share a name share a column.
func SimpleHierarchyRows(idx *DatasetIndex, m *MembershipIndex, edges []Edge) ([]*Row, error) {
	byChild := make(map[int64][]Edge)
	for _, e := range edges {
		byChild[e.Child] = append(byChild[e.Child], e)
	}

	type pending struct {
		ancestor   int64
		separation int
		markers    []string
	}
	var table []pending
	for _, c := range m.Concepts() {
		anc := byChild[c.ConceptID]
		slices.SortStableFunc(anc, func(a, b Edge) int { return a.Separation - b.Separation })
		for _, e := range anc {
			p := pending{ancestor: e.Parent, separation: e.Separation, markers: make([]string, len(m.Requested()))}
			for i, id := range m.Requested() {
				cs, ok := m.Codeset(id)
				p.markers[i] = memberMarker(ok && cs.Contains(e.Parent))
			}
			table = append(table, p)
		}
	}
	if len(table) == 0 {
		return []*Row{}, nil
	}

	conceptNames := make(map[int64]string)
	for _, p := range table {
		if _, done := conceptNames[p.ancestor]; done {
			continue
		}
		c, ok := idx.Concept(p.ancestor)
		if !ok {
			return nil, &LabelNotFoundError{Kind: LabelConcept, ID: p.ancestor}
		}
		conceptNames[p.ancestor] = c.ConceptName
	}
	codesetNames := make([]string, len(m.Requested()))
	for i, id := range m.Requested() {
		cs, ok := idx.ConceptSet(id)
		if !ok {
			return nil, &LabelNotFoundError{Kind: LabelCodeset, ID: id}
		}
		codesetNames[i] = cs.ConceptSetName
	}

	rows := make([]*Row, 0, len(table))
	for _, p := range table {
		row := NewRow().Set(ColumnConceptID, strings.Repeat(indentSimpleHierarchy, p.separation)+conceptNames[p.ancestor])
		for i, marker := range p.markers {
			row.Set(codesetNames[i], marker)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// crColumn is a cr-hierarchy membership column.
type crColumn struct {
	name    string
	codeset *CodesetMembers
}

// crColumns returns one column per requested codeset with members, named by
// the concept_set_name carried on its first membership row.
func crColumns(m *MembershipIndex) []crColumn {
	var cols []crColumn
	for _, cs := range m.Codesets() {
		ids := cs.ConceptIDs()
		if len(ids) == 0 {
			continue
		}
		first, _ := cs.Member(ids[0])
		name := first.ConceptSetName
		if name == "" {
			name = cs.ConceptSetName
		}
		cols = append(cols, crColumn{name: name, codeset: cs})
	}
	return cols
}

// CRHierarchyRows renders tree-expansion rows. In the default format each row
// is {level, ConceptID: name, <codeset name>: marker...}; in the xo format the
// level column is dropped and the name is prefixed with " -- " per level.
// The marker is a check mark for member codesets and empty otherwise.
func CRHierarchyRows(m *MembershipIndex, hier []HierarchyRow, format string) ([]*Row, error) {
	cols := crColumns(m)
	rows := make([]*Row, 0, len(hier))
	for _, h := range hier {
		c, ok := m.Concept(h.ConceptID)
		if !ok {
			return nil, &LabelNotFoundError{Kind: LabelConcept, ID: h.ConceptID}
		}
		var row *Row
		switch format {
		case FormatXO:
			row = NewRow().Set(ColumnConceptID, strings.Repeat(indentXO, h.Level)+c.ConceptName)
		default:
			row = NewRow().Set(ColumnLevel, h.Level).Set(ColumnConceptID, c.ConceptName)
		}
		for _, col := range cols {
			marker := ""
			if col.codeset.Contains(h.ConceptID) {
				marker = MarkerCheck
			}
			row.Set(col.name, marker)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// HierarchyAgainRows labels level-grouping rows with the concept name from
// the membership rows.
func HierarchyAgainRows(m *MembershipIndex, hier []HierarchyRow) ([]HierarchyAgainRow, error) {
	rows := make([]HierarchyAgainRow, 0, len(hier))
	for _, h := range hier {
		c, ok := m.Concept(h.ConceptID)
		if !ok {
			return nil, &LabelNotFoundError{Kind: LabelConcept, ID: h.ConceptID}
		}
		rows = append(rows, HierarchyAgainRow{Lvl: h.Level, Cid: h.ConceptID, Name: c.ConceptName})
	}
	return rows, nil
}

// CsetVersions groups every code_sets row by concept_set_name, in first-seen
// name order. Rows without a version are skipped, and a name whose rows all
// lack a version is left out.
func CsetVersions(idx *DatasetIndex) *Row {
	out := NewRow()
	for _, cs := range idx.ConceptSets() {
		if cs.Version == 0 {
			continue
		}
		v := CsetVersion{Version: cs.Version, CodesetID: cs.CodesetID}
		if cur, ok := out.Get(cs.ConceptSetName); ok {
			out.Set(cs.ConceptSetName, append(cur.([]CsetVersion), v))
			continue
		}
		out.Set(cs.ConceptSetName, []CsetVersion{v})
	}
	return out
}

// CodesetRecords renders the resolved codesets with their member maps, in
// request order.
func CodesetRecords(m *MembershipIndex) []*CodesetRecord {
	out := make([]*CodesetRecord, 0, len(m.Codesets()))
	for _, cs := range m.Codesets() {
		rec := &CodesetRecord{
			CodesetID:      cs.CodesetID,
			ConceptSetName: cs.ConceptSetName,
			Version:        cs.Version,
			Concepts:       make(map[int64]MembershipRow, len(cs.ConceptIDs())),
		}
		for _, id := range cs.ConceptIDs() {
			rec.Concepts[id], _ = cs.Member(id)
		}
		out = append(out, rec)
	}
	return out
}

// ConceptRecords renders the concept -> codesets inversion together with the
// codeset records.
func ConceptRecords(m *MembershipIndex) *ConceptsByConcept {
	out := &ConceptsByConcept{
		Concepts:    make(map[int64]*ConceptRecord, len(m.Concepts())),
		ConceptSets: make(map[int64]*CodesetRecord, len(m.Codesets())),
	}
	for _, c := range m.Concepts() {
		out.Concepts[c.ConceptID] = &ConceptRecord{
			MembershipRow: c.MembershipRow,
			ConceptSets:   slices.Clone(c.ConceptSets),
		}
	}
	for _, rec := range CodesetRecords(m) {
		out.ConceptSets[rec.CodesetID] = rec
	}
	return out
}
