package conceptset

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCodesetIDs parses a pipe-delimited list of codeset ids ("1|2|3").
// Surrounding whitespace is ignored and an empty string is an empty list. Any
// segment that is not an integer fails the whole list. Order is preserved and
// duplicates are kept; ComputeMembership collapses them.
func ParseCodesetIDs(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []int64{}, nil
	}
	parts := strings.Split(raw, "|")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: codeset_id segment %q", ErrMalformedIdentifier, p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CodesetMembers is a requested codeset together with its member concepts in
// snapshot order.
type CodesetMembers struct {
	ConceptSet
	concepts map[int64]MembershipRow
	order    []int64
}

// Contains reports whether conceptID is a member of the codeset.
func (c *CodesetMembers) Contains(conceptID int64) bool {
	_, ok := c.concepts[conceptID]
	return ok
}

// ConceptIDs returns the member concept ids in snapshot order.
func (c *CodesetMembers) ConceptIDs() []int64 { return c.order }

// Member returns the membership row for conceptID.
func (c *CodesetMembers) Member(conceptID int64) (MembershipRow, bool) {
	m, ok := c.concepts[conceptID]
	return m, ok
}

// ConceptMembership is a concept of the universe with the requested codesets
// containing it, in request order. The label fields come from the first
// membership row seen for the concept.
type ConceptMembership struct {
	MembershipRow
	ConceptSets []int64
}

// MembershipIndex is the per-request concept <-> codeset membership map. It is
// built once by ComputeMembership and not modified afterwards.
type MembershipIndex struct {
	requested   []int64
	codesets    []*CodesetMembers
	codesetByID map[int64]*CodesetMembers
	concepts    []*ConceptMembership
	conceptByID map[int64]*ConceptMembership
}

// ComputeMembership resolves the members of the requested codesets. Duplicate
// ids in requested are collapsed to their first position. Ids with neither a
// code_sets row nor membership rows are dropped without error.
func ComputeMembership(idx *DatasetIndex, requested []int64) *MembershipIndex {
	m := &MembershipIndex{
		codesetByID: make(map[int64]*CodesetMembers),
		conceptByID: make(map[int64]*ConceptMembership),
	}

	seen := make(map[int64]bool, len(requested))
	for _, id := range requested {
		if seen[id] {
			continue
		}
		seen[id] = true
		m.requested = append(m.requested, id)

		rows := idx.Members(id)
		label, known := idx.ConceptSet(id)
		if !known && len(rows) == 0 {
			continue
		}

		cs := &CodesetMembers{concepts: make(map[int64]MembershipRow, len(rows))}
		if known {
			cs.ConceptSet = *label
		} else {
			cs.ConceptSet = ConceptSet{CodesetID: id, ConceptSetName: rows[0].ConceptSetName}
		}
		for _, row := range rows {
			if _, dup := cs.concepts[row.ConceptID]; dup {
				continue
			}
			cs.concepts[row.ConceptID] = row
			cs.order = append(cs.order, row.ConceptID)
		}
		m.codesets = append(m.codesets, cs)
		m.codesetByID[id] = cs
	}

	// Invert codeset -> concepts into concept -> codesets, visiting codesets
	// in request order so the first-seen label wins.
	for _, cs := range m.codesets {
		for _, cid := range cs.order {
			cm, ok := m.conceptByID[cid]
			if !ok {
				cm = &ConceptMembership{MembershipRow: cs.concepts[cid]}
				m.conceptByID[cid] = cm
				m.concepts = append(m.concepts, cm)
			}
			cm.ConceptSets = append(cm.ConceptSets, cs.CodesetID)
		}
	}
	return m
}

// Requested returns the requested codeset ids, deduplicated, in request order.
// Unknown ids are included.
func (m *MembershipIndex) Requested() []int64 { return m.requested }

// Codesets returns the resolved codesets in request order.
func (m *MembershipIndex) Codesets() []*CodesetMembers { return m.codesets }

// Codeset looks up a resolved codeset.
func (m *MembershipIndex) Codeset(id int64) (*CodesetMembers, bool) {
	cs, ok := m.codesetByID[id]
	return cs, ok
}

// Concepts returns the universe in first-seen order.
func (m *MembershipIndex) Concepts() []*ConceptMembership { return m.concepts }

// Concept looks up a concept of the universe.
func (m *MembershipIndex) Concept(id int64) (*ConceptMembership, bool) {
	c, ok := m.conceptByID[id]
	return c, ok
}

// Universe returns the concept ids of the universe in first-seen order.
func (m *MembershipIndex) Universe() []int64 {
	ids := make([]int64, len(m.concepts))
	for i, c := range m.concepts {
		ids[i] = c.ConceptID
	}
	return ids
}

// InUniverse reports whether id belongs to at least one requested codeset.
func (m *MembershipIndex) InUniverse(id int64) bool {
	_, ok := m.conceptByID[id]
	return ok
}
