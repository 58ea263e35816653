package conceptset

import (
	"cmp"
	"fmt"
	"slices"
)

// HierarchyRow is one line of a flattened hierarchy.
type HierarchyRow struct {
	Level     int
	ConceptID int64
}

// HierarchyStrategy flattens a filtered edge list into ordered, leveled rows.
type HierarchyStrategy interface {
	Name() string
	Flatten(edges []Edge) ([]HierarchyRow, error)
}

// TreeExpansion walks the edges depth-first from every root. A root is a
// concept that is the parent of some edge and the child of none; concepts
// without outgoing edges are never roots, and concepts with no edges at all
// are not emitted. A concept reachable along several paths is emitted once
// per path.
//
// Roots and the children of each concept are visited in ascending id order.
// MaxDepth and MaxRows bound the walk when positive.
type TreeExpansion struct {
	MaxDepth int
	MaxRows  int
}

func (TreeExpansion) Name() string { return "tree-expansion" }

// Flatten implements HierarchyStrategy. Revisiting a concept already on the
// current path, or going deeper than MaxDepth, returns a *CyclicRelationError.
func (t TreeExpansion) Flatten(edges []Edge) ([]HierarchyRow, error) {
	children := make(map[int64][]int64)
	isChild := make(map[int64]bool)
	seen := make(map[[2]int64]bool, len(edges))
	var parents []int64
	for _, e := range edges {
		if e.Parent == e.Child || seen[[2]int64{e.Parent, e.Child}] {
			continue
		}
		seen[[2]int64{e.Parent, e.Child}] = true
		if _, ok := children[e.Parent]; !ok {
			parents = append(parents, e.Parent)
		}
		children[e.Parent] = append(children[e.Parent], e.Child)
		isChild[e.Child] = true
	}
	for _, kids := range children {
		slices.Sort(kids)
	}

	var roots []int64
	for _, p := range parents {
		if !isChild[p] {
			roots = append(roots, p)
		}
	}
	slices.Sort(roots)

	w := &treeWalk{
		TreeExpansion: t,
		children:      children,
		onPath:        make(map[int64]bool),
	}
	for _, r := range roots {
		if err := w.visit(r, 0); err != nil {
			return nil, err
		}
	}
	return w.rows, nil
}

type treeWalk struct {
	TreeExpansion
	children map[int64][]int64
	onPath   map[int64]bool
	path     []int64
	rows     []HierarchyRow
}

func (w *treeWalk) visit(id int64, level int) error {
	if w.onPath[id] {
		return &CyclicRelationError{Path: append(slices.Clone(w.path), id)}
	}
	if w.MaxDepth > 0 && level > w.MaxDepth {
		return &CyclicRelationError{Path: append(slices.Clone(w.path), id), DepthExceeded: true, MaxDepth: w.MaxDepth}
	}

	w.rows = append(w.rows, HierarchyRow{Level: level, ConceptID: id})
	if w.MaxRows > 0 && len(w.rows) > w.MaxRows {
		return fmt.Errorf("%w: more than %d rows", ErrRowLimitExceeded, w.MaxRows)
	}

	w.onPath[id] = true
	w.path = append(w.path, id)
	for _, child := range w.children[id] {
		if err := w.visit(child, level+1); err != nil {
			return err
		}
	}
	w.path = w.path[:len(w.path)-1]
	delete(w.onPath, id)
	return nil
}

// AncestorGroup is one ancestor with its descendants at a given separation,
// in edge order.
type AncestorGroup struct {
	Ancestor    int64
	Descendants []int64
}

// LevelGroups is the result of grouping ancestor edges by (separation,
// ancestor).
type LevelGroups struct {
	MaxLevel int
	levels   map[int][]AncestorGroup
}

// Level returns the groups at separation sep in ascending ancestor order.
func (g *LevelGroups) Level(sep int) []AncestorGroup { return g.levels[sep] }

// LevelGrouping groups ancestor edges by separation and emits only the
// separation 1 groups: each ancestor at level 0 followed by its direct
// descendants at level 1. Deeper separations are grouped and counted in
// MaxLevel but never emitted.
type LevelGrouping struct{}

func (LevelGrouping) Name() string { return "level-grouping" }

// Group builds the (separation, ancestor) groups. Edges with a separation
// below 1 are ignored.
func (LevelGrouping) Group(edges []Edge) *LevelGroups {
	g := &LevelGroups{levels: make(map[int][]AncestorGroup)}
	pos := make(map[[2]int64]int)
	for _, e := range edges {
		if e.Separation < 1 || e.Parent == e.Child {
			continue
		}
		g.MaxLevel = max(g.MaxLevel, e.Separation)
		key := [2]int64{int64(e.Separation), e.Parent}
		i, ok := pos[key]
		if !ok {
			i = len(g.levels[e.Separation])
			pos[key] = i
			g.levels[e.Separation] = append(g.levels[e.Separation], AncestorGroup{Ancestor: e.Parent})
		}
		g.levels[e.Separation][i].Descendants = append(g.levels[e.Separation][i].Descendants, e.Child)
	}
	for sep := range g.levels {
		slices.SortStableFunc(g.levels[sep], func(a, b AncestorGroup) int {
			return cmp.Compare(a.Ancestor, b.Ancestor)
		})
	}
	return g
}

// Flatten implements HierarchyStrategy.
func (lg LevelGrouping) Flatten(edges []Edge) ([]HierarchyRow, error) {
	var rows []HierarchyRow
	for _, grp := range lg.Group(edges).Level(1) {
		rows = append(rows, HierarchyRow{Level: 0, ConceptID: grp.Ancestor})
		for _, d := range grp.Descendants {
			rows = append(rows, HierarchyRow{Level: 1, ConceptID: d})
		}
	}
	return rows, nil
}
