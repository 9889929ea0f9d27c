package mesh

import (
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"seehuhn.de/go/geom/vec"
)

// Visitor is called by Search for every visited cell, internal or leaf, with
// the queries still active in the cell's subtree. It returns one value per
// active query: true keeps the query for the children of the cell.
type Visitor interface {
	Visit(cell Cell, isLeaf bool, active []int) []bool
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc func(cell Cell, isLeaf bool, active []int) []bool

func (f VisitorFunc) Visit(cell Cell, isLeaf bool, active []int) []bool {
	return f(cell, isLeaf, active)
}

// Search walks the local part of the forest top-down, starting from every
// tree root holding local leaves. A subtree is skipped once no query is
// active in it. Search is collective.
func (f *Forest) Search(v Visitor, queries []int) error {
	s := searcher{
		forest:  f,
		visitor: v,
	}

	for tree := 0; tree < f.shape.NumTrees(); tree++ {
		root := Key{Tree: tree}
		lo, hi := s.subtree(root, 0, len(f.leaves))
		if lo == hi {
			continue
		}

		s.visit(root, f.shape.root(tree), lo, hi, queries)
	}

	if err := f.comm.Barrier(); err != nil {
		return errors.New("search failed").Wrap(err)
	}
	return nil
}

type searcher struct {
	forest  *Forest
	visitor Visitor
}

// visit handles the cell k whose local leaves are leaves[lo:hi].
func (s *searcher) visit(k Key, vertices []vec.Vec2, lo, hi int, active []int) {
	leaves := s.forest.leaves
	isLeaf := hi-lo == 1 && leaves[lo] == k

	cell := Cell{
		Key:      k,
		Shape:    s.forest.shape,
		Vertices: vertices,
		Index:    -1,
		Rank:     s.forest.comm.Rank(),
	}
	if isLeaf {
		cell.Index = lo
	}

	mask := s.visitor.Visit(cell, isLeaf, active)
	if isLeaf {
		return
	}

	var next []int
	for i, q := range active {
		if i < len(mask) && mask[i] {
			next = append(next, q)
		}
	}
	if len(next) == 0 {
		return
	}

	for i := 0; i < NumChildren; i++ {
		child := k.Child(i)
		clo, chi := s.subtree(child, lo, hi)
		if clo == chi {
			continue
		}

		s.visit(child, s.forest.shape.child(vertices, i), clo, chi, next)
	}
}

// subtree returns the range of leaves[lo:hi] that descend from k.
func (s *searcher) subtree(k Key, lo, hi int) (int, int) {
	leaves := s.forest.leaves[lo:hi]

	start := sort.Search(len(leaves), func(i int) bool {
		return leaves[i].Compare(k) >= 0
	})

	end := sort.Search(len(leaves), func(i int) bool {
		return leaves[i].Compare(k) >= 0 && !k.IsAncestorOf(leaves[i])
	})

	return lo + start, lo + end
}
