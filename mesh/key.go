package mesh

import (
	"cmp"
	"fmt"
)

const (
	// MaxLevel is the deepest level a cell can reach.
	MaxLevel = 29

	// NumChildren is the number of children of a refined cell.
	NumChildren = 4
)

// Key identifies a cell of the forest. Path holds the child ids from the tree
// root down to the cell, two bits per level, the most recent child id in the
// lowest bits.
type Key struct {
	Tree  int
	Level int
	Path  uint64
}

// Child returns the key of the i-th child.
func (k Key) Child(i int) Key {
	return Key{
		Tree:  k.Tree,
		Level: k.Level + 1,
		Path:  k.Path<<2 | uint64(i),
	}
}

// Parent returns the key of the parent. The parent of a root is the root.
func (k Key) Parent() Key {
	if k.Level == 0 {
		return k
	}

	return Key{
		Tree:  k.Tree,
		Level: k.Level - 1,
		Path:  k.Path >> 2,
	}
}

// ChildID returns the position of the cell among its siblings.
func (k Key) ChildID() int {
	return int(k.Path & 3)
}

// Digit returns the child id taken at the given level, 1 <= level <= k.Level.
func (k Key) Digit(level int) int {
	return int(k.Path>>(2*(k.Level-level))) & 3
}

// IsAncestorOf reports whether o is k or a descendant of k.
func (k Key) IsAncestorOf(o Key) bool {
	return k.Tree == o.Tree &&
		k.Level <= o.Level &&
		o.Path>>(2*(o.Level-k.Level)) == k.Path
}

// Compare orders keys depth-first: by tree, then along the space filling
// curve, ancestors before their descendants.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.Tree, o.Tree); c != 0 {
		return c
	}
	if c := cmp.Compare(k.aligned(), o.aligned()); c != 0 {
		return c
	}
	return cmp.Compare(k.Level, o.Level)
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d:%x", k.Tree, k.Level, k.Path)
}

func (k Key) aligned() uint64 {
	return k.Path << (2 * (MaxLevel - k.Level))
}
