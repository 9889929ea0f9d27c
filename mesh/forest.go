// Package mesh implements a distributed forest of quad or triangle trees over
// the unit square. Each rank owns a contiguous range of leaves along the
// space filling curve; construction, refinement, partition and balance are
// collective over the rank's comm.Comm.
package mesh

import (
	"slices"
	"sync/atomic"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/png2mesh/comm"
	"seehuhn.de/go/geom/vec"
)

const (
	ErrTypeInvalidLevel = "mesh_invalid_level"
)

var generations atomic.Uint64

// Forest is the local part of a distributed forest.
type Forest struct {
	comm       *comm.Comm
	shape      Shape
	leaves     []Key
	offset     int
	global     int
	generation uint64
}

// NewUniform creates a forest where every tree is refined to the given level.
// Leaves are split evenly across the ranks.
func NewUniform(c *comm.Comm, shape Shape, level int) (*Forest, error) {
	if !shape.Valid() {
		return nil, errors.New("unknown element shape").
			WithType(ErrTypeUnknownShape).
			WithTag("shape", int(shape))
	}

	if level < 0 || level > MaxLevel {
		return nil, errors.New("uniform level out of range").
			WithType(ErrTypeInvalidLevel).
			WithTag("level", level).
			WithTag("max_level", MaxLevel)
	}

	perTree := 1 << (2 * level)
	total := shape.NumTrees() * perTree
	lo, hi := share(total, c.Rank(), c.Size())

	leaves := make([]Key, 0, hi-lo)
	for i := lo; i < hi; i++ {
		leaves = append(leaves, Key{
			Tree:  i / perTree,
			Level: level,
			Path:  uint64(i % perTree),
		})
	}

	return &Forest{
		comm:       c,
		shape:      shape,
		leaves:     leaves,
		offset:     lo,
		global:     total,
		generation: generations.Add(1),
	}, nil
}

func (f *Forest) Comm() *comm.Comm {
	return f.comm
}

func (f *Forest) Shape() Shape {
	return f.shape
}

// LocalCount returns the number of leaves owned by this rank.
func (f *Forest) LocalCount() int {
	return len(f.leaves)
}

// GlobalCount returns the number of leaves over all ranks.
func (f *Forest) GlobalCount() int {
	return f.global
}

// Offset returns the global index of the first local leaf.
func (f *Forest) Offset() int {
	return f.offset
}

// Generation identifies this forest instance. Every operation producing a
// forest produces a new generation, local indices are only meaningful within
// one generation.
func (f *Forest) Generation() uint64 {
	return f.generation
}

// Keys returns a copy of the local leaf keys in curve order.
func (f *Forest) Keys() []Key {
	return slices.Clone(f.leaves)
}

// Cell returns the i-th local leaf.
func (f *Forest) Cell(i int) Cell {
	k := f.leaves[i]
	return Cell{
		Key:      k,
		Shape:    f.shape,
		Vertices: f.shape.vertices(k),
		Index:    i,
		Rank:     f.comm.Rank(),
	}
}

// MaxLocalLevel returns the deepest level among the local leaves, -1 when the
// rank owns no leaf.
func (f *Forest) MaxLocalLevel() int {
	max := -1
	for _, k := range f.leaves {
		if k.Level > max {
			max = k.Level
		}
	}
	return max
}

// PointsInside tests every point against one cell and writes the results to
// inside[:0], returning it.
func (f *Forest) PointsInside(c Cell, points []vec.Vec2, tolerance float64, inside []bool) []bool {
	t := newContainment(c, tolerance)

	inside = inside[:0]
	for _, p := range points {
		inside = append(inside, t.inside(p))
	}
	return inside
}

// Refine replaces every local leaf for which refine returns true by its
// children. It is not recursive: new children are not offered to refine.
// Leaves at MaxLevel are never refined.
func (f *Forest) Refine(refine func(Cell) bool) (*Forest, error) {
	leaves := make([]Key, 0, len(f.leaves))

	for i, k := range f.leaves {
		if k.Level < MaxLevel && refine(f.Cell(i)) {
			for child := 0; child < NumChildren; child++ {
				leaves = append(leaves, k.Child(child))
			}
			continue
		}
		leaves = append(leaves, k)
	}

	return f.derive(leaves)
}

// Partition redistributes the leaves so that every rank owns an equal share
// in curve order.
func (f *Forest) Partition() (*Forest, error) {
	all, err := f.gatherKeys()
	if err != nil {
		return nil, errors.New("partitioning forest failed").Wrap(err)
	}

	lo, hi := share(len(all), f.comm.Rank(), f.comm.Size())
	return &Forest{
		comm:       f.comm,
		shape:      f.shape,
		leaves:     all[lo:hi],
		offset:     lo,
		global:     len(all),
		generation: generations.Add(1),
	}, nil
}

// Gather returns every leaf of the forest, in global curve order, on every
// rank.
func (f *Forest) Gather() ([]Cell, error) {
	perRank, err := comm.Allgather(f.comm, f.leaves)
	if err != nil {
		return nil, errors.New("gathering forest failed").Wrap(err)
	}

	cells := make([]Cell, 0, f.global)
	for rank, keys := range perRank {
		for _, k := range keys {
			cells = append(cells, f.shape.Cell(k, rank))
		}
	}
	return cells, nil
}

// LevelHistogram returns the number of leaves per level over all ranks.
func (f *Forest) LevelHistogram() (map[int]int, error) {
	local := make(map[int]int)
	for _, k := range f.leaves {
		local[k.Level]++
	}

	perRank, err := comm.Allgather(f.comm, local)
	if err != nil {
		return nil, errors.New("computing level histogram failed").Wrap(err)
	}

	res := make(map[int]int)
	for _, h := range perRank {
		for level, n := range h {
			res[level] += n
		}
	}
	return res, nil
}

func (f *Forest) gatherKeys() ([]Key, error) {
	perRank, err := comm.Allgather(f.comm, f.leaves)
	if err != nil {
		return nil, err
	}

	all := make([]Key, 0, f.global)
	for _, keys := range perRank {
		all = append(all, keys...)
	}
	return all, nil
}

// derive builds the successor of f from new local leaves.
func (f *Forest) derive(leaves []Key) (*Forest, error) {
	offset, total, err := comm.ExclusiveScan(f.comm, len(leaves))
	if err != nil {
		return nil, errors.New("counting leaves failed").Wrap(err)
	}

	return &Forest{
		comm:       f.comm,
		shape:      f.shape,
		leaves:     leaves,
		offset:     offset,
		global:     total,
		generation: generations.Add(1),
	}, nil
}

// share returns the range of n items assigned to rank among size ranks.
func share(n, rank, size int) (lo, hi int) {
	return n * rank / size, n * (rank + 1) / size
}
