package mesh

import (
	"context"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/png2mesh/comm"
	"github.com/stretchr/testify/require"
	"seehuhn.de/go/geom/vec"
)

func TestNewUniform(t *testing.T) {
	t.Run("quad", func(t *testing.T) {
		f, err := NewUniform(comm.Solo(), Quad, 2)
		require.NoError(t, err)
		require.Equal(t, 16, f.LocalCount())
		require.Equal(t, 16, f.GlobalCount())
		require.Equal(t, 0, f.Offset())
		require.Equal(t, 2, f.MaxLocalLevel())
	})

	t.Run("triangle", func(t *testing.T) {
		f, err := NewUniform(comm.Solo(), Triangle, 1)
		require.NoError(t, err)
		require.Equal(t, 8, f.GlobalCount())
		require.Equal(t, 1, f.Keys()[4].Tree)
	})

	t.Run("cells cover the unit square", func(t *testing.T) {
		for _, shape := range []Shape{Quad, Triangle} {
			f, err := NewUniform(comm.Solo(), shape, 3)
			require.NoError(t, err)

			var area float64
			for i := 0; i < f.LocalCount(); i++ {
				area += cellArea(f.Cell(i))
			}
			require.InDelta(t, 1, area, 1e-12)
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := NewUniform(comm.Solo(), Quad, -1)
		require.True(t, errors.IsType(err, ErrTypeInvalidLevel))

		_, err = NewUniform(comm.Solo(), Quad, MaxLevel+1)
		require.True(t, errors.IsType(err, ErrTypeInvalidLevel))
	})

	t.Run("invalid shape", func(t *testing.T) {
		_, err := NewUniform(comm.Solo(), Shape(7), 0)
		require.True(t, errors.IsType(err, ErrTypeUnknownShape))
	})

	t.Run("split across ranks", func(t *testing.T) {
		counts := make([]int, 3)
		offsets := make([]int, 3)

		err := comm.Run(context.Background(), 3, func(ctx context.Context, c *comm.Comm) error {
			f, err := NewUniform(c, Quad, 2)
			if err != nil {
				return err
			}

			counts[c.Rank()] = f.LocalCount()
			offsets[c.Rank()] = f.Offset()
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []int{5, 5, 6}, counts)
		require.Equal(t, []int{0, 5, 10}, offsets)
	})
}

func TestCellGeometry(t *testing.T) {
	f, err := NewUniform(comm.Solo(), Quad, 1)
	require.NoError(t, err)

	c := f.Cell(1)
	require.Equal(t, []vec.Vec2{
		{X: 0.5, Y: 0},
		{X: 1, Y: 0},
		{X: 1, Y: 0.5},
		{X: 0.5, Y: 0.5},
	}, c.Vertices)
	require.Equal(t, 1, c.Index)
	require.Equal(t, vec.Vec2{X: 0.75, Y: 0.25}, c.Centroid())

	b := c.Bounds()
	require.Equal(t, 0.5, b.LLx)
	require.Equal(t, 1.0, b.URx)

	require.True(t, c.Contains(vec.Vec2{X: 0.6, Y: 0.1}, 0))
	require.True(t, c.Contains(vec.Vec2{X: 0.5, Y: 0.5}, 0))
	require.False(t, c.Contains(vec.Vec2{X: 0.4, Y: 0.1}, 0))
	require.True(t, c.Contains(vec.Vec2{X: 0.5 - 1e-12, Y: 0.1}, 1e-10))
}

func TestTriangleContains(t *testing.T) {
	f, err := NewUniform(comm.Solo(), Triangle, 0)
	require.NoError(t, err)

	lower, upper := f.Cell(0), f.Cell(1)
	require.True(t, lower.Contains(vec.Vec2{X: 0.9, Y: 0.1}, 0))
	require.False(t, lower.Contains(vec.Vec2{X: 0.1, Y: 0.9}, 0))
	require.True(t, upper.Contains(vec.Vec2{X: 0.1, Y: 0.9}, 0))
	require.False(t, upper.Contains(vec.Vec2{X: 0.9, Y: 0.1}, 0))

	diagonal := vec.Vec2{X: 0.5, Y: 0.5}
	require.True(t, lower.Contains(diagonal, 1e-10))
	require.True(t, upper.Contains(diagonal, 1e-10))

	inside := f.PointsInside(lower, []vec.Vec2{{X: 0.9, Y: 0.1}, {X: 0.1, Y: 0.9}, {X: 1, Y: 1}}, 1e-10, nil)
	require.Equal(t, []bool{true, false, true}, inside)
}

func TestRefine(t *testing.T) {
	t.Run("refine all", func(t *testing.T) {
		f, err := NewUniform(comm.Solo(), Quad, 0)
		require.NoError(t, err)

		r, err := f.Refine(func(Cell) bool { return true })
		require.NoError(t, err)
		require.Equal(t, 4, r.GlobalCount())
		require.Equal(t, 1, r.MaxLocalLevel())
		require.NotEqual(t, f.Generation(), r.Generation())
	})

	t.Run("refine one", func(t *testing.T) {
		f, err := NewUniform(comm.Solo(), Quad, 1)
		require.NoError(t, err)

		r, err := f.Refine(func(c Cell) bool { return c.Index == 0 })
		require.NoError(t, err)
		require.Equal(t, 7, r.GlobalCount())

		keys := r.Keys()
		require.Equal(t, 2, keys[0].Level)
		require.Equal(t, 1, keys[4].Level)
	})

	t.Run("refine across ranks", func(t *testing.T) {
		totals := make([]int, 2)
		offsets := make([]int, 2)

		err := comm.Run(context.Background(), 2, func(ctx context.Context, c *comm.Comm) error {
			f, err := NewUniform(c, Quad, 1)
			if err != nil {
				return err
			}

			r, err := f.Refine(func(Cell) bool { return c.Rank() == 0 })
			if err != nil {
				return err
			}

			totals[c.Rank()] = r.GlobalCount()
			offsets[c.Rank()] = r.Offset()
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []int{10, 10}, totals)
		require.Equal(t, []int{0, 8}, offsets)
	})
}

func TestPartition(t *testing.T) {
	counts := make([]int, 2)
	var gathered []Cell

	err := comm.Run(context.Background(), 2, func(ctx context.Context, c *comm.Comm) error {
		f, err := NewUniform(c, Quad, 1)
		if err != nil {
			return err
		}

		f, err = f.Refine(func(Cell) bool { return c.Rank() == 0 })
		if err != nil {
			return err
		}

		f, err = f.Partition()
		if err != nil {
			return err
		}
		counts[c.Rank()] = f.LocalCount()

		cells, err := f.Gather()
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			gathered = cells
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{5, 5}, counts)

	require.Len(t, gathered, 10)
	for i, c := range gathered {
		require.Equal(t, i/5, c.Rank)
		require.Equal(t, -1, c.Index)
		if i > 0 {
			require.Negative(t, gathered[i-1].Key.Compare(c.Key))
		}
	}
}

func TestLevelHistogram(t *testing.T) {
	f, err := NewUniform(comm.Solo(), Quad, 1)
	require.NoError(t, err)

	f, err = f.Refine(func(c Cell) bool { return c.Index == 3 })
	require.NoError(t, err)

	h, err := f.LevelHistogram()
	require.NoError(t, err)
	require.Equal(t, map[int]int{1: 3, 2: 4}, h)
}

func cellArea(c Cell) float64 {
	var a float64
	for i, v := range c.Vertices {
		w := c.Vertices[(i+1)%len(c.Vertices)]
		a += cross(v, w)
	}
	return a / 2
}
