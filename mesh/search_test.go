package mesh

import (
	"testing"

	"github.com/aukilabs/png2mesh/comm"
	"github.com/stretchr/testify/require"
	"seehuhn.de/go/geom/vec"
)

func TestSearch(t *testing.T) {
	f, err := NewUniform(comm.Solo(), Quad, 2)
	require.NoError(t, err)

	t.Run("visit everything", func(t *testing.T) {
		var internal, leaves int
		err := f.Search(VisitorFunc(func(c Cell, isLeaf bool, active []int) []bool {
			if isLeaf {
				leaves++
				require.Equal(t, c.Key, f.Keys()[c.Index])
			} else {
				internal++
				require.Equal(t, -1, c.Index)
			}
			return keepAll(active)
		}), []int{0})
		require.NoError(t, err)
		require.Equal(t, 5, internal)
		require.Equal(t, 16, leaves)
	})

	t.Run("prune at the root", func(t *testing.T) {
		var visits int
		err := f.Search(VisitorFunc(func(c Cell, isLeaf bool, active []int) []bool {
			visits++
			return make([]bool, len(active))
		}), []int{0, 1, 2})
		require.NoError(t, err)
		require.Equal(t, 1, visits)
	})

	t.Run("no queries", func(t *testing.T) {
		var visits int
		err := f.Search(VisitorFunc(func(c Cell, isLeaf bool, active []int) []bool {
			visits++
			return nil
		}), nil)
		require.NoError(t, err)
		require.Equal(t, 1, visits)
	})

	t.Run("points reach the leaves containing them", func(t *testing.T) {
		points := []vec.Vec2{
			{X: 0.1, Y: 0.1},
			{X: 0.9, Y: 0.1},
			{X: 0.6, Y: 0.7},
		}
		queries := []int{0, 1, 2}

		found := make(map[int][]int)
		err := f.Search(VisitorFunc(func(c Cell, isLeaf bool, active []int) []bool {
			batch := make([]vec.Vec2, 0, len(active))
			for _, q := range active {
				batch = append(batch, points[q])
			}

			inside := f.PointsInside(c, batch, 0, nil)
			if isLeaf {
				for i, q := range active {
					if inside[i] {
						found[q] = append(found[q], c.Index)
					}
				}
			}
			return inside
		}), queries)
		require.NoError(t, err)

		require.Equal(t, map[int][]int{
			0: {0},
			1: {5},
			2: {12},
		}, found)
	})
}

func keepAll(active []int) []bool {
	mask := make([]bool, len(active))
	for i := range mask {
		mask[i] = true
	}
	return mask
}
