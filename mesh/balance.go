package mesh

import (
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/png2mesh/comm"
	"seehuhn.de/go/geom/vec"
)

// probeOffset is how far, relative to the distance between centroid and edge
// midpoint, a probe point is pushed across an edge.
const probeOffset = 1e-3

// Balance refines the forest until every pair of leaves sharing an edge
// differs by at most one level, then partitions the result. Balance is
// collective.
func (f *Forest) Balance() (*Forest, error) {
	cur := f

	for round := 0; ; round++ {
		all, err := cur.gatherKeys()
		if err != nil {
			return nil, errors.New("balancing forest failed").
				WithTag("round", round).
				Wrap(err)
		}

		local := cur.coarseNeighbors(all)

		perRank, err := comm.Allgather(cur.comm, local)
		if err != nil {
			return nil, errors.New("balancing forest failed").
				WithTag("round", round).
				Wrap(err)
		}

		marked := make(map[Key]struct{})
		for _, keys := range perRank {
			for _, k := range keys {
				marked[k] = struct{}{}
			}
		}
		if len(marked) == 0 {
			break
		}

		cur, err = cur.Refine(func(c Cell) bool {
			_, ok := marked[c.Key]
			return ok
		})
		if err != nil {
			return nil, errors.New("balancing forest failed").
				WithTag("round", round).
				Wrap(err)
		}
	}

	return cur.Partition()
}

// coarseNeighbors returns the keys of the leaves, local or not, that are more
// than one level coarser than a local leaf they share an edge with.
func (f *Forest) coarseNeighbors(all []Key) []Key {
	seen := make(map[Key]struct{})
	var res []Key

	for _, k := range f.leaves {
		if k.Level < 2 {
			continue
		}

		v := f.shape.vertices(k)
		c := Cell{Shape: f.shape, Vertices: v}.Centroid()

		for i := range v {
			m := midpoint(v[i], v[(i+1)%len(v)])
			p := m.Add(m.Sub(c).Mul(probeOffset))
			if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
				continue
			}

			n, ok := f.locate(all, p)
			if !ok || n.Level >= k.Level-1 {
				continue
			}

			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				res = append(res, n)
			}
		}
	}

	return res
}

// locate returns the leaf among all, sorted in curve order, that contains p.
func (f *Forest) locate(all []Key, p vec.Vec2) (Key, bool) {
	for tree := 0; tree < f.shape.NumTrees(); tree++ {
		k := Key{Tree: tree}
		v := f.shape.root(tree)
		if !newContainment(Cell{Shape: f.shape, Vertices: v}, 0).inside(p) {
			continue
		}

		for {
			i := sort.Search(len(all), func(i int) bool {
				return all[i].Compare(k) >= 0
			})
			if i == len(all) || !k.IsAncestorOf(all[i]) {
				break
			}
			if all[i] == k {
				return k, true
			}
			if k.Level == MaxLevel {
				break
			}

			found := false
			for child := 0; child < NumChildren; child++ {
				cv := f.shape.child(v, child)
				if newContainment(Cell{Shape: f.shape, Vertices: cv}, 0).inside(p) {
					k, v = k.Child(child), cv
					found = true
					break
				}
			}
			if !found {
				break
			}
		}
	}

	return Key{}, false
}
