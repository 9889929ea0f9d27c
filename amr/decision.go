package amr

import (
	"github.com/aukilabs/png2mesh/mesh"
)

// ShouldRefine returns the refine callback for the leaves of f: a leaf is
// refined when it is marked and shallower than maxLevel. The markers must have been
// filled for f.
func ShouldRefine(f *mesh.Forest, markers *Markers, maxLevel int) func(mesh.Cell) bool {
	return func(c mesh.Cell) bool {
		if c.Level() >= maxLevel {
			return false
		}
		return markers.IsSet(f, c.Index)
	}
}
