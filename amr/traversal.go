package amr

import (
	"github.com/aukilabs/png2mesh/mesh"
	"github.com/aukilabs/png2mesh/raster"
	"seehuhn.de/go/geom/vec"
)

// Tolerance is the distance within which a pixel on a cell boundary counts
// as inside the cell.
const Tolerance = 1e-10

// marker is the search visitor marking the leaves that contain a matching
// pixel.
type marker struct {
	forest    *mesh.Forest
	raster    *raster.Raster
	threshold int
	invert    bool
	markers   *Markers

	// Stop at the first match inside a leaf.
	shortCircuit bool

	points []vec.Vec2
	inside []bool

	visited    int
	pointTests int
}

func (m *marker) Visit(cell mesh.Cell, isLeaf bool, active []int) []bool {
	m.visited++

	mask := make([]bool, len(active))
	if len(active) == 0 {
		return mask
	}

	m.points = m.points[:0]
	for _, q := range active {
		x, y := decodeQuery(q, m.raster.Width)
		m.points = append(m.points, queryPoint(x, y, m.raster.Width, m.raster.Height))
	}

	m.inside = m.forest.PointsInside(cell, m.points, Tolerance, m.inside)
	m.pointTests += len(m.points)

	for i, q := range active {
		if !m.inside[i] {
			continue
		}

		x, y := decodeQuery(q, m.raster.Width)
		if !Matches(m.raster.Sample(x, y), m.threshold, m.invert) {
			continue
		}

		if !isLeaf {
			mask[i] = true
			continue
		}

		m.markers.Set(cell.Index)
		if m.shortCircuit {
			break
		}
	}

	return mask
}
