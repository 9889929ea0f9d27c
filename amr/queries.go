package amr

import (
	"github.com/aukilabs/png2mesh/raster"
	"seehuhn.de/go/geom/vec"
)

// BuildQueries returns the flat indices, y*width+x, of the matching pixels in
// row-major order.
func BuildQueries(r *raster.Raster, threshold int, invert bool) []int {
	var queries []int

	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			if Matches(r.Sample(x, y), threshold, invert) {
				queries = append(queries, y*r.Width+x)
			}
		}
	}
	return queries
}

// decodeQuery converts a flat index back to pixel coordinates.
func decodeQuery(idx, width int) (x, y int) {
	return idx % width, idx / width
}

// queryPoint maps pixel coordinates to the unit square. Image rows go top
// to bottom while the mesh y axis goes up, hence the flip.
func queryPoint(x, y, width, height int) vec.Vec2 {
	return vec.Vec2{
		X: float64(x) / float64(width),
		Y: 1 - float64(y)/float64(height),
	}
}
