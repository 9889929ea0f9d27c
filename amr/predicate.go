// Package amr decides which mesh cells to refine so that the mesh resolution
// follows the dark, or when inverted bright, regions of an image.
//
// The image is scanned once into a set of matching pixels. Each level, the
// set is pushed down the forest in a single search; leaves receiving a
// matching pixel are marked and refined.
package amr

import (
	"github.com/aukilabs/png2mesh/raster"
)

// MaxThreshold is the largest meaningful threshold: the channel sum of a
// white pixel.
const MaxThreshold = 3 * 255

// Matches reports whether a pixel drives refinement. The alpha channel is
// ignored. With invert unset, pixels whose channel sum is at most threshold
// match; with invert set, pixels whose sum is at least threshold match.
func Matches(p raster.Pixel, threshold int, invert bool) bool {
	sum := p.Sum()
	if invert {
		return sum >= threshold
	}
	return sum <= threshold
}
