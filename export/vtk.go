// Package export writes forests to files: legacy VTK for visualization, a
// compact protobuf encoding, and a JSON run summary.
package export

import (
	"bufio"
	"fmt"
	"io"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/png2mesh/mesh"
)

const (
	vtkTriangle = 5
	vtkQuad     = 9
)

// WriteVTK writes the cells as a legacy ASCII VTK unstructured grid with the
// cell data arrays level, tree and rank.
func WriteVTK(w io.Writer, title string, cells []mesh.Cell) error {
	bw := bufio.NewWriter(w)

	var points int
	for _, c := range cells {
		points += len(c.Vertices)
	}

	fmt.Fprintln(bw, "# vtk DataFile Version 2.0")
	fmt.Fprintln(bw, title)
	fmt.Fprintln(bw, "ASCII")
	fmt.Fprintln(bw, "DATASET UNSTRUCTURED_GRID")

	fmt.Fprintf(bw, "POINTS %d double\n", points)
	for _, c := range cells {
		for _, v := range c.Vertices {
			fmt.Fprintf(bw, "%g %g 0\n", v.X, v.Y)
		}
	}

	fmt.Fprintf(bw, "CELLS %d %d\n", len(cells), len(cells)+points)
	var next int
	for _, c := range cells {
		fmt.Fprint(bw, len(c.Vertices))
		for range c.Vertices {
			fmt.Fprintf(bw, " %d", next)
			next++
		}
		fmt.Fprintln(bw)
	}

	fmt.Fprintf(bw, "CELL_TYPES %d\n", len(cells))
	for _, c := range cells {
		if c.Shape == mesh.Triangle {
			fmt.Fprintln(bw, vtkTriangle)
		} else {
			fmt.Fprintln(bw, vtkQuad)
		}
	}

	fmt.Fprintf(bw, "CELL_DATA %d\n", len(cells))
	writeScalars(bw, "level", cells, func(c mesh.Cell) int { return c.Key.Level })
	writeScalars(bw, "tree", cells, func(c mesh.Cell) int { return c.Key.Tree })
	writeScalars(bw, "rank", cells, func(c mesh.Cell) int { return c.Rank })

	if err := bw.Flush(); err != nil {
		return errors.New("writing vtk failed").
			WithTag("title", title).
			Wrap(err)
	}
	return nil
}

func writeScalars(w io.Writer, name string, cells []mesh.Cell, value func(mesh.Cell) int) {
	fmt.Fprintf(w, "SCALARS %s int 1\n", name)
	fmt.Fprintln(w, "LOOKUP_TABLE default")
	for _, c := range cells {
		fmt.Fprintln(w, value(c))
	}
}
