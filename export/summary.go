package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/png2mesh/mesh"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/segmentio/encoding/json"
)

const (
	// StageAdapt names the forest reached at max level.
	StageAdapt = "adapt"

	// StageBalance names the forest after the 2:1 balance.
	StageBalance = "balance"
)

// Formats lists the file formats Write knows.
var Formats = []string{"vtk", "pb", "json"}

// Summary describes the result of a run.
type Summary struct {
	RunID     string      `json:"run_id"`
	Stage     string      `json:"stage"`
	Image     string      `json:"image"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Level     int         `json:"level"`
	MaxLevel  int         `json:"max_level"`
	Threshold int         `json:"threshold"`
	Invert    bool        `json:"invert"`
	Shape     string      `json:"shape"`
	Ranks     int         `json:"ranks"`
	Cells     int         `json:"cells"`
	Levels    map[int]int `json:"levels"`
	Digest    string      `json:"digest"`
}

// Digest returns the Keccak-256 hash of the protobuf encoding of the cells.
// Two runs producing the same forest have the same digest.
func Digest(shape mesh.Shape, cells []mesh.Cell) string {
	return crypto.Keccak256Hash(MarshalProto(shape, cells)).Hex()
}

// Levels counts the cells per level.
func Levels(cells []mesh.Cell) map[int]int {
	levels := make(map[int]int)
	for _, c := range cells {
		levels[c.Key.Level]++
	}
	return levels
}

// WriteSummary writes s as indented JSON.
func WriteSummary(w io.Writer, s Summary) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.New("encoding summary failed").Wrap(err)
	}

	if _, err := w.Write(append(b, '\n')); err != nil {
		return errors.New("writing summary failed").Wrap(err)
	}
	return nil
}

// FileName returns the output file name of a stage, for example
// t8_png_adapt_image.png_quad.vtk.
func FileName(stage, image string, shape mesh.Shape, format string) string {
	return fmt.Sprintf("t8_png_%s_%s_%s.%s", stage, filepath.Base(image), shape, format)
}

// Write writes the cells in every requested format into dir and returns the
// created paths. The summary is completed with the cell count, levels and
// digest.
func Write(dir string, s Summary, shape mesh.Shape, cells []mesh.Cell, formats []string) ([]string, error) {
	for _, format := range formats {
		if !slices.Contains(Formats, format) {
			return nil, errors.New("unknown export format").
				WithTag("format", format)
		}
	}

	s.Cells = len(cells)
	s.Levels = Levels(cells)
	s.Digest = Digest(shape, cells)

	var paths []string
	for _, format := range formats {
		path := filepath.Join(dir, FileName(s.Stage, s.Image, shape, format))

		err := writeFile(path, func(w io.Writer) error {
			switch format {
			case "vtk":
				title := fmt.Sprintf("t8_png_%s_%s_%s", s.Stage, filepath.Base(s.Image), shape)
				return WriteVTK(w, title, cells)

			case "pb":
				return WriteProto(w, shape, cells)

			default:
				return WriteSummary(w, s)
			}
		})
		if err != nil {
			return paths, err
		}

		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.New("creating export file failed").
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	if err := write(f); err != nil {
		return errors.New("exporting mesh failed").
			WithTag("path", path).
			Wrap(err)
	}

	if err := f.Close(); err != nil {
		return errors.New("closing export file failed").
			WithTag("path", path).
			Wrap(err)
	}
	return nil
}
