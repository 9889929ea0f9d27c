package raster

import (
	"image"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/aukilabs/go-tooling/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode reads an image file into a raster. Only 8-bit RGB and RGBA images
// are accepted.
func Decode(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New("could not open file").
			WithType(ErrTypeOpen).
			WithTag("file_name", path).
			Wrap(err)
	}
	defer f.Close()

	r, err := DecodeReader(f)
	if err != nil {
		return nil, errors.New("reading image failed").
			WithType(errors.Type(err)).
			WithTag("file_name", path).
			Wrap(err)
	}

	r.Name = filepath.Base(path)
	return r, nil
}

// DecodeReader decodes an image from a seekable stream.
func DecodeReader(rs io.ReadSeeker) (*Raster, error) {
	if _, format, err := image.DecodeConfig(rs); err != nil {
		return nil, errors.New("file is not a supported image").
			WithType(ErrTypeNotImage).
			Wrap(err)
	} else if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, errors.New("rewinding image failed").
			WithType(ErrTypeOpen).
			WithTag("format", format).
			Wrap(err)
	}

	img, format, err := image.Decode(rs)
	if err != nil {
		return nil, errors.New("decoding image failed").
			WithType(ErrTypeNotImage).
			Wrap(err)
	}

	r, err := FromImage(img)
	if err != nil {
		return nil, errors.New("unsupported image").
			WithType(errors.Type(err)).
			WithTag("format", format).
			Wrap(err)
	}
	return r, nil
}
