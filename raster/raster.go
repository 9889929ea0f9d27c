package raster

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeOpen      = "raster_open"
	ErrTypeNotImage  = "raster_not_image"
	ErrTypeBitDepth  = "raster_bit_depth"
	ErrTypeColorType = "raster_color_type"
)

// dumpLimit is the largest width or height for which Dump prints pixels.
const dumpLimit = 10

// Pixel holds the 8-bit channel values of one sample. A is 255 for rasters
// without an alpha channel.
type Pixel struct {
	R, G, B, A uint8
}

// Sum returns R + G + B.
func (p Pixel) Sum() int {
	return int(p.R) + int(p.G) + int(p.B)
}

// Raster is an immutable width x height grid of 8-bit RGB or RGBA samples,
// stored row-major from the top row down.
type Raster struct {
	Name     string
	Width    int
	Height   int
	Channels int

	pix []uint8
}

// New creates a raster from packed row-major samples with the given number of
// channels per pixel (3 or 4).
func New(width, height, channels int, pix []uint8) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("raster has no pixels").
			WithType(ErrTypeNotImage).
			WithTag("width", width).
			WithTag("height", height)
	}

	if channels != 3 && channels != 4 {
		return nil, errors.New("unsupported number of channels").
			WithType(ErrTypeColorType).
			WithTag("channels", channels)
	}

	if len(pix) != width*height*channels {
		return nil, errors.New("pixel buffer does not match raster size").
			WithType(ErrTypeNotImage).
			WithTag("expected", width*height*channels).
			WithTag("actual", len(pix))
	}

	return &Raster{
		Width:    width,
		Height:   height,
		Channels: channels,
		pix:      pix,
	}, nil
}

// Uniform returns a raster where every sample is p.
func Uniform(width, height int, p Pixel) *Raster {
	pix := make([]uint8, 0, width*height*4)
	for i := 0; i < width*height; i++ {
		pix = append(pix, p.R, p.G, p.B, p.A)
	}

	return &Raster{
		Width:    width,
		Height:   height,
		Channels: 4,
		pix:      pix,
	}
}

// FromImage copies the samples of an 8-bit RGB or RGBA image. Any other
// color model is rejected.
func FromImage(img image.Image) (*Raster, error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	switch img := img.(type) {
	case *image.NRGBA:
		return fromRows(width, height, 4, img.Pix, img.Stride, img.PixOffset(b.Min.X, b.Min.Y))

	case *image.RGBA:
		if img.Opaque() {
			return fromRows(width, height, 3, img.Pix, img.Stride, img.PixOffset(b.Min.X, b.Min.Y))
		}
		return New(width, height, 4, unpremultiply(img))

	case *image.RGBA64, *image.NRGBA64, *image.Gray16:
		return nil, errors.New("only 8-bit samples are supported").
			WithType(ErrTypeBitDepth).
			WithTag("color_model", fmt.Sprintf("%T", img))

	default:
		return nil, errors.New("color type is not supported").
			WithType(ErrTypeColorType).
			WithTag("color_model", fmt.Sprintf("%T", img))
	}
}

// unpremultiply returns the straight alpha samples of a translucent image.
// Associated alpha TIFFs decode to premultiplied pixels.
func unpremultiply(img *image.RGBA) []uint8 {
	b := img.Bounds()
	pix := make([]uint8, 0, b.Dx()*b.Dy()*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.RGBAAt(x, y)).(color.NRGBA)
			pix = append(pix, c.R, c.G, c.B, c.A)
		}
	}
	return pix
}

// fromRows packs 4-byte source pixels into a raster with the given number of
// channels.
func fromRows(width, height, channels int, src []uint8, stride, offset int) (*Raster, error) {
	pix := make([]uint8, 0, width*height*channels)
	for y := 0; y < height; y++ {
		row := src[offset+y*stride : offset+y*stride+width*4]
		for x := 0; x < width; x++ {
			pix = append(pix, row[x*4:x*4+channels]...)
		}
	}
	return New(width, height, channels, pix)
}

// Sample returns the pixel at (x, y). The coordinates must be inside the
// raster.
func (r *Raster) Sample(x, y int) Pixel {
	if x < 0 || x >= r.Width || y < 0 || y >= r.Height {
		panic(fmt.Sprintf("raster: sample (%d, %d) outside %dx%d", x, y, r.Width, r.Height))
	}

	i := (y*r.Width + x) * r.Channels
	p := Pixel{R: r.pix[i], G: r.pix[i+1], B: r.pix[i+2], A: 255}
	if r.Channels == 4 {
		p.A = r.pix[i+3]
	}
	return p
}

// Dump writes a human readable description of the raster. Pixels are only
// listed for images of at most 10x10.
func (r *Raster) Dump(w io.Writer) {
	fmt.Fprintf(w, "File:\t%s\n", r.Name)
	fmt.Fprintf(w, "Size:\t%d x %d\n", r.Width, r.Height)
	fmt.Fprintf(w, "Values pp:\t%d\n", r.Channels)

	if r.Width > dumpLimit || r.Height > dumpLimit {
		return
	}

	for y := 0; y < r.Height; y++ {
		fmt.Fprintf(w, "%d:\t", y)
		for x := 0; x < r.Width; x++ {
			p := r.Sample(x, y)
			fmt.Fprintf(w, "(%d, %d, %d) ", p.R, p.G, p.B)
			if r.Channels == 4 {
				fmt.Fprintf(w, "[%d]  ", p.A)
			}
		}
		fmt.Fprintln(w)
	}
}
