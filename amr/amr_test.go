package amr

import (
	"context"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/png2mesh/comm"
	"github.com/aukilabs/png2mesh/mesh"
	"github.com/aukilabs/png2mesh/raster"
	"github.com/stretchr/testify/require"
)

var (
	black = raster.Pixel{A: 255}
	white = raster.Pixel{R: 255, G: 255, B: 255, A: 255}
)

func TestMatches(t *testing.T) {
	t.Run("dark and bright", func(t *testing.T) {
		require.True(t, Matches(black, 1, false))
		require.False(t, Matches(white, 1, false))
		require.True(t, Matches(white, 700, true))
		require.False(t, Matches(black, 700, true))
	})

	t.Run("alpha is ignored", func(t *testing.T) {
		p := raster.Pixel{R: 10, G: 10, B: 10, A: 0}
		require.True(t, Matches(p, 30, false))
		require.False(t, Matches(p, 29, false))
	})

	t.Run("invert negates except on the threshold", func(t *testing.T) {
		for sum := 0; sum <= MaxThreshold; sum++ {
			p := pixelWithSum(sum)
			require.Equal(t, sum, p.Sum())

			for _, threshold := range []int{0, 1, 100, 382, 700, MaxThreshold} {
				if sum == threshold {
					require.True(t, Matches(p, threshold, false))
					require.True(t, Matches(p, threshold, true))
					continue
				}
				require.Equal(t, Matches(p, threshold, false), !Matches(p, threshold, true))
			}
		}
	})
}

func TestBuildQueries(t *testing.T) {
	t.Run("every black pixel in row-major order", func(t *testing.T) {
		queries := BuildQueries(raster.Uniform(4, 3, black), 1, false)
		require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, queries)
	})

	t.Run("no white pixel", func(t *testing.T) {
		require.Empty(t, BuildQueries(raster.Uniform(4, 4, white), 1, false))
	})

	t.Run("selected pixels", func(t *testing.T) {
		r := pattern(t, 3, 2, func(x, y int) bool {
			return x == y || (x == 2 && y == 0)
		})
		require.Equal(t, []int{0, 2, 4}, BuildQueries(r, 1, false))
		require.Equal(t, []int{1, 3, 5}, BuildQueries(r, 765, true))
	})

	t.Run("index decoding", func(t *testing.T) {
		x, y := decodeQuery(7, 3)
		require.Equal(t, 1, x)
		require.Equal(t, 2, y)

		p := queryPoint(1, 0, 4, 4)
		require.Equal(t, 0.25, p.X)
		require.Equal(t, 1.0, p.Y)
	})
}

func TestMarkers(t *testing.T) {
	f, err := mesh.NewUniform(comm.Solo(), mesh.Quad, 1)
	require.NoError(t, err)

	t.Run("marking is idempotent", func(t *testing.T) {
		var m Markers
		m.Reset(f)
		require.Equal(t, 4, m.Len())

		m.Set(2)
		m.Set(2)
		require.Equal(t, 1, m.Count())
		require.True(t, m.IsSet(f, 2))
		require.False(t, m.IsSet(f, 1))
	})

	t.Run("reset clears", func(t *testing.T) {
		var m Markers
		m.Reset(f)
		m.Set(0)
		m.Reset(f)
		require.Zero(t, m.Count())
		require.False(t, m.IsSet(f, 0))
	})

	t.Run("stale markers panic", func(t *testing.T) {
		var m Markers
		m.Reset(f)

		next, err := f.Refine(func(mesh.Cell) bool { return false })
		require.NoError(t, err)
		require.Panics(t, func() { m.IsSet(next, 0) })
	})

	t.Run("unset markers panic", func(t *testing.T) {
		var m Markers
		require.Panics(t, func() { m.IsSet(f, 0) })

		m.Reset(f)
		m.Release()
		require.Panics(t, func() { m.IsSet(f, 0) })
	})

	t.Run("out of range panics", func(t *testing.T) {
		var m Markers
		m.Reset(f)
		require.Panics(t, func() { m.Set(4) })
		require.Panics(t, func() { m.Set(-1) })
	})
}

func TestShouldRefine(t *testing.T) {
	f, err := mesh.NewUniform(comm.Solo(), mesh.Quad, 1)
	require.NoError(t, err)

	var m Markers
	m.Reset(f)
	m.Set(1)

	refine := ShouldRefine(f, &m, 2)
	require.False(t, refine(f.Cell(0)))
	require.True(t, refine(f.Cell(1)))

	require.False(t, ShouldRefine(f, &m, 1)(f.Cell(1)))
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Level: 0, MaxLevel: 10, Threshold: 100}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "negative level", modify: func(c *Config) { c.Level = -1 }},
		{name: "level above max level", modify: func(c *Config) { c.Level = 11 }},
		{name: "max level too deep", modify: func(c *Config) { c.MaxLevel = mesh.MaxLevel + 1 }},
		{name: "negative threshold", modify: func(c *Config) { c.Threshold = -1 }},
		{name: "threshold above white", modify: func(c *Config) { c.Threshold = MaxThreshold + 1 }},
		{name: "unknown shape", modify: func(c *Config) { c.Shape = mesh.Shape(3) }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			conf := valid
			c.modify(&conf)
			require.True(t, errors.IsType(conf.Validate(), ErrTypeInvalidConfig))
		})
	}

	t.Run("edge values", func(t *testing.T) {
		conf := Config{Level: 3, MaxLevel: 3, Threshold: MaxThreshold, Shape: mesh.Triangle}
		require.NoError(t, conf.Validate())
	})
}

func pixelWithSum(sum int) raster.Pixel {
	var c [3]uint8
	for i := range c {
		v := min(sum, 255)
		c[i] = uint8(v)
		sum -= v
	}
	return raster.Pixel{R: c[0], G: c[1], B: c[2], A: 255}
}

// pattern returns an RGB raster that is black where dark returns true and
// white elsewhere.
func pattern(t *testing.T, width, height int, dark func(x, y int) bool) *raster.Raster {
	pix := make([]uint8, 0, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(255)
			if dark(x, y) {
				v = 0
			}
			pix = append(pix, v, v, v)
		}
	}

	r, err := raster.New(width, height, 3, pix)
	require.NoError(t, err)
	return r
}

func runSolo(t *testing.T, d *Driver) *mesh.Forest {
	f, err := d.Run(context.Background(), comm.Solo())
	require.NoError(t, err)
	return f
}
