package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/png2mesh/amr"
	"github.com/aukilabs/png2mesh/mesh"
	"github.com/stretchr/testify/require"
)

var defaults = amr.Config{MaxLevel: 10, Threshold: 100}

func TestParse(t *testing.T) {
	t.Run("defaults are layered", func(t *testing.T) {
		jobs, err := Parse([]byte(`
defaults:
  maxlevel: 6
  threshold: 120
jobs:
  - file: a.png
  - file: /images/b.png
    level: 2
    invert: true
    shape: triangle
`), "recipes", defaults)
		require.NoError(t, err)
		require.Equal(t, []Job{
			{
				File:   filepath.Join("recipes", "a.png"),
				Config: amr.Config{MaxLevel: 6, Threshold: 120},
			},
			{
				File: "/images/b.png",
				Config: amr.Config{
					Level:     2,
					MaxLevel:  6,
					Threshold: 120,
					Invert:    true,
					Shape:     mesh.Triangle,
				},
			},
		}, jobs)
	})

	t.Run("job values of zero override defaults", func(t *testing.T) {
		jobs, err := Parse([]byte(`
jobs:
  - file: a.png
    threshold: 0
`), "", defaults)
		require.NoError(t, err)
		require.Equal(t, 0, jobs[0].Config.Threshold)
		require.Equal(t, "a.png", jobs[0].File)
	})

	cases := []struct {
		name string
		yaml string
	}{
		{name: "empty", yaml: "  \n"},
		{name: "not yaml", yaml: "jobs: [file"},
		{name: "no jobs", yaml: "defaults:\n  level: 1\n"},
		{name: "missing file", yaml: "jobs:\n  - level: 1\n"},
		{name: "level above max level", yaml: "jobs:\n  - file: a.png\n    level: 11\n"},
		{name: "threshold out of range", yaml: "jobs:\n  - file: a.png\n    threshold: 800\n"},
		{name: "unknown shape", yaml: "jobs:\n  - file: a.png\n    shape: hexagon\n"},
		{name: "unknown default shape", yaml: "defaults:\n  shape: cube\njobs:\n  - file: a.png\n"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse([]byte(c.yaml), "", defaults)
			require.True(t, errors.IsType(err, ErrTypeInvalidRecipe))
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs:\n  - file: input.png\n"), 0o644))

	jobs, err := Load(path, defaults)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, filepath.Join(dir, "input.png"), jobs[0].File)

	_, err = Load(filepath.Join(dir, "missing.yaml"), defaults)
	require.True(t, errors.IsType(err, ErrTypeInvalidRecipe))
}
