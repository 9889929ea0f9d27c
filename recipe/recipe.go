// Package recipe loads YAML files describing several refinement jobs:
//
//	defaults:
//	  maxlevel: 8
//	  threshold: 120
//	jobs:
//	  - file: images/logo.png
//	  - file: images/map.png
//	    invert: true
//	    shape: triangle
//
// Fields missing from a job are taken from the defaults section, then from
// the defaults given to Load.
package recipe

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/png2mesh/amr"
	"github.com/aukilabs/png2mesh/mesh"
	"gopkg.in/yaml.v3"
)

const (
	ErrTypeInvalidRecipe = "recipe_invalid"
)

// Job is one image to refine.
type Job struct {
	File   string
	Config amr.Config
}

type recipe struct {
	Defaults params  `yaml:"defaults"`
	Jobs     []entry `yaml:"jobs"`
}

type entry struct {
	File   string `yaml:"file"`
	Params params `yaml:",inline"`
}

type params struct {
	Level     *int    `yaml:"level"`
	MaxLevel  *int    `yaml:"maxlevel"`
	Threshold *int    `yaml:"threshold"`
	Invert    *bool   `yaml:"invert"`
	Shape     *string `yaml:"shape"`
}

// Load reads the recipe at path. Relative image paths are resolved against
// the directory of the recipe.
func Load(path string, defaults amr.Config) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("reading recipe failed").
			WithType(ErrTypeInvalidRecipe).
			WithTag("path", path).
			Wrap(err)
	}

	jobs, err := Parse(data, filepath.Dir(path), defaults)
	if err != nil {
		return nil, errors.New("loading recipe failed").
			WithType(errors.Type(err)).
			WithTag("path", path).
			Wrap(err)
	}
	return jobs, nil
}

// Parse decodes a recipe and validates every job.
func Parse(data []byte, dir string, defaults amr.Config) ([]Job, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("recipe is empty").
			WithType(ErrTypeInvalidRecipe)
	}

	var r recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, errors.New("decoding recipe failed").
			WithType(ErrTypeInvalidRecipe).
			Wrap(err)
	}

	if len(r.Jobs) == 0 {
		return nil, errors.New("recipe has no jobs").
			WithType(ErrTypeInvalidRecipe)
	}

	base, err := r.Defaults.apply(defaults)
	if err != nil {
		return nil, errors.New("invalid recipe defaults").
			WithType(ErrTypeInvalidRecipe).
			Wrap(err)
	}

	jobs := make([]Job, 0, len(r.Jobs))
	for i, e := range r.Jobs {
		if e.File == "" {
			return nil, errors.New("job has no file").
				WithType(ErrTypeInvalidRecipe).
				WithTag("job", i)
		}

		conf, err := e.Params.apply(base)
		if err == nil {
			err = conf.Validate()
		}
		if err != nil {
			return nil, errors.New("invalid job").
				WithType(ErrTypeInvalidRecipe).
				WithTag("job", i).
				WithTag("file", e.File).
				Wrap(err)
		}

		file := e.File
		if !filepath.IsAbs(file) && dir != "" {
			file = filepath.Join(dir, file)
		}

		jobs = append(jobs, Job{
			File:   file,
			Config: conf,
		})
	}
	return jobs, nil
}

func (p params) apply(c amr.Config) (amr.Config, error) {
	if p.Level != nil {
		c.Level = *p.Level
	}
	if p.MaxLevel != nil {
		c.MaxLevel = *p.MaxLevel
	}
	if p.Threshold != nil {
		c.Threshold = *p.Threshold
	}
	if p.Invert != nil {
		c.Invert = *p.Invert
	}
	if p.Shape != nil {
		shape, err := mesh.ParseShape(*p.Shape)
		if err != nil {
			return c, err
		}
		c.Shape = shape
	}
	return c, nil
}
