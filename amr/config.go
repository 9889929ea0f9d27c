package amr

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/png2mesh/mesh"
)

const (
	ErrTypeInvalidConfig = "amr_invalid_config"
)

// Config holds the parameters of one refinement run.
type Config struct {
	// The level of the initial uniform mesh.
	Level int

	// The level no cell is refined beyond.
	MaxLevel int

	// The channel sum threshold, in [0, MaxThreshold].
	Threshold int

	// Refine towards bright instead of dark pixels.
	Invert bool

	Shape mesh.Shape
}

// Validate checks the parameters before any mesh is built.
func (c Config) Validate() error {
	if c.Level < 0 {
		return errors.New("level must not be negative").
			WithType(ErrTypeInvalidConfig).
			WithTag("level", c.Level)
	}

	if c.MaxLevel < c.Level {
		return errors.New("max level must not be lower than level").
			WithType(ErrTypeInvalidConfig).
			WithTag("level", c.Level).
			WithTag("max_level", c.MaxLevel)
	}

	if c.MaxLevel > mesh.MaxLevel {
		return errors.New("max level is too deep").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_level", c.MaxLevel).
			WithTag("limit", mesh.MaxLevel)
	}

	if c.Threshold < 0 || c.Threshold > MaxThreshold {
		return errors.New("threshold out of range").
			WithType(ErrTypeInvalidConfig).
			WithTag("threshold", c.Threshold).
			WithTag("max_threshold", MaxThreshold)
	}

	if !c.Shape.Valid() {
		return errors.New("unknown element shape").
			WithType(ErrTypeInvalidConfig).
			WithTag("shape", int(c.Shape))
	}

	return nil
}
