package amr

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/png2mesh/comm"
	"github.com/aukilabs/png2mesh/mesh"
	"github.com/aukilabs/png2mesh/raster"
)

// Stage is the state of a run.
type Stage string

const (
	StageUniform  Stage = "uniform"
	StageRefining Stage = "refining"
	StageDone     Stage = "done"
)

// LevelReport describes the forest at the end of a stage. Counts are global
// over all ranks.
type LevelReport struct {
	Stage    Stage         `json:"stage"`
	Level    int           `json:"level"`
	Cells    int           `json:"cells"`
	Marked   int           `json:"marked"`
	Queries  int           `json:"queries"`
	Duration time.Duration `json:"duration"`
}

// Driver refines a forest level by level towards the matching pixels of an
// image. A Driver is shared by all the ranks of a group, each calling Run.
type Driver struct {
	Config Config
	Raster *raster.Raster

	// Keep testing the pixels of a leaf after the first match.
	DisableShortCircuit bool

	// Skip the partition after each refinement.
	DisablePartition bool

	// Skip the final 2:1 balance.
	DisableBalance bool

	// Called on every rank at the end of each stage.
	OnReport func(c *comm.Comm, r LevelReport)

	// Called on every rank with the forest at max level, before balance.
	OnAdapted func(f *mesh.Forest) error

	mutex   sync.Mutex
	queries []int
	built   bool
}

// Queries returns the matching pixels of the image. They are computed once
// per run and shared by every rank, then released when the refinement loop
// ends on all ranks.
func (d *Driver) Queries() []int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.built {
		d.queries = BuildQueries(d.Raster, d.Config.Threshold, d.Config.Invert)
		d.built = true
		instrumentQueries(d.Config.Shape, len(d.queries))
	}
	return d.queries
}

func (d *Driver) releaseQueries() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.queries = nil
	d.built = false
}

// Run executes the refinement on one rank and returns the local part of the
// final forest. Run is collective.
func (d *Driver) Run(ctx context.Context, c *comm.Comm) (*mesh.Forest, error) {
	conf := d.Config
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	queries := d.Queries()
	numQueries := len(queries)

	f, err := mesh.NewUniform(c, conf.Shape, conf.Level)
	if err != nil {
		return nil, errors.New("creating uniform forest failed").
			WithTag("level", conf.Level).
			Wrap(err)
	}

	if err := d.report(c, f, StageUniform, conf.Level, 0, numQueries, start); err != nil {
		return nil, err
	}

	var markers Markers
	for level := conf.Level; level < conf.MaxLevel; level++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.New("refinement canceled").
				WithTag("level", level).
				Wrap(err)
		}

		start := time.Now()
		if c.Rank() == 0 {
			logs.WithTag("level", level).
				WithTag("cells", f.GlobalCount()).
				Debug("starting search on level")
		}

		markers.Reset(f)

		m := marker{
			forest:       f,
			raster:       d.Raster,
			threshold:    conf.Threshold,
			invert:       conf.Invert,
			markers:      &markers,
			shortCircuit: !d.DisableShortCircuit,
		}
		if err := f.Search(&m, queries); err != nil {
			return nil, errors.New("searching forest failed").
				WithTag("level", level).
				Wrap(err)
		}
		instrumentSearch(conf.Shape, &m)

		marked := markers.Count()
		next, err := f.Refine(ShouldRefine(f, &markers, conf.MaxLevel))
		if err != nil {
			return nil, errors.New("refining forest failed").
				WithTag("level", level).
				Wrap(err)
		}
		markers.Release()
		refined := (next.LocalCount() - f.LocalCount()) / (mesh.NumChildren - 1)

		if !d.DisablePartition {
			if next, err = next.Partition(); err != nil {
				return nil, errors.New("partitioning forest failed").
					WithTag("level", level).
					Wrap(err)
			}
		}

		f = next
		instrumentLevel(conf.Shape, marked, refined, start)

		if err := d.report(c, f, StageRefining, level+1, marked, numQueries, start); err != nil {
			return nil, err
		}
	}

	// No rank reads the query set past this point.
	if err := c.Barrier(); err != nil {
		return nil, errors.New("leaving refinement failed").Wrap(err)
	}
	if c.Rank() == 0 {
		d.releaseQueries()
	}

	if d.OnAdapted != nil {
		if err := d.OnAdapted(f); err != nil {
			return nil, errors.New("handling adapted forest failed").Wrap(err)
		}
	}

	start = time.Now()
	if !d.DisableBalance {
		if f, err = f.Balance(); err != nil {
			return nil, errors.New("balancing forest failed").Wrap(err)
		}
	}

	if err := d.report(c, f, StageDone, conf.MaxLevel, 0, numQueries, start); err != nil {
		return nil, err
	}
	return f, nil
}

// report sums the local marked count over the group and hands the result to
// OnReport. It is collective whether or not OnReport is set.
func (d *Driver) report(c *comm.Comm, f *mesh.Forest, stage Stage, level, marked, queries int, start time.Time) error {
	total, err := comm.AllreduceSum(c, marked)
	if err != nil {
		return errors.New("reporting level failed").
			WithTag("stage", stage).
			WithTag("level", level).
			Wrap(err)
	}

	if d.OnReport != nil {
		d.OnReport(c, LevelReport{
			Stage:    stage,
			Level:    level,
			Cells:    f.GlobalCount(),
			Marked:   total,
			Queries:  queries,
			Duration: time.Since(start),
		})
	}
	return nil
}
