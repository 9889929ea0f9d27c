package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/png2mesh/amr"
	"github.com/aukilabs/png2mesh/comm"
	"github.com/aukilabs/png2mesh/export"
	"github.com/aukilabs/png2mesh/featureflag"
	adminhttp "github.com/aukilabs/png2mesh/http"
	"github.com/aukilabs/png2mesh/mesh"
	"github.com/aukilabs/png2mesh/progress"
	"github.com/aukilabs/png2mesh/raster"
	"github.com/aukilabs/png2mesh/recipe"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/encoding/json"
)

var (
	// The png2mesh version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "png2mesh_info",
		Help:        "png2mesh information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	File         string       `cli:""        env:"PNG2MESH_FILE"          help:"The PNG image the mesh is refined on."`
	Level        int          `cli:""        env:"PNG2MESH_LEVEL"         help:"The level of the initial uniform mesh."`
	MaxLevel     int          `cli:""        env:"PNG2MESH_MAX_LEVEL"     help:"The maximum refinement level."`
	Threshold    int          `cli:""        env:"PNG2MESH_THRESHOLD"     help:"The r+g+b threshold of refining pixels (0-765)."`
	Invert       bool         `cli:""        env:"PNG2MESH_INVERT"        help:"Refine on bright instead of dark pixels."`
	Shape        string       `cli:""        env:"PNG2MESH_SHAPE"         help:"Element shape (quad|triangle)."`
	Procs        int          `cli:""        env:"PNG2MESH_PROCS"         help:"The number of ranks sharing the mesh."`
	OutDir       string       `cli:""        env:"PNG2MESH_OUT_DIR"       help:"The directory where meshes are written."`
	Formats      []string     `cli:""        env:"PNG2MESH_FORMATS"       help:"Comma separated output formats (vtk|pb|json)."`
	Recipe       string       `cli:""        env:"PNG2MESH_RECIPE"        help:"A YAML file listing several jobs."`
	Dump         bool         `cli:""        env:"PNG2MESH_DUMP"          help:"Print the pixels of images up to 10x10."`
	AdminAddr    string       `cli:""        env:"PNG2MESH_ADMIN_ADDR"    help:"Admin listening address, disabled when empty."`
	LogLevel     string       `cli:""        env:"PNG2MESH_LOG_LEVEL"     help:"Log level (debug|info|warning|error)."`
	LogIndent    bool         `cli:""        env:"PNG2MESH_LOG_INDENT"    help:"Indent logs."`
	FeatureFlags []string     `cli:",hidden" env:"PNG2MESH_FEATURE_FLAGS" help:"Comma separated feature flags"`
	Events       eventsConfig `cli:",hidden" env:"-"                      help:"Event pusher configuration."`
	Version      bool         `cli:""        env:"-"                      help:"Show version."`
	Help         bool         `cli:""        env:"-"                      help:"Show help."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"PNG2MESH_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed, disabled when empty."`
	FlushInterval time.Duration `cli:",hidden" env:"PNG2MESH_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"PNG2MESH_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"PNG2MESH_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := defaultConfig()

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Refines a mesh on the dark, or bright, regions of a PNG image.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	if err := run(ctx, conf); err != nil {
		logs.Fatal(err)
	}
}

func defaultConfig() config {
	return config{
		MaxLevel:  10,
		Threshold: 100,
		Shape:     mesh.Quad.String(),
		Procs:     1,
		OutDir:    ".",
		Formats:   slices.Clone(export.Formats),
		LogLevel:  logs.InfoLevel.String(),
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}
}

func run(ctx context.Context, conf config) error {
	jobs, err := loadJobs(conf)
	if err != nil {
		return err
	}

	flags := featureflag.New(conf.FeatureFlags)
	if unknown := flags.Unknown(); len(unknown) != 0 {
		logs.Warn(errors.New("unknown feature flags").
			WithTag("flags", strings.Join(unknown, ",")))
	}

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "png2mesh",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	if err := os.MkdirAll(conf.OutDir, 0o755); err != nil {
		return errors.New("creating output directory failed").
			WithTag("dir", conf.OutDir).
			Wrap(err)
	}

	var hub progress.Hub
	defer hub.Close()

	var running atomic.Bool
	running.Store(true)

	var wg sync.WaitGroup
	adminCtx, stopAdmin := context.WithCancel(ctx)
	defer func() {
		stopAdmin()
		wg.Wait()
	}()

	if conf.AdminAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := adminhttp.ListenAndServe(adminCtx, &http.Server{
				Addr: conf.AdminAddr,
				Handler: adminhttp.NewAdminHandler(adminhttp.AdminOptions{
					Version:  version,
					Progress: hub.Handler(),
					Ready:    running.Load,
				}),
			})
			if err != nil {
				logs.Warn(errors.New("admin server failed").Wrap(err))
			}
		}()
	}

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("jobs", len(jobs)).
		WithTag("procs", conf.Procs).
		Info("starting png2mesh")

	return runJobs(ctx, conf, flags, &hub, &running, jobs)
}

// runJobs runs every job in order and stops at the first failure. running
// reports true until it returns.
func runJobs(ctx context.Context, conf config, flags featureflag.FeatureFlag, hub *progress.Hub, running *atomic.Bool, jobs []recipe.Job) error {
	running.Store(true)
	defer running.Store(false)

	for _, job := range jobs {
		if err := runJob(ctx, conf, flags, hub, job); err != nil {
			return err
		}
	}
	return nil
}

func loadJobs(conf config) ([]recipe.Job, error) {
	shape, err := mesh.ParseShape(conf.Shape)
	if err != nil {
		return nil, errors.New("invalid shape").Wrap(err)
	}

	base := amr.Config{
		Level:     conf.Level,
		MaxLevel:  conf.MaxLevel,
		Threshold: conf.Threshold,
		Invert:    conf.Invert,
		Shape:     shape,
	}

	if conf.Recipe != "" {
		return recipe.Load(conf.Recipe, base)
	}

	if err := base.Validate(); err != nil {
		return nil, err
	}
	return []recipe.Job{{File: conf.File, Config: base}}, nil
}

func runJob(ctx context.Context, conf config, flags featureflag.FeatureFlag, hub *progress.Hub, job recipe.Job) error {
	runID := uuid.NewString()

	img, err := raster.Decode(job.File)
	if err != nil {
		return errors.New("loading image failed").
			WithTag("run_id", runID).
			WithTag("file", job.File).
			Wrap(err)
	}

	if conf.Dump {
		img.Dump(os.Stdout)
	}

	summary := export.Summary{
		RunID:     runID,
		Image:     img.Name,
		Width:     img.Width,
		Height:    img.Height,
		Level:     job.Config.Level,
		MaxLevel:  job.Config.MaxLevel,
		Threshold: job.Config.Threshold,
		Invert:    job.Config.Invert,
		Shape:     job.Config.Shape.String(),
		Ranks:     conf.Procs,
	}

	d := &amr.Driver{
		Config:              job.Config,
		Raster:              img,
		DisableShortCircuit: flags.IsSet(featureflag.FlagDisableShortCircuit),
		DisablePartition:    flags.IsSet(featureflag.FlagDisablePartition),
		DisableBalance:      flags.IsSet(featureflag.FlagDisableBalance),
		OnReport: func(c *comm.Comm, r amr.LevelReport) {
			if c.Rank() != 0 {
				return
			}

			logs.WithTag("run_id", runID).
				WithTag("stage", r.Stage).
				WithTag("level", r.Level).
				WithTag("cells", r.Cells).
				WithTag("marked", r.Marked).
				WithTag("duration", r.Duration.String()).
				Info("refinement stage done")

			hub.Publish(progress.Event{
				RunID:       runID,
				Image:       img.Name,
				LevelReport: r,
			})
		},
	}

	flags.IfNotSet(featureflag.FlagSkipAdaptExport, func() {
		d.OnAdapted = func(f *mesh.Forest) error {
			s := summary
			s.Stage = export.StageAdapt
			return exportForest(f, conf.OutDir, s, conf.Formats)
		}
	})

	err = comm.Run(ctx, conf.Procs, func(ctx context.Context, c *comm.Comm) error {
		f, err := d.Run(ctx, c)
		if err != nil {
			return err
		}

		s := summary
		s.Stage = export.StageBalance
		return exportForest(f, conf.OutDir, s, conf.Formats)
	})
	if err != nil {
		return errors.New("building amr mesh failed").
			WithType(errors.Type(err)).
			WithTag("run_id", runID).
			WithTag("file", job.File).
			Wrap(err)
	}

	logs.WithTag("run_id", runID).
		WithTag("file", job.File).
		WithTag("width", img.Width).
		WithTag("height", img.Height).
		Info("successfully built amr mesh")
	return nil
}

// exportForest gathers the forest and writes it from rank 0. It is
// collective.
func exportForest(f *mesh.Forest, dir string, s export.Summary, formats []string) error {
	cells, err := f.Gather()
	if err != nil {
		return err
	}

	if f.Comm().Rank() != 0 {
		return nil
	}

	paths, err := export.Write(dir, s, f.Shape(), cells, formats)
	if err != nil {
		return err
	}

	logs.WithTag("run_id", s.RunID).
		WithTag("stage", s.Stage).
		WithTag("cells", len(cells)).
		WithTag("paths", strings.Join(paths, ",")).
		Info("mesh exported")
	return nil
}

func validateConfig(conf config) error {
	if len(conf.File) != 0 &&
		len(conf.Recipe) != 0 {
		return errors.New("have to specify either an image file or a recipe, not both")
	}

	if len(conf.File) == 0 &&
		len(conf.Recipe) == 0 {
		return errors.New("have to specify either an image file or a recipe")
	}

	if conf.Procs < 1 {
		return errors.New("procs must be at least 1").
			WithTag("procs", conf.Procs)
	}

	if len(conf.Formats) == 0 {
		return errors.New("have to specify at least one output format")
	}

	for _, f := range conf.Formats {
		if !slices.Contains(export.Formats, f) {
			return errors.New("unknown output format").
				WithTag("format", f).
				WithTag("formats", strings.Join(export.Formats, ","))
		}
	}

	return nil
}
