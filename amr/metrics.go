package amr

import (
	"time"

	"github.com/aukilabs/png2mesh/mesh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	shapeLabel = "shape"
)

var (
	levelCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amr_levels_total",
		Help: "The number of refinement levels completed.",
	}, []string{shapeLabel})

	queryGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "amr_queries",
		Help: "The number of matching pixels of the last image.",
	}, []string{shapeLabel})

	cellsVisited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amr_cells_visited_total",
		Help: "The number of cells visited by searches.",
	}, []string{shapeLabel})

	pointTests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amr_point_tests_total",
		Help: "The number of point in cell tests.",
	}, []string{shapeLabel})

	markedCells = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amr_marked_cells_total",
		Help: "The number of leaves marked for refinement.",
	}, []string{shapeLabel})

	refinedCells = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amr_refined_cells_total",
		Help: "The number of leaves refined.",
	}, []string{shapeLabel})

	levelDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "amr_level_duration_seconds",
		Help: "The time to search and refine one level.",
	}, []string{shapeLabel})
)

func instrumentQueries(shape mesh.Shape, n int) {
	queryGauge.
		With(prometheus.Labels{shapeLabel: shape.String()}).
		Set(float64(n))
}

func instrumentSearch(shape mesh.Shape, m *marker) {
	labels := prometheus.Labels{shapeLabel: shape.String()}
	cellsVisited.With(labels).Add(float64(m.visited))
	pointTests.With(labels).Add(float64(m.pointTests))
}

func instrumentLevel(shape mesh.Shape, marked, refined int, start time.Time) {
	labels := prometheus.Labels{shapeLabel: shape.String()}
	levelCount.With(labels).Inc()
	markedCells.With(labels).Add(float64(marked))
	refinedCells.With(labels).Add(float64(refined))
	levelDuration.With(labels).Observe(time.Since(start).Seconds())
}
