package progress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "progress_dropped_events_total",
	Help: "The number of progress events dropped for slow subscribers.",
})

func instrumentDrop() {
	droppedEvents.Inc()
}
