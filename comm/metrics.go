package comm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opLabel = "op"
)

var (
	collectiveCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comm_collectives_total",
		Help: "The number of collective calls made by ranks.",
	}, []string{opLabel})

	abortCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comm_aborts_total",
		Help: "The number of aborted process groups.",
	})
)

func instrumentCollective(op string) {
	collectiveCount.
		With(prometheus.Labels{opLabel: op}).
		Inc()
}

func instrumentAbort() {
	abortCount.Inc()
}
