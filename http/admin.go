package http

import (
	"io"
	"net/http"
	"net/http/pprof"

	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminOptions configures the admin server.
type AdminOptions struct {
	Version string

	// Streams job progress, mounted on /progress when set.
	Progress http.Handler

	// Reports whether jobs are still running, mounted on /ready when set.
	Ready func() bool
}

// NewAdminHandler returns the admin server routes: metrics, health, version,
// progress and profiling.
func NewAdminHandler(opts AdminOptions) http.Handler {
	var admin http.ServeMux

	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", handleHealth)
	admin.HandleFunc("/version", handleText(opts.Version))

	if opts.Ready != nil {
		admin.HandleFunc("/ready", handleReady(opts.Ready))
	}

	if opts.Progress != nil {
		admin.Handle("/progress", opts.Progress)
	}

	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	return metrics.HTTPHandler(&admin, MetricsPathFormatter)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	handleText("ok")(w, r)
}

// handleReady answers 503 once ready reports false.
func handleReady(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, "not ready")
			return
		}
		handleText("ready")(w, r)
	}
}

func handleText(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, body)
	}
}
