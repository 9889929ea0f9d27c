package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds the time given to servers to finish their requests.
var ShutdownTimeout = 5 * time.Second

// ListenAndServe runs the servers until ctx is done or one of them fails, in
// which case the others are shut down and the error is returned.
func ListenAndServe(ctx context.Context, servers ...*http.Server) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logs.Warn(errors.New("shutting down the server failed").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}
		return nil
	})

	for _, s := range servers {
		g.Go(func() error {
			logs.WithTag("addr", s.Addr).Info("starting server")

			switch err := s.ListenAndServe(); err {
			case nil, http.ErrServerClosed:
				logs.WithTag("addr", s.Addr).Info("stopping server")
				return nil

			default:
				return errors.New("server stopped").
					WithTag("addr", s.Addr).
					Wrap(err)
			}
		})
	}

	return g.Wait()
}

// MetricsPathFormatter returns the path label of a request. Errors get an
// empty label and profiling paths are collapsed to bound label cardinality.
func MetricsPathFormatter(statusCode int, path string) string {
	if statusCode == http.StatusMovedPermanently ||
		statusCode == http.StatusBadRequest ||
		statusCode == http.StatusNotFound ||
		statusCode == http.StatusMethodNotAllowed {
		return ""
	}

	if strings.HasPrefix(path, "/debug/pprof/") {
		return "/debug/pprof/"
	}
	return path
}
