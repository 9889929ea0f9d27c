package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsPathFormatter(t *testing.T) {
	require.Equal(t, "/health", MetricsPathFormatter(http.StatusOK, "/health"))
	require.Equal(t, "/debug/pprof/", MetricsPathFormatter(http.StatusOK, "/debug/pprof/heap"))
	require.Empty(t, MetricsPathFormatter(http.StatusNotFound, "/nope"))
	require.Empty(t, MetricsPathFormatter(http.StatusMethodNotAllowed, "/health"))
}

func TestAdminHandler(t *testing.T) {
	var ready atomic.Bool
	server := httptest.NewServer(NewAdminHandler(AdminOptions{
		Version: "v1.2.3",
		Ready:   ready.Load,
		Progress: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	}))
	defer server.Close()

	get := func(path string) (int, string) {
		res, err := http.Get(server.URL + path)
		require.NoError(t, err)
		defer res.Body.Close()

		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		return res.StatusCode, string(b)
	}

	t.Run("health", func(t *testing.T) {
		code, body := get("/health")
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "ok", body)
	})

	t.Run("version", func(t *testing.T) {
		code, body := get("/version")
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "v1.2.3", body)
	})

	t.Run("ready", func(t *testing.T) {
		code, body := get("/ready")
		require.Equal(t, http.StatusServiceUnavailable, code)
		require.Equal(t, "not ready", body)

		ready.Store(true)
		code, body = get("/ready")
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "ready", body)
	})

	t.Run("progress", func(t *testing.T) {
		code, _ := get("/progress")
		require.Equal(t, http.StatusTeapot, code)
	})

	t.Run("metrics", func(t *testing.T) {
		code, body := get("/metrics")
		require.Equal(t, http.StatusOK, code)
		require.Contains(t, body, "go_goroutines")
	})
}

func TestListenAndServe(t *testing.T) {
	t.Run("stops when the context is done", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := ListenAndServe(ctx, &http.Server{
			Addr:    "127.0.0.1:0",
			Handler: http.HandlerFunc(handleHealth),
		})
		require.NoError(t, err)
	})

	t.Run("returns listen errors", func(t *testing.T) {
		err := ListenAndServe(context.Background(), &http.Server{
			Addr: "127.0.0.1:-1",
		})
		require.Error(t, err)
	})
}
