package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(ctx context.Context) error {
	return f.err
}

func TestHealthCheckHandler(t *testing.T) {
	t.Run("healthy when store reachable", func(t *testing.T) {
		h := NewHealthServer(":0", fakePinger{}, nil)

		rec := httptest.NewRecorder()
		h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "connected", resp.Storage)
		assert.Empty(t, resp.Error)
	})

	t.Run("unhealthy when store unreachable", func(t *testing.T) {
		h := NewHealthServer(":0", fakePinger{err: errors.New("connection refused")}, nil)

		rec := httptest.NewRecorder()
		h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, "disconnected", resp.Storage)
		assert.Equal(t, "connection refused", resp.Error)
	})

	t.Run("rejects non-GET", func(t *testing.T) {
		h := NewHealthServer(":0", fakePinger{}, nil)

		rec := httptest.NewRecorder()
		h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHealthServer_StartAndShutdown(t *testing.T) {
	h := NewHealthServer("127.0.0.1:0", fakePinger{}, nil)
	assert.Equal(t, "127.0.0.1:0", h.Addr())

	require.NoError(t, h.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h.Shutdown(ctx)
	})
	assert.NotEqual(t, "127.0.0.1:0", h.Addr())

	resp, err := http.Get("http://" + h.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + h.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestHealthServer_ShutdownBeforeStart(t *testing.T) {
	h := NewHealthServer(":0", fakePinger{}, nil)
	assert.NoError(t, h.Shutdown(context.Background()))
}
