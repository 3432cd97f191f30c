package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/gojahost"
)

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	srv := New(cfg, gojahost.NewConnector(gojahost.DefaultConfig(), nil), logging.NewDefault())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.evaluator.Close(ctx)
	})
	return ts
}

func TestServerEndToEnd(t *testing.T) {
	ts := newTestServer(t, config.Default())

	body := `{"script": "function __rb_entry_point(a, b) { return a * b; }",
		"args": [{"name": "a", "type": "int", "value": 6}, {"name": "b", "type": "int", "value": 7}]}`
	resp, err := http.Post(ts.URL+"/evaluate", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"result":42`)

	// evaluation metrics are exposed on the same router
	metricsResp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	exposition, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(exposition), "scriptbox_evaluations_total")
}

func TestServerRoutes(t *testing.T) {
	ts := newTestServer(t, config.Default())

	for _, path := range []string{"/", "/health", "/capabilities", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}

	resp, err := http.Post(ts.URL+"/shutdown", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerRejectsOversizedBody(t *testing.T) {
	cfg := config.Default()
	cfg.Server.MaxBodyBytes = 64
	ts := newTestServer(t, cfg)

	script := `{"script": "` + string(bytes.Repeat([]byte("x"), 256)) + `"}`
	resp, err := http.Post(ts.URL+"/evaluate", "application/json", bytes.NewBufferString(script))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestServerRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 1
	ts := newTestServer(t, cfg)

	first, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestServerGlobalRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.GlobalRequestsPerSecond = 1
	ts := newTestServer(t, cfg)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		resp, err := http.Get(ts.URL + "/")
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
