package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEvaluation(t *testing.T) {
	m := NewMetrics()

	m.RecordEvaluation("success", false, 10*time.Millisecond)
	m.RecordEvaluation("script_execution_failed", true, 5*time.Millisecond)
	m.RecordEvaluation("script_execution_failed", false, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("script_execution_failed")))

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.Evaluations)
	assert.Equal(t, int64(2), snap.Failures["script_execution_failed"])
	assert.InDelta(t, 0.02, snap.TotalDuration, 0.0001)
}

func TestIsolateGauge(t *testing.T) {
	m := NewMetrics()

	m.IsolateOpened()
	m.IsolateOpened()
	m.IsolateClosed(nil)
	m.IsolateClosed(errors.New("close failed"))
	m.IsolateOpened()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IsolatesActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IsolatesClosed.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IsolatesClosed.WithLabelValues("error")))
	assert.Equal(t, int64(1), m.Snapshot().ActiveIsolates)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordEvaluation("success", false, time.Millisecond)
		m.RecordHTTPRequest("GET", "/", "200", time.Millisecond)
		m.IsolateOpened()
		m.IsolateClosed(nil)
		m.RecordConnect("success")
		m.SetConnectionState(2)
		NewTimer(m, true).Stop("success")
	})
	assert.Zero(t, m.Snapshot().Evaluations)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordConnect("success")
	m.SetConnectionState(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `scriptbox_connect_attempts_total{result="success"} 1`))
	assert.True(t, strings.Contains(body, "scriptbox_connection_state 2"))
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}
