package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordCommand("exec")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.ControlCommands.WithLabelValues("exec")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ControlCommands.WithLabelValues("exec")))
}

func TestTreeCounters(t *testing.T) {
	m := NewMetrics()

	m.NodeOpened()
	m.NodeOpened()
	m.NodeClosed()
	m.RecordRoutingError()
	m.RecordProtocolError("event")
	m.RecordInert("exec", "empty")
	m.RecordEvent("workerState")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodesActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NodesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InertCommands.WithLabelValues("exec", "empty")))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ActiveNodes)
	assert.Equal(t, int64(2), snap.Errors)
	assert.Equal(t, int64(1), snap.Events)
	assert.GreaterOrEqual(t, snap.Uptime, 0.0)
}

func TestTimer(t *testing.T) {
	m := NewMetrics()

	timer := NewTimer(m, "fill")
	d := timer.Stop("success")

	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SandboxOps.WithLabelValues("fill", "success")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordCommand("exec")
		m.NodeOpened()
		m.NodeClosed()
		m.IncReloads()
		m.RecordInert("fill", "busy")
		m.RecordSandboxOp("exec", "error", time.Millisecond)
		NewTimer(m, "exec").Stop("success")
		_ = m.Snapshot()
	})
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `sandtree_http_requests_total{method="GET",path="/health",status="200"} 1`)
	assert.Contains(t, body, "sandtree_uptime_seconds")
}
