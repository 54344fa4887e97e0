package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/sandtree/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandtree/internal/orchestrator"
	"github.com/GriffinCanCode/sandtree/internal/protocol"
)

// WorkerLister reports the state of every node in the tree.
type WorkerLister interface {
	Snapshot() []orchestrator.WorkerStatus
}

// StatsSource reports runtime statistics of a component.
type StatsSource interface {
	Stats() map[string]interface{}
}

// Handlers serves the HTTP endpoints.
type Handlers struct {
	workers WorkerLister
	pool    StatsSource
	engine  string
	metrics *monitoring.Metrics
}

// NewHandlers creates the endpoint set. pool may be nil.
func NewHandlers(engine string, workers WorkerLister, pool StatsSource, metrics *monitoring.Metrics) *Handlers {
	return &Handlers{
		workers: workers,
		pool:    pool,
		engine:  engine,
		metrics: metrics,
	}
}

// Root describes the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "sandtree",
		"engine":  h.engine,
		"endpoints": gin.H{
			"health":  "/health",
			"workers": "/workers",
			"metrics": "/metrics",
			"control": "/control",
		},
	})
}

// Health reports liveness and headline counters
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"engine":  h.engine,
		"workers": len(h.workers.Snapshot()),
		"metrics": h.metrics.Snapshot(),
	}
	if h.pool != nil {
		body["pool"] = h.pool.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// ListWorkers returns the last known state of every node. The optional
// prefix query parameter restricts the list to one subtree.
func (h *Handlers) ListWorkers(c *gin.Context) {
	all := h.workers.Snapshot()
	prefix := protocol.ParsePath(c.Query("prefix"))

	workers := make([]orchestrator.WorkerStatus, 0, len(all))
	for _, w := range all {
		if protocol.ParsePath(w.Path).HasPrefix(prefix) {
			workers = append(workers, w)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"workers": workers,
		"count":   len(workers),
	})
}
