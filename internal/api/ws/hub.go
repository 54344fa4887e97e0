package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandtree/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandtree/internal/protocol"
	"github.com/GriffinCanCode/sandtree/internal/shared/utils"
	"github.com/GriffinCanCode/sandtree/internal/transport"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
)

// Config tunes the hub.
type Config struct {
	// AllowedOrigins lists accepted Origin headers. Empty or "*" accepts all.
	AllowedOrigins []string
	// SendBuffer is the number of events queued per client before the
	// client is dropped as too slow.
	SendBuffer   int
	WriteTimeout time.Duration
}

// DefaultConfig returns the hub defaults.
func DefaultConfig() Config {
	return Config{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
	}
}

// Hub tracks controller connections.
type Hub struct {
	cfg       Config
	sub       transport.Submitter
	log       *logging.Logger
	metrics   *monitoring.Metrics
	validator *utils.JSONSizeValidator
	upgrader  websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func (c *client) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// NewHub creates a hub that forwards commands to sub.
func NewHub(sub transport.Submitter, cfg Config, log *logging.Logger, metrics *monitoring.Metrics) *Hub {
	def := DefaultConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if log == nil {
		log = logging.NewNop()
	}

	h := &Hub{
		cfg:       cfg,
		sub:       sub,
		log:       log.Named("ws"),
		metrics:   metrics,
		validator: utils.DefaultJSONValidator(),
		clients:   make(map[string]*client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Handle upgrades the request and serves one controller until it
// disconnects.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(int64(utils.MaxControlSize))

	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	if !h.register(cl) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.cfg.WriteTimeout))
		_ = conn.Close()
		return
	}
	defer h.unregister(cl)

	h.log.Info("Controller connected", zap.String("conn", cl.id), zap.String("remote", c.ClientIP()))
	go h.writeLoop(cl)
	h.readLoop(cl)
}

func (h *Hub) register(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl.id] = cl
	h.wg.Add(1)
	h.metrics.IncWSConnections()
	return true
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl.id]
	delete(h.clients, cl.id)
	h.mu.Unlock()

	cl.stop()
	if ok {
		h.metrics.DecWSConnections()
		h.log.Info("Controller disconnected", zap.String("conn", cl.id))
		h.wg.Done()
	}
}

func (h *Hub) readLoop(cl *client) {
	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("WebSocket read error", zap.String("conn", cl.id), zap.Error(err))
			}
			return
		}

		cmd, err := transport.ParseCommand(h.validator, data)
		if err != nil {
			h.metrics.RecordWSMessage("in", "invalid")
			h.log.Warn("Skipping invalid command", zap.String("conn", cl.id), zap.Error(err))
			continue
		}
		h.metrics.RecordWSMessage("in", string(cmd.Type))
		if !h.sub.Submit(cmd) {
			h.log.Debug("Command rejected after destroy", zap.String("conn", cl.id))
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	for {
		select {
		case data := <-cl.send:
			if err := cl.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				cl.stop()
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debug("WebSocket write failed", zap.String("conn", cl.id), zap.Error(err))
				cl.stop()
				return
			}
		case <-cl.done:
			return
		}
	}
}

// Emit queues evt for every client. A client whose queue is full is
// disconnected.
func (h *Hub) Emit(evt protocol.ControlEvent) {
	data, err := protocol.EncodeEvent(evt)
	if err != nil {
		h.log.Error("Failed to encode event", zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*client
	for _, cl := range h.clients {
		select {
		case cl.send <- data:
			h.metrics.RecordWSMessage("out", string(evt.Type))
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.log.Warn("Dropping slow controller", zap.String("conn", cl.id))
		cl.stop()
	}
}

// Count returns the number of connected controllers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their handlers to return.
// Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		cl.stop()
	}
	h.wg.Wait()
}
