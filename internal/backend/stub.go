package backend

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandtree/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sandtree/internal/protocol"
	"github.com/GriffinCanCode/sandtree/internal/shared/id"
	"github.com/GriffinCanCode/sandtree/internal/shared/mailbox"
)

// stub is a conforming backend that hosts no scripts and cannot nest.
// Commands are answered synchronously from Send.
type stub struct {
	cfg     Config
	signals *mailbox.Mailbox[Signal]
	log     *logging.Logger

	mu      sync.Mutex
	windows map[protocol.NodeID]*stubWindow
	closed  bool
}

func newStub(signals *mailbox.Mailbox[Signal], cfg Config) *stub {
	return &stub{
		cfg:     cfg,
		signals: signals,
		log:     cfg.Logger.Named("stub"),
		windows: make(map[protocol.NodeID]*stubWindow),
	}
}

func (b *stub) Type() Type    { return TypeStub }
func (b *stub) Nesting() bool { return false }

func (b *stub) Open(ctx context.Context) (Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	w := &stubWindow{id: protocol.NodeID(id.NewWorkerID()), backend: b}
	b.windows[w.id] = w

	w.mu.Lock()
	w.load()
	w.mu.Unlock()

	b.cfg.Metrics.NodeOpened()
	return w, nil
}

func (b *stub) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	windows := make([]*stubWindow, 0, len(b.windows))
	for _, w := range b.windows {
		windows = append(windows, w)
	}
	b.mu.Unlock()

	for _, w := range windows {
		w.Close()
	}
	return nil
}

type stubWindow struct {
	id      protocol.NodeID
	backend *stub

	mu     sync.Mutex
	gen    uint64
	state  protocol.State
	closed bool
}

func (w *stubWindow) ID() protocol.NodeID { return w.id }

func (w *stubWindow) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen
}

// load is called with w.mu held.
func (w *stubWindow) load() {
	w.gen++
	w.state = protocol.StateCreating
	w.backend.signals.Put(Loaded{Window: w.id, Generation: w.gen})
}

func (w *stubWindow) Send(cmd protocol.Command) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}
	if cmd.Payload == nil {
		w.backend.log.Warn("Dropping command without payload", zap.String("type", string(cmd.Type)))
		return true
	}

	// No children: any non-empty path names a node that cannot exist
	if head, _, ok := cmd.Payload.Path.Next(); ok {
		w.emit(protocol.Failed(&protocol.RoutingError{Missing: head}))
		return true
	}

	if !w.state.Accepts(cmd.Type) {
		w.backend.cfg.Metrics.RecordInert(string(cmd.Type), string(w.state))
		w.backend.log.Warn("Ignoring command",
			zap.String("window", string(w.id)),
			zap.String("type", string(cmd.Type)),
			zap.String("state", string(w.state)))
		return true
	}

	switch cmd.Type {
	case protocol.CmdInit:
		w.state = protocol.StateEmpty
		w.emit(protocol.Created())
	case protocol.CmdFill:
		w.state = protocol.StateReady
		w.emit(protocol.Filled(cmd.Payload.FillerID))
	case protocol.CmdExec:
		w.state = protocol.StateDirty
		w.emit(protocol.Event{Type: protocol.EvtDone, Payload: &protocol.EventPayload{
			Path:   protocol.Path{},
			State:  protocol.StateDirty,
			ExecID: cmd.Payload.ExecID,
			Args:   cmd.Payload.Args,
			Error:  protocol.ErrUnsupported.Error(),
			Code:   protocol.ErrorCode(protocol.ErrUnsupported),
		}})
	}
	return true
}

func (w *stubWindow) emit(ev protocol.Event) {
	w.backend.signals.Put(Message{Window: w.id, Generation: w.gen, Event: ev})
}

func (w *stubWindow) Reload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.load()
	w.backend.cfg.Metrics.IncReloads()
}

func (w *stubWindow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.backend.mu.Lock()
	delete(w.backend.windows, w.id)
	w.backend.mu.Unlock()
	w.backend.cfg.Metrics.NodeClosed()
}
