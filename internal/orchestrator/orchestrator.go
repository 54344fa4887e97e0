package orchestrator

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandtree/internal/backend"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandtree/internal/protocol"
	"github.com/GriffinCanCode/sandtree/internal/shared/mailbox"
)

// ErrDestroyed is returned by Run after a destroy command when the exit
// function returns.
var ErrDestroyed = errors.New("orchestrator destroyed")

// Sink receives every event addressed to the controller.
type Sink interface {
	Emit(evt protocol.ControlEvent)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(evt protocol.ControlEvent)

// Emit implements Sink.
func (f SinkFunc) Emit(evt protocol.ControlEvent) { f(evt) }

// WorkerStatus is one entry of the state snapshot.
type WorkerStatus struct {
	Path     string         `json:"path"`
	State    protocol.State `json:"state"`
	FillerID string         `json:"fillerId,omitempty"`
}

// Orchestrator owns the root sandboxes. A single Run loop handles controller
// commands and backend signals one at a time.
type Orchestrator struct {
	backend backend.Backend
	signals *mailbox.Mailbox[backend.Signal]
	inbox   *mailbox.Mailbox[protocol.ControlCommand]
	sink    Sink
	log     *logging.Logger
	metrics *monitoring.Metrics
	exit    func(code int)

	roots map[protocol.NodeID]*root
	ctx   context.Context

	snapMu   sync.RWMutex
	snapshot map[string]WorkerStatus
}

// root is a top-level window and the options its init carries.
type root struct {
	window  backend.Window
	options protocol.WorkerOptions
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the diagnostics sink.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithExit replaces os.Exit as the final step of destroy.
func WithExit(exit func(code int)) Option {
	return func(o *Orchestrator) { o.exit = exit }
}

// New creates an orchestrator over b. signals must be the mailbox b was
// created with.
func New(b backend.Backend, signals *mailbox.Mailbox[backend.Signal], sink Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:  b,
		signals:  signals,
		inbox:    mailbox.New[protocol.ControlCommand](),
		sink:     sink,
		log:      logging.NewNop(),
		exit:     os.Exit,
		roots:    make(map[protocol.NodeID]*root),
		snapshot: make(map[string]WorkerStatus),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.Named("orchestrator")
	return o
}

// Submit queues a controller command. It reports false after destroy.
func (o *Orchestrator) Submit(cmd protocol.ControlCommand) bool {
	return o.inbox.Put(cmd)
}

// CreateWorker queues creation of a root sandbox with the given subtree.
func (o *Orchestrator) CreateWorker(options protocol.WorkerOptions) bool {
	return o.Submit(protocol.ControlCommand{Type: protocol.CtlCreateWorker, Payload: &protocol.CommandPayload{Options: &options}})
}

// FillWorker queues a filler for the node at path.
func (o *Orchestrator) FillWorker(path protocol.Path, content, fillerID string, fillOptions *protocol.FillOptions) bool {
	return o.Submit(protocol.ControlCommand{Type: protocol.CtlFillWorker, Payload: &protocol.CommandPayload{
		Path:        path,
		Content:     content,
		FillerID:    fillerID,
		FillOptions: fillOptions,
	}})
}

// ReloadWorker queues a reload of the node at path.
func (o *Orchestrator) ReloadWorker(path protocol.Path) bool {
	return o.Submit(protocol.ControlCommand{Type: protocol.CtlReloadWorker, Payload: &protocol.CommandPayload{Path: path}})
}

// Exec queues execution of the filler of the node at path.
func (o *Orchestrator) Exec(path protocol.Path, execID string, args ...any) bool {
	return o.Submit(protocol.ControlCommand{Type: protocol.CtlExec, Payload: &protocol.CommandPayload{
		Path:   path,
		ExecID: execID,
		Args:   args,
	}})
}

// Flush queues a flush of the log sink.
func (o *Orchestrator) Flush() bool {
	return o.Submit(protocol.ControlCommand{Type: protocol.CtlFlush})
}

// Destroy queues shutdown of every sandbox and the process.
func (o *Orchestrator) Destroy() bool {
	return o.Submit(protocol.ControlCommand{Type: protocol.CtlDestroy})
}

// Run announces readiness and processes commands and signals until ctx is
// done or a destroy command is handled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ctx = ctx
	o.emit(protocol.NoticeReady, &protocol.EventPayload{Path: protocol.Path{}})
	o.log.Info("Orchestrator ready", zap.String("engine", string(o.backend.Type())))

	handler := controlHandler{o}
	for {
		select {
		case <-ctx.Done():
			if err := o.backend.Close(); err != nil {
				o.log.Warn("Failed to close backend", zap.Error(err))
			}
			return ctx.Err()

		case <-o.inbox.Ready():
			for _, cmd := range o.inbox.Drain() {
				o.metrics.RecordCommand(string(cmd.Type))
				err := cmd.Dispatch(handler)
				if errors.Is(err, ErrDestroyed) {
					return err
				}
				if err != nil {
					o.commandFailed(cmd, err)
				}
			}

		case <-o.signals.Ready():
			for _, sig := range o.signals.Drain() {
				o.handleSignal(sig)
			}
		}
	}
}

// Snapshot returns the last known state of every node, sorted by path.
func (o *Orchestrator) Snapshot() []WorkerStatus {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()

	out := make([]WorkerStatus, 0, len(o.snapshot))
	for _, s := range o.snapshot {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (o *Orchestrator) commandFailed(cmd protocol.ControlCommand, err error) {
	var routing *protocol.RoutingError
	var malformed *protocol.ProtocolError
	switch {
	case errors.As(err, &routing):
		o.metrics.RecordRoutingError()
		o.log.Error("Routing failed", zap.String("type", string(cmd.Type)), zap.Error(err))
		o.emit(protocol.NoticeError, &protocol.EventPayload{
			Path:  routing.Path,
			Error: err.Error(),
			Code:  routing.Code(),
		})
	case errors.As(err, &malformed), errors.Is(err, protocol.ErrUnknownKind):
		o.metrics.RecordProtocolError("control")
		o.log.Error("Dropping malformed command", zap.String("type", string(cmd.Type)), zap.Error(err))
	default:
		o.log.Error("Command failed", zap.String("type", string(cmd.Type)), zap.Error(err))
		o.emit(protocol.NoticeError, &protocol.EventPayload{
			Path:  protocol.Path{},
			Error: err.Error(),
			Code:  protocol.ErrorCode(err),
		})
	}
}

// handleSignal processes a notification about a root window.
func (o *Orchestrator) handleSignal(sig backend.Signal) {
	r, ok := o.roots[sig.WindowID()]
	if !ok {
		o.log.Debug("Signal from unknown window", zap.String("window", string(sig.WindowID())))
		return
	}
	if sig.Gen() != r.window.Generation() {
		o.log.Debug("Dropping stale signal", zap.String("window", string(sig.WindowID())), zap.Uint64("generation", sig.Gen()))
		return
	}

	switch s := sig.(type) {
	case backend.Loaded:
		options := r.options
		r.window.Send(protocol.Command{
			Type:    protocol.CmdInit,
			Payload: &protocol.CommandPayload{Path: protocol.Path{}, Options: &options},
		})
	case backend.Message:
		ev := s.Event
		if ev.Payload != nil {
			ev.Payload = ev.Payload.Bubble(s.Window)
		}
		if err := ev.Dispatch(eventHandler{o}); err != nil {
			o.metrics.RecordProtocolError("event")
			o.log.Error("Dropping malformed event", zap.String("type", string(ev.Type)), zap.Error(err))
		}
	}
}

func (o *Orchestrator) emit(kind protocol.NoticeType, p *protocol.EventPayload) {
	o.metrics.RecordEvent(string(kind))
	o.sink.Emit(protocol.ControlEvent{Type: kind, Payload: p})
}

// track records the state of the node at path.
func (o *Orchestrator) track(path protocol.Path, state protocol.State, fillerID string) {
	o.snapMu.Lock()
	defer o.snapMu.Unlock()
	o.snapshot[path.String()] = WorkerStatus{Path: path.String(), State: state, FillerID: fillerID}
}

// advance moves the node at path from one state to another. Nodes that are
// unknown or in any other state are left alone, matching the commands a
// node treats as inert.
func (o *Orchestrator) advance(path protocol.Path, from, to protocol.State) {
	o.snapMu.Lock()
	defer o.snapMu.Unlock()

	key := path.String()
	if st, ok := o.snapshot[key]; ok && st.State == from {
		st.State = to
		o.snapshot[key] = st
	}
}

// forget drops the subtree below path from the snapshot. A node already
// known at path is marked creating; an unknown path gains no entry.
func (o *Orchestrator) forget(path protocol.Path) {
	o.snapMu.Lock()
	defer o.snapMu.Unlock()

	key := path.String()
	_, known := o.snapshot[key]
	for k := range o.snapshot {
		if protocol.ParsePath(k).HasPrefix(path) {
			delete(o.snapshot, k)
		}
	}
	if known {
		o.snapshot[key] = WorkerStatus{Path: key, State: protocol.StateCreating}
	}
}

// route resolves the root named by the head of path.
func (o *Orchestrator) route(path protocol.Path) (*root, protocol.Path, error) {
	head, rest, ok := path.Next()
	if !ok {
		return nil, nil, &protocol.ProtocolError{Kind: "path", Reason: "empty path"}
	}
	r, found := o.roots[head]
	if !found {
		return nil, nil, &protocol.RoutingError{Path: protocol.Path{}, Missing: head}
	}
	return r, rest, nil
}
