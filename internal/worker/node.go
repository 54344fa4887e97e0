package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandtree/internal/backend"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandtree/internal/protocol"
	"github.com/GriffinCanCode/sandtree/internal/sandbox"
	"github.com/GriffinCanCode/sandtree/internal/shared/mailbox"
)

// Node is one sandbox in the tree. The same type runs at every depth: it
// executes commands addressed to itself and forwards the rest to its
// children, relaying their events upward.
type Node struct {
	prelude     string
	preludeName string

	host    backend.Host
	ctx     context.Context
	log     *logging.Logger
	metrics *monitoring.Metrics

	state    protocol.State
	children map[protocol.NodeID]*child
	nested   backend.Backend
	signals  *mailbox.Mailbox[backend.Signal]

	results chan opResult
	ops     sync.WaitGroup
}

// child is a window opened by this node plus the options its init carries.
type child struct {
	window  backend.Window
	options protocol.WorkerOptions
}

// opResult is the outcome of a sandbox call made off the node loop.
type opResult struct {
	kind     protocol.CommandType
	payload  *protocol.CommandPayload
	result   *sandbox.Result
	err      error
	duration time.Duration
}

// Option configures a Node.
type Option func(*Node)

// WithPrelude evaluates script in the node's sandbox before any command is
// handled.
func WithPrelude(name, script string) Option {
	return func(n *Node) {
		n.preludeName = name
		n.prelude = script
	}
}

// NewPage creates a node ready to be hosted by a window.
func NewPage(opts ...Option) *Node {
	n := &Node{
		state:    protocol.StateCreating,
		children: make(map[protocol.NodeID]*child),
		signals:  mailbox.New[backend.Signal](),
		results:  make(chan opResult),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Factory returns a page factory building a fresh node per window load.
func Factory(opts ...Option) backend.PageFactory {
	return func() backend.Page {
		return NewPage(opts...)
	}
}

// State returns the node's lifecycle state. Only meaningful from the node
// loop or after Run returned.
func (n *Node) State() protocol.State {
	return n.state
}

// Run is the node loop. It returns when ctx is cancelled, after in-flight
// sandbox calls are interrupted and every child window is closed.
func (n *Node) Run(ctx context.Context, inbox *mailbox.Mailbox[protocol.Command], host backend.Host) error {
	n.host = host
	n.ctx = ctx
	n.log = host.Logger().Named("worker")
	n.metrics = host.Metrics()

	defer n.shutdown()

	if n.prelude != "" {
		if err := host.Runtime().Preload(ctx, n.prelude); err != nil {
			n.log.Error("Prelude failed", zap.String("prelude", n.preludeName), zap.Error(err))
		}
	}

	handler := commandHandler{n}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-inbox.Ready():
			for _, cmd := range inbox.Drain() {
				if err := cmd.Dispatch(handler); err != nil {
					n.dropped("command", string(cmd.Type), err)
				}
			}
		case <-n.signals.Ready():
			for _, sig := range n.signals.Drain() {
				n.handleSignal(sig)
			}
		case res := <-n.results:
			n.complete(res)
		}
	}
}

func (n *Node) shutdown() {
	// Sandbox calls observe ctx and return once it is cancelled
	n.ops.Wait()

	if n.nested != nil {
		if err := n.nested.Close(); err != nil {
			n.log.Warn("Failed to close children", zap.Error(err))
		}
	}
	n.signals.Close()
}

// handleSignal processes a notification from a child window.
func (n *Node) handleSignal(sig backend.Signal) {
	c, ok := n.children[sig.WindowID()]
	if !ok {
		n.log.Debug("Signal from unknown window", zap.String("window", string(sig.WindowID())))
		return
	}
	if sig.Gen() != c.window.Generation() {
		n.log.Debug("Dropping stale signal",
			zap.String("window", string(sig.WindowID())),
			zap.Uint64("generation", sig.Gen()))
		return
	}

	switch s := sig.(type) {
	case backend.Loaded:
		options := c.options
		c.window.Send(protocol.Command{
			Type:    protocol.CmdInit,
			Payload: &protocol.CommandPayload{Path: protocol.Path{}, Options: &options},
		})
	case backend.Message:
		if s.Event.Payload == nil {
			n.dropped("event", string(s.Event.Type), &protocol.ProtocolError{Kind: string(s.Event.Type), Reason: "no payload"})
			return
		}
		n.host.Emit(protocol.Event{Type: s.Event.Type, Payload: s.Event.Payload.Bubble(s.Window)})
	}
}

// complete applies the result of a sandbox call.
func (n *Node) complete(res opResult) {
	switch res.kind {
	case protocol.CmdFill:
		if res.err != nil {
			n.state = protocol.StateDirty
			n.log.Warn("Fill failed", zap.String("filler", res.payload.FillerID), zap.Error(res.err))
			n.host.Emit(protocol.Failed(res.err))
			return
		}
		n.state = protocol.StateReady
		n.log.Perf("Filled", zap.String("filler", res.payload.FillerID), zap.Duration("elapsed", res.duration))
		n.host.Emit(protocol.Filled(res.payload.FillerID))

	case protocol.CmdExec:
		n.state = protocol.StateDirty
		payload := &protocol.EventPayload{
			Path:     protocol.Path{},
			State:    protocol.StateDirty,
			ExecID:   res.payload.ExecID,
			Args:     res.payload.Args,
			Duration: res.duration,
		}
		if res.result != nil {
			payload.Result = res.result.Value
			payload.Console = consoleEntries(res.result.Console)
		}
		if res.err != nil {
			payload.Error = res.err.Error()
			payload.Code = protocol.ErrorCode(res.err)
		} else if err := protocol.Encodable(payload.Result); err != nil {
			n.log.Warn("Result not serializable", zap.String("exec", res.payload.ExecID), zap.Error(err))
			payload.Result = nil
			payload.Error = fmt.Sprintf("result not serializable: %v", err)
			payload.Code = protocol.CodeExecution
		}
		n.log.Perf("Executed", zap.String("exec", res.payload.ExecID), zap.Duration("elapsed", res.duration))
		n.host.Emit(protocol.Event{Type: protocol.EvtDone, Payload: payload})
	}
}

// run starts a sandbox call off the loop. The result is delivered back to
// the loop unless the node is shutting down.
func (n *Node) run(kind protocol.CommandType, p *protocol.CommandPayload, call func(ctx context.Context) (*sandbox.Result, error)) {
	ctx := n.ctx
	n.ops.Add(1)
	go func() {
		defer n.ops.Done()

		timer := monitoring.NewTimer(n.metrics, string(kind))
		result, err := call(ctx)
		status := "success"
		if err != nil {
			status = "error"
		}
		res := opResult{kind: kind, payload: p, result: result, err: err, duration: timer.Stop(status)}

		select {
		case n.results <- res:
		case <-ctx.Done():
		}
	}()
}

// forward routes a command to child head. An unknown child is reported
// upward as a routing error from this node.
func (n *Node) forward(head protocol.NodeID, kind protocol.CommandType, p *protocol.CommandPayload) {
	c, ok := n.children[head]
	if !ok {
		err := &protocol.RoutingError{Missing: head}
		n.metrics.RecordRoutingError()
		n.log.Warn("Routing failed", zap.String("type", string(kind)), zap.Error(err))
		n.host.Emit(protocol.Failed(err))
		return
	}
	c.window.Send(protocol.Command{Type: kind, Payload: p})
}

// accepts reports whether the node takes kind in its current state and
// logs the command as inert otherwise.
func (n *Node) accepts(kind protocol.CommandType) bool {
	if n.state.Accepts(kind) {
		return true
	}
	n.metrics.RecordInert(string(kind), string(n.state))
	n.log.Warn("Ignoring command", zap.String("type", string(kind)), zap.String("state", string(n.state)))
	return false
}

func (n *Node) dropped(what, kind string, err error) {
	var pe *protocol.ProtocolError
	switch {
	case errors.As(err, &pe):
		n.metrics.RecordProtocolError(what)
	case errors.Is(err, protocol.ErrUnknownKind):
		n.metrics.RecordProtocolError(what)
	}
	n.log.Error("Dropping malformed "+what, zap.String("type", kind), zap.Error(err))
}

func consoleEntries(entries []sandbox.LogEntry) []protocol.ConsoleEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]protocol.ConsoleEntry, len(entries))
	for i, e := range entries {
		out[i] = protocol.ConsoleEntry{Level: e.Level, Message: e.Message, Time: e.Time}
	}
	return out
}

// commandHandler dispatches commands received from the parent.
type commandHandler struct {
	*Node
}

// Init builds the children described by the options and reports created
// without waiting for them.
func (h commandHandler) Init(p *protocol.CommandPayload) error {
	n := h.Node
	if !n.accepts(protocol.CmdInit) {
		return nil
	}

	var options protocol.WorkerOptions
	if p.Options != nil {
		options = *p.Options
	}

	if len(options.Subworkers) > 0 {
		if err := n.spawn(options.Subworkers); err != nil {
			n.log.Error("Failed to create subworkers", zap.Error(err))
			n.host.Emit(protocol.Failed(err))
		}
	}

	n.state = protocol.StateEmpty
	n.host.Emit(protocol.Created())
	return nil
}

func (n *Node) spawn(subworkers []protocol.WorkerOptions) error {
	if !n.host.Nesting() {
		return protocol.ErrUnsupported
	}
	if n.nested == nil {
		nested, err := n.host.Spawn(n.signals)
		if err != nil {
			return err
		}
		n.nested = nested
	}

	for _, sub := range subworkers {
		w, err := n.nested.Open(n.ctx)
		if err != nil {
			return err
		}
		n.children[w.ID()] = &child{window: w, options: sub}
	}
	return nil
}

// Fill runs filler content in this node or forwards it.
func (h commandHandler) Fill(p *protocol.CommandPayload) error {
	n := h.Node
	if head, rest, ok := p.Path.Next(); ok {
		n.forward(head, protocol.CmdFill, p.WithPath(rest))
		return nil
	}
	if !n.accepts(protocol.CmdFill) {
		return nil
	}

	n.state = protocol.StateFilling
	var globals map[string]any
	if p.FillOptions != nil {
		globals = p.FillOptions.Globals
	}
	rt := n.host.Runtime()
	n.run(protocol.CmdFill, p, func(ctx context.Context) (*sandbox.Result, error) {
		return nil, rt.Fill(ctx, p.Content, globals)
	})
	return nil
}

// Exec runs the filled entry point in this node or forwards it.
func (h commandHandler) Exec(p *protocol.CommandPayload) error {
	n := h.Node
	if head, rest, ok := p.Path.Next(); ok {
		n.forward(head, protocol.CmdExec, p.WithPath(rest))
		return nil
	}
	if !n.accepts(protocol.CmdExec) {
		return nil
	}

	n.state = protocol.StateBusy
	rt := n.host.Runtime()
	n.run(protocol.CmdExec, p, func(ctx context.Context) (*sandbox.Result, error) {
		return rt.Exec(ctx, p.Args)
	})
	return nil
}

// Reload resets the child named by a one-element path or forwards the
// remainder to that child. Ancestors are never reset.
func (h commandHandler) Reload(p *protocol.CommandPayload) error {
	n := h.Node
	head, rest, ok := p.Path.Next()
	if !ok {
		n.metrics.RecordInert(string(protocol.CmdReload), string(n.state))
		n.log.Warn("Ignoring reload without target")
		return nil
	}
	if len(rest) > 0 {
		n.forward(head, protocol.CmdReload, p.WithPath(rest))
		return nil
	}

	c, found := n.children[head]
	if !found {
		n.forward(head, protocol.CmdReload, p)
		return nil
	}
	c.window.Reload()
	return nil
}
