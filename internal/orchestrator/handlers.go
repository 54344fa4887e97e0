package orchestrator

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandtree/internal/protocol"
)

// controlHandler executes controller commands on the Run loop.
type controlHandler struct {
	*Orchestrator
}

func (h controlHandler) CreateWorker(p *protocol.CommandPayload) error {
	o := h.Orchestrator

	var options protocol.WorkerOptions
	if p.Options != nil {
		options = *p.Options
	}

	w, err := o.backend.Open(o.ctx)
	if err != nil {
		return err
	}
	o.roots[w.ID()] = &root{window: w, options: options}
	o.track(protocol.Path{w.ID()}, protocol.StateCreating, "")

	o.log.Info("Root created", zap.String("root", string(w.ID())), zap.Int("nodes", options.Size()))
	return nil
}

func (h controlHandler) FillWorker(p *protocol.CommandPayload) error {
	r, rest, err := h.route(p.Path)
	if err != nil {
		return err
	}
	r.window.Send(protocol.Command{Type: protocol.CmdFill, Payload: p.WithPath(rest)})
	h.advance(p.Path, protocol.StateEmpty, protocol.StateFilling)
	return nil
}

func (h controlHandler) ReloadWorker(p *protocol.CommandPayload) error {
	r, rest, err := h.route(p.Path)
	if err != nil {
		return err
	}

	if len(rest) == 0 {
		r.window.Reload()
	} else {
		r.window.Send(protocol.Command{Type: protocol.CmdReload, Payload: p.WithPath(rest)})
	}
	h.forget(p.Path)
	return nil
}

// Exec is the latency-critical path: one split, one lookup, one post, and a
// snapshot update.
func (h controlHandler) Exec(p *protocol.CommandPayload) error {
	r, rest, err := h.route(p.Path)
	if err != nil {
		return err
	}
	r.window.Send(protocol.Command{Type: protocol.CmdExec, Payload: p.WithPath(rest)})
	h.advance(p.Path, protocol.StateReady, protocol.StateBusy)
	return nil
}

func (h controlHandler) Flush(*protocol.CommandPayload) error {
	if err := h.log.Flush(); err != nil {
		h.log.Warn("Log flush failed", zap.Error(err))
	}
	return nil
}

// Destroy closes the backend without draining anything still queued and
// ends the process.
func (h controlHandler) Destroy(*protocol.CommandPayload) error {
	o := h.Orchestrator
	o.log.Info("Destroying", zap.Int("roots", len(o.roots)))

	o.inbox.Close()
	o.signals.Close()
	if err := o.backend.Close(); err != nil {
		o.log.Warn("Failed to close backend", zap.Error(err))
	}
	_ = o.log.Flush()

	o.exit(0)
	return ErrDestroyed
}

// eventHandler maps tree events, already carrying full paths, to
// controller events.
type eventHandler struct {
	*Orchestrator
}

func (h eventHandler) Created(p *protocol.EventPayload) error {
	h.track(p.Path, protocol.StateEmpty, "")
	h.emit(protocol.NoticeWorkerState, &protocol.EventPayload{Path: p.Path, State: protocol.StateEmpty})
	return nil
}

func (h eventHandler) Filled(p *protocol.EventPayload) error {
	h.track(p.Path, protocol.StateReady, p.FillerID)
	h.emit(protocol.NoticeWorkerState, &protocol.EventPayload{Path: p.Path, State: protocol.StateReady, FillerID: p.FillerID})
	return nil
}

func (h eventHandler) Done(p *protocol.EventPayload) error {
	h.track(p.Path, protocol.StateDirty, "")
	h.emit(protocol.NoticeDone, p)
	return nil
}

func (h eventHandler) Failed(p *protocol.EventPayload) error {
	h.log.Warn("Node reported error", zap.Stringer("path", p.Path), zap.String("code", p.Code), zap.String("error", p.Error))
	if p.Code != protocol.CodeUnknownNode {
		// a failed fill leaves the node dirty
		h.advance(p.Path, protocol.StateFilling, protocol.StateDirty)
	}
	h.emit(protocol.NoticeError, p)
	return nil
}
