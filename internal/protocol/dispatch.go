package protocol

import "fmt"

// ControlHandler handles every controller command kind.
type ControlHandler interface {
	CreateWorker(p *CommandPayload) error
	FillWorker(p *CommandPayload) error
	ReloadWorker(p *CommandPayload) error
	Exec(p *CommandPayload) error
	Flush(p *CommandPayload) error
	Destroy(p *CommandPayload) error
}

// Dispatch calls the handler method for c.Type. Commands that address a node
// must carry a payload; createWorker, flush and destroy may omit it.
func (c ControlCommand) Dispatch(h ControlHandler) error {
	switch c.Type {
	case CtlCreateWorker:
		p := c.Payload
		if p == nil {
			p = &CommandPayload{}
		}
		return h.CreateWorker(p)
	case CtlFillWorker:
		if c.Payload == nil {
			return missingPayload(c.Type)
		}
		return h.FillWorker(c.Payload)
	case CtlReloadWorker:
		if c.Payload == nil {
			return missingPayload(c.Type)
		}
		return h.ReloadWorker(c.Payload)
	case CtlExec:
		if c.Payload == nil {
			return missingPayload(c.Type)
		}
		return h.Exec(c.Payload)
	case CtlFlush:
		return h.Flush(c.Payload)
	case CtlDestroy:
		return h.Destroy(c.Payload)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Type)
	}
}

// WorkerHandler handles every downward command kind.
type WorkerHandler interface {
	Init(p *CommandPayload) error
	Fill(p *CommandPayload) error
	Exec(p *CommandPayload) error
	Reload(p *CommandPayload) error
}

// Dispatch calls the handler method for c.Type.
func (c Command) Dispatch(h WorkerHandler) error {
	if c.Payload == nil {
		if _, known := commandKinds[c.Type]; known {
			return missingPayload(c.Type)
		}
	}
	switch c.Type {
	case CmdInit:
		return h.Init(c.Payload)
	case CmdFill:
		return h.Fill(c.Payload)
	case CmdExec:
		return h.Exec(c.Payload)
	case CmdReload:
		return h.Reload(c.Payload)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Type)
	}
}

// EventHandler handles every upward event kind.
type EventHandler interface {
	Created(p *EventPayload) error
	Filled(p *EventPayload) error
	Done(p *EventPayload) error
	Failed(p *EventPayload) error
}

// Dispatch calls the handler method for e.Type. An event without a payload
// is a ProtocolError and reaches no handler.
func (e Event) Dispatch(h EventHandler) error {
	if e.Payload == nil {
		if _, known := eventKinds[e.Type]; known {
			return missingPayload(e.Type)
		}
	}
	switch e.Type {
	case EvtCreated:
		return h.Created(e.Payload)
	case EvtFilled:
		return h.Filled(e.Payload)
	case EvtDone:
		return h.Done(e.Payload)
	case EvtError:
		return h.Failed(e.Payload)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Type)
	}
}

var commandKinds = func() map[CommandType]struct{} {
	m := make(map[CommandType]struct{}, len(CommandTypes))
	for _, k := range CommandTypes {
		m[k] = struct{}{}
	}
	return m
}()

var eventKinds = func() map[EventType]struct{} {
	m := make(map[EventType]struct{}, len(EventTypes))
	for _, k := range EventTypes {
		m[k] = struct{}{}
	}
	return m
}()
