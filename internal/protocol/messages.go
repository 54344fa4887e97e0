package protocol

import "time"

// ControlType names a command sent by the controller to the orchestrator.
type ControlType string

const (
	CtlCreateWorker ControlType = "createWorker"
	CtlFillWorker   ControlType = "fillWorker"
	CtlReloadWorker ControlType = "reloadWorker"
	CtlExec         ControlType = "exec"
	CtlFlush        ControlType = "flush"
	CtlDestroy      ControlType = "destroy"
)

// ControlTypes lists every controller command kind.
var ControlTypes = []ControlType{
	CtlCreateWorker, CtlFillWorker, CtlReloadWorker, CtlExec, CtlFlush, CtlDestroy,
}

// NoticeType names an event sent by the orchestrator to the controller.
type NoticeType string

const (
	NoticeReady       NoticeType = "ready"
	NoticeWorkerState NoticeType = "workerState"
	NoticeDone        NoticeType = "done"
	NoticeError       NoticeType = "error"
)

// CommandType names a command travelling down the tree.
type CommandType string

const (
	CmdInit   CommandType = "init"
	CmdFill   CommandType = "fill"
	CmdExec   CommandType = "exec"
	CmdReload CommandType = "reload"
)

// CommandTypes lists every downward command kind.
var CommandTypes = []CommandType{CmdInit, CmdFill, CmdExec, CmdReload}

// EventType names an event travelling up the tree.
type EventType string

const (
	EvtCreated EventType = "created"
	EvtFilled  EventType = "filled"
	EvtDone    EventType = "done"
	EvtError   EventType = "error"
)

// EventTypes lists every upward event kind.
var EventTypes = []EventType{EvtCreated, EvtFilled, EvtDone, EvtError}

// WorkerOptions describes the subtree a node builds on init. Each entry of
// Subworkers becomes one child, recursively.
type WorkerOptions struct {
	Subworkers []WorkerOptions `json:"subworkers,omitempty"`
}

// Size returns the number of nodes described by o, o itself included.
func (o WorkerOptions) Size() int {
	n := 1
	for _, sub := range o.Subworkers {
		n += sub.Size()
	}
	return n
}

// Depth returns the number of levels described by o, o itself included.
func (o WorkerOptions) Depth() int {
	d := 0
	for _, sub := range o.Subworkers {
		if sd := sub.Depth(); sd > d {
			d = sd
		}
	}
	return d + 1
}

// FillOptions are applied to the sandbox before the filler content runs.
type FillOptions struct {
	Globals map[string]any `json:"globals,omitempty"`
}

// CommandPayload is shared by controller and tree commands. Fields not used
// by a kind are left zero.
type CommandPayload struct {
	Path        Path           `json:"path,omitempty"`
	Options     *WorkerOptions `json:"options,omitempty"`
	Content     string         `json:"content,omitempty"`
	FillerID    string         `json:"fillerId,omitempty"`
	FillOptions *FillOptions   `json:"fillOptions,omitempty"`
	ExecID      string         `json:"execId,omitempty"`
	Args        []any          `json:"args,omitempty"`
}

// WithPath returns a shallow copy of p addressed to path. The receiver is
// never modified, so a payload can be forwarded while another hop still
// holds it.
func (p *CommandPayload) WithPath(path Path) *CommandPayload {
	cp := *p
	cp.Path = path
	return &cp
}

// ConsoleEntry is one line captured from a sandbox console.
type ConsoleEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// EventPayload is shared by tree events and controller events.
type EventPayload struct {
	Path     Path           `json:"path"`
	State    State          `json:"state,omitempty"`
	FillerID string         `json:"fillerId,omitempty"`
	ExecID   string         `json:"execId,omitempty"`
	Args     []any          `json:"args,omitempty"`
	Result   any            `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	Code     string         `json:"code,omitempty"`
	Console  []ConsoleEntry `json:"console,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// Bubble returns a copy of p with id prepended to its path.
func (p *EventPayload) Bubble(id NodeID) *EventPayload {
	cp := *p
	cp.Path = p.Path.Prepend(id)
	return &cp
}

// ControlCommand is a controller request.
type ControlCommand struct {
	Type    ControlType     `json:"type"`
	Payload *CommandPayload `json:"payload,omitempty"`
}

// ControlEvent is a notification for the controller.
type ControlEvent struct {
	Type    NoticeType    `json:"type"`
	Payload *EventPayload `json:"payload"`
}

// Command travels from a parent to one of its children.
type Command struct {
	Type    CommandType     `json:"type"`
	Payload *CommandPayload `json:"payload"`
}

// Event travels from a child to its parent.
type Event struct {
	Type    EventType     `json:"type"`
	Payload *EventPayload `json:"payload"`
}

// Created reports that the emitting node finished init.
func Created() Event {
	return Event{Type: EvtCreated, Payload: &EventPayload{Path: Path{}, State: StateEmpty}}
}

// Filled reports that the emitting node is ready to execute.
func Filled(fillerID string) Event {
	return Event{Type: EvtFilled, Payload: &EventPayload{Path: Path{}, State: StateReady, FillerID: fillerID}}
}

// Failed reports err on behalf of the emitting node.
func Failed(err error) Event {
	return Event{Type: EvtError, Payload: &EventPayload{Path: Path{}, Error: err.Error(), Code: ErrorCode(err)}}
}
