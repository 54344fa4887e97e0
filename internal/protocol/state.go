package protocol

// State is the lifecycle state of a single sandbox node.
type State string

const (
	StateCreating State = "creating"
	StateEmpty    State = "empty"
	StateFilling  State = "filling"
	StateReady    State = "ready"
	StateBusy     State = "busy"
	StateDirty    State = "dirty"
)

// Accepts reports whether a node in state s accepts a command of kind k
// addressed to itself. init is accepted only while creating, fill only while
// empty and exec only while ready. reload is handled by the parent hop and
// is never refused.
func (s State) Accepts(k CommandType) bool {
	switch k {
	case CmdInit:
		return s == StateCreating
	case CmdFill:
		return s == StateEmpty
	case CmdExec:
		return s == StateReady
	case CmdReload:
		return true
	default:
		return false
	}
}
