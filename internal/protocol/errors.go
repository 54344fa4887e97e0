package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned by Dispatch for a type outside the vocabulary.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrUnsupported is reported by engines that cannot perform an operation.
	ErrUnsupported = &codedError{code: "unsupported", msg: "operation not supported by engine"}
)

// Error codes carried in EventPayload.Code.
const (
	CodeUnknownNode = "unknown_node"
	CodeProtocol    = "protocol"
	CodeExecution   = "execution"
)

type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Code() string  { return e.code }

// ProtocolError reports a message that is missing a required part.
type ProtocolError struct {
	Kind   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %q: %s", e.Kind, e.Reason)
}

// Code implements the coded error contract used by ErrorCode.
func (e *ProtocolError) Code() string { return CodeProtocol }

func missingPayload[K ~string](kind K) error {
	return &ProtocolError{Kind: string(kind), Reason: "no payload"}
}

// RoutingError reports a path element naming a node that does not exist.
// Path is the route walked up to the hop that failed, Missing the element
// that could not be resolved there.
type RoutingError struct {
	Path    Path
	Missing NodeID
}

func (e *RoutingError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("unknown node %q", e.Missing)
	}
	return fmt.Sprintf("unknown node %q under %s", e.Missing, e.Path)
}

// Code implements the coded error contract used by ErrorCode.
func (e *RoutingError) Code() string { return CodeUnknownNode }

// ErrorCode returns the machine-readable code for err.
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeExecution
}
