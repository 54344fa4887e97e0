package protocol

import "strings"

// NodeID identifies a sandbox node among its siblings.
type NodeID string

// Path addresses a node from the root down, inclusive. A Path is treated as
// immutable: Next returns a view of the suffix and Prepend allocates.
type Path []NodeID

// Next splits the path into its head and the remaining suffix. ok is false
// for an empty path, which means the message is for the current node.
func (p Path) Next() (head NodeID, rest Path, ok bool) {
	if len(p) == 0 {
		return "", nil, false
	}
	return p[0], p[1:], true
}

// Prepend returns a new path with id in front of p.
func (p Path) Prepend(id NodeID) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, id)
	return append(out, p...)
}

// Clone returns a copy that shares no storage with p.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return append(Path(nil), p...)
}

// HasPrefix reports whether prefix addresses p or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// String renders the path as slash-separated IDs.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, id := range p {
		parts[i] = string(id)
	}
	return strings.Join(parts, "/")
}

// ParsePath is the inverse of Path.String.
func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}
	parts := strings.Split(s, "/")
	p := make(Path, len(parts))
	for i, part := range parts {
		p[i] = NodeID(part)
	}
	return p
}
