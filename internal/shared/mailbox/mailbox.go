// Package mailbox provides an unbounded FIFO used for every parent/child link
// in the sandbox tree.
//
// Put never blocks, so a parent posting a command and a child posting an
// event at the same moment cannot deadlock each other. Delivery order is the
// order of Put calls.
package mailbox

import "sync"

// Mailbox is an unbounded, ordered, multi-producer single-consumer queue.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	ready  chan struct{}
	closed bool
}

// New creates an empty mailbox
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		ready: make(chan struct{}, 1),
	}
}

// Put appends v. It reports false if the mailbox is closed.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready is signalled whenever items may be available. Consumers select on it
// and then call Drain.
func (m *Mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}

// Drain removes and returns every queued item in arrival order.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items
	m.items = nil
	return items
}

// Len returns the number of queued items
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close rejects further puts and discards anything queued.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.items = nil
}
