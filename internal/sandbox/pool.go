package sandbox

import (
	"errors"
	"sync"
)

var ErrPoolClosed = errors.New("sandbox pool is closed")

// Pool keeps warm runtimes so opening a window does not pay VM setup.
// Get never waits: an empty pool creates a fresh runtime.
type Pool struct {
	config    Config
	sandboxes chan *Runtime
	size      int
	mu        sync.RWMutex
	closed    bool
	created   int
}

// NewPool creates a sandbox pool
func NewPool(config Config, size int) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		config:    config,
		sandboxes: make(chan *Runtime, size),
		size:      size,
	}

	// Pre-create sandboxes
	for i := 0; i < size; i++ {
		sandbox, err := New(config)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.created++
		pool.sandboxes <- sandbox
	}

	return pool, nil
}

// Get takes a warm runtime, or builds one when none is idle.
func (p *Pool) Get() (*Runtime, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	if closed {
		return nil, ErrPoolClosed
	}

	select {
	case sandbox := <-p.sandboxes:
		if sandbox != nil {
			return sandbox, nil
		}
		return nil, ErrPoolClosed
	default:
	}

	sandbox, err := New(p.config)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.created++
	p.mu.Unlock()
	return sandbox, nil
}

// Put resets a runtime and returns it to the pool. Runtimes beyond the
// pool size, or returned after Close, are closed.
func (p *Pool) Put(sandbox *Runtime) error {
	if sandbox == nil {
		return nil
	}

	// Reset sandbox state
	if err := sandbox.Reset(); err != nil {
		sandbox.Close()
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return sandbox.Close()
	}

	select {
	case p.sandboxes <- sandbox:
		return nil
	default:
		// Pool full, close sandbox
		return sandbox.Close()
	}
}

// Close closes pool and all sandboxes
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.sandboxes)

	// Close all sandboxes
	for sandbox := range p.sandboxes {
		sandbox.Close()
	}

	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"size":      p.size,
		"available": len(p.sandboxes),
		"created":   p.created,
		"closed":    p.closed,
	}
}
