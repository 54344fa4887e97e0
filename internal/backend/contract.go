package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/sandtree/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandtree/internal/protocol"
	"github.com/GriffinCanCode/sandtree/internal/sandbox"
	"github.com/GriffinCanCode/sandtree/internal/shared/mailbox"
)

var (
	ErrUnknownType = errors.New("unknown backend type")
	ErrUnknownPage = errors.New("unknown sand page")
	ErrClosed      = errors.New("backend is closed")
)

// Type discriminates backend engines.
type Type string

const (
	TypeGoja Type = "goja"
	TypeStub Type = "stub"
)

// Signal is a notification from a backend to the owner of its windows.
type Signal interface {
	WindowID() protocol.NodeID
	Gen() uint64
}

// Loaded reports that a window finished loading its page. Generation
// identifies the page instance; it increases on every reload.
type Loaded struct {
	Window     protocol.NodeID
	Generation uint64
}

// Message carries an event emitted by the page hosted in Window.
type Message struct {
	Window     protocol.NodeID
	Generation uint64
	Event      protocol.Event
}

func (s Loaded) WindowID() protocol.NodeID  { return s.Window }
func (s Loaded) Gen() uint64                { return s.Generation }
func (s Message) WindowID() protocol.NodeID { return s.Window }
func (s Message) Gen() uint64               { return s.Generation }

// Backend opens windows, each hosting one sandbox page.
type Backend interface {
	Type() Type
	// Nesting reports whether pages hosted by this backend may open
	// windows of their own.
	Nesting() bool
	Open(ctx context.Context) (Window, error)
	// Close closes every open window and waits for their pages to exit.
	Close() error
}

// Window is a handle on one hosted page.
type Window interface {
	ID() protocol.NodeID
	// Generation is the page instance signals must carry to be current.
	Generation() uint64
	// Send posts a command to the current page. It reports false once the
	// window is closed.
	Send(cmd protocol.Command) bool
	// Reload discards the current page, its subtree included, and loads a
	// fresh one. A Loaded signal with the next generation follows.
	Reload()
	Close()
}

// Config is shared by a backend and every backend nested below it.
type Config struct {
	Sand    string
	Pages   *Pages
	Pool    *sandbox.Pool
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// New builds a backend of type t that reports to signals.
func New(t Type, signals *mailbox.Mailbox[Signal], cfg Config) (Backend, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	switch t {
	case TypeGoja:
		if cfg.Pages == nil {
			return nil, fmt.Errorf("%w: no page loader", ErrUnknownPage)
		}
		if _, ok := cfg.Pages.Lookup(cfg.Sand); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPage, cfg.Sand)
		}
		if cfg.Pool == nil {
			pool, err := sandbox.NewPool(sandbox.DefaultConfig(), 1)
			if err != nil {
				return nil, err
			}
			cfg.Pool = pool
		}
		return newWindowed(signals, cfg), nil
	case TypeStub:
		return newStub(signals, cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}
