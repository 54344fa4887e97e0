package backend

import (
	"context"

	"github.com/GriffinCanCode/sandtree/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandtree/internal/protocol"
	"github.com/GriffinCanCode/sandtree/internal/sandbox"
	"github.com/GriffinCanCode/sandtree/internal/shared/mailbox"
)

// Page is the program hosted inside a window. Run consumes commands from
// inbox until ctx is cancelled and must not return before every goroutine
// it started has exited.
type Page interface {
	Run(ctx context.Context, inbox *mailbox.Mailbox[protocol.Command], host Host) error
}

// PageFunc adapts a function to Page.
type PageFunc func(ctx context.Context, inbox *mailbox.Mailbox[protocol.Command], host Host) error

// Run implements Page.
func (f PageFunc) Run(ctx context.Context, inbox *mailbox.Mailbox[protocol.Command], host Host) error {
	return f(ctx, inbox, host)
}

// PageFactory builds a fresh page for each load of a window.
type PageFactory func() Page

// Host is what a page sees of the window hosting it.
type Host interface {
	ID() protocol.NodeID
	// Emit posts an event to the window owner. Events from a page that has
	// been reloaded or closed are dropped and Emit reports false.
	Emit(ev protocol.Event) bool
	// Runtime is the sandbox runtime leased to this page instance.
	Runtime() *sandbox.Runtime
	// Spawn creates a nested backend of the same engine.
	Spawn(signals *mailbox.Mailbox[Signal]) (Backend, error)
	// Nesting reports whether Spawn is supported.
	Nesting() bool
	Logger() *logging.Logger
	Metrics() *monitoring.Metrics
}
