package backend

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/GriffinCanCode/sandtree/internal/protocol"
	"github.com/GriffinCanCode/sandtree/internal/sandbox"
	"github.com/GriffinCanCode/sandtree/internal/shared/mailbox"
)

// signalReader pulls signals off a mailbox one at a time.
type signalReader struct {
	mb      *mailbox.Mailbox[Signal]
	pending []Signal
}

func (r *signalReader) next(t *testing.T) Signal {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for len(r.pending) == 0 {
		select {
		case <-r.mb.Ready():
			r.pending = append(r.pending, r.mb.Drain()...)
		case <-deadline:
			t.Fatal("timed out waiting for signal")
		}
	}
	s := r.pending[0]
	r.pending = r.pending[1:]
	return s
}

func (r *signalReader) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-r.mb.Ready():
		items := r.mb.Drain()
		assert.Empty(t, items, "unexpected signals")
	case <-time.After(d):
	}
}

func newPool(t *testing.T) *sandbox.Pool {
	t.Helper()
	pool, err := sandbox.NewPool(sandbox.DefaultConfig(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

// echoPage answers every command with a created event carrying the
// command type as filler id.
func echoPage() Page {
	return PageFunc(func(ctx context.Context, inbox *mailbox.Mailbox[protocol.Command], host Host) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-inbox.Ready():
				for _, cmd := range inbox.Drain() {
					host.Emit(protocol.Filled(string(cmd.Type)))
				}
			}
		}
	})
}

func TestNewErrors(t *testing.T) {
	signals := mailbox.New[Signal]()

	_, err := New("electron", signals, Config{})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = New(TypeGoja, signals, Config{Sand: "worker", Pages: NewPages()})
	assert.ErrorIs(t, err, ErrUnknownPage)
}

func TestStubLifecycle(t *testing.T) {
	signals := mailbox.New[Signal]()
	r := &signalReader{mb: signals}

	b, err := New(TypeStub, signals, Config{})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, TypeStub, b.Type())
	assert.False(t, b.Nesting())

	w, err := b.Open(context.Background())
	require.NoError(t, err)

	loaded := r.next(t)
	assert.Equal(t, Loaded{Window: w.ID(), Generation: 1}, loaded)

	w.Send(protocol.Command{Type: protocol.CmdInit, Payload: &protocol.CommandPayload{}})
	msg := r.next(t).(Message)
	assert.Equal(t, protocol.EvtCreated, msg.Event.Type)

	// exec before fill is inert
	w.Send(protocol.Command{Type: protocol.CmdExec, Payload: &protocol.CommandPayload{ExecID: "x"}})

	w.Send(protocol.Command{Type: protocol.CmdFill, Payload: &protocol.CommandPayload{FillerID: "f1"}})
	msg = r.next(t).(Message)
	assert.Equal(t, protocol.EvtFilled, msg.Event.Type)
	assert.Equal(t, "f1", msg.Event.Payload.FillerID)

	w.Send(protocol.Command{Type: protocol.CmdExec, Payload: &protocol.CommandPayload{ExecID: "e1", Args: []any{1.0}}})
	msg = r.next(t).(Message)
	assert.Equal(t, protocol.EvtDone, msg.Event.Type)
	assert.Equal(t, "e1", msg.Event.Payload.ExecID)
	assert.Equal(t, "unsupported", msg.Event.Payload.Code)

	r.quiet(t, 20*time.Millisecond)
}

func TestStubRejectsNestedPaths(t *testing.T) {
	signals := mailbox.New[Signal]()
	r := &signalReader{mb: signals}

	b, err := New(TypeStub, signals, Config{})
	require.NoError(t, err)
	defer b.Close()

	w, err := b.Open(context.Background())
	require.NoError(t, err)
	r.next(t)

	w.Send(protocol.Command{Type: protocol.CmdFill, Payload: &protocol.CommandPayload{Path: protocol.Path{"ghost"}}})
	msg := r.next(t).(Message)
	assert.Equal(t, protocol.EvtError, msg.Event.Type)
	assert.Equal(t, protocol.CodeUnknownNode, msg.Event.Payload.Code)
}

func TestStubReloadBumpsGeneration(t *testing.T) {
	signals := mailbox.New[Signal]()
	r := &signalReader{mb: signals}

	b, err := New(TypeStub, signals, Config{})
	require.NoError(t, err)
	defer b.Close()

	w, err := b.Open(context.Background())
	require.NoError(t, err)
	r.next(t)

	w.Reload()
	assert.Equal(t, Loaded{Window: w.ID(), Generation: 2}, r.next(t))
	assert.Equal(t, uint64(2), w.Generation())

	w.Close()
	assert.False(t, w.Send(protocol.Command{Type: protocol.CmdInit, Payload: &protocol.CommandPayload{}}))
}

func TestWindowedRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pages := NewPages()
	pages.Register("echo", echoPage)

	signals := mailbox.New[Signal]()
	r := &signalReader{mb: signals}

	b, err := New(TypeGoja, signals, Config{Sand: "echo", Pages: pages, Pool: newPool(t)})
	require.NoError(t, err)
	assert.True(t, b.Nesting())

	w, err := b.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Loaded{Window: w.ID(), Generation: 1}, r.next(t))

	require.True(t, w.Send(protocol.Command{Type: protocol.CmdInit, Payload: &protocol.CommandPayload{}}))
	msg := r.next(t).(Message)
	assert.Equal(t, w.ID(), msg.Window)
	assert.Equal(t, uint64(1), msg.Generation)
	assert.Equal(t, "init", msg.Event.Payload.FillerID)

	require.NoError(t, b.Close())
	assert.False(t, w.Send(protocol.Command{Type: protocol.CmdInit, Payload: &protocol.CommandPayload{}}))
}

func TestWindowedReloadDropsStalePage(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	pages := NewPages()
	pages.Register("slow", func() Page {
		return PageFunc(func(ctx context.Context, inbox *mailbox.Mailbox[protocol.Command], host Host) error {
			<-inbox.Ready()
			inbox.Drain()
			// Emits after the window moved on
			select {
			case <-release:
			case <-ctx.Done():
			}
			host.Emit(protocol.Created())
			<-ctx.Done()
			return nil
		})
	})

	signals := mailbox.New[Signal]()
	r := &signalReader{mb: signals}

	b, err := New(TypeGoja, signals, Config{Sand: "slow", Pages: pages, Pool: newPool(t)})
	require.NoError(t, err)
	defer b.Close()

	w, err := b.Open(context.Background())
	require.NoError(t, err)
	r.next(t)

	w.Send(protocol.Command{Type: protocol.CmdInit, Payload: &protocol.CommandPayload{}})
	w.Reload()
	close(release)

	assert.Equal(t, Loaded{Window: w.ID(), Generation: 2}, r.next(t))
	r.quiet(t, 50*time.Millisecond)
}

func TestPagesScanFS(t *testing.T) {
	fsys := fstest.MapFS{
		"math.js":          {Data: []byte("var sq = function (x) { return x * x }")},
		"tools/strings.js": {Data: []byte("var up = function (s) { return s.toUpperCase() }")},
		"README.md":        {Data: []byte("ignored")},
	}

	seen := map[string]string{}
	pages := NewPages()
	n, err := pages.ScanFS(fsys, func(name, prelude string) PageFactory {
		seen[name] = prelude
		return echoPage
	})
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"math", "tools/strings"}, pages.Names())
	assert.Contains(t, seen["math"], "x * x")

	_, ok := pages.Lookup("tools/strings")
	assert.True(t, ok)
}
