package backend

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/sandtree/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandtree/internal/protocol"
	"github.com/GriffinCanCode/sandtree/internal/sandbox"
	"github.com/GriffinCanCode/sandtree/internal/shared/id"
	"github.com/GriffinCanCode/sandtree/internal/shared/mailbox"
)

// windowed hosts each page in its own goroutine with a leased goja runtime.
type windowed struct {
	cfg     Config
	signals *mailbox.Mailbox[Signal]
	ctx     context.Context
	cancel  context.CancelFunc
	log     *logging.Logger

	mu      sync.Mutex
	windows map[protocol.NodeID]*window
	closed  bool
	wg      sync.WaitGroup
}

func newWindowed(signals *mailbox.Mailbox[Signal], cfg Config) *windowed {
	ctx, cancel := context.WithCancel(context.Background())
	return &windowed{
		cfg:     cfg,
		signals: signals,
		ctx:     ctx,
		cancel:  cancel,
		log:     cfg.Logger.Named("backend"),
		windows: make(map[protocol.NodeID]*window),
	}
}

func (b *windowed) Type() Type    { return TypeGoja }
func (b *windowed) Nesting() bool { return true }

// Open creates a window and starts loading its page.
func (b *windowed) Open(ctx context.Context) (Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	factory, ok := b.cfg.Pages.Lookup(b.cfg.Sand)
	if !ok {
		return nil, ErrUnknownPage
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	w := &window{
		id:      protocol.NodeID(id.NewWorkerID()),
		backend: b,
		factory: factory,
	}
	b.windows[w.id] = w

	w.mu.Lock()
	w.load()
	w.mu.Unlock()

	b.cfg.Metrics.NodeOpened()
	b.log.Debug("Window opened", zap.String("window", string(w.id)), zap.String("sand", b.cfg.Sand))
	return w, nil
}

// Close closes every window. Scripts still running are interrupted.
func (b *windowed) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	windows := make([]*window, 0, len(b.windows))
	for _, w := range b.windows {
		windows = append(windows, w)
	}
	b.mu.Unlock()

	b.cancel()
	for _, w := range windows {
		w.Close()
	}
	b.wg.Wait()
	return nil
}

func (b *windowed) forget(wid protocol.NodeID) {
	b.mu.Lock()
	delete(b.windows, wid)
	b.mu.Unlock()
}

// window hosts successive page generations. Only the current generation
// may emit.
type window struct {
	id      protocol.NodeID
	backend *windowed
	factory PageFactory

	mu     sync.Mutex
	gen    uint64
	inbox  *mailbox.Mailbox[protocol.Command]
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func (w *window) ID() protocol.NodeID { return w.id }

func (w *window) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen
}

func (w *window) Send(cmd protocol.Command) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}
	return w.inbox.Put(cmd)
}

func (w *window) Reload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.unload()
	w.load()

	w.backend.cfg.Metrics.IncReloads()
	w.backend.log.Debug("Window reloaded", zap.String("window", string(w.id)), zap.Uint64("generation", w.gen))
}

func (w *window) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.unload()
	done := w.done
	w.mu.Unlock()

	<-done
	w.backend.forget(w.id)
	w.backend.cfg.Metrics.NodeClosed()
}

// unload cancels the current page. Its goroutine exits on its own; the
// generation check keeps anything it still emits away from the owner.
// Callers hold w.mu.
func (w *window) unload() {
	w.cancel()
	w.inbox.Close()
}

// load starts the next page generation. Callers hold w.mu.
func (w *window) load() {
	b := w.backend

	w.gen++
	gen := w.gen
	ctx, cancel := context.WithCancel(b.ctx)
	inbox := mailbox.New[protocol.Command]()
	done := make(chan struct{})
	w.cancel, w.inbox, w.done = cancel, inbox, done

	page := w.factory()
	log := b.log.With(zap.String("window", string(w.id)), zap.Uint64("generation", gen))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(done)
		defer cancel()

		rt, err := b.cfg.Pool.Get()
		if err != nil {
			log.Error("Failed to lease sandbox runtime", zap.Error(err))
			return
		}
		defer func() {
			if err := b.cfg.Pool.Put(rt); err != nil {
				log.Warn("Failed to return sandbox runtime", zap.Error(err))
			}
		}()

		h := &host{window: w, gen: gen, rt: rt, log: log}
		if !b.signals.Put(Loaded{Window: w.id, Generation: gen}) {
			return
		}

		if err := page.Run(ctx, inbox, h); err != nil && ctx.Err() == nil {
			log.Error("Page exited", zap.Error(err))
		}
	}()
}

// host is the Host of one page generation.
type host struct {
	window *window
	gen    uint64
	rt     *sandbox.Runtime
	log    *logging.Logger
}

func (h *host) ID() protocol.NodeID { return h.window.id }

func (h *host) Emit(ev protocol.Event) bool {
	w := h.window
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.gen != h.gen {
		return false
	}
	return w.backend.signals.Put(Message{Window: w.id, Generation: h.gen, Event: ev})
}

func (h *host) Runtime() *sandbox.Runtime { return h.rt }

func (h *host) Spawn(signals *mailbox.Mailbox[Signal]) (Backend, error) {
	return New(TypeGoja, signals, h.window.backend.cfg)
}

func (h *host) Nesting() bool                { return true }
func (h *host) Logger() *logging.Logger      { return h.log }
func (h *host) Metrics() *monitoring.Metrics { return h.window.backend.cfg.Metrics }
