package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/GriffinCanCode/sandtree/internal/backend"
	"github.com/GriffinCanCode/sandtree/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sandtree/internal/protocol"
	"github.com/GriffinCanCode/sandtree/internal/sandbox"
	"github.com/GriffinCanCode/sandtree/internal/shared/mailbox"
	"github.com/GriffinCanCode/sandtree/internal/worker"
)

type recorder struct {
	events chan protocol.ControlEvent
}

func newRecorder() *recorder {
	return &recorder{events: make(chan protocol.ControlEvent, 256)}
}

func (r *recorder) Emit(evt protocol.ControlEvent) { r.events <- evt }

func (r *recorder) next(t *testing.T) protocol.ControlEvent {
	t.Helper()
	select {
	case evt := <-r.events:
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for controller event")
		return protocol.ControlEvent{}
	}
}

func (r *recorder) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case evt := <-r.events:
		t.Fatalf("unexpected %s event: %+v", evt.Type, evt.Payload)
	case <-time.After(d):
	}
}

// states collects n workerState events keyed by path.
func (r *recorder) states(t *testing.T, n int) map[string]protocol.EventPayload {
	t.Helper()
	out := make(map[string]protocol.EventPayload, n)
	for len(out) < n {
		evt := r.next(t)
		require.Equal(t, protocol.NoticeWorkerState, evt.Type, "payload %+v", evt.Payload)
		out[evt.Payload.Path.String()] = *evt.Payload
	}
	return out
}

type harness struct {
	orch    *Orchestrator
	sink    *recorder
	metrics *monitoring.Metrics
	exited  atomic.Int32
	done    chan error
	cancel  context.CancelFunc
}

func start(t *testing.T, kind backend.Type, pages *backend.Pages) *harness {
	t.Helper()

	pool, err := sandbox.NewPool(sandbox.DefaultConfig(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	if pages == nil {
		pages = backend.NewPages()
		pages.Register("worker", worker.Factory())
	}

	h := &harness{sink: newRecorder(), metrics: monitoring.NewMetrics(), done: make(chan error, 1)}
	h.exited.Store(-1)

	signals := mailbox.New[backend.Signal]()
	b, err := backend.New(kind, signals, backend.Config{Sand: "worker", Pages: pages, Pool: pool, Metrics: h.metrics})
	require.NoError(t, err)

	h.orch = New(b, signals, h.sink,
		WithMetrics(h.metrics),
		WithExit(func(code int) { h.exited.Store(int32(code)) }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.orch.Run(ctx) }()

	ready := h.sink.next(t)
	require.Equal(t, protocol.NoticeReady, ready.Type)
	return h
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not stop")
	}
}

func rootOf(states map[string]protocol.EventPayload) protocol.NodeID {
	for _, s := range states {
		if len(s.Path) == 1 {
			return s.Path[0]
		}
	}
	return ""
}

func TestEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := start(t, backend.TypeGoja, nil)
	defer h.stop(t)

	h.orch.CreateWorker(protocol.WorkerOptions{Subworkers: []protocol.WorkerOptions{{}}})

	states := h.sink.states(t, 2)
	var leaf protocol.Path
	for _, s := range states {
		assert.Equal(t, protocol.StateEmpty, s.State)
		if len(s.Path) == 2 {
			leaf = s.Path
		}
	}
	require.NotNil(t, leaf)
	assert.Equal(t, rootOf(states), leaf[0])

	h.orch.FillWorker(leaf, "(function (a, b) { return a + b })", "adder", nil)
	filled := h.sink.next(t)
	require.Equal(t, protocol.NoticeWorkerState, filled.Type)
	assert.Equal(t, protocol.StateReady, filled.Payload.State)
	assert.Equal(t, "adder", filled.Payload.FillerID)
	assert.Equal(t, leaf.String(), filled.Payload.Path.String())

	h.orch.Exec(leaf, "sum", 2, 3)
	done := h.sink.next(t)
	require.Equal(t, protocol.NoticeDone, done.Type)
	assert.Equal(t, leaf.String(), done.Payload.Path.String())
	assert.Equal(t, "sum", done.Payload.ExecID)
	assert.Equal(t, []any{2, 3}, done.Payload.Args)
	assert.EqualValues(t, 5, done.Payload.Result)

	snap := h.orch.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, WorkerStatus{Path: string(leaf[0]), State: protocol.StateEmpty}, snap[0])
	assert.Equal(t, WorkerStatus{Path: leaf.String(), State: protocol.StateDirty}, snap[1])
}

func TestUnknownRoot(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := start(t, backend.TypeGoja, nil)
	defer h.stop(t)

	h.orch.Exec(protocol.Path{"nobody", "child"}, "x")

	evt := h.sink.next(t)
	require.Equal(t, protocol.NoticeError, evt.Type)
	assert.Equal(t, protocol.CodeUnknownNode, evt.Payload.Code)
	assert.Contains(t, evt.Payload.Error, "nobody")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RoutingErrors))
}

func TestUnknownChild(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := start(t, backend.TypeGoja, nil)
	defer h.stop(t)

	h.orch.CreateWorker(protocol.WorkerOptions{})
	root := rootOf(h.sink.states(t, 1))

	h.orch.FillWorker(protocol.Path{root, "ghost"}, "(function () {})", "f", nil)

	evt := h.sink.next(t)
	require.Equal(t, protocol.NoticeError, evt.Type)
	assert.Equal(t, protocol.CodeUnknownNode, evt.Payload.Code)
	assert.Equal(t, protocol.Path{root}.String(), evt.Payload.Path.String())
}

func TestReloadUnknownChildLeavesSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := start(t, backend.TypeGoja, nil)
	defer h.stop(t)

	h.orch.CreateWorker(protocol.WorkerOptions{})
	root := rootOf(h.sink.states(t, 1))

	h.orch.ReloadWorker(protocol.Path{root, "ghost"})

	evt := h.sink.next(t)
	require.Equal(t, protocol.NoticeError, evt.Type)
	assert.Equal(t, protocol.CodeUnknownNode, evt.Payload.Code)

	assert.Equal(t, []WorkerStatus{{Path: string(root), State: protocol.StateEmpty}}, h.orch.Snapshot())
}

func TestSnapshotTracksDispatch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := start(t, backend.TypeGoja, nil)

	h.orch.CreateWorker(protocol.WorkerOptions{Subworkers: []protocol.WorkerOptions{{}}})
	states := h.sink.states(t, 2)
	root := rootOf(states)
	leaf := protocol.Path{root}
	for _, s := range states {
		if len(s.Path) == 2 {
			leaf = s.Path
		}
	}

	stateOf := func(path protocol.Path) protocol.State {
		for _, st := range h.orch.Snapshot() {
			if st.Path == path.String() {
				return st.State
			}
		}
		return ""
	}

	// a fill that fails to compile leaves the leaf dirty
	h.orch.FillWorker(leaf, "(function (", "broken", nil)
	evt := h.sink.next(t)
	require.Equal(t, protocol.NoticeError, evt.Type)
	assert.Equal(t, protocol.StateDirty, stateOf(leaf))

	h.orch.FillWorker(protocol.Path{root}, "(function () { for (;;) {} })", "spin", nil)
	require.Equal(t, protocol.StateReady, h.sink.next(t).Payload.State)
	assert.Equal(t, protocol.StateReady, stateOf(protocol.Path{root}))

	h.orch.Exec(protocol.Path{root}, "spin")
	require.Eventually(t, func() bool {
		return stateOf(protocol.Path{root}) == protocol.StateBusy
	}, 5*time.Second, 10*time.Millisecond)

	// busy is not ready, so a second exec leaves the snapshot alone
	h.orch.Exec(protocol.Path{root}, "again")
	h.sink.quiet(t, 50*time.Millisecond)
	assert.Equal(t, protocol.StateBusy, stateOf(protocol.Path{root}))

	h.orch.Destroy()
	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, ErrDestroyed)
	case <-time.After(5 * time.Second):
		t.Fatal("destroy did not return")
	}
	h.cancel()
}

func TestReloadRoot(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := start(t, backend.TypeGoja, nil)
	defer h.stop(t)

	h.orch.CreateWorker(protocol.WorkerOptions{Subworkers: []protocol.WorkerOptions{{}}})
	first := h.sink.states(t, 2)
	root := rootOf(first)

	h.orch.FillWorker(protocol.Path{root}, "(function () { return 1 })", "one", nil)
	require.Equal(t, protocol.StateReady, h.sink.next(t).Payload.State)
	h.orch.Exec(protocol.Path{root}, "e1")
	require.Equal(t, protocol.NoticeDone, h.sink.next(t).Type)

	h.orch.ReloadWorker(protocol.Path{root})

	second := h.sink.states(t, 2)
	assert.Equal(t, root, rootOf(second), "root keeps its id across reload")
	for key, s := range second {
		assert.Equal(t, protocol.StateEmpty, s.State)
		if len(s.Path) == 2 {
			_, existed := first[key]
			assert.False(t, existed, "child survived reload: %s", key)
		}
	}

	// Accepts a filler again
	h.orch.FillWorker(protocol.Path{root}, "(function () { return 2 })", "two", nil)
	filled := h.sink.next(t)
	assert.Equal(t, "two", filled.Payload.FillerID)
}

func TestReloadNestedKeepsAncestors(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := start(t, backend.TypeGoja, nil)
	defer h.stop(t)

	h.orch.CreateWorker(protocol.WorkerOptions{Subworkers: []protocol.WorkerOptions{{}}})
	states := h.sink.states(t, 2)
	root := rootOf(states)

	var leaf protocol.Path
	for _, s := range states {
		if len(s.Path) == 2 {
			leaf = s.Path
		}
	}

	h.orch.FillWorker(protocol.Path{root}, "(function () { return 'root' })", "r", nil)
	require.Equal(t, protocol.StateReady, h.sink.next(t).Payload.State)

	h.orch.ReloadWorker(leaf)
	again := h.sink.next(t)
	require.Equal(t, protocol.NoticeWorkerState, again.Type)
	assert.Equal(t, leaf.String(), again.Payload.Path.String())
	assert.Equal(t, protocol.StateEmpty, again.Payload.State)

	// Root is still ready
	h.orch.Exec(protocol.Path{root}, "e")
	done := h.sink.next(t)
	require.Equal(t, protocol.NoticeDone, done.Type)
	assert.Equal(t, "root", done.Payload.Result)
}

func TestSiblingExecsStayIsolated(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := start(t, backend.TypeGoja, nil)
	defer h.stop(t)

	h.orch.CreateWorker(protocol.WorkerOptions{Subworkers: []protocol.WorkerOptions{{}, {}}})
	states := h.sink.states(t, 3)

	var leaves []protocol.Path
	for _, s := range states {
		if len(s.Path) == 2 {
			leaves = append(leaves, s.Path)
		}
	}
	require.Len(t, leaves, 2)

	fillers := map[string]string{}
	for i, leaf := range leaves {
		id := fmt.Sprintf("f%d", i)
		fillers[leaf.String()] = id
		h.orch.FillWorker(leaf, fmt.Sprintf("(function (x) { return %q + x })", id), id, nil)
	}
	for range leaves {
		evt := h.sink.next(t)
		require.Equal(t, protocol.StateReady, evt.Payload.State)
		assert.Equal(t, fillers[evt.Payload.Path.String()], evt.Payload.FillerID)
	}

	for _, leaf := range leaves {
		h.orch.Exec(leaf, "x-"+leaf.String(), ":run")
	}
	for range leaves {
		done := h.sink.next(t)
		require.Equal(t, protocol.NoticeDone, done.Type)
		key := done.Payload.Path.String()
		assert.Equal(t, "x-"+key, done.Payload.ExecID)
		assert.Equal(t, fillers[key]+":run", done.Payload.Result)
	}
}

func TestDestroyWhileExecPending(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := start(t, backend.TypeGoja, nil)

	h.orch.CreateWorker(protocol.WorkerOptions{})
	root := rootOf(h.sink.states(t, 1))

	h.orch.FillWorker(protocol.Path{root}, "(function () { for (;;) {} })", "spin", nil)
	require.Equal(t, protocol.StateReady, h.sink.next(t).Payload.State)

	h.orch.Exec(protocol.Path{root}, "never")
	h.orch.Destroy()

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, ErrDestroyed)
	case <-time.After(5 * time.Second):
		t.Fatal("destroy did not return")
	}
	assert.Equal(t, int32(0), h.exited.Load())

	h.sink.quiet(t, 50*time.Millisecond)
	assert.False(t, h.orch.Exec(protocol.Path{root}, "late"))
	h.cancel()
}

func TestMalformedEventDropped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pages := backend.NewPages()
	pages.Register("worker", func() backend.Page {
		return backend.PageFunc(func(ctx context.Context, inbox *mailbox.Mailbox[protocol.Command], host backend.Host) error {
			<-inbox.Ready()
			inbox.Drain()
			host.Emit(protocol.Event{Type: protocol.EvtCreated})
			host.Emit(protocol.Created())
			<-ctx.Done()
			return nil
		})
	})

	h := start(t, backend.TypeGoja, pages)
	defer h.stop(t)

	h.orch.CreateWorker(protocol.WorkerOptions{})

	evt := h.sink.next(t)
	require.Equal(t, protocol.NoticeWorkerState, evt.Type)
	h.sink.quiet(t, 50*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ProtocolErrors.WithLabelValues("event")))
}

func TestMalformedCommandDropped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := start(t, backend.TypeGoja, nil)
	defer h.stop(t)

	h.orch.Submit(protocol.ControlCommand{Type: protocol.CtlExec})
	h.orch.Submit(protocol.ControlCommand{Type: "launch"})
	h.orch.Flush()

	h.sink.quiet(t, 50*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.ProtocolErrors.WithLabelValues("control")))
}

func TestStubBackend(t *testing.T) {
	h := start(t, backend.TypeStub, nil)
	defer h.stop(t)

	h.orch.CreateWorker(protocol.WorkerOptions{})
	root := rootOf(h.sink.states(t, 1))

	h.orch.FillWorker(protocol.Path{root}, "ignored", "f", nil)
	require.Equal(t, protocol.StateReady, h.sink.next(t).Payload.State)

	h.orch.Exec(protocol.Path{root}, "e", 1)
	done := h.sink.next(t)
	require.Equal(t, protocol.NoticeDone, done.Type)
	assert.Equal(t, "unsupported", done.Payload.Code)
	assert.Equal(t, protocol.Path{root}.String(), done.Payload.Path.String())
}
