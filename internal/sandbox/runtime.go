package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Runtime wraps a goja VM with security controls. It holds at most one
// entry point, installed by Fill and invoked by Exec.
type Runtime struct {
	vm     *goja.Runtime
	config Config
	mu     sync.Mutex
	entry  goja.Callable

	// Console output
	console   []LogEntry
	consoleMu sync.Mutex
}

// New creates a new sandboxed runtime
func New(config Config) (*Runtime, error) {
	r := &Runtime{config: config}
	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) init() error {
	r.vm = goja.New()
	r.entry = nil
	r.console = nil

	if r.config.MaxCallStack > 0 {
		r.vm.SetMaxCallStackSize(r.config.MaxCallStack)
	}
	return r.setupGlobals()
}

// Preload evaluates script in the global scope, discarding its value. Page
// preludes use it to install helpers before any filler runs.
func (r *Runtime) Preload(ctx context.Context, script string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return ErrClosed
	}

	stop := r.guard(ctx)
	_, err := r.vm.RunString(script)
	stop()

	if err != nil {
		return fmt.Errorf("preload failed: %w", err)
	}
	return nil
}

// Fill defines globals and evaluates content. The entry point is the
// completion value of content when it is callable, otherwise the global main.
func (r *Runtime) Fill(ctx context.Context, content string, globals map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return ErrClosed
	}

	for name, value := range globals {
		if err := r.vm.Set(name, value); err != nil {
			return fmt.Errorf("failed to define global %q: %w", name, err)
		}
	}

	stop := r.guard(ctx)
	val, err := r.vm.RunString(content)
	stop()

	if err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}

	if fn, ok := goja.AssertFunction(val); ok {
		r.entry = fn
		return nil
	}
	if fn, ok := goja.AssertFunction(r.vm.Get("main")); ok {
		r.entry = fn
		return nil
	}
	return ErrNoEntryPoint
}

// Exec calls the entry point with args and captures console output
// written during the call.
func (r *Runtime) Exec(ctx context.Context, args []any) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, ErrClosed
	}
	if r.entry == nil {
		return nil, ErrNotFilled
	}

	start := time.Now()
	result := &Result{Console: []LogEntry{}}

	// Clear console
	r.consoleMu.Lock()
	r.console = []LogEntry{}
	r.consoleMu.Unlock()

	callArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		callArgs[i] = r.vm.ToValue(arg)
	}

	stop := r.guard(ctx)
	val, err := r.entry(goja.Undefined(), callArgs...)
	stop()

	result.Duration = time.Since(start)

	// Collect console output
	r.consoleMu.Lock()
	result.Console = append(result.Console, r.console...)
	r.consoleMu.Unlock()

	if err == nil {
		result.Value, err = r.exportValue(val)
	}
	if err != nil {
		result.Error = err
		return result, err
	}
	return result, nil
}

// guard interrupts the VM when ctx ends or the configured timeout elapses.
// The returned stop must be called once the guarded call returns.
func (r *Runtime) guard(ctx context.Context) (stop func()) {
	var timeout <-chan time.Time
	var timer *time.Timer
	if r.config.Timeout > 0 {
		timer = time.NewTimer(r.config.Timeout)
		timeout = timer.C
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	vm := r.vm

	go func() {
		defer close(exited)
		select {
		case <-timeout:
			vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	return func() {
		close(done)
		<-exited
		if timer != nil {
			timer.Stop()
		}
		vm.ClearInterrupt()
	}
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() error {
	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	// Setup console if enabled
	if r.config.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "warn", "error", "info"} {
			if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
				return err
			}
		}
		if err := r.vm.Set("console", console); err != nil {
			return err
		}
	}

	// Setup timers (no-op for security)
	noop := func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	}
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"} {
		if err := r.vm.Set(name, noop); err != nil {
			return err
		}
	}

	return nil
}

// makeConsoleFunc creates a console function
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		r.consoleMu.Unlock()

		return goja.Undefined()
	}
}

// exportValue converts goja value to Go value. Settled promises are
// unwrapped; a rejection becomes an error.
func (r *Runtime) exportValue(val goja.Value) (interface{}, error) {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}

	if p, ok := val.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return r.exportValue(p.Result())
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("promise rejected: %s", p.Result().String())
		default:
			return nil, fmt.Errorf("promise still pending after call")
		}
	}

	return val.Export(), nil
}

// Reset clears the runtime state
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.init()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	r.entry = nil
	r.console = nil
	return nil
}
