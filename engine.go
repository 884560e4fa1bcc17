package eventserver

import (
	"context"
	"sync"
)

// Engine drives the start/run/stop lifecycle of a blocking event source,
// delegating every actual action to [Hooks].
//
// A single run goroutine (see [WithRunner]) executes, in order:
//
//  1. Startup. On failure: OnFailure, then skip to 5.
//  2. Transition to StateRunning, then AfterStart.
//  3. While StateRunning: Fetch, then, if still StateRunning, Process. A
//     failure of either reports OnFailure and exits the loop. A batch
//     fetched after Stop was called is discarded, unprocessed.
//  4. Transition to StateStopping.
//  5. Shutdown. A failure reports OnFailure, and does not stop 6.
//  6. Transition to StateDone, then AfterDone.
//
// Errors and panics from hooks are never propagated to callers of Start or
// Stop. They are reported exactly once, via OnFailure.
//
// An Engine is single-use: StateDone is terminal.
type Engine[T any] struct {
	// Prevent copying
	_ [0]func()

	hooks  Hooks[T]
	log    *eventLogger
	runner func(run func())

	// done is closed once AfterDone has returned
	done chan struct{}

	// interruptPanic holds a panic recovered from Interrupt (which runs on
	// the caller's goroutine), for the run goroutine to report
	interruptPanic *PanicError

	// mu orders Stop (including Interrupt) against the run goroutine's
	// transition to StateStopping, and guards interruptPanic
	mu sync.Mutex

	state atomicState
}

// NewEngine constructs a stopped Engine.
func NewEngine[T any](hooks Hooks[T], opts ...Option) (*Engine[T], error) {
	if hooks == nil {
		return nil, ErrNilHooks
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	log, err := newEventLogger(cfg)
	if err != nil {
		return nil, err
	}
	return newEngine(hooks, cfg, log), nil
}

func newEngine[T any](hooks Hooks[T], cfg *options, log *eventLogger) *Engine[T] {
	return &Engine[T]{
		hooks:  hooks,
		log:    log,
		runner: cfg.runner,
		done:   make(chan struct{}),
	}
}

// Start transitions StateStopped to StateStarting, and starts the run
// goroutine. It is a no-op in any other state.
func (e *Engine[T]) Start() {
	if !e.state.TryTransition(StateStopped, StateStarting) {
		return
	}
	e.runner(e.run)
}

// Stop transitions StateRunning to StateStopping, and calls the Interrupt
// hook. It is a no-op in any other state. Stop returns once Interrupt has,
// without waiting for the lifecycle to complete, see [Engine.Wait].
// Interrupt must not call Stop.
func (e *Engine[T]) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.TryTransition(StateRunning, StateStopping) {
		return
	}
	if err := e.call("interrupt", func() error {
		e.hooks.Interrupt()
		return nil
	}); err != nil && e.interruptPanic == nil {
		e.interruptPanic = err.(*PanicError)
	}
}

// State returns the current state.
func (e *Engine[T]) State() State { return e.state.Load() }

// IsStopped returns true if the engine has not been started.
func (e *Engine[T]) IsStopped() bool { return e.state.Load() == StateStopped }

// IsStarting returns true if the engine was started, and the startup hook
// has not yet completed.
func (e *Engine[T]) IsStarting() bool { return e.state.Load() == StateStarting }

// IsRunning returns true if the engine is fetching and processing events.
func (e *Engine[T]) IsRunning() bool { return e.state.Load() == StateRunning }

// IsStopping returns true if the engine is shutting down.
func (e *Engine[T]) IsStopping() bool { return e.state.Load() == StateStopping }

// IsDone returns true if the lifecycle has completed.
func (e *Engine[T]) IsDone() bool { return e.state.Load() == StateDone }

// Done returns a channel that is closed once the lifecycle has completed,
// after the AfterDone hook has returned.
func (e *Engine[T]) Done() <-chan struct{} { return e.done }

// Wait blocks until the lifecycle has completed, or ctx is done.
func (e *Engine[T]) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine[T]) run() {
	defer close(e.done)

	e.log.debug(logCategoryLifecycle).Log("starting")

	if err := e.call("startup", e.hooks.Startup); err != nil {
		e.fail(err)
	} else if e.state.TryTransition(StateStarting, StateRunning) {
		e.log.debug(logCategoryLifecycle).Log("running")
		if err := e.call("after start", func() error {
			e.hooks.AfterStart()
			return nil
		}); err != nil {
			e.fail(err)
		}
		if e.state.Load() == StateRunning {
			e.loop()
		}
	}

	// waits for any in-flight Stop, so Interrupt never overlaps Shutdown
	e.mu.Lock()
	e.state.Store(StateStopping)
	p := e.interruptPanic
	e.interruptPanic = nil
	e.mu.Unlock()

	e.log.debug(logCategoryLifecycle).Log("stopping")

	if p != nil {
		e.fail(p)
	}

	if err := e.call("shutdown", e.hooks.Shutdown); err != nil {
		e.fail(err)
	}

	e.state.Store(StateDone)
	e.log.debug(logCategoryLifecycle).Log("done")

	if err := e.call("after done", func() error {
		e.hooks.AfterDone()
		return nil
	}); err != nil {
		e.fail(err)
	}
}

// loop fetches before checking the state, so a Stop during Process results
// in one more Fetch, the result of which is discarded.
func (e *Engine[T]) loop() {
	for {
		var batch T
		if err := e.call("fetch", func() (err error) {
			batch, err = e.hooks.Fetch()
			return
		}); err != nil {
			e.fail(err)
			return
		}

		if e.state.Load() != StateRunning {
			return
		}

		if err := e.call("process", func() error {
			return e.hooks.Process(batch)
		}); err != nil {
			e.fail(err)
			return
		}
	}
}

// call runs fn, converting a panic into a *PanicError.
func (e *Engine[T]) call(hook string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Hook: hook}
		}
	}()
	return fn()
}

// fail reports err via OnFailure, with the current state.
func (e *Engine[T]) fail(err error) {
	state := e.state.Load()

	e.log.err(logCategoryLifecycle).
		Str("state", state.String()).
		Err(err).
		Log("hook failed")

	defer func() {
		if r := recover(); r != nil {
			e.log.err(logCategoryLifecycle).
				Str("state", state.String()).
				Interface("panic", r).
				Log("failure hook panicked")
		}
	}()

	e.hooks.OnFailure(state, err)
}
