package eventserver

// Hooks are the operations an [Engine] drives. Every I/O action of a concrete
// server (e.g. [TCPServer]) is expressed as one of these, and the engine
// guarantees the order in which they are called.
//
// All methods except Interrupt are called from the engine's run goroutine,
// sequentially. Interrupt is called from whichever goroutine called
// [Engine.Stop], and must cause a blocked Fetch to return promptly.
//
// OnFailure must not panic. If it does, the panic is recovered and logged.
type Hooks[T any] interface {
	// Startup acquires resources. An error skips the event loop entirely.
	Startup() error

	// Fetch blocks until a batch of events is available, or Interrupt is
	// called.
	Fetch() (T, error)

	// Process handles a batch returned by Fetch.
	Process(batch T) error

	// Interrupt wakes a blocked Fetch.
	Interrupt()

	// Shutdown releases resources. It is always called, even if Startup
	// failed.
	Shutdown() error

	// AfterStart is called once the engine is StateRunning.
	AfterStart()

	// AfterDone is called once the engine is StateDone.
	AfterDone()

	// OnFailure is called exactly once per failed hook, with the state
	// observed when the failure occurred.
	OnFailure(state State, err error)
}

// HookFuncs implements [Hooks] using optional function fields. Nil fields are
// no-ops, and a nil FetchFunc returns the zero value of T.
type HookFuncs[T any] struct {
	StartupFunc    func() error
	FetchFunc      func() (T, error)
	ProcessFunc    func(batch T) error
	InterruptFunc  func()
	ShutdownFunc   func() error
	AfterStartFunc func()
	AfterDoneFunc  func()
	OnFailureFunc  func(state State, err error)
}

var _ Hooks[any] = (*HookFuncs[any])(nil)

func (x *HookFuncs[T]) Startup() error {
	if x.StartupFunc == nil {
		return nil
	}
	return x.StartupFunc()
}

func (x *HookFuncs[T]) Fetch() (batch T, err error) {
	if x.FetchFunc == nil {
		return
	}
	return x.FetchFunc()
}

func (x *HookFuncs[T]) Process(batch T) error {
	if x.ProcessFunc == nil {
		return nil
	}
	return x.ProcessFunc(batch)
}

func (x *HookFuncs[T]) Interrupt() {
	if x.InterruptFunc != nil {
		x.InterruptFunc()
	}
}

func (x *HookFuncs[T]) Shutdown() error {
	if x.ShutdownFunc == nil {
		return nil
	}
	return x.ShutdownFunc()
}

func (x *HookFuncs[T]) AfterStart() {
	if x.AfterStartFunc != nil {
		x.AfterStartFunc()
	}
}

func (x *HookFuncs[T]) AfterDone() {
	if x.AfterDoneFunc != nil {
		x.AfterDoneFunc()
	}
}

func (x *HookFuncs[T]) OnFailure(state State, err error) {
	if x.OnFailureFunc != nil {
		x.OnFailureFunc(state, err)
	}
}
