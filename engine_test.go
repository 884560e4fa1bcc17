package eventserver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hookRecorder records the order hooks were called in.
type hookRecorder struct {
	mu       sync.Mutex
	calls    []string
	failures []recordedFailure
}

type recordedFailure struct {
	state State
	err   error
}

func (x *hookRecorder) record(name string) {
	x.mu.Lock()
	x.calls = append(x.calls, name)
	x.mu.Unlock()
}

func (x *hookRecorder) Calls() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]string(nil), x.calls...)
}

func (x *hookRecorder) Failures() []recordedFailure {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]recordedFailure(nil), x.failures...)
}

// hooks wraps fns such that every call is recorded, before delegating.
func (x *hookRecorder) hooks(fns HookFuncs[int]) *HookFuncs[int] {
	return &HookFuncs[int]{
		StartupFunc: func() error {
			x.record("startup")
			if fns.StartupFunc != nil {
				return fns.StartupFunc()
			}
			return nil
		},
		FetchFunc: func() (int, error) {
			x.record("fetch")
			if fns.FetchFunc != nil {
				return fns.FetchFunc()
			}
			return 0, nil
		},
		ProcessFunc: func(batch int) error {
			x.record("process")
			if fns.ProcessFunc != nil {
				return fns.ProcessFunc(batch)
			}
			return nil
		},
		InterruptFunc: func() {
			x.record("interrupt")
			if fns.InterruptFunc != nil {
				fns.InterruptFunc()
			}
		},
		ShutdownFunc: func() error {
			x.record("shutdown")
			if fns.ShutdownFunc != nil {
				return fns.ShutdownFunc()
			}
			return nil
		},
		AfterStartFunc: func() {
			x.record("after start")
			if fns.AfterStartFunc != nil {
				fns.AfterStartFunc()
			}
		},
		AfterDoneFunc: func() {
			x.record("after done")
			if fns.AfterDoneFunc != nil {
				fns.AfterDoneFunc()
			}
		},
		OnFailureFunc: func(state State, err error) {
			x.record("failure")
			x.mu.Lock()
			x.failures = append(x.failures, recordedFailure{state: state, err: err})
			x.mu.Unlock()
		},
	}
}

func inlineRunner() Option { return WithRunner(func(run func()) { run() }) }

func TestEngine_hookOrder(t *testing.T) {
	errBoom := errors.New("boom")

	for _, tc := range [...]struct {
		name         string
		fns          func(e **Engine[int]) HookFuncs[int]
		want         []string
		wantFailures []State
	}{
		{
			name: "stop during process",
			fns: func(e **Engine[int]) HookFuncs[int] {
				return HookFuncs[int]{
					ProcessFunc: func(int) error {
						(*e).Stop()
						return nil
					},
				}
			},
			want: []string{"startup", "after start", "fetch", "process", "interrupt", "fetch", "shutdown", "after done"},
		},
		{
			name: "startup fails",
			fns: func(**Engine[int]) HookFuncs[int] {
				return HookFuncs[int]{StartupFunc: func() error { return errBoom }}
			},
			want:         []string{"startup", "failure", "shutdown", "after done"},
			wantFailures: []State{StateStarting},
		},
		{
			name: "fetch fails",
			fns: func(**Engine[int]) HookFuncs[int] {
				return HookFuncs[int]{FetchFunc: func() (int, error) { return 0, errBoom }}
			},
			want:         []string{"startup", "after start", "fetch", "failure", "shutdown", "after done"},
			wantFailures: []State{StateRunning},
		},
		{
			name: "process fails",
			fns: func(**Engine[int]) HookFuncs[int] {
				return HookFuncs[int]{ProcessFunc: func(int) error { return errBoom }}
			},
			want:         []string{"startup", "after start", "fetch", "process", "failure", "shutdown", "after done"},
			wantFailures: []State{StateRunning},
		},
		{
			name: "shutdown fails",
			fns: func(e **Engine[int]) HookFuncs[int] {
				return HookFuncs[int]{
					ProcessFunc: func(int) error {
						(*e).Stop()
						return nil
					},
					ShutdownFunc: func() error { return errBoom },
				}
			},
			want:         []string{"startup", "after start", "fetch", "process", "interrupt", "fetch", "shutdown", "failure", "after done"},
			wantFailures: []State{StateStopping},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var (
				rec    hookRecorder
				engine *Engine[int]
			)
			engine, err := NewEngine[int](rec.hooks(tc.fns(&engine)), inlineRunner())
			require.NoError(t, err)

			engine.Start()

			assert.True(t, engine.IsDone())
			if diff := cmp.Diff(tc.want, rec.Calls()); diff != "" {
				t.Errorf("unexpected hook order (-want +got):\n%s", diff)
			}

			failures := rec.Failures()
			var states []State
			for _, f := range failures {
				states = append(states, f.state)
				assert.ErrorIs(t, f.err, errBoom)
			}
			if diff := cmp.Diff(tc.wantFailures, states); diff != "" {
				t.Errorf("unexpected failure states (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEngine_fetchedBatchDiscardedAfterStop(t *testing.T) {
	var (
		rec       hookRecorder
		engine    *Engine[int]
		processed []int
		fetches   int
	)
	engine, err := NewEngine[int](rec.hooks(HookFuncs[int]{
		FetchFunc: func() (int, error) {
			fetches++
			if fetches == 2 {
				// arrives while "blocked"
				engine.Stop()
			}
			return fetches, nil
		},
		ProcessFunc: func(batch int) error {
			processed = append(processed, batch)
			return nil
		},
	}), inlineRunner())
	require.NoError(t, err)

	engine.Start()

	assert.Equal(t, []int{1}, processed)
	assert.Equal(t, 2, fetches)
}

func TestEngine_statePredicates(t *testing.T) {
	var (
		startupEntered  = make(chan struct{})
		startupRelease  = make(chan struct{})
		running         = make(chan struct{})
		shutdownEntered = make(chan struct{})
		shutdownRelease = make(chan struct{})
		interrupt       = make(chan struct{}, 1)
		interrupts      atomic.Int32
	)

	engine, err := NewEngine[int](&HookFuncs[int]{
		StartupFunc: func() error {
			close(startupEntered)
			<-startupRelease
			return nil
		},
		AfterStartFunc: func() { close(running) },
		FetchFunc: func() (int, error) {
			<-interrupt
			return 0, nil
		},
		InterruptFunc: func() {
			interrupts.Add(1)
			interrupt <- struct{}{}
		},
		ShutdownFunc: func() error {
			close(shutdownEntered)
			<-shutdownRelease
			return nil
		},
	})
	require.NoError(t, err)

	assert.True(t, engine.IsStopped())
	assert.Equal(t, StateStopped, engine.State())

	// Stop is ignored before Start
	engine.Stop()
	assert.True(t, engine.IsStopped())

	engine.Start()
	<-startupEntered
	assert.True(t, engine.IsStarting())
	assert.False(t, engine.IsStopped())

	// Stop is ignored unless running
	engine.Stop()
	assert.True(t, engine.IsStarting())

	close(startupRelease)
	<-running
	assert.True(t, engine.IsRunning())

	engine.Stop()
	<-shutdownEntered
	assert.True(t, engine.IsStopping())

	// Stop is ignored while stopping
	engine.Stop()
	assert.True(t, engine.IsStopping())

	close(shutdownRelease)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, engine.Wait(ctx))
	assert.True(t, engine.IsDone())

	// terminal
	engine.Start()
	engine.Stop()
	assert.True(t, engine.IsDone())
	assert.Equal(t, StateDone, engine.State())
	assert.Equal(t, int32(1), interrupts.Load())
}

func TestEngine_Start_concurrentSingleRun(t *testing.T) {
	var runs atomic.Int32
	engine, err := NewEngine[int](&HookFuncs[int]{
		StartupFunc: func() error {
			runs.Add(1)
			return errors.New("stop immediately")
		},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			engine.Start()
		}()
	}
	close(start)
	wg.Wait()

	select {
	case <-engine.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestEngine_panicsReported(t *testing.T) {
	for _, hook := range [...]string{"startup", "fetch", "process", "shutdown", "after start", "after done"} {
		t.Run(hook, func(t *testing.T) {
			var (
				failures []error
				engine   *Engine[int]
				fetches  int
			)
			maybePanic := func(name string) {
				if name == hook {
					panic(name)
				}
			}
			engine, err := NewEngine[int](&HookFuncs[int]{
				StartupFunc: func() error {
					maybePanic("startup")
					return nil
				},
				AfterStartFunc: func() { maybePanic("after start") },
				FetchFunc: func() (int, error) {
					fetches++
					if fetches > 1 {
						engine.Stop()
					}
					maybePanic("fetch")
					return 0, nil
				},
				ProcessFunc: func(int) error {
					maybePanic("process")
					return nil
				},
				ShutdownFunc: func() error {
					maybePanic("shutdown")
					return nil
				},
				AfterDoneFunc: func() { maybePanic("after done") },
				OnFailureFunc: func(_ State, err error) { failures = append(failures, err) },
			}, inlineRunner())
			require.NoError(t, err)

			engine.Start()

			assert.True(t, engine.IsDone())
			require.Len(t, failures, 1)
			var pe *PanicError
			require.ErrorAs(t, failures[0], &pe)
			assert.Equal(t, hook, pe.Hook)
			assert.Equal(t, hook, pe.Value)
		})
	}
}

func TestEngine_interruptPanicReportedByRun(t *testing.T) {
	var (
		engine   *Engine[int]
		failures []error
		stopped  bool
	)
	engine, err := NewEngine[int](&HookFuncs[int]{
		ProcessFunc: func(int) error {
			if !stopped {
				stopped = true
				engine.Stop()
			}
			return nil
		},
		InterruptFunc: func() { panic("interrupt") },
		OnFailureFunc: func(state State, err error) {
			assert.Equal(t, StateStopping, state)
			failures = append(failures, err)
		},
	}, inlineRunner())
	require.NoError(t, err)

	engine.Start()

	require.Len(t, failures, 1)
	var pe *PanicError
	require.ErrorAs(t, failures[0], &pe)
	assert.Equal(t, "interrupt", pe.Hook)
}

func TestEngine_slowInterruptOrderedBeforeShutdown(t *testing.T) {
	var (
		running          = make(chan struct{})
		interruptEntered = make(chan struct{})
		interruptRelease = make(chan struct{})
		interruptDone    atomic.Bool
		overlapped       atomic.Bool
		failures         []error
	)
	engine, err := NewEngine[int](&HookFuncs[int]{
		AfterStartFunc: func() { close(running) },
		// never blocks, so the run goroutine races ahead of Interrupt
		FetchFunc: func() (int, error) { return 0, nil },
		InterruptFunc: func() {
			defer interruptDone.Store(true)
			close(interruptEntered)
			<-interruptRelease
			panic("interrupt")
		},
		ShutdownFunc: func() error {
			if !interruptDone.Load() {
				overlapped.Store(true)
			}
			return nil
		},
		OnFailureFunc: func(state State, err error) {
			assert.Equal(t, StateStopping, state)
			failures = append(failures, err)
		},
	})
	require.NoError(t, err)

	engine.Start()
	<-running

	go engine.Stop()
	<-interruptEntered

	select {
	case <-engine.Done():
		t.Fatal("lifecycle completed while interrupt was running")
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, engine.IsStopping())

	close(interruptRelease)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, engine.Wait(ctx))

	assert.False(t, overlapped.Load())
	require.Len(t, failures, 1)
	var pe *PanicError
	require.ErrorAs(t, failures[0], &pe)
	assert.Equal(t, "interrupt", pe.Hook)
}

func TestEngine_failureHookPanicContained(t *testing.T) {
	var afterDone bool
	engine, err := NewEngine[int](&HookFuncs[int]{
		StartupFunc:   func() error { return errors.New("boom") },
		OnFailureFunc: func(State, error) { panic("failure hook") },
		AfterDoneFunc: func() { afterDone = true },
	}, inlineRunner())
	require.NoError(t, err)

	engine.Start()

	assert.True(t, engine.IsDone())
	assert.True(t, afterDone)
}

func TestNewEngine_errors(t *testing.T) {
	_, err := NewEngine[int](nil)
	assert.ErrorIs(t, err, ErrNilHooks)

	_, err = NewEngine[int](&HookFuncs[int]{}, WithRunner(nil))
	assert.Error(t, err)

	_, err = NewEngine[int](&HookFuncs[int]{}, WithLogRates(map[time.Duration]int{time.Second: 0}))
	assert.Error(t, err)

	// counts must increase with the window
	_, err = NewEngine[int](&HookFuncs[int]{}, WithLogRates(map[time.Duration]int{time.Second: 10, time.Minute: 5}))
	assert.Error(t, err)

	_, err = NewEngine[int](&HookFuncs[int]{}, nil, WithLogRates(map[time.Duration]int{}))
	assert.NoError(t, err)
}

func TestEngine_Wait_contextDone(t *testing.T) {
	engine, err := NewEngine[int](&HookFuncs[int]{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, engine.Wait(ctx), context.Canceled)
}
