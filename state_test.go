package eventserver

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStopped, "Stopped"},
		{StateStarting, "Starting"},
		{StateRunning, "Running"},
		{StateStopping, "Stopping"},
		{StateDone, "Done"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int32(tt.state), got, tt.want)
		}
	}
}

func TestAtomicState_zeroValueIsStopped(t *testing.T) {
	var s atomicState
	if got := s.Load(); got != StateStopped {
		t.Errorf("Load() = %v, want %v", got, StateStopped)
	}
}

func TestAtomicState_TryTransition(t *testing.T) {
	var s atomicState
	if s.TryTransition(StateRunning, StateStopping) {
		t.Fatal("expected transition from wrong state to fail")
	}
	if !s.TryTransition(StateStopped, StateStarting) {
		t.Fatal("expected transition to succeed")
	}
	if got := s.Load(); got != StateStarting {
		t.Errorf("Load() = %v, want %v", got, StateStarting)
	}
}

// TestAtomicState_TryTransition_singleWinner verifies concurrent callers
// race for exactly one successful transition.
func TestAtomicState_TryTransition_singleWinner(t *testing.T) {
	var (
		s       atomicState
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if s.TryTransition(StateStopped, StateStarting) {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	if n := winners.Load(); n != 1 {
		t.Errorf("winners = %d, want 1", n)
	}
}
