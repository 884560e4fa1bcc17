package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/eapache/queue"
	"github.com/joeycumines/logiface"
)

// ErrClosed is returned by Submit after Shutdown or Close.
var ErrClosed = errors.New("eventserver: worker pool closed")

// Pool runs submitted tasks on a fixed number of worker goroutines, in FIFO
// order of submission. The task queue is unbounded, so Submit never blocks.
type Pool struct {
	logger *logiface.Logger[logiface.Event]
	tasks  *queue.Queue
	cond   *sync.Cond
	done   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	// draining is set by Shutdown: workers exit once the queue is empty
	draining bool
	// closed is set by Shutdown and Close: Submit is rejected
	closed bool
}

// Option configures a Pool.
type Option func(p *Pool)

// WithLogger sets the logger used to report panicking tasks.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return func(p *Pool) { p.logger = logger }
}

// New starts a pool with the given number of workers. A workers value less
// than 1 uses runtime.GOMAXPROCS(0).
func New(workers int, opts ...Option) *Pool {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		tasks: queue.New(),
		done:  make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
	return p
}

// Submit enqueues task.
func (p *Pool) Submit(task func()) error {
	if task == nil {
		return errors.New("eventserver: nil task")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.tasks.Add(task)
	p.cond.Signal()
	return nil
}

// Pending returns the number of queued tasks, not yet picked up by a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks.Length()
}

// Shutdown rejects further tasks, then waits for every queued task to run,
// or ctx to be done. It may be called more than once.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.draining = true
	p.cond.Broadcast()
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further tasks, discards queued tasks, and waits for running
// tasks to complete.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.draining = true
	for p.tasks.Length() != 0 {
		p.tasks.Remove()
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	<-p.done
	return nil
}

// Done is closed once every worker has exited.
func (p *Pool) Done() <-chan struct{} { return p.done }

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		task, ok := p.next()
		if !ok {
			return
		}
		p.run(id, task)
	}
}

// next blocks until a task is available, or the pool is draining and the
// queue is empty.
func (p *Pool) next() (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.tasks.Length() == 0 {
		if p.draining {
			return nil, false
		}
		p.cond.Wait()
	}
	return p.tasks.Remove().(func()), true
}

func (p *Pool) run(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Err().
				Int("worker", id).
				Interface("panic", r).
				Log("task panicked")
		}
	}()
	task()
}
