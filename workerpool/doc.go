// Package workerpool implements a fixed-size pool of goroutines, consuming an
// unbounded FIFO queue of tasks. It satisfies the Executor contract of the
// parent package, but has no dependency on it.
//
// A Pool with a single worker runs tasks strictly in submission order, which
// preserves the order of the notifications of each connection.
package workerpool
