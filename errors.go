package eventserver

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrNilHooks is returned by NewEngine when no hooks are provided.
	ErrNilHooks = errors.New("eventserver: nil hooks")

	// ErrNilHandler is returned by NewTCPServer when no handler is provided.
	ErrNilHandler = errors.New("eventserver: nil handler")

	// ErrNilExecutor is returned by NewTCPServer when no executor is provided.
	ErrNilExecutor = errors.New("eventserver: nil executor")

	// ErrInvalidConfig is wrapped by Config.Validate.
	ErrInvalidConfig = errors.New("eventserver: invalid config")

	// ErrPlatformNotSupported is reported (via the failure hook) when the
	// selector cannot be opened because the platform has no supported
	// readiness multiplexer.
	ErrPlatformNotSupported = errors.New("eventserver: platform not supported (requires epoll or kqueue)")

	// ErrSelectorClosed is returned by selector operations after Close.
	ErrSelectorClosed = errors.New("eventserver: selector closed")

	// ErrConnClosed is returned by Conn operations after the connection has
	// been closed by the reactor.
	ErrConnClosed = errors.New("eventserver: connection closed")
)

// PanicError wraps a value recovered from a panicking hook, so that it may
// be reported through the failure hook like any other error.
type PanicError struct {
	// Value is the value passed to panic.
	Value any
	// Hook names the hook that panicked, e.g. "startup".
	Hook string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("eventserver: %s hook panicked: %v", e.Hook, e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
// This enables use with [errors.Is] and [errors.As].
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
