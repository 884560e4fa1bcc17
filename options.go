// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventserver

import (
	"errors"
	"time"

	"github.com/joeycumines/logiface"
)

// options holds configuration options for Engine and TCPServer creation.
type options struct {
	logger   *logiface.Logger[logiface.Event]
	runner   func(run func())
	logRates map[time.Duration]int
}

// --- Options ---

// Option configures an Engine or TCPServer instance.
type Option interface {
	applyOption(*options) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyOptionFunc func(*options) error
}

func (o *optionImpl) applyOption(opts *options) error {
	return o.applyOptionFunc(opts)
}

// WithLogger sets the structured logger. A nil logger (the default) disables
// logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *options) error {
		opts.logger = logger
		return nil
	}}
}

// WithRunner overrides how the engine starts its run function. The default
// runs it in a new goroutine. Passing a runner that calls run inline makes
// Start block until the lifecycle reaches StateDone, which is useful for
// deterministic tests.
func WithRunner(runner func(run func())) Option {
	return &optionImpl{func(opts *options) error {
		if runner == nil {
			return errors.New("eventserver: nil runner")
		}
		opts.runner = runner
		return nil
	}}
}

// WithLogRates sets the per-category rate limits applied to repeated
// warning and error logs, e.g. read errors from many connections. Keys are
// window sizes, values the number of events allowed per window. An empty
// map disables rate limiting.
func WithLogRates(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *options) error {
		for window, limit := range rates {
			if window <= 0 || limit <= 0 {
				return errors.New("eventserver: invalid log rate")
			}
		}
		opts.logRates = rates
		return nil
	}}
}

// resolveOptions applies Option instances to options.
func resolveOptions(opts []Option) (*options, error) {
	cfg := &options{
		runner: func(run func()) { go run() },
		logRates: map[time.Duration]int{
			time.Second: 5,
			time.Minute: 60,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
