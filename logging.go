package eventserver

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Log categories, used as rate limiter keys, and as the "category" field.
const (
	logCategoryLifecycle = "lifecycle"
	logCategoryAccept    = "accept"
	logCategoryRead      = "read"
	logCategoryClose     = "close"
	logCategoryDispatch  = "dispatch"
)

// eventLogger pairs the (optional) structured logger with the limiter used
// to suppress floods of repeated warnings, e.g. when many peers reset their
// connections at once.
type eventLogger struct {
	l       *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
}

func newEventLogger(opts *options) (*eventLogger, error) {
	limiter, err := newLogLimiter(opts.logRates)
	if err != nil {
		return nil, err
	}
	return &eventLogger{l: opts.logger, limiter: limiter}, nil
}

// newLogLimiter converts catrate's panic on invalid rates into an error.
func newLogLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	if len(rates) == 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventserver: invalid log rates: %v", r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}

func (x *eventLogger) debug(category string) *logiface.Builder[logiface.Event] {
	return x.l.Debug().Str("category", category)
}

func (x *eventLogger) info(category string) *logiface.Builder[logiface.Event] {
	return x.l.Info().Str("category", category)
}

// warning returns nil (a valid, disabled builder) if the category is
// currently rate limited.
func (x *eventLogger) warning(category string) *logiface.Builder[logiface.Event] {
	if !x.allow(category) {
		return nil
	}
	return x.l.Warning().Str("category", category)
}

// err returns nil (a valid, disabled builder) if the category is currently
// rate limited.
func (x *eventLogger) err(category string) *logiface.Builder[logiface.Event] {
	if !x.allow(category) {
		return nil
	}
	return x.l.Err().Str("category", category)
}

func (x *eventLogger) allow(category string) bool {
	if x.l == nil {
		return false
	}
	_, ok := x.limiter.Allow(category)
	return ok
}
