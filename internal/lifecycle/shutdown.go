package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type stopFunc func(context.Context) error

// Shutdown releases process resources in the reverse of the order they were
// acquired: the Telegram poller stops first, the database closes last.
type Shutdown struct {
	log *slog.Logger

	mu    sync.Mutex
	names []string
	stops []stopFunc
}

func NewShutdown(log *slog.Logger) *Shutdown {
	if log == nil {
		log = slog.Default()
	}
	return &Shutdown{log: log}
}

// Register pushes a named stop function; nil functions are ignored.
func (s *Shutdown) Register(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	s.names = append(s.names, name)
	s.stops = append(s.stops, fn)
	s.mu.Unlock()
}

// Execute pops every registered function, even after one fails or ctx expires,
// and joins the failures.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	names, stops := s.names, s.stops
	s.names, s.stops = nil, nil
	s.mu.Unlock()

	started := time.Now()
	var errs []error
	for i := len(stops) - 1; i >= 0; i-- {
		if err := stops[i](ctx); err != nil {
			s.log.Error("stop failed", slog.String("component", names[i]), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", names[i], err))
			continue
		}
		s.log.Debug("stopped", slog.String("component", names[i]))
	}

	s.log.Info("shutdown finished",
		slog.Int("components", len(stops)),
		slog.Int("failed", len(errs)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return errors.Join(errs...)
}

// Closer adapts a Close method.
func Closer(fn func() error) func(context.Context) error {
	return func(context.Context) error { return fn() }
}

// Stopper adapts a stop method that cannot fail.
func Stopper(fn func()) func(context.Context) error {
	return func(context.Context) error {
		fn()
		return nil
	}
}
