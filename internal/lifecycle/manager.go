package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const defaultBudget = 15 * time.Second

// StopFunc stops one component. It returns once the component is idle or ctx is done.
type StopFunc func(ctx context.Context) error

// Option tunes a single component.
type Option func(*component)

// WithGrace caps how long the component may take to stop. A component that
// overruns its grace is abandoned with a warning and the rest of the shared
// budget goes to the components stopped after it.
func WithGrace(d time.Duration) Option {
	return func(c *component) {
		if d > 0 {
			c.grace = d
		}
	}
}

type component struct {
	name  string
	stop  StopFunc
	grace time.Duration
}

// Manager stops components in the reverse order they were added, all under one
// shared budget. The first component added is the last one stopped.
type Manager struct {
	budget time.Duration
	logger *zap.Logger

	mu         sync.Mutex
	components []component
	stopped    bool
}

func New(budget time.Duration, logger *zap.Logger) *Manager {
	if budget <= 0 {
		budget = defaultBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{budget: budget, logger: logger}
}

// Add registers a running component.
func (m *Manager) Add(name string, stop StopFunc, opts ...Option) {
	if stop == nil {
		return
	}
	c := component{name: name, stop: stop}
	for _, opt := range opts {
		opt(&c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, c)
}

// Go runs fn on its own goroutine and adds it as a component whose stop waits
// for fn to return. A non-nil error from fn is passed to fail.
func (m *Manager) Go(name string, fn func() error, fail func(error), opts ...Option) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := fn(); err != nil && fail != nil {
			fail(err)
		}
	}()
	m.Add(name, Await(done), opts...)
}

// Await returns a StopFunc that waits for done to close.
func Await(done <-chan struct{}) StopFunc {
	return func(ctx context.Context) error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Shutdown stops every component once and joins their errors. Later calls are no-ops.
func (m *Manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, m.budget)
	defer cancel()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	components := m.components
	m.mu.Unlock()

	var result error
	for i := len(components) - 1; i >= 0; i-- {
		if err := m.stopOne(ctx, components[i]); err != nil {
			result = errors.Join(result, err)
		}
	}
	return result
}

func (m *Manager) stopOne(ctx context.Context, c component) error {
	stopCtx := ctx
	if c.grace > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(ctx, c.grace)
		defer cancel()
	}

	start := time.Now()
	err := c.stop(stopCtx)
	log := m.logger.With(zap.String("component", c.name), zap.Duration("took", time.Since(start)))
	switch {
	case err == nil:
		log.Info("component stopped")
		return nil
	case c.grace > 0 && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		log.Warn("component abandoned after grace", zap.Duration("grace", c.grace))
		return nil
	default:
		log.Error("component stop failed", zap.Error(err))
		return fmt.Errorf("%s: %w", c.name, err)
	}
}

// WithSignals returns a context canceled on SIGINT or SIGTERM.
func (m *Manager) WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		m.logger.Info("shutdown requested", zap.NamedError("cause", context.Cause(ctx)))
	}()
	return ctx, stop
}
