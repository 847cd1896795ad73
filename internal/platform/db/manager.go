package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

// State describes the connection lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitializing:
		return "INITIALIZING"
	case StateReady:
		return "READY"
	case StateError:
		return "ERROR"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

const (
	defaultMaxAttempts = 5
	defaultRetryDelay  = time.Second
	probeQuery         = "SELECT 1"
)

// Dialer opens a new pool. It is called once per connection attempt.
type Dialer func(ctx context.Context) (Pool, error)

// Observer receives connection lifecycle events.
type Observer interface {
	ObserveConnectAttempt(err error)
	ObserveConnectionState(state string)
}

// ManagerConfig tunes the connect-with-retry loop.
type ManagerConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *slog.Logger
	Observer    Observer
}

// Manager owns the single shared pool. Concurrent callers share one
// connection attempt; an exhausted attempt leaves the manager in StateError
// until Reset is called.
type Manager struct {
	dial        Dialer
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
	observer    Observer
	wait        func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state State
	pool  Pool
	err   error
	done  chan struct{}
}

// NewManager constructs a Manager in StateUninitialized.
func NewManager(dial Dialer, cfg ManagerConfig) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dial:        dial,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		logger:      logger,
		observer:    cfg.Observer,
		wait:        sleepContext,
		state:       StateUninitialized,
	}
}

// Acquire returns the live pool, connecting first when needed.
func (m *Manager) Acquire(ctx context.Context) (Pool, error) {
	for {
		m.mu.Lock()
		switch m.state {
		case StateReady:
			pool := m.pool
			m.mu.Unlock()
			return pool, nil
		case StateError:
			err := m.err
			m.mu.Unlock()
			return nil, err
		case StateInitializing:
			done := m.done
			m.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		default:
			m.done = make(chan struct{})
			m.setState(StateInitializing)
			m.mu.Unlock()
			return m.initialize(ctx)
		}
	}
}

// Release closes the pool. It is a no-op unless the manager is ready.
func (m *Manager) Release() {
	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		return
	}
	pool := m.pool
	m.pool = nil
	m.setState(StateClosed)
	m.mu.Unlock()

	pool.Close()
	m.logger.Info("database connection closed")
}

// Reset clears a sticky error so the next Acquire reconnects.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateError && m.state != StateClosed {
		return
	}
	m.err = nil
	m.setState(StateUninitialized)
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) initialize(ctx context.Context) (Pool, error) {
	pool, err := m.connectWithRetry(ctx)

	m.mu.Lock()
	switch {
	case err == nil:
		m.pool = pool
		m.err = nil
		m.setState(StateReady)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// The caller gave up; another caller may try again.
		m.setState(StateUninitialized)
	default:
		m.err = err
		m.setState(StateError)
	}
	done := m.done
	m.done = nil
	m.mu.Unlock()

	close(done)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func (m *Manager) connectWithRetry(ctx context.Context) (Pool, error) {
	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		pool, err := m.connectOnce(ctx)
		if m.observer != nil {
			m.observer.ObserveConnectAttempt(err)
		}
		if err == nil {
			m.logger.Info("database connection established", slog.Int("attempt", attempt))
			return pool, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
		m.logger.Warn("database connection attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", m.maxAttempts),
			slog.Any("error", err))
		if attempt == m.maxAttempts {
			break
		}
		if err := m.wait(ctx, m.retryDelay); err != nil {
			return nil, err
		}
	}
	m.logger.Error("database connection retries exhausted", slog.Int("attempts", m.maxAttempts))
	return nil, &shared.ConnectionError{Attempts: m.maxAttempts, Err: lastErr}
}

func (m *Manager) connectOnce(ctx context.Context) (Pool, error) {
	pool, err := m.dial(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, probeQuery); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: liveness probe: %w", err)
	}
	return pool, nil
}

// setState must be called with mu held.
func (m *Manager) setState(state State) {
	m.state = state
	if m.observer != nil {
		m.observer.ObserveConnectionState(state.String())
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
