package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

type fakePool struct {
	probeErr error
	closed   atomic.Bool
}

func (p *fakePool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("SELECT 1"), p.probeErr
}

func (p *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (p *fakePool) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (p *fakePool) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}

func (p *fakePool) Ping(context.Context) error { return p.probeErr }

func (p *fakePool) Close() { p.closed.Store(true) }

type recordingObserver struct {
	mu       sync.Mutex
	attempts int
	failures int
	states   []string
}

func (o *recordingObserver) ObserveConnectAttempt(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
	if err != nil {
		o.failures++
	}
}

func (o *recordingObserver) ObserveConnectionState(state string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

// scriptedDialer fails the first n dials and then returns a healthy pool.
func scriptedDialer(failures int, calls *atomic.Int32) Dialer {
	return func(ctx context.Context) (Pool, error) {
		n := calls.Add(1)
		if int(n) <= failures {
			return nil, errors.New("connection refused")
		}
		return &fakePool{}, nil
	}
}

func newTestManager(dial Dialer, attempts int, waits *atomic.Int32) *Manager {
	m := NewManager(dial, ManagerConfig{MaxAttempts: attempts, RetryDelay: time.Millisecond})
	m.wait = func(ctx context.Context, d time.Duration) error {
		if waits != nil {
			waits.Add(1)
		}
		return ctx.Err()
	}
	return m
}

func TestManagerAcquireConnectsOnce(t *testing.T) {
	var calls atomic.Int32
	m := newTestManager(scriptedDialer(0, &calls), 5, nil)
	require.Equal(t, StateUninitialized, m.State())

	first, err := m.Acquire(context.Background())
	require.NoError(t, err)
	second, err := m.Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StateReady, m.State())
}

func TestManagerRetriesThenSucceeds(t *testing.T) {
	var calls, waits atomic.Int32
	m := newTestManager(scriptedDialer(2, &calls), 5, &waits)

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(2), waits.Load())
	assert.Equal(t, StateReady, m.State())
}

func TestManagerExhaustsRetriesAndStaysInError(t *testing.T) {
	var calls, waits atomic.Int32
	observer := &recordingObserver{}
	m := newTestManager(scriptedDialer(100, &calls), 3, &waits)
	m.observer = observer

	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConnection)

	var connErr *shared.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, 3, connErr.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(2), waits.Load())
	assert.Equal(t, StateError, m.State())
	assert.Equal(t, 3, observer.failures)

	// Sticky: no new dial until Reset.
	_, err = m.Acquire(context.Background())
	assert.ErrorIs(t, err, shared.ErrConnection)
	assert.Equal(t, int32(3), calls.Load())
}

func TestManagerResetAllowsReconnect(t *testing.T) {
	var calls atomic.Int32
	m := newTestManager(scriptedDialer(2, &calls), 2, nil)

	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	require.Equal(t, StateError, m.State())

	m.Reset()
	require.Equal(t, StateUninitialized, m.State())

	_, err = m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateReady, m.State())
}

func TestManagerProbeFailureClosesPool(t *testing.T) {
	pool := &fakePool{probeErr: errors.New("probe failed")}
	m := newTestManager(func(ctx context.Context) (Pool, error) { return pool, nil }, 1, nil)

	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, pool.closed.Load())
	assert.Equal(t, StateError, m.State())
}

func TestManagerConcurrentAcquireSharesOneAttempt(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	dial := func(ctx context.Context) (Pool, error) {
		calls.Add(1)
		<-release
		return &fakePool{}, nil
	}
	m := newTestManager(dial, 5, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Pool, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Acquire(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return m.State() == StateInitializing }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
}

func TestManagerReleaseIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	m := newTestManager(scriptedDialer(0, &calls), 1, nil)

	pool, err := m.Acquire(context.Background())
	require.NoError(t, err)

	m.Release()
	m.Release()
	assert.Equal(t, StateClosed, m.State())
	assert.True(t, pool.(*fakePool).closed.Load())

	_, err = m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, StateReady, m.State())
}

func TestManagerCancelledInitializationReturnsToUninitialized(t *testing.T) {
	m := NewManager(func(ctx context.Context) (Pool, error) {
		return nil, errors.New("connection refused")
	}, ManagerConfig{MaxAttempts: 5, RetryDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateUninitialized, m.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "READY", StateReady.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}
