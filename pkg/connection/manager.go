package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/leap-protocol/leap-go/pkg/log"
)

// Manager errors.
var (
	ErrManagerClosed    = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// State is the manager's view of the session.
type State uint8

const (
	// StateDisconnected indicates no session and no retry in flight.
	StateDisconnected State = iota

	// StateConnecting indicates a caller-initiated connect attempt.
	StateConnecting

	// StateConnected indicates a live session.
	StateConnected

	// StateReconnecting indicates the retry loop is dialing.
	StateReconnecting

	// StateClosed indicates the manager has shut down.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes the session, typically a bound
// (*bridge.Bridge).Connect.
type ConnectFunc func(ctx context.Context) error

// Config configures a Manager.
type Config struct {
	// Connect is required.
	Connect ConnectFunc

	// Backoff for the retry loop. Nil takes the defaults.
	Backoff *BackoffConfig

	// AttemptTimeout bounds each retry attempt (default: 30s).
	AttemptTimeout time.Duration

	// Logger captures state transitions. Nil disables capture.
	Logger log.Logger
}

// Manager supervises one session, redialing with backoff after a
// reported loss.
type Manager struct {
	mu sync.RWMutex

	state          State
	connectFn      ConnectFunc
	backoff        *Backoff
	attemptTimeout time.Duration
	logger         log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	retryCh chan struct{}

	onStateChange  func(oldState, newState State)
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a manager and starts its retry loop.
func NewManager(config Config) *Manager {
	backoffCfg := BackoffConfig{Jitter: DefaultJitter}
	if config.Backoff != nil {
		backoffCfg = *config.Backoff
	}
	attemptTimeout := config.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		state:          StateDisconnected,
		connectFn:      config.Connect,
		backoff:        NewBackoffWithConfig(backoffCfg),
		attemptTimeout: attemptTimeout,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		retryCh:        make(chan struct{}, 1),
	}

	m.wg.Add(1)
	go m.retryLoop()
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnStateChange registers a state transition callback.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnReconnecting registers a callback invoked before each retry
// attempt's delay.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// Connect performs a caller-initiated connect.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrManagerClosed
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.mu.Unlock()
	m.transition(StateConnecting, "")

	if err := m.connectFn(ctx); err != nil {
		m.transition(StateDisconnected, err.Error())
		return err
	}

	m.backoff.Reset()
	m.transition(StateConnected, "")
	return nil
}

// ConnectionLost reports a session loss and schedules redialing.
// Wire it to the facade's OnDisconnect callback.
func (m *Manager) ConnectionLost(err error) {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	if state != StateConnected {
		return
	}

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	m.transition(StateReconnecting, reason)
	select {
	case m.retryCh <- struct{}{}:
	default:
	}
}

// Close stops the retry loop. The underlying session is the caller's
// to close.
func (m *Manager) Close() {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	if state == StateClosed {
		return
	}

	m.transition(StateClosed, "")
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) retryLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.retryCh:
			m.redial()
		}
	}
}

func (m *Manager) redial() {
	for {
		m.mu.RLock()
		state := m.state
		fn := m.onReconnecting
		m.mu.RUnlock()
		if state != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		if fn != nil {
			fn(m.backoff.Attempts(), delay)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		m.mu.RLock()
		state = m.state
		m.mu.RUnlock()
		if state != StateReconnecting {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.attemptTimeout)
		err := m.connectFn(ctx)
		cancel()
		if err == nil {
			m.backoff.Reset()
			m.transition(StateConnected, "")
			return
		}
	}
}

// transition moves to newState, emitting the change to the callback
// and the protocol log.
func (m *Manager) transition(newState State, reason string) {
	m.mu.Lock()
	oldState := m.state
	m.state = newState
	fn := m.onStateChange
	m.mu.Unlock()

	if oldState == newState {
		return
	}

	m.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})

	if fn != nil {
		fn(oldState, newState)
	}
}
