package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial:    time.Second,
		Max:        4 * time.Second,
		Multiplier: 2,
		Jitter:     0,
	})

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		4 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("delay %d = %v, want %v", i, got, w)
		}
	}
	if b.Attempts() != len(want) {
		t.Errorf("attempts = %d, want %d", b.Attempts(), len(want))
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Jitter: 0})
	b.Next()
	b.Next()
	b.Reset()

	if got := b.Next(); got != time.Second {
		t.Errorf("delay after reset = %v, want 1s", got)
	}
	if b.Attempts() != 1 {
		t.Errorf("attempts after reset = %d, want 1", b.Attempts())
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial: time.Second,
		Max:     time.Second,
		Jitter:  0.5,
	})

	for i := 0; i < 50; i++ {
		d := b.Next()
		if d < time.Second || d > 1500*time.Millisecond {
			t.Fatalf("jittered delay %v outside [1s, 1.5s]", d)
		}
	}
}

func TestManagerConnect(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(Config{Connect: func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}})
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if m.State() != StateConnected {
		t.Errorf("state = %v, want CONNECTED", m.State())
	}
	if err := m.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second connect = %v, want ErrAlreadyConnected", err)
	}
	if calls.Load() != 1 {
		t.Errorf("connect calls = %d, want 1", calls.Load())
	}
}

func TestManagerConnectFailure(t *testing.T) {
	dialErr := errors.New("dial failed")
	m := NewManager(Config{Connect: func(ctx context.Context) error {
		return dialErr
	}})
	defer m.Close()

	if err := m.Connect(context.Background()); !errors.Is(err, dialErr) {
		t.Fatalf("connect = %v, want dial error", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %v, want DISCONNECTED", m.State())
	}
}

func TestManagerReconnectsAfterLoss(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(Config{
		Connect: func(ctx context.Context) error {
			// First call is the initial connect; the next two retry
			// attempts fail before the fourth call succeeds.
			n := calls.Add(1)
			if n == 2 || n == 3 {
				return errors.New("still down")
			}
			return nil
		},
		Backoff: &BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond, Jitter: 0},
	})
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	var attempts atomic.Int32
	m.OnReconnecting(func(attempt int, delay time.Duration) {
		attempts.Add(1)
	})

	m.ConnectionLost(errors.New("connection lost"))

	deadline := time.Now().Add(2 * time.Second)
	for m.State() != StateConnected {
		if time.Now().After(deadline) {
			t.Fatalf("never reconnected, state=%v calls=%d", m.State(), calls.Load())
		}
		time.Sleep(time.Millisecond)
	}

	if calls.Load() != 4 {
		t.Errorf("connect calls = %d, want 4", calls.Load())
	}
	if attempts.Load() != 3 {
		t.Errorf("retry attempts = %d, want 3", attempts.Load())
	}
}

func TestManagerLossWhenNotConnectedIgnored(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(Config{Connect: func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}})
	defer m.Close()

	m.ConnectionLost(errors.New("spurious"))
	time.Sleep(20 * time.Millisecond)

	if calls.Load() != 0 {
		t.Errorf("connect called %d times for spurious loss", calls.Load())
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %v, want DISCONNECTED", m.State())
	}
}

func TestManagerClose(t *testing.T) {
	m := NewManager(Config{Connect: func(ctx context.Context) error {
		return nil
	}})

	m.Close()
	if m.State() != StateClosed {
		t.Errorf("state = %v, want CLOSED", m.State())
	}
	if err := m.Connect(context.Background()); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("connect after close = %v, want ErrManagerClosed", err)
	}
	// Idempotent.
	m.Close()
}

func TestManagerStateChangeCallback(t *testing.T) {
	m := NewManager(Config{Connect: func(ctx context.Context) error {
		return nil
	}})
	defer m.Close()

	type change struct{ from, to State }
	changes := make(chan change, 8)
	m.OnStateChange(func(oldState, newState State) {
		changes <- change{oldState, newState}
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	want := []change{
		{StateDisconnected, StateConnecting},
		{StateConnecting, StateConnected},
	}
	for i, w := range want {
		select {
		case got := <-changes:
			if got != w {
				t.Errorf("change %d = %v->%v, want %v->%v", i, got.from, got.to, w.from, w.to)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing state change %d", i)
		}
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateReconnecting, "RECONNECTING"},
		{StateClosed, "CLOSED"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
