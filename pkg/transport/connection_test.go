package transport

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// testHandler records connection callbacks.
type testHandler struct {
	mu       sync.Mutex
	messages [][]byte
	states   []ConnectionState
	errs     []error
}

func (h *testHandler) OnMessage(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]byte, len(msg))
	copy(cp, msg)
	h.messages = append(h.messages, cp)
}

func (h *testHandler) OnStateChange(_, newState ConnectionState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, newState)
}

func (h *testHandler) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *testHandler) messageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func (h *testHandler) lastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.errs) == 0 {
		return nil
	}
	return h.errs[len(h.errs)-1]
}

func (h *testHandler) currentState() ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.states) == 0 {
		return StateDisconnected
	}
	return h.states[len(h.states)-1]
}

// pipeConnection wires a Connection to one end of an in-memory pipe,
// bypassing dial and TLS. The other end plays the bridge.
func pipeConnection(t *testing.T, handler *testHandler) (*Connection, net.Conn) {
	t.Helper()

	client, server := net.Pipe()
	c := NewConnection(ConnectionConfig{}, handler)
	c.state.Store(int32(StateConnecting))
	c.attach(client)
	t.Cleanup(func() {
		c.Close()
		server.Close()
	})
	return c, server
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestConnectionSendReceive(t *testing.T) {
	handler := &testHandler{}
	conn, bridge := pipeConnection(t, handler)

	if conn.State() != StateConnected {
		t.Fatalf("state = %v, want CONNECTED", conn.State())
	}

	// Client to bridge.
	go func() {
		conn.Send([]byte(`{"CommuniqueType":"ReadRequest"}`))
	}()
	bridgeFramer := NewFramer(bridge)
	frame, err := bridgeFramer.ReadFrame()
	if err != nil {
		t.Fatalf("bridge read failed: %v", err)
	}
	if string(frame) != `{"CommuniqueType":"ReadRequest"}` {
		t.Errorf("bridge got %q", frame)
	}

	// Bridge to client.
	if err := bridgeFramer.WriteFrame([]byte(`{"CommuniqueType":"ReadResponse"}`)); err != nil {
		t.Fatalf("bridge write failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return handler.messageCount() == 1 })
}

func TestConnectionLossFailsReader(t *testing.T) {
	handler := &testHandler{}
	conn, bridge := pipeConnection(t, handler)

	// Bridge drops the connection mid-session.
	bridge.Close()

	waitFor(t, time.Second, func() bool { return handler.lastError() != nil })
	if !errors.Is(handler.lastError(), ErrConnectionLost) {
		t.Errorf("error = %v, want ErrConnectionLost", handler.lastError())
	}
	waitFor(t, time.Second, func() bool { return conn.State() == StateDisconnected })

	if err := conn.Send([]byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after loss = %v, want ErrNotConnected", err)
	}
}

func TestConnectionClose(t *testing.T) {
	handler := &testHandler{}
	conn, _ := pipeConnection(t, handler)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if conn.State() != StateDisconnected {
		t.Errorf("state = %v, want DISCONNECTED", conn.State())
	}

	// Close is idempotent and must not report a read error.
	if err := conn.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := handler.lastError(); err != nil {
		t.Errorf("unexpected error after deliberate close: %v", err)
	}
}

func TestConnectionSendWhenDisconnected(t *testing.T) {
	conn := NewConnection(ConnectionConfig{}, &testHandler{})
	if err := conn.Send([]byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectionConcurrentWriters(t *testing.T) {
	handler := &testHandler{}
	conn, bridge := pipeConnection(t, handler)

	const writers = 8
	const perWriter = 10

	received := make(chan []byte, writers*perWriter)
	go func() {
		framer := NewFramer(bridge)
		for {
			frame, err := framer.ReadFrame()
			if err != nil {
				close(received)
				return
			}
			received <- frame
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := conn.Send([]byte(`{"CommuniqueType":"ReadRequest"}`)); err != nil {
					t.Errorf("Send failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	// Every frame must arrive intact; interleaving within a frame
	// would corrupt the JSON.
	for i := 0; i < writers*perWriter; i++ {
		select {
		case frame := <-received:
			if string(frame) != `{"CommuniqueType":"ReadRequest"}` {
				t.Fatalf("corrupt frame: %q", frame)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d frames", i)
		}
	}
}

func TestConnectionStateString(t *testing.T) {
	states := map[ConnectionState]string{
		StateDisconnected: "DISCONNECTED",
		StateConnecting:   "CONNECTING",
		StateConnected:    "CONNECTED",
		StateClosing:      "CLOSING",
	}
	for state, want := range states {
		if state.String() != want {
			t.Errorf("%d.String() = %q, want %q", state, state.String(), want)
		}
	}
}
