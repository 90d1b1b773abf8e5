package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/leap-protocol/leap-go/pkg/log"
)

// Connection states.
type ConnectionState int

const (
	// StateDisconnected indicates no connection.
	StateDisconnected ConnectionState = iota

	// StateConnecting indicates connection in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateClosing indicates close in progress.
	StateClosing
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectionLost   = errors.New("connection lost")
)

// ConnectionConfig configures a LEAP connection.
type ConnectionConfig struct {
	// TLSConfig is required. Build it with NewClientTLSConfig.
	TLSConfig *tls.Config

	// MaxMessageSize caps inbound and outbound frames (default: 1MB).
	MaxMessageSize int

	// ReadTimeout bounds each frame read (0 = no timeout). LEAP has no
	// keep-alive; a read timeout is the only liveness bound available.
	ReadTimeout time.Duration

	// WriteTimeout bounds each frame write (0 = no timeout).
	WriteTimeout time.Duration

	// Logger captures protocol events. Nil disables capture.
	Logger log.Logger
}

// ConnectionHandler handles connection events. Callbacks run on the
// connection's reader goroutine and must not block.
type ConnectionHandler interface {
	// OnMessage is called for each received frame.
	OnMessage(msg []byte)

	// OnStateChange is called when the connection state changes.
	OnStateChange(oldState, newState ConnectionState)

	// OnError is called when an error closes the connection.
	OnError(err error)
}

// Connection is one persistent session with a bridge's control port.
// At most one lives per process; the catalog and correlator share it.
type Connection struct {
	config  ConnectionConfig
	handler ConnectionHandler

	// Network connection
	conn   net.Conn
	framer *Framer

	// State
	state     atomic.Int32
	closeOnce sync.Once

	// Identity for protocol capture
	connID string
	addr   string

	// Synchronization
	mu      sync.RWMutex
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewConnection creates a new connection (not yet connected).
func NewConnection(config ConnectionConfig, handler ConnectionHandler) *Connection {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.Logger == nil {
		config.Logger = log.NoopLogger{}
	}

	c := &Connection{
		config:  config,
		handler: handler,
		connID:  uuid.New().String(),
	}
	c.state.Store(int32(StateDisconnected))

	return c
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string {
	return c.connID
}

// Connect dials the bridge and performs the TLS handshake. On success
// the reader loop starts and frames flow to the handler.
func (c *Connection) Connect(ctx context.Context, address string) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	c.addr = address

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.notifyStateChange(StateDisconnected, StateConnecting)

	dialer := &net.Dialer{}
	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.notifyStateChange(StateConnecting, StateDisconnected)
		return fmt.Errorf("dial failed: %w", err)
	}

	tlsConn := tls.Client(raw, c.config.TLSConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		c.state.Store(int32(StateDisconnected))
		c.notifyStateChange(StateConnecting, StateDisconnected)
		return fmt.Errorf("TLS handshake failed: %w", err)
	}

	c.attach(tlsConn)
	return nil
}

// attach installs an established stream and starts the reader loop.
// Split from Connect so tests can drive a connection over a pipe.
func (c *Connection) attach(conn net.Conn) {
	if c.ctx == nil {
		c.ctx, c.cancel = context.WithCancel(context.Background())
	}

	c.mu.Lock()
	c.conn = conn
	c.framer = NewFramer(conn)
	c.framer.SetMaxMessageSize(c.config.MaxMessageSize)
	c.framer.SetLogger(c.config.Logger, c.connID)
	c.mu.Unlock()

	go c.readLoop()

	c.state.Store(int32(StateConnected))
	c.notifyStateChange(StateConnecting, StateConnected)
}

// Send writes one message frame to the bridge.
// Safe for concurrent use; writes serialize on an internal mutex.
func (c *Connection) Send(data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	framer := c.framer
	conn := c.conn
	c.mu.RUnlock()

	if framer == nil {
		return ErrNotConnected
	}

	if c.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		defer conn.SetWriteDeadline(time.Time{})
	}

	return framer.WriteFrame(data)
}

// Close closes the connection. LEAP has no close handshake; the TLS
// stream is simply torn down.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		currentState := c.State()
		if currentState == StateDisconnected {
			return
		}

		c.state.Store(int32(StateClosing))
		c.notifyStateChange(currentState, StateClosing)
		c.teardown()
		c.state.Store(int32(StateDisconnected))
		c.notifyStateChange(StateClosing, StateDisconnected)
	})
	return nil
}

// forceClose tears the connection down after a failure, without the
// Closing intermediate state being observable as intentional.
func (c *Connection) forceClose() {
	c.closeOnce.Do(func() {
		currentState := c.State()
		c.teardown()
		c.state.Store(int32(StateDisconnected))
		if currentState != StateDisconnected {
			c.notifyStateChange(currentState, StateDisconnected)
		}
	})
}

func (c *Connection) teardown() {
	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.framer = nil
	c.mu.Unlock()
}

// LocalAddr returns the local network address.
func (c *Connection) LocalAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn != nil {
		return c.conn.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote network address.
func (c *Connection) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn != nil {
		return c.conn.RemoteAddr()
	}
	return nil
}

// readLoop reads frames from the connection until it closes.
func (c *Connection) readLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		framer := c.framer
		conn := c.conn
		c.mu.RUnlock()

		if framer == nil {
			return
		}

		if c.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		data, err := framer.ReadFrame()
		if err != nil {
			if c.State() == StateClosing || c.ctx.Err() != nil {
				return // Expected during close
			}
			c.handler.OnError(fmt.Errorf("%w: %v", ErrConnectionLost, err))
			c.forceClose()
			return
		}

		c.handler.OnMessage(data)
	}
}

// notifyStateChange notifies the handler and the protocol trace.
func (c *Connection) notifyStateChange(oldState, newState ConnectionState) {
	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		BridgeAddr:   c.addr,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState.String(),
			NewState: newState.String(),
		},
	})

	if c.handler != nil {
		c.handler.OnStateChange(oldState, newState)
	}
}
