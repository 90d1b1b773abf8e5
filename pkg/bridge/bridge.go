package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/leap-protocol/leap-go/pkg/catalog"
	"github.com/leap-protocol/leap-go/pkg/cert"
	"github.com/leap-protocol/leap-go/pkg/interaction"
	"github.com/leap-protocol/leap-go/pkg/log"
	"github.com/leap-protocol/leap-go/pkg/transport"
	"github.com/leap-protocol/leap-go/pkg/wire"
)

// Bridge errors.
var (
	ErrNotConnected     = errors.New("not connected to bridge")
	ErrAlreadyConnected = errors.New("already connected to bridge")
)

// Config configures a Bridge.
type Config struct {
	// Address is the bridge host or host:port. The control port is
	// appended when no port is given.
	Address string

	// Store holds the pairing credential.
	Store cert.Store

	// RequestTimeout bounds each request (default: 10s).
	RequestTimeout time.Duration

	// ReadTimeout bounds each frame read (0 = none).
	ReadTimeout time.Duration

	// Logger captures protocol events. Nil disables capture.
	Logger log.Logger
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.New("bridge address is required")
	}
	if c.Store == nil {
		return errors.New("credential store is required")
	}
	return nil
}

// Bridge is a session with one Caseta bridge.
type Bridge struct {
	mu sync.RWMutex

	config Config
	logger log.Logger

	conn    *transport.Connection
	client  *interaction.Client
	catalog *catalog.Catalog

	connected bool

	// Called once per connection loss, off the reader goroutine.
	onDisconnect func(error)
}

// New creates a Bridge. No connection is made until Connect.
func New(config Config) (*Bridge, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Bridge{config: config, logger: logger}, nil
}

// OnDisconnect registers a callback invoked when the session is lost
// for any reason other than Close. Reconnecting inside the callback
// is the caller's decision.
func (b *Bridge) OnDisconnect(fn func(error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDisconnect = fn
}

// Connect loads the credential, dials the control port, and refreshes
// the catalog with live subscriptions. Returns cert.ErrNotPaired when
// no credential exists for the configured address.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return ErrAlreadyConnected
	}
	b.mu.Unlock()

	host, _, err := net.SplitHostPort(b.config.Address)
	if err != nil {
		host = b.config.Address
	}
	credential, err := b.config.Store.Load(cert.Identity{Address: host})
	if err != nil {
		return err
	}

	tlsConfig, err := transport.NewClientTLSConfig(credential)
	if err != nil {
		return err
	}

	conn := transport.NewConnection(transport.ConnectionConfig{
		TLSConfig:   tlsConfig,
		ReadTimeout: b.config.ReadTimeout,
		Logger:      b.logger,
	}, (*connectionHandler)(b))

	if err := conn.Connect(ctx, controlAddress(b.config.Address)); err != nil {
		return err
	}

	client := interaction.NewClient(conn)
	if b.config.RequestTimeout > 0 {
		client.SetTimeout(b.config.RequestTimeout)
	}
	client.SetLogger(b.logger, conn.ID())

	cat := catalog.New(client)
	client.SetEventHandler(cat.HandleEvent)

	b.mu.Lock()
	b.conn = conn
	b.client = client
	b.catalog = cat
	b.connected = true
	b.mu.Unlock()

	if err := cat.Refresh(ctx); err != nil {
		b.teardown()
		return fmt.Errorf("failed to load bridge inventory: %w", err)
	}
	return nil
}

// Close shuts the session down. Safe to call when not connected.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = false
	conn, client := b.conn, b.client
	b.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Connected reports whether a live session exists.
func (b *Bridge) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *Bridge) teardown() {
	b.mu.Lock()
	b.connected = false
	conn, client := b.conn, b.client
	b.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// session returns the live catalog, or ErrNotConnected.
func (b *Bridge) session() (*catalog.Catalog, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected || b.catalog == nil {
		return nil, ErrNotConnected
	}
	return b.catalog, nil
}

// ListDevices returns all controllable devices with their last-known
// states, sorted by name.
func (b *Bridge) ListDevices() ([]catalog.Device, error) {
	cat, err := b.session()
	if err != nil {
		return nil, err
	}
	return cat.Devices(), nil
}

// GetDeviceState resolves idOrName and returns the device.
func (b *Bridge) GetDeviceState(idOrName string) (catalog.Device, error) {
	cat, err := b.session()
	if err != nil {
		return catalog.Device{}, err
	}
	return cat.Resolve(idOrName)
}

// TurnOn switches the device fully on. Dimmers go to full
// brightness, matching the physical "on" press.
func (b *Bridge) TurnOn(ctx context.Context, idOrName string) error {
	return b.setState(ctx, idOrName, catalog.State{On: true, Level: 100})
}

// TurnOff switches the device off.
func (b *Bridge) TurnOff(ctx context.Context, idOrName string) error {
	return b.setState(ctx, idOrName, catalog.State{On: false})
}

// SetBrightness sets a dimmer to the given level (0-100). Zero turns
// the device off.
func (b *Bridge) SetBrightness(ctx context.Context, idOrName string, level int) error {
	return b.setState(ctx, idOrName, catalog.State{On: level > 0, Level: level})
}

func (b *Bridge) setState(ctx context.Context, idOrName string, desired catalog.State) error {
	cat, err := b.session()
	if err != nil {
		return err
	}
	// Validate before resolving so an out-of-range level is reported
	// even for misspelled names.
	if desired.Level < 0 || desired.Level > 100 {
		return fmt.Errorf("level %d out of range 0-100: %w", desired.Level, catalog.ErrInvalidArgument)
	}
	dev, err := cat.Resolve(idOrName)
	if err != nil {
		return err
	}
	return cat.SetState(ctx, dev.ID, desired)
}

// ListScenes returns all programmed scenes sorted by name.
func (b *Bridge) ListScenes() ([]catalog.Scene, error) {
	cat, err := b.session()
	if err != nil {
		return nil, err
	}
	return cat.Scenes(), nil
}

// ActivateScene resolves idOrName and presses the scene's virtual
// button.
func (b *Bridge) ActivateScene(ctx context.Context, idOrName string) error {
	cat, err := b.session()
	if err != nil {
		return err
	}
	scene, err := cat.ResolveScene(idOrName)
	if err != nil {
		return err
	}
	return cat.ActivateScene(ctx, scene.ID)
}

// controlAddress appends the control port when addr has none.
func controlAddress(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(transport.ControlPort))
}

// connectionHandler receives transport callbacks on the reader
// goroutine. It is the Bridge under a different method set so the
// transport interface does not leak into the public API.
type connectionHandler Bridge

func (h *connectionHandler) OnMessage(data []byte) {
	b := (*Bridge)(h)
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		return
	}

	msg, err := wire.Decode(data)
	if err != nil {
		// Malformed frames are capture-logged by the transport;
		// nothing to correlate.
		return
	}
	client.HandleMessage(msg)
}

func (h *connectionHandler) OnStateChange(oldState, newState transport.ConnectionState) {}

func (h *connectionHandler) OnError(err error) {
	b := (*Bridge)(h)
	b.mu.Lock()
	wasConnected := b.connected
	b.connected = false
	client := b.client
	cat := b.catalog
	fn := b.onDisconnect
	b.mu.Unlock()

	if client != nil {
		client.FailAll(err)
	}
	if cat != nil {
		cat.MarkStale()
	}
	if wasConnected && fn != nil {
		go fn(err)
	}
}
