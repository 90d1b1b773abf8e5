package pairing

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/leap-protocol/leap-go/pkg/cert"
	"github.com/leap-protocol/leap-go/pkg/connection"
	"github.com/leap-protocol/leap-go/pkg/log"
	"github.com/leap-protocol/leap-go/pkg/transport"
)

// Pairing errors.
var (
	ErrPairingTimedOut = errors.New("pairing timed out")
	ErrPairingFailed   = errors.New("pairing failed")
)

// DefaultWindow is how long the coordinator keeps retrying. It
// matches the bridge's own button-press window.
const DefaultWindow = 30 * time.Second

// Dialer opens the raw TLS stream to the pairing port. Injectable
// for tests.
type Dialer func(ctx context.Context, address string) (net.Conn, error)

// Config configures a pairing attempt.
type Config struct {
	// Address is the bridge host or host:port. The pairing port is
	// appended when no port is given.
	Address string

	// Store receives the credential on success.
	Store cert.Store

	// DisplayName is the CSR common name shown in the bridge's
	// client list (default: "leap-go").
	DisplayName string

	// Window bounds the whole attempt (default: 30s).
	Window time.Duration

	// Backoff paces CSR resubmissions (default: 1s initial, 5s max).
	Backoff *connection.BackoffConfig

	// Logger captures pairing state changes. Nil disables capture.
	Logger log.Logger

	// Dialer overrides the TLS dial. Nil uses the pairing TLS
	// configuration against Address.
	Dialer Dialer
}

// Pair runs the pairing exchange and persists the credential before
// reporting success. Nothing is persisted on failure.
func Pair(ctx context.Context, config Config) (*cert.Credential, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("%w: bridge address is required", ErrPairingFailed)
	}
	if config.Store == nil {
		return nil, fmt.Errorf("%w: credential store is required", ErrPairingFailed)
	}

	displayName := config.DisplayName
	if displayName == "" {
		displayName = DefaultDisplayName
	}
	window := config.Window
	if window <= 0 {
		window = DefaultWindow
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	backoffCfg := connection.BackoffConfig{
		Initial: 1 * time.Second,
		Max:     5 * time.Second,
	}
	if config.Backoff != nil {
		backoffCfg = *config.Backoff
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = tlsDialer()
	}

	p := &coordinator{
		address:     config.Address,
		store:       config.Store,
		displayName: displayName,
		backoff:     connection.NewBackoffWithConfig(backoffCfg),
		logger:      logger,
		dialer:      dialer,
	}

	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	return p.run(ctx)
}

// coordinator holds one pairing attempt's state.
type coordinator struct {
	address     string
	store       cert.Store
	displayName string
	backoff     *connection.Backoff
	logger      log.Logger
	dialer      Dialer

	conn   net.Conn
	reader *bufio.Reader
}

func (p *coordinator) run(ctx context.Context) (*cert.Credential, error) {
	defer p.closeConn()

	p.logState("", "GENERATING_KEY", "")
	keyPEM, csrPEM, err := generateCSR(p.displayName)
	if err != nil {
		return nil, err
	}
	submission, err := json.Marshal(newCSRSubmission(string(csrPEM), p.displayName))
	if err != nil {
		return nil, err
	}

	p.logState("GENERATING_KEY", "AWAITING_BUTTON", "")

	// Resubmit until the button press lets the bridge sign, the
	// window elapses, or the exchange fails outright.
	for {
		resp, err := p.submit(ctx, submission)
		switch {
		case err == nil && resp.accepted():
			return p.finish(keyPEM, resp)
		case err == nil:
			// Rejected: the button has not been pressed yet.
		case ctx.Err() != nil:
			p.logState("AWAITING_BUTTON", "TIMED_OUT", ctx.Err().Error())
			return nil, fmt.Errorf("%w: button was not pressed within the window", ErrPairingTimedOut)
		default:
			// Transport hiccup; drop the stream and redial on the
			// next attempt.
			p.closeConn()
		}

		select {
		case <-ctx.Done():
			p.logState("AWAITING_BUTTON", "TIMED_OUT", ctx.Err().Error())
			return nil, fmt.Errorf("%w: button was not pressed within the window", ErrPairingTimedOut)
		case <-time.After(p.backoff.Next()):
		}
	}
}

// submit sends one CSR submission and reads the reply.
func (p *coordinator) submit(ctx context.Context, submission []byte) (*pairResponse, error) {
	if err := p.ensureConn(ctx); err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = p.conn.SetDeadline(deadline)
	}

	if _, err := p.conn.Write(append(append([]byte(nil), submission...), '\r', '\n')); err != nil {
		return nil, err
	}

	for {
		line, err := p.reader.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}

		var resp pairResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("%w: malformed pairing response: %v", ErrPairingFailed, err)
		}
		return &resp, nil
	}
}

// finish persists the credential and reports success. The signing
// result blobs are stored exactly as received.
func (p *coordinator) finish(keyPEM []byte, resp *pairResponse) (*cert.Credential, error) {
	credential := &cert.Credential{
		PrivateKeyPEM:    keyPEM,
		CertificatePEM:   []byte(resp.Body.SigningResult.Certificate),
		CACertificatePEM: []byte(resp.Body.SigningResult.RootCertificate),
		PairedAt:         time.Now(),
	}
	if err := credential.Validate(); err != nil {
		return nil, fmt.Errorf("%w: bridge returned unusable artifacts: %v", ErrPairingFailed, err)
	}

	fingerprint, err := credential.CAFingerprint()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPairingFailed, err)
	}
	identity := cert.Identity{
		Address:       hostOnly(p.address),
		CAFingerprint: fingerprint,
	}
	if err := p.store.Save(identity, credential); err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}

	p.logState("AWAITING_BUTTON", "PAIRED", "")
	return credential, nil
}

func (p *coordinator) ensureConn(ctx context.Context) error {
	if p.conn != nil {
		return nil
	}
	conn, err := p.dialer(ctx, pairingAddress(p.address))
	if err != nil {
		return err
	}
	p.conn = conn
	p.reader = bufio.NewReader(conn)
	return nil
}

func (p *coordinator) closeConn() {
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
		p.reader = nil
	}
}

func (p *coordinator) logState(oldState, newState, reason string) {
	p.logger.Log(log.Event{
		Timestamp:  time.Now(),
		Layer:      log.LayerSession,
		Category:   log.CategoryState,
		BridgeAddr: p.address,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityPairing,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// tlsDialer dials the pairing port with the unverified pairing TLS
// configuration.
func tlsDialer() Dialer {
	return func(ctx context.Context, address string) (net.Conn, error) {
		dialer := &tls.Dialer{Config: transport.NewPairingTLSConfig()}
		return dialer.DialContext(ctx, "tcp", address)
	}
}

// pairingAddress appends the pairing port when addr has none.
func pairingAddress(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(transport.PairingPort))
}

// hostOnly strips the port, if any, for the stored identity.
func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
