package interaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leap-protocol/leap-go/pkg/log"
	"github.com/leap-protocol/leap-go/pkg/wire"
)

// Client errors.
var (
	ErrRequestTimeout = errors.New("request timed out")
	ErrClientClosed   = errors.New("client is closed")
)

// DefaultRequestTimeout bounds how long a request waits for its
// response before giving up.
const DefaultRequestTimeout = 10 * time.Second

// Sender is the interface for sending encoded messages over a
// connection.
type Sender interface {
	Send(data []byte) error
}

// result carries the outcome of a pending request. Exactly one of
// msg and err is set.
type result struct {
	msg *wire.Message
	err error
}

// Client correlates LEAP requests with responses by ClientTag.
type Client struct {
	mu sync.RWMutex

	sender  Sender
	timeout time.Duration
	logger  log.Logger
	connID  string

	// Pending requests awaiting responses, keyed by ClientTag.
	pending   map[string]chan result
	pendingMu sync.Mutex

	// Handler for untagged subscription events.
	eventHandler func(*wire.Message)

	closed bool
}

// NewClient creates a client that sends requests through sender.
func NewClient(sender Sender) *Client {
	return &Client{
		sender:  sender,
		timeout: DefaultRequestTimeout,
		logger:  log.NoopLogger{},
		pending: make(map[string]chan result),
	}
}

// SetTimeout sets the per-request response timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// SetLogger sets the protocol logger. Session-layer events are
// emitted for every request, response and subscription event.
func (c *Client) SetLogger(logger log.Logger, connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if logger == nil {
		logger = log.NoopLogger{}
	}
	c.logger = logger
	c.connID = connID
}

// SetEventHandler sets the handler for untagged subscription events.
func (c *Client) SetEventHandler(handler func(*wire.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventHandler = handler
}

// Close marks the client closed and fails all outstanding requests.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.FailAll(ErrClientClosed)
	return nil
}

// Request sends a tagged request and waits for the matching response.
// The returned message may carry a non-success status; use
// CheckStatus to turn it into an error.
func (c *Client) Request(ctx context.Context, ct wire.CommuniqueType, url string, body any) (*wire.Message, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrClientClosed
	}
	timeout := c.timeout
	logger := c.logger
	connID := c.connID
	c.mu.RUnlock()

	tag := uuid.NewString()
	req, err := wire.NewRequest(ct, url, tag, body)
	if err != nil {
		return nil, err
	}

	data, err := wire.Encode(req)
	if err != nil {
		return nil, err
	}

	// Buffered so a resolution never blocks the read loop, even if
	// the waiter has already given up.
	resCh := make(chan result, 1)

	c.pendingMu.Lock()
	c.pending[tag] = resCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, tag)
		c.pendingMu.Unlock()
	}()

	if err := c.sender.Send(data); err != nil {
		return nil, err
	}

	logger.Log(messageEvent(connID, log.DirectionOut, log.MessageTypeRequest, req))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: %s %s after %s", ErrRequestTimeout, ct, url, timeout)
	case res := <-resCh:
		if res.err != nil {
			return nil, res.err
		}
		logger.Log(messageEvent(connID, log.DirectionIn, log.MessageTypeResponse, res.msg))
		return res.msg, nil
	}
}

// HandleMessage routes an inbound message. Untagged messages go to
// the event handler; tagged messages resolve the matching pending
// request. Tagged messages with no pending entry are dropped.
func (c *Client) HandleMessage(msg *wire.Message) {
	tag := msg.Tag()
	if tag == "" {
		c.mu.RLock()
		handler := c.eventHandler
		logger := c.logger
		connID := c.connID
		c.mu.RUnlock()

		logger.Log(messageEvent(connID, log.DirectionIn, log.MessageTypeEvent, msg))
		if handler != nil {
			handler(msg)
		}
		return
	}

	c.pendingMu.Lock()
	ch, exists := c.pending[tag]
	if exists {
		// Remove the entry so a duplicate tag cannot resolve the
		// same request twice.
		delete(c.pending, tag)
	}
	c.pendingMu.Unlock()

	if exists {
		ch <- result{msg: msg}
	}
}

// FailAll resolves every outstanding request with err. Called on
// transport loss so waiters do not hang until their timeout.
func (c *Client) FailAll(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan result)
	c.pendingMu.Unlock()

	for _, ch := range pending {
		ch <- result{err: err}
	}
}

// StatusError is returned when the bridge answers a request with a
// non-success status.
type StatusError struct {
	Status wire.Status
	URL    string
}

func (e *StatusError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("bridge returned %s for %s", e.Status, e.URL)
	}
	return fmt.Sprintf("bridge returned %s", e.Status)
}

// CheckStatus returns a *StatusError if msg carries a non-success
// status, or an error if it carries no status at all.
func CheckStatus(msg *wire.Message, url string) error {
	if msg.Header.StatusCode == nil {
		return fmt.Errorf("response for %s carries no status", url)
	}
	if !msg.Header.StatusCode.IsSuccess() {
		return &StatusError{Status: *msg.Header.StatusCode, URL: url}
	}
	return nil
}

// messageEvent builds a session-layer log event for msg.
func messageEvent(connID string, dir log.Direction, mt log.MessageType, msg *wire.Message) log.Event {
	ev := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerSession,
		Category:     log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:           mt,
			CommuniqueType: string(msg.CommuniqueType),
			Tag:            msg.Tag(),
			URL:            msg.Header.URL,
		},
	}
	if msg.Header.StatusCode != nil {
		ev.Message.Status = msg.Header.StatusCode.String()
	}
	return ev
}
