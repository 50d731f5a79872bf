// Package channel owns the persistent push connection to the operations
// service. It appends every inbound message to a bounded buffer in arrival
// order and reconnects with exponential backoff when the connection drops.
// It never interprets messages; draining and folding them into tracked state
// is the reconciler's job.
package channel

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	api "github.com/netvoice/tracker/api/v1alpha1"
	"github.com/netvoice/tracker/pkg/metrics"
)

const defaultBufferCapacity = 100

// DialFunc establishes one WebSocket connection. Tests inject their own.
type DialFunc func(ctx context.Context) (net.Conn, error)

type Channel struct {
	url  string
	dial DialFunc
	buf  *Buffer

	baseDelay time.Duration
	maxDelay  time.Duration

	connected atomic.Bool

	mu        sync.Mutex
	conn      net.Conn
	onConnect func()
}

type Option func(*Channel)

// WithBufferCapacity bounds the inbound message buffer.
func WithBufferCapacity(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.buf = newBuffer(n)
		}
	}
}

// WithReconnectDelay sets the base and cap of the reconnect backoff.
func WithReconnectDelay(base, maxDelay time.Duration) Option {
	return func(c *Channel) {
		if base > 0 {
			c.baseDelay = base
		}
		if maxDelay >= c.baseDelay {
			c.maxDelay = maxDelay
		}
	}
}

// WithDialer overrides how the connection is established.
func WithDialer(dial DialFunc) Option {
	return func(c *Channel) {
		c.dial = dial
	}
}

func New(url string, opts ...Option) *Channel {
	c := &Channel{
		url:       url,
		buf:       newBuffer(defaultBufferCapacity),
		baseDelay: 3 * time.Second,
		maxDelay:  60 * time.Second,
	}
	c.dial = func(ctx context.Context) (net.Conn, error) {
		conn, _, _, err := ws.Dial(ctx, c.url)
		return conn, err
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connected reports whether the push connection is currently live. The flag
// flips synchronously with connection events.
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Buffer exposes the inbound message buffer for draining.
func (c *Channel) Buffer() *Buffer {
	return c.buf
}

// SetOnConnect registers a callback invoked after every successful
// (re)connect, once the buffer has been reset. The reconciler uses it to
// re-arm the subscription for the live operation.
func (c *Channel) SetOnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

// Send transmits a subscription request. While the connection is down this
// is a silent no-op: the subscription is re-armed by the OnConnect callback
// once the channel is back.
func (c *Channel) Send(req api.SubscribeRequest) error {
	if !c.connected.Load() {
		return nil
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return wsutil.WriteClientText(c.conn, payload)
}

// Run keeps exactly one connection alive until the context is cancelled.
// Connection losses are transport errors, recovered automatically and never
// surfaced to the user; retries continue indefinitely.
func (c *Channel) Run(ctx context.Context) error {
	logger := zap.S().Named("channel")

	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := c.dial(ctx)
		if err != nil {
			attempt++
			delay := reconnectDelay(c.baseDelay, c.maxDelay, attempt)
			logger.Warnf("connect to %s failed (attempt %d): %v, retrying in %s", c.url, attempt, err, delay)
			metrics.IncreaseChannelReconnectsMetric()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		c.buf.Reset()
		c.setConn(conn)
		c.connected.Store(true)
		metrics.SetChannelConnectedMetric(true)
		logger.Infof("connected to %s", c.url)

		if fn := c.getOnConnect(); fn != nil {
			fn()
		}

		err = c.readLoop(ctx, conn)
		c.connected.Store(false)
		metrics.SetChannelConnectedMetric(false)
		c.setConn(nil)
		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt = 1
		delay := reconnectDelay(c.baseDelay, c.maxDelay, attempt)
		logger.Warnf("connection lost: %v, reconnecting in %s", err, delay)
		metrics.IncreaseChannelReconnectsMetric()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// readLoop reads frames until the connection breaks or the context ends.
// Frames that do not decode as event messages are logged and skipped; one
// malformed message must not take the channel down.
func (c *Channel) readLoop(ctx context.Context, conn net.Conn) error {
	logger := zap.S().Named("channel")

	// Unblock the read when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		payload, err := wsutil.ReadServerText(conn)
		if err != nil {
			return err
		}

		var msg api.EventMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Warnf("dropping malformed push message: %v", err)
			continue
		}
		c.buf.Append(msg)
	}
}

func (c *Channel) setConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Channel) getOnConnect() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onConnect
}
