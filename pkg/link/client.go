package link

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultPort is the TCP port the actuator node listens on.
	DefaultPort = 12345

	defaultDialTimeout  = 2 * time.Second
	defaultWriteTimeout = 500 * time.Millisecond
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDialTimeout bounds each connection attempt.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.dialer.Timeout = d
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.writeTimeout = d
	}
}

// Client is the controller side of the link: one long-lived TCP connection to the node.
// Delivery is fire-and-forget; a failed write closes the connection and the next Send dials
// again.
type Client struct {
	addr         string
	dialer       net.Dialer
	writeTimeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// Dial connects to the node at addr.
func Dial(ctx context.Context, addr string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		addr:         addr,
		dialer:       net.Dialer{Timeout: defaultDialTimeout},
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Addr returns the node address.
func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) connect(ctx context.Context) error {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return errors.Wrapf(ErrLink, "dial %s: %v", c.addr, err)
	}
	c.conn = conn
	return nil
}

// Send writes one frame. Frames from concurrent callers are never interleaved.
func (c *Client) Send(ctx context.Context, f Frame) error {
	payload, err := f.MarshalText()
	if err != nil {
		return errors.Wrap(ErrLink, err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.Wrap(ErrLink, "client closed")
	}
	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		c.drop()
		return errors.Wrapf(ErrLink, "send %s: %v", f, err)
	}
	if _, err := c.conn.Write(payload); err != nil {
		c.drop()
		return errors.Wrapf(ErrLink, "send %s: %v", f, err)
	}
	return nil
}

func (c *Client) drop() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Close closes the connection. Sends after Close fail with ErrLink.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
