// Package client sends node reports to a logger server.
package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultAddr = "127.0.0.1:7879"

var ErrClosed = errors.New("logger client closed")

// Client writes "<node>,<message>" payloads over a single TCP connection
// that is dialed on first use and redialed after a write failure.
// The protocol has no framing, so messages written back to back may be
// received by the server as one payload.
type Client struct {
	addr        string
	dialTimeout time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	nodeName string
	conn     net.Conn
	closed   bool
}

type Option func(*Client)

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New returns a client for addr; an empty addr means DefaultAddr.
func New(addr string, opts ...Option) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	c := &Client{
		addr:        addr,
		dialTimeout: 5 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetNodeName(name string) {
	c.mu.Lock()
	c.nodeName = name
	c.mu.Unlock()
}

// Log sends msg prefixed with the node name.
func (c *Client) Log(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.conn == nil {
		conn, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)
		if err != nil {
			c.logger.Warn("failed to connect to logger server", zap.String("addr", c.addr), zap.Error(err))
			return fmt.Errorf("connect to %s: %w", c.addr, err)
		}
		c.conn = conn
	}

	if _, err := c.conn.Write([]byte(c.nodeName + "," + msg)); err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("send log: %w", err)
	}
	return nil
}

// LogBlock reports that this node saw a block at height.
func (c *Client) LogBlock(tag string, height uint64) error {
	return c.Log(tag + "," + strconv.FormatUint(height, 10))
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
