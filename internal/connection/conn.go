package connection

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn is one accepted broker or market stream.
type Conn struct {
	id   uuid.UUID
	cfg  Config
	conn net.Conn

	scanner *bufio.Scanner

	// Write serialization
	writeMu sync.Mutex

	// State
	mu     sync.RWMutex
	closed bool
}

// New wraps an accepted network connection.
func New(nc net.Conn, cfg Config) *Conn {
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultConfig().MaxLineBytes
	}

	initial := 4096
	if initial > cfg.MaxLineBytes {
		initial = cfg.MaxLineBytes
	}
	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 0, initial), cfg.MaxLineBytes)

	return &Conn{
		id:      uuid.New(),
		cfg:     cfg,
		conn:    nc,
		scanner: scanner,
	}
}

// ID returns the session id assigned when the connection was accepted.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// ReadLine returns the next line without its terminator. It must only be
// called from the connection's reader goroutine.
func (c *Conn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return c.scanner.Text(), nil
	}
	err := c.scanner.Err()
	if err == nil {
		return "", io.EOF
	}
	if errors.Is(err, bufio.ErrTooLong) {
		return "", ErrLineTooLong
	}
	return "", err
}

// SetReadDeadline bounds the next ReadLine.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Send writes line followed by a newline. Safe for concurrent use.
func (c *Conn) Send(line string) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrAlreadyClosed
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

// Close closes the underlying stream. Calling it more than once is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.conn.Close()
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
