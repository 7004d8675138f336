package tcp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// maxLineBytes bounds one newline-framed request so a misbehaving terminal
// cannot grow the read buffer without limit.
const maxLineBytes = 64 * 1024

// Connection wraps one accepted terminal socket with newline framing and a
// serialized writer.
type Connection struct {
	id     string
	socket net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
	closed atomic.Bool
}

// NewConnection creates a tracked terminal connection.
func NewConnection(id string, socket net.Conn) *Connection {
	return &Connection{
		id:     id,
		socket: socket,
		reader: bufio.NewReaderSize(socket, maxLineBytes),
	}
}

// ID returns the connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// RemoteIP returns the peer address without the port.
func (c *Connection) RemoteIP() string {
	host, _, err := net.SplitHostPort(c.socket.RemoteAddr().String())
	if err != nil {
		return c.socket.RemoteAddr().String()
	}
	return host
}

// ReadLine blocks for the next newline-framed message. A positive timeout
// bounds the read; zero means wait indefinitely. A message that overruns
// maxLineBytes before its newline arrives is rejected without buffering
// past the limit.
func (c *Connection) ReadLine(timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		if err := c.socket.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		defer c.socket.SetReadDeadline(time.Time{})
	}

	// ReadSlice fails with ErrBufferFull once the fixed-size buffer holds
	// maxLineBytes without a newline, so an endless unframed stream cannot
	// grow memory.
	line, err := c.reader.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, fmt.Errorf("message exceeds %d bytes", maxLineBytes)
		}
		return nil, err
	}

	// The slice aliases the reader's buffer; copy before the next read.
	out := make([]byte, len(line)-1)
	copy(out, line[:len(line)-1])
	return out, nil
}

// WriteLine sends one newline-terminated message.
func (c *Connection) WriteLine(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("connection %s already closed", c.id)
	}
	if _, err := c.socket.Write(append(payload, '\n')); err != nil {
		return err
	}
	return nil
}

// WriteJSON marshals v and sends it as one framed line.
func (c *Connection) WriteJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteLine(payload)
}

// Close shuts the socket down once; later calls are no-ops.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.socket.Close()
}

// IsClosed reports whether Close has run.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}
