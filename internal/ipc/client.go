package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Conn is the client end of a host socket. It implements Transport and
// multiplexes any number of outstanding calls over one connection.
type Conn struct {
	conn   net.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]func([]byte, error)
	handlers map[string]func([]byte)
	closed   bool

	done chan struct{}
}

// Dial connects to the host listening on socketPath.
func Dial(ctx context.Context, socketPath string, logger *zap.Logger) (*Conn, error) {
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to host: %w (is the host running?)", err)
	}
	return NewConn(conn, logger), nil
}

// NewConn wraps an established connection and starts reading from it.
func NewConn(conn net.Conn, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conn{
		conn:     conn,
		logger:   logger,
		pending:  make(map[uint64]func([]byte, error)),
		handlers: make(map[string]func([]byte)),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Send implements Transport.
func (c *Conn) Send(channel string, payload []byte, reply func([]byte, error)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		reply(nil, ErrClosed)
		return
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = reply
	c.mu.Unlock()

	c.writeMu.Lock()
	err := WriteFrame(c.conn, Frame{Kind: FrameRequest, CallID: id, Channel: channel, Payload: payload})
	c.writeMu.Unlock()
	if err != nil {
		if r := c.take(id); r != nil {
			r(nil, fmt.Errorf("failed to send request: %w", err))
		}
	}
}

// Handle implements Transport. Installing a second handler for the same
// channel is a programming error.
func (c *Conn) Handle(channel string, handler func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.handlers[channel]; dup {
		panic(fmt.Sprintf("ipc: handler for %s installed twice", channel))
	}
	c.handlers[channel] = handler
}

// Done is closed once the connection has stopped reading.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection. Outstanding calls fail with ErrClosed.
func (c *Conn) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Conn) take(id uint64) func([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return r
}

func (c *Conn) readLoop() {
	defer close(c.done)

	reader := bufio.NewReader(c.conn)
	for {
		f, err := ReadFrame(reader)
		if err != nil {
			c.fail(err)
			return
		}

		switch f.Kind {
		case FrameResponse:
			reply := c.take(f.CallID)
			if reply == nil {
				c.logger.Warn("response for unknown call", zap.Uint64("call_id", f.CallID), zap.String("channel", f.Channel))
				continue
			}
			payload := f.Payload
			if payload == nil {
				payload = []byte{}
			}
			reply(payload, nil)
		case FrameFailure:
			reply := c.take(f.CallID)
			if reply == nil {
				continue
			}
			reply(nil, &RemoteError{Reason: string(f.Payload)})
		case FrameNotification:
			c.mu.Lock()
			h := c.handlers[f.Channel]
			c.mu.Unlock()
			if h == nil {
				c.logger.Debug("dropping notification without handler", zap.String("channel", f.Channel))
				continue
			}
			h(f.Payload)
		default:
			c.logger.Warn("unexpected frame from host", zap.Stringer("kind", f.Kind), zap.String("channel", f.Channel))
		}
	}
}

func (c *Conn) fail(cause error) {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[uint64]func([]byte, error))
	c.mu.Unlock()

	if len(pending) > 0 {
		c.logger.Debug("connection lost with calls in flight", zap.Int("calls", len(pending)), zap.Error(cause))
	}
	for _, reply := range pending {
		reply(nil, fmt.Errorf("%w: %v", ErrClosed, cause))
	}
}
