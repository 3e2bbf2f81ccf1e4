// Package ipc carries encoded surface requests between the client and the
// host process.
//
// A Transport moves opaque byte buffers on named channels and delivers at
// most one response per request. Messenger layers the codec on top: it
// builds each request with a fresh binary.Writer, wraps each response in a
// fresh binary.Reader, enforces the call timeout and guarantees that every
// call completes exactly once.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/surfacebridge/internal/binary"
	"github.com/1broseidon/surfacebridge/internal/loop"
)

var (
	// ErrCommunication means the response was absent or the host reported
	// a failure instead of a response.
	ErrCommunication = errors.New("ipc: communication failure")
	// ErrTimeout means no response arrived within the call timeout.
	ErrTimeout = errors.New("ipc: call timed out")
	// ErrClosed means the connection went away before the response arrived.
	ErrClosed = errors.New("ipc: connection closed")
)

// CallError ties a failed call to its channel.
type CallError struct {
	Channel string
	Err     error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %s: %v", e.Channel, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// RemoteError is a failure reported by the host in place of a response.
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	return "host error: " + e.Reason
}

func (e *RemoteError) Unwrap() error {
	return ErrCommunication
}

// Transport is the byte-level contract between Messenger and a connection.
type Transport interface {
	// Send transmits payload on channel. reply is invoked at most once, from
	// any goroutine. A nil response with a nil error means the response was
	// absent; an empty non-nil response is a valid reply with no fields.
	Send(channel string, payload []byte, reply func(resp []byte, err error))

	// Handle installs the single inbound-notification handler for channel.
	Handle(channel string, handler func(payload []byte))
}

// MessengerOptions configures a Messenger.
type MessengerOptions struct {
	// Timeout bounds every call. Zero disables the timeout.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Messenger issues encoded calls over a Transport.
type Messenger struct {
	transport Transport
	sched     loop.Scheduler
	timeout   time.Duration
	logger    *zap.Logger
}

// NewMessenger creates a Messenger whose asynchronous completions and
// notification handlers run on sched.
func NewMessenger(t Transport, sched loop.Scheduler, opts MessengerOptions) *Messenger {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Messenger{
		transport: t,
		sched:     sched,
		timeout:   opts.Timeout,
		logger:    logger,
	}
}

// Go sends a request built by encode and returns immediately. done runs on
// the scheduler exactly once, with either a reader over the response or an
// error. The caller must decode the reader to completion and call
// AssertFinished, even for empty responses.
func (m *Messenger) Go(channel string, encode func(*binary.Writer), done func(*binary.Reader, error)) {
	m.send(channel, encode, func(r *binary.Reader, err error) {
		m.sched.Post(func() { done(r, err) })
	})
}

// Call sends a request and blocks until the response, the call timeout or
// ctx ends it. It must not be called from a task running on the scheduler
// that the Messenger posts to.
func (m *Messenger) Call(ctx context.Context, channel string, encode func(*binary.Writer)) (*binary.Reader, error) {
	type result struct {
		r   *binary.Reader
		err error
	}
	ch := make(chan result, 1)
	m.send(channel, encode, func(r *binary.Reader, err error) {
		ch <- result{r, err}
	})

	select {
	case res := <-ch:
		return res.r, res.err
	case <-ctx.Done():
		return nil, &CallError{Channel: channel, Err: ctx.Err()}
	}
}

// RegisterHandler installs handler for unsolicited messages on channel.
// The handler runs on the scheduler with a reader over the message.
func (m *Messenger) RegisterHandler(channel string, handler func(*binary.Reader)) {
	m.transport.Handle(channel, func(payload []byte) {
		m.sched.Post(func() { handler(binary.NewReader(payload)) })
	})
}

func (m *Messenger) send(channel string, encode func(*binary.Writer), complete func(*binary.Reader, error)) {
	w := binary.NewWriter()
	if encode != nil {
		encode(w)
	}

	call := &pendingCall{}
	if m.timeout > 0 {
		call.mu.Lock()
		call.timer = time.AfterFunc(m.timeout, func() {
			if !call.finish() {
				return
			}
			m.logger.Warn("call timed out", zap.String("channel", channel), zap.Duration("timeout", m.timeout))
			complete(nil, &CallError{Channel: channel, Err: ErrTimeout})
		})
		call.mu.Unlock()
	}

	m.logger.Debug("call", zap.String("channel", channel), zap.Int("bytes", w.Len()))
	m.transport.Send(channel, w.Bytes(), func(resp []byte, err error) {
		if !call.finish() {
			m.logger.Warn("dropping late response", zap.String("channel", channel), zap.Error(err))
			return
		}
		switch {
		case err != nil:
			var ce *CallError
			if !errors.As(err, &ce) {
				err = &CallError{Channel: channel, Err: err}
			}
			complete(nil, err)
		case resp == nil:
			complete(nil, &CallError{Channel: channel, Err: ErrCommunication})
		default:
			complete(binary.NewReader(resp), nil)
		}
	})
}

// pendingCall arbitrates between the response and the timeout so that only
// one of them completes the call.
type pendingCall struct {
	mu       sync.Mutex
	finished bool
	timer    *time.Timer
}

func (c *pendingCall) finish() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return false
	}
	c.finished = true
	if c.timer != nil {
		c.timer.Stop()
	}
	return true
}
