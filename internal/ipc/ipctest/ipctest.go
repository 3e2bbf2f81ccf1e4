// Package ipctest provides an in-memory ipc.Transport for tests.
//
// Requests are recorded and stay outstanding until the test responds.
// Each call accepts exactly one outcome; responding twice panics, which is
// how tests enforce the exactly-once response contract.
package ipctest

import (
	"fmt"
	"sync"

	"github.com/1broseidon/surfacebridge/internal/binary"
)

// Call is one recorded request.
type Call struct {
	Channel string
	Payload []byte

	reply     func([]byte, error)
	responded bool
}

// Reader returns a reader over the request payload.
func (c *Call) Reader() *binary.Reader {
	return binary.NewReader(c.Payload)
}

// Responded reports whether the call has been completed.
func (c *Call) Responded() bool {
	return c.responded
}

// Transport records requests and lets tests deliver responses and
// notifications synchronously.
type Transport struct {
	mu       sync.Mutex
	calls    []*Call
	handlers map[string]func([]byte)
}

// New creates an empty Transport.
func New() *Transport {
	return &Transport{handlers: make(map[string]func([]byte))}
}

// Send implements ipc.Transport.
func (t *Transport) Send(channel string, payload []byte, reply func([]byte, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, &Call{
		Channel: channel,
		Payload: append([]byte(nil), payload...),
		reply:   reply,
	})
}

// Handle implements ipc.Transport.
func (t *Transport) Handle(channel string, handler func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.handlers[channel]; dup {
		panic(fmt.Sprintf("ipctest: handler for %s installed twice", channel))
	}
	t.handlers[channel] = handler
}

// Calls returns every recorded request in send order.
func (t *Transport) Calls() []*Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Call(nil), t.calls...)
}

// CallsOn returns the recorded requests on channel.
func (t *Transport) CallsOn(channel string) []*Call {
	var out []*Call
	for _, c := range t.Calls() {
		if c.Channel == channel {
			out = append(out, c)
		}
	}
	return out
}

// Pending returns the requests that have not been responded to.
func (t *Transport) Pending() []*Call {
	var out []*Call
	for _, c := range t.Calls() {
		if !c.responded {
			out = append(out, c)
		}
	}
	return out
}

// Last returns the most recent request, or nil.
func (t *Transport) Last() *Call {
	calls := t.Calls()
	if len(calls) == 0 {
		return nil
	}
	return calls[len(calls)-1]
}

// Respond completes c with payload. A nil payload models an absent
// response.
func (t *Transport) Respond(c *Call, payload []byte) {
	t.complete(c, payload, nil)
}

// RespondWith encodes a response with encode and completes c.
func (t *Transport) RespondWith(c *Call, encode func(*binary.Writer)) {
	w := binary.NewWriter()
	encode(w)
	payload := w.Bytes()
	if payload == nil {
		payload = []byte{}
	}
	t.complete(c, payload, nil)
}

// RespondEmpty completes c with a well-formed empty response.
func (t *Transport) RespondEmpty(c *Call) {
	t.complete(c, []byte{}, nil)
}

// Fail completes c with err.
func (t *Transport) Fail(c *Call, err error) {
	t.complete(c, nil, err)
}

// RespondAllEmpty completes every pending call with an empty response and
// returns how many it completed.
func (t *Transport) RespondAllEmpty() int {
	n := 0
	for _, c := range t.Pending() {
		t.RespondEmpty(c)
		n++
	}
	return n
}

// Notify delivers an unsolicited message on channel. It reports whether a
// handler was installed.
func (t *Transport) Notify(channel string, encode func(*binary.Writer)) bool {
	t.mu.Lock()
	h := t.handlers[channel]
	t.mu.Unlock()
	if h == nil {
		return false
	}
	w := binary.NewWriter()
	if encode != nil {
		encode(w)
	}
	h(w.Bytes())
	return true
}

func (t *Transport) complete(c *Call, payload []byte, err error) {
	t.mu.Lock()
	if c.responded {
		t.mu.Unlock()
		panic(fmt.Sprintf("ipctest: call on %s responded twice", c.Channel))
	}
	c.responded = true
	t.mu.Unlock()
	c.reply(payload, err)
}
