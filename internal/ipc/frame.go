package ipc

import (
	"fmt"
	"io"

	"github.com/1broseidon/surfacebridge/internal/binary"
)

// FrameKind tags a frame on the socket stream.
type FrameKind uint8

const (
	FrameRequest      FrameKind = 1
	FrameResponse     FrameKind = 2
	FrameNotification FrameKind = 3
	FrameFailure      FrameKind = 4
)

func (k FrameKind) String() string {
	switch k {
	case FrameRequest:
		return "request"
	case FrameResponse:
		return "response"
	case FrameNotification:
		return "notification"
	case FrameFailure:
		return "failure"
	default:
		return fmt.Sprintf("frame(%d)", uint8(k))
	}
}

// MaxFrameSize bounds a single frame body.
const MaxFrameSize = 16 << 20

// Frame is one message on the stream. On the wire it is a u32 body length
// followed by the body:
//
//	u8 kind, u64 call-id, utf8 channel, u64 payload-length, payload
//
// Notifications use call-id 0. A failure frame's payload is a utf8 reason.
type Frame struct {
	Kind    FrameKind
	CallID  uint64
	Channel string
	Payload []byte
}

func (f Frame) encode(w *binary.Writer) {
	w.U8(uint8(f.Kind))
	w.U64(f.CallID)
	w.UTF8(f.Channel)
	w.Bytes64(f.Payload)
}

func decodeFrame(body []byte) (Frame, error) {
	r := binary.NewReader(body)
	f := Frame{
		Kind:    FrameKind(r.U8()),
		CallID:  r.U64(),
		Channel: r.UTF8(),
		Payload: r.Bytes64(),
	}
	if err := r.AssertFinished(); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Kind < FrameRequest || f.Kind > FrameFailure {
		return Frame{}, fmt.Errorf("decode frame: unknown kind %d", uint8(f.Kind))
	}
	return f, nil
}

// WriteFrame writes f to w as a single length-prefixed buffer.
func WriteFrame(w io.Writer, f Frame) error {
	body := binary.NewWriter()
	f.encode(body)
	if body.Len() > MaxFrameSize {
		return fmt.Errorf("frame on %s is %d bytes, limit %d", f.Channel, body.Len(), MaxFrameSize)
	}

	out := binary.NewWriter()
	out.U32(uint32(body.Len()))
	out.Raw(body.Bytes())
	_, err := w.Write(out.Bytes())
	return err
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := binary.NewReader(hdr[:]).U32()
	if n > MaxFrameSize {
		return Frame{}, &binary.FramingError{Op: "read frame", Need: int(n), Len: MaxFrameSize, Detail: fmt.Sprintf("frame of %d bytes exceeds limit", n)}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	return decodeFrame(body)
}
