package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// ErrFraming is matched by every decode failure. A framing error means the
// two endpoints disagree on a message layout and the call must be aborted.
var ErrFraming = errors.New("binary: framing error")

// FramingError describes where decoding went wrong.
type FramingError struct {
	Op     string
	Offset int
	Need   int
	Len    int
	Detail string
}

func (e *FramingError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("binary: %s at offset %d: %s", e.Op, e.Offset, e.Detail)
	}
	return fmt.Sprintf("binary: %s at offset %d: need %d bytes, buffer has %d", e.Op, e.Offset, e.Need, e.Len)
}

func (e *FramingError) Unwrap() error {
	return ErrFraming
}

// Reader consumes values from a fixed buffer starting at a cursor.
//
// The first failure is sticky: later reads return zero values and the
// failure is reported by Err and AssertFinished. Callers decode a whole
// message and then call AssertFinished exactly once.
type Reader struct {
	data []byte
	pos  int
	err  error
}

// NewReader wraps data. The reader does not copy it.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the total buffer length.
func (r *Reader) Len() int {
	return len(r.data)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Err returns the first decode failure, if any.
func (r *Reader) Err() error {
	return r.err
}

// AssertFinished fails unless every byte was consumed and no read failed.
func (r *Reader) AssertFinished() error {
	if r.err != nil {
		return r.err
	}
	if r.pos != len(r.data) {
		return &FramingError{
			Op:     "assert finished",
			Offset: r.pos,
			Len:    len(r.data),
			Detail: fmt.Sprintf("%d trailing bytes", len(r.data)-r.pos),
		}
	}
	return nil
}

func (r *Reader) take(op string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.data)-r.pos {
		r.err = &FramingError{Op: op, Offset: r.pos, Need: n, Len: len(r.data)}
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) U8() uint8 {
	b := r.take("read u8", 1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) I8() int8 {
	return int8(r.U8())
}

// Bool reads a byte; any non-zero value is true.
func (r *Reader) Bool() bool {
	return r.U8() != 0
}

func (r *Reader) U16() uint16 {
	b := r.take("read u16", 2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) I16() int16 {
	return int16(r.U16())
}

func (r *Reader) U32() uint32 {
	b := r.take("read u32", 4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) I32() int32 {
	return int32(r.U32())
}

func (r *Reader) U64() uint64 {
	b := r.take("read u64", 8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) I64() int64 {
	return int64(r.U64())
}

func (r *Reader) F64() float64 {
	return math.Float64frombits(r.U64())
}

// Raw reads exactly n bytes. The result is a copy.
func (r *Reader) Raw(n int) []byte {
	b := r.take("read bytes", n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Bytes64 reads a u64 length followed by that many bytes.
func (r *Reader) Bytes64() []byte {
	n := r.length("read bytes")
	return r.Raw(n)
}

// UTF8 reads a u64 byte length followed by UTF-8 bytes.
func (r *Reader) UTF8() string {
	n := r.length("read string")
	start := r.pos
	b := r.take("read string", n)
	if b == nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.err = &FramingError{Op: "read string", Offset: start, Len: len(r.data), Detail: "invalid UTF-8"}
		return ""
	}
	return string(b)
}

// length reads a u64 length and rejects values that cannot fit in the
// remaining buffer before any allocation happens.
func (r *Reader) length(op string) int {
	at := r.pos
	n := r.U64()
	if r.err != nil {
		return 0
	}
	if n > uint64(len(r.data)-r.pos) {
		r.err = &FramingError{Op: op, Offset: at, Need: int(min(n, math.MaxInt32)), Len: len(r.data)}
		return 0
	}
	return int(n)
}

// Fail records a framing failure detected by a message-level check, such as
// an element count that cannot fit in the buffer. The first failure wins.
func (r *Reader) Fail(op, detail string) {
	if r.err != nil {
		return
	}
	r.err = &FramingError{Op: op, Offset: r.pos, Len: len(r.data), Detail: detail}
}
