// Package binary implements the fixed-layout wire codec shared by the
// surface client and host.
//
// The stream carries no type tags. Every message is a fixed sequence of
// fields, each written and read with an explicitly declared width and
// signedness. Scalars are little-endian and there is no alignment padding.
// Strings are a u64 byte length followed by the raw UTF-8 bytes.
package binary

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer appends values to a growable buffer in call order.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the written bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// U8 writes a single unsigned byte.
func (w *Writer) U8(v uint8) {
	w.buf.WriteByte(v)
}

// I8 writes a single signed byte.
func (w *Writer) I8(v int8) {
	w.buf.WriteByte(byte(v))
}

// Bool writes 1 for true and 0 for false.
func (w *Writer) Bool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) I16(v int16) {
	w.U16(uint16(v))
}

func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) I32(v int32) {
	w.U32(uint32(v))
}

func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) I64(v int64) {
	w.U64(uint64(v))
}

// F64 writes the IEEE-754 bits of v.
func (w *Writer) F64(v float64) {
	w.U64(math.Float64bits(v))
}

// Raw writes data as-is. The reader must know the length out of band.
func (w *Writer) Raw(data []byte) {
	w.buf.Write(data)
}

// UTF8 writes a u64 byte length followed by the UTF-8 bytes of s.
func (w *Writer) UTF8(s string) {
	w.U64(uint64(len(s)))
	w.buf.WriteString(s)
}

// Bytes64 writes a u64 length followed by data.
func (w *Writer) Bytes64(data []byte) {
	w.U64(uint64(len(data)))
	w.buf.Write(data)
}
