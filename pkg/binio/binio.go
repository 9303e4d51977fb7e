// Package binio provides sticky-error little-endian readers and writers
// for the versioned binary streams of BSPs, hulls, cutout sets and
// hierarchical meshes. The first error stops all further I/O and is
// reported by Err.
package binio

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Writer writes little-endian values to an underlying io.Writer.
type Writer struct {
	w   io.Writer
	buf [8]byte
	err error
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first write error.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) write(b []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(b)
}

// U32 writes a uint32.
func (w *Writer) U32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.write(w.buf[:4])
}

// I32 writes an int32.
func (w *Writer) I32(v int32) {
	w.U32(uint32(v))
}

// U16 writes a uint16.
func (w *Writer) U16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	w.write(w.buf[:2])
}

// Bool writes a bool as one byte.
func (w *Writer) Bool(v bool) {
	if v {
		w.buf[0] = 1
	} else {
		w.buf[0] = 0
	}
	w.write(w.buf[:1])
}

// F64 writes a float64.
func (w *Writer) F64(v float64) {
	binary.LittleEndian.PutUint64(w.buf[:8], math.Float64bits(v))
	w.write(w.buf[:8])
}

// F64s writes each value of vs.
func (w *Writer) F64s(vs ...float64) {
	for _, v := range vs {
		w.F64(v)
	}
}

// Vec2 writes a 2-vector.
func (w *Writer) Vec2(v mgl64.Vec2) { w.F64s(v[:]...) }

// Vec3 writes a 3-vector.
func (w *Writer) Vec3(v mgl64.Vec3) { w.F64s(v[:]...) }

// Vec4 writes a 4-vector.
func (w *Writer) Vec4(v mgl64.Vec4) { w.F64s(v[:]...) }

// Mat4 writes a matrix in mgl64's column-major order.
func (w *Writer) Mat4(m mgl64.Mat4) { w.F64s(m[:]...) }

// String writes a length-prefixed string.
func (w *Writer) String(s string) {
	w.U32(uint32(len(s)))
	w.write([]byte(s))
}

// Bytes writes a length-prefixed byte slice.
func (w *Writer) Bytes(b []byte) {
	w.U32(uint32(len(b)))
	w.write(b)
}

// Reader reads little-endian values from an underlying io.Reader.
type Reader struct {
	r   io.Reader
	buf [8]byte
	err error
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Err returns the first read error.
func (r *Reader) Err() error {
	return r.err
}

// SetErr records err unless an error is already recorded.
func (r *Reader) SetErr(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) read(b []byte) bool {
	if r.err != nil {
		return false
	}
	_, r.err = io.ReadFull(r.r, b)
	return r.err == nil
}

// U32 reads a uint32.
func (r *Reader) U32() uint32 {
	if !r.read(r.buf[:4]) {
		return 0
	}
	return binary.LittleEndian.Uint32(r.buf[:4])
}

// I32 reads an int32.
func (r *Reader) I32() int32 {
	return int32(r.U32())
}

// U16 reads a uint16.
func (r *Reader) U16() uint16 {
	if !r.read(r.buf[:2]) {
		return 0
	}
	return binary.LittleEndian.Uint16(r.buf[:2])
}

// Bool reads a one-byte bool.
func (r *Reader) Bool() bool {
	if !r.read(r.buf[:1]) {
		return false
	}
	return r.buf[0] != 0
}

// F64 reads a float64.
func (r *Reader) F64() float64 {
	if !r.read(r.buf[:8]) {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(r.buf[:8]))
}

// Vec2 reads a 2-vector.
func (r *Reader) Vec2() mgl64.Vec2 { return mgl64.Vec2{r.F64(), r.F64()} }

// Vec3 reads a 3-vector.
func (r *Reader) Vec3() mgl64.Vec3 { return mgl64.Vec3{r.F64(), r.F64(), r.F64()} }

// Vec4 reads a 4-vector.
func (r *Reader) Vec4() mgl64.Vec4 { return mgl64.Vec4{r.F64(), r.F64(), r.F64(), r.F64()} }

// Mat4 reads a matrix written by Writer.Mat4.
func (r *Reader) Mat4() mgl64.Mat4 {
	var m mgl64.Mat4
	for i := range m {
		m[i] = r.F64()
	}
	return m
}

// Count reads a length prefix, rejecting values above limit.
func (r *Reader) Count(limit uint32) int {
	n := r.U32()
	if n > limit {
		r.SetErr(ErrTooLarge)
		return 0
	}
	return int(n)
}

// String reads a length-prefixed string.
func (r *Reader) String() string {
	return string(r.Bytes())
}

// Bytes reads a length-prefixed byte slice.
func (r *Reader) Bytes() []byte {
	n := r.Count(MaxCount)
	if n == 0 {
		return nil
	}
	b := make([]byte, n)
	if !r.read(b) {
		return nil
	}
	return b
}
