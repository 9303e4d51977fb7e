package binio_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/chazu/shatter/pkg/binio"
	"github.com/go-gl/mathgl/mgl64"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := binio.NewWriter(&buf)
	w.U32(7)
	w.I32(-3)
	w.Bool(true)
	w.Vec3(mgl64.Vec3{1, 2, 3})
	w.Mat4(mgl64.Translate3D(4, 5, 6))
	w.String("steel")
	if err := w.Err(); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := binio.NewReader(&buf)
	if got := r.U32(); got != 7 {
		t.Errorf("U32 = %d", got)
	}
	if got := r.I32(); got != -3 {
		t.Errorf("I32 = %d", got)
	}
	if !r.Bool() {
		t.Error("Bool = false")
	}
	if got := r.Vec3(); got != (mgl64.Vec3{1, 2, 3}) {
		t.Errorf("Vec3 = %v", got)
	}
	if got := r.Mat4(); got != mgl64.Translate3D(4, 5, 6) {
		t.Errorf("Mat4 = %v", got)
	}
	if got := r.String(); got != "steel" {
		t.Errorf("String = %q", got)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestReaderStickyError(t *testing.T) {
	r := binio.NewReader(bytes.NewReader([]byte{1, 2}))
	_ = r.U32()
	_ = r.F64()
	if !errors.Is(r.Err(), io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want unexpected EOF", r.Err())
	}
}

func TestCountLimit(t *testing.T) {
	var buf bytes.Buffer
	w := binio.NewWriter(&buf)
	w.U32(100)
	r := binio.NewReader(&buf)
	if n := r.Count(10); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
	if !errors.Is(r.Err(), binio.ErrTooLarge) {
		t.Errorf("err = %v", r.Err())
	}
}
