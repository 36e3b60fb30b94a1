package binary

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewBytesReader(data)

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	_, err := r.ReadByte()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderReadU32(t *testing.T) {
	tests := []struct {
		encoded []byte
		want    uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}

	for _, tt := range tests {
		r := NewBytesReader(tt.encoded)
		got, err := r.ReadU32()
		if err != nil {
			t.Errorf("ReadU32(%v): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadU32(%v): got %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestReaderReadU32Overflow(t *testing.T) {
	r := NewBytesReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	_, err := r.ReadU32()
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestReaderReadS32(t *testing.T) {
	tests := []struct {
		encoded []byte
		want    int32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x2a}, 42},
		{[]byte{0x7f}, -1},
		{[]byte{0x40}, -64},
		{[]byte{0xc0, 0xbb, 0x78}, -123456},
	}
	for _, tt := range tests {
		r := NewBytesReader(tt.encoded)
		got, err := r.ReadS32()
		if err != nil {
			t.Errorf("ReadS32(%v): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadS32(%v): got %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestReaderReadName(t *testing.T) {
	w := NewWriter()
	w.WriteName("memory")
	r := NewBytesReader(w.Bytes())
	got, err := r.ReadName()
	if err != nil {
		t.Fatalf("ReadName: %v", err)
	}
	if got != "memory" {
		t.Errorf("ReadName = %q", got)
	}
}

func TestReaderReadNameInvalidUTF8(t *testing.T) {
	r := NewBytesReader([]byte{0x02, 0xff, 0xfe})
	if _, err := r.ReadName(); err == nil {
		t.Error("expected error for invalid UTF-8 name")
	}
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU32(624485)
	w.WriteS32(-123456)
	w.WriteU64(1 << 40)
	w.WriteS64(-(1 << 40))
	w.WriteU32LE(0x6d736100)

	r := NewBytesReader(w.Bytes())
	if v, _ := r.ReadU32(); v != 624485 {
		t.Errorf("u32 round trip: %d", v)
	}
	if v, _ := r.ReadS32(); v != -123456 {
		t.Errorf("s32 round trip: %d", v)
	}
	if v, _ := r.ReadU64(); v != 1<<40 {
		t.Errorf("u64 round trip: %d", v)
	}
	if v, _ := r.ReadS64(); v != -(1 << 40) {
		t.Errorf("s64 round trip: %d", v)
	}
	if v, _ := r.ReadU32LE(); v != 0x6d736100 {
		t.Errorf("u32le round trip: %#x", v)
	}
}

func TestWriterBytesStable(t *testing.T) {
	w := NewWriter()
	w.WriteU32(300)
	if !bytes.Equal(w.Bytes(), []byte{0xac, 0x02}) {
		t.Errorf("LEB128(300) = %v", w.Bytes())
	}
}
