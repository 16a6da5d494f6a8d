package encoding

import (
	"bytes"
	"testing"
)

func TestBytesRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteBytes(buf, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteBytes(buf, nil); err != nil {
		t.Fatalf("write empty: %v", err)
	}

	r := bytes.NewReader(buf.Bytes())
	got, err := ReadBytes(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("expected hello, got %q", got)
	}
	got, err = ReadBytes(r)
	if err != nil {
		t.Fatalf("read empty: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestStringRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteString(buf, "imu/accel"); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadString(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "imu/accel" {
		t.Errorf("expected imu/accel, got %q", got)
	}
}

func TestReadBytesTruncated(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteBytes(buf, []byte("hello world")); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Cut into the payload
	data := buf.Bytes()[:7]
	if _, err := ReadBytes(bytes.NewReader(data)); err == nil {
		t.Error("expected error for truncated input")
	}
}

func TestReadBytesOversizedPrefix(t *testing.T) {
	// Length prefix claims far more than the input holds
	data := []byte{0xff, 0xff, 0xff, 0x7f, 1, 2, 3}
	if _, err := ReadBytes(bytes.NewReader(data)); err == nil {
		t.Error("expected error for oversized length prefix")
	}
}

func TestFloat64SliceRoundTrip(t *testing.T) {
	values := []float64{0, -1.5, 3.14159, 1e18}
	blob := EncodeFloat64Slice(values)

	got, err := DecodeFloat64Slice(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(values) {
		t.Fatalf("expected %d values, got %d", len(values), len(got))
	}
	for i, v := range values {
		if got[i] != v {
			t.Errorf("value %d: expected %g, got %g", i, v, got[i])
		}
	}
}

func TestFloat64SliceEmpty(t *testing.T) {
	got, err := DecodeFloat64Slice(EncodeFloat64Slice(nil))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no values, got %d", len(got))
	}
}

func TestFloat64SliceTruncated(t *testing.T) {
	blob := EncodeFloat64Slice([]float64{1, 2, 3})
	if _, err := DecodeFloat64Slice(blob[:len(blob)-4]); err == nil {
		t.Error("expected error for truncated input")
	}
}
