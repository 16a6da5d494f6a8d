package tracklog

import (
	"reflect"
	"testing"
)

func TestChunkRoundTrip(t *testing.T) {
	in := ChunkEvents{
		"imu": {
			"accel": {[]byte("e1"), []byte("e2")},
			"gyro":  {[]byte("g1")},
		},
		"gps": {
			"fix": {[]byte("f1")},
		},
	}

	blob, err := PackChunk(in)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	out, err := UnpackChunk(blob)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n in %#v\nout %#v", in, out)
	}
}

func TestChunkRoundTripEmpty(t *testing.T) {
	cases := []ChunkEvents{
		{},
		{"imu": {}},
		{"imu": {"accel": {}}},
	}
	for _, in := range cases {
		blob, err := PackChunk(in)
		if err != nil {
			t.Fatalf("pack %#v: %v", in, err)
		}
		out, err := UnpackChunk(blob)
		if err != nil {
			t.Fatalf("unpack %#v: %v", in, err)
		}
		if len(out) != len(in) {
			t.Errorf("expected %d sensors, got %d", len(in), len(out))
		}
		for sensor, streams := range in {
			if len(out[sensor]) != len(streams) {
				t.Errorf("sensor %q: expected %d streams, got %d", sensor, len(streams), len(out[sensor]))
			}
		}
	}
}

func TestChunkTruncated(t *testing.T) {
	blob, err := PackChunk(ChunkEvents{"s": {"st": {[]byte("event payload")}}})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	for cut := 1; cut < len(blob); cut += 5 {
		if _, err := UnpackChunk(blob[:cut]); err == nil {
			t.Errorf("expected error for blob cut at %d", cut)
		}
	}
}

func TestChunkTrailingGarbage(t *testing.T) {
	blob, err := PackChunk(ChunkEvents{"s": {"st": {[]byte("x")}}})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if _, err := UnpackChunk(append(blob, 0xde, 0xad)); err == nil {
		t.Error("expected error for trailing bytes")
	}
}
