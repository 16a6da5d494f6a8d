package tracklog

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestChunkFileAppendRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.trk")

	f, err := OpenChunkFile(path, DefaultChunkFileConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	blobs := [][]byte{[]byte("chunk zero"), []byte("chunk one")}
	if err := f.AppendChunk(0, 0, 5, blobs[0]); err != nil {
		t.Fatalf("append 0: %v", err)
	}
	if err := f.AppendChunk(1, 5, 11, blobs[1]); err != nil {
		t.Fatalf("append 1: %v", err)
	}

	for i, want := range blobs {
		got, err := f.ReadChunk(i)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("chunk %d: expected %q, got %q", i, want, got)
		}
	}

	n, err := f.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 chunks, got %d", n)
	}

	spans, err := f.Spans()
	if err != nil {
		t.Fatalf("spans: %v", err)
	}
	if len(spans) != 2 || spans[0].Start != 0 || spans[0].End != 5 || spans[1].Start != 5 || spans[1].End != 11 {
		t.Errorf("unexpected spans: %+v", spans)
	}
}

func TestChunkFileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.trk")
	f, err := OpenChunkFile(path, DefaultChunkFileConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if _, err := f.ReadChunk(42); !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("expected ErrChunkNotFound, got %v", err)
	}
}

func TestChunkFileConfigRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.trk")
	f, err := OpenChunkFile(path, DefaultChunkFileConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if _, err := f.ConfigRecord(); !errors.Is(err, ErrNoConfigRecord) {
		t.Errorf("expected ErrNoConfigRecord, got %v", err)
	}

	record := `{"sensors":[{"sensor_name":"imu","sensor_type":"json"}]}`
	if err := f.SetConfigRecord(record); err != nil {
		t.Fatalf("set config: %v", err)
	}
	got, err := f.ConfigRecord()
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if got != record {
		t.Errorf("expected %q, got %q", record, got)
	}

	// Overwrite replaces the previous record
	if err := f.SetConfigRecord(`{"sensors":[]}`); err != nil {
		t.Fatalf("overwrite config: %v", err)
	}
	got, _ = f.ConfigRecord()
	if got != `{"sensors":[]}` {
		t.Errorf("expected overwritten record, got %q", got)
	}
}

func TestChunkFileIntegrity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.trk")
	f, err := OpenChunkFile(path, DefaultChunkFileConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if err := f.AppendChunk(0, 0, 5, []byte("a")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := f.AppendChunk(1, 5, 9, []byte("b")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := f.CheckIntegrity(); err != nil {
		t.Errorf("expected contiguous chunks to pass: %v", err)
	}

	// A gap in the timeline is corruption
	if err := f.AppendChunk(2, 10, 12, []byte("c")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := f.CheckIntegrity(); !errors.Is(err, ErrCorruptChunkStore) {
		t.Errorf("expected ErrCorruptChunkStore, got %v", err)
	}
}

func TestChunkFileEncrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.trk")
	cfg := DefaultChunkFileConfig()
	cfg.Encryption = &EncryptionConfig{Enabled: true, KeyPassword: "secret"}

	f, err := OpenChunkFile(path, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	payload := []byte("sensitive chunk payload")
	if err := f.AppendChunk(0, 0, 1, payload); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen with the same password, the stored salt is reused
	ro := cfg
	ro.ReadOnly = true
	f2, err := OpenChunkFile(path, ro)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()
	got, err := f2.ReadChunk(0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("expected %q, got %q", payload, got)
	}

	// Wrong password fails to decrypt
	bad := ro
	bad.Encryption = &EncryptionConfig{Enabled: true, KeyPassword: "wrong"}
	f3, err := OpenChunkFile(path, bad)
	if err != nil {
		t.Fatalf("reopen wrong password: %v", err)
	}
	defer f3.Close()
	if _, err := f3.ReadChunk(0); err == nil {
		t.Error("expected decrypt failure with wrong password")
	}
}
