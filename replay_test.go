package tracklog

import (
	"path/filepath"
	"testing"
	"time"
)

// writeTestRecording builds a recording with three chunks spanning
// [0,5), [5,11), [11,20), one event per whole second on imu/accel.
func writeTestRecording(t *testing.T, path string) {
	t.Helper()
	codec := NewCodec()
	if err := codec.Register("accel", JSONStreamCodec()); err != nil {
		t.Fatalf("register: %v", err)
	}

	f, err := OpenChunkFile(path, DefaultChunkFileConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if err := f.SetConfigRecord(testConfigRecord(t)); err != nil {
		t.Fatalf("set config: %v", err)
	}

	spans := []ChunkSpan{{0, 0, 5}, {1, 5, 11}, {2, 11, 20}}
	for _, span := range spans {
		var blobs [][]byte
		for d := span.Start; d < span.End; d++ {
			blob, err := codec.Serialize("accel", d, d)
			if err != nil {
				t.Fatalf("serialize: %v", err)
			}
			blobs = append(blobs, blob)
		}
		packed, err := PackChunk(ChunkEvents{"imu": {"accel": blobs}})
		if err != nil {
			t.Fatalf("pack: %v", err)
		}
		if err := f.AppendChunk(span.Index, span.Start, span.End, packed); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func replayAll(t *testing.T, q *ReplayQueue, stop <-chan struct{}) []Event {
	t.Helper()
	var events []Event
	for {
		ev, ok := q.Pop(500*time.Millisecond, stop)
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

func TestReplayOffsetSeek(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.trk")
	writeTestRecording(t, path)

	cfg := DefaultReplayerConfig()
	// Force full distribution regardless of consumption speed
	cfg.BufferAhead = time.Hour
	p := NewReplayer(path, DefaultChunkFileConfig(), testRegistry(t), cfg)
	q := p.Queue("imu", "accel")

	if err := p.StartReplay(7); err != nil {
		t.Fatalf("start replay: %v", err)
	}
	defer p.StopReplay()

	stop := make(chan struct{})
	events := replayAll(t, q, stop)

	// Chunk [0,5) is skipped entirely; deltas 5 and 6 are dropped
	if len(events) == 0 {
		t.Fatal("no events distributed")
	}
	for _, ev := range events {
		if ev.Delta < 7 {
			t.Errorf("event with delta %g before offset", ev.Delta)
		}
	}
	if events[0].Delta != 7 {
		t.Errorf("first event delta %g, expected 7", events[0].Delta)
	}
	if events[len(events)-1].Delta != 19 {
		t.Errorf("last event delta %g, expected 19", events[len(events)-1].Delta)
	}
}

func TestReplayOffsetPastEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.trk")
	writeTestRecording(t, path)

	cfg := DefaultReplayerConfig()
	cfg.BufferAhead = time.Hour
	p := NewReplayer(path, DefaultChunkFileConfig(), testRegistry(t), cfg)
	q := p.Queue("imu", "accel")

	// Past the 20s end: warn and restart from 0
	if err := p.StartReplay(99); err != nil {
		t.Fatalf("start replay: %v", err)
	}
	defer p.StopReplay()

	stop := make(chan struct{})
	events := replayAll(t, q, stop)
	if len(events) == 0 {
		t.Fatal("no events distributed")
	}
	if events[0].Delta != 0 {
		t.Errorf("first event delta %g, expected 0 after reset", events[0].Delta)
	}
}

func TestReplayEmptyRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.trk")
	f, err := OpenChunkFile(path, DefaultChunkFileConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := f.SetConfigRecord(testConfigRecord(t)); err != nil {
		t.Fatalf("set config: %v", err)
	}
	f.Close()

	p := NewReplayer(path, DefaultChunkFileConfig(), testRegistry(t), DefaultReplayerConfig())
	if err := p.StartReplay(0); err == nil {
		p.StopReplay()
		t.Error("expected error for empty recording")
	}
}

func TestReplayMissingConfigRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.trk")
	f, err := OpenChunkFile(path, DefaultChunkFileConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.Close()

	p := NewReplayer(path, DefaultChunkFileConfig(), testRegistry(t), DefaultReplayerConfig())
	if err := p.StartReplay(0); err == nil {
		p.StopReplay()
		t.Error("expected error for missing config record")
	}
}

func TestReplayIdempotentStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.trk")
	writeTestRecording(t, path)

	p := NewReplayer(path, DefaultChunkFileConfig(), testRegistry(t), DefaultReplayerConfig())
	p.StopReplay()

	if err := p.StartReplay(0); err != nil {
		t.Fatalf("start replay: %v", err)
	}
	p.StopReplay()
	p.StopReplay()

	if p.Replaying() {
		t.Error("expected replay stopped")
	}
}

func TestReplayQueueSpan(t *testing.T) {
	q := NewReplayQueue()
	if q.Span() != 0 {
		t.Errorf("expected zero span for empty queue")
	}
	q.Push(Event{Delta: 1.0})
	if q.Span() != 0 {
		t.Errorf("expected zero span for single event")
	}
	q.Push(Event{Delta: 3.5})
	if q.Span() != 2.5 {
		t.Errorf("expected span 2.5, got %g", q.Span())
	}
}

func TestReplayQueuePopTimeout(t *testing.T) {
	q := NewReplayQueue()
	stop := make(chan struct{})

	began := time.Now()
	if _, ok := q.Pop(50*time.Millisecond, stop); ok {
		t.Error("expected timeout on empty queue")
	}
	if time.Since(began) < 40*time.Millisecond {
		t.Error("pop returned before timeout")
	}

	// Stop aborts the wait early
	close(stop)
	began = time.Now()
	if _, ok := q.Pop(time.Hour, stop); ok {
		t.Error("expected abort on stop")
	}
	if time.Since(began) > time.Second {
		t.Error("pop ignored stop signal")
	}
}
