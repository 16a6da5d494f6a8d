package tracklog

import (
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func testGroupConfig(t *testing.T, mode Mode) GroupConfig {
	t.Helper()
	cfg := DefaultGroupConfig("test", filepath.Join(t.TempDir(), "rec.trk"))
	cfg.Mode = mode
	cfg.CaptureInterval = 50 * time.Millisecond
	cfg.Sensors = []SensorDecl{{
		Name: "imu", Type: "json",
		Streams: []StreamDecl{{Name: "accel", FrequencyHz: 100}},
	}}
	return cfg
}

func TestGroupValidation(t *testing.T) {
	registry := testRegistry(t)

	cfg := testGroupConfig(t, ModeHardware)
	cfg.Sensors[0].Type = "bogus"
	if _, err := NewSensorGroup(cfg, registry, nil); err == nil {
		t.Error("expected error for unknown sensor type")
	}

	cfg = testGroupConfig(t, ModeHardware)
	if _, err := NewSensorGroup(cfg, registry, nil); err == nil {
		t.Error("expected error for missing generator")
	}

	cfg = testGroupConfig(t, ModeHardware)
	cfg.Path = ""
	if _, err := NewSensorGroup(cfg, registry, nil); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestGroupRecordReplayExclusion(t *testing.T) {
	registry := testRegistry(t)

	// Replay-mode group cannot record
	g, err := NewSensorGroup(testGroupConfig(t, ModeReplay), registry, nil)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := g.StartRecording(); !errors.Is(err, ErrReplayActive) {
		t.Errorf("expected ErrReplayActive, got %v", err)
	}

	// Hardware-mode group cannot replay
	gens := map[string]map[string]GeneratorFunc{
		"imu": {"accel": func() (any, error) { return 1.0, nil }},
	}
	g2, err := NewSensorGroup(testGroupConfig(t, ModeHardware), registry, gens)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := g2.StartReplay(0); err == nil {
		t.Error("expected error replaying in hardware mode")
	}
}

func TestGroupRecordThenReplay(t *testing.T) {
	registry := testRegistry(t)
	path := filepath.Join(t.TempDir(), "rec.trk")

	var n atomic.Int64
	gens := map[string]map[string]GeneratorFunc{
		"imu": {"accel": func() (any, error) { return float64(n.Add(1)), nil }},
	}

	cfg := testGroupConfig(t, ModeHardware)
	cfg.Path = path
	g, err := NewSensorGroup(cfg, registry, gens)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	g.Connect()
	if err := g.StartRecording(); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if err := g.StartRecording(); err != nil {
		t.Fatalf("double start recording: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	g.StopRecording()
	g.StopRecording()
	g.Disconnect()

	events, err := ReadAllChunks(path, registry, DefaultChunkFileConfig())
	if err != nil {
		t.Fatalf("bulk decode: %v", err)
	}
	recorded := events["imu"]["accel"]
	if len(recorded) == 0 {
		t.Fatal("expected recorded events")
	}
	for i := 1; i < len(recorded); i++ {
		if recorded[i].Delta < recorded[i-1].Delta {
			t.Fatalf("deltas out of order at %d: %g < %g", i, recorded[i].Delta, recorded[i-1].Delta)
		}
	}

	// Replay the recording into a fresh group
	rcfg := testGroupConfig(t, ModeReplay)
	rcfg.Path = path
	rcfg.BufferAhead = time.Hour
	rg, err := NewSensorGroup(rcfg, registry, nil)
	if err != nil {
		t.Fatalf("create replay group: %v", err)
	}
	rg.Connect()
	if err := rg.StartReplay(0); err != nil {
		t.Fatalf("start replay: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rg.Read("imu/accel", "", 1) != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if rg.Read("imu/accel", "", 1) == nil {
		t.Error("expected replayed reading in store")
	}
	rg.Disconnect()
}

func TestGroupIdempotentLifecycle(t *testing.T) {
	registry := testRegistry(t)
	gens := map[string]map[string]GeneratorFunc{
		"imu": {"accel": func() (any, error) { return 1.0, nil }},
	}
	g, err := NewSensorGroup(testGroupConfig(t, ModeHardware), registry, gens)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	g.Disconnect()
	g.Connect()
	g.Connect()
	g.StopRecording()
	g.StopReplay()
	g.Disconnect()
	g.Disconnect()
}
