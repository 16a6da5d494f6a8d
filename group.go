package tracklog

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrReplayActive reports an attempt to record while replaying.
	ErrReplayActive = errors.New("replay in progress")
	// ErrRecordingActive reports an attempt to replay while recording.
	ErrRecordingActive = errors.New("recording in progress")
)

// SensorGroup wires sensors, the path store, the recorder and the replayer
// into one lifecycle. Recording and replay are mutually exclusive.
type SensorGroup struct {
	mu        sync.Mutex
	cfg       GroupConfig
	store     *PathStore
	hub       *StreamHub
	sensors   []*Sensor
	recorder  *Recorder
	replayer  *Replayer
	connected bool
	recording bool
}

// NewSensorGroup builds a group from config. gens maps sensor name to stream
// name to generator; hardware mode requires a generator for every declared
// stream.
func NewSensorGroup(cfg GroupConfig, registry *SensorTypeRegistry, gens map[string]map[string]GeneratorFunc) (*SensorGroup, error) {
	cfg.normalize()
	if cfg.Path == "" {
		return nil, errors.New("group config has no recording path")
	}

	g := &SensorGroup{cfg: cfg}
	g.store = NewPathStore(cfg.RingCapacity)
	if cfg.Streaming.Enabled {
		g.hub = NewStreamHub(cfg.Streaming)
		g.store.SetInsertHook(g.hub.Publish)
	}
	g.replayer = NewReplayer(cfg.Path, cfg.fileConfig(), registry, cfg.replayerConfig())

	for _, decl := range cfg.Sensors {
		t, ok := registry.Lookup(decl.Type)
		if !ok {
			return nil, fmt.Errorf("sensor %q: unknown sensor type %q", decl.Name, decl.Type)
		}
		names := make([]string, len(decl.Streams))
		for i, st := range decl.Streams {
			names[i] = st.Name
		}
		codec, err := t.NewCodec(names)
		if err != nil {
			return nil, fmt.Errorf("sensor %q: %w", decl.Name, err)
		}
		streams := make([]Stream, len(decl.Streams))
		for i, st := range decl.Streams {
			streams[i] = Stream{Name: st.Name, FrequencyHz: st.FrequencyHz}
			if cfg.Mode == ModeHardware {
				gen := gens[decl.Name][st.Name]
				if gen == nil {
					return nil, fmt.Errorf("sensor %q: no generator for stream %q", decl.Name, st.Name)
				}
				streams[i].Generator = gen
			}
		}
		s := newSensor(decl.Name, decl.Type, cfg.Mode, streams, codec, g.store, g.replayer.Queue)
		if err := validateStreams(decl.Name, streams, codec); err != nil {
			return nil, err
		}
		g.sensors = append(g.sensors, s)
	}

	g.recorder = NewRecorder(cfg.Path, cfg.fileConfig(), cfg.CaptureInterval, g.captureSources)
	return g, nil
}

func (g *SensorGroup) captureSources() []CaptureSource {
	out := make([]CaptureSource, len(g.sensors))
	for i, s := range g.sensors {
		out[i] = s
	}
	return out
}

// Store returns the group's path store.
func (g *SensorGroup) Store() *PathStore { return g.store }

// Hub returns the streaming hub, nil when streaming is disabled.
func (g *SensorGroup) Hub() *StreamHub { return g.hub }

// Read queries the store. See PathStore.Read.
func (g *SensorGroup) Read(channel, projection string, count int) any {
	return g.store.Read(channel, projection, count)
}

// Connect starts all stream workers. In replay mode the queues are created
// up front so the refill loop has somewhere to distribute to.
func (g *SensorGroup) Connect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connected {
		return
	}
	if g.cfg.Mode == ModeReplay {
		for _, s := range g.sensors {
			for _, st := range s.streams {
				g.replayer.Queue(s.name, st.Name)
			}
		}
	}
	for _, s := range g.sensors {
		s.Start()
	}
	g.connected = true
}

// Disconnect stops everything: recording first, then stream workers, then
// any replay.
func (g *SensorGroup) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return
	}
	g.stopRecordingLocked()
	for _, s := range g.sensors {
		s.Stop()
	}
	g.replayer.StopReplay()
	g.connected = false
}

// StartRecording begins persisting hardware acquisition to the recording
// file. No-op when already recording; an active replay is an error.
func (g *SensorGroup) StartRecording() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.recording {
		return nil
	}
	if g.cfg.Mode == ModeReplay || g.replayer.Replaying() {
		return ErrReplayActive
	}
	record, err := EncodeConfigRecord(g.cfg.Record())
	if err != nil {
		return err
	}
	if err := g.recorder.StartSaving(record); err != nil {
		return err
	}
	start := time.Now()
	for _, s := range g.sensors {
		s.beginRecording(start)
	}
	g.recording = true
	return nil
}

// StopRecording flushes and stops persistence. Idempotent.
func (g *SensorGroup) StopRecording() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopRecordingLocked()
}

func (g *SensorGroup) stopRecordingLocked() {
	if !g.recording {
		return
	}
	for _, s := range g.sensors {
		s.endRecording()
	}
	g.recorder.StopSaving()
	g.recording = false
}

// StartReplay plays the recording back from offsetSeconds. The group must be
// in replay mode and not recording. Stream workers are restarted so each
// begins at the new position.
func (g *SensorGroup) StartReplay(offsetSeconds float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cfg.Mode != ModeReplay {
		return fmt.Errorf("group %q is not in replay mode", g.cfg.Name)
	}
	if g.recording {
		return ErrRecordingActive
	}
	for _, s := range g.sensors {
		s.Stop()
	}
	if err := g.replayer.StartReplay(offsetSeconds); err != nil {
		return err
	}
	if g.connected {
		for _, s := range g.sensors {
			s.Start()
		}
	}
	return nil
}

// StopReplay halts playback. Idempotent.
func (g *SensorGroup) StopReplay() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replayer.StopReplay()
}
