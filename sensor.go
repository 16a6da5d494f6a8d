package tracklog

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Mode selects where a sensor's samples come from.
type Mode string

const (
	// ModeHardware polls generators at their target frequency.
	ModeHardware Mode = "hardware"
	// ModeReplay consumes events from replay queues.
	ModeReplay Mode = "replay"
)

// GeneratorFunc produces one sample from the underlying hardware.
type GeneratorFunc func() (any, error)

// Stream is one named data stream of a sensor.
type Stream struct {
	Name        string
	FrequencyHz float64
	Generator   GeneratorFunc
}

const (
	// replayPopTimeout bounds each queue wait so workers notice stop requests.
	replayPopTimeout = 200 * time.Millisecond
	// minReplayTick is the floor on inter-event sleeps during replay.
	minReplayTick = time.Millisecond
)

// Sensor runs one worker goroutine per stream. Hardware mode polls the
// stream's generator; replay mode consumes the stream's ReplayQueue and
// reproduces recorded inter-event gaps. Both feed the PathStore; hardware
// mode additionally serializes into the capture buffer while recording.
type Sensor struct {
	name    string
	typ     string
	mode    Mode
	streams []Stream
	codec   *Codec
	capture *CaptureBuffer
	store   *PathStore
	queue   func(sensor, stream string) *ReplayQueue

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	recording   atomic.Bool
	recordStart atomic.Int64
}

func newSensor(name, typ string, mode Mode, streams []Stream, codec *Codec, store *PathStore, queue func(sensor, stream string) *ReplayQueue) *Sensor {
	return &Sensor{
		name:    name,
		typ:     typ,
		mode:    mode,
		streams: streams,
		codec:   codec,
		capture: NewCaptureBuffer(),
		store:   store,
		queue:   queue,
	}
}

// Name returns the sensor name.
func (s *Sensor) Name() string { return s.name }

// Type returns the sensor type name.
func (s *Sensor) Type() string { return s.typ }

// CaptureBuffer exposes the sensor's capture buffer to the recorder.
func (s *Sensor) CaptureBuffer() *CaptureBuffer { return s.capture }

// Start launches one worker per stream. No-op when already running.
func (s *Sensor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.stopCh = make(chan struct{})
	s.running = true
	for _, st := range s.streams {
		s.wg.Add(1)
		if s.mode == ModeReplay {
			go s.runReplay(st, s.stopCh)
		} else {
			go s.runHardware(st, s.stopCh)
		}
	}
}

// Stop signals all workers and waits for them. Idempotent.
func (s *Sensor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
	s.running = false
}

// beginRecording arms capture with a shared recording start time.
func (s *Sensor) beginRecording(start time.Time) {
	s.capture.Reset()
	s.recordStart.Store(start.UnixNano())
	s.recording.Store(true)
}

// endRecording disarms capture.
func (s *Sensor) endRecording() {
	s.recording.Store(false)
}

// runHardware polls the generator at the stream's frequency. The sleep is
// shortened by the time the poll itself took.
func (s *Sensor) runHardware(st Stream, stop <-chan struct{}) {
	defer s.wg.Done()
	period := time.Second
	if st.FrequencyHz > 0 {
		period = time.Duration(float64(time.Second) / st.FrequencyHz)
	}
	for {
		select {
		case <-stop:
			return
		default:
		}
		began := time.Now()
		data, err := st.Generator()
		if err != nil {
			log.Printf("tracklog: sensor %s/%s: generator: %v", s.name, st.Name, err)
		} else {
			s.deliver(st.Name, data)
		}
		sleep := period - time.Since(began)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-stop:
			return
		case <-time.After(sleep):
		}
	}
}

// deliver inserts a sample into the store and, while recording, serializes
// it into the capture buffer.
func (s *Sensor) deliver(stream string, data any) {
	s.store.Insert(Reading{s.name: Reading{stream: data}})
	if !s.recording.Load() {
		return
	}
	delta := float64(time.Now().UnixNano()-s.recordStart.Load()) / float64(time.Second)
	blob, err := s.codec.Serialize(stream, data, delta)
	if err != nil {
		log.Printf("tracklog: sensor %s/%s: serialize: %v", s.name, stream, err)
		return
	}
	s.capture.Append(stream, blob, delta)
}

// runReplay consumes the stream's replay queue, sleeping the recorded gap
// between consecutive events before inserting each one.
func (s *Sensor) runReplay(st Stream, stop <-chan struct{}) {
	defer s.wg.Done()
	q := s.queue(s.name, st.Name)
	prev := 0.0
	first := true
	for {
		select {
		case <-stop:
			return
		default:
		}
		ev, ok := q.Pop(replayPopTimeout, stop)
		if !ok {
			continue
		}
		sleep := minReplayTick
		if !first {
			if gap := time.Duration((ev.Delta - prev) * float64(time.Second)); gap > sleep {
				sleep = gap
			}
		}
		first = false
		prev = ev.Delta
		select {
		case <-stop:
			return
		case <-time.After(sleep):
		}
		s.store.Insert(Reading{s.name: Reading{ev.Stream: ev.Data}})
	}
}

// validateStreams rejects duplicate or codec-unknown stream declarations.
func validateStreams(sensor string, streams []Stream, codec *Codec) error {
	seen := make(map[string]bool, len(streams))
	for _, st := range streams {
		if st.Name == "" {
			return fmt.Errorf("sensor %q: stream with empty name", sensor)
		}
		if seen[st.Name] {
			return fmt.Errorf("sensor %q: duplicate stream %q", sensor, st.Name)
		}
		seen[st.Name] = true
	}
	for _, st := range streams {
		if _, ok := codec.streams[st.Name]; !ok {
			return fmt.Errorf("sensor %q: stream %q has no codec", sensor, st.Name)
		}
	}
	return nil
}
