package tracklog

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ReplayQueue buffers decoded events for one (sensor, stream) pair between
// the refill loop and the stream worker consuming them.
type ReplayQueue struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewReplayQueue returns an empty queue.
func NewReplayQueue() *ReplayQueue {
	return &ReplayQueue{notify: make(chan struct{}, 1)}
}

// Push appends one event and wakes a waiting Pop.
func (q *ReplayQueue) Push(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the oldest event, waiting up to timeout for one to arrive.
// The stop channel aborts the wait early.
func (q *ReplayQueue) Pop(timeout time.Duration, stop <-chan struct{}) (Event, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			e := q.events[0]
			q.events = q.events[1:]
			q.mu.Unlock()
			return e, true
		}
		q.mu.Unlock()
		select {
		case <-q.notify:
		case <-deadline.C:
			return Event{}, false
		case <-stop:
			return Event{}, false
		}
	}
}

// Span returns the buffered time in seconds: the delta distance between the
// oldest and newest queued events.
func (q *ReplayQueue) Span() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) < 2 {
		return 0
	}
	return q.events[len(q.events)-1].Delta - q.events[0].Delta
}

// Len returns the number of queued events.
func (q *ReplayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Reset discards all queued events.
func (q *ReplayQueue) Reset() {
	q.mu.Lock()
	q.events = nil
	q.mu.Unlock()
}

// ReplayerConfig tunes the refill loop.
type ReplayerConfig struct {
	// BufferAhead is how much event time every queue is kept topped up to.
	// Default: 4s
	BufferAhead time.Duration
	// PollInterval is how often queue levels are checked. Default: 100ms
	PollInterval time.Duration
	// JoinTimeout bounds the wait for the refill loop on stop. Default: 2s
	JoinTimeout time.Duration
}

// DefaultReplayerConfig returns the standard refill tuning.
func DefaultReplayerConfig() ReplayerConfig {
	return ReplayerConfig{
		BufferAhead:  4 * time.Second,
		PollInterval: 100 * time.Millisecond,
		JoinTimeout:  2 * time.Second,
	}
}

// Replayer reads a recording file back, decoding chunks ahead of playback
// and distributing events to per-stream queues.
type Replayer struct {
	mu       sync.Mutex
	path     string
	fileCfg  ChunkFileConfig
	registry *SensorTypeRegistry
	cfg      ReplayerConfig

	qmu    sync.Mutex
	queues map[string]map[string]*ReplayQueue

	stopCh    chan struct{}
	done      chan struct{}
	replaying bool
}

// NewReplayer creates a replayer for the recording at path.
func NewReplayer(path string, fileCfg ChunkFileConfig, registry *SensorTypeRegistry, cfg ReplayerConfig) *Replayer {
	if cfg.BufferAhead <= 0 {
		cfg.BufferAhead = 4 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 2 * time.Second
	}
	fileCfg.ReadOnly = true
	return &Replayer{
		path:     path,
		fileCfg:  fileCfg,
		registry: registry,
		cfg:      cfg,
		queues:   make(map[string]map[string]*ReplayQueue),
	}
}

// Queue returns the replay queue for a (sensor, stream) pair, creating it on
// first use.
func (p *Replayer) Queue(sensor, stream string) *ReplayQueue {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	streams := p.queues[sensor]
	if streams == nil {
		streams = make(map[string]*ReplayQueue)
		p.queues[sensor] = streams
	}
	q := streams[stream]
	if q == nil {
		q = NewReplayQueue()
		streams[stream] = q
	}
	return q
}

// Replaying reports whether a replay is in progress.
func (p *Replayer) Replaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.replaying
}

// StartReplay begins playback at offsetSeconds into the recording. Any
// running replay is stopped first. An offset past the end of the recording
// is reset to zero with a warning; an empty recording is an error.
func (p *Replayer) StartReplay(offsetSeconds float64) error {
	p.StopReplay()

	p.mu.Lock()
	defer p.mu.Unlock()

	file, err := OpenChunkFile(p.path, p.fileCfg)
	if err != nil {
		return err
	}
	record, err := file.ConfigRecord()
	if err != nil {
		file.Close()
		return err
	}
	cr, err := DecodeConfigRecord(record)
	if err != nil {
		file.Close()
		return err
	}
	codecs, err := codecsFor(p.registry, cr)
	if err != nil {
		file.Close()
		return err
	}
	spans, err := file.Spans()
	if err != nil {
		file.Close()
		return err
	}
	if len(spans) == 0 {
		file.Close()
		return errors.New("empty recording")
	}

	if offsetSeconds < 0 {
		offsetSeconds = 0
	}
	if offsetSeconds >= spans[len(spans)-1].End {
		log.Printf("tracklog: replay offset %gs past end of recording (%gs), starting from 0",
			offsetSeconds, spans[len(spans)-1].End)
		offsetSeconds = 0
	}
	cursor := startChunk(spans, offsetSeconds)

	p.qmu.Lock()
	for _, streams := range p.queues {
		for _, q := range streams {
			q.Reset()
		}
	}
	p.qmu.Unlock()

	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	p.replaying = true
	go p.refill(file, codecs, spans, cursor, offsetSeconds, p.stopCh, p.done)
	return nil
}

// StopReplay stops the refill loop, waiting up to JoinTimeout. Idempotent.
func (p *Replayer) StopReplay() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.replaying {
		return
	}
	close(p.stopCh)
	select {
	case <-p.done:
	case <-time.After(p.cfg.JoinTimeout):
		log.Printf("tracklog: replay refill did not stop within %v", p.cfg.JoinTimeout)
	}
	p.replaying = false
}

// startChunk picks the first chunk to play for an offset: the chunk whose
// span contains it, or the next chunk when the offset falls in a gap.
func startChunk(spans []ChunkSpan, offset float64) int {
	for i, s := range spans {
		if offset < s.End {
			return i
		}
	}
	return len(spans) - 1
}

// refill keeps every queue buffered BufferAhead seconds of events, reading
// one chunk at a time. When the known chunks run out it re-reads the span
// list, since a concurrent writer may still be appending.
func (p *Replayer) refill(file *ChunkFile, codecs map[string]*Codec, spans []ChunkSpan, cursor int, offset float64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("tracklog: close replay file: %v", err)
		}
	}()
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !p.needsRefill() {
			select {
			case <-stop:
				return
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		}
		if cursor >= len(spans) {
			fresh, err := file.Spans()
			if err != nil {
				log.Printf("tracklog: refresh chunk spans: %v", err)
				return
			}
			if len(fresh) <= len(spans) {
				// Recording is fully distributed.
				return
			}
			spans = fresh
			continue
		}
		p.distributeChunk(file, codecs, spans[cursor].Index, offset)
		cursor++
	}
}

// needsRefill reports whether any queue holds less than BufferAhead of
// event time.
func (p *Replayer) needsRefill() bool {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	if len(p.queues) == 0 {
		return true
	}
	ahead := p.cfg.BufferAhead.Seconds()
	for _, streams := range p.queues {
		for _, q := range streams {
			if q.Span() < ahead {
				return true
			}
		}
	}
	return false
}

// distributeChunk decodes one chunk and pushes its events to the matching
// queues. Decode failures skip the event or chunk with a log line; events
// before the replay offset are dropped.
func (p *Replayer) distributeChunk(file *ChunkFile, codecs map[string]*Codec, index int, offset float64) {
	blob, err := file.ReadChunk(index)
	if err != nil {
		log.Printf("tracklog: read chunk %d: %v", index, err)
		return
	}
	events, err := UnpackChunk(blob)
	if err != nil {
		log.Printf("tracklog: unpack chunk %d: %v", index, err)
		return
	}
	for _, sensor := range sortedMapKeys(events) {
		codec := codecs[sensor]
		if codec == nil {
			log.Printf("tracklog: chunk %d: no codec for sensor %q", index, sensor)
			continue
		}
		streams := events[sensor]
		for _, stream := range sortedMapKeys(streams) {
			for _, b := range streams[stream] {
				ev, err := codec.Deserialize(b)
				if err != nil {
					log.Printf("tracklog: chunk %d: decode event on %s/%s: %v", index, sensor, stream, err)
					continue
				}
				if ev.Delta < offset {
					continue
				}
				p.Queue(sensor, ev.Stream).Push(ev)
			}
		}
	}
}

// codecsFor builds the per-sensor codecs named by a config record. Unknown
// sensor types are a configuration error.
func codecsFor(registry *SensorTypeRegistry, cr ConfigRecord) (map[string]*Codec, error) {
	codecs := make(map[string]*Codec, len(cr.Sensors))
	for _, s := range cr.Sensors {
		t, ok := registry.Lookup(s.SensorType)
		if !ok {
			return nil, fmt.Errorf("unknown sensor type %q for sensor %q", s.SensorType, s.SensorName)
		}
		c, err := t.NewCodec(s.Streams)
		if err != nil {
			return nil, fmt.Errorf("build codec for sensor %q: %w", s.SensorName, err)
		}
		codecs[s.SensorName] = c
	}
	return codecs, nil
}
