package tracklog

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultCaptureInterval is how often the capture task drains sensors into a
// chunk when no interval is configured.
const DefaultCaptureInterval = 5 * time.Second

// chunkWrite is one packed chunk handed from the capture task to the writer.
type chunkWrite struct {
	index int
	end   float64
	blob  []byte
}

// CaptureSource is anything the recorder can drain: one sensor exposing its
// capture buffer.
type CaptureSource interface {
	Name() string
	CaptureBuffer() *CaptureBuffer
}

// Recorder persists sensor events to a chunk file. A ticker-driven capture
// task drains every source, packs one chunk, and hands it to a dedicated
// writer goroutine that owns the file handle, so a slow disk never stalls
// acquisition.
type Recorder struct {
	mu       sync.Mutex
	saving   bool
	path     string
	fileCfg  ChunkFileConfig
	interval time.Duration
	sources  func() []CaptureSource

	stopCh      chan struct{}
	writeCh     chan chunkWrite
	captureDone chan struct{}
	writerDone  chan struct{}
}

// NewRecorder creates a recorder writing to path. sources is called at each
// capture tick so the sensor set may change between recordings.
func NewRecorder(path string, fileCfg ChunkFileConfig, interval time.Duration, sources func() []CaptureSource) *Recorder {
	if interval <= 0 {
		interval = DefaultCaptureInterval
	}
	return &Recorder{
		path:     path,
		fileCfg:  fileCfg,
		interval: interval,
		sources:  sources,
	}
}

// Saving reports whether a recording is in progress.
func (r *Recorder) Saving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saving
}

// StartSaving opens the chunk file, stores the config record, and starts the
// capture and writer tasks. Appending to an existing recording resumes after
// its last chunk. No-op when already saving.
func (r *Recorder) StartSaving(configRecord string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saving {
		return nil
	}

	file, err := OpenChunkFile(r.path, r.fileCfg)
	if err != nil {
		return err
	}
	if err := file.SetConfigRecord(configRecord); err != nil {
		file.Close()
		return err
	}
	spans, err := file.Spans()
	if err != nil {
		file.Close()
		return fmt.Errorf("resume recording: %w", err)
	}
	nextIndex := len(spans)
	lastEnd := 0.0
	if nextIndex > 0 {
		lastEnd = spans[nextIndex-1].End
	}

	r.stopCh = make(chan struct{})
	r.writeCh = make(chan chunkWrite, 16)
	r.captureDone = make(chan struct{})
	r.writerDone = make(chan struct{})
	r.saving = true

	go r.writerLoop(file, lastEnd)
	go r.captureLoop(nextIndex)
	return nil
}

// StopSaving flushes a final chunk, stops both tasks, and closes the file.
// Idempotent.
func (r *Recorder) StopSaving() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.saving {
		return
	}
	close(r.stopCh)
	<-r.captureDone
	close(r.writeCh)
	<-r.writerDone
	r.saving = false
}

// captureLoop drains sources at every interval tick and once more on stop.
func (r *Recorder) captureLoop(next int) {
	defer close(r.captureDone)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			r.captureChunk(&next)
			return
		case <-ticker.C:
			r.captureChunk(&next)
		}
	}
}

// captureChunk drains every source into one chunk and enqueues it. Ticks
// with no events produce no chunk.
func (r *Recorder) captureChunk(next *int) {
	events := make(ChunkEvents)
	end := 0.0
	total := 0
	for _, src := range r.sources() {
		streams, deltas := src.CaptureBuffer().Drain()
		if len(streams) == 0 {
			continue
		}
		events[src.Name()] = streams
		for _, blobs := range streams {
			total += len(blobs)
		}
		for _, d := range deltas {
			if d > end {
				end = d
			}
		}
	}
	if total == 0 {
		return
	}
	blob, err := PackChunk(events)
	if err != nil {
		log.Printf("tracklog: pack chunk %d: %v", *next, err)
		return
	}
	r.writeCh <- chunkWrite{index: *next, end: end, blob: blob}
	*next++
}

// writerLoop is the only goroutine touching the chunk file while saving. A
// chunk's span starts where the previous chunk ended; an end time that lags
// the running edge is clamped so spans never invert.
func (r *Recorder) writerLoop(file *ChunkFile, lastEnd float64) {
	defer close(r.writerDone)
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("tracklog: close chunk file: %v", err)
		}
	}()
	for w := range r.writeCh {
		start := lastEnd
		end := w.end
		if end < start {
			end = start
		}
		if err := file.AppendChunk(w.index, start, end, w.blob); err != nil {
			log.Printf("tracklog: write chunk %d: %v", w.index, err)
			continue
		}
		lastEnd = end
	}
}
