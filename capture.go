package tracklog

import "sync"

// CaptureBuffer accumulates serialized events for one sensor between capture
// ticks. Appends run on the sensor's stream goroutines; Drain runs on the
// capture task and swaps the buffers out under the same lock, so a drain
// never blocks acquisition for longer than a map swap.
type CaptureBuffer struct {
	mu     sync.Mutex
	events map[string][][]byte
	deltas map[string]float64
}

// NewCaptureBuffer returns an empty buffer.
func NewCaptureBuffer() *CaptureBuffer {
	return &CaptureBuffer{
		events: make(map[string][][]byte),
		deltas: make(map[string]float64),
	}
}

// Append adds one serialized event for a stream. delta is the event's time
// offset in seconds since recording start.
func (b *CaptureBuffer) Append(stream string, blob []byte, delta float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[stream] = append(b.events[stream], blob)
	b.deltas[stream] = delta
}

// Drain returns everything buffered so far and resets the buffer. The second
// map holds the latest delta seen per stream.
func (b *CaptureBuffer) Drain() (map[string][][]byte, map[string]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	events, deltas := b.events, b.deltas
	b.events = make(map[string][][]byte)
	b.deltas = make(map[string]float64)
	return events, deltas
}

// Reset discards any buffered events.
func (b *CaptureBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = make(map[string][][]byte)
	b.deltas = make(map[string]float64)
}
