package tracklog

import (
	"bytes"
	"fmt"

	"github.com/tracklog-db/tracklog/internal/encoding"
)

// ChunkEvents groups serialized events by sensor name and stream name.
// This is the in-memory shape of one persisted chunk.
type ChunkEvents map[string]map[string][][]byte

// PackChunk frames a chunk's events into one self-describing blob. Layout is
// length-prefixed throughout: sensor count, then per sensor its name, stream
// count, and per stream its name, event count and event blobs. Iteration is
// sorted so packing is deterministic.
func PackChunk(events ChunkEvents) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encoding.WriteUint32(buf, uint32(len(events))); err != nil {
		return nil, err
	}
	for _, sensor := range sortedMapKeys(events) {
		streams := events[sensor]
		if err := encoding.WriteString(buf, sensor); err != nil {
			return nil, err
		}
		if err := encoding.WriteUint32(buf, uint32(len(streams))); err != nil {
			return nil, err
		}
		for _, stream := range sortedMapKeys(streams) {
			blobs := streams[stream]
			if err := encoding.WriteString(buf, stream); err != nil {
				return nil, err
			}
			if err := encoding.WriteUint32(buf, uint32(len(blobs))); err != nil {
				return nil, err
			}
			for _, b := range blobs {
				if err := encoding.WriteBytes(buf, b); err != nil {
					return nil, err
				}
			}
		}
	}
	return buf.Bytes(), nil
}

// UnpackChunk is the structural inverse of PackChunk. Truncated input and
// trailing garbage are rejected.
func UnpackChunk(blob []byte) (ChunkEvents, error) {
	r := bytes.NewReader(blob)
	sensorCount, err := encoding.ReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read sensor count: %w", err)
	}
	events := make(ChunkEvents, sensorCount)
	for i := uint32(0); i < sensorCount; i++ {
		sensor, err := encoding.ReadString(r)
		if err != nil {
			return nil, fmt.Errorf("read sensor name: %w", err)
		}
		streamCount, err := encoding.ReadUint32(r)
		if err != nil {
			return nil, fmt.Errorf("sensor %q: read stream count: %w", sensor, err)
		}
		streams := make(map[string][][]byte, streamCount)
		for j := uint32(0); j < streamCount; j++ {
			stream, err := encoding.ReadString(r)
			if err != nil {
				return nil, fmt.Errorf("sensor %q: read stream name: %w", sensor, err)
			}
			eventCount, err := encoding.ReadUint32(r)
			if err != nil {
				return nil, fmt.Errorf("stream %q/%q: read event count: %w", sensor, stream, err)
			}
			blobs := make([][]byte, 0, eventCount)
			for k := uint32(0); k < eventCount; k++ {
				b, err := encoding.ReadBytes(r)
				if err != nil {
					return nil, fmt.Errorf("stream %q/%q: read event: %w", sensor, stream, err)
				}
				blobs = append(blobs, b)
			}
			streams[stream] = blobs
		}
		events[sensor] = streams
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("chunk has %d trailing bytes", r.Len())
	}
	return events, nil
}
