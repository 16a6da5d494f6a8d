package tracklog

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tracklog-db/tracklog/internal/encoding"
)

const (
	// streamNameSize is the fixed header field width for the stream name.
	streamNameSize = 32
	// eventHeaderSize is the serialized header length: name + float64 delta.
	eventHeaderSize = streamNameSize + 8
)

// ErrUnknownStream reports an event naming a stream the codec has no
// registration for.
var ErrUnknownStream = errors.New("unknown stream")

// Event is one decoded sample: the stream it belongs to, the time delta in
// seconds since recording start, and the decoded payload.
type Event struct {
	Stream string
	Delta  float64
	Data   any
}

// EncodeFunc turns a sample payload into bytes.
type EncodeFunc func(data any) ([]byte, error)

// DecodeFunc is the inverse of EncodeFunc.
type DecodeFunc func(blob []byte) (any, error)

// StreamCodec pairs the encode and decode halves for one stream.
type StreamCodec struct {
	Encode EncodeFunc
	Decode DecodeFunc
}

// Codec serializes events for one sensor. Each stream registers its own
// encode/decode pair; the serialized form prefixes every payload with a
// fixed 40-byte header holding the NUL-padded stream name and the delta.
type Codec struct {
	streams map[string]StreamCodec
}

// NewCodec returns an empty codec.
func NewCodec() *Codec {
	return &Codec{streams: make(map[string]StreamCodec)}
}

// Register installs the codec pair for a stream. Names are limited to the
// header field width.
func (c *Codec) Register(stream string, sc StreamCodec) error {
	if stream == "" {
		return errors.New("empty stream name")
	}
	if len(stream) > streamNameSize {
		return fmt.Errorf("stream name %q exceeds %d bytes", stream, streamNameSize)
	}
	c.streams[stream] = sc
	return nil
}

// Streams returns the registered stream names, sorted.
func (c *Codec) Streams() []string {
	return sortedMapKeys(c.streams)
}

// Serialize encodes one sample into header+payload wire form.
func (c *Codec) Serialize(stream string, data any, delta float64) ([]byte, error) {
	sc, ok := c.streams[stream]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStream, stream)
	}
	payload, err := sc.Encode(data)
	if err != nil {
		return nil, fmt.Errorf("encode stream %q: %w", stream, err)
	}
	blob := make([]byte, eventHeaderSize+len(payload))
	copy(blob, stream)
	binary.LittleEndian.PutUint64(blob[streamNameSize:], math.Float64bits(delta))
	copy(blob[eventHeaderSize:], payload)
	return blob, nil
}

// Deserialize decodes one wire-form event.
func (c *Codec) Deserialize(blob []byte) (Event, error) {
	if len(blob) < eventHeaderSize {
		return Event{}, fmt.Errorf("event blob too short: %d bytes", len(blob))
	}
	stream := strings.TrimRight(string(blob[:streamNameSize]), "\x00")
	sc, ok := c.streams[stream]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownStream, stream)
	}
	delta := math.Float64frombits(binary.LittleEndian.Uint64(blob[streamNameSize:eventHeaderSize]))
	data, err := sc.Decode(blob[eventHeaderSize:])
	if err != nil {
		return Event{}, fmt.Errorf("decode stream %q: %w", stream, err)
	}
	return Event{Stream: stream, Delta: delta, Data: data}, nil
}

// JSONStreamCodec carries arbitrary readings as JSON.
func JSONStreamCodec() StreamCodec {
	return StreamCodec{
		Encode: func(data any) ([]byte, error) {
			return json.Marshal(data)
		},
		Decode: func(blob []byte) (any, error) {
			var v any
			if err := json.Unmarshal(blob, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// Float64SliceStreamCodec carries raw float64 vectors.
func Float64SliceStreamCodec() StreamCodec {
	return StreamCodec{
		Encode: func(data any) ([]byte, error) {
			vs, ok := data.([]float64)
			if !ok {
				return nil, fmt.Errorf("expected []float64, got %T", data)
			}
			return encoding.EncodeFloat64Slice(vs), nil
		},
		Decode: func(blob []byte) (any, error) {
			return encoding.DecodeFloat64Slice(blob)
		},
	}
}
