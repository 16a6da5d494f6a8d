package tracklog

import (
	"fmt"
	"log"
)

// ReadAllChunks decodes a whole recording into events grouped by sensor and
// stream, in chunk order. A missing or unreadable config record is fatal;
// individual chunk or event decode failures are logged and skipped.
func ReadAllChunks(path string, registry *SensorTypeRegistry, fileCfg ChunkFileConfig) (map[string]map[string][]Event, error) {
	fileCfg.ReadOnly = true
	file, err := OpenChunkFile(path, fileCfg)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	record, err := file.ConfigRecord()
	if err != nil {
		return nil, err
	}
	cr, err := DecodeConfigRecord(record)
	if err != nil {
		return nil, err
	}
	codecs, err := codecsFor(registry, cr)
	if err != nil {
		return nil, err
	}
	spans, err := file.Spans()
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string][]Event)
	for _, span := range spans {
		blob, err := file.ReadChunk(span.Index)
		if err != nil {
			log.Printf("tracklog: read chunk %d: %v", span.Index, err)
			continue
		}
		events, err := UnpackChunk(blob)
		if err != nil {
			log.Printf("tracklog: unpack chunk %d: %v", span.Index, err)
			continue
		}
		for _, sensor := range sortedMapKeys(events) {
			codec := codecs[sensor]
			if codec == nil {
				return nil, fmt.Errorf("chunk %d: no codec for sensor %q", span.Index, sensor)
			}
			streams := events[sensor]
			if out[sensor] == nil {
				out[sensor] = make(map[string][]Event)
			}
			for _, stream := range sortedMapKeys(streams) {
				for _, b := range streams[stream] {
					ev, err := codec.Deserialize(b)
					if err != nil {
						log.Printf("tracklog: chunk %d: decode event on %s/%s: %v", span.Index, sensor, stream, err)
						continue
					}
					out[sensor][ev.Stream] = append(out[sensor][ev.Stream], ev)
				}
			}
		}
	}
	return out, nil
}
