// Package tracklog provides multi-sensor data acquisition with record and
// replay: a path-indexed in-memory store of live readings, chunked binary
// persistence to a single recording file, and timing-faithful playback.
//
// # Basic Usage
//
// Declare a sensor group and connect it:
//
//	registry := tracklog.NewSensorTypeRegistry()
//	tracklog.RegisterBuiltinSensorTypes(registry)
//
//	cfg := tracklog.DefaultGroupConfig("bench", "run.trk")
//	cfg.Sensors = []tracklog.SensorDecl{{
//	    Name: "imu", Type: "json",
//	    Streams: []tracklog.StreamDecl{{Name: "accel", FrequencyHz: 100}},
//	}}
//
//	group, err := tracklog.NewSensorGroup(cfg, registry, generators)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	group.Connect()
//	defer group.Disconnect()
//
// Query the latest reading on a channel:
//
//	v := group.Read("imu/accel", "", 1)
//
// Record, then replay:
//
//	group.StartRecording()
//	...
//	group.StopRecording()
//
//	// later, with cfg.Mode = tracklog.ModeReplay
//	group.StartReplay(12.5)
//
// # Features
//
// Acquisition:
//   - One worker goroutine per sensor stream with frequency-controlled polling
//   - Path-indexed ring-buffer store with projection queries
//   - Grouping-key channels for discriminated sub-streams
//   - Live WebSocket streaming of channel updates
//
// Persistence:
//   - Double-buffered capture with an isolated writer goroutine
//   - Self-describing chunk framing, snappy compression
//   - Single-file SQLite layout with embedded config record
//   - Optional AES-256-GCM encryption at rest
//
// Replay:
//   - Offset seek into any recording
//   - Buffered-ahead decode keeping playback smooth
//   - Inter-event timing reproduced from recorded deltas
//   - Bulk decode of whole recordings for offline analysis
//
// Archival:
//   - S3-compatible object store upload of finished recordings
package tracklog
