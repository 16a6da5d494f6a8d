package tracklog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StreamDecl declares one stream of a sensor.
type StreamDecl struct {
	Name        string  `yaml:"name"`
	FrequencyHz float64 `yaml:"frequency_hz"`
}

// SensorDecl declares one sensor of a group.
type SensorDecl struct {
	Name    string       `yaml:"name"`
	Type    string       `yaml:"type"`
	Streams []StreamDecl `yaml:"streams"`
}

// GroupConfig configures a sensor group.
type GroupConfig struct {
	// Name identifies the group in logs
	Name string
	// Mode is hardware acquisition or replay of a recording
	Mode Mode
	// Path is the recording file location
	Path string
	// RingCapacity is the per-channel store depth. Default: DefaultRingCapacity
	RingCapacity int
	// CaptureInterval is the chunking period. Default: DefaultCaptureInterval
	CaptureInterval time.Duration
	// BufferAhead, PollInterval and JoinTimeout tune replay
	BufferAhead  time.Duration
	PollInterval time.Duration
	JoinTimeout  time.Duration
	// Encryption optionally encrypts chunk blobs at rest
	Encryption *EncryptionConfig
	// Streaming configures the live channel hub
	Streaming StreamHubConfig
	// Sensors declares the group's sensors
	Sensors []SensorDecl
}

// DefaultGroupConfig returns a hardware-mode config with standard tuning.
func DefaultGroupConfig(name, path string) GroupConfig {
	return GroupConfig{
		Name:            name,
		Mode:            ModeHardware,
		Path:            path,
		RingCapacity:    DefaultRingCapacity,
		CaptureInterval: DefaultCaptureInterval,
		BufferAhead:     4 * time.Second,
		PollInterval:    100 * time.Millisecond,
		JoinTimeout:     2 * time.Second,
	}
}

func (c *GroupConfig) normalize() {
	if c.Mode == "" {
		c.Mode = ModeHardware
	}
	if c.RingCapacity < 1 {
		c.RingCapacity = DefaultRingCapacity
	}
	if c.CaptureInterval <= 0 {
		c.CaptureInterval = DefaultCaptureInterval
	}
	if c.BufferAhead <= 0 {
		c.BufferAhead = 4 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 2 * time.Second
	}
}

func (c *GroupConfig) fileConfig() ChunkFileConfig {
	fc := DefaultChunkFileConfig()
	fc.Encryption = c.Encryption
	return fc
}

func (c *GroupConfig) replayerConfig() ReplayerConfig {
	return ReplayerConfig{
		BufferAhead:  c.BufferAhead,
		PollInterval: c.PollInterval,
		JoinTimeout:  c.JoinTimeout,
	}
}

// Record derives the config record persisted inside the recording file.
func (c *GroupConfig) Record() ConfigRecord {
	cr := ConfigRecord{}
	for _, s := range c.Sensors {
		sr := SensorRecord{SensorName: s.Name, SensorType: s.Type}
		for _, st := range s.Streams {
			sr.Streams = append(sr.Streams, st.Name)
		}
		cr.Sensors = append(cr.Sensors, sr)
	}
	return cr
}

// ConfigRecord is the JSON document stored in a recording file's meta table.
// Replay and bulk decode use it to rebuild codecs without the original
// YAML config.
type ConfigRecord struct {
	Sensors []SensorRecord `json:"sensors"`
}

// SensorRecord names one sensor and its streams in a config record.
type SensorRecord struct {
	SensorName string   `json:"sensor_name"`
	SensorType string   `json:"sensor_type"`
	Streams    []string `json:"streams,omitempty"`
}

// EncodeConfigRecord renders a config record as JSON.
func EncodeConfigRecord(cr ConfigRecord) (string, error) {
	b, err := json.Marshal(cr)
	if err != nil {
		return "", fmt.Errorf("encode config record: %w", err)
	}
	return string(b), nil
}

// DecodeConfigRecord parses a stored config record.
func DecodeConfigRecord(s string) (ConfigRecord, error) {
	var cr ConfigRecord
	if err := json.Unmarshal([]byte(s), &cr); err != nil {
		return ConfigRecord{}, fmt.Errorf("decode config record: %w", err)
	}
	return cr, nil
}

// groupConfigYAML is the on-disk shape of a group config. Durations are
// strings in time.ParseDuration syntax.
type groupConfigYAML struct {
	Name            string       `yaml:"name"`
	Mode            string       `yaml:"mode"`
	Path            string       `yaml:"path"`
	RingCapacity    int          `yaml:"ring_capacity"`
	CaptureInterval string       `yaml:"capture_interval"`
	BufferAhead     string       `yaml:"buffer_ahead"`
	PollInterval    string       `yaml:"poll_interval"`
	JoinTimeout     string       `yaml:"join_timeout"`
	Sensors         []SensorDecl `yaml:"sensors"`
}

// LoadGroupConfig reads a group config from a YAML file.
func LoadGroupConfig(path string) (GroupConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return GroupConfig{}, fmt.Errorf("read config: %w", err)
	}
	var y groupConfigYAML
	if err := yaml.Unmarshal(raw, &y); err != nil {
		return GroupConfig{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := DefaultGroupConfig(y.Name, y.Path)
	switch Mode(y.Mode) {
	case "", ModeHardware:
		cfg.Mode = ModeHardware
	case ModeReplay:
		cfg.Mode = ModeReplay
	default:
		return GroupConfig{}, fmt.Errorf("unknown mode %q", y.Mode)
	}
	if y.RingCapacity > 0 {
		cfg.RingCapacity = y.RingCapacity
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{y.CaptureInterval, &cfg.CaptureInterval},
		{y.BufferAhead, &cfg.BufferAhead},
		{y.PollInterval, &cfg.PollInterval},
		{y.JoinTimeout, &cfg.JoinTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return GroupConfig{}, fmt.Errorf("parse duration %q: %w", d.raw, err)
		}
		*d.dst = v
	}
	cfg.Sensors = y.Sensors
	return cfg, nil
}
