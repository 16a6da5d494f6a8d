package tracklog

import "fmt"

// SensorType describes one kind of sensor: a name referenced from
// configuration and a codec constructor invoked with the sensor's declared
// stream names.
type SensorType struct {
	Name     string
	NewCodec func(streams []string) (*Codec, error)
}

// SensorTypeRegistry maps type names to sensor types. Registration is
// explicit; nothing registers itself at import time.
type SensorTypeRegistry struct {
	types map[string]SensorType
}

// NewSensorTypeRegistry returns an empty registry.
func NewSensorTypeRegistry() *SensorTypeRegistry {
	return &SensorTypeRegistry{types: make(map[string]SensorType)}
}

// Register adds a sensor type. Duplicate names are rejected.
func (r *SensorTypeRegistry) Register(t SensorType) error {
	if t.Name == "" {
		return fmt.Errorf("sensor type with empty name")
	}
	if t.NewCodec == nil {
		return fmt.Errorf("sensor type %q has no codec constructor", t.Name)
	}
	if _, ok := r.types[t.Name]; ok {
		return fmt.Errorf("sensor type %q already registered", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// Lookup returns the sensor type for a name.
func (r *SensorTypeRegistry) Lookup(name string) (SensorType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Types returns the registered type names, sorted.
func (r *SensorTypeRegistry) Types() []string {
	return sortedMapKeys(r.types)
}

// codecOf builds a codec constructor that registers the same stream codec
// for every declared stream.
func codecOf(sc func() StreamCodec) func(streams []string) (*Codec, error) {
	return func(streams []string) (*Codec, error) {
		c := NewCodec()
		for _, s := range streams {
			if err := c.Register(s, sc()); err != nil {
				return nil, err
			}
		}
		return c, nil
	}
}

// RegisterBuiltinSensorTypes installs the built-in sensor types: "json" for
// arbitrary readings and "float64" for raw vector streams.
func RegisterBuiltinSensorTypes(r *SensorTypeRegistry) error {
	builtins := []SensorType{
		{Name: "json", NewCodec: codecOf(JSONStreamCodec)},
		{Name: "float64", NewCodec: codecOf(Float64SliceStreamCodec)},
	}
	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
