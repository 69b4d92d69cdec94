// Package config loads board configuration from JSON
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopins/core"
	"gopins/host/serial"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid board config")

// LoadConfig parses a JSON configuration and returns a BoardConfig with
// defaults applied
func LoadConfig(jsonData []byte) (*BoardConfig, error) {
	var config BoardConfig

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFile reads and parses a configuration file
func LoadFile(path string) (*BoardConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := LoadConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(config *BoardConfig) {
	if config.Backend == "" {
		config.Backend = BackendSim
	}

	def := serial.DefaultConfig("/dev/ttyACM0")
	if config.Serial.Device == "" {
		config.Serial.Device = def.Device
	}
	if config.Serial.Baud == 0 {
		config.Serial.Baud = def.Baud
	}
	if config.Serial.ReadTimeout == 0 {
		config.Serial.ReadTimeout = def.ReadTimeout
	}
	if config.TimeoutMS == 0 {
		config.TimeoutMS = 2000
	}

	if config.Analog.Reference == "" {
		config.Analog.Reference = "default"
	}
	if config.Analog.ReadResolution == 0 {
		config.Analog.ReadResolution = core.DefaultReadResolution
	}
	if config.Analog.WriteResolution == 0 {
		config.Analog.WriteResolution = core.DefaultWriteResolution
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Pins == nil {
		config.Pins = make(map[string]uint8)
	}
}

// Validate checks values that defaults cannot repair
func (c *BoardConfig) Validate() error {
	switch c.Backend {
	case BackendSim, BackendLinux, BackendRemote:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if _, ok := core.ParseReference(c.Analog.Reference); !ok {
		return fmt.Errorf("%w: unknown analog reference %q", ErrInvalidConfig, c.Analog.Reference)
	}
	for _, bits := range []int32{c.Analog.ReadResolution, c.Analog.WriteResolution} {
		if bits < 1 || bits > 32 {
			return fmt.Errorf("%w: resolution %d out of range", ErrInvalidConfig, bits)
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}
	for _, pair := range c.Sim.Loopback {
		if pair[0] == pair[1] {
			return fmt.Errorf("%w: pin %d looped back to itself", ErrInvalidConfig, pair[0])
		}
	}
	if _, err := c.SimAnalogInputs(); err != nil {
		return err
	}
	if _, err := c.LinuxPinNames(); err != nil {
		return err
	}
	return nil
}

// Reference returns the configured analog reference
func (c *BoardConfig) Reference() core.AnalogReference {
	ref, _ := core.ParseReference(c.Analog.Reference)
	return ref
}

// Pin resolves an alias or a decimal pin number
func (c *BoardConfig) Pin(name string) (uint8, bool) {
	if n, ok := c.Pins[name]; ok {
		return n, true
	}
	n, err := strconv.ParseUint(name, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}

// SimAnalogInputs returns the simulated analog samples keyed by pin
func (c *BoardConfig) SimAnalogInputs() (map[uint8]uint16, error) {
	return parsePinKeys(c.Sim.AnalogInputs)
}

// LinuxPinNames returns the host GPIO name overrides keyed by pin
func (c *BoardConfig) LinuxPinNames() (map[uint8]string, error) {
	return parsePinKeys(c.Linux.PinNames)
}

func parsePinKeys[V any](m map[string]V) (map[uint8]V, error) {
	out := make(map[uint8]V, len(m))
	for k, v := range m {
		n, err := strconv.ParseUint(k, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: pin key %q", ErrInvalidConfig, k)
		}
		out[uint8(n)] = v
	}
	return out, nil
}

// DefaultConfig returns a simulated board with an LED alias and one
// loopback pair
func DefaultConfig() *BoardConfig {
	config := &BoardConfig{
		Backend: BackendSim,
		Pins: map[string]uint8{
			"led":    13,
			"button": 2,
		},
		Sim: SimConfig{
			Loopback: [][2]uint8{{3, 4}},
		},
	}
	applyDefaults(config)
	return config
}
