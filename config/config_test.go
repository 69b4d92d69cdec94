package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gopins/core"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendSim {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.Serial.Baud != 250000 || cfg.Serial.ReadTimeout != 100 {
		t.Errorf("Serial = %+v", cfg.Serial)
	}
	if cfg.Analog.ReadResolution != 10 || cfg.Analog.WriteResolution != 8 {
		t.Errorf("Analog = %+v", cfg.Analog)
	}
	if cfg.Reference() != core.ReferenceDefault {
		t.Errorf("Reference = %v", cfg.Reference())
	}
	if cfg.LogLevel != "info" || cfg.TimeoutMS != 2000 {
		t.Errorf("LogLevel %q, TimeoutMS %d", cfg.LogLevel, cfg.TimeoutMS)
	}
}

func TestLoadConfigFields(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{
		"backend": "remote",
		"serial": {"device": "tcp:localhost:7000"},
		"pins": {"led": 25},
		"analog": {"reference": "external", "read_resolution": 12},
		"mode_tracking": true,
		"sim": {"loopback": [[1, 2]], "analog_inputs": {"26": 65535}},
		"linux": {"pin_names": {"17": "GPIO17"}}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendRemote || !cfg.Serial.IsNetwork() || !cfg.ModeTracking {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Reference() != core.ReferenceExternal || cfg.Analog.ReadResolution != 12 {
		t.Errorf("Analog = %+v", cfg.Analog)
	}
	inputs, _ := cfg.SimAnalogInputs()
	if inputs[26] != 65535 {
		t.Errorf("analog inputs = %v", inputs)
	}
	names, _ := cfg.LinuxPinNames()
	if names[17] != "GPIO17" {
		t.Errorf("pin names = %v", names)
	}
}

func TestPinResolve(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name string
		want uint8
		ok   bool
	}{
		{"led", 13, true},
		{"button", 2, true},
		{"7", 7, true},
		{"255", 255, true},
		{"256", 0, false},
		{"nope", 0, false},
	}
	for _, tt := range tests {
		got, ok := cfg.Pin(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Pin(%q) = %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"backend", `{"backend":"gpio"}`},
		{"reference", `{"analog":{"reference":"internal"}}`},
		{"resolution", `{"analog":{"read_resolution":40}}`},
		{"log level", `{"log_level":"trace"}`},
		{"loopback", `{"sim":{"loopback":[[5,5]]}}`},
		{"analog key", `{"sim":{"analog_inputs":{"A0":1}}}`},
		{"linux key", `{"linux":{"pin_names":{"x":"GPIO1"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig([]byte(tt.json))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if _, err := LoadConfig([]byte(`{`)); err == nil {
		t.Error("expected JSON error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.json")
	if err := os.WriteFile(path, []byte(`{"backend":"linux"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil || cfg.Backend != BackendLinux {
		t.Errorf("LoadFile = %+v, %v", cfg, err)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected read error")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
}
