package config

import "gopins/host/serial"

// Backend kinds
const (
	BackendSim    = "sim"
	BackendLinux  = "linux"
	BackendRemote = "remote"
)

// BoardConfig describes which backend a program drives and how it is set up
type BoardConfig struct {
	Backend string `json:"backend"` // sim, linux or remote

	// Serial link of a remote board, and of pinctl serve
	Serial serial.Config `json:"serial"`

	// TimeoutMS bounds each remote command beyond its own blocking time
	TimeoutMS int `json:"timeout_ms"`

	// Pins maps aliases to pin numbers ("led": 13)
	Pins map[string]uint8 `json:"pins"`

	Analog AnalogConfig `json:"analog"`

	ModeTracking bool   `json:"mode_tracking"`
	Debug        bool   `json:"debug"`
	LogLevel     string `json:"log_level"` // debug, info, warn, error

	Sim   SimConfig   `json:"sim"`
	Linux LinuxConfig `json:"linux"`
}

// AnalogConfig is applied to the board after Init
type AnalogConfig struct {
	Reference       string `json:"reference"` // default, external
	ReadResolution  int32  `json:"read_resolution"`
	WriteResolution int32  `json:"write_resolution"`
}

// SimConfig wires the simulated board
type SimConfig struct {
	// Loopback lists pin pairs connected to each other
	Loopback [][2]uint8 `json:"loopback"`

	// AnalogInputs sets analog samples (16-bit full scale) by pin number
	AnalogInputs map[string]uint16 `json:"analog_inputs"`

	// Realtime ties the virtual clock to wall time
	Realtime bool `json:"realtime"`
}

// LinuxConfig maps pin numbers to host GPIO names
type LinuxConfig struct {
	// PinNames maps a decimal pin number to a periph pin name ("17": "GPIO17").
	// Unlisted pins resolve to "GPIO<n>".
	PinNames map[string]string `json:"pin_names"`
}
