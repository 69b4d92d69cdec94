// Package serial opens the byte link to a pin device: a USB CDC or UART
// serial port, or a TCP socket served by a simulated device.
package serial

import (
	"io"
	"strings"
)

// Port is an open link to a device
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds link configuration
type Config struct {
	// Device path (e.g. "/dev/ttyACM0", "COM3") or "tcp:host:port"
	Device string `json:"device"`

	// Baud rate. USB CDC links ignore it.
	Baud int `json:"baud"`

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int `json:"read_timeout_ms"`
}

// DefaultConfig returns the configuration used by the pin firmware
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100,
	}
}

const tcpPrefix = "tcp:"

// IsNetwork reports whether the device names a TCP endpoint
func (c *Config) IsNetwork() bool {
	return strings.HasPrefix(c.Device, tcpPrefix)
}

// Address returns the TCP address of a network device
func (c *Config) Address() string {
	return strings.TrimPrefix(c.Device, tcpPrefix)
}
