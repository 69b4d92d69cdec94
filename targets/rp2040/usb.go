//go:build rp2040

package main

import (
	"errors"
	"machine"
)

var errUSBDisconnected = errors.New("usb: write stalled")

// maxWriteFailures is how many failed writes in a row mark the host gone
const maxWriteFailures = 10

// usbLink adapts the USB CDC serial port to io.ReadWriter. Read never
// blocks; it returns 0 bytes when nothing is buffered.
type usbLink struct {
	consecutiveWriteFailures uint32
	disconnected             bool
}

func newUSBLink() (*usbLink, error) {
	if err := machine.Serial.Configure(machine.UARTConfig{}); err != nil {
		return nil, err
	}
	return &usbLink{}, nil
}

func (u *usbLink) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		c, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		p[n] = c
		n++
	}
	if n > 0 {
		u.disconnected = false
	}
	return n, nil
}

// Write sends all of p. Data is dropped while the host is considered gone,
// so a stale response never reaches a reconnecting host.
func (u *usbLink) Write(p []byte) (int, error) {
	if u.disconnected {
		return 0, errUSBDisconnected
	}
	written := 0
	for written < len(p) {
		n, err := machine.Serial.Write(p[written:])
		if err != nil || n == 0 {
			u.consecutiveWriteFailures++
			if u.consecutiveWriteFailures > maxWriteFailures {
				u.disconnected = true
				u.consecutiveWriteFailures = 0
			}
			return written, errUSBDisconnected
		}
		written += n
	}
	u.consecutiveWriteFailures = 0
	return written, nil
}
