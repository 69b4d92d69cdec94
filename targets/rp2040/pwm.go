//go:build rp2040

package main

import (
	"machine"
)

// pwmPeriod is the PWM period for AnalogWrite, 1 kHz
const pwmPeriod = 1e9 / 1000

// pwmPeripheral abstracts TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// pwmSlice returns the slice driving pin. GPIO N maps to slice (N>>1)&7,
// channel N&1.
func pwmSlice(pin uint8) pwmPeripheral {
	switch (pin >> 1) & 0x7 {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}

// pwmWrite sets the duty of pin to value out of 2^bits-1
func (b *Backend) pwmWrite(pin uint8, value int32, bits int32) error {
	slice := pwmSlice(pin)
	ch, ok := b.pwmChannels[pin]
	if !ok {
		if err := slice.Configure(machine.PWMConfig{Period: pwmPeriod}); err != nil {
			return err
		}
		var err error
		ch, err = slice.Channel(machine.Pin(pin))
		if err != nil {
			return err
		}
		b.pwmChannels[pin] = ch
	}

	max := int64(1)<<bits - 1
	v := int64(value)
	if v < 0 {
		v = 0
	}
	if v > max {
		v = max
	}
	slice.Set(ch, uint32(v*int64(slice.Top())/max))
	return nil
}
