//go:build rp2040

package main

import (
	"device/rp"
	"machine"
)

// Pin numbers with an ADC input. Pin 30 is the internal temperature sensor,
// published as ADC_TEMPERATURE.
const (
	firstADCPin = 26
	lastADCPin  = 29
	tempPin     = 30
)

func isADCPin(pin uint8) bool {
	return (pin >= firstADCPin && pin <= lastADCPin) || pin == tempPin
}

// sampleADC returns a 16-bit left-aligned sample, the scale machine.ADC uses
func (b *Backend) sampleADC(pin uint8) uint16 {
	if pin == tempPin {
		return rawInternalTemp() << 4
	}
	adc, ok := b.adcs[pin]
	if !ok {
		adc = &machine.ADC{Pin: machine.Pin(pin)}
		adc.Configure(machine.ADCConfig{})
		b.adcs[pin] = adc
	}
	return adc.Get()
}

// rawInternalTemp returns the 12-bit reading of the temperature sensor
func rawInternalTemp() uint16 {
	if rp.ADC.CS.Get()&rp.ADC_CS_EN == 0 {
		machine.InitADC()
	}
	rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)

	const tempChannel = 4
	rp.ADC.CS.ReplaceBits(
		uint32(tempChannel)<<rp.ADC_CS_AINSEL_Pos,
		rp.ADC_CS_AINSEL_Msk,
		0,
	)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)
	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}
	return uint16(rp.ADC.RESULT.Get())
}

// scaleSample converts a 16-bit sample to bits of resolution
func scaleSample(sample uint16, bits int32) int32 {
	switch {
	case bits <= 0:
		return 0
	case bits >= 16:
		return int32(sample) << (bits - 16)
	default:
		return int32(sample >> (16 - bits))
	}
}
