//go:build rp2040

package pio

// PIO square-wave generator for Tone.
//
// The program toggles one SET pin, holding each level for 32 cycles, so a
// full period is 64 state machine cycles. Frequency is set with the clock
// divider alone; no FIFO traffic is needed while the tone plays.

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

const toneOrigin = 0

// one program copy per PIO block, shared by its state machines
var (
	programOffset [2]uint8
	programLoaded [2]bool
)

func buildToneProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Set(rp2pio.SetDestPins, 1).Delay(31).Encode(), // 0: set pins, 1 [31]
		asm.Set(rp2pio.SetDestPins, 0).Delay(31).Encode(), // 1: set pins, 0 [31]
		// .wrap
	}
}

// PIOTone drives one pin from a PIO state machine
type PIOTone struct {
	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	pin    machine.Pin
	pioNum uint8
	smNum  uint8
}

// NewPIOTone wraps a claimed state machine
func NewPIOTone(pioNum, smNum uint8) *PIOTone {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}
	return &PIOTone{
		pio:    pioHW,
		sm:     pioHW.StateMachine(smNum),
		pioNum: pioNum,
		smNum:  smNum,
	}
}

// Start plays frequency on pin until Stop
func (t *PIOTone) Start(pin machine.Pin, frequency uint32) error {
	t.sm.TryClaim()
	if !programLoaded[t.pioNum] {
		offset, err := t.pio.AddProgram(buildToneProgram(), toneOrigin)
		if err != nil {
			return err
		}
		programOffset[t.pioNum] = offset
		programLoaded[t.pioNum] = true
	}
	offset := programOffset[t.pioNum]

	t.pin = pin
	pin.Configure(machine.PinConfig{Mode: t.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(pin, 1)
	cfg.SetWrap(offset+1, offset)
	whole, frac := ClockDivider(machine.CPUFrequency(), frequency)
	cfg.SetClkDivIntFrac(whole, frac)

	t.sm.Init(offset, cfg)
	t.sm.SetPindirsConsecutive(pin, 1, true)
	t.sm.SetPinsConsecutive(pin, 1, false)
	t.sm.SetEnabled(true)
	return nil
}

// Stop halts the state machine and returns the pin to a low GPIO output
func (t *PIOTone) Stop() {
	t.sm.SetEnabled(false)
	t.sm.Restart()
	t.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	t.pin.Low()
}

func (t *PIOTone) Name() string {
	return "PIO" + string(rune('0'+t.pioNum)) + ".SM" + string(rune('0'+t.smNum))
}
