//go:build rp2040

// Command rp2040 is the pin server firmware for RP2040 boards. It exposes
// every pin of the chip over USB CDC to host/remote.
package main

import (
	"context"
	"machine"
	"strconv"
	"time"

	"gopins/core"
	"gopins/firmware"
)

const firmwareVersion = "gopins-rp2040"

func main() {
	// clear any watchdog left running across a reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	link, err := newUSBLink()
	if err != nil {
		return
	}

	board, err := core.NewBoard(NewBackend())
	if err != nil {
		return
	}
	if err := board.Init(); err != nil {
		return
	}
	core.SetBoard(board)

	srv := firmware.NewServer(board, link,
		firmware.WithIdleSleep(100*time.Microsecond),
		firmware.WithConstant("MCU", "rp2040"),
		firmware.WithConstant("CLOCK_FREQ", uint32(machine.CPUFrequency())),
		firmware.WithPinNames(pinNames()),
		firmware.WithVersion(firmwareVersion, "tinygo"),
	)

	for {
		// Serve only returns on a link error; start over with a clean board
		if err := srv.Serve(context.Background()); err != nil {
			core.DebugPrintln("[MAIN] serve: " + err.Error())
		}
		board.Close()
		time.Sleep(100 * time.Millisecond)
	}
}

// pinNames lists gpio0-gpio29 then the temperature sensor channel
func pinNames() []string {
	names := make([]string, tempPin+1)
	for i := 0; i < numPins; i++ {
		names[i] = "gpio" + strconv.Itoa(i)
	}
	names[tempPin] = "ADC_TEMPERATURE"
	return names
}
