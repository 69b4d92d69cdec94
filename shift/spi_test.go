package shift

import (
	"errors"
	"sync/atomic"
	"testing"

	"gopins/core"
	"gopins/targets/sim"
)

const (
	pinSCK  = 2
	pinSDO  = 3
	pinSDI  = 4
	pinCS   = 5
	pinLAT  = 6
	pinDATA = 7
)

func setupBoard(t *testing.T) (*core.Board, *sim.Backend) {
	t.Helper()
	s := sim.New(sim.WithSyncInterrupts())
	b, err := core.NewBoard(s)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		b.Close()
		s.Close()
	})
	return b, s
}

func digital(b *core.Board, n uint8) core.DigitalPin {
	return b.Pin(n).Digital()
}

func TestTransferLoopback(t *testing.T) {
	for mode := uint8(0); mode < 4; mode++ {
		for _, order := range []core.BitOrder{core.MSBFirst, core.LSBFirst} {
			b, s := setupBoard(t)
			s.Connect(pinSDO, pinSDI)

			spi, err := NewSPI(digital(b, pinSCK), digital(b, pinSDO),
				Config{Mode: mode, Order: order}, WithInput(digital(b, pinSDI)))
			if err != nil {
				t.Fatal(err)
			}
			for _, v := range []byte{0x00, 0xA5, 0x3C, 0xFF} {
				got, err := spi.Transfer(v)
				if err != nil || got != v {
					t.Errorf("mode %d %v: Transfer(%#x) = %#x, %v", mode, order, v, got, err)
				}
			}
			if want := core.DigitalValueFromBool(mode&2 != 0); s.Level(pinSCK) != want {
				t.Errorf("mode %d: clock left at %v, want idle %v", mode, s.Level(pinSCK), want)
			}
		}
	}
}

func TestTransferClockEdges(t *testing.T) {
	b, _ := setupBoard(t)
	spi, err := NewSPI(digital(b, pinSCK), digital(b, pinSDO), Config{})
	if err != nil {
		t.Fatal(err)
	}
	var rising atomic.Int32
	b.Pin(pinSCK).AttachInterrupt(func() { rising.Add(1) }, core.TriggerRising)

	if err := spi.Tx([]byte{1, 2}, nil); err != nil {
		t.Fatal(err)
	}
	if rising.Load() != 16 {
		t.Errorf("rising edges = %d, want 16", rising.Load())
	}
}

func TestTxChipSelect(t *testing.T) {
	b, s := setupBoard(t)
	s.Connect(pinSDO, pinSDI)
	spi, err := NewSPI(digital(b, pinSCK), digital(b, pinSDO), Config{},
		WithInput(digital(b, pinSDI)), WithChipSelect(digital(b, pinCS)))
	if err != nil {
		t.Fatal(err)
	}
	if s.Level(pinCS) != core.High {
		t.Error("chip select not parked high")
	}

	var selects atomic.Int32
	b.Pin(pinCS).AttachInterrupt(func() { selects.Add(1) }, core.TriggerFalling)

	w := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	r := make([]byte, len(w))
	if err := spi.Tx(w, r); err != nil {
		t.Fatal(err)
	}
	if string(r) != string(w) {
		t.Errorf("read %x, want %x", r, w)
	}
	if selects.Load() != 1 || s.Level(pinCS) != core.High {
		t.Errorf("chip select asserted %d times, now %v", selects.Load(), s.Level(pinCS))
	}

	// nil w clocks out zeros
	r = make([]byte, 2)
	if err := spi.Tx(nil, r); err != nil || r[0] != 0 || r[1] != 0 {
		t.Errorf("Tx(nil) = %x, %v", r, err)
	}

	if err := spi.Tx([]byte{1}, make([]byte, 2)); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("mismatch err = %v", err)
	}
}

func TestTransferTiming(t *testing.T) {
	b, s := setupBoard(t)
	spi, err := NewSPI(digital(b, pinSCK), digital(b, pinSDO), Config{HalfPeriod: 5})
	if err != nil {
		t.Fatal(err)
	}
	start := s.Now()
	spi.Transfer(0x55)
	if got := s.Now() - start; got != 80 {
		t.Errorf("byte took %d us, want 80", got)
	}
}

func TestRegister(t *testing.T) {
	b, s := setupBoard(t)
	reg, err := NewRegister(digital(b, pinDATA), digital(b, pinSCK), digital(b, pinLAT), core.MSBFirst, 2)
	if err != nil {
		t.Fatal(err)
	}
	var latches atomic.Int32
	b.Pin(pinLAT).AttachInterrupt(func() { latches.Add(1) }, core.TriggerRising)

	if err := reg.Write(0x12, 0x34); err != nil {
		t.Fatal(err)
	}
	if got := s.ShiftedOut(pinDATA); len(got) != 2 || got[0] != 0x34 || got[1] != 0x12 {
		t.Errorf("shifted %x, want 3412", got)
	}
	if latches.Load() != 1 || s.Level(pinLAT) != core.Low {
		t.Errorf("latch pulses = %d", latches.Load())
	}

	if err := reg.SetOutput(8, true); err != nil {
		t.Fatal(err)
	}
	if st := reg.State(); st[0] != 0x12 || st[1] != 0x35 {
		t.Errorf("state = %x", st)
	}
	reg.SetOutput(40, true) // past the chain, ignored
	if latches.Load() != 2 {
		t.Errorf("latch pulses = %d, want 2", latches.Load())
	}
}
