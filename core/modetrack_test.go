package core

import (
	"strings"
	"testing"
)

func TestModeTrackingReportsMismatch(t *testing.T) {
	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	SetDebugEnabled(true)
	defer func() {
		SetDebugEnabled(false)
		SetDebugWriter(nil)
	}()

	b, m := newTestBoard(WithModeTracking())
	p := b.Pin(5)
	p.Mode(Input)

	// Mismatched use is still forwarded
	if err := p.Digital().High(); err != nil {
		t.Fatalf("High: %v", err)
	}
	if got := m.last(); got.op != "digital_write" {
		t.Errorf("write not forwarded: %+v", got)
	}
	if b.ModeMismatches() != 1 {
		t.Errorf("ModeMismatches = %d, want 1", b.ModeMismatches())
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "digital write on pin5 configured as input") {
		t.Errorf("debug output = %q", lines)
	}
}

func TestModeTrackingCapabilities(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		use  func(p Pin)
		bad  bool
	}{
		{"write on output", Output, func(p Pin) { p.Digital().High() }, false},
		{"analog write on output", Output, func(p Pin) { p.Analog().Write(3) }, false},
		{"tone on output", Output, func(p Pin) { p.Tone().Tone(440, 0) }, false},
		{"analog read on input", Input, func(p Pin) { p.Analog().Read() }, false},
		{"read on output", Output, func(p Pin) { p.Digital().Read() }, false},
		{"analog write on pullup", InputPullUp, func(p Pin) { p.Analog().Write(3) }, true},
		{"tone on input", Input, func(p Pin) { p.Tone().Tone(440, 0) }, true},
		{"analog read on output", Output, func(p Pin) { p.Analog().Read() }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBoard(WithModeTracking())
			p := b.Pin(1)
			p.Mode(tt.mode)
			tt.use(p)
			if got := b.ModeMismatches() == 1; got != tt.bad {
				t.Errorf("mismatch = %v, want %v", got, tt.bad)
			}
		})
	}
}

func TestModeTrackingIgnoresUnsetPins(t *testing.T) {
	b, _ := newTestBoard(WithModeTracking())
	b.Pin(9).Digital().High()
	if b.ModeMismatches() != 0 {
		t.Error("pin with no recorded mode reported")
	}
	if _, ok := b.TrackedMode(9); ok {
		t.Error("TrackedMode reports a mode for an unset pin")
	}
}

func TestTrackedMode(t *testing.T) {
	b, _ := newTestBoard(WithModeTracking())
	b.Pin(3).Mode(InputPullUp)
	if m, ok := b.TrackedMode(3); !ok || m != InputPullUp {
		t.Errorf("TrackedMode = %v, %v", m, ok)
	}

	untracked, _ := newTestBoard()
	untracked.Pin(3).Mode(Output)
	if _, ok := untracked.TrackedMode(3); ok {
		t.Error("board without tracking reports modes")
	}
}
