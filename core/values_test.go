package core

import (
	"testing"
	"time"
)

func TestEncodings(t *testing.T) {
	tests := []struct {
		name string
		got  uint8
		want uint8
	}{
		{"Input", uint8(Input), 0},
		{"Output", uint8(Output), 1},
		{"InputPullUp", uint8(InputPullUp), 2},
		{"Low", uint8(Low), 0},
		{"High", uint8(High), 1},
		{"TriggerLow", uint8(TriggerLow), 0},
		{"TriggerHigh", uint8(TriggerHigh), 1},
		{"TriggerChange", uint8(TriggerChange), 2},
		{"TriggerFalling", uint8(TriggerFalling), 3},
		{"TriggerRising", uint8(TriggerRising), 4},
		{"ReferenceExternal", uint8(ReferenceExternal), 0},
		{"ReferenceDefault", uint8(ReferenceDefault), 1},
		{"LSBFirst", uint8(LSBFirst), 0},
		{"MSBFirst", uint8(MSBFirst), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, m := range []Mode{Input, Output, InputPullUp} {
		if got, ok := ParseMode(m.String()); !ok || got != m {
			t.Errorf("ParseMode(%q) = %v, %v", m.String(), got, ok)
		}
	}
	for tr := TriggerLow; tr <= TriggerRising; tr++ {
		if got, ok := ParseTrigger(tr.String()); !ok || got != tr {
			t.Errorf("ParseTrigger(%q) = %v, %v", tr.String(), got, ok)
		}
	}
	for _, r := range []AnalogReference{ReferenceExternal, ReferenceDefault} {
		if got, ok := ParseReference(r.String()); !ok || got != r {
			t.Errorf("ParseReference(%q) = %v, %v", r.String(), got, ok)
		}
	}
	for _, o := range []BitOrder{LSBFirst, MSBFirst} {
		if got, ok := ParseBitOrder(o.String()); !ok || got != o {
			t.Errorf("ParseBitOrder(%q) = %v, %v", o.String(), got, ok)
		}
	}
	if _, ok := ParseMode("analog"); ok {
		t.Error("ParseMode accepted an unknown name")
	}
	if v, ok := ParseDigitalValue("1"); !ok || v != High {
		t.Error("ParseDigitalValue(\"1\") != high")
	}
}

func TestUnknownStrings(t *testing.T) {
	if s := Mode(7).String(); s != "mode(7)" {
		t.Errorf("Mode(7).String() = %q", s)
	}
	if s := Trigger(9).String(); s != "trigger(9)" {
		t.Errorf("Trigger(9).String() = %q", s)
	}
}

func TestDigitalValueHelpers(t *testing.T) {
	if High.Invert() != Low || Low.Invert() != High {
		t.Error("Invert")
	}
	if !High.Bool() || Low.Bool() {
		t.Error("Bool")
	}
	if DigitalValueFromBool(true) != High || DigitalValueFromBool(false) != Low {
		t.Error("DigitalValueFromBool")
	}
}

func TestPulseIn(t *testing.T) {
	b, m := newTestBoard()
	d := b.Pin(7).Digital()

	m.pulse = 1500
	p, err := d.PulseIn(High, 20000)
	if err != nil {
		t.Fatal(err)
	}
	if p.TimedOut || p.Width != 1500 || p.Duration() != 1500*time.Microsecond {
		t.Errorf("pulse = %+v", p)
	}
	if got := m.last(); got.value != 1<<32|20000 {
		t.Errorf("forwarded %+v", got)
	}
}

func TestPulseInTimeout(t *testing.T) {
	b, m := newTestBoard()
	d := b.Pin(7).Digital()

	m.pulse = 0
	p, err := d.PulseIn(Low, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !p.TimedOut || p.Width != 0 {
		t.Errorf("pulse = %+v, want timeout", p)
	}
	// Zero selects the default timeout
	if got := m.last(); got.value != DefaultPulseTimeout {
		t.Errorf("forwarded timeout %d, want %d", got.value, DefaultPulseTimeout)
	}
}

func TestElapsedWraps(t *testing.T) {
	tests := []struct {
		since, now, want uint32
	}{
		{100, 250, 150},
		{0xFFFFFF00, 0x10, 0x110},
		{5, 5, 0},
	}
	for _, tt := range tests {
		if got := Elapsed(tt.since, tt.now); got != tt.want {
			t.Errorf("Elapsed(%#x, %#x) = %#x, want %#x", tt.since, tt.now, got, tt.want)
		}
	}
	if MillisToMicros(3) != 3000 || MicrosToMillis(3999) != 3 {
		t.Error("conversions")
	}
}

func TestBoardSince(t *testing.T) {
	b, _ := newTestBoard()
	start := b.Millis()
	b.Delay(15)
	if got := b.Since(start); got != 15 {
		t.Errorf("Since = %d, want 15", got)
	}
	us := b.Micros()
	b.DelayMicros(40)
	if got := b.SinceMicros(us); got != 40 {
		t.Errorf("SinceMicros = %d, want 40", got)
	}
}

func TestItoa(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{7, "7"},
		{-42, "-42"},
		{255, "255"},
		{1000000, "1000000"},
	}
	for _, tt := range tests {
		if got := Itoa(tt.n); got != tt.want {
			t.Errorf("Itoa(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
	if got := Utoa(4294967295); got != "4294967295" {
		t.Errorf("Utoa(max) = %q", got)
	}
}
