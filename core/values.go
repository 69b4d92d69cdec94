package core

// Mode is the electrical configuration of a pin.
// Values are bit-exact with the backend encoding.
type Mode uint8

const (
	Input       Mode = 0x00
	Output      Mode = 0x01
	InputPullUp Mode = 0x02
)

// Valid reports whether m is one of the defined modes
func (m Mode) Valid() bool {
	return m <= InputPullUp
}

func (m Mode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	case InputPullUp:
		return "input_pullup"
	default:
		return "mode(" + Itoa(int(m)) + ")"
	}
}

// DigitalValue is the two-valued signal of a digital pin
type DigitalValue uint8

const (
	Low  DigitalValue = 0x00
	High DigitalValue = 0x01
)

// DigitalValueFromRaw converts a raw backend reading into a DigitalValue.
// Any non-zero reading is High.
func DigitalValueFromRaw(raw int32) DigitalValue {
	if raw != 0 {
		return High
	}
	return Low
}

// Bool returns true for High
func (v DigitalValue) Bool() bool {
	return v != Low
}

// DigitalValueFromBool maps true to High and false to Low
func DigitalValueFromBool(b bool) DigitalValue {
	if b {
		return High
	}
	return Low
}

// Invert returns the opposite level
func (v DigitalValue) Invert() DigitalValue {
	if v == Low {
		return High
	}
	return Low
}

func (v DigitalValue) String() string {
	if v == Low {
		return "low"
	}
	return "high"
}

// Trigger selects which signal transition invokes an interrupt callback.
// Values match the native runtime constants LOW, HIGH, CHANGE, FALLING, RISING.
type Trigger uint8

const (
	TriggerLow     Trigger = 0x00
	TriggerHigh    Trigger = 0x01
	TriggerChange  Trigger = 0x02
	TriggerFalling Trigger = 0x03
	TriggerRising  Trigger = 0x04
)

// Valid reports whether t is one of the defined trigger modes
func (t Trigger) Valid() bool {
	return t <= TriggerRising
}

// Matches reports whether a transition from prev to next satisfies the trigger.
// Level triggers fire on entry into the level.
func (t Trigger) Matches(prev, next DigitalValue) bool {
	if prev == next {
		return false
	}
	switch t {
	case TriggerLow:
		return next == Low
	case TriggerHigh:
		return next == High
	case TriggerChange:
		return true
	case TriggerFalling:
		return prev == High && next == Low
	case TriggerRising:
		return prev == Low && next == High
	}
	return false
}

func (t Trigger) String() string {
	switch t {
	case TriggerLow:
		return "low"
	case TriggerHigh:
		return "high"
	case TriggerChange:
		return "change"
	case TriggerFalling:
		return "falling"
	case TriggerRising:
		return "rising"
	default:
		return "trigger(" + Itoa(int(t)) + ")"
	}
}

// AnalogReference selects the voltage reference used for analog reads
type AnalogReference uint8

const (
	ReferenceExternal AnalogReference = 0x00
	ReferenceDefault  AnalogReference = 0x01
)

func (r AnalogReference) String() string {
	switch r {
	case ReferenceExternal:
		return "external"
	case ReferenceDefault:
		return "default"
	default:
		return "reference(" + Itoa(int(r)) + ")"
	}
}

// BitOrder selects the bit order of shift operations
type BitOrder uint8

const (
	LSBFirst BitOrder = 0x00
	MSBFirst BitOrder = 0x01
)

func (o BitOrder) String() string {
	if o == LSBFirst {
		return "lsb_first"
	}
	return "msb_first"
}

// ParseMode parses the names produced by Mode.String
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "input", "in":
		return Input, true
	case "output", "out":
		return Output, true
	case "input_pullup", "pullup":
		return InputPullUp, true
	}
	return 0, false
}

// ParseDigitalValue accepts "high"/"low" and "1"/"0"
func ParseDigitalValue(s string) (DigitalValue, bool) {
	switch s {
	case "high", "1":
		return High, true
	case "low", "0":
		return Low, true
	}
	return Low, false
}

// ParseTrigger parses the names produced by Trigger.String
func ParseTrigger(s string) (Trigger, bool) {
	switch s {
	case "low":
		return TriggerLow, true
	case "high":
		return TriggerHigh, true
	case "change":
		return TriggerChange, true
	case "falling":
		return TriggerFalling, true
	case "rising":
		return TriggerRising, true
	}
	return 0, false
}

// ParseReference parses the names produced by AnalogReference.String
func ParseReference(s string) (AnalogReference, bool) {
	switch s {
	case "external":
		return ReferenceExternal, true
	case "default":
		return ReferenceDefault, true
	}
	return 0, false
}

// ParseBitOrder accepts "msb"/"lsb" and the BitOrder.String names
func ParseBitOrder(s string) (BitOrder, bool) {
	switch s {
	case "msb", "msb_first":
		return MSBFirst, true
	case "lsb", "lsb_first":
		return LSBFirst, true
	}
	return 0, false
}
