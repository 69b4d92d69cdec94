package core

// Counter conversions. The native counters are 32-bit and wrap; Micros wraps
// after about 71.6 minutes and Millis after about 49.7 days.

// MillisToMicros converts milliseconds to microseconds
func MillisToMicros(ms uint32) uint32 {
	return ms * 1000
}

// MicrosToMillis converts microseconds to milliseconds
func MicrosToMillis(us uint32) uint32 {
	return us / 1000
}

// Elapsed returns now-since on a wrapping 32-bit counter. Correct as long as
// less than one full wrap passed between the two samples.
func Elapsed(since, now uint32) uint32 {
	return now - since
}

// Since returns milliseconds elapsed on the board since start (a Millis sample)
func (b *Board) Since(start uint32) uint32 {
	return Elapsed(start, b.Millis())
}

// SinceMicros returns microseconds elapsed on the board since start (a Micros sample)
func (b *Board) SinceMicros(start uint32) uint32 {
	return Elapsed(start, b.Micros())
}
