// Package shift drives serial peripherals by bit-banging DigitalPins.
// SPI satisfies tinygo.org/x/drivers.SPI, so TinyGo device drivers can run
// on any core.Board, including simulated and remote ones.
package shift

import (
	"errors"

	"tinygo.org/x/drivers"

	"gopins/core"
)

// ErrLengthMismatch is returned by Tx when both buffers are set and differ
// in length
var ErrLengthMismatch = errors.New("tx and rx buffers differ in length")

// Config selects the SPI mode and timing
type Config struct {
	// Mode is the SPI mode 0-3 (bit 1 CPOL, bit 0 CPHA)
	Mode uint8

	Order core.BitOrder

	// HalfPeriod is the delay in microseconds between clock edges.
	// Zero runs as fast as the backend allows.
	HalfPeriod uint32
}

// SPI is a software SPI master. SDI and CS are optional.
type SPI struct {
	board *core.Board
	sck   core.DigitalPin
	sdo   core.DigitalPin
	sdi   *core.DigitalPin
	cs    *core.DigitalPin
	cfg   Config
}

var _ drivers.SPI = (*SPI)(nil)

// Option configures an SPI
type Option func(*SPI)

// WithInput adds a data input pin (MISO)
func WithInput(sdi core.DigitalPin) Option {
	return func(s *SPI) {
		s.sdi = &sdi
	}
}

// WithChipSelect adds an active-low chip select driven around each Tx
func WithChipSelect(cs core.DigitalPin) Option {
	return func(s *SPI) {
		s.cs = &cs
	}
}

// NewSPI configures the pins and parks the clock at its idle level
func NewSPI(sck, sdo core.DigitalPin, cfg Config, opts ...Option) (*SPI, error) {
	s := &SPI{
		board: sck.Pin().Board(),
		sck:   sck,
		sdo:   sdo,
		cfg:   cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, p := range []core.DigitalPin{sck, sdo} {
		if err := p.Pin().Mode(core.Output); err != nil {
			return nil, err
		}
	}
	if err := sck.Write(s.idle()); err != nil {
		return nil, err
	}
	if s.sdi != nil {
		if err := s.sdi.Pin().Mode(core.Input); err != nil {
			return nil, err
		}
	}
	if s.cs != nil {
		if err := s.cs.Pin().Mode(core.Output); err != nil {
			return nil, err
		}
		if err := s.cs.High(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *SPI) idle() core.DigitalValue {
	return core.DigitalValueFromBool(s.cfg.Mode&2 != 0)
}

func (s *SPI) wait() {
	if s.cfg.HalfPeriod > 0 {
		s.board.DelayMicros(s.cfg.HalfPeriod)
	}
}

// Transfer writes b and returns the byte clocked in at the same time
func (s *SPI) Transfer(b byte) (byte, error) {
	idle := s.idle()
	active := idle.Invert()
	cpha := s.cfg.Mode&1 != 0

	var in byte
	for i := 0; i < 8; i++ {
		bit := bitAt(b, i, s.cfg.Order)
		if cpha {
			if err := s.sck.Write(active); err != nil {
				return 0, err
			}
		}
		if err := s.sdo.Write(core.DigitalValueFromBool(bit)); err != nil {
			return 0, err
		}
		s.wait()

		// sample on the first edge in CPHA 0, the second in CPHA 1
		edge := active
		if cpha {
			edge = idle
		}
		if err := s.sck.Write(edge); err != nil {
			return 0, err
		}
		if s.sdi != nil {
			v, err := s.sdi.Read()
			if err != nil {
				return 0, err
			}
			if v == core.High {
				in = setBit(in, i, s.cfg.Order)
			}
		}
		s.wait()
		if !cpha {
			if err := s.sck.Write(idle); err != nil {
				return 0, err
			}
		}
	}
	return in, nil
}

// Tx writes w and reads into r. Either may be nil; a nil w sends zeros.
func (s *SPI) Tx(w, r []byte) error {
	n := len(w)
	switch {
	case w == nil:
		n = len(r)
	case r != nil && len(r) != len(w):
		return ErrLengthMismatch
	}

	if s.cs != nil {
		if err := s.cs.Low(); err != nil {
			return err
		}
		defer s.cs.High()
	}
	for i := 0; i < n; i++ {
		var out byte
		if w != nil {
			out = w[i]
		}
		in, err := s.Transfer(out)
		if err != nil {
			return err
		}
		if r != nil {
			r[i] = in
		}
	}
	return nil
}

func bitAt(value byte, i int, order core.BitOrder) bool {
	if order == core.LSBFirst {
		return value&(1<<uint(i)) != 0
	}
	return value&(0x80>>uint(i)) != 0
}

func setBit(value byte, i int, order core.BitOrder) byte {
	if order == core.LSBFirst {
		return value | 1<<uint(i)
	}
	return value | 0x80>>uint(i)
}
