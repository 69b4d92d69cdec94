// Package firmware is the device side of the remote pin protocol. A Server
// executes commands received over a byte link on a local core.Board and
// reports interrupts back to the host.
package firmware

import (
	"context"
	"errors"
	"io"
	"time"

	"gopins/core"
	"gopins/protocol"
)

// Default timing of the server loop
const (
	DefaultPollInterval = 2 * time.Millisecond
	delaySlice          = 10 // ms a delay command runs between interrupt reports
)

// Server runs the device protocol over link. Handlers execute on the
// goroutine that calls Serve.
type Server struct {
	board     *core.Board
	link      io.ReadWriter
	registry  *Registry
	dict      *Dictionary
	transport *protocol.Transport
	out       *protocol.ScratchOutput

	responseIDs map[string]uint16
	pending     pendingSet

	pollInterval time.Duration
	idleSleep    time.Duration
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithPollInterval sets how often pending interrupts are reported while no
// command arrives
func WithPollInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		s.pollInterval = d
	}
}

// WithIdleSleep makes the reader sleep when the link returns no data, for
// links whose Read does not block (USB CDC under TinyGo)
func WithIdleSleep(d time.Duration) ServerOption {
	return func(s *Server) {
		s.idleSleep = d
	}
}

// WithConstant publishes a constant in the data dictionary
func WithConstant(name string, value any) ServerOption {
	return func(s *Server) {
		s.dict.AddConstant(name, value)
	}
}

// WithPinNames publishes pin names; names[i] is pin i. Empty entries are
// skipped.
func WithPinNames(names []string) ServerOption {
	return func(s *Server) {
		s.dict.AddEnumeration("pin", names)
	}
}

// WithVersion sets the version strings of the data dictionary
func WithVersion(version, build string) ServerOption {
	return func(s *Server) {
		s.dict.SetVersion(version)
		s.dict.SetBuildVersions(build)
	}
}

// NewServer binds board to link and registers the message table
func NewServer(board *core.Board, link io.ReadWriter, opts ...ServerOption) *Server {
	s := &Server{
		board:        board,
		link:         link,
		registry:     NewRegistry(),
		out:          protocol.NewScratchOutput(),
		responseIDs:  make(map[string]uint16),
		pollInterval: DefaultPollInterval,
	}
	s.dict = NewDictionary(s.registry)
	s.transport = protocol.NewTransport(s.out, s.registry.Dispatch)
	s.transport.SetFlushCallback(s.flush)
	s.transport.SetErrorCallback(s.reportError)
	s.transport.SetResetCallback(s.hostReset)

	s.registerCommands()
	s.dict.AddConstant("PROTOCOL", protocol.Version)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the server's message registry
func (s *Server) Registry() *Registry {
	return s.registry
}

// Dictionary returns the server's data dictionary
func (s *Server) Dictionary() *Dictionary {
	return s.dict
}

// Serve runs until ctx is done or the link fails. A link closed by the
// peer (io.EOF) ends Serve with a nil error.
func (s *Server) Serve(ctx context.Context) error {
	rx := make(chan []byte, 16)
	errc := make(chan error, 1)
	go s.readLoop(ctx, rx, errc)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	in := protocol.NewFifoBuffer(1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case b := <-rx:
			for len(b) > 0 {
				n := in.Write(b)
				b = b[n:]
				s.transport.Receive(in)
			}
			s.reportInterrupts()
			s.flush()
		case <-ticker.C:
			s.reportInterrupts()
			s.flush()
		}
	}
}

func (s *Server) readLoop(ctx context.Context, rx chan<- []byte, errc chan<- error) {
	buf := make([]byte, 256)
	for {
		n, err := s.link.Read(buf)
		if n > 0 {
			select {
			case rx <- append([]byte(nil), buf[:n]...):
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			errc <- err
			return
		}
		if n == 0 && s.idleSleep > 0 {
			time.Sleep(s.idleSleep)
		}
	}
}

// flush writes buffered output to the link
func (s *Server) flush() {
	res := s.out.Result()
	if len(res) == 0 {
		return
	}
	if _, err := s.link.Write(res); err != nil {
		core.DebugPrintln("[FW] write failed: " + err.Error())
	}
	s.out.Reset()
}

// send frames one response message. Output is flushed early when the
// scratch buffer could not hold another block.
func (s *Server) send(name string, args ...int32) {
	id, ok := s.responseIDs[name]
	if !ok {
		return
	}
	if s.out.CurPosition()+protocol.MessageLengthMax > protocol.MessageMax {
		s.flush()
	}
	s.transport.SendCommand(id, func(output protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQInt(output, a)
		}
	})
}

// reportInterrupts sends one interrupt_event per pin that fired since the
// last report
func (s *Server) reportInterrupts() {
	s.pending.drain(func(pin uint8) {
		s.send(protocol.MsgInterruptEvent, int32(pin))
	})
}

func (s *Server) hostReset() {
	core.DebugPrintln("[FW] host reset, detaching interrupts")
	s.board.Close()
	s.pending.drain(func(uint8) {})
}

// reportError answers a failed command with an error message
func (s *Server) reportError(cmdID uint16, err error) {
	code := errorCode(err)
	core.DebugPrintln("[FW] command " + core.Itoa(int(cmdID)) + " failed: " + err.Error())
	s.send(protocol.MsgError, int32(cmdID), int32(code))
}
