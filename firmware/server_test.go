package firmware

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"gopins/core"
	"gopins/protocol"
	"gopins/targets/sim"
	"gopins/tinycompress"
)

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	b, err := core.NewBoard(sim.New(sim.WithSyncInterrupts()))
	if err != nil {
		t.Fatal(err)
	}
	a, _ := net.Pipe()
	return NewServer(b, a, opts...)
}

type message struct {
	id   uint16
	args []int32
	buf  []byte
}

// testClient talks to a served board through the host transport
type testClient struct {
	t    *testing.T
	host *protocol.HostTransport
	sim  *sim.Backend
	msgs chan message
}

func startServer(t *testing.T, opts ...ServerOption) *testClient {
	t.Helper()
	backend := sim.New()
	board, err := core.NewBoard(backend)
	if err != nil {
		t.Fatal(err)
	}
	hostEnd, devEnd := net.Pipe()
	srv := NewServer(board, devEnd, append([]ServerOption{WithPollInterval(time.Millisecond)}, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx)
	}()

	c := &testClient{
		t:    t,
		host: protocol.NewHostTransport(hostEnd),
		sim:  backend,
		msgs: make(chan message, 32),
	}
	c.host.SetResponseHandler(func(id uint16, data *[]byte) error {
		m := message{id: id}
		if id == 0 {
			off, _ := protocol.DecodeVLQUint(data)
			m.args = []int32{int32(off)}
			b, err := protocol.DecodeVLQBytes(data)
			if err != nil {
				return err
			}
			m.buf = append([]byte(nil), b...)
		} else {
			for len(*data) > 0 {
				v, err := protocol.DecodeVLQInt(data)
				if err != nil {
					return err
				}
				m.args = append(m.args, v)
			}
		}
		c.msgs <- m
		return nil
	})

	t.Cleanup(func() {
		cancel()
		c.host.Close()
		devEnd.Close()
		<-done
		backend.Close()
	})
	return c
}

func msgID(name string) uint16 {
	for i, def := range protocol.Messages {
		if def.Name == name {
			return uint16(i)
		}
	}
	panic("no message " + name)
}

func (c *testClient) send(name string, args ...int32) {
	c.t.Helper()
	err := c.host.SendCommand(msgID(name), func(o protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQInt(o, a)
		}
	})
	if err != nil {
		c.t.Fatalf("%s: %v", name, err)
	}
}

func (c *testClient) expect(name string) message {
	c.t.Helper()
	want := msgID(name)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-c.msgs:
			if m.id == want {
				return m
			}
		case <-deadline:
			c.t.Fatalf("no %s received", name)
		}
	}
}

func TestServeIdentify(t *testing.T) {
	c := startServer(t, WithConstant("MCU", "sim"), WithPinNames([]string{"GP0", "GP1"}))

	var dict []byte
	for {
		c.send(protocol.MsgIdentify, int32(len(dict)), protocol.IdentifyChunkMax)
		m := c.expect(protocol.MsgIdentifyResponse)
		if int(m.args[0]) != len(dict) {
			t.Fatalf("chunk offset %d, want %d", m.args[0], len(dict))
		}
		if len(m.buf) == 0 {
			break
		}
		dict = append(dict, m.buf...)
	}

	plain, err := tinycompress.Decompress(dict)
	if err != nil {
		t.Fatal(err)
	}
	var parsed dictJSON
	if err := json.Unmarshal(plain, &parsed); err != nil {
		t.Fatalf("dictionary %s: %v", dict, err)
	}
	if parsed.Config["MCU"] != "sim" || parsed.Enumerations["pin"]["GP1"] != 1 {
		t.Errorf("dictionary = %+v", parsed)
	}
	if parsed.Commands["digital_write pin=%c value=%c"] != int(msgID(protocol.MsgDigitalWrite)) {
		t.Errorf("commands = %v", parsed.Commands)
	}
}

func TestServeDigitalIO(t *testing.T) {
	c := startServer(t)

	c.send(protocol.MsgSetMode, 13, int32(core.Output))
	c.send(protocol.MsgDigitalWrite, 13, 1)
	if c.sim.Level(13) != core.High {
		t.Error("pin 13 not driven high")
	}

	c.sim.ForceRaw(4, 2)
	c.send(protocol.MsgDigitalRead, 4)
	m := c.expect(protocol.MsgDigitalState)
	if m.args[0] != 4 || m.args[1] != 2 {
		t.Errorf("digital_state = %v, want pin 4 raw 2", m.args)
	}
}

func TestServeAnalog(t *testing.T) {
	c := startServer(t)

	c.sim.SetAnalogInput(26, 0xFFFF)
	c.send(protocol.MsgAnalogReadResolution, 12)
	c.send(protocol.MsgAnalogRead, 26)
	if m := c.expect(protocol.MsgAnalogState); m.args[1] != 4095 {
		t.Errorf("analog_state = %v", m.args)
	}

	c.send(protocol.MsgAnalogWrite, 9, -3)
	if c.sim.AnalogOutput(9) != -3 {
		t.Errorf("analog output = %d", c.sim.AnalogOutput(9))
	}
	c.send(protocol.MsgAnalogReference, int32(core.ReferenceExternal))
	if c.sim.AnalogSettings().Reference != core.ReferenceExternal {
		t.Error("reference not applied")
	}
}

func TestServeInvalidArgument(t *testing.T) {
	c := startServer(t)

	c.send(protocol.MsgSetMode, 3, 7)
	m := c.expect(protocol.MsgError)
	if uint16(m.args[0]) != msgID(protocol.MsgSetMode) || m.args[1] != protocol.ErrCodeInvalidArg {
		t.Errorf("error = %v", m.args)
	}
	if _, ok := c.sim.Mode(3); ok {
		t.Error("invalid mode reached the backend")
	}
}

func TestServeInterruptEvents(t *testing.T) {
	c := startServer(t)

	c.send(protocol.MsgAttachInterrupt, 2, int32(core.TriggerRising))
	c.sim.Drive(2, core.High)
	c.sim.WaitIdle()

	m := c.expect(protocol.MsgInterruptEvent)
	if m.args[0] != 2 {
		t.Errorf("interrupt_event pin = %d", m.args[0])
	}

	c.send(protocol.MsgDetachInterrupt, 2)
	if c.sim.InterruptAttached(2) {
		t.Error("interrupt still attached")
	}
}

func TestServeClockAndDelay(t *testing.T) {
	c := startServer(t)

	c.send(protocol.MsgDelay, 25)
	c.send(protocol.MsgDelayMicros, 300)
	c.send(protocol.MsgGetClock)
	m := c.expect(protocol.MsgClock)
	if m.args[0] != 25 || m.args[1] != 25300 {
		t.Errorf("clock = %v, want 25 ms / 25300 us", m.args)
	}
}

func TestServePulseAndShift(t *testing.T) {
	c := startServer(t)

	c.sim.Pulse(7, core.High, 50, 420)
	c.send(protocol.MsgPulseIn, 7, 1, 100000)
	if m := c.expect(protocol.MsgPulseInResult); m.args[1] != 420 {
		t.Errorf("pulse_in_result = %v", m.args)
	}

	c.send(protocol.MsgSetMode, 11, int32(core.Output))
	c.send(protocol.MsgSetMode, 12, int32(core.Output))
	c.send(protocol.MsgShiftOut, 11, 12, int32(core.MSBFirst), 0xA5)
	if got := c.sim.ShiftedOut(11); len(got) != 1 || got[0] != 0xA5 {
		t.Errorf("shifted out %x", got)
	}

	c.sim.QueueShiftIn(10, 0x3C)
	c.send(protocol.MsgShiftIn, 10, 12, int32(core.LSBFirst))
	if m := c.expect(protocol.MsgShiftInResult); m.args[0] != 0x3C {
		t.Errorf("shift_in_result = %v", m.args)
	}
}

func TestServeTone(t *testing.T) {
	c := startServer(t)

	c.send(protocol.MsgTone, 8, 440, 0)
	if ts := c.sim.ToneState(8); !ts.Active || ts.Frequency != 440 {
		t.Errorf("tone = %+v", ts)
	}
	c.send(protocol.MsgNoTone, 8)
	if c.sim.ToneState(8).Active {
		t.Error("tone still active")
	}
}
