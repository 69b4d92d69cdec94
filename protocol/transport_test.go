package protocol

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// hostBlock builds a host block the way HostTransport does
func hostBlock(t *testing.T, seq uint8, payload ...byte) []byte {
	t.Helper()
	block, err := EncodeBlock(seq, payload)
	if err != nil {
		t.Fatal(err)
	}
	return block
}

type recorded struct {
	id   uint16
	args []uint32
}

// newRecordingTransport returns a transport whose handler decodes n VLQ
// arguments per message
func newRecordingTransport(nargs int) (*Transport, *ScratchOutput, *[]recorded) {
	out := NewScratchOutput()
	var got []recorded
	tr := NewTransport(out, func(id uint16, data *[]byte) error {
		r := recorded{id: id}
		for i := 0; i < nargs; i++ {
			v, err := DecodeVLQUint(data)
			if err != nil {
				return err
			}
			r.args = append(r.args, v)
		}
		got = append(got, r)
		return nil
	})
	return tr, out, &got
}

func TestTransportDispatchesAndAcks(t *testing.T) {
	tr, out, got := newRecordingTransport(1)

	tr.Receive(NewSliceInputBuffer(hostBlock(t, MessageDest, 3, 7, 4, 100)))

	if len(*got) != 2 || (*got)[0].id != 3 || (*got)[0].args[0] != 7 || (*got)[1].id != 4 {
		t.Fatalf("dispatched %+v", *got)
	}
	ack := appendTrailer([]byte{5, MessageDest | 1})
	if string(out.Result()) != string(ack) {
		t.Errorf("ack = % X, want % X", out.Result(), ack)
	}
}

func TestTransportOutOfOrderNotProcessed(t *testing.T) {
	tr, out, got := newRecordingTransport(0)

	tr.Receive(NewSliceInputBuffer(hostBlock(t, MessageDest, 1)))
	out.Reset()
	// Repeat of the same sequence: not processed, nak names the expected one
	tr.Receive(NewSliceInputBuffer(hostBlock(t, MessageDest|3, 1)))

	if len(*got) != 1 {
		t.Errorf("processed %d messages, want 1", len(*got))
	}
	if res := out.Result(); len(res) != 5 || res[MessagePositionSeq] != MessageDest|1 {
		t.Errorf("nak = % X", res)
	}
}

func TestTransportHostReset(t *testing.T) {
	tr, _, got := newRecordingTransport(0)
	resets := 0
	tr.SetResetCallback(func() { resets++ })

	tr.Receive(NewSliceInputBuffer(hostBlock(t, MessageDest, 1)))
	tr.Receive(NewSliceInputBuffer(hostBlock(t, MessageDest|1, 1)))
	tr.Receive(NewSliceInputBuffer(hostBlock(t, MessageDest, 1)))

	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
	if len(*got) != 3 {
		t.Errorf("processed %d messages, want 3", len(*got))
	}
}

func TestTransportResyncAfterCorruption(t *testing.T) {
	tr, _, got := newRecordingTransport(0)

	bad := hostBlock(t, MessageDest, 1)
	bad[2] ^= 0xFF // break the payload, CRC no longer matches
	stream := append(bad, hostBlock(t, MessageDest, 2)...)

	tr.Receive(NewSliceInputBuffer(stream))
	if len(*got) != 1 || (*got)[0].id != 2 {
		t.Errorf("dispatched %+v, want only message 2", *got)
	}
}

func TestTransportPartialBlock(t *testing.T) {
	tr, _, got := newRecordingTransport(0)
	block := hostBlock(t, MessageDest, 9)

	fifo := NewFifoBuffer(64)
	fifo.Write(block[:4])
	tr.Receive(fifo)
	if len(*got) != 0 || fifo.Available() != 4 {
		t.Fatalf("partial block consumed: got %v, left %d", *got, fifo.Available())
	}
	fifo.Write(block[4:])
	tr.Receive(fifo)
	if len(*got) != 1 || fifo.Available() != 0 {
		t.Errorf("complete block not consumed: got %v, left %d", *got, fifo.Available())
	}
}

func TestTransportHandlerError(t *testing.T) {
	out := NewScratchOutput()
	var calls []uint16
	var reported error
	tr := NewTransport(out, func(id uint16, data *[]byte) error {
		calls = append(calls, id)
		if id == 1 {
			return errors.New("boom")
		}
		return nil
	})
	tr.SetErrorCallback(func(id uint16, err error) { reported = err })

	tr.Receive(NewSliceInputBuffer(hostBlock(t, MessageDest, 1, 2)))
	if len(calls) != 1 {
		t.Errorf("messages after the failing one ran: %v", calls)
	}
	if reported == nil {
		t.Error("error not reported")
	}
}

func TestTransportEncodeFrame(t *testing.T) {
	tr, out, _ := newRecordingTransport(0)
	tr.SendCommand(6, func(o OutputBuffer) {
		EncodeVLQUint(o, 13)
		EncodeVLQInt(o, -1)
	})
	want := hostBlock(t, MessageDest, 6, 13, 0x7F)
	if string(out.Result()) != string(want) {
		t.Errorf("frame = % X, want % X", out.Result(), want)
	}
}

func TestEncodeBlockTooLong(t *testing.T) {
	if _, err := EncodeBlock(MessageDest, make([]byte, MessagePayloadMax+1)); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("error = %v, want ErrMessageTooLong", err)
	}
	if _, err := EncodeBlock(MessageDest, make([]byte, MessagePayloadMax)); err != nil {
		t.Errorf("max payload rejected: %v", err)
	}
}

// fakeDevice runs a device Transport on one end of a pipe
type fakeDevice struct {
	conn net.Conn
	tr   *Transport
	out  *ScratchOutput
	mu   sync.Mutex
}

func newFakeDevice(conn net.Conn, handler func(tr *Transport, id uint16, data *[]byte) error) *fakeDevice {
	d := &fakeDevice{conn: conn, out: NewScratchOutput()}
	d.tr = NewTransport(d.out, func(id uint16, data *[]byte) error {
		return handler(d.tr, id, data)
	})
	d.tr.SetFlushCallback(d.flush)
	go d.run()
	return d
}

func (d *fakeDevice) flush() {
	if res := d.out.Result(); len(res) > 0 {
		d.conn.Write(append([]byte(nil), res...))
		d.out.Reset()
	}
}

func (d *fakeDevice) run() {
	in := NewFifoBuffer(256)
	buf := make([]byte, 64)
	for {
		n, err := d.conn.Read(buf)
		if err != nil {
			return
		}
		in.Write(buf[:n])
		d.tr.Receive(in)
		d.flush()
	}
}

func TestHostTransportRoundTrip(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()

	// Device echoes the argument of message 5 back as message 6, plus 1
	newFakeDevice(devEnd, func(tr *Transport, id uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		tr.SendCommand(6, func(o OutputBuffer) { EncodeVLQUint(o, v+1) })
		return nil
	})

	host := NewHostTransport(hostEnd)
	defer host.Close()

	replies := make(chan uint32, 8)
	host.SetResponseHandler(func(id uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		if id == 6 {
			replies <- v
		}
		return nil
	})

	// More than 16 round trips exercises sequence wrap-around
	for i := uint32(0); i < 20; i++ {
		err := host.SendCommand(5, func(o OutputBuffer) { EncodeVLQUint(o, i) })
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		select {
		case v := <-replies:
			if v != i+1 {
				t.Fatalf("reply %d, want %d", v, i+1)
			}
		case <-time.After(time.Second):
			t.Fatalf("no reply to %d", i)
		}
	}
	if seq := host.GetCurrentSequence(); seq != MessageDest|(20&MessageSeqMask) {
		t.Errorf("sequence = 0x%02X", seq)
	}
}

func TestHostTransportAckTimeout(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()

	// A device that reads but never answers
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := devEnd.Read(buf); err != nil {
				return
			}
		}
	}()

	host := NewHostTransport(hostEnd)
	defer host.Close()

	err := host.SendCommandWithTimeout(1, nil, 50*time.Millisecond)
	if !errors.Is(err, ErrAckTimeout) {
		t.Errorf("error = %v, want ErrAckTimeout", err)
	}
	if host.GetCurrentSequence() != MessageDest {
		t.Error("sequence advanced without an ack")
	}
}

func TestHostTransportClosedLink(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	host := NewHostTransport(hostEnd)
	devEnd.Close()

	select {
	case <-host.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not stop on closed link")
	}
	if err := host.SendCommand(1, nil); err == nil {
		t.Error("send on closed link succeeded")
	}
	host.Close()
	host.Close()
}
