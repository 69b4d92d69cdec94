package firmware

import (
	"errors"
	"testing"

	"gopins/protocol"
)

func TestRegistryAssignsIDsInOrder(t *testing.T) {
	r := NewRegistry()
	a := r.RegisterResponse("identify_response", "offset=%u data=%*s")
	b := r.Register("identify", "offset=%u count=%c", func(*[]byte) error { return nil })
	again := r.Register("identify", "", nil)

	if a != 0 || b != 1 || again != 1 {
		t.Errorf("ids = %d, %d, %d; want 0, 1, 1", a, b, again)
	}
	if r.Count() != 2 {
		t.Errorf("Count = %d, want 2", r.Count())
	}
	if id, ok := r.ID("identify"); !ok || id != 1 {
		t.Errorf("ID(identify) = %d, %v", id, ok)
	}
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry()
	var got uint32
	id := r.Register("set", "v=%u", func(data *[]byte) error {
		v, err := protocol.DecodeVLQUint(data)
		got = v
		return err
	})
	resp := r.RegisterResponse("state", "v=%u")

	data := []byte{42}
	if err := r.Dispatch(id, &data); err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Errorf("handler got %d", got)
	}
	if err := r.Dispatch(resp, &data); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("dispatch to response: %v", err)
	}
	if err := r.Dispatch(99, &data); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("dispatch to unknown id: %v", err)
	}
}

func TestCommandsAndResponses(t *testing.T) {
	r := NewRegistry()
	r.RegisterResponse("clock", "millis=%u micros=%u")
	r.Register("get_clock", "", func(*[]byte) error { return nil })

	cmds, resps := r.CommandsAndResponses()
	if cmds["get_clock"] != 1 || len(cmds) != 1 {
		t.Errorf("commands = %v", cmds)
	}
	if resps["clock millis=%u micros=%u"] != 0 || len(resps) != 1 {
		t.Errorf("responses = %v", resps)
	}
}

func TestServerRegistersMessageTable(t *testing.T) {
	s := newTestServer(t)
	for i, def := range protocol.Messages {
		id, ok := s.Registry().ID(def.Name)
		if !ok || int(id) != i {
			t.Errorf("%s registered as %d (%v), want %d", def.Name, id, ok, i)
		}
		cmd, _ := s.Registry().Lookup(id)
		if (cmd.Handler == nil) != def.Response {
			t.Errorf("%s: handler presence does not match direction", def.Name)
		}
	}
}
