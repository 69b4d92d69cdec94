package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/shlex"

	"gopins/config"
	"gopins/core"
)

var (
	errUsage = errors.New("usage")
	errQuit  = errors.New("quit")
)

// shell executes one command line at a time against a session
type shell struct {
	sess *session
	cfg  *config.BoardConfig

	mu  sync.Mutex // guards out; interrupt callbacks print too
	out io.Writer
}

type command struct {
	usage string
	run   func(sh *shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":       {"help", (*shell).help},
		"mode":       {"mode <pin> input|output|input_pullup", (*shell).mode},
		"write":      {"write <pin> low|high", (*shell).write},
		"read":       {"read <pin>", (*shell).read},
		"awrite":     {"awrite <pin> <value>", (*shell).analogWrite},
		"aread":      {"aread <pin>", (*shell).analogRead},
		"reference":  {"reference default|external", (*shell).reference},
		"resolution": {"resolution read|write <bits>", (*shell).resolution},
		"analog":     {"analog", (*shell).analogConfig},
		"tone":       {"tone <pin> <hz> [ms]", (*shell).tone},
		"notone":     {"notone <pin>", (*shell).noTone},
		"shiftout":   {"shiftout <data> <clock> msb|lsb <byte>", (*shell).shiftOut},
		"shiftin":    {"shiftin <data> <clock> msb|lsb", (*shell).shiftIn},
		"pulse":      {"pulse <pin> low|high [timeout_us]", (*shell).pulse},
		"millis":     {"millis", (*shell).millis},
		"micros":     {"micros", (*shell).micros},
		"delay":      {"delay <ms>", (*shell).delay},
		"attach":     {"attach <pin> low|high|change|falling|rising", (*shell).attach},
		"detach":     {"detach <pin>", (*shell).detach},
		"count":      {"count <pin>", (*shell).count},
		"events":     {"events", (*shell).events},
		"dict":       {"dict", (*shell).dict},
		"quit":       {"quit", func(*shell, []string) error { return errQuit }},
	}
	commands["exit"] = commands["quit"]
}

func newShell(sess *session, cfg *config.BoardConfig, out io.Writer) *shell {
	return &shell{sess: sess, cfg: cfg, out: out}
}

func (sh *shell) printf(format string, args ...any) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fmt.Fprintf(sh.out, format, args...)
}

// exec runs one line. Quoting follows shell rules; # starts a comment.
func (sh *shell) exec(line string) error {
	words, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		return nil
	}
	cmd, ok := commands[strings.ToLower(words[0])]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", words[0])
	}
	err = cmd.run(sh, words[1:])
	if errors.Is(err, errUsage) {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return err
}

func (sh *shell) help([]string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		if name != "exit" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sh.printf("  %s\n", commands[name].usage)
	}
	return nil
}

// pin resolves a config alias, a device pin name, or a decimal number
func (sh *shell) pin(arg string) (core.Pin, error) {
	if n, ok := sh.cfg.Pin(arg); ok {
		return sh.sess.board.Pin(n), nil
	}
	if sh.sess.remote != nil {
		n, err := sh.sess.remote.PinByName(arg)
		if err == nil {
			return sh.sess.board.Pin(n), nil
		}
	}
	return core.Pin{}, fmt.Errorf("unknown pin %q", arg)
}

func parseUint(arg string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(arg, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", arg)
	}
	return v, nil
}

func parseInt(arg string) (int32, error) {
	v, err := strconv.ParseInt(arg, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", arg)
	}
	return int32(v), nil
}

func (sh *shell) mode(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	p, err := sh.pin(args[0])
	if err != nil {
		return err
	}
	m, ok := core.ParseMode(args[1])
	if !ok {
		return errUsage
	}
	return p.Mode(m)
}

func (sh *shell) write(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	p, err := sh.pin(args[0])
	if err != nil {
		return err
	}
	v, ok := core.ParseDigitalValue(args[1])
	if !ok {
		return errUsage
	}
	return p.Digital().Write(v)
}

func (sh *shell) read(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	p, err := sh.pin(args[0])
	if err != nil {
		return err
	}
	v, err := p.Digital().Read()
	if err != nil {
		return err
	}
	sh.printf("%s = %s\n", p, v)
	return nil
}

func (sh *shell) analogWrite(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	p, err := sh.pin(args[0])
	if err != nil {
		return err
	}
	v, err := parseInt(args[1])
	if err != nil {
		return err
	}
	return p.Analog().Write(v)
}

func (sh *shell) analogRead(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	p, err := sh.pin(args[0])
	if err != nil {
		return err
	}
	v, err := p.Analog().Read()
	if err != nil {
		return err
	}
	sh.printf("%s = %d\n", p, v)
	return nil
}

func (sh *shell) reference(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	ref, ok := core.ParseReference(args[0])
	if !ok {
		return errUsage
	}
	return sh.sess.board.AnalogReference(ref)
}

func (sh *shell) resolution(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	bits, err := parseInt(args[1])
	if err != nil {
		return err
	}
	switch args[0] {
	case "read":
		return sh.sess.board.AnalogReadResolution(bits)
	case "write":
		return sh.sess.board.AnalogWriteResolution(bits)
	}
	return errUsage
}

func (sh *shell) analogConfig([]string) error {
	c := sh.sess.board.AnalogConfig()
	sh.printf("reference=%s read=%d bits write=%d bits\n", c.Reference, c.ReadResolution, c.WriteResolution)
	return nil
}

func (sh *shell) tone(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errUsage
	}
	p, err := sh.pin(args[0])
	if err != nil {
		return err
	}
	freq, err := parseUint(args[1], 32)
	if err != nil {
		return err
	}
	var dur uint64
	if len(args) == 3 {
		if dur, err = parseUint(args[2], 32); err != nil {
			return err
		}
	}
	return p.Tone().Tone(uint32(freq), uint32(dur))
}

func (sh *shell) noTone(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	p, err := sh.pin(args[0])
	if err != nil {
		return err
	}
	return p.Tone().NoTone()
}

func (sh *shell) shiftPins(args []string) (core.DigitalPin, core.DigitalPin, core.BitOrder, error) {
	data, err := sh.pin(args[0])
	if err != nil {
		return core.DigitalPin{}, core.DigitalPin{}, 0, err
	}
	clock, err := sh.pin(args[1])
	if err != nil {
		return core.DigitalPin{}, core.DigitalPin{}, 0, err
	}
	order, ok := core.ParseBitOrder(args[2])
	if !ok {
		return core.DigitalPin{}, core.DigitalPin{}, 0, errUsage
	}
	return data.Digital(), clock.Digital(), order, nil
}

func (sh *shell) shiftOut(args []string) error {
	if len(args) != 4 {
		return errUsage
	}
	data, clock, order, err := sh.shiftPins(args)
	if err != nil {
		return err
	}
	v, err := parseUint(args[3], 8)
	if err != nil {
		return err
	}
	return sh.sess.board.ShiftOut(data, clock, order, uint8(v))
}

func (sh *shell) shiftIn(args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	data, clock, order, err := sh.shiftPins(args)
	if err != nil {
		return err
	}
	v, err := sh.sess.board.ShiftIn(data, clock, order)
	if err != nil {
		return err
	}
	sh.printf("0x%02x\n", v)
	return nil
}

func (sh *shell) pulse(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errUsage
	}
	p, err := sh.pin(args[0])
	if err != nil {
		return err
	}
	state, ok := core.ParseDigitalValue(args[1])
	if !ok {
		return errUsage
	}
	var timeout uint64
	if len(args) == 3 {
		if timeout, err = parseUint(args[2], 32); err != nil {
			return err
		}
	}
	res, err := p.Digital().PulseIn(state, uint32(timeout))
	if err != nil {
		return err
	}
	if res.TimedOut {
		sh.printf("timeout\n")
		return nil
	}
	sh.printf("%d us\n", res.Width)
	return nil
}

func (sh *shell) millis([]string) error {
	sh.printf("%d\n", sh.sess.board.Millis())
	return nil
}

func (sh *shell) micros([]string) error {
	sh.printf("%d\n", sh.sess.board.Micros())
	return nil
}

func (sh *shell) delay(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	ms, err := parseUint(args[0], 32)
	if err != nil {
		return err
	}
	sh.sess.board.Delay(uint32(ms))
	return nil
}

func (sh *shell) attach(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	p, err := sh.pin(args[0])
	if err != nil {
		return err
	}
	trig, ok := core.ParseTrigger(args[1])
	if !ok {
		return errUsage
	}
	return p.AttachInterrupt(func() {
		sh.printf("interrupt on %s (%s)\n", p, trig)
	}, trig)
}

func (sh *shell) detach(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	p, err := sh.pin(args[0])
	if err != nil {
		return err
	}
	return p.DetachInterrupt()
}

func (sh *shell) count(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	p, err := sh.pin(args[0])
	if err != nil {
		return err
	}
	sh.printf("%s: %d interrupts\n", p, sh.sess.board.InterruptCount(p.Raw()))
	return nil
}

func (sh *shell) events([]string) error {
	for _, e := range core.Events() {
		sh.printf("%5d %-14s pin %-3d %d\n", e.Seq, core.EventName(e.EventType), e.Pin, e.Value)
	}
	return nil
}

func (sh *shell) dict([]string) error {
	if sh.sess.remote == nil {
		return errors.New("dict needs a remote board")
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.sess.remote.Dictionary().Print(sh.out)
	return nil
}
