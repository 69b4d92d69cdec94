package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"gopins/config"
	"gopins/core"
	"gopins/firmware"
	"gopins/host/remote"
	"gopins/host/serial"
	"gopins/targets/linux"
	"gopins/targets/sim"
)

// session is an initialised board plus what it needs to shut down
type session struct {
	board  *core.Board
	sim    *sim.Backend    // set for sim boards
	remote *remote.Backend // set for remote boards
	closer io.Closer
}

func (s *session) Close() error {
	err := s.board.Close()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// newSimBackend builds a simulated board wired as cfg describes
func newSimBackend(cfg *config.BoardConfig) (*sim.Backend, error) {
	var opts []sim.Option
	if cfg.Sim.Realtime {
		opts = append(opts, sim.WithRealtime())
	}
	s := sim.New(opts...)
	for _, pair := range cfg.Sim.Loopback {
		s.Connect(pair[0], pair[1])
	}
	inputs, err := cfg.SimAnalogInputs()
	if err != nil {
		s.Close()
		return nil, err
	}
	for pin, sample := range inputs {
		s.SetAnalogInput(pin, sample)
	}
	return s, nil
}

// openBoard creates and initialises the backend selected by cfg
func openBoard(cfg *config.BoardConfig, logger *slog.Logger) (*session, error) {
	sess := &session{}
	var backend core.Backend

	switch cfg.Backend {
	case config.BackendSim:
		s, err := newSimBackend(cfg)
		if err != nil {
			return nil, err
		}
		sess.sim, sess.closer, backend = s, s, s

	case config.BackendLinux:
		names, err := cfg.LinuxPinNames()
		if err != nil {
			return nil, err
		}
		l := linux.New(
			linux.WithPinNames(names),
			linux.WithLogger(logger.With("component", "linux")),
		)
		sess.closer, backend = l, l

	case config.BackendRemote:
		r, err := remote.Dial(&cfg.Serial,
			remote.WithLogger(logger),
			remote.WithTimeout(time.Duration(cfg.TimeoutMS)*time.Millisecond),
		)
		if err != nil {
			return nil, err
		}
		sess.remote, sess.closer, backend = r, r, r

	default:
		return nil, fmt.Errorf("%w: backend %q", config.ErrInvalidConfig, cfg.Backend)
	}

	var opts []core.Option
	if cfg.ModeTracking {
		opts = append(opts, core.WithModeTracking())
	}
	board, err := core.NewBoard(backend, opts...)
	if err != nil {
		sess.closer.Close()
		return nil, err
	}
	sess.board = board

	if err := board.Init(); err != nil {
		sess.closer.Close()
		return nil, fmt.Errorf("init %s board: %w", cfg.Backend, err)
	}
	if err := applyAnalog(board, cfg); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

func applyAnalog(board *core.Board, cfg *config.BoardConfig) error {
	if err := board.AnalogReference(cfg.Reference()); err != nil {
		return err
	}
	if err := board.AnalogReadResolution(cfg.Analog.ReadResolution); err != nil {
		return err
	}
	return board.AnalogWriteResolution(cfg.Analog.WriteResolution)
}

// serve exposes board over the link cfg.Serial names. A tcp: device is
// listened on and served one connection at a time; anything else is opened
// as a serial port.
func serve(ctx context.Context, board *core.Board, cfg *config.BoardConfig, logger *slog.Logger) error {
	opts := []firmware.ServerOption{
		firmware.WithConstant("MCU", "pinctl-"+cfg.Backend),
		firmware.WithPinNames(pinNames(cfg)),
		firmware.WithVersion(version, "pinctl"),
	}

	if !cfg.Serial.IsNetwork() {
		port, err := serial.Open(&cfg.Serial)
		if err != nil {
			return err
		}
		defer port.Close()
		logger.Info("serving board", "device", cfg.Serial.Device)
		return firmware.NewServer(board, port, opts...).Serve(ctx)
	}

	ln, err := net.Listen("tcp", cfg.Serial.Address())
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	logger.Info("serving board", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		logger.Info("host connected", "remote", conn.RemoteAddr().String())
		err = firmware.NewServer(board, conn, opts...).Serve(ctx)
		conn.Close()
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("connection ended", "err", err)
		}
		// interrupts attached by the last host must not fire for the next one
		board.Close()
		if ctx.Err() != nil {
			return nil
		}
	}
}

// pinNames publishes the configured aliases as the device pin enumeration
func pinNames(cfg *config.BoardConfig) []string {
	var names []string
	for alias, pin := range cfg.Pins {
		for int(pin) >= len(names) {
			names = append(names, "")
		}
		if names[pin] == "" || alias < names[pin] {
			names[pin] = alias
		}
	}
	return names
}
