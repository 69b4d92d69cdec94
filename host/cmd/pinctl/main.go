// Command pinctl drives pins interactively on a simulated, Linux or remote
// board, or serves a local board to remote hosts.
//
//	pinctl [flags]                  interactive shell
//	pinctl [flags] -c "read led"    run one line and exit
//	pinctl [flags] serve            expose the board over -device
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"gopins/config"
	"gopins/core"
)

const version = "0.1.0"

var (
	configPath = flag.String("config", "", "JSON board configuration")
	backend    = flag.String("backend", "", "Backend: sim, linux or remote (overrides config)")
	device     = flag.String("device", "", "Serial device or tcp:host:port (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (ignored for USB CDC)")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	debug      = flag.Bool("debug", false, "Forward core debug messages to the log")
	oneShot    = flag.String("c", "", "Run one command line and exit")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	logger := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger, flag.Args()); err != nil {
		logger.Error("pinctl failed", "err", err)
		os.Exit(1)
	}
}

// loadConfig reads -config, or starts from the defaults, then applies flags
func loadConfig() (*config.BoardConfig, error) {
	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *baud != 0 {
		cfg.Serial.Baud = *baud
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *debug {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

// newLogger builds the process logger and routes the core debug channel
// into it at debug level
func newLogger(cfg *config.BoardConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	if cfg.Debug && level > slog.LevelDebug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))

	coreLog := logger.With("component", "core")
	core.SetDebugWriter(func(msg string) {
		coreLog.Debug(msg)
	})
	core.SetDebugEnabled(cfg.Debug)
	core.InitAsyncDebug()
	return logger
}

func run(ctx context.Context, cfg *config.BoardConfig, logger *slog.Logger, args []string) error {
	if len(args) > 0 && args[0] == "serve" {
		if cfg.Backend == config.BackendRemote {
			return errors.New("serve needs a local board (sim or linux)")
		}
		// the board is local; -device names the link to serve it on
		sess, err := openBoard(cfg, logger)
		if err != nil {
			return err
		}
		defer sess.Close()
		return serve(ctx, sess.board, cfg, logger)
	}
	if len(args) > 0 {
		return fmt.Errorf("unknown mode %q", args[0])
	}

	sess, err := openBoard(cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()
	core.SetBoard(sess.board)
	if cfg.Debug {
		defer core.DumpEventRing()
	}

	sh := newShell(sess, cfg, os.Stdout)
	if *oneShot != "" {
		return sh.exec(*oneShot)
	}
	return repl(sh, os.Stdin)
}

// repl reads lines until EOF or quit. Command errors are printed, not fatal.
func repl(sh *shell, in io.Reader) error {
	sh.printf("pinctl %s on a %s board (type help)\n", version, sh.cfg.Backend)
	scanner := bufio.NewScanner(in)
	for {
		sh.printf("> ")
		if !scanner.Scan() {
			break
		}
		err := sh.exec(strings.TrimSpace(scanner.Text()))
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			sh.printf("error: %v\n", err)
		}
	}
	return scanner.Err()
}
