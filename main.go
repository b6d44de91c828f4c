// bar-pulse is a status-line aggregator for i3bar-compatible bars.
//
// It runs a set of independent producers (temperature, disk, battery,
// wireless, volume, now-playing, toggles, lock keys, clock), merges their
// output into one ordered frame, and writes the i3bar JSON protocol to stdout.
// External tools steer producers through a FIFO with short "target:verb"
// commands.
//
// Usage:
//
//	bar-pulse [run] [flags]        run the bar (default)
//	bar-pulse send TARGET VERB...  send a command to a running bar
//	bar-pulse check [flags]        validate the configuration and exit
//	bar-pulse status [flags]       print producer status from a running bar
//
// Flags:
//
//	-c, --config string  Path to configuration file (default: ~/.config/bar-pulse/config.toml)
//	    --fifo string    Command FIFO path (overrides config)
//	    --probe          With check, activate every block once and print its output
//	-v, --verbose        Enable debug logging
//	    --version        Print version and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/command"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/config"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/daemon"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

// exitError carries a process exit code through run.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		code := 1
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		fmt.Fprintf(os.Stderr, "bar-pulse: %v\n", err)
		os.Exit(code)
	}
}

// options are the flags shared by every mode.
type options struct {
	configPath string
	fifo       string
	verbose    bool
	probe      bool
}

func run(args []string) error {
	mode := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		mode, args = args[0], args[1:]
	}

	var (
		opts        options
		showVersion bool
	)
	fs := pflag.NewFlagSet("bar-pulse "+mode, pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	fs.StringVar(&opts.fifo, "fifo", "", "Command FIFO path (overrides config)")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	fs.BoolVar(&opts.probe, "probe", false, "With check, activate every block once")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &exitError{code: 2, err: err}
	}

	if showVersion || mode == "version" {
		fmt.Printf("bar-pulse %s (%s) built %s\n", version, commit, date)
		return nil
	}

	switch mode {
	case "run":
		if fs.NArg() > 0 {
			return usageError("unexpected argument: %s", fs.Arg(0))
		}
		return runBar(opts)
	case "send":
		return runSend(opts, fs.Args())
	case "check":
		return runCheck(opts, os.Stdout)
	case "status":
		return runStatus(opts)
	default:
		return usageError("unknown mode %q (want run, send, check or status)", mode)
	}
}

// loadConfig loads the explicit path if given, else searches the standard
// locations. Flag overrides are applied last.
func loadConfig(opts options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFromFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.fifo != "" {
		cfg.Command.FIFO = opts.fifo
	}
	return cfg, nil
}

func runBar(opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg.General, opts.verbose)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	engine, err := daemon.Build(cfg, daemon.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("build producers: %w", err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting bar-pulse",
		"version", version,
		"config", opts.configPath,
		"order", cfg.Order,
	)
	if err := engine.Run(ctx, os.Stdout, os.Stdin); err != nil {
		logger.Error("bar stopped", "error", err)
		return err
	}
	logger.Info("received shutdown signal")
	return nil
}

// runSend writes TARGET:VERB to the FIFO of a running bar. The FIFO path
// comes from --fifo, then the configuration, then the default location.
func runSend(opts options, args []string) error {
	if len(args) < 2 {
		return usageError("usage: bar-pulse send TARGET VERB...")
	}

	fifo := opts.fifo
	if fifo == "" {
		if cfg, err := loadConfig(opts); err == nil {
			fifo = cfg.Command.FIFO
		} else if v := os.Getenv("BAR_PULSE_FIFO"); v != "" {
			fifo = v
		} else {
			fifo = command.DefaultFIFOPath()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return command.NewSender(fifo).Send(ctx, args[0], args[1:]...)
}

// runCheck validates the configuration and builds every producer without
// starting the bar. With --probe each producer is also activated once.
func runCheck(opts options, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	engine, err := daemon.Build(cfg, daemon.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return fmt.Errorf("build producers: %w", err)
	}
	defer engine.Close()

	for i, name := range engine.Order() {
		b := cfg.Blocks[name]
		interval := b.Interval.String()
		if b.Interval == 0 {
			interval = "reactive"
		}
		line := fmt.Sprintf("%2d  %-12s %-9s %s", i, name, b.Kind, interval)
		if b.Route != "" {
			line += "  route=" + b.Route
		}
		if verbs := engine.Verbs(name); len(verbs) > 0 {
			line += "  verbs=" + strings.Join(verbs, ",")
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "fifo: %s\n", cfg.Command.FIFO)

	if !opts.probe {
		return nil
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	failed := 0
	for _, r := range engine.Probe(ctx) {
		fmt.Fprintf(out, "probe %-12s %-8s %s\n", r.Name, r.Latency.Round(time.Millisecond), describeProbe(r))
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d block(s) failed to activate", failed)
	}
	return nil
}

func describeProbe(r daemon.ProbeResult) string {
	if r.Err != nil {
		return "error: " + r.Err.Error()
	}
	if r.Result.Kind != bar.Updated {
		return "(" + r.Result.Kind.String() + ")"
	}
	texts := make([]string, len(r.Result.Blocks))
	for i, b := range r.Result.Blocks {
		texts[i] = b.FullText
	}
	return strings.Join(texts, " | ")
}

// runStatus prints the producer status of a running bar. It needs the
// command socket; without one it only reports whether the daemon is alive.
func runStatus(opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if cfg.Command.Socket == "" {
		pidPath := cfg.General.PIDFile
		if pidPath == "" {
			pidPath = daemon.DefaultPIDPath(cfg.Command.FIFO)
		}
		pid, err := daemon.ReadPID(pidPath)
		if err != nil || !daemon.IsProcessAlive(pid) {
			return errors.New("bar-pulse is not running")
		}
		fmt.Printf("bar-pulse running (PID %d); set command.socket for producer status\n", pid)
		return nil
	}

	resp, err := command.QuerySocket(cfg.Command.Socket, "STATUS", 2*time.Second)
	if err != nil {
		return err
	}
	var statuses []map[string]any
	if err := json.Unmarshal([]byte(resp), &statuses); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	out, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// newLogger builds the process logger. Records go to stderr and, when
// configured, to the log file. A non-terminal stderr gets JSON records.
func newLogger(general config.GeneralConfig, verbose bool) (*slog.Logger, func(), error) {
	level := parseLevel(general.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}

	w := io.Writer(os.Stderr)
	closeLog := func() {}
	if general.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(general.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(general.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeLog = func() { f.Close() }
	}

	hopts := &slog.HandlerOptions{Level: level}
	fd := os.Stderr.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return slog.New(slog.NewTextHandler(w, hopts)), closeLog, nil
	}
	return slog.New(slog.NewJSONHandler(w, hopts)), closeLog, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
