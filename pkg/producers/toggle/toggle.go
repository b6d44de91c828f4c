// Package toggle provides the device switch producer: a reactive block that
// queries an on/off state from a command's output, flips it with on/off shell
// commands, and is visible while the device is in the configured state (for
// example "screen blanking disabled" or "touchpad off").
package toggle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/shell"
)

// Built-in verbs.
const (
	VerbOn     = "on"
	VerbOff    = "off"
	VerbToggle = "toggle"
)

// Config controls a toggle producer.
type Config struct {
	// Label is the displayed text. Defaults to the block name.
	Label string `toml:"label" yaml:"label"`

	// Query is run (without a shell) to read the current state.
	Query string `toml:"query" yaml:"query"`

	// Pattern extracts the state from Query's output through a named group
	// "state".
	Pattern string `toml:"pattern" yaml:"pattern"`

	// OnValue is the captured state meaning "on".
	OnValue string `toml:"on_value" yaml:"on_value"`

	OnCommand  string `toml:"on_command" yaml:"on_command"`
	OffCommand string `toml:"off_command" yaml:"off_command"`

	// ShowWhen selects the state in which the block is visible: "off"
	// (default) or "on".
	ShowWhen string `toml:"show_when" yaml:"show_when"`

	// Commands maps extra verbs to shell commands, e.g. blank = "xset dpms force off".
	Commands map[string]string `toml:"commands" yaml:"commands"`

	// Init is applied on the first activation: "on", "off" or empty.
	Init string `toml:"init" yaml:"init"`

	// AutoOffGlob switches the device off on the first activation when it
	// matches at least AutoOffMin paths, e.g. "/dev/input/mouse*" with 2 to
	// disable the touchpad when an external mouse is plugged in.
	AutoOffGlob string `toml:"auto_off_glob" yaml:"auto_off_glob"`
	AutoOffMin  int    `toml:"auto_off_min" yaml:"auto_off_min"`
}

// Validate checks the query, pattern and commands.
func (c Config) Validate() error {
	if c.Query == "" {
		return errors.New("toggle block needs query")
	}
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return fmt.Errorf("pattern: %w", err)
	}
	if re.SubexpIndex("state") < 0 {
		return errors.New(`pattern needs a named group "state"`)
	}
	if c.OnValue == "" {
		return errors.New("toggle block needs on_value")
	}
	if c.OnCommand == "" || c.OffCommand == "" {
		return errors.New("toggle block needs on_command and off_command")
	}
	switch c.ShowWhen {
	case "", VerbOn, VerbOff:
	default:
		return fmt.Errorf("show_when %q: want on or off", c.ShowWhen)
	}
	switch c.Init {
	case "", VerbOn, VerbOff:
	default:
		return fmt.Errorf("init %q: want on or off", c.Init)
	}
	for verb := range c.Commands {
		switch verb {
		case VerbOn, VerbOff, VerbToggle:
			return fmt.Errorf("commands: %q shadows a built-in verb", verb)
		}
	}
	if c.AutoOffGlob != "" {
		if _, err := filepath.Match(c.AutoOffGlob, ""); err != nil {
			return fmt.Errorf("auto_off_glob: %w", err)
		}
	}
	return nil
}

// Producer is a reactive on/off switch.
type Producer struct {
	name     string
	interval time.Duration
	cfg      Config
	query    []string
	re       *regexp.Regexp
	showOn   bool
	cmd      shell.Commander
	palette  bar.Palette
	glob     func(string) ([]string, error)

	mu          sync.Mutex
	initialized bool
}

// New creates a toggle producer. cfg must have passed Validate.
func New(name string, interval time.Duration, cfg Config, cmd shell.Commander, palette bar.Palette) *Producer {
	if cfg.Label == "" {
		cfg.Label = name
	}
	if cmd == nil {
		cmd = shell.Exec{}
	}
	return &Producer{
		name:     name,
		interval: interval,
		cfg:      cfg,
		query:    shell.Fields(cfg.Query),
		re:       regexp.MustCompile(cfg.Pattern),
		showOn:   cfg.ShowWhen == VerbOn,
		cmd:      cmd,
		palette:  palette,
		glob:     filepath.Glob,
	}
}

// Name returns the block name.
func (p *Producer) Name() string { return p.name }

// Interval returns the polling interval; normally zero.
func (p *Producer) Interval() time.Duration { return p.interval }

// Verbs lists the built-in and configured verbs.
func (p *Producer) Verbs() []string {
	verbs := []string{VerbOn, VerbOff, VerbToggle}
	extra := make([]string, 0, len(p.cfg.Commands))
	for v := range p.cfg.Commands {
		extra = append(extra, v)
	}
	sort.Strings(extra)
	return append(verbs, extra...)
}

// Activate runs the command for verb, then re-reads the state. Unknown verbs
// only re-read.
func (p *Producer) Activate(ctx context.Context, verb string) (bar.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		p.initialized = true
		if err := p.initialize(ctx); err != nil {
			return bar.Hide(), err
		}
	}

	switch verb {
	case "":
	case VerbOn:
		if err := p.cmd.Run(ctx, p.cfg.OnCommand); err != nil {
			return bar.Hide(), err
		}
	case VerbOff:
		if err := p.cmd.Run(ctx, p.cfg.OffCommand); err != nil {
			return bar.Hide(), err
		}
	case VerbToggle:
		on, err := p.state(ctx)
		if err != nil {
			return bar.Hide(), err
		}
		next := p.cfg.OnCommand
		if on {
			next = p.cfg.OffCommand
		}
		if err := p.cmd.Run(ctx, next); err != nil {
			return bar.Hide(), err
		}
	default:
		if line, ok := p.cfg.Commands[verb]; ok {
			if err := p.cmd.Run(ctx, line); err != nil {
				return bar.Hide(), err
			}
		}
	}

	on, err := p.state(ctx)
	if err != nil {
		return bar.Hide(), err
	}
	if on != p.showOn {
		return bar.Hide(), nil
	}
	return bar.Show(bar.Block{
		FullText: p.cfg.Label,
		Color:    p.palette.Warning,
	}), nil
}

func (p *Producer) initialize(ctx context.Context) error {
	if p.cfg.AutoOffGlob != "" {
		matches, err := p.glob(p.cfg.AutoOffGlob)
		if err != nil {
			return fmt.Errorf("auto_off_glob: %w", err)
		}
		need := p.cfg.AutoOffMin
		if need <= 0 {
			need = 1
		}
		if len(matches) >= need {
			return p.cmd.Run(ctx, p.cfg.OffCommand)
		}
	}
	switch p.cfg.Init {
	case VerbOn:
		return p.cmd.Run(ctx, p.cfg.OnCommand)
	case VerbOff:
		return p.cmd.Run(ctx, p.cfg.OffCommand)
	}
	return nil
}

// state runs the query and reports whether the device is on.
func (p *Producer) state(ctx context.Context) (bool, error) {
	out, err := p.cmd.Output(ctx, p.query)
	if err != nil {
		return false, err
	}
	m := p.re.FindStringSubmatch(out)
	if m == nil {
		return false, fmt.Errorf("%s: output does not match %q", p.query[0], p.cfg.Pattern)
	}
	return m[p.re.SubexpIndex("state")] == p.cfg.OnValue, nil
}
