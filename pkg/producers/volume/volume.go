// Package volume provides the reactive mixer producer. It renders the volume
// of one mixer channel and changes it in response to routed verbs.
package volume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
)

// Verbs understood by the volume producer. "set N" takes an argument.
const (
	VerbUp     = "up"
	VerbDown   = "down"
	VerbMute   = "mute"
	VerbUnmute = "unmute"
	VerbSet    = "set"
)

const defaultStep = 5

// ErrBadLevel is returned for a "set" verb whose argument is not a number.
var ErrBadLevel = errors.New("bad volume level")

// Config controls a volume producer.
type Config struct {
	Channel string `toml:"channel" yaml:"channel"`
	Card    int    `toml:"card" yaml:"card"`
	Step    int    `toml:"step" yaml:"step"`
}

// Validate checks the step and card index.
func (c Config) Validate() error {
	if c.Step < 0 || c.Step > 100 {
		return fmt.Errorf("step %d out of range [0, 100]", c.Step)
	}
	if c.Card < 0 {
		return fmt.Errorf("card %d is negative", c.Card)
	}
	return nil
}

// Mixer reads and writes one mixer channel.
type Mixer interface {
	// Get returns the volume in percent and whether the channel is muted.
	Get(ctx context.Context) (volume int, muted bool, err error)
	SetVolume(ctx context.Context, volume int) error
	SetMute(ctx context.Context, muted bool) error
}

// Producer renders and controls a mixer channel.
type Producer struct {
	name     string
	interval time.Duration
	step     int
	mixer    Mixer
	palette  bar.Palette
	logger   *slog.Logger

	mu sync.Mutex
}

// Option configures a Producer.
type Option func(*Producer)

// WithLogger sets the logger used for rejected verbs.
func WithLogger(l *slog.Logger) Option {
	return func(p *Producer) { p.logger = l }
}

// New creates a volume producer. An interval of zero makes it purely
// reactive.
func New(name string, interval time.Duration, cfg Config, mixer Mixer, palette bar.Palette, opts ...Option) *Producer {
	step := cfg.Step
	if step == 0 {
		step = defaultStep
	}
	p := &Producer{
		name:     name,
		interval: interval,
		step:     step,
		mixer:    mixer,
		palette:  palette,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the block name.
func (p *Producer) Name() string { return p.name }

// Interval returns the polling interval.
func (p *Producer) Interval() time.Duration { return p.interval }

// Verbs lists the supported verbs.
func (p *Producer) Verbs() []string {
	return []string{VerbUp, VerbDown, VerbMute, VerbUnmute, VerbSet + " N"}
}

// Activate applies verb, if any, and renders the resulting mixer state.
// An unknown or malformed verb is logged and only re-renders. Only mixer
// failures hide the block.
func (p *Producer) Activate(ctx context.Context, verb string) (bar.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	vol, muted, err := p.mixer.Get(ctx)
	if err != nil {
		return bar.Hide(), fmt.Errorf("read mixer: %w", err)
	}

	if verb != "" {
		if err := p.apply(ctx, verb, vol, muted); err != nil {
			if !errors.Is(err, ErrBadLevel) {
				return bar.Hide(), err
			}
			p.logger.Warn("ignoring malformed verb", "block", p.name, "verb", verb, "error", err)
		}
		vol, muted, err = p.mixer.Get(ctx)
		if err != nil {
			return bar.Hide(), fmt.Errorf("read mixer: %w", err)
		}
	}

	color := p.palette.Normal
	if muted {
		color = p.palette.Critical
	}
	return bar.Show(bar.Block{
		FullText: fmt.Sprintf("♪:%3d%%", vol),
		Color:    color,
	}), nil
}

func (p *Producer) apply(ctx context.Context, verb string, vol int, muted bool) error {
	cmd, arg, _ := strings.Cut(verb, " ")
	switch cmd {
	case VerbUp:
		return p.setVolume(ctx, vol+p.step)
	case VerbDown:
		return p.setVolume(ctx, vol-p.step)
	case VerbMute:
		return p.setMute(ctx, !muted)
	case VerbUnmute:
		return p.setMute(ctx, false)
	case VerbSet:
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(arg), "%"))
		if err != nil {
			return fmt.Errorf("set volume: %w %q", ErrBadLevel, arg)
		}
		return p.setVolume(ctx, n)
	}
	return nil
}

func (p *Producer) setVolume(ctx context.Context, v int) error {
	if err := p.mixer.SetVolume(ctx, Clamp(v)); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	return nil
}

func (p *Producer) setMute(ctx context.Context, muted bool) error {
	if err := p.mixer.SetMute(ctx, muted); err != nil {
		return fmt.Errorf("set mute: %w", err)
	}
	return nil
}

// Clamp limits v to 0..100.
func Clamp(v int) int {
	return min(max(v, 0), 100)
}
