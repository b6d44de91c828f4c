// Package clock provides the date/time producer.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/ncruces/go-strftime"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
)

const (
	DefaultFormat      = "%d-%m-%Y %H:%M"
	DefaultShortFormat = "%H:%M"
)

// Config controls a clock producer. Formats use strftime(3) directives.
type Config struct {
	Format      string `toml:"format" yaml:"format"`
	ShortFormat string `toml:"short_format" yaml:"short_format"`

	// Timezone is an IANA zone name; empty means local time.
	Timezone string `toml:"timezone" yaml:"timezone"`
}

// Validate checks that the timezone resolves.
func (c Config) Validate() error {
	if c.Timezone == "" {
		return nil
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// Producer renders the current time.
type Producer struct {
	name     string
	interval time.Duration
	format   string
	short    string
	loc      *time.Location
	now      func() time.Time
}

// New creates a clock producer. cfg must have passed Validate.
func New(name string, interval time.Duration, cfg Config) *Producer {
	p := &Producer{
		name:     name,
		interval: interval,
		format:   cfg.Format,
		short:    cfg.ShortFormat,
		loc:      time.Local,
		now:      time.Now,
	}
	if p.format == "" {
		p.format = DefaultFormat
	}
	if p.short == "" {
		p.short = DefaultShortFormat
	}
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			p.loc = loc
		}
	}
	return p
}

// Name returns the block name.
func (p *Producer) Name() string { return p.name }

// Interval returns the polling interval.
func (p *Producer) Interval() time.Duration { return p.interval }

// Activate formats the current time. Minute-resolution formats produce the
// same text for most activations; the runner suppresses those repeats.
func (p *Producer) Activate(context.Context, string) (bar.Result, error) {
	t := p.now().In(p.loc)
	return bar.Show(bar.Block{
		FullText:  strftime.Format(p.format, t),
		ShortText: strftime.Format(p.short, t),
	}), nil
}
