// Package lockkeys provides a producer that lists the active Caps, Num and
// Scroll Lock keys as reported by `xset q`.
package lockkeys

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/shell"
)

const defaultQuery = "xset q"

var lockRE = regexp.MustCompile(`(Caps Lock|Num Lock|Scroll Lock):\s*(off|on)`)

// Config controls a lock-key producer.
type Config struct {
	// Query overrides the command that prints the keyboard state.
	Query string `toml:"query" yaml:"query"`
}

// Validate checks that an overridden query names a command.
func (c Config) Validate() error {
	if c.Query != "" && len(shell.Fields(c.Query)) == 0 {
		return errors.New("query is blank")
	}
	return nil
}

// Producer shows which lock keys are on and hides when none is.
type Producer struct {
	name     string
	interval time.Duration
	query    []string
	cmd      shell.Commander
	palette  bar.Palette
}

// New creates a lock-key producer.
func New(name string, interval time.Duration, cfg Config, cmd shell.Commander, palette bar.Palette) *Producer {
	q := cfg.Query
	if q == "" {
		q = defaultQuery
	}
	if cmd == nil {
		cmd = shell.Exec{}
	}
	return &Producer{
		name:     name,
		interval: interval,
		query:    shell.Fields(q),
		cmd:      cmd,
		palette:  palette,
	}
}

// Name returns the block name.
func (p *Producer) Name() string { return p.name }

// Interval returns the polling interval.
func (p *Producer) Interval() time.Duration { return p.interval }

// Activate queries the keyboard state.
func (p *Producer) Activate(ctx context.Context, _ string) (bar.Result, error) {
	out, err := p.cmd.Output(ctx, p.query)
	if err != nil {
		return bar.Hide(), err
	}
	keys := ActiveKeys(out)
	if len(keys) == 0 {
		return bar.Hide(), nil
	}
	return bar.Show(bar.Block{
		FullText: strings.Join(keys, " "),
		Color:    p.palette.Warning,
	}), nil
}

// ActiveKeys returns the lock keys reported as on, in output order.
func ActiveKeys(xsetOutput string) []string {
	var keys []string
	for _, m := range lockRE.FindAllStringSubmatch(xsetOutput, -1) {
		if m[2] == "on" {
			keys = append(keys, m[1])
		}
	}
	return keys
}
