// Package battery provides the battery producer. It reads the kernel's
// power_supply sysfs attributes and shows the charge while the battery is
// charging or discharging.
package battery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/threshold"
)

const sysfsPowerSupply = "/sys/class/power_supply"

// Config controls a battery producer. Device fills in any of the four file
// paths left empty, e.g. device "BAT0" reads /sys/class/power_supply/BAT0/.
type Config struct {
	Device string `toml:"device" yaml:"device"`

	// Critical is the charge percentage below which the block turns urgent.
	Critical float64 `toml:"critical" yaml:"critical"`

	// Recover is how far above Critical the charge must climb before the
	// urgent state clears.
	Recover float64 `toml:"recover" yaml:"recover"`

	FilePresent string `toml:"battery_file_present" yaml:"battery_file_present"`
	FileStatus  string `toml:"battery_file_status" yaml:"battery_file_status"`
	FileFull    string `toml:"battery_file_full" yaml:"battery_file_full"`
	FileCharge  string `toml:"battery_file_charge" yaml:"battery_file_charge"`
}

// Validate checks that every file path can be resolved.
func (c Config) Validate() error {
	if c.Critical < 0 || c.Critical > 100 {
		return fmt.Errorf("critical %v out of range [0, 100]", c.Critical)
	}
	if c.Recover < 0 {
		return fmt.Errorf("recover %v is negative", c.Recover)
	}
	if c.Device != "" {
		return nil
	}
	if c.FilePresent == "" || c.FileStatus == "" || c.FileFull == "" || c.FileCharge == "" {
		return errors.New("battery block needs device or all four battery_file_* paths")
	}
	return nil
}

// withDefaults returns c with empty paths derived from Device.
func (c Config) withDefaults() Config {
	if c.Device == "" {
		return c
	}
	dir := filepath.Join(sysfsPowerSupply, c.Device)
	set := func(p *string, name string) {
		if *p == "" {
			*p = filepath.Join(dir, name)
		}
	}
	set(&c.FilePresent, "present")
	set(&c.FileStatus, "status")
	set(&c.FileFull, "energy_full")
	set(&c.FileCharge, "energy_now")
	return c
}

// Producer reports battery charge.
type Producer struct {
	name     string
	interval time.Duration
	cfg      Config
	palette  bar.Palette
	readFile func(string) ([]byte, error)

	mu  sync.Mutex
	low *threshold.Latch
}

// New creates a battery producer.
func New(name string, interval time.Duration, cfg Config, palette bar.Palette) *Producer {
	return &Producer{
		name:     name,
		interval: interval,
		cfg:      cfg.withDefaults(),
		palette:  palette,
		readFile: os.ReadFile,
		low:      threshold.NewFalling(cfg.Critical, cfg.Critical+cfg.Recover),
	}
}

// Name returns the block name.
func (p *Producer) Name() string { return p.name }

// Interval returns the polling interval.
func (p *Producer) Interval() time.Duration { return p.interval }

// Activate reads the sysfs attributes. A missing battery or a Full/Unknown
// status hides the block.
func (p *Producer) Activate(_ context.Context, _ string) (bar.Result, error) {
	present, err := p.read(p.cfg.FilePresent)
	if err != nil {
		return bar.Hide(), err
	}
	if present != "1" {
		return bar.Hide(), nil
	}

	status, err := p.read(p.cfg.FileStatus)
	if err != nil {
		return bar.Hide(), err
	}
	if status != "Charging" && status != "Discharging" {
		return bar.Hide(), nil
	}

	full, err := p.readInt(p.cfg.FileFull)
	if err != nil {
		return bar.Hide(), err
	}
	charge, err := p.readInt(p.cfg.FileCharge)
	if err != nil {
		return bar.Hide(), err
	}
	if full <= 0 {
		return bar.Hide(), fmt.Errorf("%s: full capacity is %d", p.cfg.FileFull, full)
	}
	pct := float64(charge) * 100 / float64(full)

	p.mu.Lock()
	urgent := p.low.Observe(pct)
	p.mu.Unlock()

	color := p.palette.Normal
	if urgent {
		color = p.palette.Critical
	}
	return bar.Show(bar.Block{
		FullText:  fmt.Sprintf("%s %.0f%%", status, pct),
		ShortText: fmt.Sprintf("%s %.0f%%", status[:1], pct),
		Color:     color,
		Urgent:    urgent,
	}), nil
}

func (p *Producer) read(path string) (string, error) {
	data, err := p.readFile(path)
	if err != nil {
		return "", fmt.Errorf("read battery attribute: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (p *Producer) readInt(path string) (int64, error) {
	s, err := p.read(path)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}
