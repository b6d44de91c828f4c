// Package temp provides the temperature producer. Readings come from one of a
// closed set of sources (hwmon files, gopsutil sensors, a GPU vendor tool or
// the hddtemp daemon) and are shown with warning/critical hysteresis.
package temp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/shell"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/threshold"
)

// ErrAsleep is returned by a source whose device is spun down and reports no
// temperature. The producer hides without treating it as a failure.
var ErrAsleep = errors.New("device asleep")

// SourceKind selects where readings come from.
type SourceKind string

const (
	SourceHwmon   SourceKind = "hwmon"
	SourceSensors SourceKind = "sensors"
	SourceGPU     SourceKind = "gpu"
	SourceHDDTemp SourceKind = "hddtemp"
)

// ShowAt values.
const (
	ShowAtWarning  = "warning"
	ShowAtCritical = "critical"
)

// Config controls a temperature producer.
type Config struct {
	Source SourceKind `toml:"source" yaml:"source"`

	// Label prefixes the displayed reading. Defaults to the block name.
	Label string `toml:"label" yaml:"label"`

	Warning  float64 `toml:"temp_warning" yaml:"temp_warning"`
	Critical float64 `toml:"temp_critical" yaml:"temp_critical"`

	// ShowAt is the level at which a hidden block appears: "warning"
	// (default) or "critical". Once visible it stays until the reading falls
	// below Warning.
	ShowAt string `toml:"show_at" yaml:"show_at"`

	// Files lists hwmon temperature files; the highest reading wins.
	Files []string `toml:"temp_files" yaml:"temp_files"`

	// Sensors lists gopsutil sensor key prefixes. Empty means all sensors.
	Sensors []string `toml:"sensors" yaml:"sensors"`

	// Vendor selects the GPU tool: catalyst, nvidia-settings or nvidia-smi.
	Vendor string `toml:"vendor" yaml:"vendor"`

	// Host, Port and Device address the hddtemp daemon.
	Host   string `toml:"host" yaml:"host"`
	Port   int    `toml:"port" yaml:"port"`
	Device string `toml:"device" yaml:"device"`
}

// Validate checks the fields required by the selected source.
func (c Config) Validate() error {
	if c.Critical < c.Warning {
		return fmt.Errorf("temp_critical (%v) below temp_warning (%v)", c.Critical, c.Warning)
	}
	switch c.ShowAt {
	case "", ShowAtWarning, ShowAtCritical:
	default:
		return fmt.Errorf("show_at %q: want %q or %q", c.ShowAt, ShowAtWarning, ShowAtCritical)
	}
	switch c.Source {
	case SourceHwmon:
		if len(c.Files) == 0 {
			return errors.New("hwmon source needs temp_files")
		}
	case SourceSensors:
	case SourceGPU:
		if _, err := ParseVendor(c.Vendor); err != nil {
			return err
		}
	case SourceHDDTemp:
		if c.Port < 0 || c.Port > 65535 {
			return fmt.Errorf("hddtemp port %d out of range", c.Port)
		}
	default:
		return fmt.Errorf("unknown temperature source %q", c.Source)
	}
	return nil
}

// Source yields one temperature reading in degrees Celsius.
type Source interface {
	Read(ctx context.Context) (float64, error)
}

// NewSource builds the Source variant selected by cfg.
func NewSource(cfg Config, cmd shell.Commander) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Source {
	case SourceHwmon:
		return NewHwmonSource(cfg.Files), nil
	case SourceSensors:
		return NewSensorsSource(cfg.Sensors), nil
	case SourceGPU:
		v, _ := ParseVendor(cfg.Vendor)
		return NewGPUSource(v, cmd), nil
	default:
		return NewHDDTempSource(cfg.Host, cfg.Port, cfg.Device), nil
	}
}

// Producer shows a temperature reading once it crosses the configured
// thresholds.
type Producer struct {
	name     string
	interval time.Duration
	label    string
	src      Source
	palette  bar.Palette
	bands    threshold.Bands

	mu      sync.Mutex
	visible *threshold.Latch
}

// New creates a temperature producer reading from src.
func New(name string, interval time.Duration, cfg Config, src Source, palette bar.Palette) *Producer {
	label := cfg.Label
	if label == "" {
		label = name
	}
	on := cfg.Warning
	if cfg.ShowAt == ShowAtCritical {
		on = cfg.Critical
	}
	return &Producer{
		name:     name,
		interval: interval,
		label:    label,
		src:      src,
		palette:  palette,
		bands:    threshold.Bands{Warning: cfg.Warning, Critical: cfg.Critical},
		visible:  threshold.New(on, cfg.Warning),
	}
}

// Name returns the block name.
func (p *Producer) Name() string { return p.name }

// Interval returns the polling interval.
func (p *Producer) Interval() time.Duration { return p.interval }

// Activate reads the source and applies the hysteresis rules.
func (p *Producer) Activate(ctx context.Context, _ string) (bar.Result, error) {
	t, err := p.src.Read(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if errors.Is(err, ErrAsleep) {
		p.visible.Reset()
		return bar.Hide(), nil
	}
	if err != nil {
		return bar.Hide(), fmt.Errorf("read temperature: %w", err)
	}

	if !p.visible.Observe(t) {
		return bar.Hide(), nil
	}

	// The latch releases below Warning, so lvl is at least LevelWarning here.
	lvl := p.bands.Level(t)
	return bar.Show(bar.Block{
		FullText:  fmt.Sprintf("%s: %.0fC", p.label, t),
		ShortText: fmt.Sprintf("%.0fC", t),
		Color:     p.palette.Color(lvl),
		Urgent:    lvl == bar.LevelCritical,
	}), nil
}
