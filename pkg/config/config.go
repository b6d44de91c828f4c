// Package config provides TOML (and YAML) configuration for bar-pulse.
//
// A configuration names its blocks in output order and gives each block a
// kind plus the kind's own settings:
//
//	order = ["cpu", "root", "alsa", "date"]
//
//	[colors]
//	theme = "gruvbox"
//
//	[blocks.cpu]
//	kind = "temp"
//	interval = "5s"
//	source = "sensors"
//	temp_warning = 70
//	temp_critical = 85
//
//	[blocks.alsa]
//	kind = "volume"
//	interval = "0s"
//	on_click = { 4 = "up", 5 = "down", 1 = "mute" }
package config

import (
	"errors"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/battery"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/clock"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/disk"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/lockkeys"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/mpd"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/temp"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/toggle"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/volume"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/wireless"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/theme"
)

// ErrUnknownKind is returned for a block whose kind is not recognized.
var ErrUnknownKind = errors.New("unknown block kind")

// Config is the complete bar-pulse configuration.
type Config struct {
	// Order lists block names in output order. A block's index in Order is
	// its identity.
	Order []string `toml:"order" yaml:"order"`

	// Preset selects a built-in block set when the file defines no blocks.
	Preset string `toml:"preset" yaml:"preset"`

	General GeneralConfig `toml:"general" yaml:"general"`
	Output  OutputConfig  `toml:"output" yaml:"output"`
	Colors  ColorsConfig  `toml:"colors" yaml:"colors"`
	Command CommandConfig `toml:"command" yaml:"command"`

	// Blocks holds the decoded per-block settings, keyed by name.
	Blocks map[string]*Block `toml:"-" yaml:"-"`
}

// GeneralConfig holds process-wide settings.
type GeneralConfig struct {
	LogLevel string `toml:"log_level" yaml:"log_level"`
	LogFile  string `toml:"log_file" yaml:"log_file"`
	PIDFile  string `toml:"pid_file" yaml:"pid_file"`
}

// OutputConfig controls the i3bar stream.
type OutputConfig struct {
	ClickEvents bool `toml:"click_events" yaml:"click_events"`
}

// ColorsConfig selects the palette: a named or file-based theme, with any
// explicitly set color taking precedence.
type ColorsConfig struct {
	Theme     string `toml:"theme" yaml:"theme"`
	ThemeFile string `toml:"theme_file" yaml:"theme_file"`
	Normal    string `toml:"normal" yaml:"normal"`
	Warning   string `toml:"warning" yaml:"warning"`
	Critical  string `toml:"critical" yaml:"critical"`
}

// Palette resolves the theme and applies the explicit overrides.
func (c ColorsConfig) Palette() (bar.Palette, error) {
	var (
		t   theme.Theme
		err error
	)
	switch {
	case c.ThemeFile != "" && c.Theme != "":
		return bar.Palette{}, errors.New("theme and theme_file are mutually exclusive")
	case c.ThemeFile != "":
		t, err = theme.LoadFile(c.ThemeFile)
	case c.Theme != "":
		t, err = theme.Lookup(c.Theme)
	default:
		t, err = theme.Lookup(theme.DefaultName)
	}
	if err != nil {
		return bar.Palette{}, err
	}

	p := t.Palette()
	if c.Normal != "" {
		p.Normal = c.Normal
	}
	if c.Warning != "" {
		p.Warning = c.Warning
	}
	if c.Critical != "" {
		p.Critical = c.Critical
	}
	return p, p.Validate()
}

// CommandConfig controls the command channels.
type CommandConfig struct {
	FIFO      string `toml:"fifo" yaml:"fifo"`
	Socket    string `toml:"socket" yaml:"socket"`
	InboxSize int    `toml:"inbox_size" yaml:"inbox_size"`
}

// Kind names a producer implementation.
type Kind string

const (
	KindTemp     Kind = "temp"
	KindDisk     Kind = "disk"
	KindBattery  Kind = "battery"
	KindWireless Kind = "wireless"
	KindVolume   Kind = "volume"
	KindMPD      Kind = "mpd"
	KindToggle   Kind = "toggle"
	KindLockKeys Kind = "lockkeys"
	KindClock    Kind = "clock"
)

// Settings is a kind's typed configuration.
type Settings interface {
	Validate() error
}

// kindSpec describes one kind: a constructor for its settings pre-filled with
// defaults, the interval used when a block sets none, and whether it accepts
// routed commands.
type kindSpec struct {
	settings func() Settings
	interval time.Duration
	commands bool
}

var kinds = map[Kind]kindSpec{
	KindTemp: {
		settings: func() Settings { return &temp.Config{Source: temp.SourceSensors} },
		interval: 5 * time.Second,
	},
	KindDisk: {
		settings: func() Settings { return &disk.Config{} },
		interval: time.Minute,
	},
	KindBattery: {
		settings: func() Settings { return &battery.Config{} },
		interval: 10 * time.Second,
	},
	KindWireless: {
		settings: func() Settings { return &wireless.Config{} },
		interval: 5 * time.Second,
	},
	KindVolume: {
		settings: func() Settings { return &volume.Config{} },
		commands: true,
	},
	KindMPD: {
		settings: func() Settings { return &mpd.Config{} },
		interval: 2 * time.Second,
		commands: true,
	},
	KindToggle: {
		settings: func() Settings { return &toggle.Config{} },
		commands: true,
	},
	KindLockKeys: {
		settings: func() Settings { return &lockkeys.Config{} },
		interval: time.Second,
	},
	KindClock: {
		settings: func() Settings { return &clock.Config{} },
		interval: time.Second,
	},
}

// Commandable reports whether blocks of kind k accept routed commands.
func (k Kind) Commandable() bool { return kinds[k].commands }

// Known reports whether k is a recognized kind.
func (k Kind) Known() bool {
	_, ok := kinds[k]
	return ok
}

// Block is one configured status segment.
type Block struct {
	Name     string
	Kind     Kind
	Interval time.Duration

	// Route is the command target name. Empty for kinds that take no
	// commands.
	Route string

	// OnClick maps i3bar mouse buttons to verbs sent to Route.
	OnClick map[int]string

	// Settings is a pointer to the kind's Config type, e.g. *temp.Config.
	Settings Settings
}
