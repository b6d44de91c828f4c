package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/command"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/clock"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/temp"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/volume"
)

const sampleTOML = `
order = ["cpu", "alsa", "date"]

[general]
log_level = "debug"

[output]
click_events = true

[colors]
warning = "#FFA500"

[blocks.cpu]
kind = "temp"
source = "hwmon"
temp_files = ["/sys/class/hwmon/hwmon0/temp1_input"]
temp_warning = 60
temp_critical = 70

[blocks.alsa]
kind = "volume"
interval = "0s"
channel = "PCM"
on_click = { 1 = "mute", 4 = "Up", 5 = "down" }

[blocks.date]
kind = "clock"
interval = "30s"
format = "%H:%M:%S"
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(sampleTOML))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}

	if diff := cmp.Diff([]string{"cpu", "alsa", "date"}, cfg.Order); diff != "" {
		t.Errorf("Order mismatch (-want +got):\n%s", diff)
	}
	if cfg.General.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.General.LogLevel)
	}
	if !cfg.Output.ClickEvents {
		t.Error("ClickEvents should be true")
	}
	pal, err := cfg.Colors.Palette()
	if err != nil {
		t.Fatalf("Palette failed: %v", err)
	}
	if pal.Warning != "#FFA500" || pal.Critical != "#FF0000" {
		t.Errorf("palette = %+v, want overridden warning and default critical", pal)
	}

	cpu := cfg.Blocks["cpu"]
	if cpu.Kind != KindTemp || cpu.Interval != 5*time.Second || cpu.Route != "" {
		t.Errorf("cpu = %+v", cpu)
	}
	want := &temp.Config{
		Source:   temp.SourceHwmon,
		Files:    []string{"/sys/class/hwmon/hwmon0/temp1_input"},
		Warning:  60,
		Critical: 70,
	}
	if diff := cmp.Diff(want, cpu.Settings); diff != "" {
		t.Errorf("cpu settings mismatch (-want +got):\n%s", diff)
	}

	alsa := cfg.Blocks["alsa"]
	if alsa.Interval != 0 || alsa.Route != "alsa" {
		t.Errorf("alsa interval=%v route=%q", alsa.Interval, alsa.Route)
	}
	if diff := cmp.Diff(map[int]string{1: "mute", 4: "up", 5: "down"}, alsa.OnClick); diff != "" {
		t.Errorf("on_click mismatch (-want +got):\n%s", diff)
	}
	if vc, ok := alsa.Settings.(*volume.Config); !ok || vc.Channel != "PCM" {
		t.Errorf("alsa settings = %#v", alsa.Settings)
	}

	date := cfg.Blocks["date"]
	if date.Interval != 30*time.Second {
		t.Errorf("date interval = %v", date.Interval)
	}
	if cc, ok := date.Settings.(*clock.Config); !ok || cc.Format != "%H:%M:%S" {
		t.Errorf("date settings = %#v", date.Settings)
	}

	if alsa.Route != "alsa" {
		t.Errorf("alsa route = %q, want alsa", alsa.Route)
	}
}

func TestLoadYAMLMatchesTOML(t *testing.T) {
	yamlSrc := `
order: [cpu, alsa, date]
general:
  log_level: debug
output:
  click_events: true
colors:
  warning: "#FFA500"
blocks:
  cpu:
    kind: temp
    source: hwmon
    temp_files: [/sys/class/hwmon/hwmon0/temp1_input]
    temp_warning: 60
    temp_critical: 70
  alsa:
    kind: volume
    interval: 0s
    channel: PCM
    on_click: {1: mute, 4: Up, 5: down}
  date:
    kind: clock
    interval: 30s
    format: "%H:%M:%S"
`
	fromYAML, err := LoadYAML(strings.NewReader(yamlSrc))
	if err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}
	fromTOML, err := LoadFromReader(strings.NewReader(sampleTOML))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if diff := cmp.Diff(fromTOML, fromYAML); diff != "" {
		t.Errorf("YAML and TOML differ (-toml +yaml):\n%s", diff)
	}
}

func TestLoadYAMLRejectsUnknownKeys(t *testing.T) {
	src := `
order: [cpu]
blocks:
  cpu:
    kind: temp
    source: hwmon
    temp_files: [/sys/class/hwmon/hwmon0/temp1_input]
    temp_warnng: 60
    temp_critical: 70
`
	_, err := LoadYAML(strings.NewReader(src))
	if err == nil || !strings.Contains(err.Error(), "blocks.cpu.temp_warnng") {
		t.Errorf("err = %v, want unknown key blocks.cpu.temp_warnng", err)
	}
}

func TestValidateNegativeInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Order = []string{"date"}
	cfg.Blocks = map[string]*Block{
		"date": {Name: "date", Kind: KindClock, Interval: -time.Second, Settings: &clock.Config{}},
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "negative") {
		t.Errorf("err = %v, want negative interval rejected", err)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
		wantMsg string
	}{
		{
			name:    "unknown kind",
			src:     "order = [\"x\"]\n[blocks.x]\nkind = \"weather\"\n",
			wantErr: ErrUnknownKind,
		},
		{
			name:    "unknown key",
			src:     "order = [\"d\"]\n[blocks.d]\nkind = \"clock\"\ncolour = \"red\"\n",
			wantMsg: "blocks.d.colour",
		},
		{
			name:    "order names missing block",
			src:     "order = [\"d\", \"ghost\"]\n[blocks.d]\nkind = \"clock\"\n",
			wantMsg: `"ghost" has no`,
		},
		{
			name:    "block not in order",
			src:     "order = [\"d\"]\n[blocks.d]\nkind = \"clock\"\n[blocks.e]\nkind = \"clock\"\n",
			wantMsg: `"e" is not listed`,
		},
		{
			name:    "duplicate order",
			src:     "order = [\"d\", \"d\"]\n[blocks.d]\nkind = \"clock\"\n",
			wantMsg: "listed twice",
		},
		{
			name: "duplicate route",
			src: "order = [\"a\", \"b\"]\n" +
				"[blocks.a]\nkind = \"volume\"\nroute = \"snd\"\n" +
				"[blocks.b]\nkind = \"volume\"\nroute = \"SND\"\n",
			wantErr: command.ErrDuplicateRoute,
		},
		{
			name:    "route on passive kind",
			src:     "order = [\"d\"]\n[blocks.d]\nkind = \"clock\"\nroute = \"d\"\n",
			wantMsg: "take no commands",
		},
		{
			name:    "reactive passive kind",
			src:     "order = [\"d\"]\n[blocks.d]\nkind = \"clock\"\ninterval = \"0s\"\n",
			wantMsg: "non-zero interval",
		},
		{
			name:    "bad button",
			src:     "order = [\"a\"]\n[blocks.a]\nkind = \"volume\"\non_click = { left = \"mute\" }\n",
			wantMsg: "invalid button",
		},
		{
			name:    "settings rejected",
			src:     "order = [\"a\"]\n[blocks.a]\nkind = \"volume\"\nstep = 500\n",
			wantMsg: "step 500",
		},
		{
			name:    "bad duration",
			src:     "order = [\"d\"]\n[blocks.d]\nkind = \"clock\"\ninterval = \"soon\"\n",
			wantMsg: "invalid duration",
		},
		{
			name:    "bad color",
			src:     "[colors]\ncritical = \"red\"\n",
			wantMsg: "colors",
		},
		{
			name:    "bad log level",
			src:     "[general]\nlog_level = \"trace\"\n",
			wantMsg: "log_level",
		},
		{
			name:    "unknown preset",
			src:     "preset = \"server\"\n",
			wantMsg: "unknown preset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestColorsTheme(t *testing.T) {
	tests := []struct {
		name    string
		colors  ColorsConfig
		want    bar.Palette
		wantErr bool
	}{
		{"default", ColorsConfig{}, bar.DefaultPalette(), false},
		{"named", ColorsConfig{Theme: "nord"}, bar.Palette{Normal: "#eceff4", Warning: "#ebcb8b", Critical: "#bf616a"}, false},
		{"override", ColorsConfig{Theme: "nord", Critical: "#FF0000"}, bar.Palette{Normal: "#eceff4", Warning: "#ebcb8b", Critical: "#FF0000"}, false},
		{"unknown theme", ColorsConfig{Theme: "vaporwave"}, bar.Palette{}, true},
		{"both sources", ColorsConfig{Theme: "nord", ThemeFile: "/x.toml"}, bar.Palette{}, true},
		{"bad override", ColorsConfig{Normal: "white"}, bar.Palette{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.colors.Palette()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Palette() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("palette mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestColorsThemeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "theme.toml")
	if err := os.WriteFile(path, []byte("name = \"mine\"\nwarning = \"#123456\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromReader(strings.NewReader("[colors]\ntheme_file = \"" + path + "\"\n"))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	pal, _ := cfg.Colors.Palette()
	if pal.Warning != "#123456" {
		t.Errorf("warning = %q, want theme file color", pal.Warning)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Order = append(cfg.Order, "ghost", "ghost")
	cfg.General.LogLevel = "loud"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, msg := range []string{"ghost", "listed twice", "loud"} {
		if !strings.Contains(err.Error(), msg) {
			t.Errorf("error %q should mention %q", err, msg)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if diff := cmp.Diff([]string{"date"}, cfg.Order); diff != "" {
		t.Errorf("Order mismatch (-want +got):\n%s", diff)
	}
	if cfg.Command.FIFO == "" {
		t.Error("FIFO path should default to the runtime directory")
	}
}

func TestEmptyFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if cfg.Preset != PresetMinimal || len(cfg.Blocks) != 1 {
		t.Errorf("preset=%q blocks=%d, want minimal with one block", cfg.Preset, len(cfg.Blocks))
	}
}

func TestPresets(t *testing.T) {
	for _, name := range Presets {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadFromReader(strings.NewReader("preset = \"" + name + "\"\n"))
			if err != nil {
				t.Fatalf("preset %s invalid: %v", name, err)
			}
			if len(cfg.Order) != len(cfg.Blocks) {
				t.Errorf("order has %d names for %d blocks", len(cfg.Order), len(cfg.Blocks))
			}
		})
	}
}

func TestPresetOrderOverride(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("preset = \"laptop\"\norder = [\"bat\", \"cpu\", \"root\", \"wifi\", \"keys\", \"alsa\", \"date\"]\n"))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if cfg.Order[0] != "bat" {
		t.Errorf("Order[0] = %q, want bat", cfg.Order[0])
	}
}

func TestPresetWithBlocksRejected(t *testing.T) {
	src := "preset = \"laptop\"\norder = [\"d\"]\n[blocks.d]\nkind = \"clock\"\n"
	if _, err := LoadFromReader(strings.NewReader(src)); err == nil {
		t.Error("preset plus blocks should be rejected")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BAR_PULSE_FIFO", "/tmp/custom.fifo")
	t.Setenv("BAR_PULSE_LOG_LEVEL", "warn")

	cfg, err := LoadFromReader(strings.NewReader("[command]\nfifo = \"/tmp/file.fifo\"\n"))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if cfg.Command.FIFO != "/tmp/custom.fifo" {
		t.Errorf("FIFO = %q, want env override", cfg.Command.FIFO)
	}
	if cfg.General.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.General.LogLevel)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	tomlPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(tomlPath, []byte(sampleTOML), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(tomlPath); err != nil {
		t.Errorf("toml: %v", err)
	}

	yamlPath := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(yamlPath, []byte("preset: desktop\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(yamlPath)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if cfg.Preset != PresetDesktop {
		t.Errorf("Preset = %q, want desktop", cfg.Preset)
	}

	if _, err := LoadFromFile(filepath.Join(dir, "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v, want ErrNotExist", err)
	}
}

func TestLoadSearchPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(filepath.Join(dir, appName), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, appName, "config.yaml")
	if err := os.WriteFile(path, []byte("preset: laptop\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Preset != PresetLaptop {
		t.Errorf("Preset = %q, want laptop", cfg.Preset)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"500ms", 500 * time.Millisecond, false},
		{"5m", 5 * time.Minute, false},
		{"-1s", 0, true},
		{"later", 0, true},
	}
	for _, tt := range tests {
		var d Duration
		err := d.UnmarshalText([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("UnmarshalText(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if d.Duration != tt.want {
			t.Errorf("UnmarshalText(%q) = %v, want %v", tt.in, d.Duration, tt.want)
		}
	}
}
