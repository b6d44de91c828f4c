package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/command"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers"
)

const appName = "bar-pulse"

// Load reads configuration from the standard config path.
// Search order:
//  1. $XDG_CONFIG_HOME/bar-pulse/config.{toml,yaml,yml}
//  2. ~/.config/bar-pulse/config.{toml,yaml,yml}
//
// If no file exists, returns DefaultConfig().
func Load() (*Config, error) {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return LoadFromFile(p)
		}
	}
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	return cfg, cfg.Validate()
}

// LoadFromFile reads configuration from a specific file path. Files ending in
// .yaml or .yml are parsed as YAML, everything else as TOML.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = LoadYAML(f)
	default:
		cfg, err = LoadFromReader(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// blockHeader holds the keys every block shares, whatever its kind.
type blockHeader struct {
	Kind     Kind              `toml:"kind" yaml:"kind"`
	Interval *Duration         `toml:"interval" yaml:"interval"`
	Route    string            `toml:"route" yaml:"route"`
	OnClick  map[string]string `toml:"on_click" yaml:"on_click"`
}

type tomlFile struct {
	Order   []string                  `toml:"order"`
	Preset  string                    `toml:"preset"`
	General GeneralConfig             `toml:"general"`
	Output  OutputConfig              `toml:"output"`
	Colors  ColorsConfig              `toml:"colors"`
	Command CommandConfig             `toml:"command"`
	Blocks  map[string]toml.Primitive `toml:"blocks"`
}

// LoadFromReader reads TOML configuration from an io.Reader. Keys that no
// block kind understands are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	raw := tomlFile{
		General: cfg.General,
		Output:  cfg.Output,
		Colors:  cfg.Colors,
		Command: cfg.Command,
	}
	md, err := toml.NewDecoder(r).Decode(&raw)
	if err != nil {
		return nil, err
	}

	blocks := make(map[string]*Block, len(raw.Blocks))
	var errs []error
	for _, name := range sortedKeys(raw.Blocks) {
		prim := raw.Blocks[name]
		b, err := decodeBlock(name, func(v any) error { return md.PrimitiveDecode(prim, v) })
		if err != nil {
			errs = append(errs, err)
			continue
		}
		blocks[name] = b
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		errs = append(errs, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", ")))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return finish(cfg, raw.Order, raw.Preset, raw.General, raw.Output, raw.Colors, raw.Command, blocks)
}

type yamlFile struct {
	Order   []string             `yaml:"order"`
	Preset  string               `yaml:"preset"`
	General GeneralConfig        `yaml:"general"`
	Output  OutputConfig         `yaml:"output"`
	Colors  ColorsConfig         `yaml:"colors"`
	Command CommandConfig        `yaml:"command"`
	Blocks  map[string]yaml.Node `yaml:"blocks"`
}

// LoadYAML reads YAML configuration with the same schema as the TOML form.
func LoadYAML(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	raw := yamlFile{
		General: cfg.General,
		Output:  cfg.Output,
		Colors:  cfg.Colors,
		Command: cfg.Command,
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
	}

	blocks := make(map[string]*Block, len(raw.Blocks))
	var errs []error
	for _, name := range sortedKeys(raw.Blocks) {
		node := raw.Blocks[name]
		b, err := decodeBlock(name, node.Decode)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if unknown := unknownYAMLKeys(&node, blockHeader{}, b.Settings); len(unknown) > 0 {
			for i, k := range unknown {
				unknown[i] = "blocks." + name + "." + k
			}
			errs = append(errs, fmt.Errorf("unknown keys: %s", strings.Join(unknown, ", ")))
			continue
		}
		blocks[name] = b
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return finish(cfg, raw.Order, raw.Preset, raw.General, raw.Output, raw.Colors, raw.Command, blocks)
}

// unknownYAMLKeys returns the keys of a block mapping that none of the
// given structs declares. A block is decoded into several structs, so the
// decoder's KnownFields cannot be used.
func unknownYAMLKeys(node *yaml.Node, targets ...any) []string {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	known := make(map[string]bool)
	for _, t := range targets {
		yamlFieldNames(reflect.TypeOf(t), known)
	}
	var unknown []string
	for i := 0; i+1 < len(node.Content); i += 2 {
		if key := node.Content[i].Value; !known[key] {
			unknown = append(unknown, key)
		}
	}
	return unknown
}

// yamlFieldNames adds the keys yaml.v3 maps onto struct type t.
func yamlFieldNames(t reflect.Type, into map[string]bool) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			continue
		}
		if strings.Contains(opts, "inline") {
			yamlFieldNames(f.Type, into)
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		into[name] = true
	}
}

// decodeBlock decodes the shared header, then the kind's settings, from the
// same source.
func decodeBlock(name string, decode func(any) error) (*Block, error) {
	var h blockHeader
	if err := decode(&h); err != nil {
		return nil, fmt.Errorf("block %q: %w", name, err)
	}
	spec, ok := kinds[h.Kind]
	if !ok {
		return nil, fmt.Errorf("block %q: %w %q", name, ErrUnknownKind, h.Kind)
	}

	settings := spec.settings()
	if err := decode(settings); err != nil {
		return nil, fmt.Errorf("block %q: %w", name, err)
	}

	b := &Block{
		Name:     name,
		Kind:     h.Kind,
		Interval: spec.interval,
		Route:    strings.ToLower(strings.TrimSpace(h.Route)),
		Settings: settings,
	}
	if h.Interval != nil {
		b.Interval = h.Interval.Duration
	}
	if b.Route == "" && spec.commands {
		b.Route = strings.ToLower(name)
	}
	if len(h.OnClick) > 0 {
		b.OnClick = make(map[int]string, len(h.OnClick))
		for key, verb := range h.OnClick {
			button, err := strconv.Atoi(key)
			if err != nil || button < 1 {
				return nil, fmt.Errorf("block %q: on_click: invalid button %q", name, key)
			}
			b.OnClick[button] = strings.ToLower(strings.TrimSpace(verb))
		}
	}
	return b, nil
}

// finish merges the decoded sections into cfg. A file that defines blocks
// replaces the built-in ones; otherwise preset picks them.
func finish(cfg *Config, order []string, preset string, general GeneralConfig, output OutputConfig, colors ColorsConfig, cmd CommandConfig, blocks map[string]*Block) (*Config, error) {
	cfg.General = general
	cfg.Output = output
	cfg.Colors = colors
	cfg.Command = cmd
	switch {
	case len(blocks) > 0:
		if preset != "" {
			return nil, errors.New("preset and blocks are mutually exclusive")
		}
		cfg.Preset = ""
		cfg.Blocks = blocks
		cfg.Order = order
	case preset != "":
		if !slices.Contains(Presets, preset) {
			return nil, fmt.Errorf("unknown preset %q", preset)
		}
		cfg.Preset = preset
		cfg.Order, cfg.Blocks = Preset(preset)
		if order != nil {
			cfg.Order = order
		}
	case order != nil:
		cfg.Order = order
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the default configuration: the minimal preset, the
// default theme, and a fifo under the user's runtime directory.
func DefaultConfig() *Config {
	cfg := &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Command: CommandConfig{
			FIFO:      command.DefaultFIFOPath(),
			InboxSize: producers.DefaultInboxSize,
		},
	}
	cfg.Preset = PresetMinimal
	cfg.Order, cfg.Blocks = Preset(PresetMinimal)
	return cfg
}

// applyEnvOverrides checks environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BAR_PULSE_FIFO"); v != "" {
		cfg.Command.FIFO = v
	}
	if v := os.Getenv("BAR_PULSE_LOG_LEVEL"); v != "" {
		cfg.General.LogLevel = v
	}
}

// configSearchPaths returns the ordered list of config file paths to try.
func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	var dirs []string

	xdg := xdgConfigHome(home)
	dirs = append(dirs, filepath.Join(xdg, appName))

	// If XDG_CONFIG_HOME was explicitly set, also try the fallback default.
	defaultXDG := filepath.Join(home, ".config")
	if xdg != defaultXDG {
		dirs = append(dirs, filepath.Join(defaultXDG, appName))
	}

	var paths []string
	for _, d := range dirs {
		for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
			paths = append(paths, filepath.Join(d, name))
		}
	}
	return paths
}

// xdgConfigHome returns XDG_CONFIG_HOME or ~/.config as fallback.
func xdgConfigHome(home string) string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".config")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
