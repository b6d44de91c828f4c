// Package theme holds named color schemes for the bar. A theme supplies the
// three palette colors producers use: normal text, warning, and critical.
package theme

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
)

// DefaultName is the theme matching i3bar's traditional white/yellow/red.
const DefaultName = "default"

// ErrUnknownTheme is returned by Lookup for names that are not registered.
var ErrUnknownTheme = errors.New("unknown theme")

// Theme is a named bar palette.
type Theme struct {
	Name     string `toml:"name"`
	Normal   string `toml:"normal"`
	Warning  string `toml:"warning"`
	Critical string `toml:"critical"`
}

// Palette converts the theme to a bar palette.
func (t Theme) Palette() bar.Palette {
	return bar.Palette{Normal: t.Normal, Warning: t.Warning, Critical: t.Critical}
}

var (
	mu       sync.RWMutex
	registry = map[string]Theme{}
)

func init() {
	for _, t := range builtins() {
		register(t)
	}
}

// Lookup returns a registered theme by name, case-insensitively.
func Lookup(name string) (Theme, error) {
	mu.RLock()
	defer mu.RUnlock()
	if t, ok := registry[strings.ToLower(name)]; ok {
		return t, nil
	}
	return Theme{}, fmt.Errorf("%w %q", ErrUnknownTheme, name)
}

// Names returns all available theme names sorted alphabetically.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFile reads a theme from a TOML file:
//
//	name = "solarized"
//	normal = "#839496"
//	warning = "#b58900"
//	critical = "#dc322f"
//
// Missing colors are taken from the default theme.
func LoadFile(path string) (Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Theme{}, fmt.Errorf("theme: %w", err)
	}
	return Parse(data)
}

// Parse decodes a TOML theme definition.
func Parse(data []byte) (Theme, error) {
	var t Theme
	if err := toml.Unmarshal(data, &t); err != nil {
		return Theme{}, fmt.Errorf("theme: parse TOML: %w", err)
	}
	def := defaultTheme()
	if t.Normal == "" {
		t.Normal = def.Normal
	}
	if t.Warning == "" {
		t.Warning = def.Warning
	}
	if t.Critical == "" {
		t.Critical = def.Critical
	}
	if err := t.Palette().Validate(); err != nil {
		return Theme{}, fmt.Errorf("theme %q: %w", t.Name, err)
	}
	return t, nil
}

func register(t Theme) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(t.Name)] = t
}
