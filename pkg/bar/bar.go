// Package bar defines the display model shared by producers, the aggregator
// and the i3bar writer: a Block is one visible status segment, a Result is
// what a producer reports after an activation, and a Frame is the ordered set
// of visible blocks emitted to the bar host.
package bar

import (
	"fmt"
	"regexp"
	"slices"
)

// Block is one status-bar segment. Empty optional fields are omitted from the
// serialized object so a block with only FullText encodes as
// {"full_text":...,"name":...}.
type Block struct {
	FullText  string `json:"full_text"`
	ShortText string `json:"short_text,omitempty"`
	Color     string `json:"color,omitempty"`
	Urgent    bool   `json:"urgent,omitempty"`

	// Name is stamped by the aggregator from the producer's identity.
	Name string `json:"name"`

	// Instance distinguishes segments of a multi-segment producer (e.g. the
	// mountpoint of a disk block).
	Instance string `json:"instance,omitempty"`
}

// ResultKind tags what a producer activation produced.
type ResultKind int

const (
	// Unchanged means the producer has nothing new to report.
	Unchanged ResultKind = iota
	// Updated carries one or more blocks that replace the producer's slot.
	Updated
	// Hidden clears the producer's slot.
	Hidden
)

// String returns a human-readable representation of the kind.
func (k ResultKind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	case Hidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// Result is the outcome of one producer activation.
type Result struct {
	Kind   ResultKind
	Blocks []Block
}

// Show returns an Updated result. Show with no blocks is equivalent to Hide.
func Show(blocks ...Block) Result {
	if len(blocks) == 0 {
		return Hide()
	}
	return Result{Kind: Updated, Blocks: blocks}
}

// Hide returns a Hidden result.
func Hide() Result { return Result{Kind: Hidden} }

// NoChange returns an Unchanged result.
func NoChange() Result { return Result{Kind: Unchanged} }

// Equal reports whether two results would render identically.
func (r Result) Equal(o Result) bool {
	return r.Kind == o.Kind && slices.Equal(r.Blocks, o.Blocks)
}

// Frame is the ordered, visible-only projection of all producer slots.
type Frame []Block

// Equal reports whether two frames contain the same blocks in the same order.
func (f Frame) Equal(o Frame) bool { return slices.Equal(f, o) }

// Level is the severity band a reading falls into.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
)

// Palette maps severity levels to i3bar color tokens.
type Palette struct {
	Normal   string `toml:"normal" yaml:"normal"`
	Warning  string `toml:"warning" yaml:"warning"`
	Critical string `toml:"critical" yaml:"critical"`
}

// DefaultPalette returns the colors used when the configuration sets none.
func DefaultPalette() Palette {
	return Palette{
		Normal:   "#FFFFFF",
		Warning:  "#FFFF00",
		Critical: "#FF0000",
	}
}

// Color returns the color token for lvl.
func (p Palette) Color(lvl Level) string {
	switch lvl {
	case LevelWarning:
		return p.Warning
	case LevelCritical:
		return p.Critical
	default:
		return p.Normal
	}
}

var colorRE = regexp.MustCompile(`^#[0-9A-Fa-f]{6}([0-9A-Fa-f]{2})?$`)

// Validate checks that every non-empty color is a #RRGGBB or #RRGGBBAA token.
func (p Palette) Validate() error {
	for field, c := range map[string]string{
		"normal":   p.Normal,
		"warning":  p.Warning,
		"critical": p.Critical,
	} {
		if c != "" && !colorRE.MatchString(c) {
			return fmt.Errorf("color %s: invalid token %q", field, c)
		}
	}
	return nil
}
