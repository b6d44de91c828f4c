package config

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/command"
)

// Validate checks the configuration as a whole and reports every problem it
// finds.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Order) == 0 {
		errs = append(errs, errors.New("order: no blocks configured"))
	}
	seen := make(map[string]bool, len(c.Order))
	for _, name := range c.Order {
		if seen[name] {
			errs = append(errs, fmt.Errorf("order: %q listed twice", name))
			continue
		}
		seen[name] = true
		if _, ok := c.Blocks[name]; !ok {
			errs = append(errs, fmt.Errorf("order: %q has no [blocks.%s] table", name, name))
		}
	}
	for _, name := range sortedKeys(c.Blocks) {
		if !seen[name] {
			errs = append(errs, fmt.Errorf("block %q is not listed in order", name))
		}
	}

	routes := make(map[string]string)
	for _, name := range c.Order {
		b, ok := c.Blocks[name]
		if !ok {
			continue
		}
		if err := b.validate(); err != nil {
			errs = append(errs, fmt.Errorf("block %q: %w", name, err))
			continue
		}
		if b.Route == "" {
			continue
		}
		if other, dup := routes[b.Route]; dup {
			errs = append(errs, fmt.Errorf("block %q: %w: %q (also used by %q)", name, command.ErrDuplicateRoute, b.Route, other))
			continue
		}
		routes[b.Route] = name
	}

	if _, err := c.Colors.Palette(); err != nil {
		errs = append(errs, fmt.Errorf("colors: %w", err))
	}
	if c.Command.InboxSize < 0 {
		errs = append(errs, fmt.Errorf("command.inbox_size %d is negative", c.Command.InboxSize))
	}
	switch strings.ToLower(c.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("general.log_level %q: want debug, info, warn or error", c.General.LogLevel))
	}

	return errors.Join(errs...)
}

func (b *Block) validate() error {
	if !b.Kind.Known() {
		return fmt.Errorf("%w %q", ErrUnknownKind, b.Kind)
	}
	if b.Settings == nil {
		return errors.New("missing settings")
	}
	if err := b.Settings.Validate(); err != nil {
		return err
	}
	if b.Interval < 0 {
		return fmt.Errorf("interval %v is negative", b.Interval)
	}
	commandable := b.Kind.Commandable()
	if b.Interval == 0 && !commandable {
		return fmt.Errorf("%s blocks take no commands and need a non-zero interval", b.Kind)
	}
	if b.Route != "" {
		if !commandable {
			return fmt.Errorf("%s blocks take no commands; remove route", b.Kind)
		}
		if strings.ContainsAny(b.Route, ": \t\n") {
			return fmt.Errorf("route %q must not contain ':' or whitespace", b.Route)
		}
	}
	for button, verb := range b.OnClick {
		if button < 1 {
			return fmt.Errorf("on_click: invalid button %d", button)
		}
		if b.Route == "" {
			return errors.New("on_click needs a commandable block")
		}
		if verb == "" {
			return fmt.Errorf("on_click: button %d has no verb", button)
		}
	}
	return nil
}
