// Package wireless provides the wireless producer, which shows the ESSID the
// configured interface is associated with, or a critical "disconnected"
// segment when it is not.
package wireless

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shirou/gopsutil/v4/net"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
)

// MaxESSIDLen is the longest ESSID the kernel reports.
const MaxESSIDLen = 32

// Config controls a wireless producer.
type Config struct {
	Interface string `toml:"interface" yaml:"interface"`
}

// Validate checks the interface name.
func (c Config) Validate() error {
	if c.Interface == "" {
		return errors.New("wireless block needs interface")
	}
	if len(c.Interface) >= 16 {
		return fmt.Errorf("interface name %q too long", c.Interface)
	}
	return nil
}

// Producer reports the association state of one wireless interface.
type Producer struct {
	name     string
	interval time.Duration
	iface    string
	palette  bar.Palette

	linkUp func(ctx context.Context, iface string) (bool, error)
	essid  func(iface string) (string, error)
}

// New creates a wireless producer.
func New(name string, interval time.Duration, cfg Config, palette bar.Palette) *Producer {
	return &Producer{
		name:     name,
		interval: interval,
		iface:    cfg.Interface,
		palette:  palette,
		linkUp:   interfaceUp,
		essid:    queryESSID,
	}
}

// Name returns the block name.
func (p *Producer) Name() string { return p.name }

// Interval returns the polling interval.
func (p *Producer) Interval() time.Duration { return p.interval }

// Activate checks the link and queries the ESSID. The block is always
// visible: either the network name or a disconnected marker.
func (p *Producer) Activate(ctx context.Context, _ string) (bar.Result, error) {
	up, err := p.linkUp(ctx, p.iface)
	if err != nil {
		return bar.Hide(), fmt.Errorf("list interfaces: %w", err)
	}
	if !up {
		return bar.Show(p.disconnected()), nil
	}

	essid, err := p.essid(p.iface)
	if err != nil {
		return bar.Hide(), fmt.Errorf("query essid of %s: %w", p.iface, err)
	}
	if essid == "" {
		return bar.Show(p.disconnected()), nil
	}
	return bar.Show(bar.Block{
		FullText:  essid,
		ShortText: essid,
		Color:     p.palette.Normal,
	}), nil
}

func (p *Producer) disconnected() bar.Block {
	return bar.Block{
		FullText:  p.iface + " disconnected",
		ShortText: p.iface + " D/C",
		Color:     p.palette.Critical,
		Urgent:    true,
	}
}

// interfaceUp reports whether iface exists and is administratively up. A
// missing interface (unplugged USB adapter) counts as down.
func interfaceUp(ctx context.Context, iface string) (bool, error) {
	ifaces, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return false, err
	}
	for _, i := range ifaces {
		if i.Name == iface {
			return slices.Contains(i.Flags, "up"), nil
		}
	}
	return false, nil
}
