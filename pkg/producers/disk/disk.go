// Package disk provides the disk usage producer. It shows one segment per
// mountpoint whose usage crosses the configured percentage.
package disk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/threshold"
)

// AllMounts in Mountpoints enumerates every real partition.
const AllMounts = "*"

// Config controls a disk producer.
type Config struct {
	Mountpoints []string `toml:"mountpoints" yaml:"mountpoints"`

	// Percentage is the used-space percentage at which a mount appears.
	Percentage float64 `toml:"percentage" yaml:"percentage"`

	// HideBelow keeps a visible mount shown until usage falls under it.
	// Zero means Percentage.
	HideBelow float64 `toml:"hide_below" yaml:"hide_below"`
}

// Validate checks the thresholds and mountpoint list.
func (c Config) Validate() error {
	if len(c.Mountpoints) == 0 {
		return errors.New("disk block needs at least one mountpoint")
	}
	if c.Percentage <= 0 || c.Percentage > 100 {
		return fmt.Errorf("percentage %v out of range (0, 100]", c.Percentage)
	}
	if c.HideBelow < 0 || c.HideBelow > c.Percentage {
		return fmt.Errorf("hide_below %v must be between 0 and percentage %v", c.HideBelow, c.Percentage)
	}
	return nil
}

// Usage is the subset of a filesystem's statistics the producer renders.
type Usage struct {
	Free        uint64
	UsedPercent float64
}

// Producer reports disk usage for the configured mountpoints.
type Producer struct {
	name     string
	interval time.Duration
	cfg      Config
	palette  bar.Palette
	logger   *slog.Logger

	usage      func(ctx context.Context, mountpoint string) (Usage, error)
	partitions func(ctx context.Context) ([]string, error)

	mu      sync.Mutex
	latches map[string]*threshold.Latch
}

// Option configures a Producer.
type Option func(*Producer)

// WithLogger sets the logger used for mounts that fail to stat.
func WithLogger(l *slog.Logger) Option {
	return func(p *Producer) { p.logger = l }
}

// New creates a disk producer backed by gopsutil.
func New(name string, interval time.Duration, cfg Config, palette bar.Palette, opts ...Option) *Producer {
	p := &Producer{
		name:       name,
		interval:   interval,
		cfg:        cfg,
		palette:    palette,
		logger:     slog.Default(),
		usage:      gopsutilUsage,
		partitions: realPartitions,
		latches:    make(map[string]*threshold.Latch),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the block name.
func (p *Producer) Name() string { return p.name }

// Interval returns the polling interval.
func (p *Producer) Interval() time.Duration { return p.interval }

// Activate stats every mountpoint and returns a segment for each one above
// the threshold. Mounts that fail to stat are logged and skipped; the
// activation fails only when none could be read.
func (p *Producer) Activate(ctx context.Context, _ string) (bar.Result, error) {
	mounts, err := p.mountpoints(ctx)
	if err != nil {
		return bar.Hide(), fmt.Errorf("list partitions: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		blocks []bar.Block
		errs   []error
		read   int
	)
	for _, mp := range mounts {
		u, err := p.usage(ctx, mp)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", mp, err))
			p.latch(mp).Reset()
			continue
		}
		read++
		if !p.latch(mp).Observe(u.UsedPercent) {
			continue
		}
		blocks = append(blocks, bar.Block{
			FullText:  fmt.Sprintf("%s: %.0f%% %s", mp, u.UsedPercent, HumanSize(u.Free)),
			ShortText: fmt.Sprintf("%s: %.0f%%", shortName(mp), u.UsedPercent),
			Color:     p.palette.Warning,
			Urgent:    true,
			Instance:  mp,
		})
	}
	if len(errs) > 0 {
		if read == 0 {
			return bar.Hide(), errors.Join(errs...)
		}
		p.logger.Warn("skipping unreadable mounts", "block", p.name, "error", errors.Join(errs...))
	}
	return bar.Show(blocks...), nil
}

func (p *Producer) latch(mp string) *threshold.Latch {
	l, ok := p.latches[mp]
	if !ok {
		off := p.cfg.HideBelow
		if off == 0 {
			off = p.cfg.Percentage
		}
		l = threshold.New(p.cfg.Percentage, off)
		p.latches[mp] = l
	}
	return l
}

func (p *Producer) mountpoints(ctx context.Context) ([]string, error) {
	if !slices.Contains(p.cfg.Mountpoints, AllMounts) {
		return p.cfg.Mountpoints, nil
	}
	return p.partitions(ctx)
}

// shortName returns the last element of a mountpoint, or "/" for the root.
func shortName(mp string) string {
	base := path.Base(mp)
	if base == "." || base == "" {
		return mp
	}
	return base
}

var sizeSuffixes = []string{"B", "K", "M", "G", "T", "P"}

// HumanSize formats a byte count with one decimal and a binary suffix:
// 1<<30 becomes "1.0 G".
func HumanSize(b uint64) string {
	if b == 0 {
		return "0.0 B"
	}
	for i := len(sizeSuffixes) - 1; i >= 0; i-- {
		unit := uint64(1) << (10 * i)
		if b >= unit {
			return fmt.Sprintf("%.1f %s", float64(b)/float64(unit), sizeSuffixes[i])
		}
	}
	return fmt.Sprintf("%d B", b)
}

func gopsutilUsage(ctx context.Context, mountpoint string) (Usage, error) {
	u, err := disk.UsageWithContext(ctx, mountpoint)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Free: u.Free, UsedPercent: u.UsedPercent}, nil
}

func realPartitions(ctx context.Context) ([]string, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	var mounts []string
	for _, p := range parts {
		if isVirtualFS(p.Fstype) || slices.Contains(mounts, p.Mountpoint) {
			continue
		}
		mounts = append(mounts, p.Mountpoint)
	}
	return mounts, nil
}

// isVirtualFS returns true for filesystem types that do not represent real
// storage and should be skipped during enumeration.
func isVirtualFS(fstype string) bool {
	switch fstype {
	case "devfs", "devtmpfs", "tmpfs", "sysfs", "proc", "cgroup", "cgroup2",
		"autofs", "mqueue", "hugetlbfs", "debugfs", "tracefs", "securityfs",
		"pstore", "bpf", "fusectl", "configfs", "ramfs", "rpc_pipefs",
		"nfsd", "map", "devpts", "squashfs", "overlay":
		return true
	}
	return false
}
