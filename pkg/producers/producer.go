// Package producers defines the interfaces, registry, and runner for bar-pulse
// status producers. Each producer (temperature, disk, battery, volume, ...)
// implements the Producer interface and is driven by a Runner that fans
// results into a single updates channel consumed by the aggregator.
package producers

import (
	"context"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
)

// Producer is the interface all status segments implement. Implementations
// live in sub-packages (e.g., pkg/producers/disk) and are registered with the
// Registry at startup, in configuration order.
type Producer interface {
	// Name returns the unique block name (e.g., "cpu_temp"). It becomes the
	// "name" field of every emitted block.
	Name() string

	// Activate performs one update cycle. verb is the routed command that
	// triggered the activation, or "" for a scheduled activation. A returned
	// error is treated as a transient failure: the runner logs it and hides
	// the block until the next successful activation.
	Activate(ctx context.Context, verb string) (bar.Result, error)

	// Interval returns the pause between scheduled activations. Zero selects
	// reactive mode: the producer only runs when a command arrives.
	Interval() time.Duration
}

// Commandable is implemented by producers that act on routed verbs.
type Commandable interface {
	Producer

	// Verbs lists the verbs the producer understands, for diagnostics.
	Verbs() []string
}

// Status tracks the runtime state of a single producer. The runner updates
// this after every activation.
type Status struct {
	Name        string        `json:"name"`
	ID          int           `json:"id"`
	Healthy     bool          `json:"healthy"`
	Visible     bool          `json:"visible"`
	LastRun     time.Time     `json:"last_run"`
	LastError   error         `json:"-"`
	LastErrText string        `json:"last_error,omitempty"`
	RunCount    int64         `json:"run_count"`
	ErrorCount  int64         `json:"error_count"`
	LastLatency time.Duration `json:"last_latency"`
}

// Update carries the result of a single activation from a producer goroutine
// to the aggregator.
type Update struct {
	ID        int
	Source    string
	Result    bar.Result
	Timestamp time.Time
	Error     error
}
