// Package aggregate merges producer updates into the ordered frame the bar
// displays. The Aggregator is the only owner of the per-producer slots; it is
// fed exclusively through Update values.
package aggregate

import (
	"context"
	"log/slog"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers"
)

// EmitFunc receives every frame that differs from the previous one.
type EmitFunc func(bar.Frame) error

// Aggregator holds one slot per configured producer, indexed by identity.
type Aggregator struct {
	names  []string
	slots  [][]bar.Block
	last   bar.Frame
	logger *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the aggregator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New returns an aggregator for the producers named in output order. The
// index of each name is the identity its updates carry.
func New(names []string, opts ...Option) *Aggregator {
	a := &Aggregator{
		names:  names,
		slots:  make([][]bar.Block, len(names)),
		last:   bar.Frame{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply merges u and returns the new frame if it differs from the last one
// returned. Before the first visible block the frame is empty, so hides at
// startup never produce output.
func (a *Aggregator) Apply(u producers.Update) (bar.Frame, bool) {
	a.merge(u)
	return a.render()
}

// Frame returns the last rendered frame.
func (a *Aggregator) Frame() bar.Frame {
	return append(bar.Frame{}, a.last...)
}

// Run consumes updates until ctx is done or updates is closed, calling emit
// for every changed frame. Updates already queued are merged together before
// rendering so a burst (e.g. the initial activation of every producer) yields
// one frame. An emit error stops the loop and is returned.
func (a *Aggregator) Run(ctx context.Context, updates <-chan producers.Update, emit EmitFunc) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			a.merge(u)
			a.drain(updates)
			if frame, changed := a.render(); changed {
				if err := emit(frame); err != nil {
					return err
				}
			}
		}
	}
}

// drain merges every update that is immediately available.
func (a *Aggregator) drain(updates <-chan producers.Update) {
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			a.merge(u)
		default:
			return
		}
	}
}

func (a *Aggregator) merge(u producers.Update) {
	if u.ID < 0 || u.ID >= len(a.slots) {
		a.logger.Warn("update for unknown producer", "id", u.ID, "source", u.Source)
		return
	}
	switch u.Result.Kind {
	case bar.Unchanged:
	case bar.Hidden:
		a.slots[u.ID] = nil
	case bar.Updated:
		blocks := make([]bar.Block, len(u.Result.Blocks))
		for i, b := range u.Result.Blocks {
			b.Name = a.names[u.ID]
			blocks[i] = b
		}
		a.slots[u.ID] = blocks
	}
}

// render projects the slots into a frame and reports whether it changed.
func (a *Aggregator) render() (bar.Frame, bool) {
	frame := bar.Frame{}
	for _, blocks := range a.slots {
		frame = append(frame, blocks...)
	}
	if frame.Equal(a.last) {
		return nil, false
	}
	a.last = frame
	return append(bar.Frame{}, frame...), true
}
