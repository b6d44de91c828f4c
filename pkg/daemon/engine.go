package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/aggregate"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/command"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/i3bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers"
)

// Run drives the bar until ctx is cancelled or the output breaks. Frames are
// written to out; when click events are enabled they are read from in.
//
// Startup order: PID lock, FIFO, socket, header, producers. Everything is
// torn down in reverse before Run returns.
func (e *Engine) Run(ctx context.Context, out io.Writer, in io.Reader) error {
	pidPath := e.cfg.General.PIDFile
	if pidPath == "" {
		pidPath = DefaultPIDPath(e.cfg.Command.FIFO)
	}
	lock, err := AcquirePID(pidPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	fifo := command.NewFIFOListener(e.cfg.Command.FIFO, e.router, e.logger)
	if err := fifo.Open(); err != nil {
		return err
	}
	defer fifo.Close()

	if path := e.cfg.Command.Socket; path != "" {
		sock := command.NewSocketServer(path, e.router, func() any { return e.Status() }, e.logger)
		if err := sock.Start(); err != nil {
			return err
		}
		defer sock.Stop()
	}

	w := i3bar.NewWriter(out)
	if err := w.Start(i3bar.Header{
		Version:     i3bar.ProtocolVersion,
		ClickEvents: e.cfg.Output.ClickEvents,
	}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	updates := make(chan producers.Update, producers.DefaultUpdateBufferSize)
	runner := producers.NewRunner(e.registry, updates, producers.WithLogger(e.logger))
	agg := aggregate.New(e.registry.List(), aggregate.WithLogger(e.logger))

	g, gctx := errgroup.WithContext(ctx)
	if err := runner.Start(gctx); err != nil {
		return err
	}
	defer runner.Stop()

	g.Go(func() error {
		if err := agg.Run(gctx, updates, w.Emit); err != nil {
			return fmt.Errorf("emit frame: %w", err)
		}
		return nil
	})
	g.Go(func() error { return fifo.Serve(gctx) })

	// A blocked stdin read cannot be interrupted, so the click reader stays
	// outside the group and ends with the process.
	if e.cfg.Output.ClickEvents && in != nil {
		go func() {
			if err := i3bar.ReadClicks(gctx, in, e.logger, func(ev i3bar.ClickEvent) { e.HandleClick(ev) }); err != nil {
				e.logger.Warn("click events stopped", "error", err)
			}
		}()
	}

	e.logger.Info("bar running",
		"blocks", e.registry.Len(),
		"fifo", fifo.Path(),
		"routes", e.router.Routes(),
	)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	e.logger.Info("shutting down", "frames", w.Frames())
	return err
}

// ProbeResult is the outcome of one synchronous activation.
type ProbeResult struct {
	Name    string
	Result  bar.Result
	Err     error
	Latency time.Duration
}

// Probe activates every producer once, in order, without starting the bar.
// Nothing is written and no command channel is opened.
func (e *Engine) Probe(ctx context.Context) []ProbeResult {
	runner := producers.NewRunner(e.registry, nil, producers.WithLogger(e.logger))
	results := make([]ProbeResult, 0, e.registry.Len())
	for _, name := range e.registry.List() {
		res, err := runner.RunOnce(ctx, name, "")
		st, _ := e.registry.Status(name)
		results = append(results, ProbeResult{Name: name, Result: res, Err: err, Latency: st.LastLatency})
	}
	return results
}
