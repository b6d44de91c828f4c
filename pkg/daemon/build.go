// Package daemon assembles a bar-pulse engine from configuration and runs it:
// producers feed the runner, the aggregator renders frames to the i3bar
// writer, and commands arrive over the FIFO, the optional socket, and click
// events.
package daemon

import (
	"fmt"
	"io"
	"log/slog"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/command"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/config"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/i3bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/battery"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/clock"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/disk"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/lockkeys"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/mpd"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/shell"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/temp"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/toggle"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/volume"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/wireless"
)

// Options supplies the external dependencies of the built producers. Zero
// values select the real implementations.
type Options struct {
	Logger    *slog.Logger
	Commander shell.Commander
	MPDDial   mpd.Dialer
}

// clickBinding routes mouse buttons on one block to verbs.
type clickBinding struct {
	route   string
	buttons map[int]string
}

// Engine is a configured but not yet running bar.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *producers.Registry
	router   *command.Router
	clicks   map[string]clickBinding
	closers  []io.Closer
}

// Build creates every configured producer in order, registers it, and
// routes its inbox. cfg must have passed Validate.
func Build(cfg *config.Config, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts.Logger = logger
	if opts.Commander == nil {
		opts.Commander = shell.Exec{}
	}

	palette, err := cfg.Colors.Palette()
	if err != nil {
		return nil, fmt.Errorf("colors: %w", err)
	}

	inboxSize := cfg.Command.InboxSize
	if inboxSize == 0 {
		inboxSize = producers.DefaultInboxSize
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		registry: producers.NewRegistryWithInbox(inboxSize),
		router:   command.NewRouter(logger),
		clicks:   make(map[string]clickBinding),
	}

	for _, name := range cfg.Order {
		b, ok := cfg.Blocks[name]
		if !ok {
			return nil, fmt.Errorf("block %q: not configured", name)
		}
		p, err := newProducer(b, palette, opts)
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", name, err)
		}
		if _, err := e.registry.Register(p); err != nil {
			return nil, err
		}
		if c, ok := p.(io.Closer); ok {
			e.closers = append(e.closers, c)
		}

		if b.Route == "" {
			continue
		}
		inbox, _ := e.registry.Inbox(name)
		if err := e.router.Register(b.Route, inbox); err != nil {
			return nil, fmt.Errorf("block %q: %w", name, err)
		}
		if len(b.OnClick) > 0 {
			e.clicks[name] = clickBinding{route: b.Route, buttons: b.OnClick}
		}
	}

	return e, nil
}

// newProducer maps a block's typed settings to its producer.
func newProducer(b *config.Block, palette bar.Palette, opts Options) (producers.Producer, error) {
	switch s := b.Settings.(type) {
	case *temp.Config:
		src, err := temp.NewSource(*s, opts.Commander)
		if err != nil {
			return nil, err
		}
		return temp.New(b.Name, b.Interval, *s, src, palette), nil
	case *disk.Config:
		return disk.New(b.Name, b.Interval, *s, palette, disk.WithLogger(opts.Logger)), nil
	case *battery.Config:
		return battery.New(b.Name, b.Interval, *s, palette), nil
	case *wireless.Config:
		return wireless.New(b.Name, b.Interval, *s, palette), nil
	case *volume.Config:
		mixer := volume.NewAmixer(*s, opts.Commander)
		return volume.New(b.Name, b.Interval, *s, mixer, palette, volume.WithLogger(opts.Logger)), nil
	case *mpd.Config:
		return mpd.New(b.Name, b.Interval, *s, opts.MPDDial, palette), nil
	case *toggle.Config:
		return toggle.New(b.Name, b.Interval, *s, opts.Commander, palette), nil
	case *lockkeys.Config:
		return lockkeys.New(b.Name, b.Interval, *s, opts.Commander, palette), nil
	case *clock.Config:
		return clock.New(b.Name, b.Interval, *s), nil
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnknownKind, b.Kind)
	}
}

// Order returns the registered block names in output order.
func (e *Engine) Order() []string { return e.registry.List() }

// Routes returns the registered command targets.
func (e *Engine) Routes() []string { return e.router.Routes() }

// Verbs returns the verbs the named block accepts, or nil when it takes no
// commands.
func (e *Engine) Verbs(name string) []string {
	p, ok := e.registry.Get(name)
	if !ok {
		return nil
	}
	if c, ok := p.(producers.Commandable); ok {
		return c.Verbs()
	}
	return nil
}

// Status returns the runtime status of every producer.
func (e *Engine) Status() []producers.Status { return e.registry.AllStatus() }

// HandleClick dispatches the verb bound to the clicked block and button.
// It reports whether a command was queued.
func (e *Engine) HandleClick(ev i3bar.ClickEvent) bool {
	binding, ok := e.clicks[ev.Name]
	if !ok {
		return false
	}
	verb, ok := binding.buttons[ev.Button]
	if !ok {
		e.logger.Debug("unbound click", "block", ev.Name, "button", ev.Button)
		return false
	}
	return e.router.Send(command.Command{Target: binding.route, Verb: verb})
}

// Close releases producer resources such as MPD connections.
func (e *Engine) Close() error {
	var first error
	for _, c := range e.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
