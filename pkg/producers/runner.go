package producers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
)

// DefaultUpdateBufferSize is the recommended capacity of the updates channel
// handed to NewRunner.
const DefaultUpdateBufferSize = 64

// DefaultActivationTimeout bounds a single activation so a hung device or
// daemon cannot wedge its producer forever.
const DefaultActivationTimeout = 10 * time.Second

// errAlreadyStarted is returned by Start when called twice.
var errAlreadyStarted = errors.New("runner already started")

// Runner drives every registered producer on its own goroutine. Interval
// producers are activated, then paused for their interval; reactive producers
// (interval 0) block on their inbox. Every producer is also activated once at
// start so reactive blocks show their initial state.
type Runner struct {
	registry *Registry
	updates  chan<- Update
	logger   *slog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers map[string]*worker
}

// worker holds the per-producer publish state. mu serializes activations so a
// producer's device read-modify-write never runs concurrently with itself.
type worker struct {
	e  *entry
	mu sync.Mutex

	// blanked is true while the aggregator holds no visible state for this
	// producer. It starts true: nothing has been shown yet.
	blanked bool
	last    bar.Result
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithActivationTimeout bounds each activation. Zero disables the bound.
func WithActivationTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

// NewRunner creates a runner that publishes to updates. The caller owns the
// channel and must keep draining it while the runner is active.
func NewRunner(reg *Registry, updates chan<- Update, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: reg,
		updates:  updates,
		logger:   slog.Default(),
		timeout:  DefaultActivationTimeout,
		workers:  make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches one goroutine per registered producer. It returns
// immediately; producers run until ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return errAlreadyStarted
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	for _, e := range r.registry.snapshot() {
		w := r.workerLocked(e)
		r.wg.Add(1)
		go r.loop(ctx, w)
	}
	return nil
}

// Stop cancels all producer goroutines and waits for them to exit. It is safe
// to call multiple times.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// RunOnce activates the named producer synchronously and returns its result
// without publishing it. Status is updated as for a scheduled activation.
func (r *Runner) RunOnce(ctx context.Context, name, verb string) (bar.Result, error) {
	e, ok := r.registry.lookup(name)
	if !ok {
		return bar.Result{}, fmt.Errorf("producer %q not registered", name)
	}

	r.mu.Lock()
	w := r.workerLocked(e)
	r.mu.Unlock()

	return r.activate(ctx, w, verb)
}

// workerLocked returns the worker for e, creating it on first use. Caller
// must hold r.mu.
func (r *Runner) workerLocked(e *entry) *worker {
	name := e.producer.Name()
	w, ok := r.workers[name]
	if !ok {
		w = &worker{e: e, blanked: true}
		r.workers[name] = w
	}
	return w
}

// loop is the per-producer scheduling loop.
func (r *Runner) loop(ctx context.Context, w *worker) {
	defer r.wg.Done()

	r.step(ctx, w, "")

	interval := w.e.producer.Interval()
	var timer *time.Timer
	var tick <-chan time.Time
	if interval > 0 {
		timer = time.NewTimer(interval)
		defer timer.Stop()
		tick = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			r.step(ctx, w, "")
			timer.Reset(interval)
		case verb := <-w.e.inbox.C():
			r.step(ctx, w, verb)
		}
	}
}

// step runs one activation and publishes its result.
func (r *Runner) step(ctx context.Context, w *worker, verb string) {
	res, err := r.activate(ctx, w, verb)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		r.logger.Warn("producer activation failed",
			"producer", w.e.producer.Name(),
			"verb", verb,
			"error", err)
		res = bar.Hide()
	}
	r.publish(ctx, w, res, err)
}

// activate calls the producer under its worker lock, recovering panics and
// recording status.
func (r *Runner) activate(ctx context.Context, w *worker, verb string) (res bar.Result, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	actx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	name := w.e.producer.Name()
	start := time.Now()
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("producer %s panicked: %v", name, p)
			}
		}()
		res, err = w.e.producer.Activate(actx, verb)
	}()
	latency := time.Since(start)

	r.registry.updateStatus(name, func(s *Status) {
		s.RunCount++
		s.LastRun = start
		s.LastLatency = latency
		if err != nil {
			s.ErrorCount++
			s.LastError = err
			s.LastErrText = err.Error()
			s.Healthy = false
			return
		}
		s.LastError = nil
		s.LastErrText = ""
		s.Healthy = true
	})
	return res, err
}

// publish forwards res to the aggregator unless it would not change what the
// aggregator already holds for this producer: unchanged results, a repeat of
// the last visible state, and a hide while already hidden are all dropped.
func (r *Runner) publish(ctx context.Context, w *worker, res bar.Result, err error) {
	w.mu.Lock()
	switch res.Kind {
	case bar.Unchanged:
		w.mu.Unlock()
		return
	case bar.Hidden:
		if w.blanked {
			w.mu.Unlock()
			return
		}
		w.blanked = true
		w.last = res
	case bar.Updated:
		if !w.blanked && w.last.Equal(res) {
			w.mu.Unlock()
			return
		}
		w.blanked = false
		w.last = res
	}
	visible := !w.blanked
	w.mu.Unlock()

	name := w.e.producer.Name()
	r.registry.updateStatus(name, func(s *Status) { s.Visible = visible })

	u := Update{
		ID:        w.e.id,
		Source:    name,
		Result:    res,
		Timestamp: time.Now(),
		Error:     err,
	}
	select {
	case r.updates <- u:
	case <-ctx.Done():
	}
}
