// Package command routes "target:verb" lines from external tools to the
// producer registered under target. Lines arrive through a named pipe, an
// optional Unix socket, or bar click events; all of them end in
// Router.Dispatch, which never blocks.
package command

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrDuplicateRoute is returned when a target name is registered twice.
	ErrDuplicateRoute = errors.New("route already registered")

	// ErrMalformed is returned by Parse for lines that are not target:verb.
	ErrMalformed = errors.New("malformed command")
)

// Command is one parsed routing request. Both fields are lower-case.
type Command struct {
	Target string
	Verb   string
}

// String returns the wire form of c.
func (c Command) String() string { return c.Target + ":" + c.Verb }

// Parse splits a "target:verb" line. The line must contain exactly one
// separator and both fields must be non-empty after trimming. Fields are
// lower-cased.
func Parse(line string) (Command, error) {
	target, verb, ok := strings.Cut(line, ":")
	if !ok || strings.Contains(verb, ":") {
		return Command{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	target = strings.ToLower(strings.TrimSpace(target))
	verb = strings.ToLower(strings.TrimSpace(verb))
	if target == "" || verb == "" {
		return Command{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	return Command{Target: target, Verb: verb}, nil
}

// Inbox receives verbs for one producer. Offer must not block.
type Inbox interface {
	Offer(verb string) bool
}

// Router maps target names to producer inboxes. Safe for concurrent use.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Inbox
	logger *slog.Logger
}

// NewRouter returns an empty router. A nil logger uses slog.Default().
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{routes: make(map[string]Inbox), logger: logger}
}

// Register binds name (case-insensitive) to inbox.
func (r *Router) Register(name string, inbox Inbox) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || strings.Contains(key, ":") {
		return fmt.Errorf("invalid route name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateRoute, key)
	}
	r.routes[key] = inbox
	return nil
}

// Routes returns the registered target names, sorted.
func (r *Router) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatch parses line and enqueues its verb on the target's inbox. It
// reports whether the verb was accepted. Malformed lines, unknown targets and
// full inboxes are dropped without error.
func (r *Router) Dispatch(line string) bool {
	cmd, err := Parse(line)
	if err != nil {
		r.logger.Debug("dropping command", "line", line, "error", err)
		return false
	}
	return r.Send(cmd)
}

// Send enqueues an already parsed command.
func (r *Router) Send(cmd Command) bool {
	r.mu.RLock()
	inbox, ok := r.routes[cmd.Target]
	r.mu.RUnlock()

	if !ok {
		r.logger.Debug("dropping command for unknown target", "target", cmd.Target, "verb", cmd.Verb)
		return false
	}
	if !inbox.Offer(cmd.Verb) {
		r.logger.Debug("inbox full, dropping command", "target", cmd.Target, "verb", cmd.Verb)
		return false
	}
	return true
}
