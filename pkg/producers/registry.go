package producers

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateName is returned when a producer name is registered twice.
var ErrDuplicateName = errors.New("producer already registered")

// entry is the registry's per-producer record. Its ID is the producer's
// position in the output frame.
type entry struct {
	id       int
	producer Producer
	inbox    *Inbox
	status   Status
}

// Registry holds the configured producers in output order. It is safe for
// concurrent use. Identities are assigned at registration and never change.
type Registry struct {
	mu        sync.RWMutex
	entries   []*entry
	byName    map[string]*entry
	inboxSize int
}

// NewRegistry returns an empty registry ready for producer registration.
func NewRegistry() *Registry {
	return NewRegistryWithInbox(DefaultInboxSize)
}

// NewRegistryWithInbox returns an empty registry whose producers get inboxes
// of the given capacity.
func NewRegistryWithInbox(inboxSize int) *Registry {
	return &Registry{
		byName:    make(map[string]*entry),
		inboxSize: inboxSize,
	}
}

// Register appends a producer and returns its identity. It returns an error
// if a producer with the same name is already registered.
func (r *Registry) Register(p Producer) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	e := &entry{
		id:       len(r.entries),
		producer: p,
		inbox:    NewInbox(r.inboxSize),
		status: Status{
			Name:    name,
			ID:      len(r.entries),
			Healthy: true,
		},
	}
	r.entries = append(r.entries, e)
	r.byName[name] = e
	return e.id, nil
}

// Get returns the producer with the given name, or false if not found.
func (r *Registry) Get(name string) (Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return e.producer, true
}

// Inbox returns the command inbox of the named producer.
func (r *Registry) Inbox(name string) (*Inbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return e.inbox, true
}

// Len returns the number of registered producers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// List returns all registered producer names in output order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.producer.Name()
	}
	return names
}

// Status returns a copy of the runtime status for the named producer, or
// false if the producer is not registered.
func (r *Registry) Status(name string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byName[name]
	if !ok {
		return Status{}, false
	}
	return e.status, true
}

// AllStatus returns a copy of all producer statuses in output order.
func (r *Registry) AllStatus() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Status, len(r.entries))
	for i, e := range r.entries {
		result[i] = e.status
	}
	return result
}

// snapshot returns the entries slice for iteration outside the lock. Entries
// are append-only so the returned pointers stay valid.
func (r *Registry) snapshot() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// lookup returns the entry for name.
func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byName[name]
	return e, ok
}

// updateStatus updates the status entry for the named producer. Caller must
// NOT hold the lock; this method acquires it.
func (r *Registry) updateStatus(name string, fn func(s *Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byName[name]; ok {
		fn(&e.status)
	}
}
