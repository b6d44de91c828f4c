package producers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
)

// MockProducer implements Producer and Commandable for testing. All fields
// are configurable and it tracks how many times Activate has been called and
// which verbs it received.
type MockProducer struct {
	name     string
	interval time.Duration

	mu     sync.RWMutex
	result bar.Result
	err    error
	verbs  []string

	callCount atomic.Int64

	// ActivateFunc, if set, overrides the default Activate behavior.
	// This allows tests to inject dynamic behavior (e.g., return different
	// results on each call, or block until a signal).
	ActivateFunc func(ctx context.Context, verb string) (bar.Result, error)
}

// MockProducerOption configures a MockProducer.
type MockProducerOption func(*MockProducer)

// WithResult sets the result returned by Activate.
func WithResult(res bar.Result) MockProducerOption {
	return func(m *MockProducer) { m.result = res }
}

// WithText makes Activate return a single visible block with the given text.
func WithText(text string) MockProducerOption {
	return func(m *MockProducer) { m.result = bar.Show(bar.Block{FullText: text}) }
}

// WithError sets the error returned by Activate.
func WithError(err error) MockProducerOption {
	return func(m *MockProducer) { m.err = err }
}

// WithActivateFunc sets a custom function for Activate.
func WithActivateFunc(fn func(ctx context.Context, verb string) (bar.Result, error)) MockProducerOption {
	return func(m *MockProducer) { m.ActivateFunc = fn }
}

// NewMockProducer creates a mock producer with the given name, interval, and
// options. Without options it reports Unchanged.
func NewMockProducer(name string, interval time.Duration, opts ...MockProducerOption) *MockProducer {
	m := &MockProducer{
		name:     name,
		interval: interval,
		result:   bar.NoChange(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the producer name.
func (m *MockProducer) Name() string { return m.name }

// Interval returns the configured interval.
func (m *MockProducer) Interval() time.Duration { return m.interval }

// Verbs reports that the mock accepts any verb.
func (m *MockProducer) Verbs() []string { return []string{"*"} }

// SetResult updates the returned result (thread-safe).
func (m *MockProducer) SetResult(res bar.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = res
}

// SetError updates the returned error (thread-safe).
func (m *MockProducer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Activate records the call and returns the configured result and error, or
// delegates to ActivateFunc if set.
func (m *MockProducer) Activate(ctx context.Context, verb string) (bar.Result, error) {
	m.callCount.Add(1)

	m.mu.Lock()
	if verb != "" {
		m.verbs = append(m.verbs, verb)
	}
	m.mu.Unlock()

	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, verb)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.result, m.err
}

// CallCount returns how many times Activate has been called.
func (m *MockProducer) CallCount() int64 {
	return m.callCount.Load()
}

// ReceivedVerbs returns a copy of the non-empty verbs seen so far.
func (m *MockProducer) ReceivedVerbs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.verbs))
	copy(out, m.verbs)
	return out
}
