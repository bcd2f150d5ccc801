package svcctl

import (
	"context"
	"sync"
)

// Fake is an in-memory Controller. Calls are recorded in order as "verb unit".
type Fake struct {
	mu       sync.Mutex
	active   map[string]bool
	enabled  map[string]bool
	calls    []string
	failures map[string]error
}

// NewFake returns a Fake where every listed unit starts out active.
func NewFake(activeUnits ...string) *Fake {
	f := &Fake{
		active:   make(map[string]bool),
		enabled:  make(map[string]bool),
		failures: make(map[string]error),
	}
	for _, u := range activeUnits {
		f.active[u] = true
	}
	return f
}

// FailOn makes the next calls of verb on unit return err. A nil err clears it.
// Use "" as unit for daemon-reload.
func (f *Fake) FailOn(verb, unit string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := verb + " " + unit
	if err == nil {
		delete(f.failures, key)
		return
	}
	f.failures[key] = err
}

// Calls returns the recorded calls.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Reset clears the call log.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Fake) record(verb, unit string) error {
	key := verb + " " + unit
	f.calls = append(f.calls, key)
	return f.failures[key]
}

func (f *Fake) set(verb, unit string, state map[string]bool, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(verb, unit); err != nil {
		return err
	}
	state[unit] = value
	return nil
}

func (f *Fake) Start(_ context.Context, unit string) error {
	return f.set("start", unit, f.active, true)
}

func (f *Fake) Stop(_ context.Context, unit string) error {
	return f.set("stop", unit, f.active, false)
}

func (f *Fake) Restart(_ context.Context, unit string) error {
	return f.set("restart", unit, f.active, true)
}

func (f *Fake) Enable(_ context.Context, unit string) error {
	return f.set("enable", unit, f.enabled, true)
}

func (f *Fake) Disable(_ context.Context, unit string) error {
	return f.set("disable", unit, f.enabled, false)
}

func (f *Fake) DaemonReload(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("daemon-reload", "")
}

func (f *Fake) IsActive(_ context.Context, unit string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures["is-active "+unit]; err != nil {
		return false, err
	}
	return f.active[unit], nil
}

func (f *Fake) ActiveState(ctx context.Context, unit string) (string, error) {
	active, err := f.IsActive(ctx, unit)
	if err != nil {
		return "", err
	}
	if active {
		return "active", nil
	}
	return "inactive", nil
}

func (f *Fake) IsEnabled(_ context.Context, unit string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[unit], nil
}
