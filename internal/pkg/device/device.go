// Package device defines the adapter boundary between the log-cycle
// scheduler and the hardware: each device family implements Adapter, owns
// its transport, and reports readings as a partial map of canonical
// variables. Transport failures never cross this boundary as errors; they
// become typed poll results.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/seubert/gammalog/internal/pkg/logger"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

// ResultKind classifies the outcome of one poll.
type ResultKind int

const (
	// Success carries a partial or full set of readings
	Success ResultKind = iota
	// Timeout means the device did not respond within its deadline
	Timeout
	// Failure means a transport-level error (disconnected, malformed
	// reply, checksum mismatch)
	Failure
)

func (k ResultKind) String() string {
	switch k {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	default:
		return "error"
	}
}

// PollResult is the typed outcome of one device poll.
type PollResult struct {
	Kind   ResultKind
	Values map[vars.Name]float64 // set only on Success
	Err    error                 // set only on Failure
}

// Ok returns a successful result.
func Ok(values map[vars.Name]float64) PollResult {
	return PollResult{Kind: Success, Values: values}
}

// TimedOut returns a timeout result.
func TimedOut() PollResult {
	return PollResult{Kind: Timeout}
}

// Failed returns a transport-failure result.
func Failed(err error) PollResult {
	return PollResult{Kind: Failure, Err: err}
}

// Adapter is implemented once per device family. Poll blocks until the
// device answers or ctx expires; the adapter owns its transport handle and
// its reconnection policy. The scheduler never retries transport errors.
type Adapter interface {
	// Name identifies the device family for logs and status
	Name() string
	// Produces lists the canonical variables this device can supply
	Produces() []vars.Name
	// Poll reads the device once
	Poll(ctx context.Context) PollResult
}

// State is a read-only snapshot of one device's condition, consumed by
// status displays outside this package.
type State struct {
	Name      string
	Activated bool
	Connected bool
	LastError error
	Produces  []vars.Name
}

// Registry holds the configured adapters and their activation flags.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
}

type entry struct {
	adapter   Adapter
	activated bool
	connected bool
	lastErr   error
	timeout   time.Duration
}

// ErrDuplicateDevice marks a second registration under the same family name.
var ErrDuplicateDevice = errors.New("device family already registered")

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an adapter with its activation flag and per-poll timeout.
func (r *Registry) Register(a Adapter, activated bool, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.adapter.Name() == a.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateDevice, a.Name())
		}
	}
	r.entries = append(r.entries, &entry{adapter: a, activated: activated, timeout: timeout})
	return nil
}

// Activated returns the activated adapters with their poll timeouts, in
// registration order. Registration order decides the merge order, so the
// last registered writer wins a duplicate-variable claim.
func (r *Registry) Activated() []ActiveAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ActiveAdapter
	for _, e := range r.entries {
		if e.activated {
			out = append(out, ActiveAdapter{Adapter: e.adapter, Timeout: e.timeout})
		}
	}
	return out
}

// ActiveAdapter pairs an adapter with its configured poll timeout.
type ActiveAdapter struct {
	Adapter Adapter
	Timeout time.Duration
}

// States returns a snapshot of every registered device.
func (r *Registry) States() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]State, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, State{
			Name:      e.adapter.Name(),
			Activated: e.activated,
			Connected: e.connected,
			LastError: e.lastErr,
			Produces:  e.adapter.Produces(),
		})
	}
	return out
}

// RecordOutcome updates a device's connection state from a poll outcome.
func (r *Registry) RecordOutcome(name string, res PollResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.adapter.Name() != name {
			continue
		}
		switch res.Kind {
		case Success:
			e.connected = true
			e.lastErr = nil
		case Timeout:
			e.connected = false
			e.lastErr = context.DeadlineExceeded
		case Failure:
			e.connected = false
			e.lastErr = res.Err
		}
		return
	}
}

// CheckVariableClaims reports duplicate canonical-variable claims across
// the activated adapters. The original behavior here was implicit
// last-writer-wins; it is kept, but every clash is surfaced as a
// configuration warning at session start.
func (r *Registry) CheckVariableClaims() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	claimed := make(map[vars.Name]string)
	var warnings []string
	for _, e := range r.entries {
		if !e.activated {
			continue
		}
		for _, v := range e.adapter.Produces() {
			if prev, ok := claimed[v]; ok {
				w := fmt.Sprintf("variable %s claimed by both %s and %s; %s wins",
					v, prev, e.adapter.Name(), e.adapter.Name())
				warnings = append(warnings, w)
				logger.Warn("Duplicate variable claim",
					"variable", string(v), "first", prev, "second", e.adapter.Name())
			}
			claimed[v] = e.adapter.Name()
		}
	}
	return warnings
}
