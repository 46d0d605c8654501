// Package scheduler drives the log cycle: once per configured interval it
// polls every activated device, merges the partial readings into one
// canonical record, applies ingestion formulas and appends the record to
// the store. It runs on its own goroutine, independent of any UI thread.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/seubert/gammalog/internal/pkg/constants"
	"github.com/seubert/gammalog/internal/pkg/device"
	"github.com/seubert/gammalog/internal/pkg/formula"
	"github.com/seubert/gammalog/internal/pkg/logger"
	"github.com/seubert/gammalog/internal/pkg/store"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

// State is the scheduler lifecycle.
type State int

const (
	// Idle means Start has not been called
	Idle State = iota
	// Running means the cycle ticker is armed
	Running
	// Stopped is terminal for this log session
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

// ErrNotIdle is returned when Start is called twice for one session.
var ErrNotIdle = errors.New("scheduler already started")

// RecordSink is the write side of the record store.
type RecordSink interface {
	Append(store.Record) error
	NextIndex() int64
}

// Scheduler owns the cycle ticker and the per-cycle fan-out. Device
// connections are not closed on Stop; connect/disconnect is a separate
// user-driven operation.
type Scheduler struct {
	cycle    time.Duration
	registry *device.Registry
	formulas *formula.Engine
	sink     RecordSink

	mu      sync.Mutex
	state   State
	fatal   error
	cycles  int64
	overuns int64
	// busy tracks devices whose poll goroutine is still running past its
	// deadline; such a device is skipped until the poll returns, so Poll is
	// never entered concurrently on one adapter
	busy map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

// New creates a scheduler. A cycle below the minimum is clamped and
// reported as a configuration warning.
func New(cycle time.Duration, registry *device.Registry, formulas *formula.Engine, sink RecordSink) *Scheduler {
	if cycle < constants.MinLogCycle {
		logger.Warn("Log cycle below minimum, clamped",
			"configured", cycle, "minimum", constants.MinLogCycle)
		cycle = constants.MinLogCycle
	}
	return &Scheduler{
		cycle:    cycle,
		registry: registry,
		formulas: formulas,
		sink:     sink,
		busy:     make(map[string]bool),
	}
}

// Cycle returns the configured cycle interval.
func (s *Scheduler) Cycle() time.Duration {
	return s.cycle
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the fatal error that stopped the session, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// Cycles returns how many records this session has produced.
func (s *Scheduler) Cycles() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// Start arms the cycle ticker. Idle -> Running; any other state is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return fmt.Errorf("%w: state %s", ErrNotIdle, s.state)
	}

	// Duplicate variable claims are a configuration mistake, surfaced here
	// at session start; the merge step keeps last-writer-wins
	s.registry.CheckVariableClaims()

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.state = Running
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.run()

	logger.Info("Log cycle started", "cycle", s.cycle, "devices", len(s.registry.Activated()))
	return nil
}

// Stop disarms the ticker and waits for an in-flight cycle to finish.
// Running -> Stopped; stopping an Idle or Stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.state = Stopped
	s.mu.Unlock()
	logger.Info("Log cycle stopped", "cycles", s.Cycles())
}

// Done reports when the cycle loop has exited, either through Stop or a
// fatal store error. Nil before Start.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	defer close(s.done)

	// First record immediately, then on the tick
	s.tick()

	ticker := time.NewTicker(s.cycle)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	started := time.Now()

	record, err := s.buildRecord(started)
	if err != nil {
		// Store-level failure: durability is gone, so the session must
		// halt rather than silently drop records
		logger.Error("Record append failed, stopping log session", "error", err)
		s.mu.Lock()
		s.fatal = err
		s.state = Stopped
		cancel := s.cancel
		s.mu.Unlock()
		cancel()
		return
	}

	elapsed := time.Since(started)
	if elapsed > s.cycle {
		s.mu.Lock()
		s.overuns++
		s.mu.Unlock()
		logger.Warn("Cycle overrun: polls took longer than the log cycle",
			"elapsed", elapsed, "cycle", s.cycle, "index", record.Index)
	}

	s.mu.Lock()
	s.cycles++
	s.mu.Unlock()
}

// buildRecord fans out one round of polls, merges the results and appends
// the canonical record. Only an append failure is returned as an error;
// device failures degrade to NaN slots.
func (s *Scheduler) buildRecord(now time.Time) (store.Record, error) {
	active := s.registry.Activated()
	results := make([]device.PollResult, len(active))

	var wg sync.WaitGroup
	for i, aa := range active {
		wg.Add(1)
		go func(i int, aa device.ActiveAdapter) {
			defer wg.Done()
			results[i] = s.pollOne(aa)
		}(i, aa)
	}
	wg.Wait()

	record := store.NaNRecord(s.sink.NextIndex(), store.StampFromTime(now))

	for i, res := range results {
		name := active[i].Adapter.Name()
		s.registry.RecordOutcome(name, res)

		switch res.Kind {
		case device.Success:
			s.merge(&record, name, res.Values)
		case device.Timeout:
			logger.Warn("Device poll timed out", "device", name, "index", record.Index)
		case device.Failure:
			logger.Warn("Device poll failed", "device", name, "error", res.Err, "index", record.Index)
		}
	}

	if err := s.sink.Append(record); err != nil {
		return record, err
	}
	return record, nil
}

// merge writes one adapter's readings into the record, applying the
// ingestion-time value formulas. Last writer wins on a duplicate claim;
// that clash was already reported at session start.
func (s *Scheduler) merge(record *store.Record, deviceName string, values map[vars.Name]float64) {
	for name, raw := range values {
		idx, err := vars.Index(name)
		if err != nil {
			logger.Warn("Device reported unknown variable, ignored",
				"device", deviceName, "variable", string(name))
			continue
		}
		v := raw
		if s.formulas != nil {
			v = s.formulas.ApplyValue(name, raw)
		}
		if !math.IsNaN(record.Values[idx]) {
			logger.Debug("Overwriting duplicate variable claim",
				"device", deviceName, "variable", string(name))
		}
		record.Values[idx] = v
	}
}

// pollOne guards a single device poll with its timeout and a panic
// boundary, so one misbehaving adapter cannot abort the cycle for the
// others. An adapter that outlives its deadline is abandoned; its result
// is discarded and its transport stays owned by the adapter. While the
// abandoned goroutine runs, later cycles skip the device instead of
// entering Poll a second time on the same transport handle.
func (s *Scheduler) pollOne(aa device.ActiveAdapter) device.PollResult {
	name := aa.Adapter.Name()
	if !s.acquire(name) {
		logger.Warn("Previous poll still in flight, skipping device", "device", name)
		return device.TimedOut()
	}

	timeout := aa.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultPollTimeout
	}
	if timeout > constants.MaxPollTimeout {
		timeout = constants.MaxPollTimeout
	}

	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	ch := make(chan device.PollResult, 1)
	go func() {
		defer s.release(name)
		defer func() {
			if r := recover(); r != nil {
				ch <- device.Failed(fmt.Errorf("adapter panic: %v", r))
			}
		}()
		ch <- aa.Adapter.Poll(ctx)
	}()

	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		return device.TimedOut()
	}
}

// acquire marks a device's poll as in flight. It fails when the previous
// poll has not returned yet.
func (s *Scheduler) acquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[name] {
		return false
	}
	s.busy[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	delete(s.busy, name)
	s.mu.Unlock()
}
