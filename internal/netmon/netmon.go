// Package netmon tracks reachability of the upstream collector. It is the
// signal the audit pipeline uses to decide between delivering and spooling.
package netmon

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// State is the connectivity machine's state.
type State string

const (
	// Online means the last probe got any response from the collector.
	Online State = "online"
	// Offline means the last probe failed at the transport level.
	Offline State = "offline"
)

// DefaultProbeInterval is how often the monitor probes the collector.
const DefaultProbeInterval = 15 * time.Second

// ProbeFunc checks collector reachability. A nil return means reachable; the
// probe must not treat application-level failures (HTTP error codes) as
// unreachable.
type ProbeFunc func(ctx context.Context) error

// Monitor is a two-state connectivity machine driven by periodic probes.
// Subscribers run synchronously inside the transition, so by the time a
// transition call returns every subscriber has observed it.
type Monitor struct {
	probe    ProbeFunc
	interval time.Duration
	logger   log.Logger

	mu    sync.Mutex
	state State
	next  int
	subs  map[int]func(State)
}

// New creates a monitor starting in the Online state; the first probe in Run
// corrects it if the collector is unreachable.
func New(probe ProbeFunc, interval time.Duration, logger log.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		logger:   logger,
		state:    Online,
		subs:     make(map[int]func(State)),
	}
}

// Run probes immediately and then on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.probeOnce(ctx)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.probeOnce(ctx)
		}
	}
}

// Online reports whether the collector was reachable at the last probe.
func (m *Monitor) Online() bool {
	return m.State() == Online
}

// State returns the current connectivity state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Set overrides the state, firing subscribers on a transition. Probes keep
// running and will correct the override.
func (m *Monitor) Set(ctx context.Context, st State) {
	m.transition(ctx, st, nil)
}

// Subscribe registers fn to run on every transition. It returns an
// unsubscribe func.
func (m *Monitor) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	if err := m.probe(ctx); err != nil {
		m.transition(ctx, Offline, err)
		return
	}
	m.transition(ctx, Online, nil)
}

func (m *Monitor) transition(ctx context.Context, to State, cause error) {
	m.mu.Lock()
	if m.state == to {
		m.mu.Unlock()
		return
	}
	m.state = to
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	if to == Offline {
		m.logger.Warn(ctx, "collector unreachable", "error", cause)
	} else {
		m.logger.Info(ctx, "collector reachable")
	}
	for _, fn := range subs {
		fn(to)
	}
}
