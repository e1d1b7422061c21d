package netmon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// flakyProbe is a ProbeFunc whose outcome the test flips at will.
type flakyProbe struct {
	mu   sync.Mutex
	fail bool
}

func (p *flakyProbe) probe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("connection refused")
	}
	return nil
}

func (p *flakyProbe) setFail(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

func waitForState(t *testing.T, m *Monitor, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %q, want %q", m.State(), want)
}

func TestMonitor_StartsOnline(t *testing.T) {
	t.Parallel()

	m := New(func(context.Context) error { return nil }, time.Second, log.Nop())
	if !m.Online() {
		t.Error("expected initial state to be online")
	}
}

func TestMonitor_FirstProbeCorrectsState(t *testing.T) {
	t.Parallel()

	p := &flakyProbe{fail: true}
	m := New(p.probe, time.Hour, log.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitForState(t, m, Offline)
}

func TestMonitor_TransitionsFollowProbes(t *testing.T) {
	t.Parallel()

	p := &flakyProbe{}
	m := New(p.probe, 10*time.Millisecond, log.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitForState(t, m, Online)

	p.setFail(true)
	waitForState(t, m, Offline)

	p.setFail(false)
	waitForState(t, m, Online)
}

func TestMonitor_SubscriberRunsBeforeTransitionReturns(t *testing.T) {
	t.Parallel()

	m := New(func(context.Context) error { return nil }, time.Hour, log.Nop())

	seen := make([]State, 0, 2)
	m.Subscribe(func(st State) { seen = append(seen, st) })

	ctx := context.Background()
	m.Set(ctx, Offline)
	if len(seen) != 1 || seen[0] != Offline {
		t.Fatalf("seen = %v, want [offline] synchronously", seen)
	}
	m.Set(ctx, Online)
	if len(seen) != 2 || seen[1] != Online {
		t.Fatalf("seen = %v, want [offline online]", seen)
	}
}

func TestMonitor_NoNotificationWithoutTransition(t *testing.T) {
	t.Parallel()

	m := New(func(context.Context) error { return nil }, time.Hour, log.Nop())

	calls := 0
	m.Subscribe(func(State) { calls++ })

	ctx := context.Background()
	m.Set(ctx, Online) // already online
	if calls != 0 {
		t.Errorf("notifications = %d, want 0 for a same-state set", calls)
	}
	m.Set(ctx, Offline)
	m.Set(ctx, Offline)
	if calls != 1 {
		t.Errorf("notifications = %d, want 1", calls)
	}
}

func TestMonitor_Unsubscribe(t *testing.T) {
	t.Parallel()

	m := New(func(context.Context) error { return nil }, time.Hour, log.Nop())

	calls := 0
	unsub := m.Subscribe(func(State) { calls++ })

	ctx := context.Background()
	m.Set(ctx, Offline)
	unsub()
	m.Set(ctx, Online)

	if calls != 1 {
		t.Errorf("notifications = %d, want 1 after unsubscribe", calls)
	}
}
