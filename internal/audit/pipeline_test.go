package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/scribe/internal/netmon"
)

// fakeSubmitter records deliveries and fails on demand.
type fakeSubmitter struct {
	mu        sync.Mutex
	delivered []*Entry
	failAll   bool
	failFor   map[string]bool // by action
}

func (f *fakeSubmitter) Submit(_ context.Context, e *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll || f.failFor[e.Action] {
		return errors.New("collector down")
	}
	f.delivered = append(f.delivered, e)
	return nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

// neverProbe keeps a monitor's probe loop out of the picture; state changes
// come from Set only.
func neverProbe(context.Context) error { return nil }

func newTestPipeline(sub Submitter, store *mockStore, opts PipelineOptions) (*Pipeline, *Spool, *netmon.Monitor) {
	mon := netmon.New(neverProbe, time.Hour, log.Nop())
	spool := NewSpool(store, 0, log.Nop(), nil)
	p := NewPipeline(sub, spool, mon, opts, log.Nop(), nil)
	return p, spool, mon
}

func TestPipeline_OnlineDeliversConcurrently(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	p, spool, _ := newTestPipeline(sub, newMockStore(), PipelineOptions{BatchSize: 3, BatchInterval: time.Hour})
	ctx := context.Background()

	p.LogAction(ctx, entry("a"))
	p.LogAction(ctx, entry("b"))
	p.LogAction(ctx, entry("c"))

	waitFor(t, 2*time.Second, func() bool { return sub.count() == 3 })
	if got := spool.Depth(ctx); got != 0 {
		t.Errorf("spool depth = %d, want 0 when everything delivers", got)
	}
}

func TestPipeline_OfflineSpoolsWithoutSubmitting(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	p, spool, mon := newTestPipeline(sub, newMockStore(), PipelineOptions{BatchSize: 3, BatchInterval: time.Hour})
	ctx := context.Background()

	mon.Set(ctx, netmon.Offline)
	p.LogAction(ctx, entry("a"))
	p.LogAction(ctx, entry("b"))
	p.LogAction(ctx, entry("c"))

	if got := spool.Depth(ctx); got != 3 {
		t.Errorf("spool depth = %d, want 3", got)
	}
	if sub.count() != 0 {
		t.Errorf("deliveries = %d, want 0 while offline", sub.count())
	}
}

func TestPipeline_FailedSubmitsAreSpooled(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{failFor: map[string]bool{"bad": true}}
	p, spool, _ := newTestPipeline(sub, newMockStore(), PipelineOptions{BatchSize: 3, BatchInterval: time.Hour})
	ctx := context.Background()

	p.LogAction(ctx, entry("good"))
	p.LogAction(ctx, entry("bad"))
	p.LogAction(ctx, entry("also-good"))

	waitFor(t, 2*time.Second, func() bool { return sub.count() == 2 && spool.Depth(ctx) == 1 })
}

func TestPipeline_ReconnectDrainsSynchronously(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	p, spool, mon := newTestPipeline(sub, newMockStore(), PipelineOptions{BatchSize: 2, BatchInterval: time.Hour})
	ctx := context.Background()

	p.Start(ctx)
	defer p.Close(ctx)

	mon.Set(ctx, netmon.Offline)
	p.LogAction(ctx, entry("a"))
	p.LogAction(ctx, entry("b"))
	if got := spool.Depth(ctx); got != 2 {
		t.Fatalf("spool depth = %d, want 2 while offline", got)
	}

	mon.Set(ctx, netmon.Online)
	// the drain runs inside the transition, so it is done by now
	if sub.count() != 2 {
		t.Errorf("deliveries = %d, want 2 right after reconnect", sub.count())
	}
	if got := spool.Depth(ctx); got != 0 {
		t.Errorf("spool depth = %d, want 0 after reconnect drain", got)
	}
}

func TestPipeline_StartDrainsExistingSpool(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	ctx := context.Background()

	// a previous run left entries behind
	leftover := NewSpool(store, 0, log.Nop(), nil)
	leftover.AddAll(ctx, []*Entry{entry("a"), entry("b")})

	sub := &fakeSubmitter{}
	p, spool, _ := newTestPipeline(sub, store, PipelineOptions{})
	p.Start(ctx)
	defer p.Close(ctx)

	if sub.count() != 2 {
		t.Errorf("deliveries = %d, want 2 from the startup drain", sub.count())
	}
	if got := spool.Depth(ctx); got != 0 {
		t.Errorf("spool depth = %d, want 0", got)
	}
}

func TestPipeline_ManualFlush(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	p, _, _ := newTestPipeline(sub, newMockStore(), PipelineOptions{BatchSize: 10, BatchInterval: time.Hour})
	ctx := context.Background()

	p.LogAction(ctx, entry("a"))
	p.LogAction(ctx, entry("b"))
	if sub.count() != 0 {
		t.Fatalf("deliveries = %d, want 0 before flush", sub.count())
	}

	p.Flush(ctx)
	waitFor(t, 2*time.Second, func() bool { return sub.count() == 2 })
}

func TestPipeline_CloseWaitsForInFlight(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	p, _, _ := newTestPipeline(sub, newMockStore(), PipelineOptions{BatchSize: 10, BatchInterval: time.Hour})
	ctx := context.Background()

	p.LogAction(ctx, entry("a"))
	p.LogAction(ctx, entry("b"))

	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.Close(cctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sub.count() != 2 {
		t.Errorf("deliveries = %d, want 2 completed before Close returned", sub.count())
	}
}

func TestPipeline_CloseOfflineSpoolsFinalBatch(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	p, spool, mon := newTestPipeline(sub, newMockStore(), PipelineOptions{BatchSize: 10, BatchInterval: time.Hour})
	ctx := context.Background()

	mon.Set(ctx, netmon.Offline)
	p.LogAction(ctx, entry("a"))
	p.LogAction(ctx, entry("b"))

	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := spool.Depth(ctx); got != 2 {
		t.Errorf("spool depth = %d, want the final batch spooled", got)
	}
	if sub.count() != 0 {
		t.Errorf("deliveries = %d, want 0 while offline", sub.count())
	}
}

func TestPipeline_LogActionStampsMissingFields(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPipeline(&fakeSubmitter{}, newMockStore(), PipelineOptions{BatchSize: 10, BatchInterval: time.Hour})

	e := entry("login")
	p.LogAction(context.Background(), e)
	if e.ID == "" {
		t.Error("expected a stamped entry id")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected a stamped timestamp")
	}
	if p.Pending() != 1 {
		t.Errorf("pending = %d, want 1", p.Pending())
	}
}
