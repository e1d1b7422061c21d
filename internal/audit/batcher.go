package audit

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultBatchSize is the batch length that triggers an immediate flush.
	DefaultBatchSize = 10
	// DefaultBatchInterval is the debounce window for partial batches.
	DefaultBatchInterval = 5 * time.Second
	// DefaultMaxPending is the hard cap on entries held in memory.
	DefaultMaxPending = 1000
)

// FlushFunc receives ownership of a taken batch.
type FlushFunc func(ctx context.Context, batch []*Entry)

// BatcherOptions tune a Batcher. Zero values fall back to the defaults.
type BatcherOptions struct {
	Size       int
	Interval   time.Duration
	MaxPending int
}

// Batcher accumulates entries and hands them to its flush function when the
// batch is full or when the interval elapses after the last add, whichever
// comes first. Entries arriving while the batch is at MaxPending are dropped.
type Batcher struct {
	size       int
	interval   time.Duration
	maxPending int
	flushFn    FlushFunc
	logger     log.Logger
	m          *Metrics

	mu      sync.Mutex
	pending []*Entry
	timer   *time.Timer
	closed  bool
}

// NewBatcher creates a batcher delivering through flushFn.
func NewBatcher(flushFn FlushFunc, opts BatcherOptions, logger log.Logger, m *Metrics) *Batcher {
	if logger == nil {
		logger = log.Nop()
	}
	if m == nil {
		m = NewMetrics(prometheus.NewRegistry())
	}
	if opts.Size <= 0 {
		opts.Size = DefaultBatchSize
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultBatchInterval
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}
	return &Batcher{
		size:       opts.Size,
		interval:   opts.Interval,
		maxPending: opts.MaxPending,
		flushFn:    flushFn,
		logger:     logger,
		m:          m,
	}
}

// Add appends an entry to the batch. A full batch flushes on the caller's
// goroutine; otherwise the interval timer is reset.
func (b *Batcher) Add(ctx context.Context, e *Entry) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if len(b.pending) >= b.maxPending {
		b.mu.Unlock()
		b.m.DroppedTotal.Inc()
		b.logger.Warn(ctx, "audit batch full, dropping entry",
			"max_pending", b.maxPending,
			"action", e.Action,
		)
		return
	}
	b.pending = append(b.pending, e)
	if len(b.pending) >= b.size {
		batch := b.takeLocked()
		b.mu.Unlock()
		b.dispatch(ctx, batch, "size")
		return
	}
	b.resetTimerLocked(ctx)
	b.mu.Unlock()
}

// Flush hands whatever is pending to the flush function.
func (b *Batcher) Flush(ctx context.Context, trigger string) {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	b.dispatch(ctx, batch, trigger)
}

// Pending returns the number of entries waiting in the batch.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close stops the timer and flushes the remaining batch. The batcher must not
// be used afterwards.
func (b *Batcher) Close(ctx context.Context) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	batch := b.takeLocked()
	b.mu.Unlock()
	if len(batch) > 0 {
		b.dispatch(ctx, batch, "close")
	}
}

// takeLocked swaps out the pending batch and cancels the timer, so a size
// flush and a timer flush can never double-process the same batch.
func (b *Batcher) takeLocked() []*Entry {
	batch := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return batch
}

func (b *Batcher) resetTimerLocked(ctx context.Context) {
	if b.timer != nil {
		b.timer.Stop()
	}
	// outlive the caller's request context
	pctx := context.WithoutCancel(ctx)
	b.timer = time.AfterFunc(b.interval, func() {
		b.Flush(pctx, "interval")
	})
}

func (b *Batcher) dispatch(ctx context.Context, batch []*Entry, trigger string) {
	b.m.BatchFlushesTotal.WithLabelValues(trigger).Inc()
	b.m.BatchEntries.Observe(float64(len(batch)))
	b.flushFn(ctx, batch)
}
