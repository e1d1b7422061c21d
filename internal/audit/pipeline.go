package audit

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/scribe/internal/netmon"
)

// Submitter delivers one audit entry to the upstream collector. Any error,
// including an HTTP error status, counts as a failed delivery.
type Submitter interface {
	Submit(ctx context.Context, e *Entry) error
}

// Connectivity is the view of the network monitor the pipeline needs.
type Connectivity interface {
	Online() bool
	Subscribe(fn func(netmon.State)) func()
}

// PipelineOptions tune the pipeline's batcher. Zero values fall back to the
// batcher defaults.
type PipelineOptions struct {
	BatchSize     int
	BatchInterval time.Duration
	MaxPending    int
}

// Pipeline ties the batcher, spool, submitter and connectivity monitor into
// the audit delivery path: batches are submitted concurrently while online
// and spooled while offline or on per-entry failure; the spool drains on
// reconnect and at startup.
type Pipeline struct {
	sub    Submitter
	spool  *Spool
	conn   Connectivity
	logger log.Logger
	m      *Metrics
	b      *Batcher

	wg    sync.WaitGroup
	unsub func()
}

// NewPipeline creates the delivery pipeline. Call Start to wire connectivity
// notifications and drain anything a previous run left behind.
func NewPipeline(sub Submitter, spool *Spool, conn Connectivity, opts PipelineOptions, logger log.Logger, m *Metrics) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	if m == nil {
		m = NewMetrics(prometheus.NewRegistry())
	}
	p := &Pipeline{
		sub:    sub,
		spool:  spool,
		conn:   conn,
		logger: logger,
		m:      m,
	}
	p.b = NewBatcher(p.deliver, BatcherOptions{
		Size:       opts.BatchSize,
		Interval:   opts.BatchInterval,
		MaxPending: opts.MaxPending,
	}, logger, m)
	return p
}

// LogAction accepts an audit entry, stamping a missing ID and timestamp, and
// hands it to the batcher.
func (p *Pipeline) LogAction(ctx context.Context, e *Entry) {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	p.m.EntriesTotal.Inc()
	p.b.Add(ctx, e)
}

// Start subscribes to connectivity transitions and drains anything spooled by
// a previous run. Reconnect drains run synchronously inside the transition,
// so flushes observing the online state find the spool already drained.
func (p *Pipeline) Start(ctx context.Context) {
	dctx := context.WithoutCancel(ctx)
	p.unsub = p.conn.Subscribe(func(st netmon.State) {
		if st == netmon.Online {
			p.drain(dctx, "reconnect")
		}
	})
	if p.spool.Depth(ctx) > 0 {
		p.drain(ctx, "startup")
	}
}

// Flush delivers the current partial batch without waiting for the interval.
func (p *Pipeline) Flush(ctx context.Context) {
	p.b.Flush(ctx, "manual")
}

// Pending returns the number of entries waiting in the batcher.
func (p *Pipeline) Pending() int {
	return p.b.Pending()
}

// SpoolDepth returns the number of entries waiting in the spool.
func (p *Pipeline) SpoolDepth(ctx context.Context) int {
	return p.spool.Depth(ctx)
}

// Close unsubscribes, flushes the remaining batch and waits for in-flight
// deliveries until ctx expires. Offline at shutdown, the final batch lands in
// the spool and survives for the next run.
func (p *Pipeline) Close(ctx context.Context) error {
	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
	p.b.Close(ctx)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "shutdown before all audit deliveries finished")
		return ctx.Err()
	}
}

// deliver is the batcher's flush function.
func (p *Pipeline) deliver(ctx context.Context, batch []*Entry) {
	if !p.conn.Online() {
		p.m.SpooledTotal.WithLabelValues("offline").Add(float64(len(batch)))
		p.spool.AddAll(ctx, batch)
		p.logger.Info(ctx, "offline, spooled audit batch", "entries", len(batch))
		return
	}
	// deliveries outlive the ingest request that triggered the flush
	dctx := context.WithoutCancel(ctx)
	for _, e := range batch {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.submit(dctx, e); err != nil {
				p.logger.Warn(dctx, "audit submit failed, spooling",
					"error", err,
					"id", e.ID,
					"action", e.Action,
				)
				p.m.SpooledTotal.WithLabelValues("failed").Inc()
				p.spool.Add(dctx, e)
			}
		}()
	}
}

// submit counts and times one delivery attempt. Shared by batch flushes and
// spool drains.
func (p *Pipeline) submit(ctx context.Context, e *Entry) error {
	start := time.Now()
	err := p.sub.Submit(ctx, e)
	p.m.SubmitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.m.SubmitsTotal.WithLabelValues("error").Inc()
		return err
	}
	p.m.SubmitsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (p *Pipeline) drain(ctx context.Context, trigger string) {
	p.m.DrainsTotal.WithLabelValues(trigger).Inc()
	delivered, remaining := p.spool.Drain(ctx, p.submit)
	if delivered > 0 || remaining > 0 {
		p.logger.Info(ctx, "audit spool drained",
			"trigger", trigger,
			"delivered", delivered,
			"remaining", remaining,
		)
	}
}
