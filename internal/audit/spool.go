package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/scribe/internal/kv"
)

// SpoolKey is the durable-store key holding entries awaiting redelivery.
const SpoolKey = "scribe:audit-spool"

// DefaultMaxRetries is how many failed deliveries an entry survives before it
// is dropped.
const DefaultMaxRetries = 3

// Spool is the durable queue for audit entries that could not be delivered.
// All storage failures are logged and swallowed: the spool is the fallback
// path and must never take the delivery path down with it.
type Spool struct {
	store      kv.Store
	maxRetries int
	logger     log.Logger
	m          *Metrics

	mu sync.Mutex
}

// NewSpool creates a spool on top of the given store.
func NewSpool(store kv.Store, maxRetries int, logger log.Logger, m *Metrics) *Spool {
	if logger == nil {
		logger = log.Nop()
	}
	if m == nil {
		m = NewMetrics(prometheus.NewRegistry())
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Spool{
		store:      store,
		maxRetries: maxRetries,
		logger:     logger,
		m:          m,
	}
}

// Add queues a single entry for redelivery.
func (s *Spool) Add(ctx context.Context, e *Entry) {
	s.AddAll(ctx, []*Entry{e})
}

// AddAll queues entries for redelivery in one read-modify-write cycle.
func (s *Spool) AddAll(ctx context.Context, entries []*Entry) {
	if len(entries) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	queued := s.loadLocked(ctx)
	for _, e := range entries {
		queued = append(queued, newQueued(e))
	}
	s.storeLocked(ctx, queued)
}

// Drain attempts redelivery of every spooled entry in order. Delivered
// entries are removed; failures increment the retry count, and entries that
// exhaust their retries are dropped. Returns how many were delivered and how
// many remain.
func (s *Spool) Drain(ctx context.Context, submit func(context.Context, *Entry) error) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queued := s.loadLocked(ctx)
	if len(queued) == 0 {
		return 0, 0
	}

	delivered := 0
	keep := queued[:0]
	for _, qe := range queued {
		if err := submit(ctx, qe.Data); err == nil {
			delivered++
			continue
		}
		qe.RetryCount++
		if qe.RetryCount >= s.maxRetries {
			s.m.SpoolDroppedTotal.Inc()
			s.logger.Warn(ctx, "dropping audit entry after retries",
				"id", qe.ID,
				"retry_count", qe.RetryCount,
				"action", qe.Data.Action,
			)
			continue
		}
		keep = append(keep, qe)
	}
	s.storeLocked(ctx, keep)
	return delivered, len(keep)
}

// Depth returns how many entries are waiting in the spool.
func (s *Spool) Depth(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.loadLocked(ctx))
	s.m.SpoolDepth.Set(float64(n))
	return n
}

func newQueued(e *Entry) QueuedEntry {
	id := e.ID
	if id == "" {
		id = ulid.Make().String()
	}
	return QueuedEntry{
		ID:        id,
		Timestamp: time.Now(),
		Data:      e,
	}
}

// loadLocked reads the queued entries, treating read failures and corrupt
// payloads as an empty spool.
func (s *Spool) loadLocked(ctx context.Context) []QueuedEntry {
	data, ok, err := s.store.Get(ctx, SpoolKey)
	if err != nil {
		s.logger.Error(ctx, err, "failed to read audit spool")
		return nil
	}
	if !ok {
		return nil
	}
	var queued []QueuedEntry
	if err := json.Unmarshal(data, &queued); err != nil {
		s.logger.Warn(ctx, "dropping corrupt audit spool", "error", err)
		return nil
	}
	return queued
}

func (s *Spool) storeLocked(ctx context.Context, queued []QueuedEntry) {
	s.m.SpoolDepth.Set(float64(len(queued)))
	if len(queued) == 0 {
		if err := s.store.Delete(ctx, SpoolKey); err != nil {
			s.logger.Error(ctx, err, "failed to delete audit spool")
		}
		return
	}
	data, err := json.Marshal(queued)
	if err != nil {
		s.logger.Error(ctx, err, "failed to encode audit spool")
		return
	}
	if err := s.store.Set(ctx, SpoolKey, data); err != nil {
		s.logger.Error(ctx, err, "failed to write audit spool", "entries", len(queued))
	}
}
