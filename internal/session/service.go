package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/scribe/internal/kv"
)

// ErrNoState is returned by Export when there is no live session.
var ErrNoState = xerrors.New("session: no state")

const (
	// DefaultDebounce is how long Save coalesces writes before persisting.
	DefaultDebounce = 500 * time.Millisecond
	// DefaultTTL is how long a session stays live after its last update.
	DefaultTTL = 24 * time.Hour
)

// Options tune the service. Zero values fall back to the defaults.
type Options struct {
	Debounce time.Duration
	TTL      time.Duration
}

// Service owns the session state: it debounces writes, enforces the TTL and
// fans out change notifications. Storage failures are logged and counted, not
// propagated; the session keeps working in memory until the store recovers.
// All methods are safe for concurrent use.
type Service struct {
	store  kv.Store
	logger log.Logger
	m      *Metrics

	debounce time.Duration
	ttl      time.Duration

	mu     sync.Mutex
	cur    *State
	loaded bool
	dirty  bool
	timer  *time.Timer
	closed bool

	nextSub    int
	changeSubs map[int]func(State)
	clearSubs  map[int]func()
}

// New creates a session service on top of the given store.
func New(store kv.Store, logger log.Logger, m *Metrics, opts Options) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	if m == nil {
		m = NewMetrics(prometheus.NewRegistry())
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Service{
		store:      store,
		logger:     logger,
		m:          m,
		debounce:   opts.Debounce,
		ttl:        opts.TTL,
		changeSubs: make(map[int]func(State)),
		clearSubs:  make(map[int]func()),
	}
}

// Save merges a partial update into the session, creating it on first write,
// and schedules a debounced persist. Calls within the debounce window collapse
// into a single storage write; each call resets the timer. Returns a copy of
// the merged snapshot.
func (s *Service) Save(ctx context.Context, u Update) *State {
	s.mu.Lock()
	s.loadLocked(ctx)
	s.mergeLocked(u)
	s.m.SavesTotal.WithLabelValues("debounced").Inc()
	s.scheduleFlushLocked(ctx)
	st := s.cur.Clone()
	s.mu.Unlock()
	return st
}

// SaveImmediate merges like Save but persists synchronously, bypassing the
// debounce window.
func (s *Service) SaveImmediate(ctx context.Context, u Update) *State {
	s.mu.Lock()
	s.loadLocked(ctx)
	s.mergeLocked(u)
	s.m.SavesTotal.WithLabelValues("immediate").Inc()
	s.persistLocked(ctx)
	st, subs := s.changedLocked()
	s.mu.Unlock()
	notifyChange(subs, st)
	return st
}

// AddExecutionRecord appends a workflow run to the history via the debounced
// save path, evicting the oldest records beyond the cap. Missing ID, timestamp
// and status are stamped.
func (s *Service) AddExecutionRecord(ctx context.Context, rec ExecutionRecord) *State {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.Status == "" {
		rec.Status = ExecPending
	}

	s.mu.Lock()
	s.loadLocked(ctx)
	if s.cur == nil {
		s.cur = newState()
	}
	if n := s.cur.appendExecution(rec); n > 0 {
		s.m.HistoryEvictionsTotal.Add(float64(n))
	}
	s.touchLocked()
	s.m.SavesTotal.WithLabelValues("debounced").Inc()
	s.scheduleFlushLocked(ctx)
	st := s.cur.Clone()
	s.mu.Unlock()
	return st
}

// Load returns a copy of the current session, or nil when none exists or the
// TTL has passed. Expiry purges the stored record. The returned state reflects
// merges still waiting on the debounce timer.
func (s *Service) Load(ctx context.Context) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	if s.cur == nil {
		return nil
	}
	return s.cur.Clone()
}

// Clear deletes the session from storage and memory and notifies OnClear
// subscribers.
func (s *Service) Clear(ctx context.Context) {
	s.mu.Lock()
	s.loaded = true
	s.dropLocked(ctx)
	s.m.ClearsTotal.Inc()
	subs := make([]func(), 0, len(s.clearSubs))
	for _, fn := range s.clearSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// Export returns the session as pretty-printed JSON, or ErrNoState when no
// live session exists.
func (s *Service) Export(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	if s.cur == nil {
		return nil, ErrNoState
	}
	data, err := json.MarshalIndent(s.cur, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// Import replaces the session with a previously exported payload. The payload
// is schema-validated first; any failure leaves the existing session untouched.
// On success the state is persisted immediately with a fresh TTL and OnChange
// fires.
func (s *Service) Import(ctx context.Context, data []byte) (*State, error) {
	st, err := decodeState(data)
	if err != nil {
		s.m.ImportsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	s.mu.Lock()
	s.loadLocked(ctx)
	// keep the version token monotonic across the replacement
	if s.cur != nil && s.cur.Version > st.Version {
		st.Version = s.cur.Version
	}
	s.cur = st
	s.touchLocked()
	s.persistLocked(ctx)
	s.m.ImportsTotal.WithLabelValues("ok").Inc()
	snap, subs := s.changedLocked()
	s.mu.Unlock()
	notifyChange(subs, snap)
	return snap, nil
}

// OnChange registers fn to run with a copy of the state after every persisted
// save. It returns an unsubscribe func.
func (s *Service) OnChange(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.changeSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.changeSubs, id)
		s.mu.Unlock()
	}
}

// OnClear registers fn to run after every Clear. It returns an unsubscribe
// func.
func (s *Service) OnClear(fn func()) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.clearSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.clearSubs, id)
		s.mu.Unlock()
	}
}

// Reload re-reads the store and, when another writer moved the version token,
// replaces the snapshot and fires OnChange. Wired to the file backend's
// watcher so co-located instances see each other's writes.
func (s *Service) Reload(ctx context.Context) {
	s.mu.Lock()
	data, ok, err := s.store.Get(ctx, StateKey)
	if err != nil {
		s.m.LoadsTotal.WithLabelValues("error").Inc()
		s.logger.Error(ctx, err, "failed to re-read session state")
		s.mu.Unlock()
		return
	}
	if !ok {
		s.mu.Unlock()
		return
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.m.LoadsTotal.WithLabelValues("corrupt").Inc()
		s.logger.Warn(ctx, "ignoring corrupt session state on reload", "error", err)
		s.mu.Unlock()
		return
	}
	if st.Expired(time.Now()) {
		s.mu.Unlock()
		return
	}
	if s.cur != nil && s.cur.Version == st.Version {
		s.mu.Unlock()
		return
	}
	s.logger.Info(ctx, "session state changed externally",
		"session_id", st.SessionID,
		"version", st.Version,
	)
	s.loaded = true
	s.dirty = false
	s.stopTimerLocked()
	s.cur = &st
	snap, subs := s.changedLocked()
	s.mu.Unlock()
	notifyChange(subs, snap)
}

// Close flushes any pending debounced write synchronously. The service must
// not be used afterwards.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stopTimerLocked()
	if !s.dirty || s.cur == nil {
		return nil
	}
	return s.persistLocked(ctx)
}

func newState() *State {
	return &State{
		SessionID:        uuid.NewString(),
		ExecutionHistory: make([]ExecutionRecord, 0),
	}
}

// loadLocked makes the snapshot reflect storage once, then enforces the TTL.
// Read failures start an empty in-memory session.
func (s *Service) loadLocked(ctx context.Context) {
	if !s.loaded {
		s.loaded = true
		data, ok, err := s.store.Get(ctx, StateKey)
		switch {
		case err != nil:
			s.m.LoadsTotal.WithLabelValues("error").Inc()
			s.logger.Error(ctx, err, "failed to read session state, starting empty")
		case !ok:
			s.m.LoadsTotal.WithLabelValues("absent").Inc()
		default:
			var st State
			if err := json.Unmarshal(data, &st); err != nil {
				s.m.LoadsTotal.WithLabelValues("corrupt").Inc()
				s.logger.Warn(ctx, "dropping corrupt session state", "error", err)
				if derr := s.store.Delete(ctx, StateKey); derr != nil {
					s.logger.Error(ctx, derr, "failed to delete corrupt session state")
				}
			} else {
				s.m.LoadsTotal.WithLabelValues("ok").Inc()
				s.cur = &st
			}
		}
	}
	if s.cur != nil && s.cur.Expired(time.Now()) {
		s.m.LoadsTotal.WithLabelValues("expired").Inc()
		s.logger.Info(ctx, "session state expired",
			"session_id", s.cur.SessionID,
			"expired_at", s.cur.ExpiresAt,
		)
		s.dropLocked(ctx)
	}
}

func (s *Service) mergeLocked(u Update) {
	if s.cur == nil {
		s.cur = newState()
	}
	s.cur.apply(u)
	s.touchLocked()
}

// touchLocked restamps the TTL anchor after any mutation.
func (s *Service) touchLocked() {
	now := time.Now()
	s.cur.LastUpdated = now
	s.cur.ExpiresAt = now.Add(s.ttl)
	s.dirty = true
}

func (s *Service) scheduleFlushLocked(ctx context.Context) {
	s.stopTimerLocked()
	if s.closed {
		return
	}
	// outlive the caller's request context
	pctx := context.WithoutCancel(ctx)
	s.timer = time.AfterFunc(s.debounce, func() {
		s.flush(pctx)
	})
}

func (s *Service) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// flush is the debounce timer callback.
func (s *Service) flush(ctx context.Context) {
	s.mu.Lock()
	if s.closed || !s.dirty || s.cur == nil {
		s.mu.Unlock()
		return
	}
	s.persistLocked(ctx)
	st, subs := s.changedLocked()
	s.mu.Unlock()
	notifyChange(subs, st)
}

// persistLocked bumps the version token and writes the snapshot. A write
// failure leaves the session in memory only until the next persist succeeds.
func (s *Service) persistLocked(ctx context.Context) error {
	s.cur.Version++
	s.dirty = false
	data, err := json.Marshal(s.cur)
	if err == nil {
		err = s.store.Set(ctx, StateKey, data)
	}
	if err != nil {
		s.m.WritesTotal.WithLabelValues("error").Inc()
		s.logger.Error(ctx, err, "failed to persist session state, keeping it in memory",
			"session_id", s.cur.SessionID,
			"version", s.cur.Version,
		)
		return err
	}
	s.m.WritesTotal.WithLabelValues("ok").Inc()
	return nil
}

// dropLocked wipes the session from memory and storage.
func (s *Service) dropLocked(ctx context.Context) {
	s.stopTimerLocked()
	s.dirty = false
	s.cur = nil
	if err := s.store.Delete(ctx, StateKey); err != nil {
		s.logger.Error(ctx, err, "failed to delete session state")
	}
}

// changedLocked snapshots the state and the OnChange subscribers so callbacks
// can run outside the lock.
func (s *Service) changedLocked() (*State, []func(State)) {
	st := s.cur.Clone()
	subs := make([]func(State), 0, len(s.changeSubs))
	for _, fn := range s.changeSubs {
		subs = append(subs, fn)
	}
	return st, subs
}

func notifyChange(subs []func(State), st *State) {
	for _, fn := range subs {
		fn(*st)
	}
}
