package orders

import (
	"context"
	"log/slog"
	"sync"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/identity"
	"github.com/buildtall-systems/printq/internal/logging"
	"github.com/buildtall-systems/printq/internal/metrics"
	"github.com/buildtall-systems/printq/internal/realtime"
)

// LoadState aliases domain.LoadState.
type LoadState = domain.LoadState

const (
	NotLoaded = domain.NotLoaded
	Loading   = domain.Loading
	Loaded    = domain.Loaded
	Failed    = domain.Failed
)

// Fetcher reads order records from the backing store.
type Fetcher interface {
	FetchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
}

// Event describes one change to the projection. Reload events carry no
// orders.
type Event struct {
	Kind   realtime.Kind
	Reload bool
	Before *domain.Order
	After  *domain.Order
}

// Store is the in-memory projection of the orders an actor may see. Its map
// is only ever mutated by Load and ApplyDelta.
type Store struct {
	fetcher Fetcher
	actor   identity.Actor
	filter  domain.OrderFilter
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	orders   map[string]domain.Order
	state    LoadState
	loadErr  error
	buffered []delta
	stale    error
	loadGen  uint64 // bumped per Load; older fetch results are discarded

	listenMu  sync.Mutex
	listeners []func(Event)
}

type delta struct {
	kind  realtime.Kind
	order domain.Order
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore builds the projection for actor. Customers see only their own
// orders; staff see all.
func NewStore(f Fetcher, actor identity.Actor, opts ...Option) *Store {
	s := &Store{
		fetcher: f,
		actor:   actor,
		orders:  make(map[string]domain.Order),
	}
	if actor.Role == identity.RoleCustomer {
		s.filter = domain.OrderFilter{OwnerID: actor.ID}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger).With("collection", realtime.CollectionOrders, "actor", actor.ID)
	return s
}

func (s *Store) Actor() identity.Actor { return s.actor }

// Load replaces the projection with a fresh snapshot. Deltas that arrive
// while the fetch is in flight are replayed on top of it. On failure the
// projection is left empty and the error is returned as a FetchError. When
// loads overlap only the most recently started one installs its result.
func (s *Store) Load(ctx context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	s.loadGen++
	gen := s.loadGen
	s.state = Loading
	s.buffered = nil
	s.mu.Unlock()

	fetched, err := s.fetcher.FetchOrders(ctx, s.filter)
	s.metrics.ProjectionLoaded(realtime.CollectionOrders, err)

	s.mu.Lock()
	if gen != s.loadGen {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded orders snapshot")
		return s.View(ViewAll), nil
	}
	if err != nil {
		s.orders = make(map[string]domain.Order)
		s.state = Failed
		s.loadErr = &domain.FetchError{Collection: realtime.CollectionOrders, Err: err}
		s.buffered = nil
		loadErr := s.loadErr
		s.mu.Unlock()
		s.logger.Warn("loading orders failed", "error", err)
		s.notify(Event{Reload: true})
		return nil, loadErr
	}

	snapshot := make(map[string]domain.Order, len(fetched))
	for _, o := range fetched {
		n, err := Normalize(o)
		if err != nil {
			s.logger.Warn("skipping malformed order in snapshot", "record_id", o.ID, "error", err)
			continue
		}
		if s.filter.Matches(n) {
			snapshot[n.ID] = n
		}
	}
	for _, d := range s.buffered {
		s.apply(snapshot, d)
	}
	s.orders = snapshot
	s.state = Loaded
	s.loadErr = nil
	s.stale = nil
	s.buffered = nil
	s.mu.Unlock()

	s.notify(Event{Reload: true})
	return s.View(ViewAll), nil
}

// ApplyDelta reconciles one change into the projection: create inserts if
// absent, update replaces or inserts, delete removes if present. It is
// idempotent and never fails. It reports whether the projection changed.
func (s *Store) ApplyDelta(kind realtime.Kind, o domain.Order) bool {
	if kind != realtime.KindDelete {
		n, err := Normalize(o)
		if err != nil {
			s.dropMalformed(o.ID, kind, err)
			return false
		}
		o = n
		if !s.filter.Matches(o) {
			return false
		}
	} else if o.ID == "" {
		s.dropMalformed("", kind, ErrMalformedOrder)
		return false
	}

	s.mu.Lock()
	if s.state == Loading {
		s.buffered = append(s.buffered, delta{kind: kind, order: o})
		s.mu.Unlock()
		return false
	}
	ev, changed := s.apply(s.orders, delta{kind: kind, order: o})
	s.mu.Unlock()

	if changed {
		s.metrics.DeltaApplied(realtime.CollectionOrders, string(kind))
		s.notify(ev)
	}
	return changed
}

// apply mutates m. Callers hold s.mu.
func (s *Store) apply(m map[string]domain.Order, d delta) (Event, bool) {
	o := d.order
	before, exists := m[o.ID]
	ev := Event{Kind: d.kind}
	if exists {
		b := before
		ev.Before = &b
	}

	switch d.kind {
	case realtime.KindCreate:
		if exists {
			return ev, false
		}
	case realtime.KindUpdate:
		if exists && before.Paid() && !o.Paid() {
			o.PaymentStatus = domain.PaymentPaid
			if o.PaidAt == nil {
				o.PaidAt = before.PaidAt
			}
		}
	case realtime.KindDelete:
		if !exists {
			return ev, false
		}
		delete(m, o.ID)
		return ev, true
	default:
		return ev, false
	}

	m[o.ID] = o
	ev.After = &o
	return ev, true
}

// HandleChange implements realtime.Handler.
func (s *Store) HandleChange(_ context.Context, c realtime.Change) {
	if c.Kind == realtime.KindDelete {
		s.ApplyDelta(c.Kind, domain.Order{ID: c.RecordID})
		return
	}
	o, err := Decode(c.Record)
	if err != nil {
		s.dropMalformed(c.RecordID, c.Kind, err)
		return
	}
	if o.ID != c.RecordID {
		s.dropMalformed(c.RecordID, c.Kind, ErrMalformedOrder)
		return
	}
	s.ApplyDelta(c.Kind, o)
}

// ChannelStale implements realtime.StatusHandler.
func (s *Store) ChannelStale(err error) {
	s.mu.Lock()
	s.stale = err
	s.mu.Unlock()
	s.logger.Warn("orders may be stale", "error", err)
}

// ChannelResumed implements realtime.StatusHandler by re-fetching, since
// changes missed while disconnected are not replayed.
func (s *Store) ChannelResumed(ctx context.Context) {
	if _, err := s.Load(ctx); err != nil {
		s.logger.Warn("reloading orders after reconnect", "error", err)
	}
}

func (s *Store) dropMalformed(id string, kind realtime.Kind, err error) {
	s.logger.Warn("dropping malformed delta", "record_id", id, "kind", kind, "error", err)
	s.metrics.DeltaDropped(realtime.CollectionOrders, "malformed")
}

// State is the load state of the projection.
func (s *Store) State() LoadState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err is the last load error, if the projection is in the Failed state.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// Stale returns the subscription error seen since the last successful load.
func (s *Store) Stale() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// Len is the number of orders in the projection.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// OnChange registers fn to run after every change to the projection.
func (s *Store) OnChange(fn func(Event)) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(ev Event) {
	s.listenMu.Lock()
	listeners := append([]func(Event){}, s.listeners...)
	s.listenMu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
