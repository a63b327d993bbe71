// Package inventory projects the shop's consumables and raises stock alerts.
package inventory

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/identity"
	"github.com/buildtall-systems/printq/internal/logging"
	"github.com/buildtall-systems/printq/internal/metrics"
	"github.com/buildtall-systems/printq/internal/realtime"
)

// Backend is the inventory collection of the record store.
type Backend interface {
	FetchInventory(ctx context.Context) ([]domain.InventoryItem, error)
	InsertItem(ctx context.Context, it domain.InventoryItem) (domain.InventoryItem, error)
	UpdateItem(ctx context.Context, id string, fields domain.ItemFields) (domain.InventoryItem, error)
	AdjustItemQuantity(ctx context.Context, id string, delta int) (domain.InventoryItem, error)
	DeleteItem(ctx context.Context, id string) error
}

// Ledger is the inventory projection for one actor. Writes go to the backend
// and reach the projection as deltas.
type Ledger struct {
	backend Backend
	actor   identity.Actor
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	items    map[string]domain.InventoryItem
	state    domain.LoadState
	loadErr  error
	stale    error
	buffered []delta
	loadGen  uint64

	listenMu sync.Mutex
	onAlert  []func(Alert)
	onChange []func()
}

type delta struct {
	kind realtime.Kind
	item domain.InventoryItem
}

type Option func(*Ledger)

func WithLogger(l *slog.Logger) Option {
	return func(led *Ledger) { led.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func New(b Backend, actor identity.Actor, opts ...Option) *Ledger {
	l := &Ledger{
		backend: b,
		actor:   actor,
		items:   make(map[string]domain.InventoryItem),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrDiscard(l.logger).With("collection", realtime.CollectionInventory)
	return l
}

// Load replaces the projection with a fresh snapshot, replaying deltas that
// arrived during the fetch. A load superseded by a later one is discarded.
func (l *Ledger) Load(ctx context.Context) ([]domain.InventoryItem, error) {
	l.mu.Lock()
	l.loadGen++
	gen := l.loadGen
	l.state = domain.Loading
	l.buffered = nil
	l.mu.Unlock()

	fetched, err := l.backend.FetchInventory(ctx)
	l.metrics.ProjectionLoaded(realtime.CollectionInventory, err)

	l.mu.Lock()
	if gen != l.loadGen {
		l.mu.Unlock()
		l.logger.Debug("discarding superseded inventory snapshot")
		return l.Items(), nil
	}
	if err != nil {
		l.items = make(map[string]domain.InventoryItem)
		l.state = domain.Failed
		l.loadErr = &domain.FetchError{Collection: realtime.CollectionInventory, Err: err}
		l.buffered = nil
		loadErr := l.loadErr
		l.mu.Unlock()
		l.logger.Warn("loading inventory failed", "error", err)
		l.changed()
		return nil, loadErr
	}

	snapshot := make(map[string]domain.InventoryItem, len(fetched))
	for _, it := range fetched {
		it.Status = domain.StockStatusFor(it.Quantity)
		snapshot[it.ID] = it
	}
	var alerts []Alert
	for _, d := range l.buffered {
		if a, _, ok := apply(snapshot, d); ok {
			alerts = append(alerts, a)
		}
	}
	l.items = snapshot
	l.state = domain.Loaded
	l.loadErr = nil
	l.stale = nil
	l.buffered = nil
	l.mu.Unlock()

	for _, a := range alerts {
		l.raise(a)
	}
	l.changed()
	return l.Items(), nil
}

// AdjustQuantity adds delta (which may be negative) to an item's quantity.
// The stored quantity never drops below zero.
func (l *Ledger) AdjustQuantity(ctx context.Context, id string, delta int) (domain.InventoryItem, error) {
	if err := identity.Authorize(l.actor, identity.ActionAdjustStock); err != nil {
		return domain.InventoryItem{}, err
	}
	if _, ok := l.Get(id); !ok {
		return domain.InventoryItem{}, domain.Invalid(domain.ErrItemNotFound, "no inventory item %q", id)
	}
	it, err := l.backend.AdjustItemQuantity(ctx, id, delta)
	return it, l.mutation("adjust stock", err)
}

// SetItem edits name, category or quantity.
func (l *Ledger) SetItem(ctx context.Context, id string, fields domain.ItemFields) (domain.InventoryItem, error) {
	if err := identity.Authorize(l.actor, identity.ActionEditItem); err != nil {
		return domain.InventoryItem{}, err
	}
	if err := fields.Validate(); err != nil {
		return domain.InventoryItem{}, domain.Invalid(domain.ErrInvalidItem, "%v", err)
	}
	if _, ok := l.Get(id); !ok {
		return domain.InventoryItem{}, domain.Invalid(domain.ErrItemNotFound, "no inventory item %q", id)
	}
	it, err := l.backend.UpdateItem(ctx, id, fields)
	return it, l.mutation("edit item", err)
}

// Create adds a new item. ID and status are assigned by the store.
func (l *Ledger) Create(ctx context.Context, name string, category domain.Category, quantity int) (domain.InventoryItem, error) {
	if err := identity.Authorize(l.actor, identity.ActionCreateItem); err != nil {
		return domain.InventoryItem{}, err
	}
	name = strings.TrimSpace(name)
	if err := (domain.ItemFields{Name: &name, Quantity: &quantity}).Validate(); err != nil {
		return domain.InventoryItem{}, domain.Invalid(domain.ErrInvalidItem, "%v", err)
	}
	it, err := l.backend.InsertItem(ctx, domain.InventoryItem{Name: name, Category: category, Quantity: quantity})
	return it, l.mutation("create item", err)
}

// Delete removes an item.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	if err := identity.Authorize(l.actor, identity.ActionDeleteItem); err != nil {
		return err
	}
	if _, ok := l.Get(id); !ok {
		return domain.Invalid(domain.ErrItemNotFound, "no inventory item %q", id)
	}
	return l.mutation("delete item", l.backend.DeleteItem(ctx, id))
}

func (l *Ledger) mutation(op string, err error) error {
	l.metrics.Mutation(op, err)
	if err != nil {
		return &domain.MutationError{Op: op, Err: err}
	}
	return nil
}

// HandleChange implements realtime.Handler. Update deltas are compared with
// the projected quantity to raise alerts.
func (l *Ledger) HandleChange(_ context.Context, c realtime.Change) {
	d := delta{kind: c.Kind, item: domain.InventoryItem{ID: c.RecordID}}
	if c.Kind != realtime.KindDelete {
		var it domain.InventoryItem
		if err := json.Unmarshal(c.Record, &it); err != nil || it.ID == "" || it.ID != c.RecordID || it.Quantity < 0 {
			l.logger.Warn("dropping malformed delta", "record_id", c.RecordID, "kind", c.Kind, "error", err)
			l.metrics.DeltaDropped(realtime.CollectionInventory, "malformed")
			return
		}
		it.Status = domain.StockStatusFor(it.Quantity)
		d.item = it
	}

	l.mu.Lock()
	if l.state == domain.Loading {
		l.buffered = append(l.buffered, d)
		l.mu.Unlock()
		return
	}
	alert, changed, alerted := apply(l.items, d)
	l.mu.Unlock()

	if !changed {
		return
	}
	l.metrics.DeltaApplied(realtime.CollectionInventory, string(c.Kind))
	if alerted {
		l.raise(alert)
	}
	l.changed()
}

// apply reconciles d into m with the same rules as the order store. It
// reports whether m changed and the alert an update raises.
func apply(m map[string]domain.InventoryItem, d delta) (alert Alert, changed, alerted bool) {
	before, exists := m[d.item.ID]
	switch d.kind {
	case realtime.KindCreate:
		if exists {
			return Alert{}, false, false
		}
		m[d.item.ID] = d.item
		return Alert{}, true, false
	case realtime.KindUpdate:
		m[d.item.ID] = d.item
		if exists {
			if kind, ok := DetectAlert(before.Quantity, d.item.Quantity); ok {
				return Alert{Kind: kind, Item: d.item, Before: before.Quantity, After: d.item.Quantity}, true, true
			}
		}
		return Alert{}, true, false
	case realtime.KindDelete:
		if !exists {
			return Alert{}, false, false
		}
		delete(m, d.item.ID)
		return Alert{}, true, false
	}
	return Alert{}, false, false
}

func (l *Ledger) raise(a Alert) {
	l.logger.Info("stock alert", "alert", a.Kind, "record_id", a.Item.ID, "before", a.Before, "after", a.After)
	l.metrics.StockAlert(string(a.Kind))

	l.listenMu.Lock()
	fns := append([]func(Alert){}, l.onAlert...)
	l.listenMu.Unlock()
	for _, fn := range fns {
		fn(a)
	}
}

func (l *Ledger) changed() {
	l.listenMu.Lock()
	fns := append([]func(){}, l.onChange...)
	l.listenMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// OnAlert registers fn for stock alerts.
func (l *Ledger) OnAlert(fn func(Alert)) {
	l.listenMu.Lock()
	defer l.listenMu.Unlock()
	l.onAlert = append(l.onAlert, fn)
}

// OnChange registers fn to run after the projection changes.
func (l *Ledger) OnChange(fn func()) {
	l.listenMu.Lock()
	defer l.listenMu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// ChannelStale implements realtime.StatusHandler.
func (l *Ledger) ChannelStale(err error) {
	l.mu.Lock()
	l.stale = err
	l.mu.Unlock()
	l.logger.Warn("inventory may be stale", "error", err)
}

// ChannelResumed implements realtime.StatusHandler.
func (l *Ledger) ChannelResumed(ctx context.Context) {
	if _, err := l.Load(ctx); err != nil {
		l.logger.Warn("reloading inventory after reconnect", "error", err)
	}
}

// Items returns the projection sorted by name.
func (l *Ledger) Items() []domain.InventoryItem {
	l.mu.RLock()
	out := make([]domain.InventoryItem, 0, len(l.items))
	for _, it := range l.items {
		out = append(out, it)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *Ledger) Get(id string) (domain.InventoryItem, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	it, ok := l.items[id]
	return it, ok
}

// Find resolves an item by ID or case-insensitive name.
func (l *Ledger) Find(ref string) (domain.InventoryItem, bool) {
	if it, ok := l.Get(ref); ok {
		return it, true
	}
	for _, it := range l.Items() {
		if strings.EqualFold(it.Name, strings.TrimSpace(ref)) {
			return it, true
		}
	}
	return domain.InventoryItem{}, false
}

func (l *Ledger) State() domain.LoadState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Ledger) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loadErr
}

func (l *Ledger) Stale() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stale
}

// Summary counts items by category and status.
type Summary struct {
	Total      int
	ByCategory map[domain.Category]int
	ByStatus   map[domain.StockStatus]int
	// LowStock counts items at or below the low-stock threshold, including
	// items that are out.
	LowStock int
}

func (l *Ledger) Summary() Summary {
	s := Summary{
		ByCategory: make(map[domain.Category]int),
		ByStatus:   make(map[domain.StockStatus]int),
	}
	for _, it := range l.Items() {
		s.Total++
		s.ByCategory[it.Category]++
		s.ByStatus[it.Status]++
		if it.Quantity <= domain.LowStockThreshold {
			s.LowStock++
		}
	}
	return s
}
