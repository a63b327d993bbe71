// Package availability projects the shop's online/offline switch.
package availability

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/logging"
	"github.com/buildtall-systems/printq/internal/metrics"
	"github.com/buildtall-systems/printq/internal/realtime"
)

// Backend reads and writes the service_status singleton.
type Backend interface {
	GetServiceStatus(ctx context.Context) (domain.ServiceStatus, error)
	SetServiceOnline(ctx context.Context, online bool) (domain.ServiceStatus, error)
}

// Flag is the local projection of service availability. Set and Toggle write
// through to the backend; the projection itself only changes when the
// resulting delta arrives.
type Flag struct {
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	status  domain.ServiceStatus
	state   domain.LoadState
	loadErr error
	stale   error
	// newest delta seen while a load is in flight
	pending *domain.ServiceStatus
	loadGen uint64

	listenMu  sync.Mutex
	listeners []func(domain.ServiceStatus)
}

type Option func(*Flag)

func WithLogger(l *slog.Logger) Option {
	return func(f *Flag) { f.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Flag) { f.metrics = m }
}

func New(b Backend, opts ...Option) *Flag {
	f := &Flag{backend: b}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logging.OrDiscard(f.logger).With("collection", realtime.CollectionServiceStatus)
	return f
}

// Load fetches the current status. On failure the flag reads as offline. A
// load superseded by a later one is discarded.
func (f *Flag) Load(ctx context.Context) (bool, error) {
	f.mu.Lock()
	f.loadGen++
	gen := f.loadGen
	f.state = domain.Loading
	f.pending = nil
	f.mu.Unlock()

	s, err := f.backend.GetServiceStatus(ctx)
	f.metrics.ProjectionLoaded(realtime.CollectionServiceStatus, err)

	f.mu.Lock()
	if gen != f.loadGen {
		online := f.status.Online
		f.mu.Unlock()
		f.logger.Debug("discarding superseded service status")
		return online, nil
	}
	if err != nil {
		f.status = domain.ServiceStatus{}
		f.state = domain.Failed
		f.loadErr = &domain.FetchError{Collection: realtime.CollectionServiceStatus, Err: err}
		f.pending = nil
		loadErr := f.loadErr
		f.mu.Unlock()
		f.logger.Warn("loading service status failed", "error", err)
		return false, loadErr
	}
	if f.pending != nil {
		s = *f.pending
		f.pending = nil
	}
	f.status = s
	f.state = domain.Loaded
	f.loadErr = nil
	f.stale = nil
	f.mu.Unlock()

	f.notify(s)
	return s.Online, nil
}

// Online reports the projected availability. An unloaded flag is offline.
func (f *Flag) Online() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status.Online
}

func (f *Flag) Status() domain.ServiceStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

func (f *Flag) State() domain.LoadState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

func (f *Flag) Err() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loadErr
}

func (f *Flag) Stale() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.stale
}

// Set writes online to the backend.
func (f *Flag) Set(ctx context.Context, online bool) (domain.ServiceStatus, error) {
	s, err := f.backend.SetServiceOnline(ctx, online)
	f.metrics.Mutation("set-service", err)
	if err != nil {
		return domain.ServiceStatus{}, &domain.MutationError{Op: "set service status", Err: err}
	}
	return s, nil
}

// Toggle writes the inverse of the projected value.
func (f *Flag) Toggle(ctx context.Context) (domain.ServiceStatus, error) {
	return f.Set(ctx, !f.Online())
}

// HandleChange implements realtime.Handler.
func (f *Flag) HandleChange(_ context.Context, c realtime.Change) {
	if c.Kind == realtime.KindDelete {
		f.logger.Warn("ignoring delete of service status singleton", "record_id", c.RecordID)
		f.metrics.DeltaDropped(realtime.CollectionServiceStatus, "malformed")
		return
	}
	var s domain.ServiceStatus
	if err := json.Unmarshal(c.Record, &s); err != nil {
		f.logger.Warn("dropping malformed delta", "record_id", c.RecordID, "kind", c.Kind, "error", err)
		f.metrics.DeltaDropped(realtime.CollectionServiceStatus, "malformed")
		return
	}

	f.mu.Lock()
	if f.state == domain.Loading {
		f.pending = &s
		f.mu.Unlock()
		return
	}
	changed := f.status.Online != s.Online || f.state != domain.Loaded
	f.status = s
	f.state = domain.Loaded
	f.mu.Unlock()

	f.metrics.DeltaApplied(realtime.CollectionServiceStatus, string(c.Kind))
	if changed {
		f.logger.Info("service availability changed", "online", s.Online)
	}
	f.notify(s)
}

// ChannelStale implements realtime.StatusHandler.
func (f *Flag) ChannelStale(err error) {
	f.mu.Lock()
	f.stale = err
	f.mu.Unlock()
	f.logger.Warn("service status may be stale", "error", err)
}

// ChannelResumed implements realtime.StatusHandler.
func (f *Flag) ChannelResumed(ctx context.Context) {
	if _, err := f.Load(ctx); err != nil {
		f.logger.Warn("reloading service status after reconnect", "error", err)
	}
}

// OnChange registers fn to run whenever the projected status is replaced.
func (f *Flag) OnChange(fn func(domain.ServiceStatus)) {
	f.listenMu.Lock()
	defer f.listenMu.Unlock()
	f.listeners = append(f.listeners, fn)
}

func (f *Flag) notify(s domain.ServiceStatus) {
	f.listenMu.Lock()
	listeners := append([]func(domain.ServiceStatus){}, f.listeners...)
	f.listenMu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}
