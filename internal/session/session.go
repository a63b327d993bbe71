// Package session builds the projections and controller for one actor and
// disposes of them when the actor leaves.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/buildtall-systems/printq/internal/availability"
	"github.com/buildtall-systems/printq/internal/documents"
	"github.com/buildtall-systems/printq/internal/identity"
	"github.com/buildtall-systems/printq/internal/inventory"
	"github.com/buildtall-systems/printq/internal/lifecycle"
	"github.com/buildtall-systems/printq/internal/logging"
	"github.com/buildtall-systems/printq/internal/metrics"
	"github.com/buildtall-systems/printq/internal/orders"
	"github.com/buildtall-systems/printq/internal/realtime"
	"github.com/buildtall-systems/printq/internal/revenue"
)

// Store is the record store a session reads and writes.
type Store interface {
	orders.Fetcher
	lifecycle.Backend
	inventory.Backend
	availability.Backend
}

// Deps are the process-wide collaborators shared by all sessions.
type Deps struct {
	Store     Store
	Client    *realtime.Client
	Documents documents.Store
	Tokens    *lifecycle.TokenIssuer
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// Location is the calendar used for daily figures.
	Location *time.Location
}

// Session holds one actor's projections. Inventory is only projected for
// staff, revenue only for admins.
type Session struct {
	Actor     identity.Actor
	Orders    *orders.Store
	Service   *availability.Flag
	Inventory *inventory.Ledger
	Revenue   *revenue.Aggregator
	Lifecycle *lifecycle.Controller

	client *realtime.Client
	subs   []*realtime.Subscription
	logger *slog.Logger
}

type binding struct {
	collection string
	handler    realtime.Handler
}

// Open subscribes the actor's projections and then loads them. Subscribing
// first means no committed change falls between snapshot and stream. A load
// failure is returned alongside a usable session; call Reload to retry.
func Open(ctx context.Context, deps Deps, actor identity.Actor) (*Session, error) {
	logger := logging.OrDiscard(deps.Logger).With("actor", actor.ID, "role", actor.Role)

	s := &Session{
		Actor:   actor,
		client:  deps.Client,
		logger:  logger,
		Orders:  orders.NewStore(deps.Store, actor, orders.WithLogger(logger), orders.WithMetrics(deps.Metrics)),
		Service: availability.New(deps.Store, availability.WithLogger(logger), availability.WithMetrics(deps.Metrics)),
	}
	if actor.Role.IsStaff() {
		s.Inventory = inventory.New(deps.Store, actor, inventory.WithLogger(logger), inventory.WithMetrics(deps.Metrics))
	}
	if identity.Can(actor.Role, identity.ActionViewRevenue) {
		s.Revenue = revenue.NewAggregator(s.Orders, deps.Location)
	}
	s.Lifecycle = lifecycle.New(deps.Store, s.Orders, s.Service, deps.Documents, deps.Tokens,
		lifecycle.WithLogger(logger), lifecycle.WithMetrics(deps.Metrics))

	subscriptions := []binding{
		{realtime.CollectionOrders, s.Orders},
		{realtime.CollectionServiceStatus, s.Service},
	}
	if s.Inventory != nil {
		subscriptions = append(subscriptions, binding{realtime.CollectionInventory, s.Inventory})
	}
	for _, sub := range subscriptions {
		h, err := deps.Client.Subscribe(ctx, sub.collection, realtime.AllKinds, sub.handler)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.subs = append(s.subs, h)
	}

	logger.Info("session opened")
	return s, s.Reload(ctx)
}

// Reload re-fetches every projection concurrently.
func (s *Session) Reload(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		_, err := s.Orders.Load(ctx)
		return err
	})
	g.Go(func() error {
		_, err := s.Service.Load(ctx)
		return err
	})
	if s.Inventory != nil {
		g.Go(func() error {
			_, err := s.Inventory.Load(ctx)
			return err
		})
	}
	return g.Wait()
}

// Stale returns a subscription error if any projection may be out of date.
func (s *Session) Stale() error {
	if err := s.Orders.Stale(); err != nil {
		return err
	}
	if err := s.Service.Stale(); err != nil {
		return err
	}
	if s.Inventory != nil {
		return s.Inventory.Stale()
	}
	return nil
}

// Close releases the session's subscriptions. Projections stay readable but
// no longer receive changes.
func (s *Session) Close() error {
	var errs []error
	for _, sub := range s.subs {
		if err := s.client.Unsubscribe(sub); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribing %s: %w", sub.Collection(), err))
		}
	}
	s.subs = nil
	s.logger.Info("session closed")
	return errors.Join(errs...)
}
