// Package lifecycle drives print orders through payment and production.
//
// The controller never changes a projection itself. Every operation is
// validated against the actor's projections, written to the record store,
// and then observed by all sessions as a delta.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/buildtall-systems/printq/internal/availability"
	"github.com/buildtall-systems/printq/internal/documents"
	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/fsm"
	"github.com/buildtall-systems/printq/internal/identity"
	"github.com/buildtall-systems/printq/internal/logging"
	"github.com/buildtall-systems/printq/internal/metrics"
	"github.com/buildtall-systems/printq/internal/orders"
)

// Backend is the orders collection of the record store.
type Backend interface {
	InsertOrder(ctx context.Context, o domain.Order) (domain.Order, error)
	UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (domain.Order, error)
}

// Controller validates and issues lifecycle mutations for one actor.
type Controller struct {
	backend Backend
	orders  *orders.Store
	service *availability.Flag
	docs    documents.Store
	tokens  *TokenIssuer
	machine *fsm.OrderStateMachine
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New builds a controller acting as the actor of store.
func New(b Backend, store *orders.Store, service *availability.Flag, docs documents.Store, tokens *TokenIssuer, opts ...Option) *Controller {
	c := &Controller{
		backend: b,
		orders:  store,
		service: service,
		docs:    docs,
		tokens:  tokens,
		machine: fsm.NewOrderStateMachine(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger).With("actor", store.Actor().ID)
	return c
}

func (c *Controller) actor() identity.Actor { return c.orders.Actor() }

// SubmitRequest is a new print job.
type SubmitRequest struct {
	File    documents.File
	Options domain.PrintOptions
}

// Submit uploads the document and creates the order in PendingPayment.
// Submissions are refused while the local availability flag reads offline; a
// submission racing an offline toggle on another session is still accepted.
func (c *Controller) Submit(ctx context.Context, req SubmitRequest) (domain.Order, error) {
	actor := c.actor()
	if err := identity.Authorize(actor, identity.ActionSubmit); err != nil {
		return domain.Order{}, err
	}
	if !c.service.Online() {
		return domain.Order{}, domain.Invalid(domain.ErrServiceOffline, "the print shop is not accepting orders right now")
	}

	opts := req.Options
	if opts.Finish == "" {
		opts.Finish = domain.FinishNormal
	}
	if err := opts.Validate(); err != nil {
		return domain.Order{}, domain.Invalid(domain.ErrInvalidOptions, "%v", err)
	}
	if err := documents.Validate(req.File); err != nil {
		return domain.Order{}, err
	}

	doc, err := c.docs.Upload(ctx, actor.ID, req.File)
	if err != nil {
		return domain.Order{}, c.failed("upload document", err)
	}

	o := domain.Order{
		ID:            uuid.NewString(),
		OwnerID:       actor.ID,
		OwnerName:     actor.DisplayName,
		DocumentRef:   doc.Ref,
		DocumentName:  doc.Name,
		DocumentSize:  doc.Size,
		Options:       opts,
		PaymentStatus: domain.PaymentUnpaid,
		Price:         domain.Price(opts),
		Status:        domain.StatusPendingPayment,
		Progress:      domain.ProgressFor(domain.StatusPendingPayment),
		CreatedAt:     c.now().UTC(),
	}
	created, err := c.backend.InsertOrder(ctx, o)
	if err != nil {
		return domain.Order{}, c.failed("submit", err)
	}
	c.metrics.Mutation("submit", nil)
	c.logger.Info("order submitted", "record_id", created.ID, "order_number", created.Number, "price", created.Price)
	return created, nil
}

// Pay captures payment for one of the actor's pending orders and issues the
// pickup verification token.
func (c *Controller) Pay(ctx context.Context, ref string, method domain.PaymentMethod) (domain.Order, error) {
	actor := c.actor()
	if err := identity.Authorize(actor, identity.ActionPay); err != nil {
		return domain.Order{}, err
	}
	o, err := c.find(ref)
	if err != nil {
		return domain.Order{}, err
	}
	if o.OwnerID != actor.ID {
		return domain.Order{}, domain.Invalid(domain.ErrNotOwner, "order #%d belongs to someone else", o.Number)
	}
	if o.Paid() || o.Status != domain.StatusPendingPayment {
		return domain.Order{}, domain.Invalid(domain.ErrInvalidTransition, "order #%d is already paid", o.Number)
	}
	if method == "" {
		method = domain.PaymentGPay
	}

	next, err := c.machine.Transition(ctx, string(o.Status), fsm.OrderEventPay)
	if err != nil {
		return domain.Order{}, domain.Invalid(domain.ErrInvalidTransition, "order #%d cannot be paid: %v", o.Number, err)
	}

	token, err := c.tokens.Issue()
	if err != nil {
		return domain.Order{}, c.failed("pay", err)
	}
	status := domain.Status(next)
	progress := domain.ProgressFor(status)
	paid := domain.PaymentPaid
	paidAt := c.now().UTC()
	updated, err := c.backend.UpdateOrder(ctx, o.ID, domain.OrderPatch{
		Status:            &status,
		Progress:          &progress,
		PaymentStatus:     &paid,
		PaymentMethod:     &method,
		VerificationToken: &token,
		PaidAt:            &paidAt,
	})
	if err != nil {
		c.tokens.Release(token)
		return domain.Order{}, c.failed("pay", err)
	}
	c.metrics.Mutation("pay", nil)
	c.logger.Info("order paid", "record_id", o.ID, "order_number", o.Number, "method", method)
	return updated, nil
}

// AdvanceStatus moves a paid order forward to target, or to the next status
// when target is empty. Moving to a status already passed is rejected.
func (c *Controller) AdvanceStatus(ctx context.Context, ref string, target domain.Status) (domain.Order, error) {
	if err := identity.Authorize(c.actor(), identity.ActionAdvanceStatus); err != nil {
		return domain.Order{}, err
	}
	o, err := c.find(ref)
	if err != nil {
		return domain.Order{}, err
	}
	if !o.Paid() {
		return domain.Order{}, domain.Invalid(domain.ErrNotPaid, "order #%d has not been paid", o.Number)
	}
	if o.Status.IsTerminal() {
		return domain.Order{}, domain.Invalid(domain.ErrInvalidTransition, "order #%d is already %s", o.Number, o.Status)
	}
	if target == "" {
		target, _ = o.Status.Next()
	}
	if !target.IsValid() {
		return domain.Order{}, domain.Invalid(domain.ErrInvalidTransition, "unknown status %q", target)
	}
	if !o.Status.Before(target) {
		return domain.Order{}, domain.Invalid(domain.ErrInvalidTransition, "order #%d cannot move from %s back to %s", o.Number, o.Status, target)
	}

	next, err := c.machine.Transition(ctx, string(o.Status), fsm.EventFor(string(target)))
	if err != nil {
		return domain.Order{}, domain.Invalid(domain.ErrInvalidTransition, "order #%d cannot move from %s to %s", o.Number, o.Status, target)
	}
	return c.update(ctx, "advance status", o, domain.Status(next), domain.ProgressFor(domain.Status(next)))
}

// SetProgress records production progress on a processing order. Progress
// only moves forward; 100 marks the order ready for pickup.
func (c *Controller) SetProgress(ctx context.Context, ref string, progress int) (domain.Order, error) {
	if err := identity.Authorize(c.actor(), identity.ActionSetProgress); err != nil {
		return domain.Order{}, err
	}
	o, err := c.find(ref)
	if err != nil {
		return domain.Order{}, err
	}
	if !o.Paid() {
		return domain.Order{}, domain.Invalid(domain.ErrNotPaid, "order #%d has not been paid", o.Number)
	}
	if o.Status != domain.StatusProcessing {
		return domain.Order{}, domain.Invalid(domain.ErrInvalidTransition, "order #%d is %s, not processing", o.Number, o.Status)
	}
	if !domain.ValidProgress(progress) || progress == domain.ProgressNone {
		return domain.Order{}, domain.Invalid(domain.ErrInvalidTransition, "progress must be 25, 50, 75 or 100")
	}
	if progress <= o.Progress {
		return domain.Order{}, domain.Invalid(domain.ErrInvalidTransition, "order #%d is already at %d%%", o.Number, o.Progress)
	}

	if progress < domain.ProgressDone {
		return c.update(ctx, "set progress", o, o.Status, progress)
	}
	next, err := c.machine.Transition(ctx, string(o.Status), fsm.OrderEventMarkReady)
	if err != nil {
		return domain.Order{}, domain.Invalid(domain.ErrInvalidTransition, "order #%d cannot be marked ready", o.Number)
	}
	return c.update(ctx, "set progress", o, domain.Status(next), domain.ProgressDone)
}

func (c *Controller) update(ctx context.Context, op string, o domain.Order, status domain.Status, progress int) (domain.Order, error) {
	updated, err := c.backend.UpdateOrder(ctx, o.ID, domain.OrderPatch{Status: &status, Progress: &progress})
	if err != nil {
		return domain.Order{}, c.failed(op, err)
	}
	c.metrics.Mutation(op, nil)
	c.logger.Info("order updated", "record_id", o.ID, "order_number", o.Number, "from", o.Status, "to", status, "progress", progress)
	return updated, nil
}

// ToggleService flips shop availability.
func (c *Controller) ToggleService(ctx context.Context) (domain.ServiceStatus, error) {
	if err := identity.Authorize(c.actor(), identity.ActionToggleService); err != nil {
		return domain.ServiceStatus{}, err
	}
	return c.service.Toggle(ctx)
}

// SetService sets shop availability explicitly.
func (c *Controller) SetService(ctx context.Context, online bool) (domain.ServiceStatus, error) {
	if err := identity.Authorize(c.actor(), identity.ActionToggleService); err != nil {
		return domain.ServiceStatus{}, err
	}
	return c.service.Set(ctx, online)
}

// DocumentURL resolves the access URL of an order's document.
func (c *Controller) DocumentURL(ctx context.Context, ref string) (string, error) {
	o, err := c.find(ref)
	if err != nil {
		return "", err
	}
	return c.docs.AccessURL(ctx, o.DocumentRef)
}

func (c *Controller) find(ref string) (domain.Order, error) {
	o, ok := c.orders.Find(ref)
	if !ok {
		return domain.Order{}, domain.Invalid(domain.ErrOrderNotFound, "no order %s", ref)
	}
	return o, nil
}

func (c *Controller) failed(op string, err error) error {
	c.metrics.Mutation(op, err)
	c.logger.Warn("mutation failed", "op", op, "error", err)
	return &domain.MutationError{Op: op, Err: err}
}
