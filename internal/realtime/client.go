package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/fsm"
	"github.com/buildtall-systems/printq/internal/logging"
	"github.com/buildtall-systems/printq/internal/metrics"
)

var (
	// ErrHandlerNotComparable is returned for handlers that cannot serve as a
	// subscription key, such as funcs or structs holding maps.
	ErrHandlerNotComparable = errors.New("handler type is not comparable")
	// ErrClientClosed is returned by Subscribe after Close.
	ErrClientClosed = errors.New("realtime client closed")
)

// DefaultDedupWindow is how long a delivered change ID is remembered.
const DefaultDedupWindow = 10 * time.Minute

// Handler consumes changes for one subscription. Calls are sequential.
type Handler interface {
	HandleChange(ctx context.Context, c Change)
}

// StatusHandler is optionally implemented by handlers that want to know when
// their stream drops and comes back. After ChannelResumed the handler must
// re-fetch, since changes missed while stale are not replayed.
type StatusHandler interface {
	ChannelStale(err error)
	ChannelResumed(ctx context.Context)
}

// Client multiplexes subscriptions over a transport. It holds at most one
// connection per (collection, handler) pair.
type Client struct {
	transport Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics
	dedup     *Deduplicator

	mu     sync.Mutex
	subs   map[subKey]*Subscription
	seq    atomic.Uint64
	closed bool
}

type subKey struct {
	collection string
	handler    Handler
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithDedupWindow(d time.Duration) Option {
	return func(c *Client) { c.dedup = NewDeduplicator(d) }
}

func NewClient(t Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		subs:      make(map[subKey]*Subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	if c.dedup == nil {
		c.dedup = NewDeduplicator(DefaultDedupWindow)
	}
	return c
}

// Subscribe registers handler for the given kinds of change on collection.
// Subscribing the same handler to the same collection again returns the
// existing subscription with kinds widened; no second connection is opened.
func (c *Client) Subscribe(ctx context.Context, collection string, kinds []Kind, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, errors.New("nil handler")
	}
	if !reflect.TypeOf(handler).Comparable() {
		return nil, ErrHandlerNotComparable
	}
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	for _, k := range kinds {
		if !k.IsValid() {
			return nil, fmt.Errorf("unknown change kind %q", k)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}

	key := subKey{collection: collection, handler: handler}
	if s, ok := c.subs[key]; ok {
		s.addKinds(kinds)
		return s, nil
	}

	s := &Subscription{
		client:     c,
		key:        key,
		id:         fmt.Sprintf("%s#%d", collection, c.seq.Add(1)),
		collection: collection,
		handler:    handler,
		kinds:      make(map[Kind]bool),
		state:      fsm.NewChannelStateMachine(),
	}
	s.addKinds(kinds)

	conn, err := c.transport.Open(ctx, collection, s)
	if err != nil {
		_ = s.state.Event(ctx, fsm.ChannelEventClose)
		return nil, &domain.SubscriptionError{Collection: collection, Err: err}
	}
	s.conn = conn
	if s.state.Can(fsm.ChannelEventEstablished) {
		_ = s.state.Event(ctx, fsm.ChannelEventEstablished)
	}
	c.subs[key] = s
	c.metrics.SubscriptionOpened()
	c.logger.Debug("subscribed", "collection", collection, "subscription", s.id)
	return s, nil
}

// Unsubscribe releases the subscription's connection. It is safe to call
// more than once.
func (c *Client) Unsubscribe(s *Subscription) error {
	if s == nil {
		return nil
	}
	c.mu.Lock()
	if cur, ok := c.subs[s.key]; ok && cur == s {
		delete(c.subs, s.key)
	}
	c.mu.Unlock()
	return s.close()
}

// Open is the number of live subscriptions.
func (c *Client) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close unsubscribes everything and closes the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subs = make(map[subKey]*Subscription)
	c.mu.Unlock()

	var errs []error
	for _, s := range subs {
		errs = append(errs, s.close())
	}
	errs = append(errs, c.transport.Close())
	return errors.Join(errs...)
}

// Publish forwards a committed change to the transport.
func (c *Client) Publish(ctx context.Context, ch Change) error {
	return c.transport.Publish(ctx, ch)
}

// Subscription is one handler's ordered view of a collection's changes.
type Subscription struct {
	client     *Client
	key        subKey
	id         string
	collection string
	handler    Handler
	conn       Conn
	state      *fsm.ChannelStateMachine

	mu        sync.Mutex
	kinds     map[Kind]bool
	closeOnce sync.Once
	closeErr  error
}

func (s *Subscription) Collection() string { return s.collection }

// State is the connection state: connecting, live, stale or closed.
func (s *Subscription) State() string { return s.state.Current() }

// Stale reports whether deliveries may have been missed since the last load.
func (s *Subscription) Stale() bool { return s.state.Current() == fsm.ChannelStateStale }

// Kinds lists the change kinds delivered to the handler.
func (s *Subscription) Kinds() []Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Kind, 0, len(s.kinds))
	for _, k := range AllKinds {
		if s.kinds[k] {
			out = append(out, k)
		}
	}
	return out
}

func (s *Subscription) addKinds(kinds []Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range kinds {
		s.kinds[k] = true
	}
}

func (s *Subscription) wants(k Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kinds[k]
}

// Deliver implements Sink. Malformed and duplicate payloads are logged and
// dropped; they never reach the handler.
func (s *Subscription) Deliver(ctx context.Context, payload []byte) {
	if s.state.Current() == fsm.ChannelStateClosed {
		return
	}
	log := s.client.logger.With("collection", s.collection, "subscription", s.id)

	ch, err := Decode(payload)
	if err == nil && ch.Collection != s.collection {
		err = fmt.Errorf("%w: change for %q on %q stream", ErrMalformedChange, ch.Collection, s.collection)
	}
	if err != nil {
		log.Warn("dropping malformed delta", "error", err)
		s.client.metrics.DeltaDropped(s.collection, "malformed")
		return
	}
	if !s.wants(ch.Kind) {
		return
	}
	if s.client.dedup.IsDuplicate(s.id + "/" + ch.ID.String()) {
		log.Debug("dropping duplicate delta", "record_id", ch.RecordID, "kind", ch.Kind)
		s.client.metrics.DeltaDropped(s.collection, "duplicate")
		return
	}
	s.handler.HandleChange(ctx, ch)
}

// Dropped implements Sink.
func (s *Subscription) Dropped(err error) {
	if !s.state.Can(fsm.ChannelEventDropped) {
		return
	}
	_ = s.state.Event(context.Background(), fsm.ChannelEventDropped)
	s.client.logger.Warn("change stream dropped", "collection", s.collection, "subscription", s.id, "error", err)
	s.client.metrics.ChannelDropped(s.collection)
	if sh, ok := s.handler.(StatusHandler); ok {
		sh.ChannelStale(&domain.SubscriptionError{Collection: s.collection, Err: err})
	}
}

// Resumed implements Sink.
func (s *Subscription) Resumed(ctx context.Context) {
	if !s.state.Can(fsm.ChannelEventResumed) {
		return
	}
	_ = s.state.Event(ctx, fsm.ChannelEventResumed)
	s.client.logger.Info("change stream resumed", "collection", s.collection, "subscription", s.id)
	if sh, ok := s.handler.(StatusHandler); ok {
		sh.ChannelResumed(ctx)
	}
}

func (s *Subscription) close() error {
	s.closeOnce.Do(func() {
		if s.state.Can(fsm.ChannelEventClose) {
			_ = s.state.Event(context.Background(), fsm.ChannelEventClose)
		}
		if s.conn != nil {
			s.closeErr = s.conn.Close()
		}
		s.client.metrics.SubscriptionClosed()
		s.client.logger.Debug("unsubscribed", "collection", s.collection, "subscription", s.id)
	})
	return s.closeErr
}
