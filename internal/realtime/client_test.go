package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/fsm"
	"github.com/buildtall-systems/printq/internal/metrics"
)

type recorder struct {
	mu      sync.Mutex
	changes []Change
	stale   []error
	resumed int
}

func (r *recorder) HandleChange(_ context.Context, c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) ChannelStale(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stale = append(r.stale, err)
}

func (r *recorder) ChannelResumed(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumed++
}

func (r *recorder) records() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.RecordID
	}
	return out
}

func (r *recorder) staleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stale)
}

func (r *recorder) resumedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resumed
}

type mapHandler map[string]int

func (mapHandler) HandleChange(context.Context, Change) {}

func mustChange(t *testing.T, collection string, kind Kind, id string) Change {
	t.Helper()
	c, err := NewChange(collection, kind, id, map[string]string{"id": id})
	require.NoError(t, err)
	return c
}

func newTestClient(t *testing.T) (*Client, *Memory, *metrics.Metrics) {
	t.Helper()
	mem := NewMemory()
	m := metrics.New(prometheus.NewRegistry())
	c := NewClient(mem, WithMetrics(m))
	t.Cleanup(func() { _ = c.Close() })
	return c, mem, m
}

func TestClient_DeliversInCommitOrder(t *testing.T) {
	c, mem, _ := newTestClient(t)
	ctx := context.Background()
	rec := &recorder{}

	sub, err := c.Subscribe(ctx, CollectionOrders, nil, rec)
	require.NoError(t, err)
	assert.Equal(t, fsm.ChannelStateLive, sub.State())

	want := []string{"a", "b", "c", "d", "e"}
	for _, id := range want {
		require.NoError(t, mem.Publish(ctx, mustChange(t, CollectionOrders, KindUpdate, id)))
	}
	require.NoError(t, mem.Publish(ctx, mustChange(t, CollectionInventory, KindUpdate, "other")))

	require.Eventually(t, func() bool { return len(rec.records()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, rec.records())
}

func TestClient_FiltersKinds(t *testing.T) {
	c, mem, _ := newTestClient(t)
	ctx := context.Background()
	rec := &recorder{}

	_, err := c.Subscribe(ctx, CollectionOrders, []Kind{KindCreate}, rec)
	require.NoError(t, err)

	require.NoError(t, mem.Publish(ctx, mustChange(t, CollectionOrders, KindUpdate, "skip")))
	require.NoError(t, mem.Publish(ctx, mustChange(t, CollectionOrders, KindCreate, "keep")))

	require.Eventually(t, func() bool { return len(rec.records()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"keep"}, rec.records())
}

func TestClient_SameHandlerSharesConnection(t *testing.T) {
	c, mem, m := newTestClient(t)
	ctx := context.Background()
	rec := &recorder{}

	first, err := c.Subscribe(ctx, CollectionOrders, []Kind{KindCreate}, rec)
	require.NoError(t, err)
	second, err := c.Subscribe(ctx, CollectionOrders, []Kind{KindUpdate}, rec)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, []Kind{KindCreate, KindUpdate}, first.Kinds())
	assert.Equal(t, 1, mem.Conns(CollectionOrders))
	assert.Equal(t, 1, c.Open())

	other := &recorder{}
	_, err = c.Subscribe(ctx, CollectionOrders, nil, other)
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Conns(CollectionOrders))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SubscriptionsOpen))
}

func TestClient_ChurnDoesNotLeakConnections(t *testing.T) {
	c, mem, m := newTestClient(t)
	ctx := context.Background()
	rec := &recorder{}

	for i := 0; i < 50; i++ {
		sub, err := c.Subscribe(ctx, CollectionOrders, nil, rec)
		require.NoError(t, err)
		require.NoError(t, c.Unsubscribe(sub))
		require.NoError(t, c.Unsubscribe(sub))
		assert.Equal(t, fsm.ChannelStateClosed, sub.State())
	}

	assert.Equal(t, 0, mem.Conns(CollectionOrders))
	assert.Equal(t, 0, c.Open())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SubscriptionsOpen))
}

func TestClient_RejectsNonComparableHandler(t *testing.T) {
	c, _, _ := newTestClient(t)

	_, err := c.Subscribe(context.Background(), CollectionOrders, nil, mapHandler{})
	assert.ErrorIs(t, err, ErrHandlerNotComparable)

	_, err = c.Subscribe(context.Background(), CollectionOrders, []Kind{"upsert"}, &recorder{})
	assert.Error(t, err)
}

func TestClient_DropsMalformedAndDuplicateDeltas(t *testing.T) {
	c, mem, m := newTestClient(t)
	ctx := context.Background()
	rec := &recorder{}

	_, err := c.Subscribe(ctx, CollectionOrders, nil, rec)
	require.NoError(t, err)

	good := mustChange(t, CollectionOrders, KindCreate, "o-1")
	payload, err := Encode(good)
	require.NoError(t, err)

	noID, _ := json.Marshal(Change{Collection: CollectionOrders, Kind: KindCreate, RecordID: "x", Record: []byte(`{}`)})
	noRecordID := mustChange(t, CollectionOrders, KindCreate, "")
	wrongCollection := mustChange(t, CollectionInventory, KindCreate, "i-1")
	wrongPayload, _ := Encode(wrongCollection)
	noRecordIDPayload, _ := Encode(noRecordID)

	require.NoError(t, mem.PublishRaw(CollectionOrders, []byte("{not json")))
	require.NoError(t, mem.PublishRaw(CollectionOrders, noID))
	require.NoError(t, mem.PublishRaw(CollectionOrders, noRecordIDPayload))
	require.NoError(t, mem.PublishRaw(CollectionOrders, wrongPayload))
	require.NoError(t, mem.PublishRaw(CollectionOrders, payload))
	require.NoError(t, mem.PublishRaw(CollectionOrders, payload))
	require.NoError(t, mem.Publish(ctx, mustChange(t, CollectionOrders, KindUpdate, "o-1")))

	require.Eventually(t, func() bool { return len(rec.records()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"o-1", "o-1"}, rec.records())
	assert.Equal(t, 4.0, testutil.ToFloat64(m.DeltasDropped.WithLabelValues(CollectionOrders, "malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeltasDropped.WithLabelValues(CollectionOrders, "duplicate")))
}

func TestClient_DropAndResume(t *testing.T) {
	c, mem, _ := newTestClient(t)
	ctx := context.Background()
	rec := &recorder{}

	sub, err := c.Subscribe(ctx, CollectionOrders, nil, rec)
	require.NoError(t, err)

	mem.Disconnect(CollectionOrders)
	require.Eventually(t, func() bool { return rec.staleCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, sub.Stale())

	var subErr *domain.SubscriptionError
	rec.mu.Lock()
	require.True(t, errors.As(rec.stale[0], &subErr))
	rec.mu.Unlock()
	assert.Equal(t, CollectionOrders, subErr.Collection)

	// Missed while disconnected, never replayed.
	require.NoError(t, mem.Publish(ctx, mustChange(t, CollectionOrders, KindCreate, "lost")))

	mem.Reconnect(CollectionOrders)
	require.Eventually(t, func() bool { return rec.resumedCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, fsm.ChannelStateLive, sub.State())

	require.NoError(t, mem.Publish(ctx, mustChange(t, CollectionOrders, KindCreate, "after")))
	require.Eventually(t, func() bool { return len(rec.records()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"after"}, rec.records())
}

func TestClient_OpenFailure(t *testing.T) {
	c, mem, _ := newTestClient(t)
	mem.FailNextOpen(errors.New("connection refused"))

	_, err := c.Subscribe(context.Background(), CollectionOrders, nil, &recorder{})
	var subErr *domain.SubscriptionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, 0, c.Open())

	_, err = c.Subscribe(context.Background(), CollectionOrders, nil, &recorder{})
	assert.NoError(t, err)
}

func TestClient_Close(t *testing.T) {
	mem := NewMemory()
	c := NewClient(mem)
	ctx := context.Background()

	sub, err := c.Subscribe(ctx, CollectionOrders, nil, &recorder{})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.Equal(t, fsm.ChannelStateClosed, sub.State())

	_, err = c.Subscribe(ctx, CollectionOrders, nil, &recorder{})
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.ErrorIs(t, mem.Publish(ctx, mustChange(t, CollectionOrders, KindCreate, "x")), ErrTransportClosed)
}

type unsubscribingHandler struct {
	client *Client
	sub    **Subscription
	calls  *int
	mu     *sync.Mutex
}

func (h unsubscribingHandler) HandleChange(context.Context, Change) {
	h.mu.Lock()
	*h.calls++
	h.mu.Unlock()
	_ = h.client.Unsubscribe(*h.sub)
}

func TestClient_UnsubscribeFromHandler(t *testing.T) {
	c, mem, _ := newTestClient(t)
	ctx := context.Background()

	var sub *Subscription
	calls := 0
	h := unsubscribingHandler{client: c, sub: &sub, calls: &calls, mu: &sync.Mutex{}}

	var err error
	sub, err = c.Subscribe(ctx, CollectionOrders, nil, h)
	require.NoError(t, err)

	require.NoError(t, mem.Publish(ctx, mustChange(t, CollectionOrders, KindCreate, "a")))
	require.Eventually(t, func() bool { return sub.State() == fsm.ChannelStateClosed }, time.Second, 5*time.Millisecond)
	require.NoError(t, mem.Publish(ctx, mustChange(t, CollectionOrders, KindCreate, "b")))

	time.Sleep(20 * time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, 1, calls)
}
