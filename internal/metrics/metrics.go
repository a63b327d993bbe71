package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "printq"

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	DeltasApplied     *prometheus.CounterVec
	DeltasDropped     *prometheus.CounterVec
	SubscriptionsOpen prometheus.Gauge
	ChannelDrops      *prometheus.CounterVec
	StockAlerts       *prometheus.CounterVec
	Mutations         *prometheus.CounterVec
	ProjectionLoads   *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DeltasApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deltas_applied_total",
			Help:      "Change deltas applied to a projection.",
		}, []string{"collection", "kind"}),
		DeltasDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deltas_dropped_total",
			Help:      "Change deltas dropped as malformed or duplicate.",
		}, []string{"collection", "reason"}),
		SubscriptionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_open",
			Help:      "Open change-stream subscriptions.",
		}),
		ChannelDrops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_drops_total",
			Help:      "Change-stream disconnects observed.",
		}, []string{"collection"}),
		StockAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_alerts_total",
			Help:      "Stock alerts raised by the inventory ledger.",
		}, []string{"kind"}),
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Lifecycle and ledger mutations by outcome.",
		}, []string{"op", "result"}),
		ProjectionLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projection_loads_total",
			Help:      "Projection snapshot loads by outcome.",
		}, []string{"collection", "result"}),
	}
}

func (m *Metrics) DeltaApplied(collection, kind string) {
	if m == nil {
		return
	}
	m.DeltasApplied.WithLabelValues(collection, kind).Inc()
}

func (m *Metrics) DeltaDropped(collection, reason string) {
	if m == nil {
		return
	}
	m.DeltasDropped.WithLabelValues(collection, reason).Inc()
}

func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.SubscriptionsOpen.Inc()
}

func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.SubscriptionsOpen.Dec()
}

func (m *Metrics) ChannelDropped(collection string) {
	if m == nil {
		return
	}
	m.ChannelDrops.WithLabelValues(collection).Inc()
}

func (m *Metrics) StockAlert(kind string) {
	if m == nil {
		return
	}
	m.StockAlerts.WithLabelValues(kind).Inc()
}

// Mutation records the outcome of a mutation: err == nil counts as ok.
func (m *Metrics) Mutation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Mutations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ProjectionLoaded(collection string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ProjectionLoads.WithLabelValues(collection, result).Inc()
}
