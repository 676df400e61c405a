package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"predictchain/core/events"
)

type MarketMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	events      *prometheus.CounterVec
	burned      *prometheus.CounterVec
	betVolume   prometheus.Counter
	pointsFlows *prometheus.CounterVec
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

// Market returns the lazily-initialised registry for ledger activity.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "predictchain",
				Name:      "operations_total",
				Help:      "Ledger operations by name and outcome.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "predictchain",
				Name:      "operation_duration_seconds",
				Help:      "Time spent applying and committing ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "predictchain",
				Name:      "events_total",
				Help:      "Committed events by type.",
			}, []string{"type"}),
			burned: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "predictchain",
				Name:      "burned_base_units_total",
				Help:      "Platform tokens burned, by burn type.",
			}, []string{"burn_type"}),
			betVolume: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "predictchain",
				Name:      "bet_volume_base_units_total",
				Help:      "Gross platform tokens staked on predictions.",
			}),
			pointsFlows: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "predictchain",
				Name:      "points_total",
				Help:      "Points minted and redeemed.",
			}, []string{"direction"}),
		}
		prometheus.MustRegister(
			marketRegistry.operations,
			marketRegistry.latency,
			marketRegistry.events,
			marketRegistry.burned,
			marketRegistry.betVolume,
			marketRegistry.pointsFlows,
		)
	})
	return marketRegistry
}

// ObserveOperation records the outcome and latency of a processor call.
func (m *MarketMetrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Emit implements events.Emitter so the registry can subscribe to committed
// events.
func (m *MarketMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	rendered := evt.Event()
	if rendered == nil {
		return
	}
	m.events.WithLabelValues(rendered.Type).Inc()
	attrs := rendered.Attributes
	switch rendered.Type {
	case events.TypeBurn:
		m.burned.WithLabelValues(attrs["burn_type"]).Add(parseAmount(attrs["burn_amount"]))
	case events.TypePredictionPlaced:
		m.betVolume.Add(parseAmount(attrs["amount"]))
	case events.TypePointsMinted:
		m.pointsFlows.WithLabelValues("minted").Add(parseAmount(attrs["amount"]))
	case events.TypePointsRedeemed:
		m.pointsFlows.WithLabelValues("redeemed").Add(parseAmount(attrs["amount"]))
	}
}

func parseAmount(value string) float64 {
	amount, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return float64(amount)
}
