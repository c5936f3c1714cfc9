package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the scheduling service's collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	slotQueries   *prometheus.CounterVec
	slotsReturned prometheus.Histogram
	operations    *prometheus.CounterVec
	outbox        *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		slotQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eliza",
			Subsystem: "availability",
			Name:      "slot_queries_total",
			Help:      "Slot availability queries by outcome",
		}, []string{"outcome"}),
		slotsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eliza",
			Subsystem: "availability",
			Name:      "slots_returned",
			Help:      "Number of bookable slots returned per query",
			Buckets:   []float64{0, 1, 4, 8, 16, 32, 64},
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eliza",
			Subsystem: "scheduling",
			Name:      "operations_total",
			Help:      "Scheduling operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eliza",
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox deliveries by result",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eliza",
			Subsystem: "notify",
			Name:      "messages_total",
			Help:      "Notification sends by event kind and status",
		}, []string{"kind", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotQueries, m.slotsReturned, m.operations, m.outbox, m.notifications)
	return m
}

func (m *Metrics) ObserveSlotQuery(outcome string, slots int) {
	if m == nil {
		return
	}
	m.slotQueries.WithLabelValues(outcome).Inc()
	if outcome == "ok" || outcome == "closed" {
		m.slotsReturned.Observe(float64(slots))
	}
}

func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveOutbox(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outbox.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) ObserveNotification(kind, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, status).Inc()
}
