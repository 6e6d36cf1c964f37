package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/histograms for the webhook relay and session store.
type RelayMetrics struct {
	eventsTotal     *prometheus.CounterVec
	confidence      prometheus.Histogram
	modelLatency    *prometheus.HistogramVec
	repliesTotal    *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	evictionsTotal  *prometheus.CounterVec
	sessionsCreated prometheus.Counter
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linebot",
			Subsystem: "relay",
			Name:      "events_total",
			Help:      "Inbound LINE webhook events by kind and final outcome",
		}, []string{"event_type", "outcome"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "linebot",
			Subsystem: "relay",
			Name:      "confidence_score",
			Help:      "Confidence scores returned by the gate",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "linebot",
			Subsystem: "relay",
			Name:      "model_latency_seconds",
			Help:      "Latency of Gemini calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linebot",
			Subsystem: "relay",
			Name:      "replies_total",
			Help:      "LINE reply calls by result",
		}, []string{"status"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "linebot",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Sessions currently held in memory",
		}),
		evictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linebot",
			Subsystem: "sessions",
			Name:      "evicted_total",
			Help:      "Sessions evicted by sweep policy",
		}, []string{"policy"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "linebot",
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Sessions created for new or returning users",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.eventsTotal,
		m.confidence,
		m.modelLatency,
		m.repliesTotal,
		m.activeSessions,
		m.evictionsTotal,
		m.sessionsCreated,
	)
	return m
}

func (m *RelayMetrics) ObserveEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *RelayMetrics) ObserveConfidence(score int) {
	if m == nil {
		return
	}
	m.confidence.Observe(float64(score))
}

func (m *RelayMetrics) ObserveModelLatency(call string, seconds float64) {
	if m == nil {
		return
	}
	m.modelLatency.WithLabelValues(call).Observe(seconds)
}

func (m *RelayMetrics) ObserveReply(status string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(status).Inc()
}

func (m *RelayMetrics) ObserveSessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

// ObserveEvictions implements session.SweepObserver.
func (m *RelayMetrics) ObserveEvictions(policy string, evicted int) {
	if m == nil {
		return
	}
	m.evictionsTotal.WithLabelValues(policy).Add(float64(evicted))
}

// SetActiveSessions implements session.SweepObserver.
func (m *RelayMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
