// filename: internal/alerter/metrics.go
package alerter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics метрики движка правил. Нулевой указатель отключает сбор
type Metrics struct {
	activationsStarted   *prometheus.CounterVec
	activationsThrottled *prometheus.CounterVec
	activationsFinished  *prometheus.CounterVec
	activationsInFlight  prometheus.Gauge
	activationDuration   *prometheus.HistogramVec
	queriesTotal         *prometheus.CounterVec
	repliesDiscarded     prometheus.Counter
	alertsTotal          *prometheus.CounterVec
	actionsTotal         *prometheus.CounterVec
	actionsSkipped       prometheus.Counter
	rulesLoaded          prometheus.Gauge
	rulesRejected        prometheus.Counter
	instancesArmed       *prometheus.GaugeVec
	eventsTotal          *prometheus.CounterVec
}

// NewMetrics создает и регистрирует метрики движка. nil registry = без метрик // v1.0
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		activationsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "activations_started_total",
			Help:      "Total activations accepted by the throttle",
		}, []string{"rule_id"}),

		activationsThrottled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "activations_throttled_total",
			Help:      "Total firings rejected because the instance ran too recently",
		}, []string{"rule_id"}),

		activationsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "activations_finished_total",
			Help:      "Total activations by outcome",
		}, []string{"rule_id", "outcome"}),

		activationsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "activations_in_flight",
			Help:      "Activations waiting for variable values",
		}),

		activationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "activation_duration_seconds",
			Help:      "Time from activation start to evaluation",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 30},
		}, []string{"rule_id"}),

		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "queries_total",
			Help:      "Variable queries sent to storage",
		}, []string{"command"}),

		repliesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "replies_discarded_total",
			Help:      "Storage replies for unknown or destroyed activations",
		}),

		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "alerts_total",
			Help:      "Alerts emitted by severity",
		}, []string{"severity"}),

		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "actions_total",
			Help:      "Actions executed by command",
		}, []string{"command"}),

		actionsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "actions_skipped_total",
			Help:      "Malformed actions skipped at execution time",
		}),

		rulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "rules_loaded",
			Help:      "Rules currently in the catalog",
		}),

		rulesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "rules_rejected_total",
			Help:      "Rule definitions rejected as invalid",
		}),

		instancesArmed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "instances_armed",
			Help:      "Armed rule instances by mode",
		}, []string{"mode"}),

		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "myhouse",
			Subsystem: "alerter",
			Name:      "events_total",
			Help:      "Events processed by the engine loop",
		}, []string{"kind"}),
	}

	registry.MustRegister(
		m.activationsStarted,
		m.activationsThrottled,
		m.activationsFinished,
		m.activationsInFlight,
		m.activationDuration,
		m.queriesTotal,
		m.repliesDiscarded,
		m.alertsTotal,
		m.actionsTotal,
		m.actionsSkipped,
		m.rulesLoaded,
		m.rulesRejected,
		m.instancesArmed,
		m.eventsTotal,
	)

	return m
}

func (m *Metrics) activationStarted(ruleID string) {
	if m == nil {
		return
	}
	m.activationsStarted.WithLabelValues(ruleID).Inc()
	m.activationsInFlight.Inc()
}

func (m *Metrics) activationThrottled(ruleID string) {
	if m == nil {
		return
	}
	m.activationsThrottled.WithLabelValues(ruleID).Inc()
}

func (m *Metrics) activationFinished(ruleID, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.activationsFinished.WithLabelValues(ruleID, outcome).Inc()
	m.activationsInFlight.Dec()
	if elapsed > 0 {
		m.activationDuration.WithLabelValues(ruleID).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) queriesSent(command string) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(command).Inc()
}

func (m *Metrics) replyDiscarded() {
	if m == nil {
		return
	}
	m.repliesDiscarded.Inc()
}

func (m *Metrics) alertEmitted(severity string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(severity).Inc()
}

func (m *Metrics) actionExecuted(command string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(command).Inc()
}

func (m *Metrics) actionSkipped() {
	if m == nil {
		return
	}
	m.actionsSkipped.Inc()
}

func (m *Metrics) ruleRejected() {
	if m == nil {
		return
	}
	m.rulesRejected.Inc()
}

func (m *Metrics) catalogSize(rules int, recurrent int, realtime int) {
	if m == nil {
		return
	}
	m.rulesLoaded.Set(float64(rules))
	m.instancesArmed.WithLabelValues("recurrent").Set(float64(recurrent))
	m.instancesArmed.WithLabelValues("realtime").Set(float64(realtime))
}

func (m *Metrics) eventProcessed(kind string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(kind).Inc()
}
