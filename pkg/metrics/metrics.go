// Package metrics exposes Prometheus collectors for binding activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event labels.
const (
	EventNext     = "next"
	EventError    = "error"
	EventComplete = "complete"
)

var (
	// subscriptionsActive tracks live subscriptions per binding kind.
	subscriptionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "squid_binding_subscriptions_active",
		Help: "Subscriptions currently attached, by binding kind",
	}, []string{"binding"})

	// subscriptionsTotal counts every subscription ever attached.
	subscriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squid_binding_subscriptions_total",
		Help: "Total subscriptions attached, by binding kind",
	}, []string{"binding"})

	// eventsTotal counts stream events applied to binding state.
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squid_binding_events_total",
		Help: "Stream events applied to binding state, by binding kind and event",
	}, []string{"binding", "event"})

	// hydrationsTotal counts hydration handoffs by phase.
	hydrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squid_hydration_total",
		Help: "Hydration phases run, by phase and outcome",
	}, []string{"phase", "outcome"})
)

func SubscriptionOpened(binding string) {
	subscriptionsActive.WithLabelValues(binding).Inc()
	subscriptionsTotal.WithLabelValues(binding).Inc()
}

func SubscriptionClosed(binding string) {
	subscriptionsActive.WithLabelValues(binding).Dec()
}

func Event(binding, event string) {
	eventsTotal.WithLabelValues(binding, event).Inc()
}

func Hydration(phase, outcome string) {
	hydrationsTotal.WithLabelValues(phase, outcome).Inc()
}

// ActiveSubscriptions returns the gauge for a binding kind.
func ActiveSubscriptions(binding string) prometheus.Gauge {
	return subscriptionsActive.WithLabelValues(binding)
}

// Events returns the counter for a binding kind and event.
func Events(binding, event string) prometheus.Counter {
	return eventsTotal.WithLabelValues(binding, event)
}
