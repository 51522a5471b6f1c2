// Package observe turns the validation event channel into metrics and
// forwarded messages.
package observe

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/mark3labs/apiguard/events"
)

// Metrics counts validation events.
type Metrics struct {
	// EventsTotal counts every event by kind, model and operation.
	EventsTotal *prometheus.CounterVec
	// FailuresTotal counts validation errors and extra-field detections.
	FailuresTotal *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apiguard",
			Name:      "validation_events_total",
			Help:      "Validation events by kind.",
		}, []string{"kind", "model", "operation"}),
		FailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apiguard",
			Name:      "validation_failures_total",
			Help:      "Validation failures, extra-field detections included.",
		}, []string{"model", "operation"}),
	}
	reg.MustRegister(m.EventsTotal, m.FailuresTotal)
	return m
}

// Record counts one event.
func (m *Metrics) Record(ev events.Event) {
	m.EventsTotal.WithLabelValues(string(ev.Kind), ev.Model, ev.Operation).Inc()
	switch ev.Kind {
	case events.ValidationError, events.ExtraKeysDetected:
		m.FailuresTotal.WithLabelValues(ev.Model, ev.Operation).Inc()
	}
}

// Attach records every event published on em until the subscription is
// removed with em.Off.
func (m *Metrics) Attach(em *events.Emitter) events.Subscription {
	return em.OnAny(m.Record)
}

// WriteText gathers g and writes it in the Prometheus text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("observe: gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("observe: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
