// Package metrics holds the Prometheus collectors for custody outcomes.
// Collector implements service.Hooks so services can report without
// importing Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pkordes/hidetrace/backend/internal/domain"
)

// Collector counts custody outcomes and store retries.
type Collector struct {
	transitions   *prometheus.CounterVec
	aggregations  *prometheus.CounterVec
	aggregated    prometheus.Counter
	registrations *prometheus.CounterVec
	txRetries     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_transitions_total",
			Help: "Stage transitions attempted, by stage, direction and outcome.",
		}, []string{"stage", "action", "outcome"}),
		aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_aggregations_total",
			Help: "Garment aggregation batches attempted, by outcome.",
		}, []string{"outcome"}),
		aggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "custody_aggregated_tags_total",
			Help: "Tags linked to products by accepted aggregation batches.",
		}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_registered_tags_total",
			Help: "Tags in registration requests, by outcome.",
		}, []string{"outcome"}),
		txRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_tx_retries_total",
			Help: "Store transactions retried after a serialization failure, by SQLSTATE.",
		}, []string{"code"}),
	}
	for _, col := range []prometheus.Collector{c.transitions, c.aggregations, c.aggregated, c.registrations, c.txRetries} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) TransitionObserved(a domain.Action, outcome string) {
	c.transitions.WithLabelValues(a.Stage.String(), a.Direction.String(), outcome).Inc()
}

func (c *Collector) AggregationObserved(tags int, outcome string) {
	c.aggregations.WithLabelValues(outcome).Inc()
	if outcome == "accepted" {
		c.aggregated.Add(float64(tags))
	}
}

func (c *Collector) RegistrationObserved(tags int, outcome string) {
	c.registrations.WithLabelValues(outcome).Add(float64(tags))
}

// RetryObserved counts one transaction retry. code is the Postgres SQLSTATE.
func (c *Collector) RetryObserved(code string) {
	if code == "" {
		code = "unknown"
	}
	c.txRetries.WithLabelValues(code).Inc()
}
