// Package metrics exports Prometheus counters describing the pulls served by
// stages and the engine handles they allocate and release.
package metrics

import (
	"errors"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xaionaro-go/avcompose/types"
)

const namespace = "avcompose"

// Metrics is safe to use as a nil pointer, in which case nothing is
// recorded.
type Metrics struct {
	Pulls         *prometheus.CounterVec
	Items         *prometheus.CounterVec
	Terminations  *prometheus.CounterVec
	HandlesIssued *prometheus.CounterVec
	HandlesFreed  *prometheus.CounterVec
	StagesBuilt   *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Pulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_pulls_total",
			Help:      "Amount of pulls served by stages.",
		}, []string{"component"}),
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_items_total",
			Help:      "Amount of batch items produced by stages.",
		}, []string{"component"}),
		Terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_terminations_total",
			Help:      "Amount of stage streams that finished, by outcome.",
		}, []string{"component", "outcome"}),
		HandlesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_handles_issued_total",
			Help:      "Amount of engine handles allocated by stages or returned to them by the engine.",
		}, []string{"component"}),
		HandlesFreed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_handles_freed_total",
			Help:      "Amount of engine handles released by stages.",
		}, []string{"component"}),
		StagesBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stages_built_total",
			Help:      "Amount of stages constructed by the resolver.",
		}, []string{"component"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Pulls,
		m.Items,
		m.Terminations,
		m.HandlesIssued,
		m.HandlesFreed,
		m.StagesBuilt,
	}
}

// Register registers all the collectors; an error is returned if any of
// them conflicts with an already registered one.
func (m *Metrics) Register(r prometheus.Registerer) error {
	var errs []error
	for _, c := range m.collectors() {
		if err := r.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Metrics) ObservePull(component types.Component, items int, err error) {
	if m == nil {
		return
	}
	m.Pulls.WithLabelValues(component.String()).Inc()
	m.Items.WithLabelValues(component.String()).Add(float64(items))
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		m.Terminations.WithLabelValues(component.String(), "closed").Inc()
	default:
		m.Terminations.WithLabelValues(component.String(), "failed").Inc()
	}
}

func (m *Metrics) ObserveHandles(component types.Component, issued, freed int) {
	if m == nil {
		return
	}
	if issued > 0 {
		m.HandlesIssued.WithLabelValues(component.String()).Add(float64(issued))
	}
	if freed > 0 {
		m.HandlesFreed.WithLabelValues(component.String()).Add(float64(freed))
	}
}

func (m *Metrics) ObserveStageBuilt(component types.Component) {
	if m == nil {
		return
	}
	m.StagesBuilt.WithLabelValues(component.String()).Inc()
}
