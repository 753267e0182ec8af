package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors holds the dispatch lifecycle metrics.
type Collectors struct {
	reg         prometheus.Gatherer
	transitions *prometheus.CounterVec
	created     *prometheus.CounterVec
	skipped     prometheus.Counter
	stopUpdates *prometheus.CounterVec
	cascades    *prometheus.CounterVec
}

// New registers the lifecycle collectors on reg. A nil reg uses a fresh
// registry. Collectors already registered on reg are reused.
func New(reg *prometheus.Registry) (*Collectors, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collectors{reg: reg}
	var err error
	if c.transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linehaul_dispatch_transitions_total",
		Help: "Dispatch event status transitions",
	}, []string{"from", "to"})); err != nil {
		return nil, err
	}
	if c.created, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linehaul_dispatch_created_total",
		Help: "Dispatch events created",
	}, []string{"source"})); err != nil {
		return nil, err
	}
	if c.skipped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "linehaul_dispatch_generate_skipped_total",
		Help: "Routes skipped by daily generation",
	})); err != nil {
		return nil, err
	}
	if c.stopUpdates, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linehaul_stop_updates_total",
		Help: "Dispatch stop updates by resulting stop status",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if c.cascades, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linehaul_dispatch_cascades_total",
		Help: "Parent status changes driven by stop updates",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (c *Collectors) ObserveTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

func (c *Collectors) ObserveCreated(source string) {
	c.created.WithLabelValues(source).Inc()
}

func (c *Collectors) ObserveSkipped(n int) {
	c.skipped.Add(float64(n))
}

func (c *Collectors) ObserveStopUpdate(status string) {
	c.stopUpdates.WithLabelValues(status).Inc()
}

// ObserveCascade records a stop-driven parent change. kind is "started" or "completed".
func (c *Collectors) ObserveCascade(kind string) {
	c.cascades.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
