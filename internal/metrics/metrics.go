package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deliveries counts push attempts by outcome.
type Deliveries interface {
	IncDelivery(result string)
}

// Submissions counts pipeline runs by terminal stage.
type Submissions interface {
	IncSubmission(result string)
}

// Noop implements every metrics interface without emitting anything.
type Noop struct{}

func (Noop) IncDelivery(string)   {}
func (Noop) IncSubmission(string) {}

// Prom implements the metrics interfaces with Prometheus counters registered
// on its own registry.
type Prom struct {
	registry    *prometheus.Registry
	deliveries  *prometheus.CounterVec
	submissions *prometheus.CounterVec
}

// NewProm registers the counters under namespace on a fresh registry.
func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Push notification attempts by result",
		}, []string{"result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Art submissions by result",
		}, []string{"result"}),
	}
	p.registry.MustRegister(p.deliveries, p.submissions)
	return p
}

func (p *Prom) IncDelivery(result string) {
	p.deliveries.WithLabelValues(result).Inc()
}

func (p *Prom) IncSubmission(result string) {
	p.submissions.WithLabelValues(result).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
