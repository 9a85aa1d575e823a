package rpcmetrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors is a prometheus.Collector-backed Recorder, registered into a
// caller-supplied *prometheus.Registry (spec §10.4: "the Prometheus
// collector is the one concrete, no-op-safe implementation provided").
// Labels follow the teacher's pkg/metrics naming convention
// (namespace_subsystem_metric).
type Collectors struct {
	poolIdle   *prometheus.GaugeVec
	poolActive *prometheus.GaugeVec
	picks      *prometheus.CounterVec
	decodeErrs *prometheus.CounterVec
	duration   *prometheus.HistogramVec

	mu sync.Mutex
}

// NewCollectors builds and registers every gauge/counter/histogram into
// reg under the given namespace ("conduit" by default if empty).
func NewCollectors(reg prometheus.Registerer, namespace string) *Collectors {
	if namespace == "" {
		namespace = "conduit"
	}
	c := &Collectors{
		poolIdle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: "idle_connections",
			Help: "Idle connections currently held by the pool, by service and transport kind.",
		}, []string{"service", "kind"}),
		poolActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: "active_connections",
			Help: "Connections currently checked out of the pool, by service and transport kind.",
		}, []string{"service", "kind"}),
		picks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "loadbalance", Name: "picks_total",
			Help: "Number of times an address was returned by a picker, by endpoint and address.",
		}, []string{"endpoint", "address"}),
		decodeErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "codec", Name: "decode_errors_total",
			Help: "Decode errors observed per codec chain.",
		}, []string{"codec"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "rpc", Name: "request_duration_seconds",
			Help:    "Request duration by method and call kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "kind", "ok"}),
	}
	reg.MustRegister(c.poolIdle, c.poolActive, c.picks, c.decodeErrs, c.duration)
	return c
}

func (c *Collectors) PoolGauge(service, kind string, idle, active int) {
	c.poolIdle.WithLabelValues(service, kind).Set(float64(idle))
	c.poolActive.WithLabelValues(service, kind).Set(float64(active))
}

func (c *Collectors) PickerSelected(endpoint, address string) {
	c.picks.WithLabelValues(endpoint, address).Inc()
}

func (c *Collectors) CodecDecodeError(codec string) {
	c.decodeErrs.WithLabelValues(codec).Inc()
}

func (c *Collectors) RequestDuration(method, kind string, seconds float64, ok bool) {
	okLabel := "true"
	if !ok {
		okLabel = "false"
	}
	c.duration.WithLabelValues(method, kind, okLabel).Observe(seconds)
}
