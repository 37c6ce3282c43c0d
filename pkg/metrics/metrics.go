// Package metrics exposes the core defense's own decision counters
// (drops, overrides, armed denials) as a Prometheus collector, following
// the same Describe/Collect shape as pkg/exporter's TCPInfoCollector.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector counts decisions made by the egress classifier, the
// ingress filter and the LSM gate.
type Collector struct {
	egressDropped    uint64
	egressOverridden uint64
	ingressDropped   uint64
	ingressOverride  uint64
	lsmDenied        uint64
	ringDrops        uint64
	ringDropsFn      func() uint64

	descDropped    *prometheus.Desc
	descOverridden *prometheus.Desc
	descLSMDenied  *prometheus.Desc
	descRingDrops  *prometheus.Desc
}

// New returns a Collector with the given constant labels applied to
// every series (typically hostname/interface).
func New(constLabels prometheus.Labels) *Collector {
	return &Collector{
		descDropped:    prometheus.NewDesc("elogj_dropped_total", "Packets dropped, by direction.", []string{"direction"}, constLabels),
		descOverridden: prometheus.NewDesc("elogj_overridden_total", "Drops cleared by whitelist override, by direction.", []string{"direction"}, constLabels),
		descLSMDenied:  prometheus.NewDesc("elogj_lsm_denied_total", "Map/object-get syscalls denied by the armed LSM gate.", nil, constLabels),
		descRingDrops:  prometheus.NewDesc("elogj_ring_drops_total", "Events dropped because a ring slot was full.", nil, constLabels),
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.descDropped
	descs <- c.descOverridden
	descs <- c.descLSMDenied
	descs <- c.descRingDrops
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	metrics <- prometheus.MustNewConstMetric(c.descDropped, prometheus.CounterValue, float64(atomic.LoadUint64(&c.egressDropped)), "egress")
	metrics <- prometheus.MustNewConstMetric(c.descDropped, prometheus.CounterValue, float64(atomic.LoadUint64(&c.ingressDropped)), "ingress")
	metrics <- prometheus.MustNewConstMetric(c.descOverridden, prometheus.CounterValue, float64(atomic.LoadUint64(&c.egressOverridden)), "egress")
	metrics <- prometheus.MustNewConstMetric(c.descOverridden, prometheus.CounterValue, float64(atomic.LoadUint64(&c.ingressOverride)), "ingress")
	metrics <- prometheus.MustNewConstMetric(c.descLSMDenied, prometheus.CounterValue, float64(atomic.LoadUint64(&c.lsmDenied)))
	ringDrops := atomic.LoadUint64(&c.ringDrops)
	if c.ringDropsFn != nil {
		ringDrops += c.ringDropsFn()
	}
	metrics <- prometheus.MustNewConstMetric(c.descRingDrops, prometheus.CounterValue, float64(ringDrops))
}

func (c *Collector) ObserveEgress(dropped, overridden bool) {
	if dropped {
		atomic.AddUint64(&c.egressDropped, 1)
	}
	if overridden {
		atomic.AddUint64(&c.egressOverridden, 1)
	}
}

func (c *Collector) ObserveIngress(dropped, overridden bool) {
	if dropped {
		atomic.AddUint64(&c.ingressDropped, 1)
	}
	if overridden {
		atomic.AddUint64(&c.ingressOverride, 1)
	}
}

func (c *Collector) ObserveLSMDenied() {
	atomic.AddUint64(&c.lsmDenied, 1)
}

func (c *Collector) ObserveRingDrop() {
	atomic.AddUint64(&c.ringDrops, 1)
}

// RingDropsFrom registers a supplier polled at collection time, for
// rings that keep their own drop counters.
func (c *Collector) RingDropsFrom(fn func() uint64) {
	c.ringDropsFn = fn
}
