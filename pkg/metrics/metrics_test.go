package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectorDescribeMatchesCollect(t *testing.T) {
	c := New(prometheus.Labels{"iface": "eth0"})
	c.ObserveEgress(true, false)
	c.ObserveIngress(false, true)
	c.ObserveLSMDenied()
	c.ObserveRingDrop()

	descs := make(chan *prometheus.Desc, 8)
	c.Describe(descs)
	close(descs)
	var n int
	for range descs {
		n++
	}
	if n != 4 {
		t.Fatalf("got %d descriptors, want 4", n)
	}

	metrics := make(chan prometheus.Metric, 8)
	c.Collect(metrics)
	close(metrics)
	var m int
	for range metrics {
		m++
	}
	if m != 6 {
		t.Fatalf("got %d metrics, want 6", m)
	}
}
