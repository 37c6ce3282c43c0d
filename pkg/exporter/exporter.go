/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package exporter exposes per-connection TCP telemetry (retransmits,
// RTT, congestion window) as a Prometheus collector, plus a blocked
// gauge tying each tracked connection back to the defense's BLOCKLIST:
// once an address is blocklisted, its surviving connections show up
// here with blocked=1 next to their retransmit/RTT series.
package exporter

import (
	"fmt"
	"net"
	"sync"

	"github.com/higebu/netfd"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/WillGAndre/eLogJ/pkg/tcpinfo"
)

// FlagFn reports whether a connection's peer is of interest to the
// defense. The collector evaluates it at scrape time, so a peer
// blocklisted mid-connection is flagged on the next scrape.
type FlagFn func(conn net.Conn) bool

type info struct {
	description *prometheus.Desc
	supplier    func(snap *tcpinfo.Snapshot, flagged float64, labelValues []string) prometheus.Metric
}

type connEntry struct {
	fd     int
	labels []string
}

type TCPInfoCollector struct {
	conns  map[net.Conn]connEntry
	mu     sync.Mutex
	logger func(error)
	flag   FlagFn
	infos  []info
}

func (t *TCPInfoCollector) Describe(descs chan<- *prometheus.Desc) {
	for _, info := range t.infos {
		descs <- info.description
	}
}

func (t *TCPInfoCollector) Collect(metrics chan<- prometheus.Metric) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for conn, entry := range t.conns {
		snap, err := tcpinfo.GetTCPInfo(entry.fd)
		if err != nil {
			t.logger(fmt.Errorf("error getting connection tcpinfo (removing conn %v -> %v): %w", conn.LocalAddr(), conn.RemoteAddr(), err))

			delete(t.conns, conn)
			continue
		}

		var flagged float64
		if t.flag != nil && t.flag(conn) {
			flagged = 1
		}

		for _, info := range t.infos {
			metrics <- info.supplier(snap, flagged, entry.labels)
		}
	}
}

func (t *TCPInfoCollector) Add(conn net.Conn, labels []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conns[conn] = connEntry{
		fd:     netfd.GetFdFromConn(conn),
		labels: labels,
	}
}

func (t *TCPInfoCollector) Remove(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.conns, conn)
}

func NewTCPInfoCollector(
	prefix string,
	connectionLabels []string, // connectionLabels are known up front for the collector and values are provided when adding a connection.
	constLabels prometheus.Labels, // constLabels is meant for labels with values that are constant for the whole process.
	flag FlagFn, // flag marks connections whose peer the defense has blocklisted; with nil the blocked gauge is still exported, always 0.
	errorLoggingCallback func(error),
) *TCPInfoCollector {
	t := TCPInfoCollector{
		conns:  make(map[net.Conn]connEntry),
		logger: errorLoggingCallback,
		flag:   flag,
	}
	t.addMetrics(prefix, connectionLabels, constLabels)
	return &t
}

// addMetrics builds the descriptions and value suppliers for the
// tcp_info fields relevant to correlating a connection's retransmit and
// RTT behaviour with a BLOCKLIST/LOOKUPS decision upstream.
func (t *TCPInfoCollector) addMetrics(prefix string, variableLabels []string, constLabels prometheus.Labels) {
	desc := map[string]*prometheus.Desc{
		"state":         prometheus.NewDesc(fmt.Sprintf("%s_state", prefix), "Connection state, see include/net/tcp_states.h.", variableLabels, constLabels),
		"retransmits":   prometheus.NewDesc(fmt.Sprintf("%s_retransmits", prefix), "Number of RTO-based retransmissions at this sequence.", variableLabels, constLabels),
		"total_retrans": prometheus.NewDesc(fmt.Sprintf("%s_total_retrans", prefix), "Total number of segments containing retransmitted data.", variableLabels, constLabels),
		"rtt":           prometheus.NewDesc(fmt.Sprintf("%s_rtt", prefix), "Smoothed Round Trip Time (RTT), microseconds.", variableLabels, constLabels),
		"rttvar":        prometheus.NewDesc(fmt.Sprintf("%s_rttvar", prefix), "RTT variance, microseconds.", variableLabels, constLabels),
		"snd_cwnd":      prometheus.NewDesc(fmt.Sprintf("%s_snd_cwnd", prefix), "Congestion window, controlled by the selected congestion control algorithm.", variableLabels, constLabels),
		"blocked":       prometheus.NewDesc(fmt.Sprintf("%s_blocked", prefix), "1 if the connection's peer address is in BLOCKLIST.", variableLabels, constLabels),
	}

	t.infos = []info{
		{description: desc["state"], supplier: func(snap *tcpinfo.Snapshot, _ float64, labelValues []string) prometheus.Metric {
			return prometheus.MustNewConstMetric(desc["state"], prometheus.GaugeValue, float64(snap.State), labelValues...)
		}},
		{description: desc["retransmits"], supplier: func(snap *tcpinfo.Snapshot, _ float64, labelValues []string) prometheus.Metric {
			return prometheus.MustNewConstMetric(desc["retransmits"], prometheus.GaugeValue, float64(snap.Retransmits), labelValues...)
		}},
		{description: desc["total_retrans"], supplier: func(snap *tcpinfo.Snapshot, _ float64, labelValues []string) prometheus.Metric {
			return prometheus.MustNewConstMetric(desc["total_retrans"], prometheus.CounterValue, float64(snap.TotalRetrans), labelValues...)
		}},
		{description: desc["rtt"], supplier: func(snap *tcpinfo.Snapshot, _ float64, labelValues []string) prometheus.Metric {
			return prometheus.MustNewConstMetric(desc["rtt"], prometheus.GaugeValue, float64(snap.RTT.Microseconds()), labelValues...)
		}},
		{description: desc["rttvar"], supplier: func(snap *tcpinfo.Snapshot, _ float64, labelValues []string) prometheus.Metric {
			return prometheus.MustNewConstMetric(desc["rttvar"], prometheus.GaugeValue, float64(snap.RTTVar.Microseconds()), labelValues...)
		}},
		{description: desc["snd_cwnd"], supplier: func(snap *tcpinfo.Snapshot, _ float64, labelValues []string) prometheus.Metric {
			return prometheus.MustNewConstMetric(desc["snd_cwnd"], prometheus.GaugeValue, float64(snap.SndCwnd), labelValues...)
		}},
		{description: desc["blocked"], supplier: func(_ *tcpinfo.Snapshot, flagged float64, labelValues []string) prometheus.Metric {
			return prometheus.MustNewConstMetric(desc["blocked"], prometheus.GaugeValue, flagged, labelValues...)
		}},
	}
}
