// Command agentd is the daemon that wires the egress classifier, the
// ingress filter and the LSM gate to a live interface, exports metrics,
// and drains the event ring to the system logger. Attachment of the
// real kernel hooks (TC egress, XDP ingress, bpf LSM) is the external
// loader's job; this binary owns everything downstream of "a packet or
// syscall arrived".
package main

import (
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/WillGAndre/eLogJ/pkg/capture"
	"github.com/WillGAndre/eLogJ/pkg/egress"
	"github.com/WillGAndre/eLogJ/pkg/event"
	"github.com/WillGAndre/eLogJ/pkg/eventsink"
	"github.com/WillGAndre/eLogJ/pkg/exporter"
	"github.com/WillGAndre/eLogJ/pkg/headerinfo"
	"github.com/WillGAndre/eLogJ/pkg/ingress"
	"github.com/WillGAndre/eLogJ/pkg/kernel"
	"github.com/WillGAndre/eLogJ/pkg/logging"
	"github.com/WillGAndre/eLogJ/pkg/lsmgate"
	"github.com/WillGAndre/eLogJ/pkg/metrics"
	"github.com/WillGAndre/eLogJ/pkg/ruleset"
	"github.com/WillGAndre/eLogJ/pkg/state"
)

var (
	flagIface     string
	flagRuleset   string
	flagListen    string
	flagLogLevel  string
	flagLogJSON   bool
	flagWhitelist []string
)

var rootCmd = &cobra.Command{
	Use:           "agentd",
	Short:         "Host-level defense against JNDI-injection callbacks",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Setup(flagLogLevel, flagLogJSON)
	},
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagIface, "iface", "docker0", "interface to attach the egress/ingress programs to")
	rootCmd.PersistentFlags().StringVar(&flagRuleset, "ruleset", "", "path to the rule-set document (required)")
	rootCmd.PersistentFlags().StringVar(&flagListen, "listen", ":9464", "address to serve /metrics on")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (trace,debug,info,warn,error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit JSON logs instead of text")
	rootCmd.PersistentFlags().StringArrayVar(&flagWhitelist, "whitelist", nil, "dotted-decimal IPv4 addresses to seed WHLIST with")
	_ = rootCmd.MarkPersistentFlagRequired("ruleset")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if ok, err := kernel.SupportsBPFLSM(); err != nil {
		logrus.WithError(err).Warn("could not determine kernel version")
	} else if !ok {
		logrus.Warn("kernel is older than 5.7: the bpf LSM hook surface is unavailable, gate runs unenforced")
	}

	doc, err := ruleset.Load(flagRuleset)
	if err != nil {
		return err
	}
	rules := doc.Flatten()

	info, err := headerinfo.Compute(doc.JNDIPayloadHeader)
	if err != nil {
		return err
	}

	store := state.NewStore()
	ring := event.NewRing(1024)
	eg := egress.New(info, rules, store, ring)
	in := ingress.New(rules, store, ring)

	coll := metrics.New(prometheus.Labels{"iface": flagIface})
	coll.RingDropsFrom(ring.TotalDrops)
	prometheus.MustRegister(coll)

	gate := lsmgate.New()
	gate.OnDeny = func(c lsmgate.Call) {
		coll.ObserveLSMDenied()
		logrus.WithField("cmd", c.Cmd).WithField("pid", c.PID).Warn("lsm gate denied call")
	}

	// Seed the whitelist, mirroring each write through the gate the way
	// the real loader's map updates traverse the bpf LSM hook. Once
	// seeding and attachment are done the gate is sealed for good.
	pid := uint32(os.Getpid())
	for _, addr := range flagWhitelist {
		ip, ok := parseIPv4(addr)
		if !ok {
			logrus.WithField("addr", addr).Warn("skipping malformed whitelist address")
			continue
		}
		gate.Evaluate(lsmgate.Call{Cmd: lsmgate.MapUpdateElem, FD: 0, PID: pid})
		_ = store.WHLIST.Insert(ip, 1)
	}

	sink := eventsink.New(os.Stderr)
	stopSink := observeAndForward(ring, coll, sink)
	defer stopSink()

	att, err := capture.Attach(flagIface, eg, in)
	if err != nil {
		return err
	}
	defer att.Close()

	go att.Run(0)

	gate.Seal()
	logrus.WithField("run_id", sink.RunID()).WithField("iface", flagIface).Info("attached, gate armed")

	tcpColl := exporter.NewTCPInfoCollector(
		"elogj_tcpinfo",
		[]string{"id", "remote_host"},
		prometheus.Labels{"iface": flagIface},
		func(conn net.Conn) bool {
			ip, ok := remoteIPv4(conn)
			return ok && store.IsBlocked(ip)
		},
		func(err error) { logrus.WithError(err).Debug("tcpinfo collection") },
	)
	prometheus.MustRegister(tcpColl)

	http.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr: flagListen,
		ConnState: func(conn net.Conn, st http.ConnState) {
			switch st {
			case http.StateNew:
				tcpColl.Add(conn, []string{xid.New().String(), conn.RemoteAddr().String()})
			case http.StateClosed:
				tcpColl.Remove(conn)
			}
		},
	}
	logrus.WithField("listen", flagListen).Info("serving metrics")
	return server.ListenAndServe()
}

// observeAndForward drains every ring slot once: it records each event
// against the metrics collector and forwards it to the syslog sink.
func observeAndForward(r *event.Ring, coll *metrics.Collector, sink *eventsink.Sink) (stop func()) {
	done := make(chan struct{})
	for i := 0; i < r.Slots(); i++ {
		go func(slot <-chan event.Log) {
			for {
				select {
				case ev, ok := <-slot:
					if !ok {
						return
					}
					if ev.EType == event.Outbound {
						coll.ObserveEgress(ev.Dropped(), ev.Overridden())
					} else {
						coll.ObserveIngress(ev.Dropped(), ev.Overridden())
					}
					sink.Write(ev)
				case <-done:
					return
				}
			}
		}(r.Slot(i))
	}
	return func() { close(done) }
}

func parseIPv4(s string) (uint32, bool) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, false
	}
	return ipToUint32(ip)
}

func remoteIPv4(conn net.Conn) (uint32, bool) {
	addr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return 0, false
	}
	return ipToUint32(addr.IP)
}

func ipToUint32(ip net.IP) (uint32, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, false
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]), true
}
