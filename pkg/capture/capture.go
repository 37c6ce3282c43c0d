// Package capture attaches the egress classifier and ingress filter to
// a live network interface. This is the userspace stand-in for the
// kernel's TC-egress/XDP-ingress attachment points: the real attach
// surface (loading and linking kernel programs) is an external
// collaborator outside this core's scope, but a live interface still
// needs a packet source to drive the classifiers, so this package wires
// one up with gopacket's libpcap binding, split into an egress and an
// ingress direction by comparing the interface's own addresses.
package capture

import (
	"net"
	"time"

	"github.com/google/gopacket/pcap"
	"github.com/sirupsen/logrus"

	"github.com/WillGAndre/eLogJ/pkg/egress"
	"github.com/WillGAndre/eLogJ/pkg/ingress"
)

const snapLen = 1600
const readTimeout = 500 * time.Millisecond

// Attachment owns the live pcap handle bound to one interface.
type Attachment struct {
	iface   string
	handle  *pcap.Handle
	egress  *egress.Classifier
	ingress *ingress.Filter
	selfIPs map[uint32]bool
}

// Attach opens iface in promiscuous mode and wires eg/in to it.
func Attach(iface string, eg *egress.Classifier, in *ingress.Filter) (*Attachment, error) {
	handle, err := pcap.OpenLive(iface, snapLen, true, readTimeout)
	if err != nil {
		return nil, err
	}

	selfIPs, err := interfaceAddrs(iface)
	if err != nil {
		handle.Close()
		return nil, err
	}

	return &Attachment{
		iface:   iface,
		handle:  handle,
		egress:  eg,
		ingress: in,
		selfIPs: selfIPs,
	}, nil
}

// Run reads packets until the handle is closed, dispatching each one to
// the egress classifier or the ingress filter by comparing its source
// address against the interface's own addresses. cpu is a fixed worker
// index for ring-slot selection; callers that want real parallelism run
// several Attachments or duplicate Run across goroutines per NumCPU.
func (a *Attachment) Run(cpu int) {
	for {
		data, _, err := a.handle.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			return
		}

		if a.isOutbound(data) {
			a.egress.Inspect(data, len(data), cpu)
		} else {
			a.ingress.Inspect(data, len(data), cpu)
		}
	}
}

// Close releases the pcap handle.
func (a *Attachment) Close() {
	a.handle.Close()
}

func (a *Attachment) isOutbound(data []byte) bool {
	const ipSrcOffset = 14 + 12
	if len(data) < ipSrcOffset+4 {
		return false
	}
	saddr := uint32(data[ipSrcOffset])<<24 | uint32(data[ipSrcOffset+1])<<16 |
		uint32(data[ipSrcOffset+2])<<8 | uint32(data[ipSrcOffset+3])
	return a.selfIPs[saddr]
}

func interfaceAddrs(name string) (map[uint32]bool, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, err
	}

	out := make(map[uint32]bool)
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		v4 := ipNet.IP.To4()
		if v4 == nil {
			continue
		}
		out[uint32(v4[0])<<24|uint32(v4[1])<<16|uint32(v4[2])<<8|uint32(v4[3])] = true
	}
	logrus.WithField("iface", name).WithField("addrs", len(out)).Debug("resolved interface addresses")
	return out, nil
}
