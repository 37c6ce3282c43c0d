// Package tcpinfo snapshots the kernel's per-connection TCP telemetry
// (retransmissions, RTT, congestion window) for sockets the daemon
// holds. The ingress filter correlates at the packet level; this is the
// socket-level view used to cross-reference how a peer's connections
// actually behaved once its address lands in BLOCKLIST.
package tcpinfo

import (
	"errors"
	"time"
)

// ErrUnsupported is returned by GetTCPInfo where the platform has no
// TCP_INFO socket option.
var ErrUnsupported = errors.New("tcpinfo: not available on this platform")

// Snapshot is the subset of tcp_info the defense consumes.
type Snapshot struct {
	State        uint8         `json:"-"`
	StateName    string        `json:"state"`
	Retransmits  uint8         `json:"retransmits"`
	Lost         uint32        `json:"lost"`
	RTO          time.Duration `json:"rto"`
	SndMSS       uint32        `json:"sendMSS"`
	RcvMSS       uint32        `json:"recvMSS"`
	RTT          time.Duration `json:"rtt"`
	RTTVar       time.Duration `json:"rttVar"`
	SndCwnd      uint32        `json:"sendCWnd"`
	TotalRetrans uint32        `json:"totalRetrans"`
}

// TCP state constants from linux net/tcp_states.h.
const (
	TCP_ESTABLISHED = iota + 1
	TCP_SYN_SENT
	TCP_SYN_RECV
	TCP_FIN_WAIT1
	TCP_FIN_WAIT2
	TCP_TIME_WAIT
	TCP_CLOSE
	TCP_CLOSE_WAIT
	TCP_LAST_ACK
	TCP_LISTEN
	TCP_CLOSING
	TCP_NEW_SYN_RECV
)

var tcpStateMap = map[uint8]string{
	TCP_ESTABLISHED:  "ESTABLISHED",
	TCP_SYN_SENT:     "SYN_SENT",
	TCP_SYN_RECV:     "SYN_RECV",
	TCP_FIN_WAIT1:    "FIN_WAIT1",
	TCP_FIN_WAIT2:    "FIN_WAIT2",
	TCP_TIME_WAIT:    "TIME_WAIT",
	TCP_CLOSE:        "CLOSE",
	TCP_CLOSE_WAIT:   "CLOSE_WAIT",
	TCP_LAST_ACK:     "LAST_ACK",
	TCP_LISTEN:       "LISTEN",
	TCP_CLOSING:      "CLOSING",
	TCP_NEW_SYN_RECV: "NEW_SYN_RECV",
}

// StateName renders a tcp_states.h state number, "UNKNOWN" if the
// kernel reports one this table does not know.
func StateName(state uint8) string {
	if name, ok := tcpStateMap[state]; ok {
		return name
	}
	return "UNKNOWN"
}
