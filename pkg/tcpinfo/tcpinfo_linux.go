//go:build linux

package tcpinfo

import (
	"time"

	"golang.org/x/sys/unix"
)

// GetTCPInfo retrieves tcp_info for the connected socket fd via
// getsockopt(2). The kernel fills as much of the struct as the running
// release knows; the fields Snapshot carries have been stable since
// 2.6.12.
func GetTCPInfo(fd int) (*Snapshot, error) {
	ti, err := unix.GetsockoptTCPInfo(fd, unix.IPPROTO_TCP, unix.TCP_INFO)
	if err != nil {
		return nil, err
	}
	return fromRaw(ti), nil
}

func fromRaw(ti *unix.TCPInfo) *Snapshot {
	return &Snapshot{
		State:        ti.State,
		StateName:    StateName(ti.State),
		Retransmits:  ti.Retransmits,
		Lost:         ti.Lost,
		RTO:          time.Duration(ti.Rto) * time.Microsecond,
		SndMSS:       ti.Snd_mss,
		RcvMSS:       ti.Rcv_mss,
		RTT:          time.Duration(ti.Rtt) * time.Microsecond,
		RTTVar:       time.Duration(ti.Rttvar) * time.Microsecond,
		SndCwnd:      ti.Snd_cwnd,
		TotalRetrans: ti.Total_retrans,
	}
}

// Supported reports whether tcp_info snapshots work on this platform.
func Supported() bool {
	return true
}
