// Package netpkt provides the bounds-checked field extraction the
// classifiers need: every access is an explicit
// start+offset+sizeof(T) <= end check, the userspace analogue of the
// in-kernel verifier's requirement that no load may cross the packet
// end. Nothing here walks a running pointer.
package netpkt

import "encoding/binary"

// Offsets into an Ethernet+IPv4+TCP frame, assuming no 802.1Q tag and a
// 20-byte IPv4 header with no options.
const (
	EthHeaderLen = 14
	IPHeaderLen  = 20
	TCPHeaderLen = 20

	ipProtoOffset = EthHeaderLen + 9
	ipSrcOffset   = EthHeaderLen + 12
	ipDstOffset   = EthHeaderLen + 16

	tcpSrcPortOffset = EthHeaderLen + IPHeaderLen
	tcpDstPortOffset = EthHeaderLen + IPHeaderLen + 2

	// TCPOptionsAssumed mirrors the source's fixed +12 byte allowance
	// for TCP options; see the design notes on why this is an open
	// question rather than a hard contract.
	TCPOptionsAssumed = 12

	protoTCP = 6
)

// ErrBounds describes a read that would cross dataEnd. The accessors in
// this package do not return it; they report that case as ok=false,
// and callers treat ok=false exactly like a verifier rejection: pass
// the packet through unmodified, emit nothing.
type ErrBounds struct{}

func (ErrBounds) Error() string { return "netpkt: access past data_end" }

func bounds(offset, size, dataEnd int) bool {
	return offset >= 0 && offset+size <= dataEnd
}

// IsIPv4TCP reports whether the frame at data[:dataEnd] is an IPv4/TCP
// packet, per the fixed offsets above. Any other packet type, or a
// frame too short to check, returns false with no error: these are
// passed through untouched exactly as non-IPv4/non-TCP traffic is in
// the egress/ingress processing steps.
func IsIPv4TCP(data []byte, dataEnd int) bool {
	if !bounds(ipProtoOffset, 1, dataEnd) {
		return false
	}
	// EtherType at bytes 12-13 must be IPv4 (0x0800).
	if binary.BigEndian.Uint16(data[12:14]) != 0x0800 {
		return false
	}
	return data[ipProtoOffset] == protoTCP
}

// Addrs extracts saddr and daddr (host order) from the IPv4 header.
func Addrs(data []byte, dataEnd int) (saddr, daddr uint32, ok bool) {
	if !bounds(ipSrcOffset, 4, dataEnd) || !bounds(ipDstOffset, 4, dataEnd) {
		return 0, 0, false
	}
	saddr = binary.BigEndian.Uint32(data[ipSrcOffset : ipSrcOffset+4])
	daddr = binary.BigEndian.Uint32(data[ipDstOffset : ipDstOffset+4])
	return saddr, daddr, true
}

// Ports extracts the TCP source and destination ports.
func Ports(data []byte, dataEnd int) (srcPort, dstPort uint16, ok bool) {
	if !bounds(tcpSrcPortOffset, 2, dataEnd) || !bounds(tcpDstPortOffset, 2, dataEnd) {
		return 0, 0, false
	}
	srcPort = binary.BigEndian.Uint16(data[tcpSrcPortOffset : tcpSrcPortOffset+2])
	dstPort = binary.BigEndian.Uint16(data[tcpDstPortOffset : tcpDstPortOffset+2])
	return srcPort, dstPort, true
}

// TCPDataOffset returns the byte offset of the first TCP payload byte,
// using the fixed TCPOptionsAssumed allowance (see design notes).
func TCPDataOffset() int {
	return EthHeaderLen + IPHeaderLen + TCPHeaderLen + TCPOptionsAssumed
}

// Payload returns the TCP payload slice, or ok=false if dataEnd doesn't
// reach past the assumed header+options region.
func Payload(data []byte, dataEnd int) (payload []byte, ok bool) {
	off := TCPDataOffset()
	if off > dataEnd || off > len(data) {
		return nil, false
	}
	end := dataEnd
	if end > len(data) {
		end = len(data)
	}
	return data[off:end], true
}

// ByteAt returns payload[idx] if it is within bounds.
func ByteAt(payload []byte, idx int) (byte, bool) {
	if idx < 0 || idx >= len(payload) {
		return 0, false
	}
	return payload[idx], true
}
