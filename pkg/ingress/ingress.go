// Package ingress implements the INGRESS filter (C4): inbound TCP
// inspection, RTX-based reply correlation against the egress classifier,
// rule enforcement, and shallow LDAP framing inspection.
package ingress

import (
	"bytes"

	"github.com/WillGAndre/eLogJ/pkg/event"
	"github.com/WillGAndre/eLogJ/pkg/netpkt"
	"github.com/WillGAndre/eLogJ/pkg/ruleset"
	"github.com/WillGAndre/eLogJ/pkg/state"
)

// Verdict is the filter's disposition for a packet.
type Verdict int

const (
	PASS Verdict = iota
	DROP
)

// ldapPorts are the known LDAP ports checked for ASN.1 SEQUENCE framing.
var ldapPorts = map[uint16]bool{
	1389: true, 389: true, 636: true, 3268: true, 8081: true,
}

const (
	minCorrelatedPayload = 100
	ldapSeqTag           = 0x30

	opBindResponse   = 97
	opSearchResEntry = 100
	opSearchResDone  = 101
)

// Filter holds the shared state the ingress path reads and writes.
type Filter struct {
	Rules ruleset.Set
	Store *state.Store
	Ring  *event.Ring
}

// New builds a Filter.
func New(rules ruleset.Set, store *state.Store, ring *event.Ring) *Filter {
	return &Filter{Rules: rules, Store: store, Ring: ring}
}

// Inspect processes one inbound frame.
func (f *Filter) Inspect(data []byte, dataEnd, cpu int) Verdict {
	if !netpkt.IsIPv4TCP(data, dataEnd) {
		return PASS
	}
	saddr, daddr, ok := netpkt.Addrs(data, dataEnd)
	if !ok {
		return PASS
	}
	srcPort, _, _ := netpkt.Ports(data, dataEnd)

	var ev event.Log
	ev.EType = event.Inbound
	ev.ERoute = [2]uint32{saddr, daddr}

	scount, _ := f.Store.UpdateRTX(saddr)
	dcount, _ := f.Store.UpdateRTX(daddr)

	payload, hasPayload := netpkt.Payload(data, dataEnd)
	if hasPayload && len(payload) > 0 {
		ev.ELvls[0] = 1
	}
	dropped := false
	srcLDAP := false

	switch {
	case dcount < scount && hasPayload && len(payload) >= minCorrelatedPayload:
		dropped = f.inspectCorrelated(payload, saddr, &ev)
	case hasPayload && ldapPorts[srcPort]:
		srcLDAP = f.inspectLDAP(payload, &ev)
	}

	if f.Rules[1] == 1 && ldapPorts[srcPort] {
		dropped = true
	}
	if f.Rules[0] == 1 {
		dropped = true
	}
	// RULE_SET[0]==2 blocks identified HTTP traffic here on the inbound
	// path; the GET/HTTP annotation in elvls[1] is the identification.
	if f.Rules[0] == 2 && !srcLDAP && ev.ELvls[1] != 0 {
		dropped = true
	}

	if f.Store.IsBlocked(saddr) {
		dropped = true
	}
	if f.Store.IsVerified(daddr) {
		dropped = false
		ev.EAction[1] = 1
	}
	if dropped {
		ev.EAction[0] = 1
	}

	f.Ring.Emit(cpu, ev)

	if dropped {
		return DROP
	}
	return PASS
}

// inspectCorrelated handles the "reply direction" branch: a GET with a
// matching LOOKUPS entry is the attacker-driven callback, and its source
// (the peer the egress classifier armed a lookup for) gets blocklisted.
func (f *Filter) inspectCorrelated(payload []byte, saddr uint32, ev *event.Log) (dropped bool) {
	first, _ := netpkt.ByteAt(payload, 0)
	fourth, _ := netpkt.ByteAt(payload, 3)

	isGET := first == 'G' && len(payload) >= 3 && bytes.Equal(payload[:3], []byte("GET"))
	isHTTP := first == 'H' && fourth == 'P' && len(payload) >= 4 && bytes.Equal(payload[:4], []byte("HTTP"))

	switch {
	case isGET:
		ev.ELvls[1] = 1
		if _, present := f.Store.LOOKUPS.Get(saddr); present {
			f.Store.UpdateLookups(saddr, false)
			if f.Rules[2] == 1 || f.Rules[3] == 1 {
				f.Store.BlockAddr(saddr)
				dropped = true
			}
		}
	case isHTTP:
		ev.ELvls[1] = 2
	}
	return dropped
}

// inspectLDAP performs the shallow ASN.1 SEQUENCE framing check on
// traffic arriving from a known LDAP port.
func (f *Filter) inspectLDAP(payload []byte, ev *event.Log) (srcLDAP bool) {
	tag, ok := netpkt.ByteAt(payload, 0)
	if !ok || tag != ldapSeqTag {
		return false
	}

	op, ok := netpkt.ByteAt(payload, 5)
	if ok && !isResponseOp(op) {
		// accommodates the known +1-offset quirk with searchResEntry
		// at ~275-byte messages.
		if alt, ok2 := netpkt.ByteAt(payload, 6); ok2 {
			op, ok = alt, ok2
		}
	}
	if !ok {
		return false
	}
	ev.ELvls[1] = uint32(len(payload))
	ev.ELvls[2] = uint32(op)
	return true
}

func isResponseOp(op byte) bool {
	switch op {
	case opBindResponse, opSearchResEntry, opSearchResDone:
		return true
	default:
		return false
	}
}
