// Package egress implements the EGRESS classifier (C3): outbound TCP
// inspection, JNDI header scanning, and lookup-counter arming.
package egress

import (
	"bytes"

	"github.com/WillGAndre/eLogJ/pkg/event"
	"github.com/WillGAndre/eLogJ/pkg/headerinfo"
	"github.com/WillGAndre/eLogJ/pkg/netpkt"
	"github.com/WillGAndre/eLogJ/pkg/ruleset"
	"github.com/WillGAndre/eLogJ/pkg/state"
)

// Verdict is the classifier's disposition for a packet: SHOT (drop) or
// PIPE (pass to the next classifier), matching the source's naming.
type Verdict int

const (
	PIPE Verdict = iota
	SHOT
)

var jndiPrefix = []byte("${jndi")
var ldapSuffix = []byte(":ldap")

// Kind is the JNDI pattern strength found in a scanned header value.
type Kind uint32

const (
	KindNone Kind = iota
	KindJNDI
	KindJNDILDAP
)

// Classifier holds the artifacts and shared state the egress path needs.
type Classifier struct {
	Info  headerinfo.Info
	Rules ruleset.Set
	Store *state.Store
	Ring  *event.Ring
}

// New builds a Classifier from resolved artifacts.
func New(info headerinfo.Info, rules ruleset.Set, store *state.Store, ring *event.Ring) *Classifier {
	return &Classifier{Info: info, Rules: rules, Store: store, Ring: ring}
}

// Inspect processes one outbound frame. cpu identifies the emitting
// worker for ring-slot selection.
func (c *Classifier) Inspect(data []byte, dataEnd, cpu int) Verdict {
	if !netpkt.IsIPv4TCP(data, dataEnd) {
		return PIPE
	}
	saddr, daddr, ok := netpkt.Addrs(data, dataEnd)
	if !ok {
		return PIPE
	}

	var ev event.Log
	ev.EType = event.Outbound
	ev.ERoute = [2]uint32{saddr, daddr}

	if c.Store.IsBlocked(saddr) {
		ev.EAction[0] = 1
		c.Ring.Emit(cpu, ev)
		return SHOT
	}

	payload, ok := netpkt.Payload(data, dataEnd)
	if !ok {
		return PIPE
	}

	regexMatch, kind := c.befDPI(payload)
	ev.ELvls = [3]uint32{boolU32(regexMatch), boolU32(kind >= KindJNDI), boolU32(kind == KindJNDILDAP)}

	dropped := false
	if kind != KindNone {
		if c.Rules[2] == 1 || c.Rules[3] == 1 {
			c.Store.UpdateLookups(daddr, true)
		}
		if c.Rules[2] == 2 || c.Rules[3] == 2 {
			dropped = true
		}
	}

	if dropped && c.Store.IsVerified(saddr) {
		dropped = false
		ev.EAction[1] = 1
	}
	if dropped {
		ev.EAction[0] = 1
	}

	c.Store.UpdateRTX(saddr)
	c.Store.UpdateRTX(daddr)

	c.Ring.Emit(cpu, ev)

	if dropped {
		return SHOT
	}
	return PIPE
}

// befDPI scans the TCP payload for the configured JNDI header pattern.
// It returns whether the header value opens with a literal "${", and
// the strength of the match; "${" later in the value is not detected.
func (c *Classifier) befDPI(payload []byte) (regexMatch bool, kind Kind) {
	if len(payload) < 3 || !bytes.Equal(payload[:3], []byte("GET")) {
		return false, KindNone
	}

	loggerOff, found := c.lookupHeader(payload)
	if !found {
		return false, KindNone
	}

	valueStart := c.Info.NameOffset + loggerOff
	if valueStart < 0 || valueStart+2 > len(payload) {
		return false, KindNone
	}
	regexMatch = bytes.Equal(payload[valueStart:valueStart+2], []byte("${"))
	if !regexMatch {
		return false, KindNone
	}
	if valueStart+6 > len(payload) || !bytes.Equal(payload[valueStart:valueStart+6], jndiPrefix) {
		return true, KindNone
	}
	kind = KindJNDI

	ldapStart := valueStart + 6
	if ldapStart+5 <= len(payload) && bytes.Equal(payload[ldapStart:ldapStart+5], ldapSuffix) {
		kind = KindJNDILDAP
	}
	return regexMatch, kind
}

// lookupHeader implements the two-byte rolling match against Seq
// (HEADER_SEQ): it walks forward from NameOffset looking for the
// configured header name, returning the offset to the first byte of
// the header value once found.
func (c *Classifier) lookupHeader(payload []byte) (loggerOff int, found bool) {
	seq := c.Info.Seq
	nameLen := c.Info.NameLen
	windowLen := (nameLen + 1 + 1) / 2

	for start := 0; start < windowLen; start++ {
		base := c.Info.NameOffset + start
		if off, ok := matchSeqAt(payload, base, seq, nameLen); ok {
			return start + off, true
		}
	}
	return 0, false
}

// matchSeqAt attempts to match seq starting at payload offset base,
// byte by byte, returning the offset to the header value (past the
// ": " separator) on success.
func matchSeqAt(payload []byte, base int, seq []byte, nameLen int) (int, bool) {
	for i := 0; i < len(seq); i++ {
		idx := base + i
		b, ok := netpkt.ByteAt(payload, idx)
		if !ok || b != seq[i] {
			return 0, false
		}
		if i == len(seq)-1 {
			return i + (nameLen - (i + 1)) + 3, true
		}
		nb, ok := netpkt.ByteAt(payload, idx+1)
		if !ok || nb != seq[i+1] {
			return 0, false
		}
	}
	return 0, false
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
