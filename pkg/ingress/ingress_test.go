package ingress

import (
	"encoding/binary"
	"testing"

	"github.com/WillGAndre/eLogJ/pkg/event"
	"github.com/WillGAndre/eLogJ/pkg/netpkt"
	"github.com/WillGAndre/eLogJ/pkg/ruleset"
	"github.com/WillGAndre/eLogJ/pkg/state"
)

func buildFrame(saddr, daddr uint32, srcPort uint16, payload []byte) []byte {
	frame := make([]byte, netpkt.TCPDataOffset()+len(payload))
	binary.BigEndian.PutUint16(frame[12:], 0x0800)
	frame[netpkt.EthHeaderLen+9] = 6
	binary.BigEndian.PutUint32(frame[netpkt.EthHeaderLen+12:], saddr)
	binary.BigEndian.PutUint32(frame[netpkt.EthHeaderLen+16:], daddr)
	binary.BigEndian.PutUint16(frame[netpkt.EthHeaderLen+netpkt.IPHeaderLen:], srcPort)
	copy(frame[netpkt.TCPDataOffset():], payload)
	return frame
}

func pad(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}

func TestCallbackDroppedWhenLookupArmed(t *testing.T) {
	store := state.NewStore()
	store.UpdateLookups(1, true)  // egress armed a lookup for attacker addr 1
	_ = store.RTX.Insert(1, 5)    // attacker count ahead of ours: reply direction
	f := New(ruleset.Set{0, 0, 1, 0}, store, event.NewRing(8))

	payload := pad("GET /callback HTTP/1.1\r\n", 120)
	frame := buildFrame(1, 2, 4444, payload)

	v := f.Inspect(frame, len(frame), 0)
	if v != DROP {
		t.Fatalf("expected DROP for correlated callback, got %v", v)
	}
	if _, present := store.LOOKUPS.Get(1); present {
		t.Fatalf("expected LOOKUPS entry consumed")
	}
	if !store.IsBlocked(1) {
		t.Fatalf("expected callback source blocked")
	}

	// a second packet from the now-blocklisted source drops outright.
	frame2 := buildFrame(1, 2, 4444, pad("x", 10))
	if v := f.Inspect(frame2, len(frame2), 0); v != DROP {
		t.Fatalf("expected DROP from blocklisted source, got %v", v)
	}
}

func TestUnexpectedGETNotDropped(t *testing.T) {
	store := state.NewStore()
	_ = store.RTX.Insert(1, 5)
	f := New(ruleset.Set{}, store, event.NewRing(8))

	payload := pad("GET /normal HTTP/1.1\r\n", 120)
	frame := buildFrame(1, 2, 4444, payload)

	v := f.Inspect(frame, len(frame), 0)
	if v != PASS {
		t.Fatalf("expected PASS for unmatched GET, got %v", v)
	}
	ev := <-f.Ring.Slot(0)
	if ev.ELvls[0] != 1 || ev.ELvls[1] != 1 {
		t.Fatalf("got elvls=%v, want GET annotation", ev.ELvls)
	}
}

func TestHTTPResponseAnnotated(t *testing.T) {
	store := state.NewStore()
	_ = store.RTX.Insert(1, 5)
	f := New(ruleset.Set{}, store, event.NewRing(8))

	payload := pad("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n", 120)
	frame := buildFrame(1, 2, 4444, payload)

	v := f.Inspect(frame, len(frame), 0)
	if v != PASS {
		t.Fatalf("expected PASS for plain HTTP response, got %v", v)
	}
	ev := <-f.Ring.Slot(0)
	if ev.ELvls[0] != 1 || ev.ELvls[1] != 2 {
		t.Fatalf("got elvls=%v, want HTTP annotation", ev.ELvls)
	}
}

func TestWhitelistOverridesIngressDrop(t *testing.T) {
	store := state.NewStore()
	store.BlockAddr(1)
	store.WHLIST.Insert(2, 1)
	f := New(ruleset.Set{}, store, event.NewRing(8))

	frame := buildFrame(1, 2, 443, pad("x", 10))
	v := f.Inspect(frame, len(frame), 0)
	if v != PASS {
		t.Fatalf("expected whitelist to override drop, got %v", v)
	}
	ev := <-f.Ring.Slot(0)
	if ev.Dropped() || !ev.Overridden() {
		t.Fatalf("got eaction=%v, want [0 1]", ev.EAction)
	}
}

func TestLDAPFraming(t *testing.T) {
	store := state.NewStore()
	f := New(ruleset.Set{}, store, event.NewRing(8))

	payload := make([]byte, 20)
	payload[0] = 0x30
	payload[5] = opSearchResDone
	frame := buildFrame(1, 2, 389, payload)

	f.Inspect(frame, len(frame), 0)
	ev := <-f.Ring.Slot(0)
	if ev.ELvls[0] != 1 || ev.ELvls[1] != uint32(len(payload)) || ev.ELvls[2] != opSearchResDone {
		t.Fatalf("got elvls=%v, want [1 %d %d]", ev.ELvls, len(payload), opSearchResDone)
	}
}

func TestLDAPFramingOffsetQuirk(t *testing.T) {
	store := state.NewStore()
	f := New(ruleset.Set{}, store, event.NewRing(8))

	// protocolOp one byte later than usual, as seen with searchResEntry
	// on larger messages.
	payload := make([]byte, 275)
	payload[0] = 0x30
	payload[5] = 0x84
	payload[6] = opSearchResEntry
	frame := buildFrame(1, 2, 1389, payload)

	f.Inspect(frame, len(frame), 0)
	ev := <-f.Ring.Slot(0)
	if ev.ELvls[2] != opSearchResEntry {
		t.Fatalf("got protocolOp=%d, want %d", ev.ELvls[2], opSearchResEntry)
	}
}

func TestLDAPBlockedByRuleSet(t *testing.T) {
	store := state.NewStore()
	f := New(ruleset.Set{0, 1, 0, 0}, store, event.NewRing(8))

	payload := make([]byte, 20)
	payload[0] = 0x30
	payload[5] = opBindResponse
	frame := buildFrame(1, 2, 389, payload)

	v := f.Inspect(frame, len(frame), 0)
	if v != DROP {
		t.Fatalf("expected LDAP port block to drop, got %v", v)
	}
}

func TestHTTPBlockedByRuleSet(t *testing.T) {
	store := state.NewStore()
	_ = store.RTX.Insert(1, 5)
	f := New(ruleset.Set{2, 0, 0, 0}, store, event.NewRing(8))

	payload := pad("GET /index.html HTTP/1.1\r\n", 120)
	frame := buildFrame(1, 2, 4444, payload)

	v := f.Inspect(frame, len(frame), 0)
	if v != DROP {
		t.Fatalf("expected HTTP block to drop identified GET, got %v", v)
	}

	resp := pad("HTTP/1.1 200 OK\r\n", 120)
	frame2 := buildFrame(3, 2, 4444, resp)
	_ = store.RTX.Insert(3, 5)
	if v := f.Inspect(frame2, len(frame2), 0); v != DROP {
		t.Fatalf("expected HTTP block to drop identified response, got %v", v)
	}
}

func TestBlockAllTCPRule(t *testing.T) {
	store := state.NewStore()
	f := New(ruleset.Set{1, 0, 0, 0}, store, event.NewRing(8))

	frame := buildFrame(1, 2, 4444, pad("x", 10))
	if v := f.Inspect(frame, len(frame), 0); v != DROP {
		t.Fatalf("expected DROP for block-all-TCP rule, got %v", v)
	}
}
