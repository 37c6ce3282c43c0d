package lsmgate

import "testing"

func TestBootPhaseLearnsPID(t *testing.T) {
	g := New()
	for i := 0; i < MaxCalls; i++ {
		if r := g.Evaluate(Call{Cmd: MapUpdateElem, FD: 0, PID: 100}); r != 0 {
			t.Fatalf("boot call %d unexpectedly denied", i)
		}
	}
	if !g.Armed() {
		t.Fatalf("expected gate armed after MaxCalls boot updates")
	}
	pid, ok := g.BootPID()
	if !ok || pid != 100 {
		t.Fatalf("got (%d,%v), want (100,true)", pid, ok)
	}
}

func TestArmedDeniesForeignPID(t *testing.T) {
	g := New()
	for i := 0; i < MaxCalls; i++ {
		g.Evaluate(Call{Cmd: MapUpdateElem, FD: 0, PID: 100})
	}
	if r := g.Evaluate(Call{Cmd: MapUpdateElem, PID: 200}); r >= 0 {
		t.Fatalf("expected denial for foreign pid in armed state, got %d", r)
	}
	if r := g.Evaluate(Call{Cmd: MapLookupElem, PID: 200}); r >= 0 {
		t.Fatalf("expected denial for MapLookupElem, got %d", r)
	}
	if r := g.Evaluate(Call{Cmd: ObjGet, PID: 200}); r >= 0 {
		t.Fatalf("expected denial for ObjGet, got %d", r)
	}
}

func TestArmedAllowsTrustedPID(t *testing.T) {
	g := New()
	for i := 0; i < MaxCalls; i++ {
		g.Evaluate(Call{Cmd: MapUpdateElem, FD: 0, PID: 100})
	}
	if r := g.Evaluate(Call{Cmd: MapLookupElem, PID: 100}); r != 0 {
		t.Fatalf("expected trusted pid to be allowed, got %d", r)
	}
}

func TestUnrelatedPIDDoesNotCountDuringBoot(t *testing.T) {
	g := New()
	g.Evaluate(Call{Cmd: MapUpdateElem, FD: 0, PID: 100}) // learns pid 100, counter 3
	g.Evaluate(Call{Cmd: MapUpdateElem, FD: 0, PID: 999}) // unrelated pid, doesn't count
	g.Evaluate(Call{Cmd: MapUpdateElem, FD: 0, PID: 100})
	g.Evaluate(Call{Cmd: MapUpdateElem, FD: 0, PID: 100})
	if g.Armed() {
		t.Fatalf("expected still in boot phase (only 3 counted calls so far)")
	}
	g.Evaluate(Call{Cmd: MapUpdateElem, FD: 0, PID: 100})
	if !g.Armed() {
		t.Fatalf("expected armed after 4th counted call")
	}
}

func TestSealArmsImmediately(t *testing.T) {
	g := New()
	g.Evaluate(Call{Cmd: MapUpdateElem, FD: 0, PID: 100})
	g.Seal()
	if !g.Armed() {
		t.Fatalf("expected gate armed after Seal")
	}
	if r := g.Evaluate(Call{Cmd: MapUpdateElem, PID: 200}); r >= 0 {
		t.Fatalf("expected denial after Seal, got %d", r)
	}
	if r := g.Evaluate(Call{Cmd: MapLookupElem, PID: 100}); r != 0 {
		t.Fatalf("expected learned pid still allowed after Seal, got %d", r)
	}
}

func TestOnDenyObserved(t *testing.T) {
	g := New()
	var denied []Call
	g.OnDeny = func(c Call) { denied = append(denied, c) }
	g.Seal()
	g.Evaluate(Call{Cmd: MapDeleteElem, PID: 200})
	g.Evaluate(Call{Cmd: ProgLoad, PID: 200}) // allowed, must not be observed
	if len(denied) != 1 || denied[0].Cmd != MapDeleteElem {
		t.Fatalf("got denied=%v, want exactly the MapDeleteElem call", denied)
	}
}

func TestProgramAndBTFLoadsRemainAllowed(t *testing.T) {
	g := New()
	for i := 0; i < MaxCalls; i++ {
		g.Evaluate(Call{Cmd: MapUpdateElem, FD: 0, PID: 100})
	}
	if r := g.Evaluate(Call{Cmd: ProgLoad, PID: 999}); r != 0 {
		t.Fatalf("expected ProgLoad allowed per open question resolution, got %d", r)
	}
	if r := g.Evaluate(Call{Cmd: BTFLoad, PID: 999}); r != 0 {
		t.Fatalf("expected BTFLoad allowed per open question resolution, got %d", r)
	}
}
