package common

import (
	"errors"
	"sort"
	"testing"
)

func TestGuardNilView(t *testing.T) {
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("expected nil view to allow, got %v", err)
	}
	if err := Guard(NewPauseSet("lending"), ""); err != nil {
		t.Fatalf("expected empty module to allow, got %v", err)
	}
}

func TestPauseSetToggle(t *testing.T) {
	p := NewPauseSet("lending")
	if err := Guard(p, "lending"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	p.Pause("oracle")
	paused := p.Paused()
	sort.Strings(paused)
	if len(paused) != 2 || paused[0] != "lending" || paused[1] != "oracle" {
		t.Fatalf("unexpected paused modules: %v", paused)
	}
	p.Resume("lending")
	if err := Guard(p, "lending"); err != nil {
		t.Fatalf("expected resumed module to allow, got %v", err)
	}
	if !p.IsPaused("oracle") {
		t.Fatalf("expected oracle to stay paused")
	}
}

func TestNilPauseSet(t *testing.T) {
	var p *PauseSet
	if p.IsPaused("lending") {
		t.Fatalf("nil set must report nothing paused")
	}
}
