package engine

import (
	"fmt"
	"testing"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

func TestResultStore_ClaimAndDuplicate(t *testing.T) {
	s := newResultStore()

	placeholder := &envelope.ActionResult{ActionID: "act-1", Status: envelope.StatusExecuting}
	prior, ok := s.claim("act-1", placeholder)
	if !ok {
		t.Fatal("first claim should succeed")
	}
	if prior != nil {
		t.Fatalf("first claim returned prior result %+v", prior)
	}

	prior, ok = s.claim("act-1", placeholder)
	if ok {
		t.Fatal("duplicate claim should be rejected")
	}
	if prior == nil || prior.ActionID != "act-1" {
		t.Fatalf("duplicate claim returned %+v, want the original result", prior)
	}
	if s.size() != 1 {
		t.Fatalf("size = %d after duplicate claim, want 1", s.size())
	}
}

func TestResultStore_EvictsOldestAtCapacity(t *testing.T) {
	s := newResultStore()

	for i := 0; i < storeCap; i++ {
		id := fmt.Sprintf("act-%d", i)
		s.claim(id, &envelope.ActionResult{ActionID: id, Status: envelope.StatusCompleted})
	}
	if s.size() != storeCap {
		t.Fatalf("size = %d at capacity, want %d", s.size(), storeCap)
	}

	// One more claim evicts act-0, the oldest entry.
	s.claim("act-overflow", &envelope.ActionResult{ActionID: "act-overflow", Status: envelope.StatusExecuting})

	if s.size() != storeCap {
		t.Fatalf("size = %d after eviction, want %d", s.size(), storeCap)
	}
	if _, ok := s.get("act-0"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := s.get("act-1"); !ok {
		t.Fatal("second-oldest entry should survive eviction")
	}
	if _, ok := s.get("act-overflow"); !ok {
		t.Fatal("newly claimed entry should be tracked")
	}

	// An evicted id can be claimed fresh again.
	prior, ok := s.claim("act-0", &envelope.ActionResult{ActionID: "act-0", Status: envelope.StatusExecuting})
	if !ok || prior != nil {
		t.Fatalf("re-claim of evicted id: ok=%v prior=%+v, want fresh claim", ok, prior)
	}
}
