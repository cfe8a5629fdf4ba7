package testfixtures

import (
	"sync"
	"testing"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("flow")

	first := gen.Next()
	second := gen.NextFunc()()

	if first != "flow-1" || second != "flow-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if issued := gen.Issued(); len(issued) != 2 || issued[1] != "flow-2" {
		t.Fatalf("expected two issued ids, got %v", issued)
	}
}

func TestIDGeneratorIsUniqueUnderConcurrency(t *testing.T) {
	gen := NewIDGenerator("")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen.Next()
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range gen.Issued() {
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
	if len(seen) != 50 {
		t.Fatalf("expected 50 ids, got %d", len(seen))
	}
}
