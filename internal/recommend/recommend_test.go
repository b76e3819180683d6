package recommend

import (
	"math/rand/v2"
	"testing"

	"github.com/bandcoach/bandcoach/internal/content"
)

func TestNext_NeverRepeatsCompleted(t *testing.T) {
	r := New(rand.NewPCG(1, 2))
	for _, done := range content.AllSections() {
		for range 200 {
			if got := r.Next(done); got == done {
				t.Fatalf("Next(%s) returned the completed section", done)
			}
		}
	}
}

func TestNext_CoversAllOtherSections(t *testing.T) {
	r := New(rand.NewPCG(7, 11))
	seen := make(map[content.Section]int)
	for range 3000 {
		seen[r.Next(content.Reading)]++
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct recommendations, got %v", seen)
	}
	// Roughly uniform: each bucket should be near 1000.
	for s, n := range seen {
		if n < 800 || n > 1200 {
			t.Errorf("section %s picked %d times out of 3000", s, n)
		}
	}
}

func TestNext_DefaultSource(t *testing.T) {
	r := New(nil)
	if got := r.Next(content.Writing); got == content.Writing {
		t.Fatal("Next returned the completed section")
	}
}
