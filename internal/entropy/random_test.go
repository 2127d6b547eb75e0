package entropy

import "testing"

func TestResolve(t *testing.T) {
	if got := Resolve(42); got != 42 {
		t.Fatalf("expected configured seed to pass through, got %d", got)
	}
	if got := Resolve(0); got <= 0 {
		t.Fatalf("expected a positive drawn seed, got %d", got)
	}
}

func TestSeedVaries(t *testing.T) {
	seen := map[int64]bool{}
	for i := 0; i < 8; i++ {
		seen[Seed()] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected drawn seeds to vary")
	}
}
