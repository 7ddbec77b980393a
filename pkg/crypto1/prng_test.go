package crypto1

import "testing"

func TestSuccessorComposition(t *testing.T) {
	states := []uint32{0x01020304, 0x8B92EC40, 0xFFFFFFFF, 0x009080A2, 0xDEADBEEF}
	steps := [][2]uint32{{0, 0}, {1, 1}, {8, 24}, {100, 740}, {32, 65535}, {1200, 3}}
	for _, s := range states {
		for _, st := range steps {
			a, b := st[0], st[1]
			got := Successor(Successor(s, a), b)
			want := Successor(s, a+b)
			if got != want {
				t.Fatalf("Successor(Successor(%08X, %d), %d) = %08X, want %08X", s, a, b, got, want)
			}
		}
	}
}

func TestSuccessorPeriod(t *testing.T) {
	// Any word becomes a generator state after 32 clocks.
	v := Successor(0x12345678, 32)
	if v != 0x8B92EC40 {
		t.Fatalf("expected 8B92EC40, got %08X", v)
	}
	if got := Successor(v, PRNGPeriod); got != v {
		t.Fatalf("expected period %d to return %08X, got %08X", PRNGPeriod, v, got)
	}
}

func TestSuccessorZeroIsFixedPoint(t *testing.T) {
	if got := Successor(0, 32); got != 0 {
		t.Fatalf("expected zero state to stay zero, got %08X", got)
	}
}

func TestSuccessorInjectiveOnCycle(t *testing.T) {
	start := Successor(0xCAFEBABE, 32)
	for _, n := range []uint32{1, 160, 840} {
		seen := make(map[uint32]uint32, PRNGPeriod)
		x := start
		for i := uint32(0); i < PRNGPeriod; i++ {
			next := Successor(x, n)
			if prev, dup := seen[next]; dup {
				t.Fatalf("n=%d: states %08X and %08X both map to %08X", n, prev, x, next)
			}
			seen[next] = x
			x = Successor(x, 1)
		}
	}
}

func TestDistance(t *testing.T) {
	nt1 := Successor(0x01020304, 32)
	nt2 := Successor(nt1, 840)

	d, ok := Distance(nt1, nt2, 101, 1200)
	if !ok || d != 840 {
		t.Fatalf("expected distance 840, got %d (ok=%v)", d, ok)
	}
	if _, ok := Distance(nt1, nt2, 101, 840); ok {
		t.Fatalf("expected no match below the ceiling")
	}
	if _, ok := Distance(nt1, nt2, 841, 65565); ok {
		t.Fatalf("expected no match when search starts past the distance")
	}
}
