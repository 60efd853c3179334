package runtime

import "testing"

func TestAdvance_ClampsToOneCell(t *testing.T) {
	target := Target(3, 1)
	if target != 4 {
		t.Fatalf("Target(3,+1)=%v", target)
	}
	if got := Advance(3, target, 1, 0.25); got != 3.25 {
		t.Fatalf("Advance 0.25=%v", got)
	}
	if got := Advance(3, target, 1, 50); got != 4 {
		t.Fatalf("Advance 50=%v want 4 (clamped)", got)
	}
	if got := Advance(0, Target(0, -1), -1, 0.5); got != -0.5 {
		t.Fatalf("Advance negative=%v", got)
	}
	if got := Advance(2, 3, 1, 0); got != 2 {
		t.Fatalf("Advance zero elapsed=%v", got)
	}
}

func TestReached(t *testing.T) {
	cases := []struct {
		pos, target float64
		sign        int
		want        bool
	}{
		{4, 4, 1, true},
		{3.9, 4, 1, false},
		{4.1, 4, 1, true},
		{-1, -1, -1, true},
		{-0.5, -1, -1, false},
		{-2, -1, -1, true},
	}
	for _, tc := range cases {
		if got := Reached(tc.pos, tc.target, tc.sign); got != tc.want {
			t.Fatalf("Reached(%v,%v,%d)=%v want %v", tc.pos, tc.target, tc.sign, got, tc.want)
		}
	}
}

func TestResolveHandOff(t *testing.T) {
	if ResolveHandOff(NeighborNone) != FallOff || ResolveHandOff(NeighborConveyor) != PassOn || ResolveHandOff(NeighborProducer) != Deliver {
		t.Fatalf("hand-off table mismatch")
	}
}
