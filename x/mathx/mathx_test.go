package mathx

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	if got := Clamp(1.5, 0.0, 1.0); got != 1.0 {
		t.Fatalf("Clamp high = %v", got)
	}
	if got := Clamp(-3, 0, 10); got != 0 {
		t.Fatalf("Clamp low = %v", got)
	}
	if got := Clamp(5, 10, 0); got != 5 {
		t.Fatalf("Clamp swapped bounds = %v", got)
	}
}

func TestBetween(t *testing.T) {
	if !Between(10.0, 10.0, 20.0) || Between(21, 10, 20) || !Between(15, 20, 10) {
		t.Fatal("Between misreports")
	}
}

func TestFinite(t *testing.T) {
	if !Finite(0) || Finite(math.NaN()) || Finite(math.Inf(-1)) {
		t.Fatal("Finite misreports")
	}
}

func TestMapU16(t *testing.T) {
	cases := []struct{ x, want uint16 }{
		{0, 0},
		{65535, 4095},
		{32768, 2047},
	}
	for _, c := range cases {
		if got := MapU16(c.x, 0, 65535, 0, 4095); got != c.want {
			t.Fatalf("MapU16(%d) = %d, want %d", c.x, got, c.want)
		}
	}
	if got := MapU16(5, 3, 3, 7, 9); got != 7 {
		t.Fatalf("degenerate input range = %d, want 7", got)
	}
}
