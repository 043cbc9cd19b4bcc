package timex

import (
	"testing"
	"time"
)

func TestManual(t *testing.T) {
	start := time.Unix(1000, 0)
	c := NewManual(start)
	if !c.Now().Equal(start) {
		t.Fatal("Manual did not start at the given time")
	}
	got := c.Advance(1500 * time.Millisecond)
	if SinceMs(start, got) != 1500 {
		t.Fatalf("SinceMs = %d, want 1500", SinceMs(start, got))
	}
}
