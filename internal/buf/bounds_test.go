package buf

import (
	"math"
	"testing"
)

func TestAddOverflowSafe(t *testing.T) {
	if sum, ok := AddOverflowSafe(10, 5); !ok || sum != 15 {
		t.Fatalf("AddOverflowSafe(10,5)=%d,%v want 15,true", sum, ok)
	}
	if _, ok := AddOverflowSafe(math.MaxInt, 1); ok {
		t.Fatalf("expected overflow when adding to MaxInt")
	}
	if _, ok := AddOverflowSafe(math.MinInt, -1); ok {
		t.Fatalf("expected underflow when subtracting from MinInt")
	}
}

func TestSpan(t *testing.T) {
	data := make([]byte, 8)
	if got, ok := Span(data, 4, 4); !ok || len(got) != 4 {
		t.Fatalf("Span(4,4) = %v, %v; want 4 bytes", got, ok)
	}
	if got, ok := Span(data, 8, 0); !ok || len(got) != 0 {
		t.Fatalf("Span(8,0) = %v, %v; want empty slice", got, ok)
	}
	if _, ok := Span(data, 5, 4); ok {
		t.Fatalf("Span should fail past the end")
	}
	if _, ok := Span(data, math.MaxUint32, 2); ok {
		t.Fatalf("Span should not wrap around 32 bits")
	}
}
