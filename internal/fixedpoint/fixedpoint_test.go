package fixedpoint

import (
	"math"
	"testing"
)

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d int64
		want    int64
	}{
		{"simple", 10, 3, 4, 7},
		{"zero divisor", 10, 3, 0, 0},
		{"negative", -10, 3, 4, 0},
		{"no overflow", math.MaxInt64, 2, 4, math.MaxInt64 / 2},
		{"large product", 4_000_000_000_000, 3_000_000_000_000, 6_000_000_000_000, 2_000_000_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MulDiv(tt.a, tt.b, tt.d); got != tt.want {
				t.Fatalf("MulDiv(%d, %d, %d) = %d, want %d", tt.a, tt.b, tt.d, got, tt.want)
			}
		})
	}
}

func TestPctAndMul3Div(t *testing.T) {
	if got := Pct(8300, 5); got != 415 {
		t.Fatalf("Pct = %d, want 415", got)
	}
	// 8300 * 50% * 5% = 207.5 -> 207
	if got := Mul3Div(8300, 50, 5, 10_000); got != 207 {
		t.Fatalf("Mul3Div = %d, want 207", got)
	}
}
