// Package fixedpoint holds the integer arithmetic used for fees and
// pro-rata payouts. Intermediate products are computed in 256 bits so that
// a*b never overflows before the division.
package fixedpoint

import "github.com/holiman/uint256"

// MulDiv returns floor(a*b/d). Negative inputs and a zero divisor yield 0.
func MulDiv(a, b, d int64) int64 {
	if a <= 0 || b <= 0 || d <= 0 {
		return 0
	}
	x := uint256.NewInt(uint64(a))
	x.Mul(x, uint256.NewInt(uint64(b)))
	x.Div(x, uint256.NewInt(uint64(d)))
	if !x.IsUint64() || x.Uint64() > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(x.Uint64())
}

// Pct returns floor(amount*pct/100).
func Pct(amount, pct int64) int64 {
	return MulDiv(amount, pct, 100)
}

// Mul3Div returns floor(a*b*c/d), used where two percentages scale one
// amount.
func Mul3Div(a, b, c, d int64) int64 {
	if a <= 0 || b <= 0 || c <= 0 || d <= 0 {
		return 0
	}
	x := uint256.NewInt(uint64(a))
	x.Mul(x, uint256.NewInt(uint64(b)))
	x.Mul(x, uint256.NewInt(uint64(c)))
	x.Div(x, uint256.NewInt(uint64(d)))
	if !x.IsUint64() || x.Uint64() > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(x.Uint64())
}
