package domain

// RoundHalfUpDiv divides n by d rounding half up on the minor-unit boundary.
// Inputs are expected to be non-negative; d must be positive.
func RoundHalfUpDiv(n, d int64) int64 {
	if d <= 0 {
		return 0
	}
	q := n / d
	r := n % d
	if 2*r >= d {
		q++
	}
	return q
}

// PercentOf returns value scaled by percent with half-up rounding.
func PercentOf(value, percent int64) int64 {
	return RoundHalfUpDiv(value*percent, 100)
}
