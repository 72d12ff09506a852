// Package calc implements the exact integer arithmetic every fee and
// rate computation in the protocol is built on.
//
// All balances are indivisible base units carried as uint64 — never
// float64 for money. Intermediate products are widened to 128 bits so
// that a*b/c is exact whenever the quotient fits in uint64; anything
// that does not fit is reported as an overflow, never saturated or
// truncated, because a silently wrong result here misstates a balance.
package calc

import (
	"errors"
	"math/bits"
)

var (
	// ErrArithmeticOverflow is returned when a computation cannot be
	// represented in uint64, or when a denominator is zero.
	ErrArithmeticOverflow = errors.New("calc: arithmetic overflow")
)

// Proportional computes floor(amount * numerator / denominator) using a
// 128-bit intermediate product. The result is bit-for-bit deterministic
// for identical inputs and always rounds toward zero.
//
// Fails with ErrArithmeticOverflow if denominator == 0 or the quotient
// exceeds the uint64 range.
func Proportional(amount, numerator, denominator uint64) (uint64, error) {
	if denominator == 0 {
		return 0, ErrArithmeticOverflow
	}
	hi, lo := bits.Mul64(amount, numerator)
	// bits.Div64 panics when the quotient overflows (hi >= denominator).
	if hi >= denominator {
		return 0, ErrArithmeticOverflow
	}
	quo, _ := bits.Div64(hi, lo, denominator)
	return quo, nil
}

// Add returns a+b, failing with ErrArithmeticOverflow on wraparound.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// Sub returns a-b, failing with ErrArithmeticOverflow if b > a.
// Balances are unsigned; going below zero is always a bug upstream.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}
