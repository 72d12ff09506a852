package calc

import (
	"errors"
	"math/bits"
)

var (
	// ErrInvalidRate is returned for a rate with a zero component.
	ErrInvalidRate = errors.New("calc: exchange rate components must be positive")

	// ErrRateWentBackwards is returned when an update would lower the
	// exchange rate. Staking rewards only accrue; the rate is monotonic
	// non-decreasing over the lifetime of the protocol.
	ErrRateWentBackwards = errors.New("calc: exchange rate may not decrease")
)

// Rate is the native-to-derivative exchange rate carried as an integer
// rational: one derivative unit is worth Value/Supply native units.
// Kept rational rather than floating so conversions stay exact and
// floor-rounded through Proportional.
type Rate struct {
	Value  uint64 // native-asset value of Supply derivative units
	Supply uint64
}

// OneToOne is the launch rate: 1 derivative = 1 native unit.
func OneToOne() Rate {
	return Rate{Value: 1, Supply: 1}
}

// NewRate validates and returns a rate of value/supply.
func NewRate(value, supply uint64) (Rate, error) {
	if value == 0 || supply == 0 {
		return Rate{}, ErrInvalidRate
	}
	return Rate{Value: value, Supply: supply}, nil
}

// DerivativeFromNative converts deposited native units into derivative
// units at this rate, rounding down.
func (r Rate) DerivativeFromNative(native uint64) (uint64, error) {
	return Proportional(native, r.Supply, r.Value)
}

// NativeFromDerivative converts derivative units into their current
// native-asset value, rounding down.
func (r Rate) NativeFromDerivative(derivative uint64) (uint64, error) {
	return Proportional(derivative, r.Value, r.Supply)
}

// Advance replaces the rate with next, rejecting any decrease.
// Comparison is done cross-multiplied in 128 bits so no precision is
// lost: next >= r iff next.Value*r.Supply >= r.Value*next.Supply.
func (r *Rate) Advance(next Rate) error {
	if next.Value == 0 || next.Supply == 0 {
		return ErrInvalidRate
	}
	if lessThan128(mul128(next.Value, r.Supply), mul128(r.Value, next.Supply)) {
		return ErrRateWentBackwards
	}
	*r = next
	return nil
}

type u128 struct{ hi, lo uint64 }

func mul128(a, b uint64) u128 {
	hi, lo := bits.Mul64(a, b)
	return u128{hi: hi, lo: lo}
}

func lessThan128(a, b u128) bool {
	if a.hi != b.hi {
		return a.hi < b.hi
	}
	return a.lo < b.lo
}
