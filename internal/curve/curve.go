// Package curve implements the liquid-unstake fee curve.
//
// The fee rate is a linear interpolation on the pool's native leg
// liquidity measured *after* the swap: MaxFee at zero remaining
// liquidity, falling linearly to MinFee at the liquidity target, flat
// at MinFee beyond it. Assessing the post-swap level discourages single
// swaps that drain the pool. The curve is pure — callers apply the
// resulting rate to the amount they move.
package curve

import (
	"errors"
	"fmt"

	"github.com/solstake/stake-engine/internal/calc"
)

// MaxBasisPoints is the fee-rate ceiling: 10_000 bp = 100%.
const MaxBasisPoints = 10_000

var (
	// ErrInsufficientLiquidity is returned when a swap would drain the
	// pool leg to zero or below. This is an expected, recoverable
	// condition — retry later or with a smaller amount.
	ErrInsufficientLiquidity = errors.New("curve: insufficient liquidity in pool")

	// ErrInvalidFee is returned for a fee outside [0, 10_000] bp or a
	// pair with min above max.
	ErrInvalidFee = errors.New("curve: invalid fee")
)

// Fee is a fee rate in basis points (1/100th of a percent).
type Fee struct {
	BasisPoints uint32
}

// NewFee validates bp against the 10_000 ceiling.
func NewFee(bp uint32) (Fee, error) {
	if bp > MaxBasisPoints {
		return Fee{}, fmt.Errorf("%w: %d bp exceeds %d", ErrInvalidFee, bp, MaxBasisPoints)
	}
	return Fee{BasisPoints: bp}, nil
}

// NewFeePair validates a min/max curve pair: 0 <= min <= max <= 10_000.
func NewFeePair(minBp, maxBp uint32) (min, max Fee, err error) {
	min, err = NewFee(minBp)
	if err != nil {
		return Fee{}, Fee{}, err
	}
	max, err = NewFee(maxBp)
	if err != nil {
		return Fee{}, Fee{}, err
	}
	if min.BasisPoints > max.BasisPoints {
		return Fee{}, Fee{}, fmt.Errorf("%w: min %d bp above max %d bp",
			ErrInvalidFee, minBp, maxBp)
	}
	return min, max, nil
}

// Apply charges the fee against amount, rounding the fee down.
func (f Fee) Apply(amount uint64) (uint64, error) {
	return calc.Proportional(amount, uint64(f.BasisPoints), MaxBasisPoints)
}

// Percent renders the fee as a human-readable percentage string.
func (f Fee) Percent() string {
	return fmt.Sprintf("%d.%02d%%", f.BasisPoints/100, f.BasisPoints%100)
}

// UnstakeFeeBps computes the fee rate for swapping swapAmount native
// units out of a pool leg holding liquidityBefore, with the configured
// target and min/max fees.
//
// Requires swapAmount < liquidityBefore: a full-drain or over-drain
// swap is rejected outright, not partially filled. Below the target the
// rate is maxFee - proportional(maxFee-minFee, liquidityAfter, target),
// inheriting Proportional's floor rounding.
func UnstakeFeeBps(liquidityBefore, swapAmount, target uint64, minFee, maxFee Fee) (Fee, error) {
	if swapAmount >= liquidityBefore {
		return Fee{}, ErrInsufficientLiquidity
	}
	liquidityAfter := liquidityBefore - swapAmount
	if liquidityAfter >= target {
		return minFee, nil
	}
	delta := uint64(maxFee.BasisPoints - minFee.BasisPoints)
	discount, err := calc.Proportional(delta, liquidityAfter, target)
	if err != nil {
		return Fee{}, err
	}
	return Fee{BasisPoints: maxFee.BasisPoints - uint32(discount)}, nil
}
