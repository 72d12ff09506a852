// Package limits enforces the protocol's capacity caps: a staking cap
// on the native value controlled by the protocol and a liquidity cap on
// the pool's native leg. A zero cap means unlimited.
package limits

import (
	"errors"

	"github.com/solstake/stake-engine/internal/calc"
)

var (
	// ErrStakingCapExceeded is returned when a deposit would push the
	// protocol's total staked value beyond the staking cap.
	ErrStakingCapExceeded = errors.New("limits: staking cap exceeded")

	// ErrLiquidityCapExceeded is returned when a liquidity add would
	// push the pool leg beyond the liquidity cap.
	ErrLiquidityCapExceeded = errors.New("limits: liquidity cap exceeded")
)

// Caps holds the configured capacity limits in native base units.
type Caps struct {
	// StakingCap bounds reserve + pool leg native value. 0 = unlimited.
	StakingCap uint64

	// LiquidityCap bounds the pool's native leg. 0 = unlimited.
	LiquidityCap uint64
}

// CheckDeposit validates that adding amount to the currently staked
// native value stays at or under the staking cap. Landing exactly on
// the cap is allowed.
func (c Caps) CheckDeposit(currentStaked, amount uint64) error {
	if c.StakingCap == 0 {
		return nil
	}
	next, err := calc.Add(currentStaked, amount)
	if err != nil || next > c.StakingCap {
		return ErrStakingCapExceeded
	}
	return nil
}

// CheckAddLiquidity validates that adding amount to the pool leg stays
// at or under the liquidity cap.
func (c Caps) CheckAddLiquidity(currentLeg, amount uint64) error {
	if c.LiquidityCap == 0 {
		return nil
	}
	next, err := calc.Add(currentLeg, amount)
	if err != nil || next > c.LiquidityCap {
		return ErrLiquidityCapExceeded
	}
	return nil
}
