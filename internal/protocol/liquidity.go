package protocol

import (
	"fmt"

	"github.com/solstake/stake-engine/internal/calc"
	"github.com/solstake/stake-engine/internal/curve"
	"github.com/solstake/stake-engine/internal/model"
)

// AddLiquidityResult reports the realized amounts of a liquidity add.
type AddLiquidityResult struct {
	SharesMinted uint64 `json:"shares_minted,string"`
}

// RemoveLiquidityResult reports the realized amounts of a removal.
type RemoveLiquidityResult struct {
	SharesBurned uint64 `json:"shares_burned,string"`
	NativePaid   uint64 `json:"native_paid,string"`
}

// LiquidUnstakeResult reports the realized amounts of a liquid unstake.
type LiquidUnstakeResult struct {
	DerivativeBurned uint64 `json:"derivative_burned,string"`
	NativeEquivalent uint64 `json:"native_equivalent,string"`
	FeeBps           uint32 `json:"fee_bps"`
	FeeAmount        uint64 `json:"fee_amount,string"`
	NativePaid       uint64 `json:"native_paid,string"`
}

// AddLiquidity deposits native units into the pool leg and mints pool
// shares pro-rata against the leg's current value. The first provider
// (or a provider after a full drain) establishes a 1:1 native-to-share
// ratio.
func (s *State) AddLiquidity(acct *model.UserAccount, amount uint64) (*AddLiquidityResult, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	lq := &s.Pool.LiqPool
	if err := s.Caps.CheckAddLiquidity(lq.SolLegBalance, amount); err != nil {
		return nil, err
	}

	var shares uint64
	var err error
	if lq.LPSupply == 0 || lq.SolLegBalance == 0 {
		shares = amount
	} else {
		shares, err = calc.Proportional(amount, lq.LPSupply, lq.SolLegBalance)
		if err != nil {
			return nil, err
		}
	}
	if shares == 0 {
		// Flooring ate the whole deposit; minting nothing would donate
		// the amount to existing providers.
		return nil, fmt.Errorf("%w: %d native mints no shares at the current share price",
			ErrInvalidAmount, amount)
	}

	newLeg, err := calc.Add(lq.SolLegBalance, amount)
	if err != nil {
		return nil, err
	}
	newSupply, err := calc.Add(lq.LPSupply, shares)
	if err != nil {
		return nil, err
	}
	newBalance, err := calc.Add(acct.LPShareBalance, shares)
	if err != nil {
		return nil, err
	}

	// Commit.
	lq.SolLegBalance = newLeg
	lq.LPSupply = newSupply
	acct.LPShareBalance = newBalance

	return &AddLiquidityResult{SharesMinted: shares}, nil
}

// RemoveLiquidity burns lpAmount of the caller's pool shares and pays
// out the pro-rata slice of the native leg, floor rounded.
func (s *State) RemoveLiquidity(acct *model.UserAccount, lpAmount uint64) (*RemoveLiquidityResult, error) {
	if err := requirePositive(lpAmount); err != nil {
		return nil, err
	}
	if lpAmount > acct.LPShareBalance {
		return nil, fmt.Errorf("%w: have %d, removing %d",
			ErrInsufficientShares, acct.LPShareBalance, lpAmount)
	}
	lq := &s.Pool.LiqPool

	payout, err := calc.Proportional(lq.SolLegBalance, lpAmount, lq.LPSupply)
	if err != nil {
		return nil, err
	}
	newLeg, err := calc.Sub(lq.SolLegBalance, payout)
	if err != nil {
		return nil, err
	}
	newSupply, err := calc.Sub(lq.LPSupply, lpAmount)
	if err != nil {
		return nil, err
	}
	newNative, err := calc.Add(acct.NativeBalance, payout)
	if err != nil {
		return nil, err
	}

	// Commit.
	lq.SolLegBalance = newLeg
	lq.LPSupply = newSupply
	acct.LPShareBalance -= lpAmount
	acct.NativeBalance = newNative

	return &RemoveLiquidityResult{SharesBurned: lpAmount, NativePaid: payout}, nil
}

// LiquidUnstake redeems derivative units instantly through the pool.
// The derivative is valued at the exchange rate, the fee curve prices
// the swap against the post-swap leg balance, and the fee stays in the
// pool — that retained value is how liquidity providers earn yield.
// The redeemed derivative is burned from the caller and from supply.
func (s *State) LiquidUnstake(acct *model.UserAccount, derivativeAmount uint64) (*LiquidUnstakeResult, error) {
	if err := requirePositive(derivativeAmount); err != nil {
		return nil, err
	}
	if derivativeAmount > acct.DerivativeBalance {
		return nil, fmt.Errorf("%w: have %d derivative, unstaking %d",
			ErrInsufficientBalance, acct.DerivativeBalance, derivativeAmount)
	}
	lq := &s.Pool.LiqPool

	nativeEquivalent, err := s.Pool.Rate.NativeFromDerivative(derivativeAmount)
	if err != nil {
		return nil, err
	}
	fee, err := curve.UnstakeFeeBps(lq.SolLegBalance, nativeEquivalent,
		lq.LiquidityTarget, lq.MinFee, lq.MaxFee)
	if err != nil {
		return nil, err
	}
	feeAmount, err := fee.Apply(nativeEquivalent)
	if err != nil {
		return nil, err
	}
	payout := nativeEquivalent - feeAmount

	newLeg, err := calc.Sub(lq.SolLegBalance, payout)
	if err != nil {
		return nil, err
	}
	newSupply, err := calc.Sub(s.Pool.DerivativeSupply, derivativeAmount)
	if err != nil {
		return nil, err
	}
	newNative, err := calc.Add(acct.NativeBalance, payout)
	if err != nil {
		return nil, err
	}

	// Commit.
	lq.SolLegBalance = newLeg
	s.Pool.DerivativeSupply = newSupply
	acct.DerivativeBalance -= derivativeAmount
	acct.NativeBalance = newNative

	return &LiquidUnstakeResult{
		DerivativeBurned: derivativeAmount,
		NativeEquivalent: nativeEquivalent,
		FeeBps:           fee.BasisPoints,
		FeeAmount:        feeAmount,
		NativePaid:       payout,
	}, nil
}
