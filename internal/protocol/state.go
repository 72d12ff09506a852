// Package protocol implements the accounting state machine of the
// liquid-staking protocol: deposits mint the derivative asset at the
// protocol exchange rate, and the internal liquidity pool redeems it
// instantly for a liquidity-dependent fee.
//
// Every operation is an atomic transition over the singleton pool state
// and exactly one user account: all validation and all fallible
// arithmetic run first against local copies, and balances are only
// written in a straight-line commit that cannot fail. A rejected
// operation therefore leaves every balance bit-for-bit unchanged — no
// compensating rollback exists or is needed.
//
// State is not safe for concurrent use. The surrounding execution
// environment must serialize operations (the engine holds one mutex
// around the State); the transitions themselves never block.
package protocol

import (
	"fmt"

	"github.com/solstake/stake-engine/internal/calc"
	"github.com/solstake/stake-engine/internal/curve"
	"github.com/solstake/stake-engine/internal/limits"
	"github.com/solstake/stake-engine/internal/model"
)

// Config carries the pool parameters fixed at initialization.
type Config struct {
	// LiquidityTarget is the pool-leg balance at which the unstake fee
	// reaches its floor.
	LiquidityTarget uint64

	// MinFeeBps and MaxFeeBps bound the unstake fee curve.
	MinFeeBps uint32
	MaxFeeBps uint32

	// Caps are the optional capacity limits (0 = unlimited).
	Caps limits.Caps
}

// State is the protocol state machine: the singleton PoolState plus the
// configured caps. Exclusively owned by its creator and explicitly
// passed, never ambient.
type State struct {
	Pool model.PoolState
	Caps limits.Caps
}

// NewState validates cfg and returns a fresh state at a 1:1 exchange
// rate with empty balances.
func NewState(cfg Config) (*State, error) {
	minFee, maxFee, err := curve.NewFeePair(cfg.MinFeeBps, cfg.MaxFeeBps)
	if err != nil {
		return nil, err
	}
	return &State{
		Pool: model.PoolState{
			Rate: calc.OneToOne(),
			LiqPool: model.LiqPool{
				LiquidityTarget: cfg.LiquidityTarget,
				MinFee:          minFee,
				MaxFee:          maxFee,
			},
		},
		Caps: cfg.Caps,
	}, nil
}

// AdvanceRate moves the exchange rate forward as staking rewards
// accrue. Decreases are rejected and leave the rate unchanged.
func (s *State) AdvanceRate(next calc.Rate) error {
	return s.Pool.Rate.Advance(next)
}

// stakedValue is the native value currently under protocol control:
// the uncommitted reserve plus the pool's native leg.
func (s *State) stakedValue() (uint64, error) {
	return calc.Add(s.Pool.AvailableReserveBalance, s.Pool.LiqPool.SolLegBalance)
}

func requirePositive(amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	return nil
}
