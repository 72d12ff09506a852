// Package model defines the core domain types shared across the stake
// engine. All balances are indivisible base units carried as uint64 —
// never float64 for money. JSON-facing amounts are encoded as strings
// so 64-bit values survive clients that parse numbers as doubles.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/solstake/stake-engine/internal/calc"
	"github.com/solstake/stake-engine/internal/curve"
)

// PoolState is the singleton protocol state. It is mutated only by the
// protocol state machine, one operation at a time.
type PoolState struct {
	// AvailableReserveBalance is the native asset held for deposits and
	// instant settlement — deposited but not yet staked. Never negative.
	AvailableReserveBalance uint64 `json:"available_reserve_balance,string"`

	// DerivativeSupply is the total outstanding derivative units.
	DerivativeSupply uint64 `json:"derivative_supply,string"`

	// Rate is the native-per-derivative exchange rate. Monotonic
	// non-decreasing: staking rewards accrue, they never un-accrue.
	Rate calc.Rate `json:"rate"`

	LiqPool LiqPool `json:"liq_pool"`
}

// LiqPool is the internal swap pool backing instant redemption.
type LiqPool struct {
	// SolLegBalance is the native-asset side of the pool.
	SolLegBalance uint64 `json:"sol_leg_balance,string"`

	// LPSupply is the total pool-share units outstanding.
	LPSupply uint64 `json:"lp_supply,string"`

	// LiquidityTarget is the leg balance above which the unstake fee
	// sits at its floor.
	LiquidityTarget uint64 `json:"lp_liquidity_target,string"`

	MinFee curve.Fee `json:"lp_min_fee"`
	MaxFee curve.Fee `json:"lp_max_fee"`
}

// UserAccount holds one participant's balances. Created lazily on first
// interaction and never deleted by this core.
type UserAccount struct {
	ParticipantID     string    `json:"participant_id"`
	NativeBalance     uint64    `json:"native_balance,string"`
	DerivativeBalance uint64    `json:"derivative_balance,string"`
	LPShareBalance    uint64    `json:"lp_share_balance,string"`
	CreatedAt         time.Time `json:"created_at"`
}

// Operation kinds recorded in the journal.
const (
	OpDeposit          = "deposit"
	OpLiquidUnstake    = "liquid_unstake"
	OpAddLiquidity     = "add_liquidity"
	OpRemoveLiquidity  = "remove_liquidity"
	OpSettleWithdrawal = "settle_withdrawal"
)

// OperationRecord is an immutable journal entry for one committed
// operation. Once written these are never modified or deleted.
type OperationRecord struct {
	ID            string    `json:"id" db:"id"`
	ParticipantID string    `json:"participant_id" db:"participant_id"`
	Kind          string    `json:"kind" db:"kind"`
	Amount        uint64    `json:"amount,string" db:"amount"`         // operation input amount
	Minted        uint64    `json:"minted,string" db:"minted"`         // derivative or LP shares credited
	Burned        uint64    `json:"burned,string" db:"burned"`         // derivative or LP shares debited
	PaidOut       uint64    `json:"paid_out,string" db:"paid_out"`     // native units credited to the participant
	FeeBps        uint32    `json:"fee_bps" db:"fee_bps"`              // liquid unstake only
	FeeAmount     uint64    `json:"fee_amount,string" db:"fee_amount"` // native units retained by the pool
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
}

// PoolStats is the read-model snapshot served by the API: the raw state
// plus display-precision derived rates.
type PoolStats struct {
	State PoolState `json:"state"`

	// ExchangeRate is Rate.Value/Rate.Supply at display precision.
	ExchangeRate decimal.Decimal `json:"exchange_rate"`

	// SharePrice is SolLegBalance/LPSupply: the native value one pool
	// share redeems for. Zero while the pool is empty.
	SharePrice decimal.Decimal `json:"lp_share_price"`

	// MinFeePct and MaxFeePct are the curve bounds as percentages.
	MinFeePct decimal.Decimal `json:"min_fee_pct"`
	MaxFeePct decimal.Decimal `json:"max_fee_pct"`
}
