package protocol

import (
	"fmt"

	"github.com/solstake/stake-engine/internal/calc"
	"github.com/solstake/stake-engine/internal/model"
)

// DepositResult reports the realized amounts of a deposit.
type DepositResult struct {
	DerivativeMinted uint64 `json:"derivative_minted,string"`
}

// Deposit converts a native-asset deposit into derivative units at the
// current exchange rate. The native transfer into the reserve is
// confirmed by the execution environment before this is called; the
// core only accounts for it.
func (s *State) Deposit(acct *model.UserAccount, amount uint64) (*DepositResult, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	staked, err := s.stakedValue()
	if err != nil {
		return nil, err
	}
	if err := s.Caps.CheckDeposit(staked, amount); err != nil {
		return nil, err
	}

	minted, err := s.Pool.Rate.DerivativeFromNative(amount)
	if err != nil {
		return nil, err
	}
	newReserve, err := calc.Add(s.Pool.AvailableReserveBalance, amount)
	if err != nil {
		return nil, err
	}
	newSupply, err := calc.Add(s.Pool.DerivativeSupply, minted)
	if err != nil {
		return nil, err
	}
	newBalance, err := calc.Add(acct.DerivativeBalance, minted)
	if err != nil {
		return nil, err
	}

	// Commit.
	s.Pool.AvailableReserveBalance = newReserve
	s.Pool.DerivativeSupply = newSupply
	acct.DerivativeBalance = newBalance

	return &DepositResult{DerivativeMinted: minted}, nil
}

// SettleDelayedWithdrawal debits the available reserve when the
// execution environment settles a delayed (non-liquid) withdrawal.
// Ticketing and delegation mechanics live outside this core.
func (s *State) SettleDelayedWithdrawal(amount uint64) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if amount > s.Pool.AvailableReserveBalance {
		return fmt.Errorf("%w: reserve holds %d, settlement needs %d",
			ErrInsufficientBalance, s.Pool.AvailableReserveBalance, amount)
	}
	s.Pool.AvailableReserveBalance -= amount
	return nil
}
