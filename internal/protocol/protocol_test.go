package protocol

import (
	"errors"
	"reflect"
	"testing"

	"github.com/solstake/stake-engine/internal/calc"
	"github.com/solstake/stake-engine/internal/curve"
	"github.com/solstake/stake-engine/internal/limits"
	"github.com/solstake/stake-engine/internal/model"
)

// sol converts whole native tokens to base units for readable fixtures.
const sol = 1_000_000_000

func newTestState(t *testing.T) *State {
	t.Helper()
	s, err := NewState(Config{
		LiquidityTarget: 100 * sol,
		MinFeeBps:       30,
		MaxFeeBps:       300,
	})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return s
}

func newAccount(id string) *model.UserAccount {
	return &model.UserAccount{ParticipantID: id}
}

// --- Construction ---

func TestNewState_InvalidFeePair(t *testing.T) {
	_, err := NewState(Config{MinFeeBps: 300, MaxFeeBps: 30})
	if !errors.Is(err, curve.ErrInvalidFee) {
		t.Errorf("expected ErrInvalidFee for min > max, got %v", err)
	}
}

// --- Deposit (scenario: empty pool, 1:1 rate) ---

func TestDeposit_MintsAtOneToOne(t *testing.T) {
	s := newTestState(t)
	alice := newAccount("alice")

	res, err := s.Deposit(alice, 5*sol)
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if res.DerivativeMinted != 5*sol {
		t.Errorf("expected 5 SOL of derivative minted, got %d", res.DerivativeMinted)
	}
	if alice.DerivativeBalance != 5*sol {
		t.Errorf("expected derivative balance 5 SOL, got %d", alice.DerivativeBalance)
	}
	if s.Pool.AvailableReserveBalance != 5*sol {
		t.Errorf("expected reserve 5 SOL, got %d", s.Pool.AvailableReserveBalance)
	}
	if s.Pool.DerivativeSupply != 5*sol {
		t.Errorf("expected supply 5 SOL, got %d", s.Pool.DerivativeSupply)
	}
}

func TestDeposit_ZeroAmount(t *testing.T) {
	s := newTestState(t)
	if _, err := s.Deposit(newAccount("alice"), 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestDeposit_AppreciatedRateFloorsMint(t *testing.T) {
	s := newTestState(t)
	// 1 derivative now worth 1.05 native.
	if err := s.AdvanceRate(calc.Rate{Value: 105, Supply: 100}); err != nil {
		t.Fatalf("AdvanceRate: %v", err)
	}

	res, err := s.Deposit(newAccount("alice"), 100)
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if res.DerivativeMinted != 95 { // floor(100 * 100/105)
		t.Errorf("expected 95 minted, got %d", res.DerivativeMinted)
	}
}

func TestDeposit_StakingCap(t *testing.T) {
	s, err := NewState(Config{
		LiquidityTarget: 100 * sol,
		MinFeeBps:       30,
		MaxFeeBps:       300,
		Caps:            limits.Caps{StakingCap: 10 * sol},
	})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	alice := newAccount("alice")

	if _, err := s.Deposit(alice, 10*sol); err != nil {
		t.Fatalf("at-cap deposit should succeed: %v", err)
	}
	if _, err := s.Deposit(alice, 1); !errors.Is(err, limits.ErrStakingCapExceeded) {
		t.Errorf("expected ErrStakingCapExceeded, got %v", err)
	}
}

// --- Liquidity add/remove ---

func TestAddLiquidity_FirstProviderOneToOne(t *testing.T) {
	s := newTestState(t)
	bob := newAccount("bob")

	res, err := s.AddLiquidity(bob, 25*sol)
	if err != nil {
		t.Fatalf("add liquidity failed: %v", err)
	}
	if res.SharesMinted != 25*sol {
		t.Errorf("first provider should mint 1:1, got %d", res.SharesMinted)
	}
	if s.Pool.LiqPool.SolLegBalance != 25*sol || s.Pool.LiqPool.LPSupply != 25*sol {
		t.Errorf("leg/supply mismatch: leg=%d supply=%d",
			s.Pool.LiqPool.SolLegBalance, s.Pool.LiqPool.LPSupply)
	}
	if bob.LPShareBalance != 25*sol {
		t.Errorf("expected share balance 25 SOL, got %d", bob.LPShareBalance)
	}
}

func TestAddLiquidity_ProRataAfterFeeAccrual(t *testing.T) {
	s := newTestState(t)
	// Retained fees make the leg richer than the share supply.
	s.Pool.LiqPool.SolLegBalance = 110
	s.Pool.LiqPool.LPSupply = 100

	carol := newAccount("carol")
	res, err := s.AddLiquidity(carol, 11)
	if err != nil {
		t.Fatalf("add liquidity failed: %v", err)
	}
	if res.SharesMinted != 10 { // floor(11 * 100/110)
		t.Errorf("expected 10 shares, got %d", res.SharesMinted)
	}
}

func TestAddLiquidity_DustMintsNothing(t *testing.T) {
	s := newTestState(t)
	s.Pool.LiqPool.SolLegBalance = 1000
	s.Pool.LiqPool.LPSupply = 1

	_, err := s.AddLiquidity(newAccount("carol"), 500)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero-share mint must be rejected, got %v", err)
	}
}

func TestAddLiquidity_LiquidityCap(t *testing.T) {
	s, err := NewState(Config{
		LiquidityTarget: 100 * sol,
		MinFeeBps:       30,
		MaxFeeBps:       300,
		Caps:            limits.Caps{LiquidityCap: 20 * sol},
	})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	bob := newAccount("bob")
	if _, err := s.AddLiquidity(bob, 20*sol); err != nil {
		t.Fatalf("at-cap add should succeed: %v", err)
	}
	if _, err := s.AddLiquidity(bob, 1); !errors.Is(err, limits.ErrLiquidityCapExceeded) {
		t.Errorf("expected ErrLiquidityCapExceeded, got %v", err)
	}
}

func TestRemoveLiquidity_ProRataPayout(t *testing.T) {
	s := newTestState(t)
	bob := newAccount("bob")
	if _, err := s.AddLiquidity(bob, 25*sol); err != nil {
		t.Fatalf("add: %v", err)
	}

	res, err := s.RemoveLiquidity(bob, 10*sol)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if res.NativePaid != 10*sol {
		t.Errorf("expected 10 SOL payout, got %d", res.NativePaid)
	}
	if bob.NativeBalance != 10*sol || bob.LPShareBalance != 15*sol {
		t.Errorf("balances wrong: native=%d shares=%d", bob.NativeBalance, bob.LPShareBalance)
	}
	if s.Pool.LiqPool.SolLegBalance != 15*sol || s.Pool.LiqPool.LPSupply != 15*sol {
		t.Errorf("pool wrong: leg=%d supply=%d",
			s.Pool.LiqPool.SolLegBalance, s.Pool.LiqPool.LPSupply)
	}
}

func TestRemoveLiquidity_MoreThanHeld(t *testing.T) {
	s := newTestState(t)
	bob := newAccount("bob")
	if _, err := s.AddLiquidity(bob, 25*sol); err != nil {
		t.Fatalf("add: %v", err)
	}

	_, err := s.RemoveLiquidity(bob, 26*sol)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("expected ErrInsufficientShares, got %v", err)
	}
}

// --- Liquid unstake ---

// The deposit-then-unstake flow: a deposit alone provides no pool
// liquidity, so the first unstake is rejected; after a liquidity add it
// succeeds with the curve fee charged on the post-swap leg balance.
func TestLiquidUnstake_DepositAddUnstakeFlow(t *testing.T) {
	s := newTestState(t)
	alice := newAccount("alice")
	bob := newAccount("bob")

	if _, err := s.Deposit(alice, 26*sol); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// No liquidity yet: rejected, state untouched.
	before := snapshot(s, alice)
	if _, err := s.LiquidUnstake(alice, 10*sol); !errors.Is(err, curve.ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	requireUnchanged(t, before, s, alice)

	if _, err := s.AddLiquidity(bob, 25*sol); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	res, err := s.LiquidUnstake(alice, 15*sol)
	if err != nil {
		t.Fatalf("unstake failed: %v", err)
	}

	// leg 25, swap 15 → after 10 < target 100:
	// fee = 300 - floor(270 * 10*sol / (100*sol)) = 300 - 27 = 273 bp.
	if res.FeeBps != 273 {
		t.Errorf("expected 273 bp, got %d", res.FeeBps)
	}
	wantFee := uint64(15*sol) * 273 / 10_000
	if res.FeeAmount != wantFee {
		t.Errorf("expected fee %d, got %d", wantFee, res.FeeAmount)
	}
	wantPaid := 15*sol - wantFee
	if res.NativePaid != wantPaid {
		t.Errorf("expected payout %d, got %d", wantPaid, res.NativePaid)
	}
	if alice.NativeBalance != wantPaid {
		t.Errorf("native balance %d, want %d", alice.NativeBalance, wantPaid)
	}
	if alice.DerivativeBalance != 11*sol {
		t.Errorf("derivative balance %d, want 11 SOL", alice.DerivativeBalance)
	}
	if s.Pool.DerivativeSupply != 11*sol {
		t.Errorf("supply %d, want 11 SOL", s.Pool.DerivativeSupply)
	}
	// The fee stays in the leg: 25 - payout = 10 SOL + fee.
	if got := s.Pool.LiqPool.SolLegBalance; got != 10*sol+wantFee {
		t.Errorf("leg %d, want %d", got, 10*sol+wantFee)
	}
}

func TestLiquidUnstake_DrainRejected(t *testing.T) {
	s := newTestState(t)
	alice := newAccount("alice")
	bob := newAccount("bob")
	if _, err := s.Deposit(alice, 30*sol); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := s.AddLiquidity(bob, 26*sol); err != nil {
		t.Fatalf("add: %v", err)
	}

	before := snapshot(s, alice)
	for _, amount := range []uint64{26 * sol, 27 * sol} {
		_, err := s.LiquidUnstake(alice, amount)
		if !errors.Is(err, curve.ErrInsufficientLiquidity) {
			t.Errorf("unstake %d: expected ErrInsufficientLiquidity, got %v", amount, err)
		}
		requireUnchanged(t, before, s, alice)
	}
}

func TestLiquidUnstake_MoreThanHeld(t *testing.T) {
	s := newTestState(t)
	alice := newAccount("alice")
	if _, err := s.Deposit(alice, 5*sol); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	_, err := s.LiquidUnstake(alice, 6*sol)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestLiquidUnstake_MinFeeAboveTarget(t *testing.T) {
	s := newTestState(t)
	alice := newAccount("alice")
	whale := newAccount("whale")
	if _, err := s.Deposit(alice, 50*sol); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := s.AddLiquidity(whale, 500*sol); err != nil {
		t.Fatalf("add: %v", err)
	}

	res, err := s.LiquidUnstake(alice, 50*sol)
	if err != nil {
		t.Fatalf("unstake failed: %v", err)
	}
	// Post-swap leg 450 SOL >= target 100 SOL → min fee.
	if res.FeeBps != 30 {
		t.Errorf("expected min fee 30 bp, got %d", res.FeeBps)
	}
}

// --- Settlement ---

func TestSettleDelayedWithdrawal(t *testing.T) {
	s := newTestState(t)
	if _, err := s.Deposit(newAccount("alice"), 10*sol); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := s.SettleDelayedWithdrawal(4 * sol); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if s.Pool.AvailableReserveBalance != 6*sol {
		t.Errorf("reserve %d, want 6 SOL", s.Pool.AvailableReserveBalance)
	}

	if err := s.SettleDelayedWithdrawal(7 * sol); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := s.SettleDelayedWithdrawal(0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

// --- Conservation ---

// Over any operation sequence, reserve + pool leg + everything paid out
// to participants must exactly equal everything paid in.
func TestConservation_MixedSequence(t *testing.T) {
	s := newTestState(t)
	alice := newAccount("alice")
	bob := newAccount("bob")
	carol := newAccount("carol")
	accounts := []*model.UserAccount{alice, bob, carol}

	var inflow uint64
	deposit := func(a *model.UserAccount, amt uint64) {
		t.Helper()
		if _, err := s.Deposit(a, amt); err != nil {
			t.Fatalf("deposit %d: %v", amt, err)
		}
		inflow += amt
	}
	add := func(a *model.UserAccount, amt uint64) {
		t.Helper()
		if _, err := s.AddLiquidity(a, amt); err != nil {
			t.Fatalf("add %d: %v", amt, err)
		}
		inflow += amt
	}

	deposit(alice, 26*sol)
	add(bob, 40*sol)
	if _, err := s.LiquidUnstake(alice, 15*sol); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	deposit(carol, 7*sol)
	add(carol, 3*sol)
	if _, err := s.LiquidUnstake(carol, 2*sol); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if _, err := s.RemoveLiquidity(bob, 11*sol); err != nil {
		t.Fatalf("remove: %v", err)
	}

	var paidOut uint64
	for _, a := range accounts {
		paidOut += a.NativeBalance
	}
	held := s.Pool.AvailableReserveBalance + s.Pool.LiqPool.SolLegBalance
	if held+paidOut != inflow {
		t.Errorf("conservation violated: held=%d paidOut=%d inflow=%d",
			held, paidOut, inflow)
	}
}

// --- Atomicity ---

type stateSnapshot struct {
	pool model.PoolState
	acct model.UserAccount
}

func snapshot(s *State, acct *model.UserAccount) stateSnapshot {
	return stateSnapshot{pool: s.Pool, acct: *acct}
}

func requireUnchanged(t *testing.T, before stateSnapshot, s *State, acct *model.UserAccount) {
	t.Helper()
	if !reflect.DeepEqual(before.pool, s.Pool) {
		t.Fatalf("pool state mutated by failed operation:\nbefore %+v\nafter  %+v",
			before.pool, s.Pool)
	}
	if !reflect.DeepEqual(before.acct, *acct) {
		t.Fatalf("account mutated by failed operation:\nbefore %+v\nafter  %+v",
			before.acct, *acct)
	}
}

func TestAtomicity_EveryFailurePathLeavesStateUntouched(t *testing.T) {
	s := newTestState(t)
	alice := newAccount("alice")
	bob := newAccount("bob")
	if _, err := s.Deposit(alice, 26*sol); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := s.AddLiquidity(bob, 10*sol); err != nil {
		t.Fatalf("add: %v", err)
	}

	tests := []struct {
		name string
		op   func(a *model.UserAccount) error
	}{
		{"deposit zero", func(a *model.UserAccount) error {
			_, err := s.Deposit(a, 0)
			return err
		}},
		{"unstake zero", func(a *model.UserAccount) error {
			_, err := s.LiquidUnstake(a, 0)
			return err
		}},
		{"unstake over balance", func(a *model.UserAccount) error {
			_, err := s.LiquidUnstake(a, 100*sol)
			return err
		}},
		{"unstake over liquidity", func(a *model.UserAccount) error {
			_, err := s.LiquidUnstake(a, 12*sol)
			return err
		}},
		{"add zero", func(a *model.UserAccount) error {
			_, err := s.AddLiquidity(a, 0)
			return err
		}},
		{"remove zero", func(a *model.UserAccount) error {
			_, err := s.RemoveLiquidity(a, 0)
			return err
		}},
		{"remove over shares", func(a *model.UserAccount) error {
			_, err := s.RemoveLiquidity(a, 1)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := snapshot(s, alice)
			if err := tt.op(alice); err == nil {
				t.Fatal("expected an error")
			}
			requireUnchanged(t, before, s, alice)
		})
	}
}
