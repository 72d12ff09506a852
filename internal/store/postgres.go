package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solstake/stake-engine/internal/calc"
	"github.com/solstake/stake-engine/internal/curve"
	"github.com/solstake/stake-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. Balances are stored as NUMERIC and scanned as text so the full
// uint64 range round-trips exactly.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func parseAmount(field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("store: parse %s %q: %w", field, s, err)
	}
	return v, nil
}

func (s *PostgresStore) GetOrCreateAccount(ctx context.Context, participantID string) (*model.UserAccount, error) {
	acct, err := s.GetAccount(ctx, participantID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO accounts (participant_id, native_balance, derivative_balance, lp_share_balance, created_at)
		 VALUES ($1, 0, 0, 0, NOW())
		 ON CONFLICT (participant_id) DO NOTHING`,
		participantID,
	)
	if err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, participantID)
}

func (s *PostgresStore) GetAccount(ctx context.Context, participantID string) (*model.UserAccount, error) {
	var a model.UserAccount
	var native, derivative, lp string

	err := s.pool.QueryRow(ctx,
		`SELECT participant_id,
		        native_balance::TEXT, derivative_balance::TEXT, lp_share_balance::TEXT,
		        created_at
		 FROM accounts WHERE participant_id = $1`, participantID).
		Scan(&a.ParticipantID, &native, &derivative, &lp, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", participantID, err)
	}

	if a.NativeBalance, err = parseAmount("native_balance", native); err != nil {
		return nil, err
	}
	if a.DerivativeBalance, err = parseAmount("derivative_balance", derivative); err != nil {
		return nil, err
	}
	if a.LPShareBalance, err = parseAmount("lp_share_balance", lp); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) SaveAccount(ctx context.Context, acct *model.UserAccount) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (participant_id, native_balance, derivative_balance, lp_share_balance, created_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5)
		 ON CONFLICT (participant_id) DO UPDATE
		 SET native_balance = EXCLUDED.native_balance,
		     derivative_balance = EXCLUDED.derivative_balance,
		     lp_share_balance = EXCLUDED.lp_share_balance`,
		acct.ParticipantID,
		strconv.FormatUint(acct.NativeBalance, 10),
		strconv.FormatUint(acct.DerivativeBalance, 10),
		strconv.FormatUint(acct.LPShareBalance, 10),
		acct.CreatedAt,
	)
	return err
}

// The pool snapshot lives in a single-row table keyed by a constant id.

func (s *PostgresStore) GetPoolState(ctx context.Context) (*model.PoolState, error) {
	var reserve, supply, rateValue, rateSupply, leg, lpSupply, target string
	var minBp, maxBp uint32

	err := s.pool.QueryRow(ctx,
		`SELECT available_reserve_balance::TEXT, derivative_supply::TEXT,
		        rate_value::TEXT, rate_supply::TEXT,
		        sol_leg_balance::TEXT, lp_supply::TEXT, lp_liquidity_target::TEXT,
		        lp_min_fee_bps, lp_max_fee_bps
		 FROM pool_state WHERE id = 1`).
		Scan(&reserve, &supply, &rateValue, &rateSupply,
			&leg, &lpSupply, &target, &minBp, &maxBp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pool state: %w", err)
	}

	var p model.PoolState
	if p.AvailableReserveBalance, err = parseAmount("available_reserve_balance", reserve); err != nil {
		return nil, err
	}
	if p.DerivativeSupply, err = parseAmount("derivative_supply", supply); err != nil {
		return nil, err
	}
	rv, err := parseAmount("rate_value", rateValue)
	if err != nil {
		return nil, err
	}
	rs, err := parseAmount("rate_supply", rateSupply)
	if err != nil {
		return nil, err
	}
	if p.Rate, err = calc.NewRate(rv, rs); err != nil {
		return nil, err
	}
	if p.LiqPool.SolLegBalance, err = parseAmount("sol_leg_balance", leg); err != nil {
		return nil, err
	}
	if p.LiqPool.LPSupply, err = parseAmount("lp_supply", lpSupply); err != nil {
		return nil, err
	}
	if p.LiqPool.LiquidityTarget, err = parseAmount("lp_liquidity_target", target); err != nil {
		return nil, err
	}
	if p.LiqPool.MinFee, p.LiqPool.MaxFee, err = curve.NewFeePair(minBp, maxBp); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) SavePoolState(ctx context.Context, state *model.PoolState) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pool_state (id, available_reserve_balance, derivative_supply,
		                         rate_value, rate_supply,
		                         sol_leg_balance, lp_supply, lp_liquidity_target,
		                         lp_min_fee_bps, lp_max_fee_bps)
		 VALUES (1, $1::NUMERIC, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC,
		         $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		 SET available_reserve_balance = EXCLUDED.available_reserve_balance,
		     derivative_supply = EXCLUDED.derivative_supply,
		     rate_value = EXCLUDED.rate_value,
		     rate_supply = EXCLUDED.rate_supply,
		     sol_leg_balance = EXCLUDED.sol_leg_balance,
		     lp_supply = EXCLUDED.lp_supply,
		     lp_liquidity_target = EXCLUDED.lp_liquidity_target,
		     lp_min_fee_bps = EXCLUDED.lp_min_fee_bps,
		     lp_max_fee_bps = EXCLUDED.lp_max_fee_bps`,
		strconv.FormatUint(state.AvailableReserveBalance, 10),
		strconv.FormatUint(state.DerivativeSupply, 10),
		strconv.FormatUint(state.Rate.Value, 10),
		strconv.FormatUint(state.Rate.Supply, 10),
		strconv.FormatUint(state.LiqPool.SolLegBalance, 10),
		strconv.FormatUint(state.LiqPool.LPSupply, 10),
		strconv.FormatUint(state.LiqPool.LiquidityTarget, 10),
		state.LiqPool.MinFee.BasisPoints,
		state.LiqPool.MaxFee.BasisPoints,
	)
	return err
}

func (s *PostgresStore) InsertOperation(ctx context.Context, rec *model.OperationRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO operations (id, participant_id, kind, amount, minted, burned,
		                         paid_out, fee_bps, fee_amount, timestamp)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC,
		         $7::NUMERIC, $8, $9::NUMERIC, $10)`,
		rec.ID, rec.ParticipantID, rec.Kind,
		strconv.FormatUint(rec.Amount, 10),
		strconv.FormatUint(rec.Minted, 10),
		strconv.FormatUint(rec.Burned, 10),
		strconv.FormatUint(rec.PaidOut, 10),
		rec.FeeBps,
		strconv.FormatUint(rec.FeeAmount, 10),
		rec.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetOperationsByParticipant(ctx context.Context, participantID string) ([]model.OperationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, participant_id, kind, amount::TEXT, minted::TEXT, burned::TEXT,
		        paid_out::TEXT, fee_bps, fee_amount::TEXT, timestamp
		 FROM operations WHERE participant_id = $1 ORDER BY timestamp`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOperations(rows)
}

func (s *PostgresStore) ListOperations(ctx context.Context) ([]model.OperationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, participant_id, kind, amount::TEXT, minted::TEXT, burned::TEXT,
		        paid_out::TEXT, fee_bps, fee_amount::TEXT, timestamp
		 FROM operations ORDER BY timestamp`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOperations(rows)
}

func scanOperations(rows pgx.Rows) ([]model.OperationRecord, error) {
	var records []model.OperationRecord
	for rows.Next() {
		var r model.OperationRecord
		var amount, minted, burned, paidOut, feeAmount string

		if err := rows.Scan(&r.ID, &r.ParticipantID, &r.Kind,
			&amount, &minted, &burned, &paidOut, &r.FeeBps, &feeAmount,
			&r.Timestamp); err != nil {
			return nil, err
		}

		var err error
		if r.Amount, err = parseAmount("amount", amount); err != nil {
			return nil, err
		}
		if r.Minted, err = parseAmount("minted", minted); err != nil {
			return nil, err
		}
		if r.Burned, err = parseAmount("burned", burned); err != nil {
			return nil, err
		}
		if r.PaidOut, err = parseAmount("paid_out", paidOut); err != nil {
			return nil, err
		}
		if r.FeeAmount, err = parseAmount("fee_amount", feeAmount); err != nil {
			return nil, err
		}

		records = append(records, r)
	}
	return records, rows.Err()
}
