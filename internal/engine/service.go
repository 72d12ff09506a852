// Package engine provides the HTTP handlers and execution discipline
// for the liquid-staking accounting core: deposits, liquid unstakes,
// liquidity adds/removals, and the read API over pool state and the
// operation journal.
//
// All balances are base-unit uint64 carried as JSON strings — never
// float64 for money.
package engine

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solstake/stake-engine/internal/calc"
	"github.com/solstake/stake-engine/internal/curve"
	"github.com/solstake/stake-engine/internal/limits"
	"github.com/solstake/stake-engine/internal/metrics"
	"github.com/solstake/stake-engine/internal/model"
	"github.com/solstake/stake-engine/internal/protocol"
	"github.com/solstake/stake-engine/internal/store"
)

// Service executes accounting operations. A single mutex serializes
// every state transition (single-instance); the protocol state machine
// itself never blocks. For horizontal scaling, replace with distributed
// locking or database-level optimistic concurrency.
type Service struct {
	state *protocol.State
	store store.Store
	mu    sync.Mutex
	wsHub *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new engine service around an initialized state.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(state *protocol.State, st store.Store, hub *WSHub) *Service {
	return &Service{
		state: state,
		store: st,
		wsHub: hub,
	}
}

// --- Request/Response types ---

// OperationRequest is the JSON body shared by the four participant
// operations. Amount is a base-unit integer carried as a string.
type OperationRequest struct {
	Participant string `json:"participant"`
	Signer      string `json:"signer"`
	Amount      uint64 `json:"amount,string"`
}

// OperationResponse wraps a committed operation's realized amounts with
// the journal entry ID and the resulting account balances.
type OperationResponse struct {
	OperationID string             `json:"operation_id"`
	Kind        string             `json:"kind"`
	Result      any                `json:"result"`
	Account     *model.UserAccount `json:"account"`
}

// RateRequest is the JSON body for the oracle rate advance.
type RateRequest struct {
	Value  uint64 `json:"value,string"`
	Supply uint64 `json:"supply,string"`
}

// SettleRequest is the JSON body for delayed-withdrawal settlement.
type SettleRequest struct {
	Amount uint64 `json:"amount,string"`
}

// --- Participant operations ---

// Deposit handles POST /api/v1/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, model.OpDeposit, func(acct *model.UserAccount, amount uint64) (any, *model.OperationRecord, error) {
		res, err := s.state.Deposit(acct, amount)
		if err != nil {
			return nil, nil, err
		}
		return res, &model.OperationRecord{
			Kind:   model.OpDeposit,
			Amount: amount,
			Minted: res.DerivativeMinted,
		}, nil
	})
}

// LiquidUnstake handles POST /api/v1/unstake
func (s *Service) LiquidUnstake(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, model.OpLiquidUnstake, func(acct *model.UserAccount, amount uint64) (any, *model.OperationRecord, error) {
		res, err := s.state.LiquidUnstake(acct, amount)
		if err != nil {
			return nil, nil, err
		}
		metrics.UnstakeFeeBps.Observe(float64(res.FeeBps))
		return res, &model.OperationRecord{
			Kind:      model.OpLiquidUnstake,
			Amount:    amount,
			Burned:    res.DerivativeBurned,
			PaidOut:   res.NativePaid,
			FeeBps:    res.FeeBps,
			FeeAmount: res.FeeAmount,
		}, nil
	})
}

// AddLiquidity handles POST /api/v1/liquidity/add
func (s *Service) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, model.OpAddLiquidity, func(acct *model.UserAccount, amount uint64) (any, *model.OperationRecord, error) {
		res, err := s.state.AddLiquidity(acct, amount)
		if err != nil {
			return nil, nil, err
		}
		return res, &model.OperationRecord{
			Kind:   model.OpAddLiquidity,
			Amount: amount,
			Minted: res.SharesMinted,
		}, nil
	})
}

// RemoveLiquidity handles POST /api/v1/liquidity/remove
func (s *Service) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, model.OpRemoveLiquidity, func(acct *model.UserAccount, amount uint64) (any, *model.OperationRecord, error) {
		res, err := s.state.RemoveLiquidity(acct, amount)
		if err != nil {
			return nil, nil, err
		}
		return res, &model.OperationRecord{
			Kind:    model.OpRemoveLiquidity,
			Amount:  amount,
			Burned:  res.SharesBurned,
			PaidOut: res.NativePaid,
		}, nil
	})
}

// runOperation is the shared execution path: decode, authorize, load
// the account, apply the transition under the lock, persist, record
// metrics, broadcast, respond.
func (s *Service) runOperation(w http.ResponseWriter, r *http.Request, kind string,
	apply func(acct *model.UserAccount, amount uint64) (any, *model.OperationRecord, error)) {

	var req OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Participant == "" {
		writeError(w, "participant is required", http.StatusBadRequest)
		return
	}
	if req.Signer != req.Participant {
		metrics.OperationFailures.WithLabelValues(kind, "unauthorized").Inc()
		writeError(w, protocol.ErrUnauthorized.Error(), http.StatusUnauthorized)
		return
	}

	ctx := r.Context()

	// Serialize state transitions.
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.store.GetOrCreateAccount(ctx, req.Participant)
	if err != nil {
		writeError(w, "failed to load account", http.StatusInternalServerError)
		return
	}

	result, rec, err := apply(acct, req.Amount)
	if err != nil {
		metrics.OperationFailures.WithLabelValues(kind, failureReason(err)).Inc()
		writeError(w, err.Error(), errStatus(err))
		return
	}

	rec.ID = uuid.New().String()
	rec.ParticipantID = req.Participant
	rec.Timestamp = time.Now().UTC()

	// The in-memory state is authoritative; persistence failures are
	// surfaced in logs, not rolled back.
	if err := s.store.SaveAccount(ctx, acct); err != nil {
		slog.Error("persist account failed", "participant", req.Participant, "err", err)
	}
	if err := s.store.SavePoolState(ctx, &s.state.Pool); err != nil {
		slog.Error("persist pool state failed", "err", err)
	}
	if err := s.store.InsertOperation(ctx, rec); err != nil {
		slog.Error("persist operation failed", "id", rec.ID, "err", err)
	}

	metrics.OperationsTotal.WithLabelValues(kind).Inc()
	s.updateGauges()

	slog.Info("operation committed",
		"id", rec.ID,
		"kind", kind,
		"participant", req.Participant,
		"amount", req.Amount,
		"reserve", s.state.Pool.AvailableReserveBalance,
		"sol_leg", s.state.Pool.LiqPool.SolLegBalance,
	)

	s.broadcast(kind, req.Participant, rec.FeeBps)

	writeJSON(w, http.StatusOK, OperationResponse{
		OperationID: rec.ID,
		Kind:        kind,
		Result:      result,
		Account:     acct,
	})
}

// --- Admin operations ---

// AdvanceRate handles POST /api/v1/admin/rate
// Applied by the reward oracle; decreases are rejected.
func (s *Service) AdvanceRate(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	next, err := calc.NewRate(req.Value, req.Supply)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.state.AdvanceRate(next); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := s.store.SavePoolState(r.Context(), &s.state.Pool); err != nil {
		slog.Error("persist pool state failed", "err", err)
	}

	slog.Info("exchange rate advanced", "value", req.Value, "supply", req.Supply)
	s.broadcast("rate_advanced", "", 0)

	writeJSON(w, http.StatusOK, map[string]calc.Rate{"rate": s.state.Pool.Rate})
}

// SettleWithdrawal handles POST /api/v1/admin/settle
// Debits the reserve when the execution environment settles a delayed
// withdrawal.
func (s *Service) SettleWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.state.SettleDelayedWithdrawal(req.Amount); err != nil {
		metrics.OperationFailures.WithLabelValues(model.OpSettleWithdrawal, failureReason(err)).Inc()
		writeError(w, err.Error(), errStatus(err))
		return
	}

	rec := &model.OperationRecord{
		ID:        uuid.New().String(),
		Kind:      model.OpSettleWithdrawal,
		Amount:    req.Amount,
		PaidOut:   req.Amount,
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.SavePoolState(r.Context(), &s.state.Pool); err != nil {
		slog.Error("persist pool state failed", "err", err)
	}
	if err := s.store.InsertOperation(r.Context(), rec); err != nil {
		slog.Error("persist operation failed", "id", rec.ID, "err", err)
	}

	metrics.OperationsTotal.WithLabelValues(model.OpSettleWithdrawal).Inc()
	s.updateGauges()

	writeJSON(w, http.StatusOK, map[string]string{"operation_id": rec.ID})
}

// --- Read API ---

// GetPool handles GET /api/v1/pool
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	stats := poolStats(&s.state.Pool)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, stats)
}

// GetAccount handles GET /api/v1/accounts/{participantID}
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participantID")

	acct, err := s.store.GetAccount(r.Context(), participantID)
	if err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, acct)
}

// GetAccountHistory handles GET /api/v1/accounts/{participantID}/history
func (s *Service) GetAccountHistory(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participantID")

	records, err := s.store.GetOperationsByParticipant(r.Context(), participantID)
	if err != nil {
		writeError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.OperationRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// ListOperations handles GET /api/v1/operations
func (s *Service) ListOperations(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListOperations(r.Context())
	if err != nil {
		writeError(w, "failed to list operations", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.OperationRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// --- Helpers ---

// poolStats derives the display-precision read model from raw state.
func poolStats(p *model.PoolState) model.PoolStats {
	stats := model.PoolStats{State: *p}

	stats.ExchangeRate = decimal.NewFromUint64(p.Rate.Value).
		DivRound(decimal.NewFromUint64(p.Rate.Supply), 9)
	if p.LiqPool.LPSupply > 0 {
		stats.SharePrice = decimal.NewFromUint64(p.LiqPool.SolLegBalance).
			DivRound(decimal.NewFromUint64(p.LiqPool.LPSupply), 9)
	}
	stats.MinFeePct = decimal.NewFromInt(int64(p.LiqPool.MinFee.BasisPoints)).Shift(-2)
	stats.MaxFeePct = decimal.NewFromInt(int64(p.LiqPool.MaxFee.BasisPoints)).Shift(-2)

	return stats
}

func (s *Service) updateGauges() {
	metrics.ReserveBalance.Set(float64(s.state.Pool.AvailableReserveBalance))
	metrics.LiquidityLegBalance.Set(float64(s.state.Pool.LiqPool.SolLegBalance))
	metrics.DerivativeSupply.Set(float64(s.state.Pool.DerivativeSupply))
}

func (s *Service) broadcast(kind, participant string, feeBps uint32) {
	if s.wsHub == nil {
		return
	}
	p := &s.state.Pool
	s.wsHub.Broadcast(WSMessage{
		Type:             kind,
		ParticipantID:    participant,
		ReserveBalance:   formatUint(p.AvailableReserveBalance),
		DerivativeSupply: formatUint(p.DerivativeSupply),
		SolLegBalance:    formatUint(p.LiqPool.SolLegBalance),
		LPSupply:         formatUint(p.LiqPool.LPSupply),
		ExchangeRate:     poolStats(p).ExchangeRate.String(),
		FeeBps:           feeBps,
	})
}

// errStatus maps operation errors onto HTTP status codes: caller
// mistakes are 400, authorization 401, state conflicts 409, arithmetic
// overflow 500.
func errStatus(err error) int {
	switch {
	case errors.Is(err, protocol.ErrInvalidAmount),
		errors.Is(err, curve.ErrInvalidFee),
		errors.Is(err, calc.ErrInvalidRate):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, protocol.ErrInsufficientBalance),
		errors.Is(err, protocol.ErrInsufficientShares),
		errors.Is(err, curve.ErrInsufficientLiquidity),
		errors.Is(err, limits.ErrStakingCapExceeded),
		errors.Is(err, limits.ErrLiquidityCapExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// failureReason buckets operation errors into low-cardinality metric
// labels.
func failureReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, protocol.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, protocol.ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, curve.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, limits.ErrStakingCapExceeded):
		return "staking_cap"
	case errors.Is(err, limits.ErrLiquidityCapExceeded):
		return "liquidity_cap"
	case errors.Is(err, calc.ErrArithmeticOverflow):
		return "overflow"
	default:
		return "internal"
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
