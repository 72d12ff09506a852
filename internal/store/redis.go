package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/solstake/stake-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SaveAccount(ctx context.Context, acct *model.UserAccount) error {
	if err := s.primary.SaveAccount(ctx, acct); err != nil {
		return err
	}
	s.cacheAccount(ctx, acct)
	return nil
}

func (s *CachedStore) SavePoolState(ctx context.Context, state *model.PoolState) error {
	if err := s.primary.SavePoolState(ctx, state); err != nil {
		return err
	}
	s.cachePoolState(ctx, state)
	return nil
}

func (s *CachedStore) InsertOperation(ctx context.Context, rec *model.OperationRecord) error {
	// Journal rows are append-only and read straight from the primary.
	return s.primary.InsertOperation(ctx, rec)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetOrCreateAccount(ctx context.Context, participantID string) (*model.UserAccount, error) {
	acct, err := s.GetAccount(ctx, participantID)
	if err == nil {
		return acct, nil
	}

	acct, err = s.primary.GetOrCreateAccount(ctx, participantID)
	if err != nil {
		return nil, err
	}
	s.cacheAccount(ctx, acct)
	return acct, nil
}

func (s *CachedStore) GetAccount(ctx context.Context, participantID string) (*model.UserAccount, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, accountKey(participantID)).Bytes()
	if err == nil {
		var a model.UserAccount
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	// Cache miss: read from primary.
	acct, err := s.primary.GetAccount(ctx, participantID)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, acct)
	return acct, nil
}

func (s *CachedStore) GetPoolState(ctx context.Context) (*model.PoolState, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, poolStateKey).Bytes()
	if err == nil {
		var p model.PoolState
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	// Cache miss.
	state, err := s.primary.GetPoolState(ctx)
	if err != nil {
		return nil, err
	}

	s.cachePoolState(ctx, state)
	return state, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetOperationsByParticipant(ctx context.Context, participantID string) ([]model.OperationRecord, error) {
	return s.primary.GetOperationsByParticipant(ctx, participantID)
}

func (s *CachedStore) ListOperations(ctx context.Context) ([]model.OperationRecord, error) {
	return s.primary.ListOperations(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheAccount(ctx context.Context, acct *model.UserAccount) {
	if data, err := json.Marshal(acct); err == nil {
		s.rdb.Set(ctx, accountKey(acct.ParticipantID), data, s.ttl)
	}
}

func (s *CachedStore) cachePoolState(ctx context.Context, state *model.PoolState) {
	if data, err := json.Marshal(state); err == nil {
		s.rdb.Set(ctx, poolStateKey, data, s.ttl)
	}
}

const poolStateKey = "pool:state"

func accountKey(id string) string { return fmt.Sprintf("account:%s", id) }
