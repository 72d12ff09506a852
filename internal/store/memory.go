package store

import (
	"context"
	"sync"
	"time"

	"github.com/solstake/stake-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*model.UserAccount
	pool     *model.PoolState
	journal  []model.OperationRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*model.UserAccount),
	}
}

func (s *MemoryStore) GetOrCreateAccount(_ context.Context, participantID string) (*model.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[participantID]; ok {
		copy := *a
		return &copy, nil
	}
	a := &model.UserAccount{
		ParticipantID: participantID,
		CreatedAt:     time.Now().UTC(),
	}
	s.accounts[participantID] = a
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, participantID string) (*model.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[participantID]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) SaveAccount(_ context.Context, acct *model.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *acct
	s.accounts[acct.ParticipantID] = &copy
	return nil
}

func (s *MemoryStore) GetPoolState(_ context.Context) (*model.PoolState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pool == nil {
		return nil, ErrNotFound
	}
	copy := *s.pool
	return &copy, nil
}

func (s *MemoryStore) SavePoolState(_ context.Context, state *model.PoolState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *state
	s.pool = &copy
	return nil
}

func (s *MemoryStore) InsertOperation(_ context.Context, rec *model.OperationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.journal = append(s.journal, *rec)
	return nil
}

func (s *MemoryStore) GetOperationsByParticipant(_ context.Context, participantID string) ([]model.OperationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.OperationRecord
	for _, r := range s.journal {
		if r.ParticipantID == participantID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListOperations(_ context.Context) ([]model.OperationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.OperationRecord, len(s.journal))
	copy(result, s.journal)
	return result, nil
}
