// Package store defines the persistence interface for the stake engine.
// Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/solstake/stake-engine/internal/model"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. The engine owns the authoritative
// in-memory state; the store journals committed operations and keeps
// account balances and the pool snapshot durable across restarts.
type Store interface {
	// --- Accounts ---

	// GetOrCreateAccount returns the participant's account, creating an
	// empty one on first interaction.
	GetOrCreateAccount(ctx context.Context, participantID string) (*model.UserAccount, error)

	// GetAccount returns the participant's account or ErrNotFound.
	GetAccount(ctx context.Context, participantID string) (*model.UserAccount, error)

	// SaveAccount upserts an account's balances after a commit.
	SaveAccount(ctx context.Context, acct *model.UserAccount) error

	// --- Pool snapshot ---

	// GetPoolState returns the persisted singleton pool state, or
	// ErrNotFound before the first commit.
	GetPoolState(ctx context.Context) (*model.PoolState, error)

	// SavePoolState upserts the singleton pool state.
	SavePoolState(ctx context.Context, state *model.PoolState) error

	// --- Immutable operation journal ---

	// InsertOperation appends an immutable operation record.
	InsertOperation(ctx context.Context, rec *model.OperationRecord) error

	// GetOperationsByParticipant returns one participant's journal in
	// commit order.
	GetOperationsByParticipant(ctx context.Context, participantID string) ([]model.OperationRecord, error)

	// ListOperations returns the full journal in commit order.
	ListOperations(ctx context.Context) ([]model.OperationRecord, error)
}
