package persistence

import (
	"context"
	"errors"

	"LaunchLedger/internal/state"
)

var (
	// ErrNotFound is returned when a launch or position does not exist.
	ErrNotFound = errors.New("persistence: not found")

	// ErrConflict is returned when a commit loses a race on an idempotency key.
	ErrConflict = errors.New("persistence: conflict")
)

// Tx is the view of one launch inside an atomic unit of work.
// Records returned by Get methods are copies; changes take effect through Upsert.
type Tx interface {
	GetLaunch(ctx context.Context, address string) (*state.Launch, error)
	UpsertLaunch(ctx context.Context, launch *state.Launch) error
	GetPosition(ctx context.Context, launch, user string) (*state.Position, error)
	UpsertPosition(ctx context.Context, position *state.Position) error
	ListActivePositions(ctx context.Context, launch string) ([]*state.Position, error)
	HasProcessedSignature(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, key, launch string, slot uint64) error
	AppendTransactionRecord(ctx context.Context, rec *state.TransactionRecord) error
}

// Reader serves snapshot reads outside any transaction. Reads may trail
// in-flight writes.
type Reader interface {
	GetLaunch(ctx context.Context, address string) (*state.Launch, error)
	GetPosition(ctx context.Context, launch, user string) (*state.Position, error)
	ListActivePositions(ctx context.Context, launch string) ([]*state.Position, error)
	HasProcessedSignature(ctx context.Context, key string) (bool, error)
	ListOpenLaunches(ctx context.Context) ([]*state.Launch, error)
	ListTransactionRecords(ctx context.Context, launch string, limit int) ([]*state.TransactionRecord, error)
	RecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error)
}

// Store is the persistence contract the ingestor drives.
//
// WithinLaunch runs fn as one atomic unit scoped to launch: concurrent calls
// for the same launch are serialized, calls for different launches may run
// in parallel. If fn returns an error nothing it wrote is kept.
type Store interface {
	Reader
	WithinLaunch(ctx context.Context, launch string, fn func(tx Tx) error) error
	Close() error
}
