// Package store persists indexer records.
package store

import (
	"context"
	"errors"

	"github.com/indexerhq/controlplane/internal/domain"
)

// Sentinel errors returned by Store implementations, following the
// errors.New / errors.Is style used for store-level conditions.
var (
	// ErrNotFound is returned when no record matches the given id/table name.
	ErrNotFound = errors.New("indexer: record not found")
	// ErrAlreadyExists is returned on a unique violation (table_name).
	ErrAlreadyExists = errors.New("indexer: record already exists")
	// ErrConflict is returned when an update-with-precondition affects zero
	// rows: the caller's expected current status no longer matches — a lost
	// race.
	ErrConflict = errors.New("indexer: status precondition failed")
)

// ListFilter narrows List to indexers with a given status. A nil Status
// means "no filter".
type ListFilter struct {
	Status *domain.Status
}

// Store is the Indexer Store's contract.
//
// Every mutation is a single atomic write. UpdateStatusAndPID is the ONLY
// method that may set both status and pid in the same statement; this
// preserves the invariant linking status ∈ {Running, FailedStopping} to a
// non-null process id.
type Store interface {
	Close() error
	Ping(ctx context.Context) error

	Insert(ctx context.Context, indexer *domain.Indexer) error
	Get(ctx context.Context, id string) (*domain.Indexer, error)
	GetByTableName(ctx context.Context, tableName string) (*domain.Indexer, error)
	List(ctx context.Context, filter ListFilter) ([]*domain.Indexer, error)

	// UpdateStatus transitions id from one of fromStatuses to newStatus.
	// Returns ErrConflict if the record's current status isn't in
	// fromStatuses.
	UpdateStatus(ctx context.Context, id string, newStatus domain.Status, fromStatuses []domain.Status) error

	// UpdateStatusAndPID atomically sets both status and pid, subject to
	// the same precondition as UpdateStatus.
	UpdateStatusAndPID(ctx context.Context, id string, newStatus domain.Status, pid *int, fromStatuses []domain.Status) error

	Delete(ctx context.Context, id string) error
}
