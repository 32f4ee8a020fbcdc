// Package repo defines the persistence contract and its two backends:
// an in-memory store for tests and ephemeral runs, and a SQLite store
// for durable plans. Both provide snapshot isolation for a single
// write transaction via Update.
package repo

import (
	"context"

	"github.com/congresstwin/congresstwin/internal/domain"
)

// Store is the read/write surface shared by backends and transactions.
// Put methods upsert. Event and action Puts assign the id when it is
// zero and return the stored value.
type Store interface {
	ListPlans(ctx context.Context) ([]domain.Plan, error)
	GetSnapshot(ctx context.Context, planID string) (*domain.Snapshot, error)
	PutPlan(ctx context.Context, p domain.Plan) error
	DeletePlan(ctx context.Context, planID string) error

	PutBucket(ctx context.Context, b domain.Bucket) error
	DeleteBucket(ctx context.Context, planID, bucketID string) error

	PutTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, planID, taskID string) error

	PutSubtask(ctx context.Context, s domain.Subtask) error
	DeleteSubtask(ctx context.Context, planID, taskID, subtaskID string) error

	PutDependency(ctx context.Context, d domain.Dependency) error
	DeleteDependency(ctx context.Context, planID, predecessorID, successorID string) error

	ListSamples(ctx context.Context) ([]domain.HistoricalSample, error)
	AddSamples(ctx context.Context, samples []domain.HistoricalSample) error

	ListLocks(ctx context.Context) ([]domain.TaskLock, error)
	PutLock(ctx context.Context, l domain.TaskLock) error
	DeleteLock(ctx context.Context, planID, taskID string) error

	PutEvent(ctx context.Context, e domain.ExternalEvent) (domain.ExternalEvent, error)
	GetEvent(ctx context.Context, planID string, eventID int64) (domain.ExternalEvent, error)
	ListEvents(ctx context.Context, planID string) ([]domain.ExternalEvent, error)
	DeleteEvent(ctx context.Context, planID string, eventID int64) error

	PutAction(ctx context.Context, a domain.ProposedAction) (domain.ProposedAction, error)
	GetAction(ctx context.Context, planID string, actionID int64) (domain.ProposedAction, error)
	ListActions(ctx context.Context, planID string, eventID int64) ([]domain.ProposedAction, error)
	DeleteAction(ctx context.Context, planID string, actionID int64) error

	GetSyncState(ctx context.Context, planID string) (domain.SyncState, error)
	PutSyncState(ctx context.Context, s domain.SyncState) error
}

// DB is a backend: the read surface plus the transactional unit of
// work. Update runs fn against a transactional Store; if fn returns
// nil the writes commit atomically, otherwise nothing is visible to
// concurrent readers.
type DB interface {
	Store
	Update(ctx context.Context, fn func(tx Store) error) error
	Close() error
}
