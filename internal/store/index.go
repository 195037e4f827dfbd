package store

import (
	"context"

	"github.com/starford/wellbeing/internal/models"
)

// Repository defines durable entry storage. Consumers should depend on this
// interface rather than the concrete *DB type.
//
// The repository does not enforce one entry per date on insert; that is the
// entry service's job. The schema still rejects a duplicate date with
// apperr.ErrConflict as a last line of defence.
type Repository interface {
	All(ctx context.Context) ([]models.Entry, error)
	GetByID(ctx context.Context, id int64) (*models.Entry, error)
	GetByDate(ctx context.Context, date string) (*models.Entry, error)
	ListByPhase(ctx context.Context, phase models.Phase) ([]models.Entry, error)
	ListByDateRange(ctx context.Context, start, end string) ([]models.Entry, error)
	Insert(ctx context.Context, e models.Entry) (int64, error)
	Update(ctx context.Context, id int64, e models.Entry) error
	BulkUpsert(ctx context.Context, entries []models.Entry) error
	DeleteByID(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int, error)
}

// Verify *DB satisfies Repository at compile time.
var _ Repository = (*DB)(nil)
