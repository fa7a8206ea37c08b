package store

import (
	"context"
	"time"

	"github.com/mmdatafocus/records_backend/query"
	"github.com/mmdatafocus/records_backend/schema"
)

// Store persists records of schema-described entities. Lookups of missing
// records return *utils.NotFoundError; uniqueness violations return
// *utils.DuplicateKeyError.
type Store interface {
	Insert(ctx context.Context, e *schema.Entity, r *Record) error
	// Get loads one record; soft-deleted records only when includeDeleted.
	Get(ctx context.Context, e *schema.Entity, id string, includeDeleted bool) (*Record, error)
	// List returns one page of matches and the total match count.
	List(ctx context.Context, e *schema.Entity, q query.Query) ([]*Record, int64, error)
	// FindByIDs loads active records in no particular order, skipping missing ids.
	FindByIDs(ctx context.Context, e *schema.Entity, ids []string) ([]*Record, error)
	// Update rewrites values and the updater stamps of an existing record.
	Update(ctx context.Context, e *schema.Entity, r *Record) error
	// SoftDelete stamps deleted_at on an active record.
	SoftDelete(ctx context.Context, e *schema.Entity, id string, by string, at time.Time) error
	// Restore clears deleted_at on a soft-deleted record.
	Restore(ctx context.Context, e *schema.Entity, id string, by string, at time.Time) error
	// Delete removes the record permanently.
	Delete(ctx context.Context, e *schema.Entity, id string) error
	// Exists reports whether any record, deleted or not, has the id.
	Exists(ctx context.Context, e *schema.Entity, id string) (bool, error)
}
