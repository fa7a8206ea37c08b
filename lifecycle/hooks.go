package lifecycle

import (
	"context"

	"github.com/mmdatafocus/records_backend/store"
)

// Hooks are the extension points of a controller. Before* hooks abort the
// operation by returning an error; a *utils.ValidationError is reported to
// the caller as such. After* hooks run once the change is persisted, so their
// errors are logged and returned as warnings.
type Hooks interface {
	// BeforeInsert may rewrite the normalized values.
	BeforeInsert(ctx context.Context, values map[string]any) error
	AfterInsert(ctx context.Context, rec *store.Record) error
	// BeforeUpdate sees the stored record and the raw payload before normalization.
	BeforeUpdate(ctx context.Context, current *store.Record, payload map[string]any) error
	AfterUpdate(ctx context.Context, old, rec *store.Record) error
	BeforeDelete(ctx context.Context, rec *store.Record) error
	AfterDelete(ctx context.Context, rec *store.Record) error
	BeforeRestore(ctx context.Context, rec *store.Record) error
	AfterRestore(ctx context.Context, rec *store.Record) error
	BeforePermanentDelete(ctx context.Context, rec *store.Record) error
	AfterPermanentDelete(ctx context.Context, rec *store.Record) error
	BeforeCreateForm(ctx context.Context, form *Form) error
	BeforeEditForm(ctx context.Context, form *Form) error
	AfterQuery(ctx context.Context, page *ListResult) error
}

// NoopHooks implements every hook as a no-op; embed it and override what you need.
type NoopHooks struct{}

func (NoopHooks) BeforeInsert(context.Context, map[string]any) error { return nil }
func (NoopHooks) AfterInsert(context.Context, *store.Record) error { return nil }
func (NoopHooks) BeforeUpdate(context.Context, *store.Record, map[string]any) error { return nil }
func (NoopHooks) AfterUpdate(context.Context, *store.Record, *store.Record) error { return nil }
func (NoopHooks) BeforeDelete(context.Context, *store.Record) error { return nil }
func (NoopHooks) AfterDelete(context.Context, *store.Record) error { return nil }
func (NoopHooks) BeforeRestore(context.Context, *store.Record) error { return nil }
func (NoopHooks) AfterRestore(context.Context, *store.Record) error { return nil }
func (NoopHooks) BeforePermanentDelete(context.Context, *store.Record) error { return nil }
func (NoopHooks) AfterPermanentDelete(context.Context, *store.Record) error { return nil }
func (NoopHooks) BeforeCreateForm(context.Context, *Form) error { return nil }
func (NoopHooks) BeforeEditForm(context.Context, *Form) error { return nil }
func (NoopHooks) AfterQuery(context.Context, *ListResult) error { return nil }

var _ Hooks = NoopHooks{}
