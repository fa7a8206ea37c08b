package store

import (
	"time"

	"github.com/mmdatafocus/records_backend/schema"
)

type Record struct {
	ID        string         `json:"id"`
	Values    map[string]any `json:"values"`
	CreatedBy string         `json:"created_by,omitempty"`
	UpdatedBy string         `json:"updated_by,omitempty"`
	TenantID  string         `json:"tenant_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
}

// Active reports whether the record is visible by default; a record is either
// active or soft-deleted, never in between.
func (r *Record) Active() bool {
	return r.DeletedAt == nil
}

// Clone deep-copies the record, including array values.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Values = make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		c.Values[k] = cloneValue(v)
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []string:
		out := make([]string, len(x))
		copy(out, x)
		return out
	case []any:
		out := make([]any, len(x))
		copy(out, x)
		return out
	}
	return v
}

// Columns flattens the record into column -> value, audit columns included
// only when the entity declares them.
func (r *Record) Columns(e *schema.Entity) map[string]any {
	out := make(map[string]any, len(r.Values)+7)
	for k, v := range r.Values {
		out[k] = v
	}
	out[schema.ColumnID] = r.ID
	out[schema.ColumnCreatedAt] = r.CreatedAt
	out[schema.ColumnUpdatedAt] = r.UpdatedAt
	if e.Declares(schema.ColumnCreatedBy) {
		out[schema.ColumnCreatedBy] = nullable(r.CreatedBy)
	}
	if e.Declares(schema.ColumnUpdatedBy) {
		out[schema.ColumnUpdatedBy] = nullable(r.UpdatedBy)
	}
	if e.Declares(schema.ColumnTenantID) {
		out[schema.ColumnTenantID] = nullable(r.TenantID)
	}
	if e.SoftDelete {
		if r.DeletedAt != nil {
			out[schema.ColumnDeletedAt] = *r.DeletedAt
		} else {
			out[schema.ColumnDeletedAt] = nil
		}
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
