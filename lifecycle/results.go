package lifecycle

import (
	"fmt"
	"strings"

	"github.com/mmdatafocus/records_backend/query"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
)

// Warnings are non-fatal problems of an operation that otherwise succeeded.
type Warnings []error

func (w Warnings) Messages() []string {
	out := make([]string, len(w))
	for i, err := range w {
		out[i] = err.Error()
	}
	return out
}

// DroppedValuesWarning reports identifiers discarded because they were malformed.
type DroppedValuesWarning struct {
	Field  string
	Values []string
}

func (w *DroppedValuesWarning) Error() string {
	return fmt.Sprintf("%s: dropped invalid identifiers %s", w.Field, strings.Join(w.Values, ", "))
}

// HookWarning wraps the error of an After* hook.
type HookWarning struct {
	Hook string
	Err  error
}

func (w *HookWarning) Error() string {
	return fmt.Sprintf("%s hook: %v", w.Hook, w.Err)
}

func (w *HookWarning) Unwrap() error { return w.Err }

type ListResult struct {
	Records    []*store.Record         `json:"records"`
	Fields     schema.FieldDescriptors `json:"fields"`
	Pagination query.Pagination        `json:"pagination"`
	Deleted    bool                    `json:"deleted"`
	Warnings   Warnings                `json:"-"`
}

// Form is what create and edit screens render. Record is nil for create.
type Form struct {
	Fields schema.FieldDescriptors `json:"fields"`
	Values map[string]any          `json:"values"`
	Record *store.Record           `json:"record,omitempty"`
}

type Result struct {
	Record   *store.Record `json:"record"`
	Warnings Warnings      `json:"-"`
}

type DeleteResult struct {
	ID string `json:"id"`
	// Purged is true when the record is gone rather than soft-deleted.
	Purged   bool     `json:"purged"`
	Warnings Warnings `json:"-"`
}

type UpdateOptions struct {
	// IncludeDeleted lets the update target a soft-deleted record.
	IncludeDeleted bool
}
