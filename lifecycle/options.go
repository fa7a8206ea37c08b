package lifecycle

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/records_backend/query"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
	"github.com/mmdatafocus/records_backend/utils"
)

// OptionSource returns the selectable options of a referenced entity kind.
type OptionSource func(ctx context.Context, ref string) ([]schema.Option, error)

var labelFields = []string{"name", "title", "label", "username", "email", "code"}

// OptionsFromStore lists up to limit active records of the referenced entity,
// scoped to the caller's tenant, labelled by their first name-like field.
func OptionsFromStore(st store.Store, limit int) OptionSource {
	return func(ctx context.Context, ref string) ([]schema.Option, error) {
		e, ok := schema.Lookup(ref)
		if !ok {
			return nil, fmt.Errorf("unknown referenced entity %q", ref)
		}
		b := query.Builder{
			SoftDelete:      e.SoftDelete,
			DefaultPageSize: limit,
			MaxPageSize:     limit,
			Scope:           TenantScope(ctx, e),
		}
		q := b.Build(query.Params{})
		q.Sort = query.Sort{Field: labelField(e)}
		if q.Sort.Field == schema.ColumnID {
			q.Sort = query.DefaultSort
		}
		records, _, err := st.List(ctx, e, q)
		if err != nil {
			return nil, err
		}
		opts := make([]schema.Option, 0, len(records))
		for _, r := range records {
			opts = append(opts, schema.Option{Value: r.ID, Label: RecordLabel(e, r)})
		}
		return opts, nil
	}
}

func labelField(e *schema.Entity) string {
	for _, name := range labelFields {
		if f, ok := e.Field(name); ok && f.Type == schema.Text {
			return name
		}
	}
	return schema.ColumnID
}

// RecordLabel is the display text of r in selects and reference columns.
func RecordLabel(e *schema.Entity, r *store.Record) string {
	if name := labelField(e); name != schema.ColumnID {
		if s, ok := r.Values[name].(string); ok && s != "" {
			return s
		}
	}
	return r.ID
}

// TenantScope pins tenant_id to the caller's tenant when the entity declares it.
func TenantScope(ctx context.Context, e *schema.Entity) map[string]any {
	if !e.Declares(schema.ColumnTenantID) {
		return nil
	}
	if skip, _ := utils.GetSkipTenantScopeFromContext(ctx); skip {
		return nil
	}
	tenant, ok := utils.GetTenantIdFromContext(ctx)
	if !ok {
		return nil
	}
	return map[string]any{schema.ColumnTenantID: tenant}
}
