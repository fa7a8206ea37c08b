package middlewares

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/records_backend/lifecycle"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// RecordKey addresses one record of one entity kind.
type RecordKey struct {
	Kind string
	ID   string
}

// Loaders batch reference lookups made while serving one request.
type Loaders struct {
	optionLoader *dataloader.Loader[string, []schema.Option]
	recordLoader *dataloader.Loader[RecordKey, *store.Record]
}

// NewLoaders instantiates data loaders for the middleware
func NewLoaders(st store.Store, source lifecycle.OptionSource) *Loaders {
	optionReader := &optionReader{source: source}
	recordReader := &recordReader{store: st}
	return &Loaders{
		optionLoader: dataloader.NewBatchedLoader(optionReader.getOptions, dataloader.WithWait[string, []schema.Option](time.Millisecond)),
		recordLoader: dataloader.NewBatchedLoader(recordReader.getRecords, dataloader.WithWait[RecordKey, *store.Record](time.Millisecond)),
	}
}

func LoaderMiddleware(st store.Store, source lifecycle.OptionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(st, source)
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func For(ctx context.Context) (*Loaders, bool) {
	loaders, ok := ctx.Value(loadersKey).(*Loaders)
	return loaders, ok
}

type optionReader struct {
	source lifecycle.OptionSource
}

func (r *optionReader) getOptions(ctx context.Context, refs []string) []*dataloader.Result[[]schema.Option] {
	results := make([]*dataloader.Result[[]schema.Option], 0, len(refs))
	for _, ref := range refs {
		opts, err := r.source(ctx, ref)
		results = append(results, &dataloader.Result[[]schema.Option]{Data: opts, Error: err})
	}
	return results
}

// RequestOptions returns an OptionSource that goes through the request's loader,
// so each referenced entity is listed at most once per request. Outside a
// request it calls fallback directly.
func RequestOptions(fallback lifecycle.OptionSource) lifecycle.OptionSource {
	return func(ctx context.Context, ref string) ([]schema.Option, error) {
		loaders, ok := For(ctx)
		if !ok {
			return fallback(ctx, ref)
		}
		return loaders.optionLoader.Load(ctx, ref)()
	}
}

type recordReader struct {
	store store.Store
}

// getRecords groups keys by kind and loads each group with one query. Missing
// records and records of other tenants load as nil.
func (r *recordReader) getRecords(ctx context.Context, keys []RecordKey) []*dataloader.Result[*store.Record] {
	ids := map[string][]string{}
	for _, k := range keys {
		ids[k.Kind] = append(ids[k.Kind], k.ID)
	}

	found := make(map[RecordKey]*store.Record, len(keys))
	failed := map[string]error{}
	for kind, list := range ids {
		e, ok := schema.Lookup(kind)
		if !ok {
			failed[kind] = fmt.Errorf("unknown entity %q", kind)
			continue
		}
		records, err := r.store.FindByIDs(ctx, e, list)
		if err != nil {
			failed[kind] = err
			continue
		}
		scope := lifecycle.TenantScope(ctx, e)
		for _, rec := range records {
			if scope != nil && rec.TenantID != scope[schema.ColumnTenantID] {
				continue
			}
			found[RecordKey{Kind: kind, ID: rec.ID}] = rec
		}
	}

	results := make([]*dataloader.Result[*store.Record], 0, len(keys))
	for _, k := range keys {
		if err := failed[k.Kind]; err != nil {
			results = append(results, &dataloader.Result[*store.Record]{Error: err})
			continue
		}
		results = append(results, &dataloader.Result[*store.Record]{Data: found[k]})
	}
	return results
}

// GetRecords loads referenced records through the request's loader. Entries
// for missing records are nil.
func GetRecords(ctx context.Context, keys []RecordKey) ([]*store.Record, []error) {
	loaders, ok := For(ctx)
	if !ok {
		return make([]*store.Record, len(keys)), nil
	}
	return loaders.recordLoader.LoadMany(ctx, keys)()
}

// ReferenceLabels resolves the labels of every reference held by rec, keyed
// by field name and then by referenced id.
func ReferenceLabels(ctx context.Context, e *schema.Entity, rec *store.Record) map[string]map[string]string {
	var keys []RecordKey
	var fields []string
	for _, f := range e.Fields {
		if f.Ref == "" {
			continue
		}
		for _, id := range referenceIDs(rec.Values[f.Name]) {
			keys = append(keys, RecordKey{Kind: f.Ref, ID: id})
			fields = append(fields, f.Name)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	records, errs := GetRecords(ctx, keys)
	out := map[string]map[string]string{}
	for i, k := range keys {
		if i < len(errs) && errs[i] != nil {
			continue
		}
		if i >= len(records) || records[i] == nil {
			continue
		}
		ref, ok := schema.Lookup(k.Kind)
		if !ok {
			continue
		}
		if out[fields[i]] == nil {
			out[fields[i]] = map[string]string{}
		}
		out[fields[i]][k.ID] = lifecycle.RecordLabel(ref, records[i])
	}
	return out
}

func referenceIDs(v any) []string {
	switch x := v.(type) {
	case string:
		if x != "" {
			return []string{x}
		}
	case []string:
		return x
	}
	return nil
}
