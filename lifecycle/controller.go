package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mmdatafocus/records_backend/attachments"
	"github.com/mmdatafocus/records_backend/config"
	"github.com/mmdatafocus/records_backend/query"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
	"github.com/mmdatafocus/records_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("records-lifecycle")

// Config is the per-entity surface. Empty field lists are derived from the schema.
type Config struct {
	FieldNames []string
	Overrides  map[string]schema.Override
	Searchable []string
	Filterable []string
	Sortable   []string
	// DefaultPageSize and MaxPageSize fall back to DEFAULT_PAGE_SIZE / MAX_PAGE_SIZE.
	DefaultPageSize int
	MaxPageSize     int
	// Rules are go-playground/validator tags per field, e.g. "gte=0,lte=100".
	Rules map[string]string
	Hooks Hooks
	// ExportLimit caps the rows of one export; 10000 when zero.
	ExportLimit int
}

type Deps struct {
	Store       store.Store
	Attachments *attachments.Manager
	Events      Publisher
	Options     OptionSource
	Validate    *validator.Validate
	Now         func() time.Time
	NewID       func() string
}

// Controller runs the record lifecycle of one entity.
type Controller struct {
	entity  *schema.Entity
	cfg     Config
	deps    Deps
	hooks   Hooks
	fields  schema.FieldDescriptors
	valid   *validation
	builder query.Builder
}

func New(e *schema.Entity, cfg Config, deps Deps) (*Controller, error) {
	if e == nil {
		return nil, fmt.Errorf("lifecycle: entity is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("%s: store is required", e.Kind)
	}
	if deps.Events == nil {
		deps.Events = LogPublisher{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = NoopHooks{}
	}
	if cfg.ExportLimit <= 0 {
		cfg.ExportLimit = 10000
	}

	fields, err := schema.Resolve(e, cfg.FieldNames, cfg.Overrides)
	if err != nil {
		return nil, err
	}
	if len(e.FileFields()) > 0 && deps.Attachments == nil {
		return nil, fmt.Errorf("%s: file fields need an attachment manager", e.Kind)
	}
	valid, err := newValidation(e, fields, cfg.Rules, deps.Validate)
	if err != nil {
		return nil, err
	}

	c := &Controller{entity: e, cfg: cfg, deps: deps, hooks: hooks, fields: fields, valid: valid}
	if err := c.initBuilder(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) Entity() *schema.Entity {
	return c.entity
}

func (c *Controller) initBuilder() error {
	e := c.entity
	searchable := c.cfg.Searchable
	filterable := c.cfg.Filterable
	sortable := c.cfg.Sortable
	if searchable == nil {
		for _, fd := range c.fields {
			if fd.Type == schema.Text && (fd.UIType == schema.UIText || fd.UIType == schema.UITextarea || fd.UIType == schema.UIEmail) {
				searchable = append(searchable, fd.Name)
			}
		}
	}
	if filterable == nil {
		for _, fd := range c.fields {
			if fd.UIType != schema.UIFile && fd.UIType != schema.UIPassword {
				filterable = append(filterable, fd.Name)
			}
		}
	}
	if sortable == nil {
		for _, fd := range c.fields {
			if !fd.Multiple && fd.UIType != schema.UIPassword {
				sortable = append(sortable, fd.Name)
			}
		}
		sortable = append(sortable, schema.ColumnCreatedAt, schema.ColumnUpdatedAt)
	}

	for _, list := range [][]string{searchable, filterable, sortable} {
		for _, name := range list {
			if name == schema.ColumnID || name == schema.ColumnCreatedAt || name == schema.ColumnUpdatedAt {
				continue
			}
			if _, ok := e.Field(name); !ok {
				return fmt.Errorf("%s: list field %q is not declared", e.Kind, name)
			}
		}
	}
	var arrays []string
	for _, name := range filterable {
		if f, ok := e.Field(name); ok && f.Type.IsArray() {
			arrays = append(arrays, name)
		}
	}

	pageSize, maxPageSize := c.cfg.DefaultPageSize, c.cfg.MaxPageSize
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize()
	}
	if maxPageSize <= 0 {
		maxPageSize = config.MaxPageSize()
	}
	c.builder = query.Builder{
		Searchable:      searchable,
		Filterable:      filterable,
		Sortable:        sortable,
		ArrayFields:     arrays,
		SoftDelete:      c.entity.SoftDelete,
		DefaultPageSize: pageSize,
		MaxPageSize:     maxPageSize,
	}
	return nil
}

// descriptors returns the memoized descriptors with defaults produced afresh
// and reference options loaded for this request.
func (c *Controller) descriptors(ctx context.Context) (schema.FieldDescriptors, Warnings) {
	out := make(schema.FieldDescriptors, len(c.fields))
	copy(out, c.fields)
	var warnings Warnings
	for i := range out {
		fd := &out[i]
		if f, ok := c.entity.Field(fd.Name); ok && f.DefaultFunc != nil {
			fd.Default = f.DefaultFunc()
		}
		if fd.Ref == "" || fd.Options != nil || c.deps.Options == nil {
			continue
		}
		opts, err := c.deps.Options(ctx, fd.Ref)
		if err != nil {
			config.LogError(config.GetLogger(), c.entity.Kind, "descriptors", "options", fd.Ref, err)
			warnings = append(warnings, fmt.Errorf("%s: options unavailable: %w", fd.Name, err))
			continue
		}
		fd.Options = opts
	}
	return out, warnings
}

// scoped returns the builder for this caller, tenant filter included.
func (c *Controller) scoped(ctx context.Context) query.Builder {
	b := c.builder
	b.Scope = TenantScope(ctx, c.entity)
	return b
}

func (c *Controller) List(ctx context.Context, p query.Params) (_ *ListResult, err error) {
	ctx, span := c.startSpan(ctx, "List")
	defer func() { endSpan(span, err) }()

	if p.Deleted && !c.entity.SoftDelete {
		p.Deleted = false
	}
	q := c.scoped(ctx).Build(p)
	records, total, err := c.deps.Store.List(ctx, c.entity, q)
	if err != nil {
		return nil, utils.Internal(err)
	}
	fields, warnings := c.descriptors(ctx)
	for i, r := range records {
		records[i] = c.redact(r)
	}
	res := &ListResult{
		Records:    records,
		Fields:     fields,
		Pagination: query.NewPagination(q, total),
		Deleted:    p.Deleted,
		Warnings:   warnings,
	}
	if err := c.hooks.AfterQuery(ctx, res); err != nil {
		return nil, utils.Internal(err)
	}
	return res, nil
}

func (c *Controller) CreateForm(ctx context.Context) (_ *Form, err error) {
	ctx, span := c.startSpan(ctx, "CreateForm")
	defer func() { endSpan(span, err) }()

	fields, _ := c.descriptors(ctx)
	form := &Form{Fields: fields, Values: map[string]any{}}
	for _, fd := range fields {
		if fd.Default != nil {
			form.Values[fd.Name] = fd.Default
		}
	}
	if err := c.hooks.BeforeCreateForm(ctx, form); err != nil {
		return nil, utils.Internal(err)
	}
	return form, nil
}

func (c *Controller) EditForm(ctx context.Context, id string, opts UpdateOptions) (_ *Form, err error) {
	ctx, span := c.startSpan(ctx, "EditForm", attribute.String("record.id", id))
	defer func() { endSpan(span, err) }()

	rec, err := c.load(ctx, id, opts.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	rec = c.redact(rec)
	fields, _ := c.descriptors(ctx)
	form := &Form{Fields: fields, Values: rec.Values, Record: rec}
	if err := c.hooks.BeforeEditForm(ctx, form); err != nil {
		return nil, utils.Internal(err)
	}
	return form, nil
}

// Get loads one record visible to the caller.
func (c *Controller) Get(ctx context.Context, id string, includeDeleted bool) (*store.Record, error) {
	rec, err := c.load(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	return c.redact(rec), nil
}

// load validates id, fetches the record and hides records of other tenants.
func (c *Controller) load(ctx context.Context, id string, includeDeleted bool) (*store.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &utils.InvalidIdentityError{ID: id}
	}
	rec, err := c.deps.Store.Get(ctx, c.entity, id, includeDeleted)
	if err != nil {
		return nil, utils.Internal(err)
	}
	if scope := TenantScope(ctx, c.entity); scope != nil && rec.TenantID != scope[schema.ColumnTenantID] {
		return nil, &utils.NotFoundError{Entity: c.entity.Kind, ID: id}
	}
	return rec, nil
}

// redact returns a copy of rec without password hashes.
func (c *Controller) redact(rec *store.Record) *store.Record {
	out := rec.Clone()
	for _, fd := range c.fields {
		if fd.UIType == schema.UIPassword {
			delete(out.Values, fd.Name)
		}
	}
	return out
}

func (c *Controller) stamp(ctx context.Context, rec *store.Record, creating bool) {
	now := c.deps.Now().UTC()
	rec.UpdatedAt = now
	userID, hasUser := utils.GetUserIdFromContext(ctx)
	if creating {
		rec.CreatedAt = now
		if hasUser && c.entity.Declares(schema.ColumnCreatedBy) {
			rec.CreatedBy = userID
		}
	}
	if hasUser && c.entity.Declares(schema.ColumnUpdatedBy) {
		rec.UpdatedBy = userID
	}
	if tenant, ok := utils.GetTenantIdFromContext(ctx); ok && c.entity.Declares(schema.ColumnTenantID) && rec.TenantID == "" {
		rec.TenantID = tenant
	}
}

// afterHook turns an After* hook error into a warning.
func (c *Controller) afterHook(name string, err error, warnings *Warnings) {
	if err == nil {
		return
	}
	config.LogError(config.GetLogger(), c.entity.Kind, name, "hook", nil, err)
	*warnings = append(*warnings, &HookWarning{Hook: name, Err: err})
}

func (c *Controller) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("entity.kind", c.entity.Kind))
	return tracer.Start(ctx, c.entity.Kind+"."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
