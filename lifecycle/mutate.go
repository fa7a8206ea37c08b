package lifecycle

import (
	"context"
	"errors"

	"github.com/mmdatafocus/records_backend/attachments"
	"github.com/mmdatafocus/records_backend/config"
	"github.com/mmdatafocus/records_backend/normalize"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
	"github.com/mmdatafocus/records_backend/utils"
	"go.opentelemetry.io/otel/attribute"
)

// RemoveSuffix marks the payload key listing attachment paths to remove from a
// file field, e.g. images_remove[]=uploads/product/<id>/images_1_0.png.
const RemoveSuffix = "_remove"

// Insert validates payload, stores its uploads under a pre-allocated identity
// and persists the record once with the attachment paths already set.
func (c *Controller) Insert(ctx context.Context, payload map[string]any, files map[string][]attachments.Upload) (_ *Result, err error) {
	ctx, span := c.startSpan(ctx, "Insert")
	defer func() { endSpan(span, err) }()

	values, warnings, err := c.prepare(ctx, payload, files, nil)
	if err != nil {
		return nil, err
	}
	if err := c.hooks.BeforeInsert(ctx, values); err != nil {
		return nil, utils.Internal(err)
	}
	if err := c.hashPasswords(values, nil); err != nil {
		return nil, utils.Internal(err)
	}

	rec := &store.Record{ID: c.deps.NewID(), Values: values}
	c.stamp(ctx, rec, true)
	span.SetAttributes(attribute.String("record.id", rec.ID))

	var written []string
	if c.deps.Attachments != nil {
		ch := c.deps.Attachments.Attach(ctx, c.entity, rec.ID, files)
		for name, v := range ch.Values {
			rec.Values[name] = v
		}
		written = ch.Written
		warnings = append(warnings, ch.Warnings...)
	}

	if err := c.deps.Store.Insert(ctx, c.entity, rec); err != nil {
		if len(written) > 0 {
			c.deps.Attachments.Discard(ctx, written)
		}
		return nil, c.persistError(err, values)
	}

	c.afterHook("AfterInsert", c.hooks.AfterInsert(ctx, rec), &warnings)
	c.publish(ctx, ActionCreated, nil, rec)
	return &Result{Record: c.redact(rec), Warnings: warnings}, nil
}

// Update applies payload to an existing record. Fields absent from payload
// keep their value; attachment removals are applied before new uploads.
func (c *Controller) Update(ctx context.Context, id string, payload map[string]any, files map[string][]attachments.Upload, opts UpdateOptions) (_ *Result, err error) {
	ctx, span := c.startSpan(ctx, "Update", attribute.String("record.id", id))
	defer func() { endSpan(span, err) }()

	current, err := c.load(ctx, id, opts.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	if err := c.hooks.BeforeUpdate(ctx, current, payload); err != nil {
		return nil, utils.Internal(err)
	}
	values, warnings, err := c.prepare(ctx, payload, files, current)
	if err != nil {
		return nil, err
	}
	if err := c.hashPasswords(values, current); err != nil {
		return nil, utils.Internal(err)
	}

	rec := current.Clone()
	for name, v := range values {
		rec.Values[name] = v
	}
	c.stamp(ctx, rec, false)

	var ch attachments.Change
	if c.deps.Attachments != nil {
		ch = c.deps.Attachments.Reconcile(ctx, c.entity, current, c.removals(payload), files)
		for name, v := range ch.Values {
			rec.Values[name] = v
		}
		warnings = append(warnings, ch.Warnings...)
	}

	if err := c.deps.Store.Update(ctx, c.entity, rec); err != nil {
		if len(ch.Written) > 0 {
			c.deps.Attachments.Discard(ctx, ch.Written)
		}
		return nil, c.persistError(err, values)
	}
	if len(ch.Obsolete) > 0 {
		c.deps.Attachments.Discard(ctx, ch.Obsolete)
	}

	c.afterHook("AfterUpdate", c.hooks.AfterUpdate(ctx, current, rec), &warnings)
	c.publish(ctx, ActionUpdated, current, rec)
	return &Result{Record: c.redact(rec), Warnings: warnings}, nil
}

// prepare normalizes and validates payload. current is nil on insert.
func (c *Controller) prepare(ctx context.Context, payload map[string]any, files map[string][]attachments.Upload, current *store.Record) (map[string]any, Warnings, error) {
	creating := current == nil
	mode := normalize.ModeUpdate
	if creating {
		mode = normalize.ModeCreate
	}
	out := normalize.Payload(c.fields, payload, mode)

	var warnings Warnings
	for _, fd := range c.fields {
		if dropped := out.Dropped[fd.Name]; len(dropped) > 0 {
			config.LogWarning(config.GetLogger(), c.entity.Kind, "prepare", fd.Name, dropped, "dropped invalid identifiers")
			warnings = append(warnings, &DroppedValuesWarning{Field: fd.Name, Values: dropped})
		}
	}

	verr := utils.NewValidationError(redactValues(c.fields, out.Values))
	for name, msgs := range out.Errors {
		for _, msg := range msgs {
			verr.Add(name, msg)
		}
	}
	c.valid.check(c.fields, out.Values, creating, verr)
	if creating {
		for _, fd := range c.fields {
			if fd.UIType == schema.UIFile && fd.Required && len(files[fd.Name]) == 0 {
				verr.Add(fd.Name, "is required")
			}
		}
	}
	if verr.HasErrors() {
		return nil, nil, verr
	}
	return out.Values, warnings, nil
}

// hashPasswords bcrypts new passwords. An empty password on update keeps the
// stored hash.
func (c *Controller) hashPasswords(values map[string]any, current *store.Record) error {
	for _, fd := range c.fields {
		if fd.UIType != schema.UIPassword {
			continue
		}
		v, ok := values[fd.Name]
		if !ok {
			continue
		}
		s, _ := v.(string)
		if s == "" {
			if current != nil {
				delete(values, fd.Name)
			}
			continue
		}
		if utils.IsPasswordHash(s) {
			continue
		}
		hashed, err := utils.HashPassword(s)
		if err != nil {
			return err
		}
		values[fd.Name] = string(hashed)
	}
	return nil
}

// removals decodes <field>_remove entries in any multi-value encoding.
func (c *Controller) removals(payload map[string]any) map[string][]string {
	out := map[string][]string{}
	for _, f := range c.entity.FileFields() {
		fd := schema.FieldDescriptor{Name: f.Name + RemoveSuffix, Type: schema.TextArray, Multiple: true}
		if res := normalize.Multi(fd, payload); len(res.Values) > 0 {
			out[f.Name] = res.Values
		}
	}
	return out
}

func (c *Controller) persistError(err error, values map[string]any) error {
	var dup *utils.DuplicateKeyError
	if errors.As(err, &dup) {
		return dup
	}
	config.LogError(config.GetLogger(), c.entity.Kind, "persist", "store", redactValues(c.fields, values), err)
	return utils.Internal(err)
}

func redactValues(fds schema.FieldDescriptors, values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	for _, fd := range fds {
		if fd.UIType == schema.UIPassword {
			delete(out, fd.Name)
		}
	}
	return out
}
