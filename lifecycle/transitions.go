package lifecycle

import (
	"context"

	"github.com/mmdatafocus/records_backend/config"
	"github.com/mmdatafocus/records_backend/store"
	"github.com/mmdatafocus/records_backend/utils"
	"go.opentelemetry.io/otel/attribute"
)

// Delete soft-deletes an active record, or purges it when the entity has no
// soft delete or is listed in HARD_DELETE_ENTITIES.
func (c *Controller) Delete(ctx context.Context, id string) (_ *DeleteResult, err error) {
	ctx, span := c.startSpan(ctx, "Delete", attribute.String("record.id", id))
	defer func() { endSpan(span, err) }()

	rec, err := c.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if err := c.hooks.BeforeDelete(ctx, rec); err != nil {
		return nil, utils.Internal(err)
	}

	if !c.entity.SoftDelete || config.HardDeleteFor(c.entity.Kind) {
		warnings, err := c.purge(ctx, rec)
		if err != nil {
			return nil, err
		}
		c.afterHook("AfterDelete", c.hooks.AfterDelete(ctx, rec), &warnings)
		c.publish(ctx, ActionPurged, rec, nil)
		return &DeleteResult{ID: rec.ID, Purged: true, Warnings: warnings}, nil
	}

	now := c.deps.Now().UTC()
	userID, _ := utils.GetUserIdFromContext(ctx)
	if err := c.deps.Store.SoftDelete(ctx, c.entity, rec.ID, userID, now); err != nil {
		return nil, utils.Internal(err)
	}
	deleted := rec.Clone()
	deleted.DeletedAt = &now
	deleted.UpdatedAt = now

	var warnings Warnings
	c.afterHook("AfterDelete", c.hooks.AfterDelete(ctx, deleted), &warnings)
	c.publish(ctx, ActionDeleted, rec, deleted)
	return &DeleteResult{ID: rec.ID, Warnings: warnings}, nil
}

// Restore reactivates a soft-deleted record. Active and missing records are NotFound.
func (c *Controller) Restore(ctx context.Context, id string) (_ *Result, err error) {
	ctx, span := c.startSpan(ctx, "Restore", attribute.String("record.id", id))
	defer func() { endSpan(span, err) }()

	if !c.entity.SoftDelete {
		return nil, utils.ErrInvalidOperation
	}
	rec, err := c.loadDeleted(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.hooks.BeforeRestore(ctx, rec); err != nil {
		return nil, utils.Internal(err)
	}

	now := c.deps.Now().UTC()
	userID, _ := utils.GetUserIdFromContext(ctx)
	if err := c.deps.Store.Restore(ctx, c.entity, rec.ID, userID, now); err != nil {
		return nil, utils.Internal(err)
	}
	restored := rec.Clone()
	restored.DeletedAt = nil
	restored.UpdatedAt = now

	var warnings Warnings
	c.afterHook("AfterRestore", c.hooks.AfterRestore(ctx, restored), &warnings)
	c.publish(ctx, ActionRestored, rec, restored)
	return &Result{Record: c.redact(restored), Warnings: warnings}, nil
}

// PermanentDelete purges a soft-deleted record and all of its attachments.
func (c *Controller) PermanentDelete(ctx context.Context, id string) (_ *DeleteResult, err error) {
	ctx, span := c.startSpan(ctx, "PermanentDelete", attribute.String("record.id", id))
	defer func() { endSpan(span, err) }()

	if !c.entity.SoftDelete {
		return nil, utils.ErrInvalidOperation
	}
	rec, err := c.loadDeleted(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.hooks.BeforePermanentDelete(ctx, rec); err != nil {
		return nil, utils.Internal(err)
	}
	warnings, err := c.purge(ctx, rec)
	if err != nil {
		return nil, err
	}
	c.afterHook("AfterPermanentDelete", c.hooks.AfterPermanentDelete(ctx, rec), &warnings)
	c.publish(ctx, ActionPurged, rec, nil)
	return &DeleteResult{ID: rec.ID, Purged: true, Warnings: warnings}, nil
}

// loadDeleted loads a record that must currently be soft-deleted.
func (c *Controller) loadDeleted(ctx context.Context, id string) (*store.Record, error) {
	rec, err := c.load(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if rec.Active() {
		return nil, &utils.NotFoundError{Entity: c.entity.Kind, ID: id}
	}
	return rec, nil
}

// purge removes the row and then every blob under the record's prefix. Blob
// failures leave orphans for the sweeper and are reported as warnings.
func (c *Controller) purge(ctx context.Context, rec *store.Record) (Warnings, error) {
	if err := c.deps.Store.Delete(ctx, c.entity, rec.ID); err != nil {
		return nil, utils.Internal(err)
	}
	var warnings Warnings
	if c.deps.Attachments != nil {
		if err := c.deps.Attachments.Purge(ctx, c.entity.Kind, rec.ID); err != nil {
			config.LogError(config.GetLogger(), c.entity.Kind, "purge", "attachments", rec.ID, err)
			warnings = append(warnings, &utils.UploadError{Field: "*", File: c.deps.Attachments.Dir(c.entity.Kind, rec.ID), Err: err})
		}
	}
	return warnings, nil
}
