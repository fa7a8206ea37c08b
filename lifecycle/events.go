package lifecycle

import (
	"context"
	"time"

	"github.com/mmdatafocus/records_backend/config"
	"github.com/mmdatafocus/records_backend/store"
	"github.com/mmdatafocus/records_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	ActionCreated  = "record.created"
	ActionUpdated  = "record.updated"
	ActionDeleted  = "record.deleted"
	ActionRestored = "record.restored"
	ActionPurged   = "record.purged"
)

// Publisher delivers lifecycle events. Delivery failures never fail the operation.
type Publisher interface {
	Publish(ctx context.Context, ev config.RecordEvent) error
}

// PubSubPublisher sends events to the PUBSUB_TOPIC topic.
type PubSubPublisher struct{}

func (PubSubPublisher) Publish(ctx context.Context, ev config.RecordEvent) error {
	id, err := config.PublishRecordEvent(ctx, ev)
	if err != nil {
		return err
	}
	config.GetLogger().WithFields(logrus.Fields{
		"entity":     ev.Entity,
		"record_id":  ev.RecordId,
		"action":     ev.Action,
		"message_id": id,
	}).Debug("[event.published]")
	return nil
}

// LogPublisher only logs events; used when no topic is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev config.RecordEvent) error {
	config.GetLogger().WithFields(logrus.Fields{
		"entity":         ev.Entity,
		"record_id":      ev.RecordId,
		"action":         ev.Action,
		"tenant_id":      ev.TenantId,
		"correlation_id": ev.CorrelationId,
	}).Info("[event]")
	return nil
}

func NewPublisherFromEnv() Publisher {
	if config.EventTopic() != "" {
		return PubSubPublisher{}
	}
	return LogPublisher{}
}

func (c *Controller) publish(ctx context.Context, action string, old, rec *store.Record) {
	ev := config.RecordEvent{
		Entity:     c.entity.Kind,
		Action:     action,
		OccurredAt: c.deps.Now().UTC(),
	}
	if rec != nil {
		ev.RecordId = rec.ID
		ev.TenantId = rec.TenantID
		ev.NewObj = utils.RawJSON(c.redact(rec))
	}
	if old != nil {
		ev.RecordId = old.ID
		ev.OldObj = utils.RawJSON(c.redact(old))
	}
	ev.UserId, _ = utils.GetUserIdFromContext(ctx)
	ev.CorrelationId, _ = utils.GetCorrelationIdFromContext(ctx)

	// the request may finish before delivery
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := c.deps.Events.Publish(pubCtx, ev); err != nil {
		config.LogError(config.GetLogger(), c.entity.Kind, "publish", action, ev.RecordId, err)
	}
}
