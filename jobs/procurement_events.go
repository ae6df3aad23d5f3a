package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-procure/internal/jobs"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

const (
	// TaskProcurementEvent carries one committed procurement lifecycle event.
	TaskProcurementEvent = "procurement:event"

	eventModule = "procurement_event"
)

// NewProcurementEventTask builds the task for evt. The event id doubles as
// task id so a republished event is rejected by the queue.
func NewProcurementEventTask(evt procurement.Event) (*asynq.Task, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProcurementEvent, body, asynq.Queue(QueueDefault), asynq.TaskID(evt.ID), asynq.MaxRetry(10)), nil
}

// Deduper remembers processed event ids.
type Deduper interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Mailer enqueues outgoing mail.
type Mailer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// ProcurementEventJob turns lifecycle events into notifications. Each event
// is handled at most once per id even when asynq redelivers it.
type ProcurementEventJob struct {
	Dedupe     Deduper
	Mailer     Mailer
	Recipients map[procurement.EventType]string
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// DefaultRecipients routes the events that need a human.
func DefaultRecipients(approvers, buyers string) map[procurement.EventType]string {
	routes := make(map[procurement.EventType]string)
	if approvers != "" {
		routes[procurement.EventRequisitionSubmitted] = approvers
	}
	if buyers != "" {
		for _, typ := range []procurement.EventType{
			procurement.EventRequisitionApproved,
			procurement.EventRequisitionRejected,
			procurement.EventQuotationExpired,
			procurement.EventOrderReceived,
			procurement.EventReceivingDivergence,
		} {
			routes[typ] = buyers
		}
	}
	return routes
}

// Handle processes TaskProcurementEvent tasks.
func (j *ProcurementEventJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	var evt procurement.Event
	if err := json.Unmarshal(t.Payload(), &evt); err != nil || evt.ID == "" {
		return fmt.Errorf("procurement event: bad payload: %w", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskProcurementEvent)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("event_id", evt.ID), slog.String("type", string(evt.Type)), slog.String("document_id", evt.DocumentID))
	if j.Dedupe != nil {
		err := j.Dedupe.CheckAndInsert(ctx, evt.ID, eventModule)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			j.Metrics.AddDuplicate(TaskProcurementEvent)
			logger.Debug("procurement event already processed")
			return nil
		}
		if err != nil {
			return err
		}
	}

	if err := j.notify(ctx, evt); err != nil {
		logger.Error("notify procurement event", slog.Any("error", err))
		if j.Dedupe != nil {
			if derr := j.Dedupe.Delete(ctx, evt.ID); derr != nil {
				logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		return err
	}
	logger.Info("procurement event processed", slog.String("tenant_id", evt.TenantID), slog.String("status", evt.Status))
	return nil
}

func (j *ProcurementEventJob) notify(ctx context.Context, evt procurement.Event) error {
	to := j.Recipients[evt.Type]
	if to == "" || j.Mailer == nil {
		return nil
	}
	_, err := j.Mailer.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      to,
		Subject: fmt.Sprintf("[%s] %s %s", evt.TenantID, evt.Type, defaultLabel(evt.Number, evt.DocumentID)),
		Body:    eventBody(evt),
	})
	return err
}

func eventBody(evt procurement.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s is now %s.\n", evt.Document, defaultLabel(evt.Number, evt.DocumentID), evt.Status)
	if evt.ActorID != "" {
		fmt.Fprintf(&b, "Actor: %s\n", evt.ActorID)
	}
	for _, key := range slices.Sorted(maps.Keys(evt.Attributes)) {
		fmt.Fprintf(&b, "%s: %s\n", key, evt.Attributes[key])
	}
	return b.String()
}

func defaultLabel(number, id string) string {
	if number != "" {
		return number
	}
	return id
}

func (j *ProcurementEventJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
