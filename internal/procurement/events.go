package procurement

import (
	"context"
	"strconv"
	"time"
)

// EventType names a lifecycle notification.
type EventType string

const (
	EventRequisitionSubmitted EventType = "requisition.submitted"
	EventRequisitionApproved  EventType = "requisition.approved"
	EventRequisitionRejected  EventType = "requisition.rejected"
	EventRequisitionCancelled EventType = "requisition.cancelled"
	EventRequisitionConverted EventType = "requisition.converted"
	EventQuotationSent        EventType = "quotation.sent"
	EventQuotationResponded   EventType = "quotation.responded"
	EventQuotationExpired     EventType = "quotation.expired"
	EventWinnerSelected       EventType = "quotation.winner_selected"
	EventQuotationConverted   EventType = "quotation.converted"
	EventQuotationCancelled   EventType = "quotation.cancelled"
	EventOrderSent            EventType = "order.sent"
	EventOrderConfirmed       EventType = "order.confirmed"
	EventOrderReceived        EventType = "order.received"
	EventOrderClosed          EventType = "order.closed"
	EventOrderCancelled       EventType = "order.cancelled"
	EventReceivingRecorded    EventType = "receiving.recorded"
	EventReceivingDivergence  EventType = "receiving.divergence"
)

// Event is published after the mutation it describes has committed.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	TenantID   string            `json:"tenant_id"`
	Document   string            `json:"document"`
	DocumentID string            `json:"document_id"`
	Number     string            `json:"number,omitempty"`
	Status     string            `json:"status"`
	Version    int64             `json:"version"`
	ActorID    string            `json:"actor_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// EventPublisher delivers lifecycle events to interested parties.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}

// newEvent derives the event id from document and version so redelivery of
// the same change deduplicates downstream.
func newEvent(typ EventType, doc storable, actorID string, at time.Time, attrs map[string]string) Event {
	m := doc.meta()
	return Event{
		ID:         deterministicID("event", string(typ), m.TenantID, m.ID, strconv.FormatInt(m.Version, 10)),
		Type:       typ,
		TenantID:   m.TenantID,
		Document:   string(doc.kind()),
		DocumentID: m.ID,
		Number:     m.Number,
		Status:     doc.status(),
		Version:    m.Version,
		ActorID:    actorID,
		OccurredAt: at,
		Attributes: attrs,
	}
}
