package procurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-procure/internal/store"
)

// Meta holds identity and bookkeeping shared by every document.
type Meta struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Number    string    `json:"number,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *Meta) meta() *Meta { return m }

// storable is implemented by pointers to the four document types.
type storable interface {
	meta() *Meta
	kind() store.Kind
	status() string
	refID() string
}

func (*Requisition) kind() store.Kind {
	return store.KindRequisition
}

func (r *Requisition) status() string {
	return string(r.Status)
}

func (*Requisition) refID() string {
	return ""
}

func (*Quotation) kind() store.Kind {
	return store.KindQuotation
}

func (q *Quotation) status() string {
	return string(q.Status)
}

func (q *Quotation) refID() string {
	return q.RequisitionID
}

func (*PurchaseOrder) kind() store.Kind {
	return store.KindPurchaseOrder
}

func (o *PurchaseOrder) status() string {
	return string(o.Status)
}

func (o *PurchaseOrder) refID() string {
	return o.QuotationID
}

func (*ReceivingRecord) kind() store.Kind {
	return store.KindReceiving
}

func (r *ReceivingRecord) status() string {
	return string(r.Status())
}

func (r *ReceivingRecord) refID() string {
	return r.OrderID
}

// idSpace namespaces ids derived from other ids.
var idSpace = uuid.MustParse("0d3c6f0e-7b6a-4e2f-9c1d-5a8e2b4f6c31")

// deterministicID derives a stable id so repeated conversions of the same
// source land on the same target.
func deterministicID(parts ...string) string {
	var name []byte
	for i, p := range parts {
		if i > 0 {
			name = append(name, ':')
		}
		name = append(name, p...)
	}
	return uuid.NewSHA1(idSpace, name).String()
}

// storeError maps store failures onto procurement error kinds. Timeouts are
// retryable exactly like conflicts.
func storeError(err error, kind store.Kind, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return newError(ErrNotFound, "%s %s", kind, id)
	case store.IsRetryable(err):
		return fmt.Errorf("%w: %s %s: %w", ErrConcurrentModification, kind, id, err)
	default:
		return fmt.Errorf("procurement: %s %s: %w", kind, id, err)
	}
}

func decode[T any, P interface {
	*T
	storable
}](doc store.Document) (P, error) {
	p := P(new(T))
	if err := json.Unmarshal(doc.Body, p); err != nil {
		return nil, fmt.Errorf("procurement: decode %s %s: %w", doc.Kind, doc.ID, err)
	}
	m := p.meta()
	m.ID = doc.ID
	m.TenantID = doc.TenantID
	m.Version = doc.Version
	return p, nil
}

func load[T any, P interface {
	*T
	storable
}](ctx context.Context, b store.Backend, tenantID, id string) (P, error) {
	kind := P(nil).kind()
	doc, err := b.Collection(kind).Get(ctx, tenantID, id)
	if err != nil {
		return nil, storeError(err, kind, id)
	}
	return decode[T, P](doc)
}

func list[T any, P interface {
	*T
	storable
}](ctx context.Context, b store.Backend, tenantID string, filter store.Filter) ([]P, error) {
	kind := P(nil).kind()
	docs, err := b.Collection(kind).List(ctx, tenantID, filter)
	if err != nil {
		return nil, storeError(err, kind, "list")
	}
	out := make([]P, 0, len(docs))
	for _, doc := range docs {
		p, err := decode[T, P](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// save writes p guarded by expectedVersion (0 creates) and refreshes its
// version from the store.
func save(ctx context.Context, b store.Backend, p storable, expectedVersion int64) error {
	m := p.meta()
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("procurement: encode %s %s: %w", p.kind(), m.ID, err)
	}
	saved, err := b.Collection(p.kind()).Put(ctx, m.TenantID, store.Document{
		ID:     m.ID,
		Number: m.Number,
		Status: p.status(),
		RefID:  p.refID(),
		Body:   body,
	}, expectedVersion)
	if err != nil {
		return storeError(err, p.kind(), m.ID)
	}
	m.Version = saved.Version
	return nil
}
