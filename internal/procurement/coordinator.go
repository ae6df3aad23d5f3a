package procurement

import (
	"context"
	"errors"

	"github.com/odyssey-erp/odyssey-procure/internal/store"
)

// Coordinator moves documents between adjacent lifecycle stages. It holds no
// state and re-reads every document it touches.
type Coordinator struct {
	svc *Service
}

// nextStage lists the only legal conversions.
var nextStage = map[store.Kind]store.Kind{
	store.KindRequisition:   store.KindQuotation,
	store.KindQuotation:     store.KindPurchaseOrder,
	store.KindPurchaseOrder: store.KindReceiving,
}

// DocumentRef points at a stored document.
type DocumentRef struct {
	Kind store.Kind
	ID   string
}

// ConvertRequest asks for source to become a document of kind Target. Only
// the payload matching Target is read.
type ConvertRequest struct {
	TenantID  string
	Source    DocumentRef
	Target    store.Kind
	Quotation CreateQuotationInput
	Order     ConvertOrderInput
	Receiving ReceivingInput
}

// ConvertResult holds the produced target. Order is also set for receivings
// since recording one updates the order.
type ConvertResult struct {
	Quotation *Quotation       `json:"quotation,omitempty"`
	Order     *PurchaseOrder   `json:"order,omitempty"`
	Receiving *ReceivingRecord `json:"receiving,omitempty"`
}

// Convert dispatches to the conversion for the requested stage pair.
func (c *Coordinator) Convert(ctx context.Context, req ConvertRequest) (ConvertResult, error) {
	if next, ok := nextStage[req.Source.Kind]; !ok || next != req.Target {
		return ConvertResult{}, newError(ErrIllegalLifecycleJump, "cannot convert %s into %s", req.Source.Kind, req.Target)
	}
	switch req.Target {
	case store.KindQuotation:
		q, err := c.RequisitionToQuotation(ctx, req.TenantID, req.Source.ID, req.Quotation)
		return ConvertResult{Quotation: q}, err
	case store.KindPurchaseOrder:
		po, err := c.QuotationToOrder(ctx, req.TenantID, req.Source.ID, req.Order)
		return ConvertResult{Order: po}, err
	default:
		rec, po, err := c.OrderToReceiving(ctx, req.TenantID, req.Source.ID, req.Receiving)
		return ConvertResult{Receiving: rec, Order: po}, err
	}
}

// RequisitionToQuotation converts an approved requisition. The quotation id
// is derived from the requisition, so a retry after a failed source commit
// finds the quotation it already created instead of adding another.
func (c *Coordinator) RequisitionToQuotation(ctx context.Context, tenantID, requisitionID string, input CreateQuotationInput) (*Quotation, error) {
	s := c.svc
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	release, err := s.lock(ctx, tenantID, store.KindRequisition, requisitionID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		out       *Quotation
		src       *Requisition
		converted bool
	)
	err = s.backend.WithTx(ctx, func(ctx context.Context, tx store.Backend) error {
		var err error
		src, err = load[Requisition](ctx, tx, tenantID, requisitionID)
		if err != nil {
			return err
		}
		if src.Converted {
			out, err = load[Quotation](ctx, tx, tenantID, src.QuotationID)
			return err
		}
		expected := src.Version
		targetID := deterministicID("quotation", tenantID, src.ID)
		snapshot, changed, err := src.ConvertToQuotation(targetID, s.now())
		if err != nil {
			return err
		}
		target, err := quotationFromRequisition(targetID, src, snapshot, input, s.newID, s.now())
		if err != nil {
			return err
		}
		out, err = createOrReuse(ctx, tx, target, func(q *Quotation) bool { return q.RequisitionID == src.ID })
		if err != nil {
			return err
		}
		converted = changed
		return save(ctx, tx, src, expected)
	})
	err = txError(err, store.KindRequisition, requisitionID)
	s.observe(store.KindRequisition, ActionConvert, err)
	if err != nil {
		return nil, err
	}
	if converted {
		s.publish(ctx, newEvent(EventRequisitionConverted, src, actorID(ctx), s.now(), map[string]string{"quotation_id": out.ID}))
	}
	return out, nil
}

// QuotationToOrder converts the selected winner into a draft order. The
// order id is derived from quotation and winner.
func (c *Coordinator) QuotationToOrder(ctx context.Context, tenantID, quotationID string, input ConvertOrderInput) (*PurchaseOrder, error) {
	s := c.svc
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	release, err := s.lock(ctx, tenantID, store.KindQuotation, quotationID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		out       *PurchaseOrder
		src       *Quotation
		converted bool
	)
	err = s.backend.WithTx(ctx, func(ctx context.Context, tx store.Backend) error {
		var err error
		src, err = load[Quotation](ctx, tx, tenantID, quotationID)
		if err != nil {
			return err
		}
		if src.Converted {
			out, err = load[PurchaseOrder](ctx, tx, tenantID, src.OrderID)
			return err
		}
		expected := src.Version
		targetID := deterministicID("order", tenantID, src.ID, src.WinningSupplierID)
		lines, changed, err := src.ConvertToPurchaseOrder(targetID, s.now())
		if err != nil {
			return err
		}
		target, err := orderFromQuotation(targetID, src, lines, input, s.settings.DefaultTaxRate(tenantID), s.now())
		if err != nil {
			return err
		}
		out, err = createOrReuse(ctx, tx, target, func(po *PurchaseOrder) bool {
			return po.QuotationID == src.ID && po.SupplierID == src.WinningSupplierID
		})
		if err != nil {
			return err
		}
		converted = changed
		return save(ctx, tx, src, expected)
	})
	err = txError(err, store.KindQuotation, quotationID)
	s.observe(store.KindQuotation, ActionConvert, err)
	if err != nil {
		return nil, err
	}
	if converted {
		s.publish(ctx, newEvent(EventQuotationConverted, src, actorID(ctx), s.now(), map[string]string{
			"order_id":    out.ID,
			"supplier_id": src.WinningSupplierID,
		}))
	}
	return out, nil
}

// OrderToReceiving records a receiving and applies it to the order in one
// transaction. A caller supplied receiving id makes retries idempotent.
func (c *Coordinator) OrderToReceiving(ctx context.Context, tenantID, orderID string, input ReceivingInput) (*ReceivingRecord, *PurchaseOrder, error) {
	s := c.svc
	if err := requireTenant(tenantID); err != nil {
		return nil, nil, err
	}
	release, err := s.lock(ctx, tenantID, store.KindPurchaseOrder, orderID)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	var (
		rec     *ReceivingRecord
		po      *PurchaseOrder
		applied bool
	)
	err = s.backend.WithTx(ctx, func(ctx context.Context, tx store.Backend) error {
		var err error
		po, err = load[PurchaseOrder](ctx, tx, tenantID, orderID)
		if err != nil {
			return err
		}
		id := input.ID
		if id != "" {
			existing, err := load[ReceivingRecord](ctx, tx, tenantID, id)
			switch {
			case err == nil && existing.OrderID == po.ID:
				rec = existing
				return nil
			case err == nil:
				return newError(ErrValidation, "receiving %s belongs to order %s", id, existing.OrderID)
			case !errors.Is(err, ErrNotFound):
				return err
			}
		} else {
			id = s.newID()
		}
		expected := po.Version
		rec, err = newReceivingRecord(id, po, input, s.now())
		if err != nil {
			return err
		}
		if err := po.ApplyReceiving(rec.ID, rec.Lines, s.now()); err != nil {
			return err
		}
		if err := save(ctx, tx, rec, 0); err != nil {
			return err
		}
		applied = true
		return save(ctx, tx, po, expected)
	})
	err = txError(err, store.KindPurchaseOrder, orderID)
	s.observe(store.KindReceiving, ActionReceive, err)
	if err != nil {
		return nil, nil, err
	}
	if applied {
		actor := actorID(ctx)
		attrs := map[string]string{"order_id": po.ID, "status": string(rec.Status())}
		events := []Event{newEvent(EventReceivingRecorded, rec, actor, s.now(), attrs)}
		if rec.Status() == ReceivingDivergence {
			events = append(events, newEvent(EventReceivingDivergence, rec, actor, s.now(), attrs))
		}
		if po.Status == OrderReceived {
			events = append(events, newEvent(EventOrderReceived, po, actor, s.now(), nil))
		}
		s.publish(ctx, events...)
	}
	return rec, po, nil
}

// createOrReuse creates target, or returns the document already stored under
// its id when matches accepts it. The create runs in a nested unit so a
// failed insert leaves the surrounding transaction usable.
func createOrReuse[T any, P interface {
	*T
	storable
}](ctx context.Context, tx store.Backend, target P, matches func(P) bool) (P, error) {
	m := target.meta()
	err := tx.WithTx(ctx, func(ctx context.Context, inner store.Backend) error {
		return save(ctx, inner, target, 0)
	})
	if err == nil {
		return target, nil
	}
	if !errors.Is(err, ErrConcurrentModification) {
		return nil, err
	}
	existing, lerr := load[T, P](ctx, tx, m.TenantID, m.ID)
	switch {
	case errors.Is(lerr, ErrNotFound):
		return nil, newError(ErrValidation, "%s number %s already in use", target.kind(), m.Number)
	case lerr != nil:
		return nil, lerr
	case !matches(existing):
		return nil, err
	}
	return existing, nil
}
