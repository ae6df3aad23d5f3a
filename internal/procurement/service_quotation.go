package procurement

import (
	"context"

	"github.com/odyssey-erp/odyssey-procure/internal/store"
)

// CreateQuotation persists a draft quotation. A linked requisition must be
// approved or converted, which lets one requisition fan out into several
// quotations.
func (s *Service) CreateQuotation(ctx context.Context, tenantID string, input CreateQuotationInput) (*Quotation, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if input.RequisitionID != "" {
		req, err := s.GetRequisition(ctx, tenantID, input.RequisitionID)
		if err != nil {
			return nil, err
		}
		if req.Status != RequisitionApproved && req.Status != RequisitionConverted {
			return nil, newError(ErrIllegalLifecycleJump, "requisition %s is %s, quotations need an approved requisition", req.ID, req.Status)
		}
	}
	q, err := newQuotation(s.newID(), tenantID, input, s.settings.Currency(tenantID), s.newID, s.now())
	if err != nil {
		s.observe(store.KindQuotation, ActionCreate, err)
		return nil, err
	}
	if err := s.create(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// GetQuotation loads a quotation.
func (s *Service) GetQuotation(ctx context.Context, tenantID, id string) (*Quotation, error) {
	return load[Quotation](ctx, s.backend, tenantID, id)
}

// ListQuotations lists quotations; filter.RefID narrows to one requisition.
func (s *Service) ListQuotations(ctx context.Context, tenantID string, filter store.Filter) ([]*Quotation, error) {
	return list[Quotation](ctx, s.backend, tenantID, filter)
}

// InviteSuppliers adds suppliers to a draft quotation.
func (s *Service) InviteSuppliers(ctx context.Context, tenantID, id string, suppliers []SupplierRef) (*Quotation, error) {
	return mutate(ctx, s, tenantID, id, ActionInvite, func(q *Quotation) (bool, error) {
		return true, q.InviteSuppliers(suppliers, s.now())
	})
}

// SendQuotation dispatches the quotation to its suppliers.
func (s *Service) SendQuotation(ctx context.Context, tenantID, id string) (*Quotation, error) {
	q, err := mutate(ctx, s, tenantID, id, ActionSend, func(q *Quotation) (bool, error) {
		return true, q.Send(s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, newEvent(EventQuotationSent, q, actorID(ctx), s.now(), nil))
	return q, nil
}

// RecordSupplierResponse stores one supplier's prices.
func (s *Service) RecordSupplierResponse(ctx context.Context, tenantID, id, supplierID string, input ResponseInput) (*Quotation, error) {
	q, err := mutate(ctx, s, tenantID, id, ActionRespond, func(q *Quotation) (bool, error) {
		return true, q.RecordSupplierResponse(supplierID, input, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, newEvent(EventQuotationResponded, q, actorID(ctx), s.now(), map[string]string{"supplier_id": supplierID}))
	return q, nil
}

// EvaluateQuotation expires a sent quotation that outlived its validity
// without any response. Other quotations are returned unchanged.
func (s *Service) EvaluateQuotation(ctx context.Context, tenantID, id string) (*Quotation, error) {
	var expired bool
	q, err := mutate(ctx, s, tenantID, id, ActionEvaluate, func(q *Quotation) (bool, error) {
		expired = q.Evaluate(s.now())
		return expired, nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		s.publish(ctx, newEvent(EventQuotationExpired, q, actorID(ctx), s.now(), nil))
	}
	return q, nil
}

// BestOfferForItem returns the canonical best offer for an item.
func (s *Service) BestOfferForItem(ctx context.Context, tenantID, id, itemID string) (SupplierResponse, bool, error) {
	q, err := s.GetQuotation(ctx, tenantID, id)
	if err != nil {
		return SupplierResponse{}, false, err
	}
	return q.BestOfferForItem(itemID)
}

// SelectWinner records the supplier the order will go to.
func (s *Service) SelectWinner(ctx context.Context, tenantID, id, supplierID string) (*Quotation, error) {
	q, err := mutate(ctx, s, tenantID, id, ActionSelectWinner, func(q *Quotation) (bool, error) {
		return true, q.SelectWinner(supplierID, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, newEvent(EventWinnerSelected, q, actorID(ctx), s.now(), map[string]string{"supplier_id": supplierID}))
	return q, nil
}

// CompareQuotation builds the side-by-side comparison report.
func (s *Service) CompareQuotation(ctx context.Context, tenantID, id string) (QuotationComparison, error) {
	q, err := s.GetQuotation(ctx, tenantID, id)
	if err != nil {
		return QuotationComparison{}, err
	}
	return q.Compare()
}

// CancelQuotation cancels a quotation that was not converted.
func (s *Service) CancelQuotation(ctx context.Context, tenantID, id string) (*Quotation, error) {
	q, err := mutate(ctx, s, tenantID, id, ActionCancel, func(q *Quotation) (bool, error) {
		return true, q.Cancel(s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, newEvent(EventQuotationCancelled, q, actorID(ctx), s.now(), nil))
	return q, nil
}

// ConvertToPurchaseOrder issues a draft order to the selected winner.
// Repeated calls return the order created the first time.
func (s *Service) ConvertToPurchaseOrder(ctx context.Context, tenantID, id string, input ConvertOrderInput) (*PurchaseOrder, error) {
	return s.Coordinator().QuotationToOrder(ctx, tenantID, id, input)
}

// DeleteQuotation removes a quotation that never produced an order. The
// quotation a requisition was converted into stays; cancel it instead.
func (s *Service) DeleteQuotation(ctx context.Context, tenantID, id string) error {
	return remove(ctx, s, tenantID, id, func(q *Quotation) error {
		if q.Converted {
			return newError(ErrIllegalTransition, "quotation already converted to order %s", q.OrderID)
		}
		if q.RequisitionID != "" && q.ID == deterministicID("quotation", q.TenantID, q.RequisitionID) {
			return newError(ErrIllegalTransition, "quotation is the conversion of requisition %s", q.RequisitionID)
		}
		switch q.Status {
		case QuotationDraft, QuotationCancelled, QuotationExpired:
			return nil
		}
		return newError(ErrIllegalTransition, "cannot delete quotation in status %s", q.Status)
	})
}
