package procurement

import (
	"context"
	"strconv"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
	"github.com/odyssey-erp/odyssey-procure/internal/store"
)

// CreateRequisition persists a new requisition in draft or pending.
func (s *Service) CreateRequisition(ctx context.Context, tenantID string, input CreateRequisitionInput) (*Requisition, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	req, err := newRequisition(s.newID(), tenantID, input, s.settings.Currency(tenantID), s.newID, s.now())
	if err != nil {
		s.observe(store.KindRequisition, ActionCreate, err)
		return nil, err
	}
	if err := s.create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// GetRequisition loads a requisition.
func (s *Service) GetRequisition(ctx context.Context, tenantID, id string) (*Requisition, error) {
	return load[Requisition](ctx, s.backend, tenantID, id)
}

// ListRequisitions lists requisitions in creation order.
func (s *Service) ListRequisitions(ctx context.Context, tenantID string, filter store.Filter) ([]*Requisition, error) {
	return list[Requisition](ctx, s.backend, tenantID, filter)
}

// UpdateRequisitionItems replaces the item list of a draft or pending requisition.
func (s *Service) UpdateRequisitionItems(ctx context.Context, tenantID, id string, items []RequisitionItemInput) (*Requisition, error) {
	return mutate(ctx, s, tenantID, id, ActionEditItems, func(req *Requisition) (bool, error) {
		return true, req.SetItems(items, s.newID, s.now())
	})
}

// AddRequisitionItem appends one item.
func (s *Service) AddRequisitionItem(ctx context.Context, tenantID, id string, item RequisitionItemInput) (*Requisition, error) {
	return mutate(ctx, s, tenantID, id, ActionEditItems, func(req *Requisition) (bool, error) {
		_, err := req.AddItem(item, s.newID, s.now())
		return true, err
	})
}

// RemoveRequisitionItem deletes one item.
func (s *Service) RemoveRequisitionItem(ctx context.Context, tenantID, id, itemID string) (*Requisition, error) {
	return mutate(ctx, s, tenantID, id, ActionEditItems, func(req *Requisition) (bool, error) {
		return true, req.RemoveItem(itemID, s.now())
	})
}

// MarkRequisitionPending moves a draft into the pending queue.
func (s *Service) MarkRequisitionPending(ctx context.Context, tenantID, id string) (*Requisition, error) {
	return mutate(ctx, s, tenantID, id, ActionMarkPending, func(req *Requisition) (bool, error) {
		return true, req.MarkPending(s.now())
	})
}

// SubmitRequisition starts the approval chain configured for the tenant.
func (s *Service) SubmitRequisition(ctx context.Context, tenantID, id string) (*Requisition, error) {
	req, err := mutate(ctx, s, tenantID, id, ActionSubmit, func(req *Requisition) (bool, error) {
		return true, req.Submit(s.settings.ApprovalPolicy(tenantID), s.now())
	})
	if err != nil {
		return nil, err
	}
	s.recordApproval(ctx, req, shared.ApprovalSubmit, 0, req.Justification)
	s.publish(ctx, newEvent(EventRequisitionSubmitted, req, actorID(ctx), s.now(), map[string]string{
		"levels": strconv.Itoa(len(req.Approvals)),
		"total":  req.TotalValue.String(),
	}))
	return req, nil
}

// RecordApprovalDecision decides one level of the chain. Decisions on a
// rejected requisition return it unchanged.
func (s *Service) RecordApprovalDecision(ctx context.Context, tenantID, id string, input DecisionInput) (*Requisition, error) {
	if input.ApproverID == "" {
		actor := shared.ActorFromContext(ctx)
		input.ApproverID = actor.ID
		input.ApproverName = actor.Name
	}
	var changed bool
	req, err := mutate(ctx, s, tenantID, id, ActionDecide, func(req *Requisition) (bool, error) {
		var err error
		changed, err = req.RecordApprovalDecision(input, s.now())
		return changed, err
	})
	if err != nil || !changed {
		return req, err
	}
	action := shared.ApprovalApprove
	if input.Decision == DecisionRejected {
		action = shared.ApprovalReject
	}
	s.recordApproval(ctx, req, action, input.Level, input.Comment)
	attrs := map[string]string{"level": strconv.Itoa(input.Level)}
	switch req.Status {
	case RequisitionApproved:
		s.publish(ctx, newEvent(EventRequisitionApproved, req, input.ApproverID, s.now(), attrs))
	case RequisitionRejected:
		attrs["comment"] = input.Comment
		s.publish(ctx, newEvent(EventRequisitionRejected, req, input.ApproverID, s.now(), attrs))
	}
	return req, nil
}

// CancelRequisition cancels a requisition that has not been approved yet.
func (s *Service) CancelRequisition(ctx context.Context, tenantID, id, reason string) (*Requisition, error) {
	req, err := mutate(ctx, s, tenantID, id, ActionCancel, func(req *Requisition) (bool, error) {
		return true, req.Cancel(reason, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, newEvent(EventRequisitionCancelled, req, actorID(ctx), s.now(), map[string]string{"reason": reason}))
	return req, nil
}

// ConvertRequisitionToQuotation turns an approved requisition into a draft
// quotation. Repeated calls return the quotation created the first time.
func (s *Service) ConvertRequisitionToQuotation(ctx context.Context, tenantID, id string, input CreateQuotationInput) (*Quotation, error) {
	return s.Coordinator().RequisitionToQuotation(ctx, tenantID, id, input)
}

// DeleteRequisition removes a requisition that never reached approval.
func (s *Service) DeleteRequisition(ctx context.Context, tenantID, id string) error {
	return remove(ctx, s, tenantID, id, func(req *Requisition) error {
		switch req.Status {
		case RequisitionDraft, RequisitionCancelled, RequisitionRejected:
			return nil
		}
		return newError(ErrIllegalTransition, "cannot delete requisition in status %s", req.Status)
	})
}
