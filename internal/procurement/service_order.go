package procurement

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/store"
)

// GetOrder loads a purchase order.
func (s *Service) GetOrder(ctx context.Context, tenantID, id string) (*PurchaseOrder, error) {
	return load[PurchaseOrder](ctx, s.backend, tenantID, id)
}

// ListOrders lists purchase orders; filter.RefID narrows to one quotation.
func (s *Service) ListOrders(ctx context.Context, tenantID string, filter store.Filter) ([]*PurchaseOrder, error) {
	return list[PurchaseOrder](ctx, s.backend, tenantID, filter)
}

// AddOrderItem appends an item and recomputes the totals.
func (s *Service) AddOrderItem(ctx context.Context, tenantID, id string, input OrderItemInput) (*PurchaseOrder, error) {
	return mutate(ctx, s, tenantID, id, ActionEditItems, func(po *PurchaseOrder) (bool, error) {
		_, err := po.AddItem(input, s.newID, s.now())
		return true, err
	})
}

// UpdateOrderItem rewrites an item and recomputes the totals.
func (s *Service) UpdateOrderItem(ctx context.Context, tenantID, id string, input OrderItemInput) (*PurchaseOrder, error) {
	return mutate(ctx, s, tenantID, id, ActionEditItems, func(po *PurchaseOrder) (bool, error) {
		return true, po.UpdateItem(input, s.now())
	})
}

// RemoveOrderItem deletes an item and recomputes the totals.
func (s *Service) RemoveOrderItem(ctx context.Context, tenantID, id, itemID string) (*PurchaseOrder, error) {
	return mutate(ctx, s, tenantID, id, ActionEditItems, func(po *PurchaseOrder) (bool, error) {
		return true, po.RemoveItem(itemID, s.now())
	})
}

// SendOrder issues the order to its supplier.
func (s *Service) SendOrder(ctx context.Context, tenantID, id string) (*PurchaseOrder, error) {
	return s.orderTransition(ctx, tenantID, id, ActionSend, EventOrderSent, (*PurchaseOrder).Send)
}

// ConfirmOrder records the supplier's acceptance.
func (s *Service) ConfirmOrder(ctx context.Context, tenantID, id string) (*PurchaseOrder, error) {
	return s.orderTransition(ctx, tenantID, id, ActionConfirm, EventOrderConfirmed, (*PurchaseOrder).Confirm)
}

// CloseOrder closes a fully received order.
func (s *Service) CloseOrder(ctx context.Context, tenantID, id string) (*PurchaseOrder, error) {
	return s.orderTransition(ctx, tenantID, id, ActionClose, EventOrderClosed, (*PurchaseOrder).Close)
}

// CancelOrder cancels an order that is not closed.
func (s *Service) CancelOrder(ctx context.Context, tenantID, id string) (*PurchaseOrder, error) {
	return s.orderTransition(ctx, tenantID, id, ActionCancel, EventOrderCancelled, (*PurchaseOrder).Cancel)
}

func (s *Service) orderTransition(ctx context.Context, tenantID, id string, action Action, evt EventType, fn func(*PurchaseOrder, time.Time) error) (*PurchaseOrder, error) {
	po, err := mutate(ctx, s, tenantID, id, action, func(po *PurchaseOrder) (bool, error) {
		return true, fn(po, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, newEvent(evt, po, actorID(ctx), s.now(), nil))
	return po, nil
}

// ApplyReceiving records a delivery against the order and applies it in the
// same transaction. Nothing is stored when the order rejects the lines.
func (s *Service) ApplyReceiving(ctx context.Context, tenantID, orderID string, input ReceivingInput) (*ReceivingRecord, *PurchaseOrder, error) {
	return s.Coordinator().OrderToReceiving(ctx, tenantID, orderID, input)
}

// GetReceiving loads a receiving record.
func (s *Service) GetReceiving(ctx context.Context, tenantID, id string) (*ReceivingRecord, error) {
	return load[ReceivingRecord](ctx, s.backend, tenantID, id)
}

// ListReceivings lists the receiving records of an order.
func (s *Service) ListReceivings(ctx context.Context, tenantID, orderID string) ([]*ReceivingRecord, error) {
	return list[ReceivingRecord](ctx, s.backend, tenantID, store.Filter{RefID: orderID})
}
