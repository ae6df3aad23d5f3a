package procurement

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-procure/internal/store"
)

// maxTraceFanout bounds concurrent store reads of one trace.
const maxTraceFanout = 8

// OrderTrace is an order with its receivings.
type OrderTrace struct {
	Order      *PurchaseOrder     `json:"order"`
	Receivings []*ReceivingRecord `json:"receivings"`
}

// QuotationTrace is a quotation with the orders issued from it.
type QuotationTrace struct {
	Quotation *Quotation   `json:"quotation"`
	Orders    []OrderTrace `json:"orders"`
}

// Lifecycle is everything downstream of one requisition.
type Lifecycle struct {
	Requisition *Requisition     `json:"requisition"`
	Quotations  []QuotationTrace `json:"quotations"`
}

// GetLifecycle loads a requisition with every downstream document. Identical
// concurrent calls share one load; nothing is cached afterwards. The shared
// load ignores any single caller's cancellation, and a cancelled caller
// returns its own context error without waiting for it.
func (s *Service) GetLifecycle(ctx context.Context, tenantID, requisitionID string) (*Lifecycle, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	shared := context.WithoutCancel(ctx)
	ch := s.traces.DoChan(tenantID+"/"+requisitionID, func() (any, error) {
		return s.loadLifecycle(shared, tenantID, requisitionID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Lifecycle), nil
	}
}

func (s *Service) loadLifecycle(ctx context.Context, tenantID, requisitionID string) (*Lifecycle, error) {
	trace := &Lifecycle{}
	var quotations []*Quotation

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		req, err := load[Requisition](gctx, s.backend, tenantID, requisitionID)
		trace.Requisition = req
		return err
	})
	g.Go(func() error {
		var err error
		quotations, err = list[Quotation](gctx, s.backend, tenantID, store.Filter{RefID: requisitionID})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	trace.Quotations = make([]QuotationTrace, len(quotations))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(maxTraceFanout)
	for i, q := range quotations {
		g.Go(func() error {
			orders, err := list[PurchaseOrder](gctx, s.backend, tenantID, store.Filter{RefID: q.ID})
			if err != nil {
				return err
			}
			qt := QuotationTrace{Quotation: q, Orders: make([]OrderTrace, 0, len(orders))}
			for _, po := range orders {
				recs, err := list[ReceivingRecord](gctx, s.backend, tenantID, store.Filter{RefID: po.ID})
				if err != nil {
					return err
				}
				qt.Orders = append(qt.Orders, OrderTrace{Order: po, Receivings: recs})
			}
			trace.Quotations[i] = qt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trace, nil
}
