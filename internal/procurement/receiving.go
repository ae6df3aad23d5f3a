package procurement

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// ReceivingStatus is derived from a record's counts and never stored.
type ReceivingStatus string

const (
	ReceivingPending    ReceivingStatus = "pending"
	ReceivingComplete   ReceivingStatus = "completo"
	ReceivingPartial    ReceivingStatus = "parcial"
	ReceivingDivergence ReceivingStatus = "com_divergencia"
)

// DeriveReceivingStatus applies the reconciliation rules. Any rejection marks
// divergence regardless of how much arrived.
func DeriveReceivingStatus(expected, received, rejected int64) ReceivingStatus {
	switch {
	case rejected > 0:
		return ReceivingDivergence
	case received == 0:
		return ReceivingPending
	case received >= expected:
		return ReceivingComplete
	default:
		return ReceivingPartial
	}
}

// ReceivingLine is the physical count for one order item.
type ReceivingLine struct {
	ItemID      string `json:"item_id"`
	ReceivedQty int64  `json:"received_qty"`
	RejectedQty int64  `json:"rejected_qty"`
	Note        string `json:"note,omitempty"`
}

// ReceivingRecord reconciles a delivery against one purchase order.
type ReceivingRecord struct {
	Meta
	OrderID           string          `json:"order_id"`
	Date              time.Time       `json:"date"`
	Responsible       string          `json:"responsible"`
	Lines             []ReceivingLine `json:"lines"`
	ExpectedItemCount int64           `json:"expected_item_count"`
	ReceivedItemCount int64           `json:"received_item_count"`
	RejectedItemCount int64           `json:"rejected_item_count"`
	Notes             string          `json:"notes,omitempty"`
}

// Status derives the reconciliation status.
func (r *ReceivingRecord) Status() ReceivingStatus {
	return DeriveReceivingStatus(r.ExpectedItemCount, r.ReceivedItemCount, r.RejectedItemCount)
}

// MarshalJSON includes the derived status for readers.
func (r ReceivingRecord) MarshalJSON() ([]byte, error) {
	type plain ReceivingRecord
	return json.Marshal(struct {
		plain
		Status ReceivingStatus `json:"status"`
	}{plain: plain(r), Status: r.Status()})
}

// ReceivingInput describes a delivery count. ID is optional; supplying one
// makes retries of the same delivery idempotent.
type ReceivingInput struct {
	ID          string
	Number      string
	Date        time.Time
	Responsible string
	Lines       []ReceivingLine
	Notes       string
}

// newReceivingRecord counts a delivery against the order's outstanding
// quantities. It must be built before the order applies the lines.
func newReceivingRecord(id string, order *PurchaseOrder, in ReceivingInput, now time.Time) (*ReceivingRecord, error) {
	if strings.TrimSpace(in.Responsible) == "" {
		return nil, newError(ErrValidation, "responsible person required")
	}
	if in.Date.IsZero() {
		in.Date = now
	}
	rec := &ReceivingRecord{
		Meta:              Meta{ID: id, TenantID: order.TenantID, Number: in.Number, CreatedAt: now, UpdatedAt: now},
		OrderID:           order.ID,
		Date:              in.Date,
		Responsible:       strings.TrimSpace(in.Responsible),
		Lines:             slices.Clone(in.Lines),
		ExpectedItemCount: order.OutstandingQuantity(),
		Notes:             in.Notes,
	}
	for _, line := range in.Lines {
		rec.ReceivedItemCount += line.ReceivedQty
		rec.RejectedItemCount += line.RejectedQty
	}
	return rec, nil
}
