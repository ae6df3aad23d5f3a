package procurement

import (
	"slices"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/money"
)

// Priority of a requisition.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// RequisitionItem is a requested good or service. Subtotal is a cached copy
// of Quantity × UnitPrice and is rebuilt on every change.
type RequisitionItem struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Quantity    int64       `json:"quantity"`
	UnitPrice   money.Money `json:"unit_price"`
	Note        string      `json:"note,omitempty"`
	Subtotal    money.Money `json:"subtotal"`
}

// RequisitionItemInput describes an item edit. UnitPrice is in minor units of
// the requisition currency.
type RequisitionItemInput struct {
	ID          string
	Description string
	Quantity    int64
	UnitPrice   int64
	Note        string
}

// Requisition is an internal purchase request subject to approval.
type Requisition struct {
	Meta
	RequesterID   string            `json:"requester_id"`
	RequesterName string            `json:"requester_name"`
	Department    string            `json:"department"`
	Priority      Priority          `json:"priority"`
	Justification string            `json:"justification"`
	DesiredDate   time.Time         `json:"desired_date"`
	Currency      string            `json:"currency"`
	Items         []RequisitionItem `json:"items"`
	TotalValue    money.Money       `json:"total_value"`
	Approvals     ApprovalChain     `json:"approvals"`
	Status        RequisitionStatus `json:"status"`
	Converted     bool              `json:"converted"`
	QuotationID   string            `json:"quotation_id,omitempty"`
	CancelReason  string            `json:"cancel_reason,omitempty"`
}

// CreateRequisitionInput describes creation payload. Draft keeps the
// requisition in draft; otherwise it starts pending.
type CreateRequisitionInput struct {
	Number        string
	RequesterID   string
	RequesterName string
	Department    string
	Priority      Priority
	Justification string
	DesiredDate   time.Time
	Currency      string
	Items         []RequisitionItemInput
	Draft         bool
}

func newRequisition(id, tenantID string, in CreateRequisitionInput, defaultCurrency string, ids func() string, now time.Time) (*Requisition, error) {
	if strings.TrimSpace(in.Number) == "" {
		return nil, newError(ErrValidation, "requisition number required")
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.valid() {
		return nil, newError(ErrValidation, "unknown priority %q", in.Priority)
	}
	code, err := parseCurrency(in.Currency, defaultCurrency)
	if err != nil {
		return nil, err
	}
	req := &Requisition{
		Meta:          Meta{ID: id, TenantID: tenantID, Number: in.Number, CreatedAt: now, UpdatedAt: now},
		RequesterID:   in.RequesterID,
		RequesterName: in.RequesterName,
		Department:    in.Department,
		Priority:      in.Priority,
		Justification: strings.TrimSpace(in.Justification),
		DesiredDate:   in.DesiredDate,
		Currency:      code,
		TotalValue:    money.Zero(code),
		Status:        RequisitionPending,
	}
	if in.Draft {
		req.Status = RequisitionDraft
	}
	items, err := req.buildItems(in.Items, ids)
	if err != nil {
		return nil, err
	}
	if err := req.replaceItems(items, now); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *Requisition) buildItems(inputs []RequisitionItemInput, ids func() string) ([]RequisitionItem, error) {
	items := make([]RequisitionItem, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		item, err := r.buildItem(in, ids)
		if err != nil {
			return nil, err
		}
		if seen[item.ID] {
			return nil, newError(ErrValidation, "duplicate item id %s", item.ID)
		}
		seen[item.ID] = true
		items = append(items, item)
	}
	return items, nil
}

func (r *Requisition) buildItem(in RequisitionItemInput, ids func() string) (RequisitionItem, error) {
	if in.Quantity <= 0 {
		return RequisitionItem{}, newError(ErrValidation, "item quantity must be positive, got %d", in.Quantity)
	}
	if in.UnitPrice < 0 {
		return RequisitionItem{}, newError(ErrValidation, "item price must not be negative, got %d", in.UnitPrice)
	}
	id := in.ID
	if id == "" {
		id = ids()
	}
	price := money.New(in.UnitPrice, r.Currency)
	subtotal, err := price.Multiply(in.Quantity)
	if err != nil {
		return RequisitionItem{}, newError(ErrValidation, "item %s: %v", id, err)
	}
	return RequisitionItem{
		ID:          id,
		Description: strings.TrimSpace(in.Description),
		Quantity:    in.Quantity,
		UnitPrice:   price,
		Note:        in.Note,
		Subtotal:    subtotal,
	}, nil
}

// replaceItems swaps the item list only when the new total can be computed.
func (r *Requisition) replaceItems(items []RequisitionItem, now time.Time) error {
	subtotals := make([]money.Money, len(items))
	for i, item := range items {
		subtotals[i] = item.Subtotal
	}
	total, err := money.Sum(r.Currency, subtotals...)
	if err != nil {
		return newError(ErrValidation, "requisition total: %v", err)
	}
	r.Items = items
	r.TotalValue = total
	r.UpdatedAt = now
	return nil
}

func (r *Requisition) editable() error {
	if r.Status != RequisitionDraft && r.Status != RequisitionPending {
		return newError(ErrIllegalTransition, "items are read-only in status %s", r.Status)
	}
	return nil
}

// SetItems replaces the whole item list.
func (r *Requisition) SetItems(inputs []RequisitionItemInput, ids func() string, now time.Time) error {
	if err := r.editable(); err != nil {
		return err
	}
	items, err := r.buildItems(inputs, ids)
	if err != nil {
		return err
	}
	return r.replaceItems(items, now)
}

// AddItem appends an item.
func (r *Requisition) AddItem(in RequisitionItemInput, ids func() string, now time.Time) (RequisitionItem, error) {
	if err := r.editable(); err != nil {
		return RequisitionItem{}, err
	}
	item, err := r.buildItem(in, ids)
	if err != nil {
		return RequisitionItem{}, err
	}
	if r.itemIndex(item.ID) >= 0 {
		return RequisitionItem{}, newError(ErrValidation, "duplicate item id %s", item.ID)
	}
	if err := r.replaceItems(append(slices.Clone(r.Items), item), now); err != nil {
		return RequisitionItem{}, err
	}
	return item, nil
}

// UpdateItem replaces the item with the same id.
func (r *Requisition) UpdateItem(in RequisitionItemInput, now time.Time) error {
	if err := r.editable(); err != nil {
		return err
	}
	idx := r.itemIndex(in.ID)
	if idx < 0 {
		return newError(ErrValidation, "unknown item %s", in.ID)
	}
	item, err := r.buildItem(in, nil)
	if err != nil {
		return err
	}
	items := slices.Clone(r.Items)
	items[idx] = item
	return r.replaceItems(items, now)
}

// RemoveItem deletes an item.
func (r *Requisition) RemoveItem(itemID string, now time.Time) error {
	if err := r.editable(); err != nil {
		return err
	}
	idx := r.itemIndex(itemID)
	if idx < 0 {
		return newError(ErrValidation, "unknown item %s", itemID)
	}
	return r.replaceItems(slices.Delete(slices.Clone(r.Items), idx, idx+1), now)
}

func (r *Requisition) itemIndex(id string) int {
	return slices.IndexFunc(r.Items, func(item RequisitionItem) bool { return item.ID == id })
}

// MarkPending moves a draft into the pending queue.
func (r *Requisition) MarkPending(now time.Time) error {
	next, err := requisitionTransitions.next(r.Status, ActionMarkPending)
	if err != nil {
		return err
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}

// Submit starts the approval chain.
func (r *Requisition) Submit(policy ApprovalPolicy, now time.Time) error {
	next, err := requisitionTransitions.next(r.Status, ActionSubmit)
	if err != nil {
		return err
	}
	if r.Justification == "" {
		return newError(ErrValidation, "justification required")
	}
	if len(r.Items) == 0 {
		return newError(ErrValidation, "at least one item required")
	}
	for _, item := range r.Items {
		if item.Description == "" {
			return newError(ErrValidation, "item %s needs a description", item.ID)
		}
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	if err := r.replaceItems(r.Items, now); err != nil {
		return err
	}
	r.Approvals = policy.Instantiate(r.TotalValue)
	r.Status = next
	return nil
}

// RecordApprovalDecision applies a decision. On a rejected requisition the
// call changes nothing and reports false.
func (r *Requisition) RecordApprovalDecision(in DecisionInput, now time.Time) (bool, error) {
	if r.Status == RequisitionRejected {
		return false, nil
	}
	if !requisitionTransitions.allows(r.Status, ActionApproveLevel) {
		return false, newError(ErrIllegalTransition, "cannot record approval in status %s", r.Status)
	}
	chain, outcome, err := r.Approvals.decide(in, now)
	if err != nil {
		return false, err
	}
	action := ActionApproveLevel
	switch outcome {
	case chainApproved:
		action = ActionApproveFinal
	case chainRejected:
		action = ActionReject
	}
	next, err := requisitionTransitions.next(r.Status, action)
	if err != nil {
		return false, err
	}
	r.Approvals = chain
	r.Status = next
	r.UpdatedAt = now
	return true, nil
}

// ConvertToQuotation marks the requisition converted and returns a snapshot
// of its items. Repeating the call on a converted requisition returns the
// same snapshot and reports false.
func (r *Requisition) ConvertToQuotation(quotationID string, now time.Time) ([]RequisitionItem, bool, error) {
	if r.Status == RequisitionConverted {
		return r.Snapshot(), false, nil
	}
	next, err := requisitionTransitions.next(r.Status, ActionConvert)
	if err != nil {
		return nil, false, err
	}
	r.Status = next
	r.Converted = true
	r.QuotationID = quotationID
	r.UpdatedAt = now
	return r.Snapshot(), true, nil
}

// Snapshot returns a copy of the items.
func (r *Requisition) Snapshot() []RequisitionItem {
	return slices.Clone(r.Items)
}

// Cancel stops the requisition.
func (r *Requisition) Cancel(reason string, now time.Time) error {
	next, err := requisitionTransitions.next(r.Status, ActionCancel)
	if err != nil {
		return err
	}
	r.Status = next
	r.CancelReason = reason
	r.UpdatedAt = now
	return nil
}

func parseCurrency(code, fallback string) (string, error) {
	if strings.TrimSpace(code) == "" {
		code = fallback
	}
	parsed, err := money.ParseCurrency(code)
	if err != nil {
		return "", newError(ErrValidation, "%v", err)
	}
	return parsed, nil
}
