package procurement

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/money"
)

// defaultValidityDays applies when a converted requisition gives no validity date.
const defaultValidityDays = 15

// SupplierStatus tracks whether an invited supplier answered.
type SupplierStatus string

const (
	SupplierInvited   SupplierStatus = "invited"
	SupplierResponded SupplierStatus = "responded"
)

// InvitedSupplier is a supplier asked to quote.
type InvitedSupplier struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Email       string         `json:"email,omitempty"`
	Status      SupplierStatus `json:"status"`
	InvitedAt   time.Time      `json:"invited_at"`
	RespondedAt *time.Time     `json:"responded_at,omitempty"`
}

// SupplierRef identifies a supplier to invite.
type SupplierRef struct {
	ID    string
	Name  string
	Email string
}

// SupplierResponse is one supplier's answer for one item.
type SupplierResponse struct {
	SupplierID   string      `json:"supplier_id"`
	SupplierName string      `json:"supplier_name"`
	UnitPrice    money.Money `json:"unit_price"`
	Subtotal     money.Money `json:"subtotal"`
	LeadTimeDays int         `json:"lead_time_days"`
	PaymentTerms string      `json:"payment_terms,omitempty"`
	Brand        string      `json:"brand,omitempty"`
	Notes        string      `json:"notes,omitempty"`
	RespondedAt  time.Time   `json:"responded_at"`
}

// QuotationItem is an item priced by the invited suppliers.
type QuotationItem struct {
	ID            string             `json:"id"`
	Description   string             `json:"description"`
	Quantity      int64              `json:"quantity"`
	Unit          string             `json:"unit"`
	Specification string             `json:"specification,omitempty"`
	SourceItemID  string             `json:"source_item_id,omitempty"`
	Responses     []SupplierResponse `json:"responses"`
}

// QuotationItemInput describes an item of a new quotation.
type QuotationItemInput struct {
	ID            string
	Description   string
	Quantity      int64
	Unit          string
	Specification string
	SourceItemID  string
}

// Quotation is a request for pricing sent to suppliers.
type Quotation struct {
	Meta
	RequisitionID     string            `json:"requisition_id,omitempty"`
	Currency          string            `json:"currency"`
	IssueDate         time.Time         `json:"issue_date"`
	ValidUntil        time.Time         `json:"valid_until"`
	Suppliers         []InvitedSupplier `json:"suppliers"`
	Items             []QuotationItem   `json:"items"`
	WinningSupplierID string            `json:"winning_supplier_id,omitempty"`
	Status            QuotationStatus   `json:"status"`
	Observations      string            `json:"observations,omitempty"`
	Converted         bool              `json:"converted"`
	OrderID           string            `json:"order_id,omitempty"`
}

// CreateQuotationInput describes creation payload.
type CreateQuotationInput struct {
	Number        string
	RequisitionID string
	Currency      string
	IssueDate     time.Time
	ValidUntil    time.Time
	Observations  string
	Items         []QuotationItemInput
	Suppliers     []SupplierRef
}

// ResponseInput carries a supplier's per-item prices in minor units.
type ResponseInput struct {
	Prices       map[string]int64
	LeadTimeDays int
	PaymentTerms string
	Brand        string
	Notes        string
}

func newQuotation(id, tenantID string, in CreateQuotationInput, defaultCurrency string, ids func() string, now time.Time) (*Quotation, error) {
	if strings.TrimSpace(in.Number) == "" {
		return nil, newError(ErrValidation, "quotation number required")
	}
	code, err := parseCurrency(in.Currency, defaultCurrency)
	if err != nil {
		return nil, err
	}
	if in.IssueDate.IsZero() {
		in.IssueDate = now
	}
	if in.ValidUntil.IsZero() || in.ValidUntil.Before(in.IssueDate) {
		return nil, newError(ErrValidation, "validity date must not precede the issue date")
	}
	if len(in.Items) == 0 {
		return nil, newError(ErrValidation, "at least one item required")
	}
	q := &Quotation{
		Meta:          Meta{ID: id, TenantID: tenantID, Number: in.Number, CreatedAt: now, UpdatedAt: now},
		RequisitionID: in.RequisitionID,
		Currency:      code,
		IssueDate:     in.IssueDate,
		ValidUntil:    in.ValidUntil,
		Status:        QuotationDraft,
		Observations:  in.Observations,
	}
	seen := make(map[string]bool, len(in.Items))
	for _, item := range in.Items {
		if strings.TrimSpace(item.Description) == "" {
			return nil, newError(ErrValidation, "item description required")
		}
		if item.Quantity <= 0 {
			return nil, newError(ErrValidation, "item quantity must be positive, got %d", item.Quantity)
		}
		if item.ID == "" {
			item.ID = ids()
		}
		if seen[item.ID] {
			return nil, newError(ErrValidation, "duplicate item id %s", item.ID)
		}
		seen[item.ID] = true
		q.Items = append(q.Items, QuotationItem{
			ID:            item.ID,
			Description:   strings.TrimSpace(item.Description),
			Quantity:      item.Quantity,
			Unit:          defaultString(item.Unit, "un"),
			Specification: item.Specification,
			SourceItemID:  item.SourceItemID,
		})
	}
	if len(in.Suppliers) > 0 {
		if err := q.InviteSuppliers(in.Suppliers, now); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// quotationFromRequisition seeds a draft quotation from a requisition snapshot.
func quotationFromRequisition(id string, req *Requisition, snapshot []RequisitionItem, in CreateQuotationInput, ids func() string, now time.Time) (*Quotation, error) {
	in.RequisitionID = req.ID
	if in.IssueDate.IsZero() {
		in.IssueDate = now
	}
	if in.ValidUntil.IsZero() {
		in.ValidUntil = in.IssueDate.AddDate(0, 0, defaultValidityDays)
	}
	if in.Currency == "" {
		in.Currency = req.Currency
	}
	if in.Number == "" {
		in.Number = "COT-" + req.Number
	}
	if in.Observations == "" {
		in.Observations = req.Justification
	}
	in.Items = make([]QuotationItemInput, 0, len(snapshot))
	for _, item := range snapshot {
		in.Items = append(in.Items, QuotationItemInput{
			ID:            deterministicID("quotation-item", id, item.ID),
			Description:   item.Description,
			Quantity:      item.Quantity,
			Specification: item.Note,
			SourceItemID:  item.ID,
		})
	}
	return newQuotation(id, req.TenantID, in, req.Currency, ids, now)
}

// InviteSuppliers adds suppliers while the quotation is a draft.
func (q *Quotation) InviteSuppliers(refs []SupplierRef, now time.Time) error {
	if q.Status != QuotationDraft {
		return newError(ErrIllegalTransition, "suppliers can only be invited in draft, status is %s", q.Status)
	}
	if len(refs) == 0 {
		return newError(ErrValidation, "at least one supplier required")
	}
	seen := make(map[string]bool, len(q.Suppliers)+len(refs))
	for _, s := range q.Suppliers {
		seen[s.ID] = true
	}
	invited := slices.Clone(q.Suppliers)
	for _, ref := range refs {
		if strings.TrimSpace(ref.ID) == "" {
			return newError(ErrValidation, "supplier id required")
		}
		if seen[ref.ID] {
			return newError(ErrValidation, "supplier %s invited twice", ref.ID)
		}
		seen[ref.ID] = true
		invited = append(invited, InvitedSupplier{ID: ref.ID, Name: ref.Name, Email: ref.Email, Status: SupplierInvited, InvitedAt: now})
	}
	q.Suppliers = invited
	q.UpdatedAt = now
	return nil
}

// Send dispatches the quotation to the invited suppliers.
func (q *Quotation) Send(now time.Time) error {
	next, err := quotationTransitions.next(q.Status, ActionSend)
	if err != nil {
		return err
	}
	if len(q.Suppliers) == 0 {
		return newError(ErrValidation, "invite at least one supplier before sending")
	}
	q.Status = next
	q.UpdatedAt = now
	return nil
}

// Expired reports whether now is past the validity date.
func (q *Quotation) Expired(now time.Time) bool {
	return now.After(q.ValidUntil)
}

// Evaluate expires a sent quotation without responses once its validity date
// has passed. It reports whether anything changed.
func (q *Quotation) Evaluate(now time.Time) bool {
	if q.Status != QuotationSent || !q.Expired(now) || q.responseCount() > 0 {
		return false
	}
	next, err := quotationTransitions.next(q.Status, ActionExpire)
	if err != nil {
		return false
	}
	q.Status = next
	q.UpdatedAt = now
	return true
}

func (q *Quotation) responseCount() int {
	n := 0
	for _, item := range q.Items {
		n += len(item.Responses)
	}
	return n
}

// RecordSupplierResponse stores a supplier's prices. A repeated answer from
// the same supplier replaces its earlier response on each priced item.
func (q *Quotation) RecordSupplierResponse(supplierID string, in ResponseInput, now time.Time) error {
	if q.Converted {
		return newError(ErrIllegalTransition, "quotation already converted to order %s", q.OrderID)
	}
	next, err := quotationTransitions.next(q.Status, ActionRespond)
	if err != nil {
		return err
	}
	if q.Expired(now) {
		return newError(ErrIllegalTransition, "quotation validity ended %s", q.ValidUntil.Format(time.DateOnly))
	}
	supIdx := q.supplierIndex(supplierID)
	if supIdx < 0 {
		return newError(ErrUnknownSupplier, "supplier %s was not invited", supplierID)
	}
	if len(in.Prices) == 0 {
		return newError(ErrValidation, "response must price at least one item")
	}
	if in.LeadTimeDays < 0 {
		return newError(ErrValidation, "lead time must not be negative")
	}
	supplier := q.Suppliers[supIdx]
	items := slices.Clone(q.Items)
	for itemID, price := range in.Prices {
		idx := slices.IndexFunc(items, func(item QuotationItem) bool { return item.ID == itemID })
		if idx < 0 {
			return newError(ErrValidation, "unknown item %s", itemID)
		}
		if price < 0 {
			return newError(ErrValidation, "price for item %s must not be negative", itemID)
		}
		unit := money.New(price, q.Currency)
		subtotal, err := unit.Multiply(items[idx].Quantity)
		if err != nil {
			return newError(ErrValidation, "item %s: %v", itemID, err)
		}
		resp := SupplierResponse{
			SupplierID:   supplier.ID,
			SupplierName: supplier.Name,
			UnitPrice:    unit,
			Subtotal:     subtotal,
			LeadTimeDays: in.LeadTimeDays,
			PaymentTerms: in.PaymentTerms,
			Brand:        in.Brand,
			Notes:        in.Notes,
			RespondedAt:  now,
		}
		responses := slices.DeleteFunc(slices.Clone(items[idx].Responses), func(r SupplierResponse) bool {
			return r.SupplierID == supplier.ID
		})
		items[idx].Responses = append(responses, resp)
	}
	respondedAt := now
	suppliers := slices.Clone(q.Suppliers)
	suppliers[supIdx].Status = SupplierResponded
	suppliers[supIdx].RespondedAt = &respondedAt

	q.Items = items
	q.Suppliers = suppliers
	q.Status = next
	q.UpdatedAt = now
	return nil
}

// compareOffers is the canonical offer order: unit price, then earlier
// response, then supplier id.
func compareOffers(a, b SupplierResponse) int {
	if c := cmp.Compare(a.UnitPrice.Amount, b.UnitPrice.Amount); c != 0 {
		return c
	}
	if c := a.RespondedAt.Compare(b.RespondedAt); c != 0 {
		return c
	}
	return strings.Compare(a.SupplierID, b.SupplierID)
}

// rankOffers returns responses sorted best first without touching the input.
func rankOffers(responses []SupplierResponse) []SupplierResponse {
	ranked := slices.Clone(responses)
	slices.SortStableFunc(ranked, compareOffers)
	return ranked
}

// BestOffer returns the winning response among responses.
func BestOffer(responses []SupplierResponse) (SupplierResponse, bool) {
	if len(responses) == 0 {
		return SupplierResponse{}, false
	}
	return slices.MinFunc(responses, compareOffers), true
}

// BestOfferForItem returns the best response for an item. ok is false when no
// supplier priced it yet.
func (q *Quotation) BestOfferForItem(itemID string) (SupplierResponse, bool, error) {
	idx := slices.IndexFunc(q.Items, func(item QuotationItem) bool { return item.ID == itemID })
	if idx < 0 {
		return SupplierResponse{}, false, newError(ErrValidation, "unknown item %s", itemID)
	}
	best, ok := BestOffer(q.Items[idx].Responses)
	return best, ok, nil
}

// SelectWinner picks the supplier the order will be issued to.
func (q *Quotation) SelectWinner(supplierID string, now time.Time) error {
	if q.Status != QuotationResponded {
		return newError(ErrIllegalTransition, "winner can only be selected once responded, status is %s", q.Status)
	}
	if q.Converted {
		return newError(ErrIllegalTransition, "quotation already converted to order %s", q.OrderID)
	}
	if q.supplierIndex(supplierID) < 0 {
		return newError(ErrUnknownSupplier, "supplier %s was not invited", supplierID)
	}
	if len(q.winnerResponses(supplierID)) == 0 {
		return newError(ErrNoResponseFromSupplier, "supplier %s did not price any item", supplierID)
	}
	q.WinningSupplierID = supplierID
	q.UpdatedAt = now
	return nil
}

// WinnerLine is an item priced by the winning supplier.
type WinnerLine struct {
	Item     QuotationItem
	Response SupplierResponse
}

func (q *Quotation) winnerResponses(supplierID string) []WinnerLine {
	var lines []WinnerLine
	for _, item := range q.Items {
		for _, resp := range item.Responses {
			if resp.SupplierID == supplierID {
				lines = append(lines, WinnerLine{Item: item, Response: resp})
			}
		}
	}
	return lines
}

// ConvertToPurchaseOrder flags the quotation as converted and returns the
// winner's lines. Repeating the call for the same winner reports false and
// returns the same lines.
func (q *Quotation) ConvertToPurchaseOrder(orderID string, now time.Time) ([]WinnerLine, bool, error) {
	if q.WinningSupplierID == "" {
		return nil, false, newError(ErrIllegalTransition, "select a winner before converting")
	}
	lines := q.winnerResponses(q.WinningSupplierID)
	if len(lines) == 0 {
		return nil, false, newError(ErrNoResponseFromSupplier, "supplier %s did not price any item", q.WinningSupplierID)
	}
	if q.Converted {
		return lines, false, nil
	}
	if q.Status != QuotationResponded {
		return nil, false, newError(ErrIllegalTransition, "cannot convert in status %s", q.Status)
	}
	q.Converted = true
	q.OrderID = orderID
	q.UpdatedAt = now
	return lines, true, nil
}

// Cancel stops the quotation. Converted quotations cannot be cancelled.
func (q *Quotation) Cancel(now time.Time) error {
	if q.Converted {
		return newError(ErrIllegalTransition, "quotation already converted to order %s", q.OrderID)
	}
	next, err := quotationTransitions.next(q.Status, ActionCancel)
	if err != nil {
		return err
	}
	q.Status = next
	q.UpdatedAt = now
	return nil
}

// Supplier returns the invited supplier with id.
func (q *Quotation) Supplier(id string) (InvitedSupplier, bool) {
	idx := q.supplierIndex(id)
	if idx < 0 {
		return InvitedSupplier{}, false
	}
	return q.Suppliers[idx], true
}

func (q *Quotation) supplierIndex(id string) int {
	return slices.IndexFunc(q.Suppliers, func(s InvitedSupplier) bool { return s.ID == id })
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
