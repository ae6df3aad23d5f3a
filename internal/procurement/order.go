package procurement

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/money"
)

var allowedTaxRates = []decimal.Decimal{
	decimal.NewFromInt(0),
	decimal.NewFromInt(5),
	decimal.NewFromInt(8),
	decimal.NewFromInt(10),
	decimal.NewFromInt(12),
	decimal.NewFromInt(16),
	decimal.NewFromInt(18),
	decimal.NewFromInt(20),
}

// ValidTaxRate reports whether rate is one of the allowed percentages.
func ValidTaxRate(rate decimal.Decimal) bool {
	return slices.ContainsFunc(allowedTaxRates, rate.Equal)
}

// AllowedTaxRates lists the accepted tax percentages.
func AllowedTaxRates() []decimal.Decimal {
	return slices.Clone(allowedTaxRates)
}

// OrderItem is an ordered line. ReceivedQuantity only grows and never exceeds
// OrderedQuantity; RejectedQuantity is an informational running total.
type OrderItem struct {
	ID               string          `json:"id"`
	Description      string          `json:"description"`
	OrderedQuantity  int64           `json:"ordered_quantity"`
	ReceivedQuantity int64           `json:"received_quantity"`
	RejectedQuantity int64           `json:"rejected_quantity"`
	Unit             string          `json:"unit"`
	UnitPrice        money.Money     `json:"unit_price"`
	Discount         money.Money     `json:"discount"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	Subtotal         money.Money     `json:"subtotal"`
	TaxAmount        money.Money     `json:"tax_amount"`
	SourceItemID     string          `json:"source_item_id,omitempty"`
}

// Outstanding returns the quantity still expected.
func (i OrderItem) Outstanding() int64 {
	return i.OrderedQuantity - i.ReceivedQuantity
}

// OrderItemInput describes an item edit. Money fields are minor units of the
// order currency. A nil TaxRate falls back to the order default.
type OrderItemInput struct {
	ID           string
	Description  string
	Quantity     int64
	Unit         string
	UnitPrice    int64
	Discount     int64
	TaxRate      *decimal.Decimal
	SourceItemID string
}

// PurchaseOrder is the binding order issued to the winning supplier.
type PurchaseOrder struct {
	Meta
	QuotationID      string          `json:"quotation_id"`
	SupplierID       string          `json:"supplier_id"`
	SupplierName     string          `json:"supplier_name"`
	Currency         string          `json:"currency"`
	IssueDate        time.Time       `json:"issue_date"`
	Items            []OrderItem     `json:"items"`
	Subtotal         money.Money     `json:"subtotal"`
	TaxTotal         money.Money     `json:"tax_total"`
	Total            money.Money     `json:"total"`
	DefaultTaxRate   decimal.Decimal `json:"default_tax_rate"`
	PaymentTerms     string          `json:"payment_terms,omitempty"`
	LeadTimeDays     int             `json:"lead_time_days"`
	ExpectedDelivery time.Time       `json:"expected_delivery"`
	DeliveryAddress  string          `json:"delivery_address,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Status           OrderStatus     `json:"status"`
	ReceivingIDs     []string        `json:"receiving_ids"`
}

// ConvertOrderInput overrides the defaults derived from the winning responses.
type ConvertOrderInput struct {
	Number          string
	IssueDate       time.Time
	DeliveryAddress string
	PaymentTerms    string
	LeadTimeDays    *int
	TaxRate         *decimal.Decimal
	Notes           string
}

// orderFromQuotation builds a draft order from the winner's lines.
func orderFromQuotation(id string, q *Quotation, lines []WinnerLine, in ConvertOrderInput, defaultRate decimal.Decimal, now time.Time) (*PurchaseOrder, error) {
	supplier, _ := q.Supplier(q.WinningSupplierID)
	rate := defaultRate
	if in.TaxRate != nil {
		rate = *in.TaxRate
	}
	if !ValidTaxRate(rate) {
		return nil, newError(ErrValidation, "tax rate %s%% not allowed", rate.String())
	}
	if in.Number == "" {
		in.Number = "OC-" + q.Number
	}
	if in.IssueDate.IsZero() {
		in.IssueDate = now
	}
	leadTime := 0
	terms := ""
	for _, line := range lines {
		leadTime = max(leadTime, line.Response.LeadTimeDays)
		if terms == "" {
			terms = line.Response.PaymentTerms
		}
	}
	if in.LeadTimeDays != nil {
		if *in.LeadTimeDays < 0 {
			return nil, newError(ErrValidation, "lead time must not be negative")
		}
		leadTime = *in.LeadTimeDays
	}
	po := &PurchaseOrder{
		Meta:            Meta{ID: id, TenantID: q.TenantID, Number: in.Number, CreatedAt: now, UpdatedAt: now},
		QuotationID:     q.ID,
		SupplierID:      supplier.ID,
		SupplierName:    supplier.Name,
		Currency:        q.Currency,
		IssueDate:       in.IssueDate,
		DefaultTaxRate:  rate,
		PaymentTerms:    defaultString(in.PaymentTerms, terms),
		LeadTimeDays:    leadTime,
		DeliveryAddress: in.DeliveryAddress,
		Notes:           in.Notes,
		Status:          OrderDraft,
		ReceivingIDs:    []string{},
	}
	po.ExpectedDelivery = po.IssueDate.AddDate(0, 0, leadTime)
	items := make([]OrderItem, 0, len(lines))
	for _, line := range lines {
		item, err := po.buildItem(OrderItemInput{
			ID:           deterministicID("order-item", id, line.Item.ID),
			Description:  line.Item.Description,
			Quantity:     line.Item.Quantity,
			Unit:         line.Item.Unit,
			UnitPrice:    line.Response.UnitPrice.Amount,
			SourceItemID: line.Item.ID,
		}, nil)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := po.replaceItems(items, now); err != nil {
		return nil, err
	}
	return po, nil
}

func (o *PurchaseOrder) buildItem(in OrderItemInput, ids func() string) (OrderItem, error) {
	if strings.TrimSpace(in.Description) == "" {
		return OrderItem{}, newError(ErrValidation, "item description required")
	}
	if in.Quantity <= 0 {
		return OrderItem{}, newError(ErrValidation, "item quantity must be positive, got %d", in.Quantity)
	}
	if in.UnitPrice < 0 || in.Discount < 0 {
		return OrderItem{}, newError(ErrValidation, "item price and discount must not be negative")
	}
	rate := o.DefaultTaxRate
	if in.TaxRate != nil {
		rate = *in.TaxRate
	}
	if !ValidTaxRate(rate) {
		return OrderItem{}, newError(ErrValidation, "tax rate %s%% not allowed", rate.String())
	}
	id := in.ID
	if id == "" {
		id = ids()
	}
	price := money.New(in.UnitPrice, o.Currency)
	gross, err := price.Multiply(in.Quantity)
	if err != nil {
		return OrderItem{}, newError(ErrValidation, "item %s: %v", id, err)
	}
	if in.Discount > gross.Amount {
		return OrderItem{}, newError(ErrValidation, "discount %d exceeds line value %d", in.Discount, gross.Amount)
	}
	discount := money.New(in.Discount, o.Currency)
	subtotal, err := gross.Sub(discount)
	if err != nil {
		return OrderItem{}, newError(ErrValidation, "item %s: %v", id, err)
	}
	tax, err := subtotal.ApplyPercent(rate)
	if err != nil {
		return OrderItem{}, newError(ErrValidation, "item %s: %v", id, err)
	}
	return OrderItem{
		ID:              id,
		Description:     strings.TrimSpace(in.Description),
		OrderedQuantity: in.Quantity,
		Unit:            defaultString(in.Unit, "un"),
		UnitPrice:       price,
		Discount:        discount,
		TaxRate:         rate,
		Subtotal:        subtotal,
		TaxAmount:       tax,
		SourceItemID:    in.SourceItemID,
	}, nil
}

// replaceItems recomputes every total and only then swaps the item list.
func (o *PurchaseOrder) replaceItems(items []OrderItem, now time.Time) error {
	subtotals := make([]money.Money, len(items))
	taxes := make([]money.Money, len(items))
	for i, item := range items {
		subtotals[i] = item.Subtotal
		taxes[i] = item.TaxAmount
	}
	subtotal, err := money.Sum(o.Currency, subtotals...)
	if err != nil {
		return newError(ErrValidation, "order subtotal: %v", err)
	}
	taxTotal, err := money.Sum(o.Currency, taxes...)
	if err != nil {
		return newError(ErrValidation, "order tax total: %v", err)
	}
	total, err := subtotal.Add(taxTotal)
	if err != nil {
		return newError(ErrValidation, "order total: %v", err)
	}
	o.Items = items
	o.Subtotal = subtotal
	o.TaxTotal = taxTotal
	o.Total = total
	o.UpdatedAt = now
	return nil
}

func (o *PurchaseOrder) editable() error {
	switch o.Status {
	case OrderDraft, OrderSent, OrderConfirmed:
		return nil
	}
	return newError(ErrIllegalTransition, "items are read-only in status %s", o.Status)
}

func (o *PurchaseOrder) itemIndex(id string) int {
	return slices.IndexFunc(o.Items, func(item OrderItem) bool { return item.ID == id })
}

// AddItem appends an item.
func (o *PurchaseOrder) AddItem(in OrderItemInput, ids func() string, now time.Time) (OrderItem, error) {
	if err := o.editable(); err != nil {
		return OrderItem{}, err
	}
	item, err := o.buildItem(in, ids)
	if err != nil {
		return OrderItem{}, err
	}
	if o.itemIndex(item.ID) >= 0 {
		return OrderItem{}, newError(ErrValidation, "duplicate item id %s", item.ID)
	}
	if err := o.replaceItems(append(slices.Clone(o.Items), item), now); err != nil {
		return OrderItem{}, err
	}
	return item, nil
}

// UpdateItem rewrites an item, keeping its receiving counters.
func (o *PurchaseOrder) UpdateItem(in OrderItemInput, now time.Time) error {
	if err := o.editable(); err != nil {
		return err
	}
	idx := o.itemIndex(in.ID)
	if idx < 0 {
		return newError(ErrValidation, "unknown item %s", in.ID)
	}
	current := o.Items[idx]
	if in.TaxRate == nil {
		rate := current.TaxRate
		in.TaxRate = &rate
	}
	if in.SourceItemID == "" {
		in.SourceItemID = current.SourceItemID
	}
	item, err := o.buildItem(in, nil)
	if err != nil {
		return err
	}
	if item.OrderedQuantity < current.ReceivedQuantity {
		return newError(ErrValidation, "quantity %d below received %d", item.OrderedQuantity, current.ReceivedQuantity)
	}
	item.ReceivedQuantity = current.ReceivedQuantity
	item.RejectedQuantity = current.RejectedQuantity
	items := slices.Clone(o.Items)
	items[idx] = item
	return o.replaceItems(items, now)
}

// RemoveItem deletes an item.
func (o *PurchaseOrder) RemoveItem(itemID string, now time.Time) error {
	if err := o.editable(); err != nil {
		return err
	}
	idx := o.itemIndex(itemID)
	if idx < 0 {
		return newError(ErrValidation, "unknown item %s", itemID)
	}
	if o.Items[idx].ReceivedQuantity > 0 {
		return newError(ErrValidation, "item %s already has receipts", itemID)
	}
	return o.replaceItems(slices.Delete(slices.Clone(o.Items), idx, idx+1), now)
}

// Send issues the order to the supplier.
func (o *PurchaseOrder) Send(now time.Time) error {
	next, err := orderTransitions.next(o.Status, ActionSend)
	if err != nil {
		return err
	}
	if len(o.Items) == 0 {
		return newError(ErrValidation, "order has no items")
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// Confirm records the supplier's acceptance.
func (o *PurchaseOrder) Confirm(now time.Time) error {
	return o.transition(ActionConfirm, now)
}

// Close finalises a fully received order.
func (o *PurchaseOrder) Close(now time.Time) error {
	return o.transition(ActionClose, now)
}

// Cancel stops the order from any state before closed.
func (o *PurchaseOrder) Cancel(now time.Time) error {
	return o.transition(ActionCancel, now)
}

func (o *PurchaseOrder) transition(action Action, now time.Time) error {
	next, err := orderTransitions.next(o.Status, action)
	if err != nil {
		return err
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// OutstandingQuantity sums what is still expected across items.
func (o *PurchaseOrder) OutstandingQuantity() int64 {
	var n int64
	for _, item := range o.Items {
		n += item.Outstanding()
	}
	return n
}

// FullyReceived reports whether every item arrived in full.
func (o *PurchaseOrder) FullyReceived() bool {
	for _, item := range o.Items {
		if item.ReceivedQuantity != item.OrderedQuantity {
			return false
		}
	}
	return len(o.Items) > 0
}

// ApplyReceiving adds the accepted quantities of a receiving to the items.
// Every line is checked before anything changes, so an over receipt leaves
// the order untouched. A fully received order still runs the line checks so
// any extra unit fails with ErrOverReceipt.
func (o *PurchaseOrder) ApplyReceiving(receivingID string, lines []ReceivingLine, now time.Time) error {
	if o.Status != OrderReceived && !orderTransitions.allows(o.Status, ActionReceivePartial) {
		return newError(ErrIllegalTransition, "cannot receive in status %s", o.Status)
	}
	if len(lines) == 0 {
		return newError(ErrValidation, "receiving needs at least one line")
	}
	items := slices.Clone(o.Items)
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if seen[line.ItemID] {
			return newError(ErrValidation, "item %s listed twice", line.ItemID)
		}
		seen[line.ItemID] = true
		if line.ReceivedQty < 0 || line.RejectedQty < 0 {
			return newError(ErrValidation, "item %s: quantities must not be negative", line.ItemID)
		}
		idx := slices.IndexFunc(items, func(item OrderItem) bool { return item.ID == line.ItemID })
		if idx < 0 {
			return newError(ErrValidation, "unknown item %s", line.ItemID)
		}
		if line.ReceivedQty > items[idx].Outstanding() {
			return newError(ErrOverReceipt, "item %s: receiving %d exceeds outstanding %d", line.ItemID, line.ReceivedQty, items[idx].Outstanding())
		}
		items[idx].ReceivedQuantity += line.ReceivedQty
		items[idx].RejectedQuantity += line.RejectedQty
	}
	if o.Status == OrderReceived {
		return newError(ErrIllegalTransition, "order already fully received")
	}

	received := false
	for _, item := range items {
		if item.ReceivedQuantity > 0 {
			received = true
			break
		}
	}
	status := o.Status
	after := PurchaseOrder{Items: items}
	switch {
	case after.FullyReceived():
		next, err := orderTransitions.next(o.Status, ActionReceiveFull)
		if err != nil {
			return err
		}
		status = next
	case received:
		next, err := orderTransitions.next(o.Status, ActionReceivePartial)
		if err != nil {
			return err
		}
		status = next
	}
	o.Items = items
	o.Status = status
	o.ReceivingIDs = append(slices.Clone(o.ReceivingIDs), receivingID)
	o.UpdatedAt = now
	return nil
}
