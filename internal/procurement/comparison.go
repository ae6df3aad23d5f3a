package procurement

import (
	"cmp"
	"slices"
	"strings"

	"github.com/odyssey-erp/odyssey-procure/internal/money"
)

// ItemComparison lists every offer for an item in canonical order.
type ItemComparison struct {
	ItemID      string             `json:"item_id"`
	Description string             `json:"description"`
	Quantity    int64              `json:"quantity"`
	Best        *SupplierResponse  `json:"best,omitempty"`
	Offers      []SupplierResponse `json:"offers"`
}

// SupplierSummary aggregates one supplier's answers.
type SupplierSummary struct {
	SupplierID      string         `json:"supplier_id"`
	SupplierName    string         `json:"supplier_name"`
	Status          SupplierStatus `json:"status"`
	ItemsQuoted     int            `json:"items_quoted"`
	BestOffers      int            `json:"best_offers"`
	Total           money.Money    `json:"total"`
	MaxLeadTimeDays int            `json:"max_lead_time_days"`
}

// QuotationComparison is the side-by-side view used to pick a winner.
type QuotationComparison struct {
	QuotationID       string            `json:"quotation_id"`
	Number            string            `json:"number"`
	Status            QuotationStatus   `json:"status"`
	WinningSupplierID string            `json:"winning_supplier_id,omitempty"`
	Items             []ItemComparison  `json:"items"`
	Suppliers         []SupplierSummary `json:"suppliers"`
}

// Compare builds the comparison report. Suppliers covering more items rank
// first, then the lower total, then the supplier id.
func (q *Quotation) Compare() (QuotationComparison, error) {
	report := QuotationComparison{
		QuotationID:       q.ID,
		Number:            q.Number,
		Status:            q.Status,
		WinningSupplierID: q.WinningSupplierID,
	}
	summaries := make(map[string]*SupplierSummary, len(q.Suppliers))
	subtotals := make(map[string][]money.Money, len(q.Suppliers))
	for _, s := range q.Suppliers {
		summaries[s.ID] = &SupplierSummary{SupplierID: s.ID, SupplierName: s.Name, Status: s.Status}
	}
	for _, item := range q.Items {
		cmpItem := ItemComparison{
			ItemID:      item.ID,
			Description: item.Description,
			Quantity:    item.Quantity,
			Offers:      rankOffers(item.Responses),
		}
		if len(cmpItem.Offers) > 0 {
			best := cmpItem.Offers[0]
			cmpItem.Best = &best
			if sum, ok := summaries[best.SupplierID]; ok {
				sum.BestOffers++
			}
		}
		for _, resp := range item.Responses {
			sum, ok := summaries[resp.SupplierID]
			if !ok {
				continue
			}
			sum.ItemsQuoted++
			sum.MaxLeadTimeDays = max(sum.MaxLeadTimeDays, resp.LeadTimeDays)
			subtotals[resp.SupplierID] = append(subtotals[resp.SupplierID], resp.Subtotal)
		}
		report.Items = append(report.Items, cmpItem)
	}
	for _, s := range q.Suppliers {
		sum := summaries[s.ID]
		total, err := money.Sum(q.Currency, subtotals[s.ID]...)
		if err != nil {
			return QuotationComparison{}, newError(ErrValidation, "supplier %s total: %v", s.ID, err)
		}
		sum.Total = total
		report.Suppliers = append(report.Suppliers, *sum)
	}
	slices.SortStableFunc(report.Suppliers, func(a, b SupplierSummary) int {
		if c := cmp.Compare(b.ItemsQuoted, a.ItemsQuoted); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Total.Amount, b.Total.Amount); c != 0 {
			return c
		}
		return strings.Compare(a.SupplierID, b.SupplierID)
	})
	return report, nil
}
