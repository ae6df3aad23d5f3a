package procurement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/money"
)

func buildRequisition(t *testing.T, items ...RequisitionItemInput) *Requisition {
	t.Helper()
	ids := &sequence{}
	req, err := newRequisition("req-1", "acme", CreateRequisitionInput{
		Number:        "REQ-2024-001",
		RequesterID:   "u1",
		Department:    "IT",
		Justification: "Replace broken laptops",
		Items:         items,
	}, "BRL", ids.Next, newTestClock().Now())
	require.NoError(t, err)
	return req
}

func sumSubtotals(t *testing.T, req *Requisition) money.Money {
	t.Helper()
	var amounts []money.Money
	for _, item := range req.Items {
		expected, err := item.UnitPrice.Multiply(item.Quantity)
		require.NoError(t, err)
		require.Equal(t, expected, item.Subtotal)
		amounts = append(amounts, expected)
	}
	total, err := money.Sum(req.Currency, amounts...)
	require.NoError(t, err)
	return total
}

func TestRequisitionScenarioTwoLevelApproval(t *testing.T) {
	now := newTestClock().Now()
	req := buildRequisition(t, RequisitionItemInput{Description: "Notebook", Quantity: 2, UnitPrice: 22500})
	require.Equal(t, RequisitionPending, req.Status)
	require.EqualValues(t, 45000, req.TotalValue.Amount)

	require.NoError(t, req.Submit(DefaultApprovalPolicy(), now))
	require.Equal(t, RequisitionUnderApproval, req.Status)
	require.Len(t, req.Approvals, 2)

	changed, err := req.RecordApprovalDecision(DecisionInput{Level: 1, Decision: DecisionApproved}, now)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, RequisitionUnderApproval, req.Status)
	_, err = req.RecordApprovalDecision(DecisionInput{Level: 2, Decision: DecisionApproved}, now)
	require.NoError(t, err)
	require.Equal(t, RequisitionApproved, req.Status)

	snapshot, changed, err := req.ConvertToQuotation("q-1", now)
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, req.Converted)
	require.Equal(t, RequisitionConverted, req.Status)
	require.Len(t, snapshot, 1)

	again, changed, err := req.ConvertToQuotation("q-other", now)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, snapshot, again)
	require.Equal(t, "q-1", req.QuotationID)
}

func TestRequisitionTotalTracksEveryEdit(t *testing.T) {
	now := newTestClock().Now()
	ids := &sequence{}
	req := buildRequisition(t,
		RequisitionItemInput{ID: "a", Description: "Chair", Quantity: 3, UnitPrice: 15000},
		RequisitionItemInput{ID: "b", Description: "Desk", Quantity: 1, UnitPrice: 99990},
	)
	require.Equal(t, sumSubtotals(t, req), req.TotalValue)

	_, err := req.AddItem(RequisitionItemInput{Description: "Lamp", Quantity: 4, UnitPrice: 2575}, ids.Next, now)
	require.NoError(t, err)
	require.Equal(t, sumSubtotals(t, req), req.TotalValue)

	require.NoError(t, req.UpdateItem(RequisitionItemInput{ID: "a", Description: "Chair", Quantity: 5, UnitPrice: 14000}, now))
	require.Equal(t, sumSubtotals(t, req), req.TotalValue)

	require.NoError(t, req.RemoveItem("b", now))
	require.Equal(t, sumSubtotals(t, req), req.TotalValue)
	require.EqualValues(t, 5*14000+4*2575, req.TotalValue.Amount)

	require.NoError(t, req.SetItems(nil, ids.Next, now))
	require.True(t, req.TotalValue.IsZero())
}

func TestRequisitionRejectsInvalidItemsWithoutChange(t *testing.T) {
	now := newTestClock().Now()
	ids := &sequence{}
	req := buildRequisition(t, RequisitionItemInput{ID: "a", Description: "Chair", Quantity: 1, UnitPrice: 100})
	before := req.TotalValue

	_, err := req.AddItem(RequisitionItemInput{Description: "Bad", Quantity: 0, UnitPrice: 10}, ids.Next, now)
	require.ErrorIs(t, err, ErrValidation)
	_, err = req.AddItem(RequisitionItemInput{Description: "Bad", Quantity: 1, UnitPrice: -1}, ids.Next, now)
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, req.UpdateItem(RequisitionItemInput{ID: "missing", Quantity: 1}, now), ErrValidation)

	// Overflowing total aborts the edit and keeps the previous total.
	huge := int64(1) << 62
	_, err = req.AddItem(RequisitionItemInput{Description: "Huge", Quantity: 1, UnitPrice: huge}, ids.Next, now)
	require.NoError(t, err)
	_, err = req.AddItem(RequisitionItemInput{Description: "Huge", Quantity: 1, UnitPrice: huge}, ids.Next, now)
	require.ErrorIs(t, err, ErrValidation)
	require.Len(t, req.Items, 2)
	require.NotEqual(t, before, req.TotalValue)
	require.Equal(t, sumSubtotals(t, req), req.TotalValue)
}

func TestRequisitionSubmitValidation(t *testing.T) {
	now := newTestClock().Now()
	empty := buildRequisition(t)
	require.ErrorIs(t, empty.Submit(DefaultApprovalPolicy(), now), ErrValidation)
	require.Equal(t, RequisitionPending, empty.Status)

	noDesc := buildRequisition(t, RequisitionItemInput{Quantity: 1, UnitPrice: 10})
	require.ErrorIs(t, noDesc.Submit(DefaultApprovalPolicy(), now), ErrValidation)

	noJustification := buildRequisition(t, RequisitionItemInput{Description: "Pen", Quantity: 1, UnitPrice: 10})
	noJustification.Justification = ""
	require.ErrorIs(t, noJustification.Submit(DefaultApprovalPolicy(), now), ErrValidation)
}

func TestRequisitionRejectionIsFinal(t *testing.T) {
	now := newTestClock().Now()
	req := buildRequisition(t, RequisitionItemInput{Description: "Pen", Quantity: 10, UnitPrice: 150})
	require.NoError(t, req.Submit(DefaultApprovalPolicy(), now))

	_, err := req.RecordApprovalDecision(DecisionInput{Level: 2, Decision: DecisionApproved}, now)
	require.ErrorIs(t, err, ErrOutOfOrderApproval)

	changed, err := req.RecordApprovalDecision(DecisionInput{Level: 1, Decision: DecisionRejected, Comment: "no budget"}, now)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, RequisitionRejected, req.Status)
	require.Equal(t, DecisionSkipped, req.Approvals[1].Decision)

	snapshot := *req
	changed, err = req.RecordApprovalDecision(DecisionInput{Level: 2, Decision: DecisionApproved}, now.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, snapshot.Approvals, req.Approvals)
	require.Equal(t, RequisitionRejected, req.Status)

	require.ErrorIs(t, req.Cancel("late", now), ErrIllegalTransition)
	_, _, err = req.ConvertToQuotation("q", now)
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestRequisitionTransitionsGuarded(t *testing.T) {
	now := newTestClock().Now()
	req := buildRequisition(t, RequisitionItemInput{Description: "Pen", Quantity: 1, UnitPrice: 150})

	_, err := req.RecordApprovalDecision(DecisionInput{Level: 1, Decision: DecisionApproved}, now)
	require.ErrorIs(t, err, ErrIllegalTransition)
	_, _, err = req.ConvertToQuotation("q", now)
	require.ErrorIs(t, err, ErrIllegalTransition)
	require.ErrorIs(t, req.MarkPending(now), ErrIllegalTransition)

	require.NoError(t, req.Submit(DefaultApprovalPolicy(), now))
	require.ErrorIs(t, req.SetItems(nil, (&sequence{}).Next, now), ErrIllegalTransition)
	for _, lvl := range []int{1, 2} {
		_, err := req.RecordApprovalDecision(DecisionInput{Level: lvl, Decision: DecisionApproved}, now)
		require.NoError(t, err)
	}
	require.ErrorIs(t, req.Cancel("changed mind", now), ErrIllegalTransition)
	require.ErrorIs(t, req.Submit(DefaultApprovalPolicy(), now), ErrIllegalTransition)
}

func TestRequisitionDraftFlow(t *testing.T) {
	now := newTestClock().Now()
	ids := &sequence{}
	req, err := newRequisition("r", "acme", CreateRequisitionInput{Number: "REQ-9", Draft: true, Priority: PriorityUrgent}, "usd", ids.Next, now)
	require.NoError(t, err)
	require.Equal(t, RequisitionDraft, req.Status)
	require.Equal(t, "USD", req.Currency)
	require.NoError(t, req.MarkPending(now))
	require.NoError(t, req.Cancel("duplicate", now))
	require.Equal(t, RequisitionCancelled, req.Status)
	require.ErrorIs(t, req.SetItems(nil, ids.Next, now), ErrIllegalTransition)

	_, err = newRequisition("r", "acme", CreateRequisitionInput{Number: "REQ-9", Priority: "whenever"}, "USD", ids.Next, now)
	require.ErrorIs(t, err, ErrValidation)
	_, err = newRequisition("r", "acme", CreateRequisitionInput{}, "USD", ids.Next, now)
	require.ErrorIs(t, err, ErrValidation)
	_, err = newRequisition("r", "acme", CreateRequisitionInput{Number: "X", Currency: "ZZZ"}, "USD", ids.Next, now)
	require.ErrorIs(t, err, ErrValidation)
}
