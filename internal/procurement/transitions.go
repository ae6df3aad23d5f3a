package procurement

// Requisition lifecycle statuses.
type RequisitionStatus string

const (
	RequisitionDraft         RequisitionStatus = "draft"
	RequisitionPending       RequisitionStatus = "pending"
	RequisitionUnderApproval RequisitionStatus = "under_approval"
	RequisitionApproved      RequisitionStatus = "approved"
	RequisitionRejected      RequisitionStatus = "rejected"
	RequisitionConverted     RequisitionStatus = "converted"
	RequisitionCancelled     RequisitionStatus = "cancelled"
)

// Quotation lifecycle statuses.
type QuotationStatus string

const (
	QuotationDraft     QuotationStatus = "draft"
	QuotationSent      QuotationStatus = "sent"
	QuotationResponded QuotationStatus = "responded"
	QuotationExpired   QuotationStatus = "expired"
	QuotationCancelled QuotationStatus = "cancelled"
)

// Purchase order lifecycle statuses.
type OrderStatus string

const (
	OrderDraft             OrderStatus = "draft"
	OrderSent              OrderStatus = "sent"
	OrderConfirmed         OrderStatus = "confirmed"
	OrderPartiallyReceived OrderStatus = "partially_received"
	OrderReceived          OrderStatus = "received"
	OrderClosed            OrderStatus = "closed"
	OrderCancelled         OrderStatus = "cancelled"
)

// Action names a transition trigger.
type Action string

const (
	ActionMarkPending    Action = "mark_pending"
	ActionSubmit         Action = "submit"
	ActionApproveLevel   Action = "approve_level"
	ActionApproveFinal   Action = "approve_final"
	ActionReject         Action = "reject"
	ActionConvert        Action = "convert"
	ActionCancel         Action = "cancel"
	ActionSend           Action = "send"
	ActionRespond        Action = "respond"
	ActionExpire         Action = "expire"
	ActionConfirm        Action = "confirm"
	ActionReceivePartial Action = "receive_partial"
	ActionReceiveFull    Action = "receive_full"
	ActionClose          Action = "close"

	// Actions below never change status on their own.
	ActionCreate       Action = "create"
	ActionEditItems    Action = "edit_items"
	ActionDecide       Action = "decide"
	ActionInvite       Action = "invite"
	ActionEvaluate     Action = "evaluate"
	ActionSelectWinner Action = "select_winner"
	ActionReceive      Action = "receive"
	ActionDelete       Action = "delete"
)

type transitionKey[S ~string] struct {
	from   S
	action Action
}

// transitionTable maps (status, action) to the next status. Anything absent is
// illegal.
type transitionTable[S ~string] map[transitionKey[S]]S

func (t transitionTable[S]) next(from S, action Action) (S, error) {
	to, ok := t[transitionKey[S]{from: from, action: action}]
	if !ok {
		return from, newError(ErrIllegalTransition, "cannot %s from %s", action, from)
	}
	return to, nil
}

func (t transitionTable[S]) allows(from S, action Action) bool {
	_, ok := t[transitionKey[S]{from: from, action: action}]
	return ok
}

var requisitionTransitions = transitionTable[RequisitionStatus]{
	{RequisitionDraft, ActionMarkPending}:          RequisitionPending,
	{RequisitionDraft, ActionSubmit}:               RequisitionUnderApproval,
	{RequisitionPending, ActionSubmit}:             RequisitionUnderApproval,
	{RequisitionUnderApproval, ActionApproveLevel}: RequisitionUnderApproval,
	{RequisitionUnderApproval, ActionApproveFinal}: RequisitionApproved,
	{RequisitionUnderApproval, ActionReject}:       RequisitionRejected,
	{RequisitionApproved, ActionConvert}:           RequisitionConverted,
	{RequisitionDraft, ActionCancel}:               RequisitionCancelled,
	{RequisitionPending, ActionCancel}:             RequisitionCancelled,
	{RequisitionUnderApproval, ActionCancel}:       RequisitionCancelled,
}

var quotationTransitions = transitionTable[QuotationStatus]{
	{QuotationDraft, ActionSend}:        QuotationSent,
	{QuotationSent, ActionRespond}:      QuotationResponded,
	{QuotationResponded, ActionRespond}: QuotationResponded,
	{QuotationSent, ActionExpire}:       QuotationExpired,
	{QuotationDraft, ActionCancel}:      QuotationCancelled,
	{QuotationSent, ActionCancel}:       QuotationCancelled,
	{QuotationResponded, ActionCancel}:  QuotationCancelled,
}

var orderTransitions = transitionTable[OrderStatus]{
	{OrderDraft, ActionSend}:                       OrderSent,
	{OrderSent, ActionConfirm}:                     OrderConfirmed,
	{OrderConfirmed, ActionReceivePartial}:         OrderPartiallyReceived,
	{OrderPartiallyReceived, ActionReceivePartial}: OrderPartiallyReceived,
	{OrderConfirmed, ActionReceiveFull}:            OrderReceived,
	{OrderPartiallyReceived, ActionReceiveFull}:    OrderReceived,
	{OrderReceived, ActionClose}:                   OrderClosed,
	{OrderDraft, ActionCancel}:                     OrderCancelled,
	{OrderSent, ActionCancel}:                      OrderCancelled,
	{OrderConfirmed, ActionCancel}:                 OrderCancelled,
	{OrderPartiallyReceived, ActionCancel}:         OrderCancelled,
	{OrderReceived, ActionCancel}:                  OrderCancelled,
}

// Terminal reports whether no further transitions exist.
func (s RequisitionStatus) Terminal() bool {
	switch s {
	case RequisitionRejected, RequisitionConverted, RequisitionCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions exist.
func (s QuotationStatus) Terminal() bool {
	return s == QuotationExpired || s == QuotationCancelled
}

// Terminal reports whether no further transitions exist.
func (s OrderStatus) Terminal() bool {
	return s == OrderClosed || s == OrderCancelled
}
