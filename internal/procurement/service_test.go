package procurement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
	"github.com/odyssey-erp/odyssey-procure/internal/store"
	"github.com/odyssey-erp/odyssey-procure/internal/store/memory"
)

const tenant = "acme"

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Type)
	}
	return out
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.ApprovalLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.ApprovalLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *recordingObserver) ObserveTransition(document, action, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[document+"/"+action+"/"+outcome]++
}

func (o *recordingObserver) count(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcomes[key]
}

type stubLocker struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (l *stubLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	return func() {}, nil
}

type fixture struct {
	svc      *Service
	backend  store.Backend
	clock    *testClock
	events   *recordingPublisher
	audit    *recordingAudit
	metrics  *recordingObserver
	locker   *stubLocker
	settings StaticSettings
}

func newFixture(t *testing.T, backend store.Backend) *fixture {
	t.Helper()
	if backend == nil {
		backend = memory.New()
	}
	f := &fixture{
		backend: backend,
		clock:   newTestClock(),
		events:  &recordingPublisher{},
		audit:   &recordingAudit{},
		metrics: &recordingObserver{},
		locker:  &stubLocker{},
		settings: StaticSettings{
			DefaultCurrency: "BRL",
			TaxRate:         decimal.NewFromInt(16),
		},
	}
	require.NoError(t, f.settings.Validate())
	ids := &sequence{}
	f.svc = NewService(backend, f.settings, Dependencies{
		Locker:    f.locker,
		Events:    f.events,
		Approvals: f.audit,
		Metrics:   f.metrics,
		Clock:     f.clock.Now,
		NewID:     ids.Next,
	})
	return f
}

func (f *fixture) ctx() context.Context {
	ctx := shared.ContextWithTenant(context.Background(), tenant)
	return shared.ContextWithActor(ctx, shared.Actor{ID: "u-42", Name: "Marta"})
}

func (f *fixture) approvedRequisition(t *testing.T, number string) *Requisition {
	t.Helper()
	ctx := f.ctx()
	req, err := f.svc.CreateRequisition(ctx, tenant, CreateRequisitionInput{
		Number:        number,
		RequesterID:   "u-42",
		Department:    "IT",
		Justification: "Laptops for new hires",
		Items:         []RequisitionItemInput{{Description: "Notebook", Quantity: 2, UnitPrice: 22500}},
	})
	require.NoError(t, err)
	_, err = f.svc.SubmitRequisition(ctx, tenant, req.ID)
	require.NoError(t, err)
	for level := 1; level <= 2; level++ {
		req, err = f.svc.RecordApprovalDecision(ctx, tenant, req.ID, DecisionInput{Level: level, Decision: DecisionApproved})
		require.NoError(t, err)
	}
	require.Equal(t, RequisitionApproved, req.Status)
	return req
}

// confirmedOrder drives a requisition all the way to a confirmed order with
// a single item of quantity 2 bought from supplier B.
func (f *fixture) confirmedOrder(t *testing.T, number string) (*Requisition, *Quotation, *PurchaseOrder) {
	t.Helper()
	ctx := f.ctx()
	req := f.approvedRequisition(t, number)
	q, err := f.svc.ConvertRequisitionToQuotation(ctx, tenant, req.ID, CreateQuotationInput{})
	require.NoError(t, err)
	_, err = f.svc.InviteSuppliers(ctx, tenant, q.ID, []SupplierRef{{ID: "A", Name: "Alpha"}, {ID: "B", Name: "Beta"}})
	require.NoError(t, err)
	_, err = f.svc.SendQuotation(ctx, tenant, q.ID)
	require.NoError(t, err)
	itemID := q.Items[0].ID
	_, err = f.svc.RecordSupplierResponse(ctx, tenant, q.ID, "A", ResponseInput{Prices: map[string]int64{itemID: 21000}, LeadTimeDays: 3})
	require.NoError(t, err)
	_, err = f.svc.RecordSupplierResponse(ctx, tenant, q.ID, "B", ResponseInput{Prices: map[string]int64{itemID: 20500}, LeadTimeDays: 5, PaymentTerms: "30 days"})
	require.NoError(t, err)
	best, ok, err := f.svc.BestOfferForItem(ctx, tenant, q.ID, itemID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "B", best.SupplierID)
	q, err = f.svc.SelectWinner(ctx, tenant, q.ID, "B")
	require.NoError(t, err)
	po, err := f.svc.ConvertToPurchaseOrder(ctx, tenant, q.ID, ConvertOrderInput{})
	require.NoError(t, err)
	_, err = f.svc.SendOrder(ctx, tenant, po.ID)
	require.NoError(t, err)
	po, err = f.svc.ConfirmOrder(ctx, tenant, po.ID)
	require.NoError(t, err)
	return req, q, po
}

func TestServiceEndToEndFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx()
	req, q, po := f.confirmedOrder(t, "REQ-1")

	require.Equal(t, "COT-REQ-1", q.Number)
	require.Equal(t, req.ID, q.RequisitionID)
	require.Equal(t, "OC-COT-REQ-1", po.Number)
	require.Equal(t, "B", po.SupplierID)
	require.Equal(t, "30 days", po.PaymentTerms)
	require.EqualValues(t, 41000, po.Subtotal.Amount)
	require.EqualValues(t, 6560, po.TaxTotal.Amount)
	require.EqualValues(t, 47560, po.Total.Amount)
	require.Equal(t, OrderConfirmed, po.Status)

	itemID := po.Items[0].ID
	rec, po, err := f.svc.ApplyReceiving(ctx, tenant, po.ID, ReceivingInput{ID: "rcv-1", Responsible: "Ana", Lines: []ReceivingLine{{ItemID: itemID, ReceivedQty: 1}}})
	require.NoError(t, err)
	require.Equal(t, ReceivingPartial, rec.Status())
	require.Equal(t, OrderPartiallyReceived, po.Status)

	again, sameOrder, err := f.svc.ApplyReceiving(ctx, tenant, po.ID, ReceivingInput{ID: "rcv-1", Responsible: "Ana", Lines: []ReceivingLine{{ItemID: itemID, ReceivedQty: 1}}})
	require.NoError(t, err)
	require.Equal(t, rec.ID, again.ID)
	require.Equal(t, po.Version, sameOrder.Version)
	require.EqualValues(t, 1, sameOrder.Items[0].ReceivedQuantity)

	_, po, err = f.svc.ApplyReceiving(ctx, tenant, po.ID, ReceivingInput{Responsible: "Ana", Lines: []ReceivingLine{{ItemID: itemID, ReceivedQty: 1}}})
	require.NoError(t, err)
	require.Equal(t, OrderReceived, po.Status)
	po, err = f.svc.CloseOrder(ctx, tenant, po.ID)
	require.NoError(t, err)
	require.Equal(t, OrderClosed, po.Status)

	recs, err := f.svc.ListReceivings(ctx, tenant, po.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	trace, err := f.svc.GetLifecycle(ctx, tenant, req.ID)
	require.NoError(t, err)
	require.Equal(t, RequisitionConverted, trace.Requisition.Status)
	require.Len(t, trace.Quotations, 1)
	require.Len(t, trace.Quotations[0].Orders, 1)
	require.Len(t, trace.Quotations[0].Orders[0].Receivings, 2)

	types := f.events.types()
	require.Contains(t, types, EventRequisitionSubmitted)
	require.Contains(t, types, EventRequisitionApproved)
	require.Contains(t, types, EventRequisitionConverted)
	require.Contains(t, types, EventWinnerSelected)
	require.Contains(t, types, EventQuotationConverted)
	require.Contains(t, types, EventOrderReceived)
	require.Contains(t, types, EventOrderClosed)

	require.Len(t, f.audit.logs, 3)
	require.Equal(t, shared.ApprovalSubmit, f.audit.logs[0].Action)
	require.Equal(t, 2, f.audit.logs[2].Level)
	require.Equal(t, "u-42", f.audit.logs[2].ActorID)
	require.Equal(t, shared.ApprovalRefID(tenant, req.ID), f.audit.logs[2].RefID)

	require.Equal(t, 2, f.metrics.count("requisition/decide/ok"))
	require.Equal(t, 1, f.metrics.count("purchase_order/close/ok"))
}

// stallingBackend holds quotation listings until release is closed and
// records the context state each listing saw once let through.
type stallingBackend struct {
	*memory.Backend
	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
	seen    []error
}

func (b *stallingBackend) Collection(kind store.Kind) store.Collection {
	c := b.Backend.Collection(kind)
	b.mu.Lock()
	armed := b.release != nil
	b.mu.Unlock()
	if kind == store.KindQuotation && armed {
		return &stallingCollection{Collection: c, backend: b}
	}
	return c
}

func (b *stallingBackend) arm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entered = make(chan struct{}, 1)
	b.release = make(chan struct{})
}

type stallingCollection struct {
	store.Collection
	backend *stallingBackend
}

func (c *stallingCollection) List(ctx context.Context, tenantID string, filter store.Filter) ([]store.Document, error) {
	select {
	case c.backend.entered <- struct{}{}:
	default:
	}
	<-c.backend.release
	c.backend.mu.Lock()
	c.backend.seen = append(c.backend.seen, ctx.Err())
	c.backend.mu.Unlock()
	return c.Collection.List(ctx, tenantID, filter)
}

func TestLifecycleSharedLoadSurvivesCancelledCaller(t *testing.T) {
	backend := &stallingBackend{Backend: memory.New()}
	f := newFixture(t, backend)
	req := f.approvedRequisition(t, "REQ-1")
	_, err := f.svc.ConvertRequisitionToQuotation(f.ctx(), tenant, req.ID, CreateQuotationInput{})
	require.NoError(t, err)
	backend.arm()

	first, cancel := context.WithCancel(f.ctx())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.GetLifecycle(first, tenant, req.ID)
		firstErr <- err
	}()
	<-backend.entered

	type result struct {
		trace *Lifecycle
		err   error
	}
	second := make(chan result, 1)
	go func() {
		trace, err := f.svc.GetLifecycle(f.ctx(), tenant, req.ID)
		second <- result{trace, err}
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(backend.release)
	res := <-second
	require.NoError(t, res.err)
	require.Equal(t, req.ID, res.trace.Requisition.ID)
	require.Len(t, res.trace.Quotations, 1)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.NotEmpty(t, backend.seen)
	for _, err := range backend.seen {
		require.NoError(t, err)
	}
}

func TestConversionsAreIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx()
	req := f.approvedRequisition(t, "REQ-1")

	first, err := f.svc.Coordinator().Convert(ctx, ConvertRequest{
		TenantID: tenant,
		Source:   DocumentRef{Kind: store.KindRequisition, ID: req.ID},
		Target:   store.KindQuotation,
	})
	require.NoError(t, err)
	second, err := f.svc.ConvertRequisitionToQuotation(ctx, tenant, req.ID, CreateQuotationInput{Number: "ignored"})
	require.NoError(t, err)
	require.Equal(t, first.Quotation.ID, second.ID)
	require.Equal(t, first.Quotation.Number, second.Number)

	quotations, err := f.svc.ListQuotations(ctx, tenant, store.Filter{RefID: req.ID})
	require.NoError(t, err)
	require.Len(t, quotations, 1)

	converted := 0
	for _, typ := range f.events.types() {
		if typ == EventRequisitionConverted {
			converted++
		}
	}
	require.Equal(t, 1, converted)
}

func TestConvertRejectsIllegalJumps(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx()
	req := f.approvedRequisition(t, "REQ-1")

	for _, target := range []store.Kind{store.KindPurchaseOrder, store.KindReceiving, store.KindRequisition} {
		_, err := f.svc.Coordinator().Convert(ctx, ConvertRequest{
			TenantID: tenant,
			Source:   DocumentRef{Kind: store.KindRequisition, ID: req.ID},
			Target:   target,
		})
		require.ErrorIs(t, err, ErrIllegalLifecycleJump, "target %s", target)
	}
	_, err := f.svc.Coordinator().Convert(ctx, ConvertRequest{
		TenantID: tenant,
		Source:   DocumentRef{Kind: store.KindReceiving, ID: "x"},
		Target:   store.KindRequisition,
	})
	require.ErrorIs(t, err, ErrIllegalLifecycleJump)

	pending, err := f.svc.CreateRequisition(ctx, tenant, CreateRequisitionInput{Number: "REQ-2", Items: []RequisitionItemInput{{Description: "Desk", Quantity: 1, UnitPrice: 100}}})
	require.NoError(t, err)
	_, err = f.svc.ConvertRequisitionToQuotation(ctx, tenant, pending.ID, CreateQuotationInput{})
	require.ErrorIs(t, err, ErrIllegalTransition)
	_, err = f.svc.CreateQuotation(ctx, tenant, CreateQuotationInput{
		Number:        "COT-X",
		RequisitionID: pending.ID,
		ValidUntil:    f.clock.Now().AddDate(0, 0, 5),
		Items:         []QuotationItemInput{{Description: "Desk", Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrIllegalLifecycleJump)

	quotations, err := f.svc.ListQuotations(ctx, tenant, store.Filter{})
	require.NoError(t, err)
	require.Empty(t, quotations)
}

// splitBackend applies every write immediately, so a failure midway through
// a conversion leaves the target stored while the source is not updated.
type splitBackend struct {
	*memory.Backend
	mu       sync.Mutex
	failKind store.Kind
	failures int
}

func (b *splitBackend) Collection(kind store.Kind) store.Collection {
	c := b.Backend.Collection(kind)
	if kind == b.failKind {
		return &failingCollection{Collection: c, backend: b}
	}
	return c
}

func (b *splitBackend) WithTx(ctx context.Context, fn func(context.Context, store.Backend) error) error {
	return fn(ctx, b)
}

func (b *splitBackend) fail(kind store.Kind, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failKind = kind
	b.failures = n
}

type failingCollection struct {
	store.Collection
	backend *splitBackend
}

func (c *failingCollection) Put(ctx context.Context, tenantID string, doc store.Document, expectedVersion int64) (store.Document, error) {
	c.backend.mu.Lock()
	fail := expectedVersion > 0 && c.backend.failures > 0
	if fail {
		c.backend.failures--
	}
	c.backend.mu.Unlock()
	if fail {
		return store.Document{}, store.ErrTimeout
	}
	return c.Collection.Put(ctx, tenantID, doc, expectedVersion)
}

func TestRetryAfterFailedSourceCommitReusesTarget(t *testing.T) {
	backend := &splitBackend{Backend: memory.New()}
	f := newFixture(t, backend)
	ctx := f.ctx()
	req := f.approvedRequisition(t, "REQ-1")

	backend.fail(store.KindRequisition, 1)
	_, err := f.svc.ConvertRequisitionToQuotation(ctx, tenant, req.ID, CreateQuotationInput{})
	require.ErrorIs(t, err, ErrConcurrentModification)

	stored, err := f.svc.GetRequisition(ctx, tenant, req.ID)
	require.NoError(t, err)
	require.False(t, stored.Converted)
	orphans, err := f.svc.ListQuotations(ctx, tenant, store.Filter{RefID: req.ID})
	require.NoError(t, err)
	require.Len(t, orphans, 1)

	q, err := f.svc.ConvertRequisitionToQuotation(ctx, tenant, req.ID, CreateQuotationInput{})
	require.NoError(t, err)
	require.Equal(t, orphans[0].ID, q.ID)

	stored, err = f.svc.GetRequisition(ctx, tenant, req.ID)
	require.NoError(t, err)
	require.True(t, stored.Converted)
	require.Equal(t, q.ID, stored.QuotationID)
	all, err := f.svc.ListQuotations(ctx, tenant, store.Filter{RefID: req.ID})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

// racingBackend runs hook after the transaction body and before the commit.
type racingBackend struct {
	*memory.Backend
	hook func()
}

func (b *racingBackend) WithTx(ctx context.Context, fn func(context.Context, store.Backend) error) error {
	return b.Backend.WithTx(ctx, func(ctx context.Context, tx store.Backend) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if hook := b.hook; hook != nil {
			b.hook = nil
			hook()
		}
		return nil
	})
}

func TestConcurrentWriterSurfacesAsConcurrentModification(t *testing.T) {
	backend := &racingBackend{Backend: memory.New()}
	f := newFixture(t, backend)
	ctx := f.ctx()
	req, err := f.svc.CreateRequisition(ctx, tenant, CreateRequisitionInput{Number: "REQ-1", Items: []RequisitionItemInput{{Description: "Desk", Quantity: 1, UnitPrice: 100}}})
	require.NoError(t, err)

	other := NewService(backend.Backend, f.settings, Dependencies{Clock: f.clock.Now})
	backend.hook = func() {
		_, err := other.AddRequisitionItem(ctx, tenant, req.ID, RequisitionItemInput{Description: "Chair", Quantity: 1, UnitPrice: 50})
		require.NoError(t, err)
	}
	_, err = f.svc.AddRequisitionItem(ctx, tenant, req.ID, RequisitionItemInput{Description: "Lamp", Quantity: 1, UnitPrice: 30})
	require.ErrorIs(t, err, ErrConcurrentModification)

	stored, err := f.svc.GetRequisition(ctx, tenant, req.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	require.Equal(t, "Chair", stored.Items[1].Description)
	require.EqualValues(t, 150, stored.TotalValue.Amount)
	require.Equal(t, 1, f.metrics.count("requisition/edit_items/concurrent_modification"))
}

func TestStaleVersionIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx()
	req, err := f.svc.CreateRequisition(ctx, tenant, CreateRequisitionInput{Number: "REQ-1", Items: []RequisitionItemInput{{Description: "Desk", Quantity: 1, UnitPrice: 100}}})
	require.NoError(t, err)
	stale := *req
	_, err = f.svc.MarkRequisitionPending(ctx, tenant, req.ID)
	require.ErrorIs(t, err, ErrIllegalTransition)
	_, err = f.svc.AddRequisitionItem(ctx, tenant, req.ID, RequisitionItemInput{Description: "Chair", Quantity: 1, UnitPrice: 50})
	require.NoError(t, err)

	require.NoError(t, stale.Cancel("no budget", f.clock.Now()))
	err = save(ctx, f.backend, &stale, stale.Version)
	require.ErrorIs(t, err, ErrConcurrentModification)

	stored, err := f.svc.GetRequisition(ctx, tenant, req.ID)
	require.NoError(t, err)
	require.Equal(t, RequisitionPending, stored.Status)
}

func TestHeldLockIsConcurrentModification(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx()
	req, err := f.svc.CreateRequisition(ctx, tenant, CreateRequisitionInput{Number: "REQ-1", Justification: "Office", Items: []RequisitionItemInput{{Description: "Desk", Quantity: 1, UnitPrice: 100}}})
	require.NoError(t, err)

	_, err = f.svc.SubmitRequisition(ctx, tenant, req.ID)
	require.NoError(t, err)
	require.Equal(t, []string{shared.DocumentLockKey(tenant, string(store.KindRequisition), req.ID)}, f.locker.keys)

	f.locker.err = shared.ErrLockHeld
	_, err = f.svc.CancelRequisition(ctx, tenant, req.ID, "dup")
	require.ErrorIs(t, err, ErrConcurrentModification)

	f.locker.err = errors.New("redis: connection refused")
	_, err = f.svc.CancelRequisition(ctx, tenant, req.ID, "no budget")
	require.NoError(t, err)
}

func TestFailedReceivingPersistsNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx()
	_, _, po := f.confirmedOrder(t, "REQ-1")
	before := len(f.events.events)

	_, _, err := f.svc.ApplyReceiving(ctx, tenant, po.ID, ReceivingInput{Responsible: "Ana", Lines: []ReceivingLine{{ItemID: po.Items[0].ID, ReceivedQty: 3}}})
	require.ErrorIs(t, err, ErrOverReceipt)
	_, _, err = f.svc.ApplyReceiving(ctx, tenant, po.ID, ReceivingInput{Lines: []ReceivingLine{{ItemID: po.Items[0].ID, ReceivedQty: 1}}})
	require.ErrorIs(t, err, ErrValidation)

	recs, err := f.svc.ListReceivings(ctx, tenant, po.ID)
	require.NoError(t, err)
	require.Empty(t, recs)
	stored, err := f.svc.GetOrder(ctx, tenant, po.ID)
	require.NoError(t, err)
	require.Equal(t, po.Version, stored.Version)
	require.Equal(t, OrderConfirmed, stored.Status)
	require.Len(t, f.events.events, before)
}

func TestReceivingBeyondFullyReceivedOrderIsOverReceipt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx()
	_, _, po := f.confirmedOrder(t, "REQ-1")
	itemID := po.Items[0].ID

	_, received, err := f.svc.ApplyReceiving(ctx, tenant, po.ID, ReceivingInput{Responsible: "Ana", Lines: []ReceivingLine{{ItemID: itemID, ReceivedQty: 2}}})
	require.NoError(t, err)
	require.Equal(t, OrderReceived, received.Status)

	_, _, err = f.svc.ApplyReceiving(ctx, tenant, po.ID, ReceivingInput{Responsible: "Ana", Lines: []ReceivingLine{{ItemID: itemID, ReceivedQty: 1}}})
	require.ErrorIs(t, err, ErrOverReceipt)

	recs, err := f.svc.ListReceivings(ctx, tenant, po.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	stored, err := f.svc.GetOrder(ctx, tenant, po.ID)
	require.NoError(t, err)
	require.Equal(t, received.Version, stored.Version)
}

func TestReceivingDivergencePublishesEvent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx()
	_, _, po := f.confirmedOrder(t, "REQ-1")
	rec, _, err := f.svc.ApplyReceiving(ctx, tenant, po.ID, ReceivingInput{Responsible: "Ana", Lines: []ReceivingLine{{ItemID: po.Items[0].ID, ReceivedQty: 1, RejectedQty: 1}}})
	require.NoError(t, err)
	require.Equal(t, ReceivingDivergence, rec.Status())
	require.Contains(t, f.events.types(), EventReceivingDivergence)

	stored, err := f.svc.GetReceiving(ctx, tenant, rec.ID)
	require.NoError(t, err)
	require.Equal(t, ReceivingDivergence, stored.Status())
}

func TestDeleteKeepsUpstreamDocuments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx()
	req := f.approvedRequisition(t, "REQ-1")
	q, err := f.svc.CreateQuotation(ctx, tenant, CreateQuotationInput{
		Number:        "COT-EXTRA",
		RequisitionID: req.ID,
		ValidUntil:    f.clock.Now().AddDate(0, 0, 5),
		Items:         []QuotationItemInput{{Description: "Notebook", Quantity: 2}},
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteQuotation(ctx, tenant, q.ID))

	_, err = f.svc.GetQuotation(ctx, tenant, q.ID)
	require.ErrorIs(t, err, ErrNotFound)
	stored, err := f.svc.GetRequisition(ctx, tenant, req.ID)
	require.NoError(t, err)
	require.Equal(t, req.Version, stored.Version)
	require.Equal(t, RequisitionApproved, stored.Status)

	require.ErrorIs(t, f.svc.DeleteRequisition(ctx, tenant, req.ID), ErrIllegalTransition)
	converted, err := f.svc.ConvertRequisitionToQuotation(ctx, tenant, req.ID, CreateQuotationInput{})
	require.NoError(t, err)
	_, err = f.svc.SendQuotation(ctx, tenant, converted.ID)
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, f.svc.DeleteQuotation(ctx, tenant, converted.ID), ErrIllegalTransition)
	stored, err = f.svc.GetRequisition(ctx, tenant, req.ID)
	require.NoError(t, err)
	require.Equal(t, RequisitionConverted, stored.Status)

	again, err := f.svc.ConvertRequisitionToQuotation(ctx, tenant, req.ID, CreateQuotationInput{})
	require.NoError(t, err)
	require.Equal(t, converted.ID, again.ID)

	_, err = f.svc.CancelQuotation(ctx, tenant, converted.ID)
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.DeleteQuotation(ctx, tenant, converted.ID), ErrIllegalTransition)
}

func TestTenantIsolationAndValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx()
	req, err := f.svc.CreateRequisition(ctx, tenant, CreateRequisitionInput{Number: "REQ-1", Items: []RequisitionItemInput{{Description: "Desk", Quantity: 1, UnitPrice: 100}}})
	require.NoError(t, err)

	_, err = f.svc.GetRequisition(ctx, "globex", req.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.CreateRequisition(ctx, "", CreateRequisitionInput{Number: "REQ-2"})
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.CreateRequisition(ctx, tenant, CreateRequisitionInput{Number: "REQ-1"})
	require.ErrorIs(t, err, ErrValidation)

	other, err := f.svc.CreateRequisition(ctx, "globex", CreateRequisitionInput{Number: "REQ-1"})
	require.NoError(t, err)
	require.NotEqual(t, req.ID, other.ID)

	list, err := f.svc.ListRequisitions(ctx, tenant, store.Filter{Status: string(RequisitionPending)})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := f.ctx()
	f.events.err = errors.New("broker down")
	req := f.approvedRequisition(t, "REQ-1")
	stored, err := f.svc.GetRequisition(ctx, tenant, req.ID)
	require.NoError(t, err)
	require.Equal(t, RequisitionApproved, stored.Status)
}
