package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
	"github.com/odyssey-erp/odyssey-procure/internal/store"
)

// Handler exposes the procurement service as a JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(requireTenantHeader)

	r.Route("/requisitions", func(r chi.Router) {
		r.Post("/", h.createRequisition)
		r.Get("/", h.listRequisitions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getRequisition)
			r.Delete("/", h.deleteRequisition)
			r.Put("/items", h.replaceRequisitionItems)
			r.Post("/items", h.addRequisitionItem)
			r.Delete("/items/{itemID}", h.removeRequisitionItem)
			r.Post("/pending", h.markRequisitionPending)
			r.Post("/submit", h.submitRequisition)
			r.Post("/decisions", h.decideRequisition)
			r.Post("/cancel", h.cancelRequisition)
			r.Post("/convert", h.convertRequisition)
			r.Get("/lifecycle", h.getLifecycle)
		})
	})

	r.Route("/quotations", func(r chi.Router) {
		r.Post("/", h.createQuotation)
		r.Get("/", h.listQuotations)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getQuotation)
			r.Delete("/", h.deleteQuotation)
			r.Post("/suppliers", h.inviteSuppliers)
			r.Post("/send", h.sendQuotation)
			r.Post("/responses", h.recordResponse)
			r.Post("/evaluate", h.evaluateQuotation)
			r.Get("/items/{itemID}/best-offer", h.bestOffer)
			r.Get("/comparison", h.compareQuotation)
			r.Post("/winner", h.selectWinner)
			r.Post("/cancel", h.cancelQuotation)
			r.Post("/convert", h.convertQuotation)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Post("/items", h.addOrderItem)
			r.Put("/items/{itemID}", h.updateOrderItem)
			r.Delete("/items/{itemID}", h.removeOrderItem)
			r.Post("/send", h.orderAction(h.service.SendOrder))
			r.Post("/confirm", h.orderAction(h.service.ConfirmOrder))
			r.Post("/close", h.orderAction(h.service.CloseOrder))
			r.Post("/cancel", h.orderAction(h.service.CancelOrder))
			r.Post("/receivings", h.recordReceiving)
			r.Get("/receivings", h.listReceivings)
		})
	})

	r.Get("/receivings/{id}", h.getReceiving)
	r.Post("/conversions", h.convert)
}

func requireTenantHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.TenantFromContext(r.Context()) == "" {
			httpx.RespondError(w, httpx.ErrMissingTenant, "missing_tenant")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type itemPayload struct {
	ID          string `json:"id"`
	Description string `json:"description" validate:"required"`
	Quantity    int64  `json:"quantity" validate:"gt=0"`
	UnitPrice   int64  `json:"unit_price" validate:"gte=0"`
	Note        string `json:"note"`
}

func (p itemPayload) input() RequisitionItemInput {
	return RequisitionItemInput{ID: p.ID, Description: p.Description, Quantity: p.Quantity, UnitPrice: p.UnitPrice, Note: p.Note}
}

type createRequisitionRequest struct {
	Number        string        `json:"number" validate:"required,max=64"`
	RequesterID   string        `json:"requester_id"`
	RequesterName string        `json:"requester_name"`
	Department    string        `json:"department"`
	Priority      string        `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Justification string        `json:"justification"`
	DesiredDate   time.Time     `json:"desired_date"`
	Currency      string        `json:"currency" validate:"omitempty,len=3"`
	Draft         bool          `json:"draft"`
	Items         []itemPayload `json:"items" validate:"dive"`
}

type itemsRequest struct {
	Items []itemPayload `json:"items" validate:"dive"`
}

type decisionRequest struct {
	Level    int    `json:"level" validate:"gte=1"`
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Comment  string `json:"comment"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type quotationItemPayload struct {
	ID            string `json:"id"`
	Description   string `json:"description" validate:"required"`
	Quantity      int64  `json:"quantity" validate:"gt=0"`
	Unit          string `json:"unit"`
	Specification string `json:"specification"`
}

type supplierPayload struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
}

func suppliersInput(in []supplierPayload) []SupplierRef {
	out := make([]SupplierRef, 0, len(in))
	for _, s := range in {
		out = append(out, SupplierRef{ID: s.ID, Name: s.Name, Email: s.Email})
	}
	return out
}

type quotationRequest struct {
	Number        string                 `json:"number"`
	RequisitionID string                 `json:"requisition_id"`
	Currency      string                 `json:"currency" validate:"omitempty,len=3"`
	IssueDate     time.Time              `json:"issue_date"`
	ValidUntil    time.Time              `json:"valid_until"`
	Observations  string                 `json:"observations"`
	Items         []quotationItemPayload `json:"items" validate:"dive"`
	Suppliers     []supplierPayload      `json:"suppliers" validate:"dive"`
}

func (p quotationRequest) input() CreateQuotationInput {
	in := CreateQuotationInput{
		Number:        p.Number,
		RequisitionID: p.RequisitionID,
		Currency:      p.Currency,
		IssueDate:     p.IssueDate,
		ValidUntil:    p.ValidUntil,
		Observations:  p.Observations,
		Suppliers:     suppliersInput(p.Suppliers),
	}
	for _, item := range p.Items {
		in.Items = append(in.Items, QuotationItemInput{
			ID:            item.ID,
			Description:   item.Description,
			Quantity:      item.Quantity,
			Unit:          item.Unit,
			Specification: item.Specification,
		})
	}
	return in
}

type inviteRequest struct {
	Suppliers []supplierPayload `json:"suppliers" validate:"required,min=1,dive"`
}

type responseRequest struct {
	SupplierID   string           `json:"supplier_id" validate:"required"`
	Prices       map[string]int64 `json:"prices" validate:"required,min=1"`
	LeadTimeDays int              `json:"lead_time_days" validate:"gte=0"`
	PaymentTerms string           `json:"payment_terms"`
	Brand        string           `json:"brand"`
	Notes        string           `json:"notes"`
}

type winnerRequest struct {
	SupplierID string `json:"supplier_id" validate:"required"`
}

type convertOrderRequest struct {
	Number          string           `json:"number"`
	IssueDate       time.Time        `json:"issue_date"`
	DeliveryAddress string           `json:"delivery_address"`
	PaymentTerms    string           `json:"payment_terms"`
	LeadTimeDays    *int             `json:"lead_time_days" validate:"omitempty,gte=0"`
	TaxRate         *decimal.Decimal `json:"tax_rate"`
	Notes           string           `json:"notes"`
}

func (p convertOrderRequest) input() ConvertOrderInput {
	return ConvertOrderInput{
		Number:          p.Number,
		IssueDate:       p.IssueDate,
		DeliveryAddress: p.DeliveryAddress,
		PaymentTerms:    p.PaymentTerms,
		LeadTimeDays:    p.LeadTimeDays,
		TaxRate:         p.TaxRate,
		Notes:           p.Notes,
	}
}

type orderItemRequest struct {
	ID          string           `json:"id"`
	Description string           `json:"description" validate:"required"`
	Quantity    int64            `json:"quantity" validate:"gt=0"`
	Unit        string           `json:"unit"`
	UnitPrice   int64            `json:"unit_price" validate:"gte=0"`
	Discount    int64            `json:"discount" validate:"gte=0"`
	TaxRate     *decimal.Decimal `json:"tax_rate"`
}

func (p orderItemRequest) input() OrderItemInput {
	return OrderItemInput{
		ID:          p.ID,
		Description: p.Description,
		Quantity:    p.Quantity,
		Unit:        p.Unit,
		UnitPrice:   p.UnitPrice,
		Discount:    p.Discount,
		TaxRate:     p.TaxRate,
	}
}

type receivingRequest struct {
	ID          string          `json:"id"`
	Number      string          `json:"number"`
	Date        time.Time       `json:"date"`
	Responsible string          `json:"responsible" validate:"required"`
	Notes       string          `json:"notes"`
	Lines       []ReceivingLine `json:"lines" validate:"required,min=1"`
}

func (p receivingRequest) input() ReceivingInput {
	return ReceivingInput{ID: p.ID, Number: p.Number, Date: p.Date, Responsible: p.Responsible, Lines: p.Lines, Notes: p.Notes}
}

type conversionRequest struct {
	SourceKind string              `json:"source_kind" validate:"required"`
	SourceID   string              `json:"source_id" validate:"required"`
	Target     string              `json:"target" validate:"required"`
	Quotation  quotationRequest    `json:"quotation" validate:"-"`
	Order      convertOrderRequest `json:"order" validate:"-"`
	Receiving  receivingRequest    `json:"receiving" validate:"-"`
}

func (h *Handler) createRequisition(w http.ResponseWriter, r *http.Request) {
	var req createRequisitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := CreateRequisitionInput{
		Number:        req.Number,
		RequesterID:   req.RequesterID,
		RequesterName: req.RequesterName,
		Department:    req.Department,
		Priority:      Priority(req.Priority),
		Justification: req.Justification,
		DesiredDate:   req.DesiredDate,
		Currency:      req.Currency,
		Draft:         req.Draft,
	}
	if in.RequesterID == "" {
		actor := shared.ActorFromContext(r.Context())
		in.RequesterID, in.RequesterName = actor.ID, actor.Name
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, item.input())
	}
	doc, err := h.service.CreateRequisition(r.Context(), tenantOf(r), in)
	h.respond(w, r, http.StatusCreated, doc, err)
}

func (h *Handler) listRequisitions(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r, "")
	if !ok {
		return
	}
	docs, err := h.service.ListRequisitions(r.Context(), tenantOf(r), filter)
	h.respond(w, r, http.StatusOK, docs, err)
}

func (h *Handler) getRequisition(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.GetRequisition(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) deleteRequisition(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteRequisition(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusNoContent, nil, err)
}

func (h *Handler) replaceRequisitionItems(w http.ResponseWriter, r *http.Request) {
	var req itemsRequest
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]RequisitionItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, item.input())
	}
	doc, err := h.service.UpdateRequisitionItems(r.Context(), tenantOf(r), chi.URLParam(r, "id"), items)
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) addRequisitionItem(w http.ResponseWriter, r *http.Request) {
	var req itemPayload
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.AddRequisitionItem(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.input())
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) removeRequisitionItem(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.RemoveRequisitionItem(r.Context(), tenantOf(r), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) markRequisitionPending(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.MarkRequisitionPending(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) submitRequisition(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.SubmitRequisition(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) decideRequisition(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.RecordApprovalDecision(r.Context(), tenantOf(r), chi.URLParam(r, "id"), DecisionInput{
		Level:    req.Level,
		Decision: Decision(req.Decision),
		Comment:  req.Comment,
	})
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) cancelRequisition(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	doc, err := h.service.CancelRequisition(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.Reason)
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) convertRequisition(w http.ResponseWriter, r *http.Request) {
	var req quotationRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	doc, err := h.service.ConvertRequisitionToQuotation(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.input())
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) getLifecycle(w http.ResponseWriter, r *http.Request) {
	trace, err := h.service.GetLifecycle(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, trace, err)
}

func (h *Handler) createQuotation(w http.ResponseWriter, r *http.Request) {
	var req quotationRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.CreateQuotation(r.Context(), tenantOf(r), req.input())
	h.respond(w, r, http.StatusCreated, doc, err)
}

func (h *Handler) listQuotations(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r, "requisition_id")
	if !ok {
		return
	}
	docs, err := h.service.ListQuotations(r.Context(), tenantOf(r), filter)
	h.respond(w, r, http.StatusOK, docs, err)
}

func (h *Handler) getQuotation(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.GetQuotation(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) deleteQuotation(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteQuotation(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusNoContent, nil, err)
}

func (h *Handler) inviteSuppliers(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.InviteSuppliers(r.Context(), tenantOf(r), chi.URLParam(r, "id"), suppliersInput(req.Suppliers))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) sendQuotation(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.SendQuotation(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) recordResponse(w http.ResponseWriter, r *http.Request) {
	var req responseRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.RecordSupplierResponse(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.SupplierID, ResponseInput{
		Prices:       req.Prices,
		LeadTimeDays: req.LeadTimeDays,
		PaymentTerms: req.PaymentTerms,
		Brand:        req.Brand,
		Notes:        req.Notes,
	})
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) evaluateQuotation(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.EvaluateQuotation(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) bestOffer(w http.ResponseWriter, r *http.Request) {
	offer, ok, err := h.service.BestOfferForItem(r.Context(), tenantOf(r), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	if err == nil && !ok {
		err = newError(ErrNotFound, "no offers for item %s", chi.URLParam(r, "itemID"))
	}
	h.respond(w, r, http.StatusOK, offer, err)
}

func (h *Handler) compareQuotation(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.CompareQuotation(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, report, err)
}

func (h *Handler) selectWinner(w http.ResponseWriter, r *http.Request) {
	var req winnerRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.SelectWinner(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.SupplierID)
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) cancelQuotation(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.CancelQuotation(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) convertQuotation(w http.ResponseWriter, r *http.Request) {
	var req convertOrderRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	doc, err := h.service.ConvertToPurchaseOrder(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.input())
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r, "quotation_id")
	if !ok {
		return
	}
	docs, err := h.service.ListOrders(r.Context(), tenantOf(r), filter)
	h.respond(w, r, http.StatusOK, docs, err)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.GetOrder(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) addOrderItem(w http.ResponseWriter, r *http.Request) {
	var req orderItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.AddOrderItem(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.input())
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) updateOrderItem(w http.ResponseWriter, r *http.Request) {
	var req orderItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "itemID")
	doc, err := h.service.UpdateOrderItem(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.input())
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) removeOrderItem(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.RemoveOrderItem(r.Context(), tenantOf(r), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) orderAction(fn func(ctx context.Context, tenantID, id string) (*PurchaseOrder, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := fn(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
		h.respond(w, r, http.StatusOK, doc, err)
	}
}

func (h *Handler) recordReceiving(w http.ResponseWriter, r *http.Request) {
	var req receivingRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, po, err := h.service.ApplyReceiving(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.input())
	h.respond(w, r, http.StatusCreated, ConvertResult{Receiving: rec, Order: po}, err)
}

func (h *Handler) listReceivings(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListReceivings(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, docs, err)
}

func (h *Handler) getReceiving(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.GetReceiving(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, doc, err)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	var req conversionRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Coordinator().Convert(r.Context(), ConvertRequest{
		TenantID:  tenantOf(r),
		Source:    DocumentRef{Kind: store.Kind(req.SourceKind), ID: req.SourceID},
		Target:    store.Kind(req.Target),
		Quotation: req.Quotation.input(),
		Order:     req.Order.input(),
		Receiving: req.Receiving.input(),
	})
	h.respond(w, r, http.StatusOK, result, err)
}

func tenantOf(r *http.Request) string {
	return shared.TenantFromContext(r.Context())
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		httpx.RespondError(w, err, KindName(ErrValidation))
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.RespondError(w, validationError(err), KindName(ErrValidation))
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return h.decode(w, r, dst)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(fields, "; "))
}

// filter reads status, paging and the optional parent reference.
func (h *Handler) filter(w http.ResponseWriter, r *http.Request, refParam string) (store.Filter, bool) {
	q := r.URL.Query()
	f := store.Filter{Status: q.Get("status")}
	if refParam != "" {
		f.RefID = q.Get(refParam)
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.RespondError(w, fmt.Errorf("%w: %s must be a non-negative integer", httpx.ErrValidation, name), KindName(ErrValidation))
			return store.Filter{}, false
		}
		*dst = n
	}
	return f, true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	httpx.JSON(w, status, body)
}

// fail maps error kinds onto problem responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var mapped error
	switch KindOf(err) {
	case nil:
		h.logger.Error("procurement request failed", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
		mapped = err
	case ErrValidation:
		mapped = fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	case ErrNotFound:
		mapped = fmt.Errorf("%w: %w", httpx.ErrNotFound, err)
	case ErrConcurrentModification:
		mapped = fmt.Errorf("%w: %w", httpx.ErrConflict, err)
	default:
		mapped = fmt.Errorf("%w: %w", httpx.ErrUnprocessable, err)
	}
	status, title := httpx.StatusOf(mapped)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	httpx.JSON(w, status, httpx.ProblemDetail{Type: KindName(err), Title: title, Status: status, Detail: detail})
}
