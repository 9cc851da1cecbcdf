// Package handler содержит HTTP-обработчики кассового API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/stockpilot/internal/cart"
	"github.com/mmeshcher/stockpilot/internal/middleware"
	"github.com/mmeshcher/stockpilot/internal/model"
	"github.com/mmeshcher/stockpilot/internal/pos"
	"github.com/mmeshcher/stockpilot/internal/repository"
	"github.com/mmeshcher/stockpilot/internal/service"
	"github.com/mmeshcher/stockpilot/internal/stockapi"
	"github.com/mmeshcher/stockpilot/internal/validation"
)

const (
	defaultReceiptsLimit = 20
	maxReceiptsLimit     = 100
)

// Service определяет сценарии кассы, используемые HTTP-обработчиками.
type Service interface {
	OpenSession(ctx context.Context) (*pos.Session, error)
	CloseSession(ctx context.Context, id string) error
	GetSession(ctx context.Context, id string) (*pos.Session, error)
	AddItem(ctx context.Context, sessionID string, ref service.ItemRef) (*pos.Session, error)
	SetQuantity(ctx context.Context, sessionID, productID string, quantity int) (*pos.Session, error)
	SetLineDiscount(ctx context.Context, sessionID, productID string, discount decimal.Decimal, typ cart.DiscountType) (*pos.Session, error)
	RemoveLine(ctx context.Context, sessionID, productID string) (*pos.Session, error)
	SetCartDiscount(ctx context.Context, sessionID string, amount decimal.Decimal, typ cart.DiscountType) (*pos.Session, error)
	SetCustomer(ctx context.Context, sessionID, customerID string) (*pos.Session, error)
	ClearCart(ctx context.Context, sessionID string) (*pos.Session, error)
	BeginCheckout(ctx context.Context, sessionID string) (*pos.Session, error)
	CancelCheckout(ctx context.Context, sessionID string) (*pos.Session, error)
	Checkout(ctx context.Context, sessionID string, req pos.CheckoutRequest) (model.Receipt, error)
	ListReceipts(ctx context.Context, sessionID string, limit int) ([]model.Receipt, error)
}

// Handler реализует HTTP-обработчики кассового API.
type Handler struct {
	service  Service
	logger   *zap.Logger
	sessions *middleware.SessionMiddleware
	validate *validatorv10.Validate
}

// NewHandler создаёт обработчик HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, sessions *middleware.SessionMiddleware) *Handler {
	return &Handler{
		service:  s,
		logger:   logger,
		sessions: sessions,
		validate: validation.New(),
	}
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required_without=Barcode"`
	Barcode   string `json:"barcode" validate:"omitempty,barcode"`
}

type quantityRequest struct {
	Quantity *float64 `json:"quantity" validate:"required"`
}

type lineDiscountRequest struct {
	Discount     decimal.Decimal `json:"discount" validate:"gte=0"`
	DiscountType string          `json:"discountType" validate:"omitempty,oneof=fixed percentage"`
}

type cartDiscountRequest struct {
	DiscountAmount decimal.Decimal `json:"discountAmount" validate:"gte=0"`
	DiscountType   string          `json:"discountType" validate:"omitempty,oneof=fixed percentage"`
}

type customerRequest struct {
	CustomerID *string `json:"customerId"`
}

type checkoutRequest struct {
	AmountPaid  decimal.Decimal `json:"amountPaid" validate:"gte=0"`
	PaymentMode string          `json:"paymentMode" validate:"omitempty,oneof=cash card upi net_banking wallet credit"`
	Notes       string          `json:"notes" validate:"max=500"`
}

// OpenSession открывает кассовую сессию и выдаёт cookie.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.OpenSession(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.sessions.SetSessionCookie(w, sess.ID)
	writeJSON(w, http.StatusCreated, newCartView(sess))
}

// CloseSession закрывает кассовую сессию и удаляет cookie.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.CloseSession(r.Context(), sessionID); err != nil {
		h.writeError(w, err)
		return
	}

	h.sessions.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetCart возвращает корзину текущей сессии с вычисленными итогами.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	sess, err := h.service.GetSession(r.Context(), sessionID)
	h.respondCart(w, sess, err)
}

// AddItem добавляет товар по идентификатору или штрихкоду.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req addItemRequest
	if err := validation.DecodeAndValidate(r.Body, &req, h.validate); err != nil {
		h.writeError(w, err)
		return
	}

	sess, err := h.service.AddItem(r.Context(), sessionID, service.ItemRef{
		ProductID: req.ProductID,
		Barcode:   req.Barcode,
	})
	h.respondCart(w, sess, err)
}

// SetQuantity задаёт количество товара в строке.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req quantityRequest
	if err := validation.DecodeAndValidate(r.Body, &req, h.validate); err != nil {
		h.writeError(w, err)
		return
	}

	quantity, err := cart.ParseQuantity(*req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sess, err := h.service.SetQuantity(r.Context(), sessionID, chi.URLParam(r, "productID"), quantity)
	h.respondCart(w, sess, err)
}

// SetLineDiscount задаёт скидку строки.
func (h *Handler) SetLineDiscount(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req lineDiscountRequest
	if err := validation.DecodeAndValidate(r.Body, &req, h.validate); err != nil {
		h.writeError(w, err)
		return
	}

	sess, err := h.service.SetLineDiscount(r.Context(), sessionID, chi.URLParam(r, "productID"),
		req.Discount, discountType(req.DiscountType))
	h.respondCart(w, sess, err)
}

// RemoveLine удаляет строку корзины.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	sess, err := h.service.RemoveLine(r.Context(), sessionID, chi.URLParam(r, "productID"))
	h.respondCart(w, sess, err)
}

// SetCartDiscount задаёт скидку уровня корзины.
func (h *Handler) SetCartDiscount(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req cartDiscountRequest
	if err := validation.DecodeAndValidate(r.Body, &req, h.validate); err != nil {
		h.writeError(w, err)
		return
	}

	sess, err := h.service.SetCartDiscount(r.Context(), sessionID, req.DiscountAmount, discountType(req.DiscountType))
	h.respondCart(w, sess, err)
}

// SetCustomer привязывает покупателя к продаже; null или пустая строка отвязывают его.
func (h *Handler) SetCustomer(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req customerRequest
	if err := validation.DecodeAndValidate(r.Body, &req, h.validate); err != nil {
		h.writeError(w, err)
		return
	}

	var customerID string
	if req.CustomerID != nil {
		customerID = *req.CustomerID
	}

	sess, err := h.service.SetCustomer(r.Context(), sessionID, customerID)
	h.respondCart(w, sess, err)
}

// ClearCart очищает корзину.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	sess, err := h.service.ClearCart(r.Context(), sessionID)
	h.respondCart(w, sess, err)
}

// BeginCheckout переводит корзину в оформление продажи.
func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	sess, err := h.service.BeginCheckout(r.Context(), sessionID)
	h.respondCart(w, sess, err)
}

// CancelCheckout отменяет оформление продажи.
func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	sess, err := h.service.CancelCheckout(r.Context(), sessionID)
	h.respondCart(w, sess, err)
}

// Checkout регистрирует продажу и возвращает чек.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req checkoutRequest
	if err := validation.DecodeAndValidate(r.Body, &req, h.validate); err != nil {
		h.writeError(w, err)
		return
	}

	receipt, err := h.service.Checkout(r.Context(), sessionID, pos.CheckoutRequest{
		AmountPaid:  req.AmountPaid,
		PaymentMode: model.PaymentMode(req.PaymentMode),
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newReceiptView(receipt))
}

// ListReceipts возвращает чеки текущей сессии, новые первыми.
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	limit := defaultReceiptsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Detail: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxReceiptsLimit)
	}

	receipts, err := h.service.ListReceipts(r.Context(), sessionID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(receipts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]receiptView, 0, len(receipts))
	for _, rc := range receipts {
		resp = append(resp, newReceiptView(rc))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) respondCart(w http.ResponseWriter, sess *pos.Session, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(sess))
}

type errorResponse struct {
	Error    string            `json:"error"`
	Detail   string            `json:"detail,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	MaxStock *int              `json:"maxStock,omitempty"`
}

// writeError переводит ошибки сценариев кассы в HTTP-ответы.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		fieldErrs validation.FieldErrors
		limitErr  *cart.StockLimitError
		apiErr    *stockapi.APIError
	)

	switch {
	case errors.As(err, &fieldErrs):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Fields: fieldErrs})
	case errors.Is(err, validation.ErrInvalidBody),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidDiscount),
		errors.Is(err, cart.ErrInvalidProduct):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Detail: err.Error()})
	case errors.As(err, &limitErr):
		maxStock := limitErr.Max
		writeJSON(w, http.StatusConflict, errorResponse{Error: "stock_limit_exceeded", MaxStock: &maxStock})
	case errors.Is(err, cart.ErrEmptyCart):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "empty_cart"})
	case errors.Is(err, pos.ErrCheckoutPending):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "checkout_pending"})
	case errors.Is(err, pos.ErrNotPending):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "checkout_not_pending"})
	case errors.Is(err, cart.ErrLineNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "line_not_found"})
	case errors.Is(err, service.ErrProductNotFound):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "product_not_found"})
	case errors.Is(err, service.ErrProductUnavailable):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "product_unavailable"})
	case errors.Is(err, service.ErrCustomerNotFound):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "customer_not_found"})
	case errors.Is(err, repository.ErrSessionNotFound):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "session_not_found"})
	case errors.Is(err, service.ErrCheckoutFailed):
		resp := errorResponse{Error: "checkout_failed"}
		if errors.As(err, &apiErr) {
			resp.Detail = apiErr.Detail
		}
		writeJSON(w, http.StatusBadGateway, resp)
	case errors.As(err, &apiErr):
		h.logger.Error("stockpilot api error", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "upstream_error", Detail: apiErr.Detail})
	default:
		h.logger.Error("pos request error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func discountType(raw string) cart.DiscountType {
	if raw == "" {
		return cart.DiscountFixed
	}
	return cart.DiscountType(raw)
}

type lineView struct {
	ProductID      string  `json:"productId"`
	Name           string  `json:"name"`
	SKU            string  `json:"sku"`
	UnitPrice      float64 `json:"unitPrice"`
	Quantity       int     `json:"quantity"`
	Discount       float64 `json:"discount"`
	DiscountType   string  `json:"discountType"`
	DiscountAmount float64 `json:"discountAmount"`
	TaxRate        float64 `json:"taxRate"`
	TaxAmount      float64 `json:"taxAmount"`
	LineTotal      float64 `json:"lineTotal"`
	MaxStock       int     `json:"maxStock"`
}

type totalsView struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

type cartDiscountView struct {
	Amount float64 `json:"amount"`
	Type   string  `json:"type"`
}

type cartView struct {
	SessionID    string           `json:"sessionId"`
	State        string           `json:"state"`
	LastCheckout string           `json:"lastCheckout,omitempty"`
	CustomerID   string           `json:"customerId,omitempty"`
	Items        []lineView       `json:"items"`
	CartDiscount cartDiscountView `json:"cartDiscount"`
	Totals       totalsView       `json:"totals"`
	UpdatedAt    string           `json:"updatedAt"`
}

func newCartView(sess *pos.Session) cartView {
	lines := sess.Cart.Lines()
	items := make([]lineView, 0, len(lines))
	for _, l := range lines {
		items = append(items, lineView{
			ProductID:      l.ProductID,
			Name:           l.Name,
			SKU:            l.SKU,
			UnitPrice:      money(l.UnitPrice),
			Quantity:       l.Quantity,
			Discount:       l.Discount.InexactFloat64(),
			DiscountType:   string(l.DiscountType),
			DiscountAmount: money(l.DiscountAmount()),
			TaxRate:        l.TaxRate.InexactFloat64(),
			TaxAmount:      money(l.TaxAmount()),
			LineTotal:      money(l.Total()),
			MaxStock:       l.MaxStock,
		})
	}

	totals := sess.Cart.Totals()
	m := sess.Cart.Modifiers()

	return cartView{
		SessionID:    sess.ID,
		State:        string(sess.State),
		LastCheckout: string(sess.LastCheckout),
		CustomerID:   sess.CustomerID,
		Items:        items,
		CartDiscount: cartDiscountView{Amount: m.DiscountAmount.InexactFloat64(), Type: string(m.DiscountType)},
		Totals: totalsView{
			Subtotal: money(totals.Subtotal),
			Discount: money(totals.Discount),
			Tax:      money(totals.Tax),
			Total:    money(totals.Total),
		},
		UpdatedAt: sess.UpdatedAt.Format(time.RFC3339),
	}
}

type receiptView struct {
	SaleID        string  `json:"saleId"`
	InvoiceNumber string  `json:"invoiceNumber"`
	Total         float64 `json:"total"`
	AmountPaid    float64 `json:"amountPaid"`
	Change        float64 `json:"change"`
	PaymentMode   string  `json:"paymentMode"`
	CreatedAt     string  `json:"createdAt"`
}

func newReceiptView(rc model.Receipt) receiptView {
	return receiptView{
		SaleID:        rc.SaleID,
		InvoiceNumber: rc.InvoiceNumber,
		Total:         rc.Total,
		AmountPaid:    rc.AmountPaid,
		Change:        rc.Change,
		PaymentMode:   string(rc.PaymentMode),
		CreatedAt:     rc.CreatedAt.Format(time.RFC3339),
	}
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
