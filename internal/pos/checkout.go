package pos

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/stockpilot/internal/model"
)

// CheckoutRequest содержит данные оплаты, вводимые кассиром при оформлении.
type CheckoutRequest struct {
	AmountPaid  decimal.Decimal
	PaymentMode model.PaymentMode
	Notes       string
}

// BuildSale формирует данные продажи для API продаж из сессии в состоянии оформления.
// Суммы округляются до копеек только здесь.
func BuildSale(s *Session, req CheckoutRequest, customer *model.Customer) (model.Sale, error) {
	if s.State != StateCheckoutPending {
		return model.Sale{}, ErrNotPending
	}

	lines := s.Cart.Lines()
	items := make([]model.SaleItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, model.SaleItem{
			ProductID:    l.ProductID,
			ProductName:  l.Name,
			SKU:          l.SKU,
			Quantity:     l.Quantity,
			UnitPrice:    money(l.UnitPrice),
			Discount:     l.Discount.InexactFloat64(),
			DiscountType: string(l.DiscountType),
			TaxRate:      l.TaxRate.InexactFloat64(),
			TaxAmount:    money(l.TaxAmount()),
			LineTotal:    money(l.Total()),
		})
	}

	totals := s.Cart.Totals()
	total := totals.Total.Round(2)

	paid := req.AmountPaid.Round(2)
	if paid.IsZero() {
		paid = total
	}

	status := model.PaymentStatusPaid
	if paid.LessThan(total) {
		status = model.PaymentStatusPartial
	}

	paymentMode := req.PaymentMode
	if paymentMode == "" {
		paymentMode = model.PaymentCash
	}

	sale := model.Sale{
		Items:          items,
		Subtotal:       money(totals.Subtotal),
		DiscountAmount: money(totals.Discount),
		DiscountType:   string(s.Cart.Modifiers().DiscountType),
		TaxAmount:      money(totals.Tax),
		Total:          total.InexactFloat64(),
		AmountPaid:     paid.InexactFloat64(),
		PaymentMode:    paymentMode,
		PaymentStatus:  status,
		Notes:          req.Notes,
	}

	if customer != nil {
		sale.CustomerID = &customer.ID
		sale.CustomerName = &customer.Name
		sale.CustomerPhone = &customer.Phone
	} else if s.CustomerID != "" {
		id := s.CustomerID
		sale.CustomerID = &id
	}

	return sale, nil
}

// NewReceipt фиксирует результат оформленной продажи.
func NewReceipt(sessionID string, record model.SaleRecord, sale model.Sale, now time.Time) model.Receipt {
	change := decimal.NewFromFloat(sale.AmountPaid).Sub(decimal.NewFromFloat(sale.Total)).Round(2)
	if change.IsNegative() {
		change = decimal.Zero
	}

	return model.Receipt{
		SessionID:     sessionID,
		SaleID:        record.ID,
		InvoiceNumber: record.InvoiceNumber,
		Total:         sale.Total,
		AmountPaid:    sale.AmountPaid,
		Change:        change.InexactFloat64(),
		PaymentMode:   sale.PaymentMode,
		CreatedAt:     now,
	}
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
