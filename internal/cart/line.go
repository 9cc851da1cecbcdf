package cart

import (
	"math"

	"github.com/shopspring/decimal"
)

// DiscountType определяет, как интерпретируется величина скидки.
type DiscountType string

const (
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

// Valid сообщает, является ли тип скидки допустимым.
func (t DiscountType) Valid() bool {
	return t == DiscountFixed || t == DiscountPercentage
}

var hundred = decimal.NewFromInt(100)

// Product представляет снимок товара каталога, из которого создаётся строка корзины.
type Product struct {
	ID            string
	Name          string
	SKU           string
	SellingPrice  decimal.Decimal
	TaxRate       decimal.Decimal
	StockQuantity int
}

// Line описывает одну позицию корзины. Производные суммы вычисляются методами и не хранятся.
type Line struct {
	ProductID    string
	Name         string
	SKU          string
	UnitPrice    decimal.Decimal
	Quantity     int
	Discount     decimal.Decimal
	DiscountType DiscountType
	TaxRate      decimal.Decimal
	MaxStock     int
}

// Gross возвращает стоимость строки до скидок и налогов.
func (l Line) Gross() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// DiscountAmount возвращает скидку строки в денежном выражении, не больше стоимости строки.
func (l Line) DiscountAmount() decimal.Decimal {
	return discountOf(l.Gross(), l.Discount, l.DiscountType)
}

// Net возвращает стоимость строки после скидки строки.
func (l Line) Net() decimal.Decimal {
	return l.Gross().Sub(l.DiscountAmount())
}

// TaxAmount возвращает налог строки, начисленный на стоимость после скидки.
func (l Line) TaxAmount() decimal.Decimal {
	return l.Net().Mul(l.TaxRate).Div(hundred)
}

// Total возвращает итог строки с учётом скидки и налога.
func (l Line) Total() decimal.Decimal {
	return l.Net().Add(l.TaxAmount())
}

func (l Line) validate() error {
	if l.ProductID == "" || l.UnitPrice.IsNegative() || l.TaxRate.IsNegative() {
		return ErrInvalidProduct
	}
	if l.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if l.Quantity > l.MaxStock {
		return &StockLimitError{ProductID: l.ProductID, Max: l.MaxStock}
	}
	if l.Discount.IsNegative() || !l.DiscountType.Valid() {
		return ErrInvalidDiscount
	}
	return nil
}

// discountOf переводит скидку в денежную сумму и ограничивает её диапазоном [0, base].
func discountOf(base, value decimal.Decimal, typ DiscountType) decimal.Decimal {
	d := value
	if typ == DiscountPercentage {
		d = base.Mul(value).Div(hundred)
	}
	if d.GreaterThan(base) {
		d = base
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ParseQuantity преобразует количество из JSON-числа в целое.
func ParseQuantity(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, ErrInvalidQuantity
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, ErrInvalidQuantity
	}
	return int(v), nil
}
