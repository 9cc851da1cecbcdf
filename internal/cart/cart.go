// Package cart реализует расчёт стоимости корзины кассы: строки, скидки, налоги и итоги.
package cart

import (
	"github.com/shopspring/decimal"
)

// Modifiers содержит скидку уровня корзины, применяемую после скидок строк.
type Modifiers struct {
	DiscountAmount decimal.Decimal
	DiscountType   DiscountType
}

// DefaultModifiers возвращает модификаторы новой корзины: нулевая фиксированная скидка.
func DefaultModifiers() Modifiers {
	return Modifiers{DiscountAmount: decimal.Zero, DiscountType: DiscountFixed}
}

// Totals содержит итоги корзины. Не хранятся, вычисляются по строкам и модификаторам.
type Totals struct {
	Subtotal    decimal.Decimal
	NetSubtotal decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
}

// Cart представляет упорядоченный набор строк с уникальным идентификатором товара.
type Cart struct {
	lines     []Line
	modifiers Modifiers
}

// New создаёт пустую корзину.
func New() *Cart {
	return &Cart{modifiers: DefaultModifiers()}
}

// Restore восстанавливает корзину из сохранённых строк, проверяя их корректность.
func Restore(lines []Line, m Modifiers) (*Cart, error) {
	if m.DiscountType == "" {
		m.DiscountType = DiscountFixed
	}
	if m.DiscountAmount.IsNegative() || !m.DiscountType.Valid() {
		return nil, ErrInvalidDiscount
	}

	seen := make(map[string]struct{}, len(lines))
	restored := make([]Line, 0, len(lines))
	for _, l := range lines {
		if err := l.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[l.ProductID]; dup {
			return nil, ErrInvalidProduct
		}
		seen[l.ProductID] = struct{}{}
		restored = append(restored, l)
	}

	return &Cart{lines: restored, modifiers: m}, nil
}

// Lines возвращает копию строк корзины в порядке добавления.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Line возвращает строку по идентификатору товара.
func (c *Cart) Line(productID string) (Line, bool) {
	i := c.index(productID)
	if i < 0 {
		return Line{}, false
	}
	return c.lines[i], true
}

// Len возвращает количество строк.
func (c *Cart) Len() int {
	return len(c.lines)
}

// IsEmpty сообщает, что в корзине нет строк.
func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Modifiers возвращает текущую скидку уровня корзины.
func (c *Cart) Modifiers() Modifiers {
	return c.modifiers
}

// AddLine добавляет товар в корзину. Повторное добавление увеличивает количество на единицу.
func (c *Cart) AddLine(p Product) (Line, error) {
	if p.ID == "" || p.SellingPrice.IsNegative() || p.TaxRate.IsNegative() {
		return Line{}, ErrInvalidProduct
	}

	if existing, ok := c.Line(p.ID); ok {
		line, _, err := c.SetQuantity(p.ID, existing.Quantity+1)
		return line, err
	}

	if p.StockQuantity < 1 {
		return Line{}, &StockLimitError{ProductID: p.ID, Max: p.StockQuantity}
	}

	line := Line{
		ProductID:    p.ID,
		Name:         p.Name,
		SKU:          p.SKU,
		UnitPrice:    p.SellingPrice,
		Quantity:     1,
		Discount:     decimal.Zero,
		DiscountType: DiscountFixed,
		TaxRate:      p.TaxRate,
		MaxStock:     p.StockQuantity,
	}
	c.lines = append(c.lines, line)

	return line, nil
}

// SetQuantity изменяет количество товара в строке. Количество ноль и меньше удаляет строку,
// в этом случае removed равно true.
func (c *Cart) SetQuantity(productID string, quantity int) (line Line, removed bool, err error) {
	i := c.index(productID)
	if i < 0 {
		return Line{}, false, ErrLineNotFound
	}

	current := c.lines[i]
	if quantity > current.MaxStock {
		return current, false, &StockLimitError{ProductID: productID, Max: current.MaxStock}
	}

	if quantity <= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
		return current, true, nil
	}

	c.lines[i].Quantity = quantity
	return c.lines[i], false, nil
}

// SetLineDiscount задаёт скидку строки.
func (c *Cart) SetLineDiscount(productID string, discount decimal.Decimal, typ DiscountType) (Line, error) {
	if discount.IsNegative() || !typ.Valid() {
		return Line{}, ErrInvalidDiscount
	}

	i := c.index(productID)
	if i < 0 {
		return Line{}, ErrLineNotFound
	}

	c.lines[i].Discount = discount
	c.lines[i].DiscountType = typ
	return c.lines[i], nil
}

// RemoveLine удаляет строку. Отсутствие строки ошибкой не считается.
func (c *Cart) RemoveLine(productID string) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	return true
}

// SetDiscount задаёт скидку уровня корзины.
func (c *Cart) SetDiscount(amount decimal.Decimal, typ DiscountType) error {
	if amount.IsNegative() || !typ.Valid() {
		return ErrInvalidDiscount
	}
	c.modifiers = Modifiers{DiscountAmount: amount, DiscountType: typ}
	return nil
}

// Clear очищает корзину и сбрасывает скидку уровня корзины.
func (c *Cart) Clear() {
	c.lines = nil
	c.modifiers = DefaultModifiers()
}

// Totals вычисляет итоги корзины, не изменяя её.
func (c *Cart) Totals() Totals {
	return ComputeTotals(c.lines, c.modifiers)
}

// ComputeTotals вычисляет итоги набора строк со скидкой уровня корзины.
// Скидка корзины считается от суммы после скидок строк и не уменьшает налог.
func ComputeTotals(lines []Line, m Modifiers) Totals {
	subtotal := decimal.Zero
	net := decimal.Zero
	tax := decimal.Zero

	for _, l := range lines {
		subtotal = subtotal.Add(l.Gross())
		net = net.Add(l.Net())
		tax = tax.Add(l.TaxAmount())
	}

	typ := m.DiscountType
	if typ == "" {
		typ = DiscountFixed
	}
	discount := discountOf(net, m.DiscountAmount, typ)

	return Totals{
		Subtotal:    subtotal,
		NetSubtotal: net,
		Discount:    discount,
		Tax:         tax,
		Total:       net.Sub(discount).Add(tax),
	}
}

func (c *Cart) index(productID string) int {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}
