package cart

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testProduct() Product {
	return Product{
		ID:            "p-1",
		Name:          "Basmati rice 1kg",
		SKU:           "RICE-1",
		SellingPrice:  dec("100"),
		TaxRate:       dec("18"),
		StockQuantity: 5,
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestAddLine_NewLine(t *testing.T) {
	c := New()

	line, err := c.AddLine(testProduct())
	require.NoError(t, err)

	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, DiscountFixed, line.DiscountType)
	assert.Equal(t, 5, line.MaxStock)
	assertDecimal(t, "100", line.UnitPrice)
	assertDecimal(t, "18", line.TaxAmount())
	assertDecimal(t, "118", line.Total())
}

func TestAddLine_SameProductIncrementsQuantity(t *testing.T) {
	c := New()

	_, err := c.AddLine(testProduct())
	require.NoError(t, err)
	line, err := c.AddLine(testProduct())
	require.NoError(t, err)

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 2, line.Quantity)
	assertDecimal(t, "236", line.Total())
}

func TestAddLine_StockLimit(t *testing.T) {
	c := New()
	p := testProduct()
	p.StockQuantity = 1

	_, err := c.AddLine(p)
	require.NoError(t, err)

	_, err = c.AddLine(p)
	require.ErrorIs(t, err, ErrStockLimitExceeded)

	var limitErr *StockLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 1, limitErr.Max)

	line, ok := c.Line(p.ID)
	require.True(t, ok)
	assert.Equal(t, 1, line.Quantity)
}

func TestAddLine_RejectsInvalidProducts(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Product)
		wantErr error
	}{
		{
			name:    "empty id",
			mutate:  func(p *Product) { p.ID = "" },
			wantErr: ErrInvalidProduct,
		},
		{
			name:    "negative price",
			mutate:  func(p *Product) { p.SellingPrice = dec("-1") },
			wantErr: ErrInvalidProduct,
		},
		{
			name:    "out of stock",
			mutate:  func(p *Product) { p.StockQuantity = 0 },
			wantErr: ErrStockLimitExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			p := testProduct()
			tt.mutate(&p)

			_, err := c.AddLine(p)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, c.IsEmpty())
		})
	}
}

func TestSetQuantity(t *testing.T) {
	tests := []struct {
		name        string
		quantity    int
		wantQty     int
		wantRemoved bool
		wantErr     error
		wantLen     int
	}{
		{name: "update", quantity: 3, wantQty: 3, wantLen: 1},
		{name: "exactly max stock", quantity: 5, wantQty: 5, wantLen: 1},
		{name: "above max stock", quantity: 6, wantQty: 1, wantErr: ErrStockLimitExceeded, wantLen: 1},
		{name: "zero removes", quantity: 0, wantRemoved: true, wantLen: 0},
		{name: "negative removes", quantity: -2, wantRemoved: true, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			_, err := c.AddLine(testProduct())
			require.NoError(t, err)

			_, removed, err := c.SetQuantity("p-1", tt.quantity)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.wantRemoved, removed)
			assert.Equal(t, tt.wantLen, c.Len())
			if line, ok := c.Line("p-1"); ok {
				assert.Equal(t, tt.wantQty, line.Quantity)
			}
		})
	}
}

func TestSetQuantity_StockLimitCarriesMaxStock(t *testing.T) {
	c := New()
	_, err := c.AddLine(testProduct())
	require.NoError(t, err)

	_, _, err = c.SetQuantity("p-1", 42)

	var limitErr *StockLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 5, limitErr.Max)
	assert.Equal(t, "p-1", limitErr.ProductID)
}

func TestSetQuantity_UnknownLine(t *testing.T) {
	c := New()

	_, _, err := c.SetQuantity("missing", 1)
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestSetLineDiscount_Fixed(t *testing.T) {
	c := New()
	_, err := c.AddLine(testProduct())
	require.NoError(t, err)

	line, err := c.SetLineDiscount("p-1", dec("10"), DiscountFixed)
	require.NoError(t, err)

	assertDecimal(t, "10", line.DiscountAmount())
	assertDecimal(t, "16.2", line.TaxAmount())
	assertDecimal(t, "106.2", line.Total())
}

func TestSetLineDiscount_Percentage(t *testing.T) {
	c := New()
	_, err := c.AddLine(testProduct())
	require.NoError(t, err)
	_, _, err = c.SetQuantity("p-1", 2)
	require.NoError(t, err)

	line, err := c.SetLineDiscount("p-1", dec("25"), DiscountPercentage)
	require.NoError(t, err)

	assertDecimal(t, "50", line.DiscountAmount())
	assertDecimal(t, "27", line.TaxAmount())
	assertDecimal(t, "177", line.Total())
}

func TestSetLineDiscount_ClampedToLineAmount(t *testing.T) {
	c := New()
	_, err := c.AddLine(testProduct())
	require.NoError(t, err)

	line, err := c.SetLineDiscount("p-1", dec("250"), DiscountFixed)
	require.NoError(t, err)

	assertDecimal(t, "100", line.DiscountAmount())
	assertDecimal(t, "0", line.TaxAmount())
	assertDecimal(t, "0", line.Total())

	line, err = c.SetLineDiscount("p-1", dec("150"), DiscountPercentage)
	require.NoError(t, err)
	assertDecimal(t, "0", line.Total())
}

func TestSetLineDiscount_Rejects(t *testing.T) {
	c := New()
	_, err := c.AddLine(testProduct())
	require.NoError(t, err)

	_, err = c.SetLineDiscount("p-1", dec("-1"), DiscountFixed)
	require.ErrorIs(t, err, ErrInvalidDiscount)

	_, err = c.SetLineDiscount("p-1", dec("1"), DiscountType("bogus"))
	require.ErrorIs(t, err, ErrInvalidDiscount)

	_, err = c.SetLineDiscount("missing", dec("1"), DiscountFixed)
	require.ErrorIs(t, err, ErrLineNotFound)

	line, _ := c.Line("p-1")
	assert.True(t, line.Discount.IsZero())
}

func TestRemoveLine_Idempotent(t *testing.T) {
	c := New()
	_, err := c.AddLine(testProduct())
	require.NoError(t, err)

	assert.True(t, c.RemoveLine("p-1"))
	assert.False(t, c.RemoveLine("p-1"))
	assert.True(t, c.IsEmpty())
}

func TestTotals_CartLevelPercentageDiscount(t *testing.T) {
	c := New()
	_, err := c.AddLine(testProduct())
	require.NoError(t, err)
	_, err = c.SetLineDiscount("p-1", dec("10"), DiscountFixed)
	require.NoError(t, err)
	require.NoError(t, c.SetDiscount(dec("5"), DiscountPercentage))

	totals := c.Totals()

	assertDecimal(t, "100", totals.Subtotal)
	assertDecimal(t, "90", totals.NetSubtotal)
	assertDecimal(t, "4.5", totals.Discount)
	assertDecimal(t, "16.2", totals.Tax)
	assertDecimal(t, "101.7", totals.Total)
}

func TestTotals_CartDiscountDoesNotReduceTax(t *testing.T) {
	c := New()
	_, err := c.AddLine(testProduct())
	require.NoError(t, err)
	require.NoError(t, c.SetDiscount(dec("5"), DiscountPercentage))

	totals := c.Totals()

	assertDecimal(t, "5", totals.Discount)
	assertDecimal(t, "18", totals.Tax)
	assertDecimal(t, "113", totals.Total)
}

func TestTotals_CartDiscountClamped(t *testing.T) {
	c := New()
	_, err := c.AddLine(testProduct())
	require.NoError(t, err)
	require.NoError(t, c.SetDiscount(dec("500"), DiscountFixed))

	totals := c.Totals()

	assertDecimal(t, "100", totals.Discount)
	assertDecimal(t, "18", totals.Total)
}

func TestTotals_EmptyCart(t *testing.T) {
	totals := New().Totals()

	assert.True(t, totals.Subtotal.IsZero())
	assert.True(t, totals.Discount.IsZero())
	assert.True(t, totals.Tax.IsZero())
	assert.True(t, totals.Total.IsZero())
}

func TestTotals_Idempotent(t *testing.T) {
	c := New()
	_, err := c.AddLine(testProduct())
	require.NoError(t, err)
	second := testProduct()
	second.ID = "p-2"
	second.SellingPrice = dec("19.99")
	second.TaxRate = dec("5")
	_, err = c.AddLine(second)
	require.NoError(t, err)
	require.NoError(t, c.SetDiscount(dec("3"), DiscountFixed))

	before := c.Lines()
	first := c.Totals()
	again := c.Totals()

	assert.True(t, first.Total.Equal(again.Total))
	assert.True(t, first.Tax.Equal(again.Tax))
	assert.Equal(t, before, c.Lines())
}

func TestClear_ResetsModifiers(t *testing.T) {
	c := New()
	_, err := c.AddLine(testProduct())
	require.NoError(t, err)
	require.NoError(t, c.SetDiscount(dec("10"), DiscountPercentage))

	c.Clear()

	assert.True(t, c.IsEmpty())
	assert.Equal(t, DiscountFixed, c.Modifiers().DiscountType)
	assert.True(t, c.Modifiers().DiscountAmount.IsZero())
}

func TestLines_KeepInsertionOrder(t *testing.T) {
	c := New()
	for _, id := range []string{"c", "a", "b"} {
		p := testProduct()
		p.ID = id
		_, err := c.AddLine(p)
		require.NoError(t, err)
	}
	_, _, err := c.SetQuantity("a", 2)
	require.NoError(t, err)

	var ids []string
	for _, l := range c.Lines() {
		ids = append(ids, l.ProductID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestRestore(t *testing.T) {
	line := Line{
		ProductID:    "p-1",
		UnitPrice:    dec("10"),
		Quantity:     2,
		Discount:     decimal.Zero,
		DiscountType: DiscountFixed,
		TaxRate:      dec("5"),
		MaxStock:     3,
	}

	c, err := Restore([]Line{line}, Modifiers{DiscountAmount: dec("1")})
	require.NoError(t, err)
	assert.Equal(t, DiscountFixed, c.Modifiers().DiscountType)
	assertDecimal(t, "20", c.Totals().Subtotal)

	_, err = Restore([]Line{line, line}, DefaultModifiers())
	require.ErrorIs(t, err, ErrInvalidProduct)

	over := line
	over.Quantity = 4
	_, err = Restore([]Line{over}, DefaultModifiers())
	require.ErrorIs(t, err, ErrStockLimitExceeded)
}

func TestParseQuantity(t *testing.T) {
	q, err := ParseQuantity(3)
	require.NoError(t, err)
	assert.Equal(t, 3, q)

	q, err = ParseQuantity(-1)
	require.NoError(t, err)
	assert.Equal(t, -1, q)

	_, err = ParseQuantity(1.5)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}
