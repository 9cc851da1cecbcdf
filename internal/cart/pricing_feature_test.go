package cart

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
)

type pricingTestContext struct {
	products map[string]Product
	cart     *Cart
	err      error
}

func (p *pricingTestContext) reset() {
	p.products = make(map[string]Product)
	p.cart = New()
	p.err = nil
}

func (p *pricingTestContext) aProductPricedWithTaxRateAndStock(id, price, taxRate string, stock int) error {
	sellingPrice, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	rate, err := decimal.NewFromString(taxRate)
	if err != nil {
		return err
	}
	p.products[id] = Product{ID: id, SellingPrice: sellingPrice, TaxRate: rate, StockQuantity: stock}
	return nil
}

func (p *pricingTestContext) iAddProductToTheCart(id string) error {
	product, ok := p.products[id]
	if !ok {
		return fmt.Errorf("unknown product %q", id)
	}
	_, p.err = p.cart.AddLine(product)
	return nil
}

func (p *pricingTestContext) iSetAFixedDiscountOfOnLine(amount, id string) error {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	_, p.err = p.cart.SetLineDiscount(id, d, DiscountFixed)
	return nil
}

func (p *pricingTestContext) iSetAPercentageCartDiscountOf(amount string) error {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	p.err = p.cart.SetDiscount(d, DiscountPercentage)
	return nil
}

func (p *pricingTestContext) iSetTheQuantityOfTo(id string, quantity int) error {
	_, _, p.err = p.cart.SetQuantity(id, quantity)
	return nil
}

func (p *pricingTestContext) theLineHasQuantity(id string, quantity int) error {
	line, ok := p.cart.Line(id)
	if !ok {
		return fmt.Errorf("line %q not in cart", id)
	}
	if line.Quantity != quantity {
		return fmt.Errorf("quantity = %d, want %d", line.Quantity, quantity)
	}
	return nil
}

func (p *pricingTestContext) theLineHasTaxAmount(id, amount string) error {
	line, ok := p.cart.Line(id)
	if !ok {
		return fmt.Errorf("line %q not in cart", id)
	}
	return equalAmount("tax amount", line.TaxAmount(), amount)
}

func (p *pricingTestContext) theLineHasLineTotal(id, amount string) error {
	line, ok := p.cart.Line(id)
	if !ok {
		return fmt.Errorf("line %q not in cart", id)
	}
	return equalAmount("line total", line.Total(), amount)
}

func (p *pricingTestContext) theCartHasLines(n int) error {
	if p.cart.Len() != n {
		return fmt.Errorf("cart has %d lines, want %d", p.cart.Len(), n)
	}
	return nil
}

func (p *pricingTestContext) theCartDiscountIs(amount string) error {
	return equalAmount("cart discount", p.cart.Totals().Discount, amount)
}

func (p *pricingTestContext) theCartTaxIs(amount string) error {
	return equalAmount("cart tax", p.cart.Totals().Tax, amount)
}

func (p *pricingTestContext) theCartTotalIs(amount string) error {
	return equalAmount("cart total", p.cart.Totals().Total, amount)
}

func (p *pricingTestContext) theOperationFailsWithAStockLimitOf(max int) error {
	var limitErr *StockLimitError
	if !errors.As(p.err, &limitErr) {
		return fmt.Errorf("expected stock limit error, got %v", p.err)
	}
	if limitErr.Max != max {
		return fmt.Errorf("max = %d, want %d", limitErr.Max, max)
	}
	return nil
}

func equalAmount(what string, got decimal.Decimal, want string) error {
	w, err := decimal.NewFromString(want)
	if err != nil {
		return err
	}
	if !got.Equal(w) {
		return fmt.Errorf("%s = %s, want %s", what, got, w)
	}
	return nil
}

func InitializePricingScenario(ctx *godog.ScenarioContext) {
	tc := &pricingTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a product "([^"]*)" priced ([\d.]+) with tax rate ([\d.]+) and stock (\d+)$`, tc.aProductPricedWithTaxRateAndStock)

	// When steps
	ctx.Step(`^I add product "([^"]*)" to the cart$`, tc.iAddProductToTheCart)
	ctx.Step(`^I set a fixed discount of ([\d.]+) on line "([^"]*)"$`, tc.iSetAFixedDiscountOfOnLine)
	ctx.Step(`^I set a percentage cart discount of ([\d.]+)$`, tc.iSetAPercentageCartDiscountOf)
	ctx.Step(`^I set the quantity of "([^"]*)" to (-?\d+)$`, tc.iSetTheQuantityOfTo)

	// Then steps
	ctx.Step(`^the line "([^"]*)" has quantity (\d+)$`, tc.theLineHasQuantity)
	ctx.Step(`^the line "([^"]*)" has tax amount ([\d.]+)$`, tc.theLineHasTaxAmount)
	ctx.Step(`^the line "([^"]*)" has line total ([\d.]+)$`, tc.theLineHasLineTotal)
	ctx.Step(`^the cart has (\d+) lines$`, tc.theCartHasLines)
	ctx.Step(`^the cart discount is ([\d.]+)$`, tc.theCartDiscountIs)
	ctx.Step(`^the cart tax is ([\d.]+)$`, tc.theCartTaxIs)
	ctx.Step(`^the cart total is ([\d.]+)$`, tc.theCartTotalIs)
	ctx.Step(`^the operation fails with a stock limit of (\d+)$`, tc.theOperationFailsWithAStockLimitOf)
}

func TestPricingFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializePricingScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/pricing.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
