package cart

import (
	"errors"
	"fmt"
)

var (
	// ErrStockLimitExceeded возвращается, если запрошенное количество превышает остаток на складе.
	ErrStockLimitExceeded = errors.New("stock limit exceeded")
	// ErrInvalidQuantity возвращается для дробного или некорректного количества.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInvalidDiscount возвращается для отрицательной скидки или неизвестного типа скидки.
	ErrInvalidDiscount = errors.New("invalid discount")
	// ErrInvalidProduct возвращается, если снимок товара не пригоден для продажи.
	ErrInvalidProduct = errors.New("invalid product")
	// ErrLineNotFound возвращается, если в корзине нет строки с указанным товаром.
	ErrLineNotFound = errors.New("line not found")
	// ErrEmptyCart возвращается при попытке оформить пустую корзину.
	ErrEmptyCart = errors.New("cart is empty")
)

// StockLimitError сообщает о превышении остатка и содержит максимально допустимое количество.
type StockLimitError struct {
	ProductID string
	Max       int
}

func (e *StockLimitError) Error() string {
	return fmt.Sprintf("stock limit exceeded for product %s: only %d units available", e.ProductID, e.Max)
}

func (e *StockLimitError) Unwrap() error {
	return ErrStockLimitExceeded
}
