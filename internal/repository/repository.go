// Package repository содержит хранилища кассовых сессий и чеков: PostgreSQL и в памяти.
package repository

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/stockpilot/internal/cart"
	"github.com/mmeshcher/stockpilot/internal/pos"
)

var (
	// ErrSessionNotFound возвращается, если кассовая сессия не найдена или уже удалена.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists возвращается при повторном создании сессии с тем же идентификатором.
	ErrSessionExists = errors.New("session already exists")
)

// cloneSession возвращает независимую копию сессии вместе с корзиной.
func cloneSession(s *pos.Session) (*pos.Session, error) {
	c, err := cart.Restore(s.Cart.Lines(), s.Cart.Modifiers())
	if err != nil {
		return nil, err
	}

	cp := *s
	cp.Cart = c
	return &cp, nil
}

// centsFromFloat переводит округлённую сумму чека в сотые доли для хранения в BIGINT.
func centsFromFloat(v float64) int64 {
	return decimal.NewFromFloat(v).Shift(2).Round(0).IntPart()
}

func floatFromCents(v int64) float64 {
	return decimal.New(v, -2).InexactFloat64()
}
