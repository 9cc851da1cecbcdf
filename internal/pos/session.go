// Package pos описывает кассовую сессию: корзину, её жизненный цикл и формирование продажи.
package pos

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/stockpilot/internal/cart"
)

// State описывает состояние кассовой сессии.
type State string

// Переходы: empty -> building -> checkout_pending -> (completed | cancelled).
// completed очищает корзину и возвращает сессию в empty, cancelled возвращает её в building.
const (
	StateEmpty           State = "empty"
	StateBuilding        State = "building"
	StateCheckoutPending State = "checkout_pending"
	StateCompleted       State = "completed"
	StateCancelled       State = "cancelled"
)

var (
	// ErrCheckoutPending возвращается при изменении корзины во время оформления продажи.
	ErrCheckoutPending = errors.New("checkout is pending")
	// ErrNotPending возвращается, если оформление продажи не начато.
	ErrNotPending = errors.New("no checkout is pending")
)

// Session описывает кассовую сессию с собственной корзиной.
type Session struct {
	ID           string
	Cart         *cart.Cart
	CustomerID   string
	State        State
	LastCheckout State
	// Submitting выставлен, пока продажа передаётся в API продаж.
	// До ответа API сессию нельзя ни изменить, ни отменить.
	Submitting bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewSession создаёт сессию с пустой корзиной.
func NewSession(now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Cart:      cart.New(),
		State:     StateEmpty,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Mutate применяет изменение к корзине. Во время оформления продажи корзина не изменяется.
func (s *Session) Mutate(now time.Time, fn func(c *cart.Cart) error) error {
	if s.State == StateCheckoutPending {
		return ErrCheckoutPending
	}
	if err := fn(s.Cart); err != nil {
		return err
	}
	s.settle(now)
	return nil
}

// SetCustomer привязывает покупателя к сессии. Пустой идентификатор отвязывает его.
func (s *Session) SetCustomer(now time.Time, customerID string) error {
	if s.State == StateCheckoutPending {
		return ErrCheckoutPending
	}
	s.CustomerID = customerID
	s.UpdatedAt = now
	return nil
}

// BeginCheckout переводит сессию в оформление продажи. Пустую корзину оформить нельзя.
func (s *Session) BeginCheckout(now time.Time) error {
	if s.State == StateCheckoutPending {
		return ErrCheckoutPending
	}
	if s.Cart.IsEmpty() {
		return cart.ErrEmptyCart
	}
	s.State = StateCheckoutPending
	s.LastCheckout = ""
	s.UpdatedAt = now
	return nil
}

// CancelCheckout отменяет оформление, корзина сохраняется.
// Пока продажа передаётся в API, отмена невозможна.
func (s *Session) CancelCheckout(now time.Time) error {
	if s.State != StateCheckoutPending {
		return ErrNotPending
	}
	if s.Submitting {
		return ErrCheckoutPending
	}
	s.LastCheckout = StateCancelled
	s.settle(now)
	return nil
}

// BeginSubmission отмечает начало передачи продажи. Оформление начинается,
// если оно ещё не начато. Вторая передача той же корзины отклоняется.
func (s *Session) BeginSubmission(now time.Time) error {
	if s.Submitting {
		return ErrCheckoutPending
	}
	if s.State != StateCheckoutPending {
		if err := s.BeginCheckout(now); err != nil {
			return err
		}
	}
	s.Submitting = true
	s.UpdatedAt = now
	return nil
}

// AbortSubmission снимает отметку передачи после отказа API и отменяет оформление.
func (s *Session) AbortSubmission(now time.Time) error {
	if !s.Submitting {
		return ErrNotPending
	}
	s.Submitting = false
	return s.CancelCheckout(now)
}

// Complete завершает оформление: корзина, скидка и покупатель сбрасываются.
func (s *Session) Complete(now time.Time) error {
	if s.State != StateCheckoutPending {
		return ErrNotPending
	}
	s.Cart.Clear()
	s.CustomerID = ""
	s.Submitting = false
	s.LastCheckout = StateCompleted
	s.settle(now)
	return nil
}

// IdleSince сообщает, что сессия не менялась с момента before.
func (s *Session) IdleSince(before time.Time) bool {
	return s.UpdatedAt.Before(before)
}

func (s *Session) settle(now time.Time) {
	if s.Cart.IsEmpty() {
		s.State = StateEmpty
	} else {
		s.State = StateBuilding
	}
	s.UpdatedAt = now
}
