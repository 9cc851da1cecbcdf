// Package service реализует сценарии кассы: сессии, корзина и оформление продажи.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/stockpilot/internal/cart"
	"github.com/mmeshcher/stockpilot/internal/model"
	"github.com/mmeshcher/stockpilot/internal/pos"
	"github.com/mmeshcher/stockpilot/internal/stockapi"
)

var (
	// ErrProductNotFound возвращается, если товар отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductUnavailable возвращается для неактивного товара или товара без остатка.
	ErrProductUnavailable = errors.New("product is not available for sale")
	// ErrCustomerNotFound возвращается, если покупатель отсутствует в справочнике.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrCheckoutFailed возвращается, если API продаж не принял продажу.
	ErrCheckoutFailed = errors.New("checkout failed")
)

// Store описывает хранилище кассовых сессий и чеков.
type Store interface {
	Close() error
	Create(ctx context.Context, s *pos.Session) error
	Get(ctx context.Context, id string) (*pos.Session, error)
	Update(ctx context.Context, id string, fn func(s *pos.Session) error) (*pos.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteIdle(ctx context.Context, before time.Time) (int64, error)
	SaveReceipt(ctx context.Context, r model.Receipt) error
	ListReceipts(ctx context.Context, sessionID string, limit int) ([]model.Receipt, error)
}

// Catalog описывает поиск товаров каталога.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	FindProductByBarcode(ctx context.Context, barcode string) (*model.Product, error)
}

// Customers описывает справочник покупателей.
type Customers interface {
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
}

// Sales описывает регистрацию продаж.
type Sales interface {
	CreateSale(ctx context.Context, sale model.Sale) (*model.SaleRecord, error)
}

// Backend объединяет внешние API, нужные кассе.
type Backend interface {
	Catalog
	Customers
	Sales
}

// ItemRef указывает товар по идентификатору или по штрихкоду.
type ItemRef struct {
	ProductID string
	Barcode   string
}

// Service содержит сценарии кассы.
type Service struct {
	store   Store
	backend Backend
	logger  *zap.Logger
	now     func() time.Time
}

// NewService создаёт сервис с хранилищем сессий и клиентом внешнего API.
func NewService(store Store, backend Backend, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		backend: backend,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// OpenSession создаёт кассовую сессию с пустой корзиной.
func (s *Service) OpenSession(ctx context.Context) (*pos.Session, error) {
	sess := pos.NewSession(s.now())
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// CloseSession удаляет сессию вместе с корзиной. Сессию с начатым оформлением
// закрыть нельзя. Чеки сессии остаются.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.State == pos.StateCheckoutPending {
		return pos.ErrCheckoutPending
	}
	return s.store.Delete(ctx, id)
}

// GetSession возвращает сессию с корзиной.
func (s *Service) GetSession(ctx context.Context, id string) (*pos.Session, error) {
	return s.store.Get(ctx, id)
}

// AddItem ищет товар в каталоге и добавляет его в корзину.
func (s *Service) AddItem(ctx context.Context, sessionID string, ref ItemRef) (*pos.Session, error) {
	p, err := s.lookupProduct(ctx, ref)
	if err != nil {
		return nil, err
	}

	if !p.IsActive || p.Stock.Quantity < 1 {
		return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, p.ID)
	}

	item := toCartProduct(p)
	return s.mutate(ctx, sessionID, func(c *cart.Cart) error {
		_, err := c.AddLine(item)
		return err
	})
}

// SetQuantity задаёт количество товара в строке. Ноль удаляет строку.
func (s *Service) SetQuantity(ctx context.Context, sessionID, productID string, quantity int) (*pos.Session, error) {
	return s.mutate(ctx, sessionID, func(c *cart.Cart) error {
		_, _, err := c.SetQuantity(productID, quantity)
		return err
	})
}

// SetLineDiscount задаёт скидку строки.
func (s *Service) SetLineDiscount(ctx context.Context, sessionID, productID string, discount decimal.Decimal, typ cart.DiscountType) (*pos.Session, error) {
	return s.mutate(ctx, sessionID, func(c *cart.Cart) error {
		_, err := c.SetLineDiscount(productID, discount, typ)
		return err
	})
}

// RemoveLine удаляет строку. Удаление отсутствующей строки не является ошибкой.
func (s *Service) RemoveLine(ctx context.Context, sessionID, productID string) (*pos.Session, error) {
	return s.mutate(ctx, sessionID, func(c *cart.Cart) error {
		c.RemoveLine(productID)
		return nil
	})
}

// SetCartDiscount задаёт скидку уровня корзины.
func (s *Service) SetCartDiscount(ctx context.Context, sessionID string, amount decimal.Decimal, typ cart.DiscountType) (*pos.Session, error) {
	return s.mutate(ctx, sessionID, func(c *cart.Cart) error {
		return c.SetDiscount(amount, typ)
	})
}

// ClearCart очищает корзину и скидку корзины.
func (s *Service) ClearCart(ctx context.Context, sessionID string) (*pos.Session, error) {
	return s.mutate(ctx, sessionID, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

// SetCustomer привязывает покупателя к сессии после проверки в справочнике.
// Пустой идентификатор отвязывает покупателя.
func (s *Service) SetCustomer(ctx context.Context, sessionID, customerID string) (*pos.Session, error) {
	if customerID != "" {
		if _, err := s.lookupCustomer(ctx, customerID); err != nil {
			return nil, err
		}
	}

	return s.store.Update(ctx, sessionID, func(sess *pos.Session) error {
		return sess.SetCustomer(s.now(), customerID)
	})
}

// BeginCheckout переводит сессию в оформление продажи.
func (s *Service) BeginCheckout(ctx context.Context, sessionID string) (*pos.Session, error) {
	return s.store.Update(ctx, sessionID, func(sess *pos.Session) error {
		return sess.BeginCheckout(s.now())
	})
}

// CancelCheckout отменяет оформление, корзина сохраняется. Пока продажа
// передаётся в API, возвращается pos.ErrCheckoutPending.
func (s *Service) CancelCheckout(ctx context.Context, sessionID string) (*pos.Session, error) {
	return s.store.Update(ctx, sessionID, func(sess *pos.Session) error {
		return sess.CancelCheckout(s.now())
	})
}

// Checkout оформляет продажу: отмечает сессию как передаваемую, регистрирует
// продажу во внешнем API и очищает корзину. До ответа API сессия заблокирована
// для изменений, отмены и повторной передачи. При отказе API оформление
// отменяется, корзина остаётся для повторной попытки.
func (s *Service) Checkout(ctx context.Context, sessionID string, req pos.CheckoutRequest) (model.Receipt, error) {
	sess, err := s.store.Update(ctx, sessionID, func(sess *pos.Session) error {
		return sess.BeginSubmission(s.now())
	})
	if err != nil {
		return model.Receipt{}, err
	}

	// Итог передачи фиксируется, даже если клиент уже отключился.
	settleCtx := context.WithoutCancel(ctx)

	var customer *model.Customer
	if sess.CustomerID != "" {
		customer, err = s.lookupCustomer(ctx, sess.CustomerID)
		if err != nil {
			s.abort(settleCtx, sessionID)
			return model.Receipt{}, err
		}
	}

	sale, err := pos.BuildSale(sess, req, customer)
	if err != nil {
		s.abort(settleCtx, sessionID)
		return model.Receipt{}, err
	}

	record, err := s.backend.CreateSale(ctx, sale)
	if err != nil {
		s.abort(settleCtx, sessionID)
		s.logger.Warn("sale rejected",
			zap.String("session", sessionID),
			zap.Float64("total", sale.Total),
			zap.Error(err),
		)
		return model.Receipt{}, fmt.Errorf("%w: %w", ErrCheckoutFailed, err)
	}

	now := s.now()
	receipt := pos.NewReceipt(sessionID, *record, sale, now)

	if _, err := s.store.Update(settleCtx, sessionID, func(sess *pos.Session) error {
		return sess.Complete(now)
	}); err != nil {
		s.logger.Error("complete checkout",
			zap.String("session", sessionID),
			zap.String("invoice", record.InvoiceNumber),
			zap.Error(err),
		)
	}

	if err := s.store.SaveReceipt(settleCtx, receipt); err != nil {
		s.logger.Error("save receipt",
			zap.String("session", sessionID),
			zap.String("invoice", record.InvoiceNumber),
			zap.Error(err),
		)
	}

	s.logger.Info("sale completed",
		zap.String("session", sessionID),
		zap.String("invoice", receipt.InvoiceNumber),
		zap.Float64("total", receipt.Total),
		zap.String("paymentMode", string(receipt.PaymentMode)),
	)

	return receipt, nil
}

// ListReceipts возвращает последние чеки сессии.
func (s *Service) ListReceipts(ctx context.Context, sessionID string, limit int) ([]model.Receipt, error) {
	if _, err := s.store.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListReceipts(ctx, sessionID, limit)
}

// StartSessionSweeper раз в минуту удаляет сессии, простаивающие дольше ttl.
func (s *Service) StartSessionSweeper(ctx context.Context, ttl time.Duration) {
	s.runSweeper(ctx, ttl, time.Minute)
}

func (s *Service) runSweeper(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, ttl)
		}
	}
}

func (s *Service) sweep(ctx context.Context, ttl time.Duration) {
	n, err := s.store.DeleteIdle(ctx, s.now().Add(-ttl))
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("evict idle sessions", zap.Error(err))
		}
		return
	}
	if n > 0 {
		s.logger.Info("idle sessions evicted", zap.Int64("count", n), zap.Duration("ttl", ttl))
	}
}

func (s *Service) mutate(ctx context.Context, sessionID string, fn func(c *cart.Cart) error) (*pos.Session, error) {
	return s.store.Update(ctx, sessionID, func(sess *pos.Session) error {
		return sess.Mutate(s.now(), fn)
	})
}

func (s *Service) abort(ctx context.Context, sessionID string) {
	_, err := s.store.Update(ctx, sessionID, func(sess *pos.Session) error {
		return sess.AbortSubmission(s.now())
	})
	if err != nil {
		s.logger.Error("abort checkout", zap.String("session", sessionID), zap.Error(err))
	}
}

func (s *Service) lookupProduct(ctx context.Context, ref ItemRef) (*model.Product, error) {
	var (
		p   *model.Product
		err error
	)
	if ref.ProductID != "" {
		p, err = s.backend.GetProduct(ctx, ref.ProductID)
	} else {
		p, err = s.backend.FindProductByBarcode(ctx, ref.Barcode)
	}

	if errors.Is(err, stockapi.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) lookupCustomer(ctx context.Context, id string) (*model.Customer, error) {
	c, err := s.backend.GetCustomer(ctx, id)
	if errors.Is(err, stockapi.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// toCartProduct переводит товар каталога в позицию корзины. Дробный остаток округляется вниз.
func toCartProduct(p *model.Product) cart.Product {
	return cart.Product{
		ID:            p.ID,
		Name:          p.Name,
		SKU:           p.SKU,
		SellingPrice:  decimal.NewFromFloat(p.Pricing.SellingPrice),
		TaxRate:       decimal.NewFromFloat(p.Pricing.TaxRate),
		StockQuantity: int(p.Stock.Quantity),
	}
}
