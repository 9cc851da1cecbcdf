package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/stockpilot/internal/cart"
	"github.com/mmeshcher/stockpilot/internal/model"
	"github.com/mmeshcher/stockpilot/internal/pos"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository хранит кассовые сессии и чеки в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт репозиторий и применяет миграции схемы.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

var retryDelays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

// withRetry повторяет fn при конфликте сериализации, взаимоблокировке и обрыве соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i == len(retryDelays) {
			return err
		}

		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Create сохраняет новую сессию вместе с корзиной.
func (r *PostgresRepository) Create(ctx context.Context, s *pos.Session) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO pos_sessions
			   (id, customer_id, state, last_checkout, submitting, discount_amount, discount_type, updated_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			append(sessionValues(s), s.CreatedAt)...,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: %s", ErrSessionExists, s.ID)
			}
			return fmt.Errorf("insert session: %w", err)
		}

		if err := insertLines(ctx, tx, s.ID, s.Cart.Lines()); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// Get возвращает сессию без блокировки.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*pos.Session, error) {
	return loadSession(ctx, r.pool, id, false)
}

// Update загружает сессию под блокировкой строки, применяет fn и сохраняет результат.
// Если fn вернула ошибку, сохранённое состояние не меняется.
func (r *PostgresRepository) Update(ctx context.Context, id string, fn func(s *pos.Session) error) (*pos.Session, error) {
	var updated *pos.Session

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		s, err := loadSession(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if err := fn(s); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE pos_sessions
			 SET customer_id = $2, state = $3, last_checkout = $4, submitting = $5,
			     discount_amount = $6, discount_type = $7, updated_at = $8
			 WHERE id = $1`,
			sessionValues(s)...,
		)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM pos_cart_lines WHERE session_id = $1`, s.ID); err != nil {
			return fmt.Errorf("delete cart lines: %w", err)
		}

		if err := insertLines(ctx, tx, s.ID, s.Cart.Lines()); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete удаляет сессию. Строки корзины удаляются каскадно.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pos_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteIdle удаляет сессии, не менявшиеся с момента before, и возвращает их количество.
func (r *PostgresRepository) DeleteIdle(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pos_sessions WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SaveReceipt сохраняет чек оформленной продажи. Повтор по тому же sale_id игнорируется.
func (r *PostgresRepository) SaveReceipt(ctx context.Context, rc model.Receipt) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO pos_receipts
			   (session_id, sale_id, invoice_number, total, amount_paid, change, payment_mode, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (sale_id) DO NOTHING`,
			rc.SessionID, rc.SaleID, rc.InvoiceNumber,
			centsFromFloat(rc.Total), centsFromFloat(rc.AmountPaid), centsFromFloat(rc.Change),
			string(rc.PaymentMode), rc.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert receipt: %w", err)
		}
		return nil
	})
}

// ListReceipts возвращает последние чеки сессии, новые первыми.
func (r *PostgresRepository) ListReceipts(ctx context.Context, sessionID string, limit int) ([]model.Receipt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, sale_id, invoice_number, total, amount_paid, change, payment_mode, created_at
		 FROM pos_receipts
		 WHERE session_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select receipts: %w", err)
	}
	defer rows.Close()

	var res []model.Receipt
	for rows.Next() {
		var (
			rc                  model.Receipt
			total, paid, change int64
			paymentMode         string
		)
		if err := rows.Scan(&rc.SessionID, &rc.SaleID, &rc.InvoiceNumber,
			&total, &paid, &change, &paymentMode, &rc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}

		rc.Total = floatFromCents(total)
		rc.AmountPaid = floatFromCents(paid)
		rc.Change = floatFromCents(change)
		rc.PaymentMode = model.PaymentMode(paymentMode)
		res = append(res, rc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadSession(ctx context.Context, q querier, id string, forUpdate bool) (*pos.Session, error) {
	query := `SELECT id, customer_id, state, last_checkout, submitting, discount_amount, discount_type, created_at, updated_at
		 FROM pos_sessions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		s                   pos.Session
		state, lastCheckout string
		discount            decimal.Decimal
		discountType        string
	)
	err := q.QueryRow(ctx, query, id).Scan(&s.ID, &s.CustomerID, &state, &lastCheckout, &s.Submitting,
		&discount, &discountType, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	s.State = pos.State(state)
	s.LastCheckout = pos.State(lastCheckout)

	rows, err := q.Query(ctx,
		`SELECT product_id, name, sku, unit_price, quantity, discount, discount_type, tax_rate, max_stock
		 FROM pos_cart_lines
		 WHERE session_id = $1
		 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart lines: %w", err)
	}
	defer rows.Close()

	var lines []cart.Line
	for rows.Next() {
		var (
			l                cart.Line
			lineDiscountType string
		)
		if err := rows.Scan(&l.ProductID, &l.Name, &l.SKU, &l.UnitPrice, &l.Quantity,
			&l.Discount, &lineDiscountType, &l.TaxRate, &l.MaxStock); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}

		l.DiscountType = cart.DiscountType(lineDiscountType)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	c, err := cart.Restore(lines, cart.Modifiers{
		DiscountAmount: discount,
		DiscountType:   cart.DiscountType(discountType),
	})
	if err != nil {
		return nil, fmt.Errorf("restore cart %s: %w", id, err)
	}
	s.Cart = c

	return &s, nil
}

// sessionValues возвращает поля сессии в порядке столбцов
// id, customer_id, state, last_checkout, submitting, discount_amount, discount_type, updated_at.
// Суммы передаются как decimal.Decimal и хранятся в NUMERIC без округления.
func sessionValues(s *pos.Session) []any {
	m := s.Cart.Modifiers()
	return []any{
		s.ID, s.CustomerID, string(s.State), string(s.LastCheckout), s.Submitting,
		m.DiscountAmount, string(m.DiscountType), s.UpdatedAt,
	}
}

// lineValues возвращает поля строки корзины в порядке столбцов pos_cart_lines.
func lineValues(sessionID string, position int, l cart.Line) []any {
	return []any{
		sessionID, position, l.ProductID, l.Name, l.SKU,
		l.UnitPrice, l.Quantity, l.Discount, string(l.DiscountType),
		l.TaxRate, l.MaxStock,
	}
}

func insertLines(ctx context.Context, tx pgx.Tx, sessionID string, lines []cart.Line) error {
	if len(lines) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, l := range lines {
		batch.Queue(
			`INSERT INTO pos_cart_lines
			   (session_id, position, product_id, name, sku, unit_price, quantity, discount, discount_type, tax_rate, max_stock)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			lineValues(sessionID, i, l)...,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range lines {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert cart line: %w", err)
		}
	}

	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	return nil
}
