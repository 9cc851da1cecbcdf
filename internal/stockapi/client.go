// Package stockapi предоставляет клиент REST API StockPilot: каталог, покупатели и продажи.
package stockapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/stockpilot/internal/model"
)

// ErrNotFound возвращается, если API ответил 404.
var ErrNotFound = errors.New("not found")

// APIError описывает неуспешный ответ API. Detail берётся из поля detail тела ответа.
type APIError struct {
	Status     int
	Detail     string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unexpected status: %d", e.Status)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.Status, e.Detail)
}

// Client инкапсулирует HTTP-взаимодействие с REST API StockPilot.
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	maxRetryAfter time.Duration
}

// NewClient создаёт клиент API по указанному адресу. Пустой token не передаётся.
func NewClient(baseURL, token string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		maxRetryAfter: 10 * time.Second,
	}
}

// GetProduct запрашивает товар каталога по идентификатору.
func (c *Client) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	if err := c.do(ctx, http.MethodGet, "/api/products/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return &p, nil
}

// FindProductByBarcode ищет товар с точным совпадением штрихкода.
func (c *Client) FindProductByBarcode(ctx context.Context, barcode string) (*model.Product, error) {
	var products []model.Product
	path := "/api/products?" + url.Values{"search": {barcode}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &products); err != nil {
		return nil, fmt.Errorf("search product %s: %w", barcode, err)
	}

	for i := range products {
		if products[i].Barcode == barcode {
			return &products[i], nil
		}
	}

	return nil, fmt.Errorf("search product %s: %w", barcode, ErrNotFound)
}

// GetCustomer запрашивает покупателя по идентификатору.
func (c *Client) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	var cust model.Customer
	if err := c.do(ctx, http.MethodGet, "/api/customers/"+url.PathEscape(id), nil, &cust); err != nil {
		return nil, fmt.Errorf("get customer %s: %w", id, err)
	}
	return &cust, nil
}

// CreateSale регистрирует продажу. Повторная отправка не выполняется: продажа не идемпотентна.
func (c *Client) CreateSale(ctx context.Context, sale model.Sale) (*model.SaleRecord, error) {
	body, err := json.Marshal(sale)
	if err != nil {
		return nil, fmt.Errorf("encode sale: %w", err)
	}

	var rec model.SaleRecord
	if err := c.send(ctx, http.MethodPost, "/api/sales", body, &rec); err != nil {
		return nil, fmt.Errorf("create sale: %w", err)
	}
	return &rec, nil
}

// do выполняет идемпотентный запрос; на 429 ждёт Retry-After и повторяет один раз.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	err := c.send(ctx, method, path, body, out)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		return err
	}

	wait := apiErr.RetryAfter
	if wait <= 0 || wait > c.maxRetryAfter {
		return err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	return c.send(ctx, method, path, body, out)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, out any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("stockpilot api client not configured")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr := &APIError{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
		if seconds, parseErr := strconv.Atoi(resp.Header.Get("Retry-After")); parseErr == nil {
			apiErr.RetryAfter = time.Duration(seconds) * time.Second
		}
		return apiErr
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &APIError{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// readDetail извлекает сообщение об ошибке FastAPI из тела ответа.
func readDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(raw))
	}

	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil {
		return detail
	}
	return string(payload.Detail)
}
