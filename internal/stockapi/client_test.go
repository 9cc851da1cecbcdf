package stockapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmeshcher/stockpilot/internal/model"
)

func TestGetProduct_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/products/p-1" {
			t.Fatalf("path = %s, want /api/products/p-1", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("authorization = %q, want bearer token", got)
		}

		resp := model.Product{
			ID:       "p-1",
			Name:     "Basmati rice 1kg",
			SKU:      "RICE-1",
			IsActive: true,
			Pricing:  model.Pricing{SellingPrice: 100, TaxRate: 18},
			Stock:    model.Stock{Quantity: 5},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	p, err := client.GetProduct(ctx, "p-1")
	if err != nil {
		t.Fatalf("GetProduct error: %v", err)
	}
	if p.ID != "p-1" || p.Pricing.SellingPrice != 100 || p.Stock.Quantity != 5 {
		t.Fatalf("unexpected product: %+v", p)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	_, err := client.GetProduct(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetCustomer_RetriesAfterTooManyRequests(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(model.Customer{ID: "c-1", Name: "Asha"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c, err := client.GetCustomer(ctx, "c-1")
	if err != nil {
		t.Fatalf("GetCustomer error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if c.Name != "Asha" {
		t.Fatalf("unexpected customer: %+v", c)
	}
}

func TestFindProductByBarcode_ExactMatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search"); got != "4006381333931" {
			t.Fatalf("search = %q", got)
		}
		_ = json.NewEncoder(w).Encode([]model.Product{
			{ID: "p-9", Barcode: "40063813339310"},
			{ID: "p-1", Barcode: "4006381333931"},
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	p, err := client.FindProductByBarcode(context.Background(), "4006381333931")
	if err != nil {
		t.Fatalf("FindProductByBarcode error: %v", err)
	}
	if p.ID != "p-1" {
		t.Fatalf("id = %s, want p-1", p.ID)
	}
}

func TestCreateSale_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sales" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}

		var sale model.Sale
		if err := json.NewDecoder(r.Body).Decode(&sale); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if sale.Total != 118 || len(sale.Items) != 1 {
			t.Fatalf("unexpected sale: %+v", sale)
		}

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(model.SaleRecord{ID: "s-1", InvoiceNumber: "INV-20260314-0001"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	rec, err := client.CreateSale(context.Background(), model.Sale{
		Items: []model.SaleItem{{ProductID: "p-1", Quantity: 1, UnitPrice: 100, LineTotal: 118}},
		Total: 118,
	})
	if err != nil {
		t.Fatalf("CreateSale error: %v", err)
	}
	if rec.InvoiceNumber != "INV-20260314-0001" {
		t.Fatalf("invoice = %s", rec.InvoiceNumber)
	}
}

func TestCreateSale_UpstreamDetail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Insufficient stock for Basmati rice 1kg. Available: 0"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	_, err := client.CreateSale(context.Background(), model.Sale{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", apiErr.Status)
	}
	if apiErr.Detail != "Insufficient stock for Basmati rice 1kg. Available: 0" {
		t.Fatalf("detail = %q", apiErr.Detail)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	client := NewClient("", "")

	if _, err := client.GetProduct(context.Background(), "p-1"); err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
