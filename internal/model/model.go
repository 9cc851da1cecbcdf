// Package model содержит сущности, которыми касса обменивается с REST API StockPilot.
package model

import "time"

// Product описывает товар каталога в том виде, в котором его отдаёт REST API.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	SKU      string  `json:"sku"`
	Barcode  string  `json:"barcode,omitempty"`
	IsActive bool    `json:"isActive"`
	Pricing  Pricing `json:"pricing"`
	Stock    Stock   `json:"stock"`
}

// Pricing содержит цены товара.
type Pricing struct {
	SellingPrice float64 `json:"sellingPrice"`
	TaxRate      float64 `json:"taxRate"`
}

// Stock содержит складской остаток товара.
type Stock struct {
	Quantity     float64 `json:"quantity"`
	ReorderPoint float64 `json:"reorderPoint"`
}

// Customer описывает покупателя.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// PaymentMode описывает способ оплаты продажи.
type PaymentMode string

const (
	PaymentCash       PaymentMode = "cash"
	PaymentCard       PaymentMode = "card"
	PaymentUPI        PaymentMode = "upi"
	PaymentNetBanking PaymentMode = "net_banking"
	PaymentWallet     PaymentMode = "wallet"
	PaymentCredit     PaymentMode = "credit"
)

// PaymentStatus описывает статус оплаты продажи.
type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPartial PaymentStatus = "partial"
)

// SaleItem описывает строку продажи, отправляемую в API продаж.
type SaleItem struct {
	ProductID    string  `json:"productId"`
	ProductName  string  `json:"productName"`
	SKU          string  `json:"sku"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	Discount     float64 `json:"discount"`
	DiscountType string  `json:"discountType"`
	TaxRate      float64 `json:"taxRate"`
	TaxAmount    float64 `json:"taxAmount"`
	LineTotal    float64 `json:"lineTotal"`
}

// Sale содержит итоговые данные продажи, которые касса передаёт в API продаж.
type Sale struct {
	CustomerID     *string       `json:"customerId"`
	CustomerName   *string       `json:"customerName"`
	CustomerPhone  *string       `json:"customerPhone"`
	Items          []SaleItem    `json:"items"`
	Subtotal       float64       `json:"subtotal"`
	DiscountAmount float64       `json:"discountAmount"`
	DiscountType   string        `json:"discountType"`
	TaxAmount      float64       `json:"taxAmount"`
	Total          float64       `json:"total"`
	AmountPaid     float64       `json:"amountPaid"`
	PaymentMode    PaymentMode   `json:"paymentMode"`
	PaymentStatus  PaymentStatus `json:"paymentStatus"`
	Notes          string        `json:"notes"`
}

// SaleRecord описывает ответ API продаж о зарегистрированной продаже.
type SaleRecord struct {
	ID            string    `json:"id"`
	InvoiceNumber string    `json:"invoiceNumber"`
	SaleDate      time.Time `json:"saleDate"`
}

// Receipt описывает успешно оформленную на кассе продажу.
type Receipt struct {
	SessionID     string
	SaleID        string
	InvoiceNumber string
	Total         float64
	AmountPaid    float64
	Change        float64
	PaymentMode   PaymentMode
	CreatedAt     time.Time
}
