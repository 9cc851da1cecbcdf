package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/stockpilot/internal/middleware"
)

// SetupRouter настраивает маршруты и middleware кассового API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/pos", func(r chi.Router) {
		r.Post("/sessions", h.OpenSession)

		r.Group(func(r chi.Router) {
			r.Use(h.sessions.Middleware)

			r.Delete("/sessions/current", h.CloseSession)

			r.Get("/cart", h.GetCart)
			r.Delete("/cart", h.ClearCart)
			r.Put("/cart/discount", h.SetCartDiscount)
			r.Put("/cart/customer", h.SetCustomer)

			r.Post("/cart/items", h.AddItem)
			r.Put("/cart/items/{productID}/quantity", h.SetQuantity)
			r.Put("/cart/items/{productID}/discount", h.SetLineDiscount)
			r.Delete("/cart/items/{productID}", h.RemoveLine)

			r.Post("/checkout/begin", h.BeginCheckout)
			r.Post("/checkout/cancel", h.CancelCheckout)
			r.Post("/checkout", h.Checkout)

			r.Get("/receipts", h.ListReceipts)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
