package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-course-checkout/internal/orders"
)

type OrdersHandler struct {
	Repo *orders.Repo
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/orders", h.listOrders)
}

type orderItemView struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	// "active" kalau enrollment sukses, "pending" kalau gagal/belum tercatat.
	// Enrollment gagal tampil sebagai pending di riwayat, bukan checkout gagal.
	Status string `json:"status"`
}

type orderView struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"order_number"`
	PaymentStatus string          `json:"payment_status"`
	Subtotal      int64           `json:"subtotal"`
	Discount      int64           `json:"discount"`
	DiscountTier  string          `json:"discount_tier,omitempty"`
	Total         int64           `json:"total"`
	PaidAt        time.Time       `json:"paid_at"`
	Items         []orderItemView `json:"items"`
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	buyerID := r.URL.Query().Get("buyer_id")
	if buyerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing buyer_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	os, err := h.Repo.ListOrders(ctx, buyerID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	es, err := h.Repo.ListEnrollmentsByBuyer(ctx, buyerID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	type key struct{ orderID, productID string }
	status := make(map[key]orders.LifecycleStatus, len(es))
	for _, e := range es {
		status[key{e.OrderID, e.ProductID}] = e.Status
	}

	views := make([]orderView, 0, len(os))
	for _, o := range os {
		v := orderView{
			ID:            o.ID,
			OrderNumber:   o.OrderNumber,
			PaymentStatus: string(o.PaymentStatus),
			Subtotal:      o.Subtotal,
			Discount:      o.Discount,
			DiscountTier:  o.DiscountTier,
			Total:         o.Total,
			PaidAt:        o.PaidAt,
		}
		for _, it := range o.Items {
			st, ok := status[key{o.ID, it.ProductID}]
			if !ok {
				// saga crash sebelum sempat mencatat row = masih pending
				st = orders.StatusPending
			}
			v.Items = append(v.Items, orderItemView{
				ProductID: it.ProductID,
				Title:     it.Title,
				Price:     it.Price,
				Status:    string(st),
			})
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, views)
}
