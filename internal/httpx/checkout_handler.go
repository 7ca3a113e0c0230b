package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-course-checkout/internal/checkout"
)

type CheckoutHandler struct {
	Validator *checkout.Validator
}

type ValidateReq struct {
	BuyerID    string                      `json:"buyer_id"`
	Selections []checkout.SelectionRequest `json:"selections"`
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/checkout/validate", h.validate)
}

// validate menghasilkan cart ter-harga utk membangun line item payment
// gateway. Advisory only — saga post-payment tidak pernah percaya hasil ini.
func (h *CheckoutHandler) validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.BuyerID == "" || len(req.Selections) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Validator.Validate(ctx, req.BuyerID, req.Selections)
	if err != nil {
		if isValidationError(err) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func isValidationError(err error) bool {
	return errors.Is(err, checkout.ErrUnknownProduct) ||
		errors.Is(err, checkout.ErrNoPricingOption) ||
		errors.Is(err, checkout.ErrMissingEnrollKey) ||
		errors.Is(err, checkout.ErrInvalidPrice)
}
