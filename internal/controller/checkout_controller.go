package controller

import (
	"errors"
	"net/http"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/cassiomorais/reconciler/internal/service"
	"github.com/go-chi/chi/v5"
)

// CheckoutController serves the checkout page: starting a purchase,
// polling for its confirmation and the success view.
type CheckoutController struct {
	checkout *service.CheckoutService
}

func NewCheckoutController(checkout *service.CheckoutService) *CheckoutController {
	return &CheckoutController{checkout: checkout}
}

// Start handles POST /checkout/{planSlug}
func (h *CheckoutController) Start(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.checkout.StartCheckout(r.Context(), chi.URLParam(r, "planSlug"), req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fromCheckout(c))
}

// Status handles GET /payments/{id}/status
func (h *CheckoutController) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.checkout.GetPaymentStatus(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domainErrors.ErrPaymentNotFound) {
		writeJSON(w, http.StatusNotFound, PaymentStatusResponse{Status: "not_found"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromPaymentStatus(st))
}

// Success handles GET /checkout/success?plan_id=&receipt_id=
func (h *CheckoutController) Success(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d, err := h.checkout.GetSuccessDetails(q.Get("plan_id"), q.Get("receipt_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromSuccessDetails(d))
}
