package checkout

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maxnotes/storefront/internal/common"
	"github.com/maxnotes/storefront/internal/payment"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc *Service
	// SimulateConfirm enables the PayNow confirmation shortcut used by the demo storefront.
	SimulateConfirm bool
}

// Checkout opens a payment intent for the cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var payload Input
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Svc.Start(r.Context(), payload)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

// Status returns the checkout session for a reference.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	sess, err := h.Svc.Status(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sess.View())
}

// SimulateConfirm marks a pending PayNow checkout as paid, standing in for the bank callback.
func (h *Handler) SimulateConfirm(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	if !h.SimulateConfirm {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "simulation disabled", nil)
		return
	}
	ref := chi.URLParam(r, "reference")
	sess, err := h.Svc.Status(r.Context(), ref)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if sess.Provider != (payment.PayNow{}).Name() {
		common.JSONError(w, http.StatusConflict, "NOT_SIMULATED", "checkout does not use a simulated provider", nil)
		return
	}
	sess, err = h.Svc.Complete(r.Context(), ref, payment.StatusPaid, sess.Amount)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sess.View())
}
