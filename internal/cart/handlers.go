package cart

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maxnotes/storefront/internal/common"
	"github.com/maxnotes/storefront/internal/pricing"
)

// BundleResolver reports the product id that acts as the full-access bundle.
type BundleResolver interface {
	BundleID(ctx context.Context) (string, error)
}

// Handler wires cart services to HTTP.
type Handler struct {
	Svc      *Service
	Bundles  BundleResolver
	Schedule pricing.Schedule
	Currency string
}

// View is the cart representation returned to clients. Pricing fields are flattened so
// total and message sit next to the items.
type View struct {
	ID        string    `json:"id"`
	Items     []Item    `json:"items"`
	ItemCount int       `json:"itemCount"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updatedAt"`
	pricing.Totals
}

// Create stores a new empty cart.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	c, err := h.Svc.Create(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, http.StatusCreated, c)
}

// Get returns cart contents with the pricing preview.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

// AddItem adds one unit of a product to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload struct {
		ProductID string `json:"productId"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.Svc.AddProduct(r.Context(), chi.URLParam(r, "id"), payload.ProductID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

// RemoveItem deletes a product line from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	c, err := h.Svc.Remove(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	c, err := h.Svc.Clear(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

// Render prices the cart for presentation.
func (h *Handler) Render(ctx context.Context, c Cart) (View, error) {
	bundleID := ""
	if h.Bundles != nil {
		id, err := h.Bundles.BundleID(ctx)
		if err != nil {
			return View{}, err
		}
		bundleID = id
	}
	schedule := h.Schedule
	if schedule == (pricing.Schedule{}) {
		schedule = pricing.DefaultSchedule()
	}
	items := c.Items
	if items == nil {
		items = []Item{}
	}
	return View{
		ID:        c.ID,
		Items:     items,
		ItemCount: c.Count(),
		Currency:  h.Currency,
		UpdatedAt: c.UpdatedAt,
		Totals:    c.Price(schedule, bundleID),
	}, nil
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, c Cart) {
	view, err := h.Render(r.Context(), c)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, status, view)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	if common.IsAppError(err) {
		common.WriteError(w, err)
		return
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrUnknownProduct):
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
