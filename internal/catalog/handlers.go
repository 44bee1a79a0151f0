package catalog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/maxnotes/storefront/internal/common"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Products handles GET /api/v1/products?filter=&q=. The bundle is included only for the
// unfiltered listing, matching the storefront landing view.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	params := ListParams{
		Filter: r.URL.Query().Get("filter"),
		Query:  r.URL.Query().Get("q"),
	}
	items, err := h.service.List(r.Context(), params)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	body := map[string]any{"data": items}
	if (params.Filter == "" || params.Filter == FilterAll) && params.Query == "" {
		bundle, err := h.service.Bundle(r.Context())
		if err != nil {
			common.WriteError(w, err)
			return
		}
		if bundle != nil {
			body["bundle"] = bundle
		}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	common.JSON(w, http.StatusOK, body)
}

// ProductDetail handles GET /api/v1/products/{id}.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	product, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, product)
}

// Bundle handles GET /api/v1/bundle.
func (h *Handler) Bundle(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	bundle, err := h.service.Bundle(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if bundle == nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "no bundle configured", nil)
		return
	}
	common.Data(w, http.StatusOK, bundle)
}

// Filters handles GET /api/v1/filters.
func (h *Handler) Filters(w http.ResponseWriter, _ *http.Request) {
	common.Data(w, http.StatusOK, Filters())
}
