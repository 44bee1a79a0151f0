package search

import (
	"net/http"
	"strings"

	"github.com/maxnotes/storefront/internal/catalog"
	"github.com/maxnotes/storefront/internal/common"
)

// Handler serves product search.
type Handler struct {
	Searcher Searcher
	Catalog  Catalog
}

// Search resolves ?q= through the AI searcher and falls back to keyword matching when the
// searcher returns nothing.
func (h Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "search not configured", nil)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		common.JSON(w, http.StatusOK, map[string]any{
			"data": []catalog.Product{},
			"meta": map[string]any{"query": q, "source": "none"},
		})
		return
	}
	searcher := h.Searcher
	if searcher == nil {
		searcher = Disabled{}
	}

	source := "ai"
	var (
		products []catalog.Product
		err      error
	)
	if ids := searcher.Search(r.Context(), q); len(ids) > 0 {
		products, err = h.Catalog.ByIDs(r.Context(), ids)
	}
	if err == nil && len(products) == 0 {
		source = "keyword"
		products, err = h.Catalog.List(r.Context(), catalog.ListParams{Query: q})
	}
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}
	w.Header().Set("X-Search-Source", source)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": products,
		"meta": map[string]any{"query": q, "source": source, "count": len(products)},
	})
}
