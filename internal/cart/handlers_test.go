package cart_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/maxnotes/storefront/internal/cart"
	"github.com/maxnotes/storefront/internal/pricing"
)

type cartEnvelope struct {
	Data struct {
		ID        string      `json:"id"`
		Items     []cart.Item `json:"items"`
		ItemCount int         `json:"itemCount"`
		Total     float64     `json:"total"`
		Message   string      `json:"message"`
		Tier      string      `json:"tier"`
		Currency  string      `json:"currency"`
	} `json:"data"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	_, svc, products := newService(t)
	h := &cart.Handler{Svc: svc, Bundles: products, Schedule: pricing.DefaultSchedule(), Currency: "USD"}
	r := chi.NewRouter()
	r.Post("/carts", h.Create)
	r.Get("/carts/{id}", h.Get)
	r.Delete("/carts/{id}", h.Clear)
	r.Post("/carts/{id}/items", h.AddItem)
	r.Delete("/carts/{id}/items/{productId}", h.RemoveItem)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, cartEnvelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req = req.WithContext(context.Background())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env cartEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestCartHandlersFlow(t *testing.T) {
	router := newRouter(t)

	status, env := do(t, router, http.MethodPost, "/carts", "")
	require.Equal(t, http.StatusCreated, status)
	id := env.Data.ID
	require.NotEmpty(t, id)
	require.Equal(t, "USD", env.Data.Currency)
	require.Equal(t, "none", env.Data.Tier)

	for _, p := range []string{"cs1010e", "ma1511"} {
		status, env = do(t, router, http.MethodPost, "/carts/"+id+"/items", `{"productId":"`+p+`"}`)
		require.Equal(t, http.StatusOK, status)
	}
	require.Equal(t, 2, env.Data.ItemCount)
	require.InDelta(t, 20, env.Data.Total, 1e-9)
	require.Equal(t, "Add 1 more notes to save ($8/each)!", env.Data.Message)

	status, env = do(t, router, http.MethodPost, "/carts/"+id+"/items", `{"productId":"formula-sheet-pack"}`)
	require.Equal(t, http.StatusOK, status)
	require.InDelta(t, 35, env.Data.Total, 1e-9)

	status, env = do(t, router, http.MethodDelete, "/carts/"+id+"/items/formula-sheet-pack", "")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, env.Data.Items, 2)

	status, env = do(t, router, http.MethodGet, "/carts/"+id, "")
	require.Equal(t, http.StatusOK, status)
	require.InDelta(t, 20, env.Data.Total, 1e-9)

	status, env = do(t, router, http.MethodDelete, "/carts/"+id, "")
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, env.Data.Items)
	require.Zero(t, env.Data.Total)
}

func TestCartHandlersErrors(t *testing.T) {
	router := newRouter(t)

	status, env := do(t, router, http.MethodGet, "/carts/nope", "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "BAD_REQUEST", env.Error.Code)

	status, env = do(t, router, http.MethodGet, "/carts/7f1d6b6c-93a6-4d49-9d8f-5b0c1c1a9f10", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NOT_FOUND", env.Error.Code)

	_, env = do(t, router, http.MethodPost, "/carts", "")
	id := env.Data.ID

	status, env = do(t, router, http.MethodPost, "/carts/"+id+"/items", `{"productId":"ghost"}`)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "PRODUCT_NOT_FOUND", env.Error.Code)

	status, env = do(t, router, http.MethodPost, "/carts/"+id+"/items", `{"productId":"cs1010e","qty":3}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "INVALID_JSON", env.Error.Code)
}
