package checkout_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/maxnotes/storefront/internal/checkout"
	"github.com/maxnotes/storefront/internal/payment"
)

func newCheckoutRouter(h *checkout.Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/checkout", h.Checkout)
	r.Get("/checkout/{reference}", h.Status)
	r.Post("/checkout/{reference}/simulate-confirm", h.SimulateConfirm)
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutHandlers(t *testing.T) {
	f := newFixture(t)
	router := newCheckoutRouter(&checkout.Handler{Svc: f.svc})
	c := f.cartWith(t, "cs1010e", "ma1511", "ma1512")

	rec := serve(router, http.MethodPost, "/checkout", `{"cartId":"`+c.ID+`","email":"student@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data checkout.Output `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.InDelta(t, 24, created.Data.Amount, 1e-9)

	rec = serve(router, http.MethodGet, "/checkout/"+created.Data.Reference, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"PENDING"`)
	require.Contains(t, rec.Body.String(), `"redirectUrl":"https://pay.example/`+created.Data.Reference+`"`)
	require.NotContains(t, rec.Body.String(), "student@example.com")
	require.NotContains(t, rec.Body.String(), "providerToken")
	require.NotContains(t, rec.Body.String(), "tok_")
	require.NotContains(t, rec.Body.String(), c.ID)

	rec = serve(router, http.MethodGet, "/checkout/MXN-NOPE", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "SESSION_NOT_FOUND")

	rec = serve(router, http.MethodPost, "/checkout", `{"cartId":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPost, "/checkout", `{"cartId":"x","email":"y"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), `"email":"email"`)

	rec = serve(router, http.MethodPost, "/checkout/"+created.Data.Reference+"/simulate-confirm", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSimulateConfirmPayNow(t *testing.T) {
	f := newFixture(t)
	f.svc.Provider = payment.PayNow{UEN: "T00LL0000A", MerchantName: "MAXNOTES", Secret: "s3cret", Now: func() time.Time { return f.now }}
	f.svc.Currency = payment.PayNowCurrency
	router := newCheckoutRouter(&checkout.Handler{Svc: f.svc, SimulateConfirm: true})
	c := f.cartWith(t, "cs1010e")

	out, err := f.svc.Start(context.Background(), checkout.Input{CartID: c.ID, Email: "student@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, out.QRPayload)
	require.Equal(t, payment.PayNowSteps, out.Steps)

	rec := serve(router, http.MethodPost, "/checkout/"+out.Reference+"/simulate-confirm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"PAID"`)

	v, err := f.counter.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(843), v)
}
