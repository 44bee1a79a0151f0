package payment_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/maxnotes/storefront/internal/common"
	"github.com/maxnotes/storefront/internal/payment"
)

type recordingSettler struct {
	calls []payment.WebhookVerifyResult
	err   error
}

func (s *recordingSettler) Settle(_ context.Context, _ string, res payment.WebhookVerifyResult) error {
	s.calls = append(s.calls, res)
	return s.err
}

func newWebhookRouter(t *testing.T, settler payment.Settler) (http.Handler, payment.PayNow) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	paynow := payment.PayNow{Secret: "s3cret"}
	h := payment.Webhook{
		Providers: map[string]payment.Provider{"paynow": paynow},
		Replay:    client,
		ReplayTTL: time.Hour,
		Settler:   settler,
	}
	r := chi.NewRouter()
	r.Post("/webhooks/payment/{provider}", h.Handle)
	return r, paynow
}

func postWebhook(h http.Handler, provider string, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/"+provider, bytes.NewReader(body))
	if sig != "" {
		req.Header.Set(payment.PayNowSignatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookSettlesOnceAndRejectsReplay(t *testing.T) {
	settler := &recordingSettler{}
	router, paynow := newWebhookRouter(t, settler)
	body := []byte(`{"reference":"MXN-7","amount":42,"status":"PAID"}`)

	rec := postWebhook(router, "paynow", body, paynow.Sign(body))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, settler.calls, 1)
	require.Equal(t, "MXN-7", settler.calls[0].Reference)
	require.Equal(t, payment.StatusPaid, settler.calls[0].Status)

	rec = postWebhook(router, "paynow", body, paynow.Sign(body))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, settler.calls, 1)
}

func TestWebhookRejectsBadRequests(t *testing.T) {
	settler := &recordingSettler{}
	router, _ := newWebhookRouter(t, settler)
	body := []byte(`{"reference":"MXN-7","amount":42,"status":"PAID"}`)

	rec := postWebhook(router, "paynow", body, "bad")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postWebhook(router, "bitcoin", body, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, settler.calls)
}

func TestWebhookSettlementFailureAllowsRedelivery(t *testing.T) {
	settler := &recordingSettler{err: common.NewAppError("AMOUNT_MISMATCH", "amount does not match", http.StatusBadRequest, errors.New("mismatch"))}
	router, paynow := newWebhookRouter(t, settler)
	body := []byte(`{"reference":"MXN-8","amount":1,"status":"PAID"}`)

	rec := postWebhook(router, "paynow", body, paynow.Sign(body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "AMOUNT_MISMATCH")

	settler.err = nil
	rec = postWebhook(router, "paynow", body, paynow.Sign(body))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, settler.calls, 2)
}
