package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/maxnotes/storefront/internal/payment"
)

const stripeWebhookSecret = "whsec_test_secret"

func newStripe(t *testing.T, apiURL string) *payment.Stripe {
	t.Helper()
	s, err := payment.NewStripe(payment.StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: stripeWebhookSecret,
		APIURL:        apiURL,
		SuccessURL:    "https://maxnotes.example/checkout/success",
		CancelURL:     "https://maxnotes.example/cart",
	})
	require.NoError(t, err)
	return s
}

func TestNewStripeRequiresKey(t *testing.T) {
	_, err := payment.NewStripe(payment.StripeConfig{})
	require.Error(t, err)
}

func TestStripeCreateIntent(t *testing.T) {
	var (
		form          map[string]string
		method, route string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, route = r.Method, r.URL.Path
		_ = r.ParseForm()
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "cs_test_123",
			"object":     "checkout.session",
			"url":        "https://checkout.stripe.com/c/pay/cs_test_123",
			"expires_at": time.Now().Add(time.Hour).Unix(),
		})
	}))
	t.Cleanup(srv.Close)

	s := newStripe(t, srv.URL)
	resp, err := s.CreateIntent(context.Background(), payment.IntentRequest{
		Reference: "MXN-42",
		Amount:    24,
		Currency:  "USD",
		Email:     "student@example.com",
		ExpiresIn: time.Hour,
	})
	require.NoError(t, err)
	require.Equal(t, "stripe", resp.Provider)
	require.Equal(t, "cs_test_123", resp.Token)
	require.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_123", resp.RedirectURL)
	require.False(t, resp.ExpiresAt.IsZero())

	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "/v1/checkout/sessions", route)

	require.Equal(t, "MXN-42", form["client_reference_id"])
	require.Equal(t, "payment", form["mode"])
	require.Equal(t, "2400", form["line_items[0][price_data][unit_amount]"])
	require.Equal(t, "usd", form["line_items[0][price_data][currency]"])
	require.Equal(t, "1", form["line_items[0][quantity]"])
	require.Equal(t, "student@example.com", form["customer_email"])
	require.Equal(t, "https://maxnotes.example/checkout/success?reference=MXN-42", form["success_url"])
	require.NotEmpty(t, form["expires_at"])
}

func TestStripeCreateIntentRejectsZeroAmount(t *testing.T) {
	s := newStripe(t, "http://127.0.0.1:1")
	_, err := s.CreateIntent(context.Background(), payment.IntentRequest{Reference: "MXN-1", Amount: 0})
	require.Error(t, err)
}

func signedStripeRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    stripeWebhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/stripe", nil)
	req.Header.Set(payment.StripeSignatureHeader, signed.Header)
	return req
}

func stripeEvent(eventType, paymentStatus string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"id":          "evt_test_1",
		"object":      "event",
		"type":        eventType,
		"api_version": "2023-10-16",
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_test_123",
				"object":              "checkout.session",
				"client_reference_id": "MXN-42",
				"amount_total":        2400,
				"payment_status":      paymentStatus,
			},
		},
	})
	return raw
}

func TestStripeVerifyWebhook(t *testing.T) {
	s := newStripe(t, "")

	cases := []struct {
		name      string
		eventType string
		payStatus string
		want      payment.Status
	}{
		{name: "completed", eventType: "checkout.session.completed", payStatus: "paid", want: payment.StatusPaid},
		{name: "completed but unpaid", eventType: "checkout.session.completed", payStatus: "unpaid", want: payment.StatusPending},
		{name: "async succeeded", eventType: "checkout.session.async_payment_succeeded", payStatus: "paid", want: payment.StatusPaid},
		{name: "async failed", eventType: "checkout.session.async_payment_failed", payStatus: "unpaid", want: payment.StatusFailed},
		{name: "expired", eventType: "checkout.session.expired", payStatus: "unpaid", want: payment.StatusExpired},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			body := stripeEvent(tc.eventType, tc.payStatus)
			res, err := s.VerifyWebhook(signedStripeRequest(t, body), body)
			require.NoError(t, err)
			require.True(t, res.Valid)
			require.Equal(t, tc.want, res.Status)
			require.Equal(t, "MXN-42", res.Reference)
			require.InDelta(t, 24, res.Amount, 1e-9)
		})
	}
}

func TestStripeVerifyWebhookRejects(t *testing.T) {
	s := newStripe(t, "")
	body := stripeEvent("checkout.session.completed", "paid")

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(payment.StripeSignatureHeader, "t=1,v1=bogus")
	res, err := s.VerifyWebhook(req, body)
	require.NoError(t, err)
	require.False(t, res.Valid)

	other := stripeEvent("customer.created", "paid")
	_, err = s.VerifyWebhook(signedStripeRequest(t, other), other)
	require.Error(t, err)
}
