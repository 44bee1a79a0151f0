package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeSignatureHeader is the header Stripe signs webhook deliveries with.
const StripeSignatureHeader = "Stripe-Signature"

// Stripe hosted sessions cannot expire sooner than this.
const stripeMinSessionTTL = 30 * time.Minute

// StripeConfig configures the hosted checkout provider.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the Stripe API host, used by tests and stripe-mock.
	APIURL     string
	HTTPClient *http.Client
	SuccessURL string
	CancelURL  string
	Logger     zerolog.Logger
}

// Stripe implements Provider using Stripe Checkout hosted pages.
type Stripe struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
}

// NewStripe builds a Stripe provider bound to its own API client.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	logger := stripeLogger{log: cfg.Logger}
	backendCfg := func() *stripe.BackendConfig {
		bc := &stripe.BackendConfig{
			HTTPClient:        cfg.HTTPClient,
			LeveledLogger:     logger,
			MaxNetworkRetries: stripe.Int64(1),
		}
		if url := strings.TrimSpace(cfg.APIURL); url != "" {
			bc.URL = stripe.String(url)
		}
		return bc
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg()),
	}
	return &Stripe{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}, nil
}

// Name identifies the provider in routes and metrics.
func (*Stripe) Name() string { return "stripe" }

// CreateIntent opens a hosted checkout session charging the priced cart total as one line.
func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return IntentResponse{}, errors.New("reference is required")
	}
	cents := MinorUnits(req.Amount)
	if cents <= 0 {
		return IntentResponse{}, errors.New("amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}
	name := req.Description
	if name == "" {
		name = "MAXNotes order " + req.Reference
	}

	params := &stripe.CheckoutSessionParams{
		ClientReferenceID: stripe.String(req.Reference),
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		SuccessURL: stripe.String(withReference(s.successURL, req.Reference)),
		CancelURL:  stripe.String(withReference(s.cancelURL, req.Reference)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
				UnitAmount: stripe.Int64(cents),
			},
			Quantity: stripe.Int64(1),
		}},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	if req.ExpiresIn >= stripeMinSessionTTL {
		params.ExpiresAt = stripe.Int64(time.Now().Add(req.ExpiresIn).Unix())
	}
	params.AddMetadata("reference", req.Reference)
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return IntentResponse{}, fmt.Errorf("stripe checkout session: %w", err)
	}
	resp := IntentResponse{
		Provider:    s.Name(),
		Token:       sess.ID,
		RedirectURL: sess.URL,
	}
	if sess.ExpiresAt > 0 {
		resp.ExpiresAt = time.Unix(sess.ExpiresAt, 0).UTC()
	}
	return resp, nil
}

// VerifyWebhook checks the Stripe-Signature header and extracts the checkout session outcome.
func (s *Stripe) VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error) {
	if strings.TrimSpace(s.webhookSecret) == "" {
		return WebhookVerifyResult{Valid: false, Err: errors.New("webhook secret not configured")}, nil
	}
	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get(StripeSignatureHeader), s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}

	var status Status
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		status = StatusPaid
	case "checkout.session.async_payment_failed":
		status = StatusFailed
	case "checkout.session.expired":
		status = StatusExpired
	default:
		return WebhookVerifyResult{}, fmt.Errorf("unsupported stripe event %q", event.Type)
	}
	if event.Data == nil {
		return WebhookVerifyResult{}, errors.New("stripe event has no data")
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return WebhookVerifyResult{}, fmt.Errorf("decode checkout session: %w", err)
	}
	if status == StatusPaid && sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		status = StatusPending
	}
	ref := sess.ClientReferenceID
	if ref == "" {
		ref = sess.Metadata["reference"]
	}
	if ref == "" {
		return WebhookVerifyResult{}, errors.New("checkout session has no reference")
	}
	return WebhookVerifyResult{
		Valid:           true,
		Reference:       ref,
		Amount:          float64(sess.AmountTotal) / 100,
		Status:          status,
		ProviderPayload: body,
	}, nil
}

func withReference(base, ref string) string {
	if base == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "reference=" + ref
}

// stripeLogger routes stripe-go client logs through zerolog.
type stripeLogger struct {
	log zerolog.Logger
}

func (l stripeLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }
func (l stripeLogger) Infof(format string, v ...interface{})  { l.log.Debug().Msgf(format, v...) }
func (l stripeLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l stripeLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
