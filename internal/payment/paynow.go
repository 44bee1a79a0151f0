package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PayNowCurrency is the only currency a PayNow QR can settle in.
const PayNowCurrency = "SGD"

// ErrUnsupportedCurrency is returned when a provider cannot charge the requested currency.
var ErrUnsupportedCurrency = errors.New("payment: unsupported currency")

// PayNowSignatureHeader carries the hex HMAC-SHA256 of the confirmation body.
const PayNowSignatureHeader = "X-PayNow-Signature"

// PayNowSteps is the progress log shown while a PayNow checkout runs.
var PayNowSteps = []string{
	"Generating PayNow QR",
	"Awaiting bank transfer",
	"Verifying payment",
	"Granting Google Drive access",
}

// PayNow implements Provider as a simulated Singapore PayNow QR flow. No bank is contacted;
// confirmations arrive as HMAC-signed callbacks.
type PayNow struct {
	UEN          string
	MerchantName string
	Secret       string
	Now          func() time.Time
}

// Name identifies the provider in routes and metrics.
func (PayNow) Name() string { return "paynow" }

func (p PayNow) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// CreateIntent builds the PayNow QR payload for the requested amount.
func (p PayNow) CreateIntent(_ context.Context, req IntentRequest) (IntentResponse, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return IntentResponse{}, errors.New("reference is required")
	}
	if req.Amount <= 0 {
		return IntentResponse{}, errors.New("amount must be positive")
	}
	if c := strings.ToUpper(strings.TrimSpace(req.Currency)); c != "" && c != PayNowCurrency {
		return IntentResponse{}, fmt.Errorf("%w: paynow charges %s, got %s", ErrUnsupportedCurrency, PayNowCurrency, c)
	}
	ttl := req.ExpiresIn
	if ttl <= 0 {
		ttl = time.Hour
	}
	expiresAt := p.now().Add(ttl)
	qr := PayNowQR{
		UEN:          p.UEN,
		MerchantName: p.MerchantName,
		Amount:       req.Amount,
		Reference:    req.Reference,
		Expiry:       expiresAt,
	}
	steps := make([]string, len(PayNowSteps))
	copy(steps, PayNowSteps)
	return IntentResponse{
		Provider:  p.Name(),
		Token:     req.Reference,
		QRPayload: qr.Payload(),
		Steps:     steps,
		ExpiresAt: expiresAt,
	}, nil
}

// PayNowConfirmation is the callback body signed with the shared secret.
type PayNowConfirmation struct {
	Reference string  `json:"reference"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
}

// VerifyWebhook validates the callback signature and normalises the payload.
func (p PayNow) VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error) {
	expected := p.Sign(body)
	provided := strings.TrimSpace(r.Header.Get(PayNowSignatureHeader))
	if expected == "" || provided == "" || !hmac.Equal([]byte(expected), []byte(strings.ToLower(provided))) {
		return WebhookVerifyResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}
	var payload PayNowConfirmation
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookVerifyResult{}, fmt.Errorf("decode paynow confirmation: %w", err)
	}
	if strings.TrimSpace(payload.Reference) == "" {
		return WebhookVerifyResult{}, errors.New("missing reference")
	}
	return WebhookVerifyResult{
		Valid:           true,
		Reference:       payload.Reference,
		Amount:          payload.Amount,
		Status:          NormaliseStatus(payload.Status),
		ProviderPayload: body,
	}, nil
}

// Sign returns the hex HMAC-SHA256 of body, or "" when no secret is configured.
func (p PayNow) Sign(body []byte) string {
	key := strings.TrimSpace(p.Secret)
	if key == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
