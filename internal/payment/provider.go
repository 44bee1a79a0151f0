package payment

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"
)

// Status is the normalised payment state shared by every provider.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusFailed  Status = "FAILED"
	StatusExpired Status = "EXPIRED"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusExpired
}

// IntentRequest captures the information required to open a payment intent with a provider.
type IntentRequest struct {
	Reference   string
	Amount      float64
	Currency    string
	Description string
	Email       string
	ExpiresIn   time.Duration
}

// IntentResponse describes how the buyer completes payment. Hosted-page providers fill
// RedirectURL; QR providers fill QRPayload and Steps.
type IntentResponse struct {
	Provider    string
	Token       string
	RedirectURL string
	QRPayload   string
	Steps       []string
	ExpiresAt   time.Time
}

// WebhookVerifyResult contains the normalised data extracted from a webhook notification after signature verification.
type WebhookVerifyResult struct {
	Valid           bool
	Reference       string
	Amount          float64
	Status          Status
	ProviderPayload []byte
	Err             error
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error)
}

// MinorUnits converts a major-unit amount to cents, rounding half away from zero.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// SameAmount compares two major-unit amounts at cent precision.
func SameAmount(a, b float64) bool {
	return MinorUnits(a) == MinorUnits(b)
}

// NormaliseStatus maps provider-specific status strings onto Status.
func NormaliseStatus(status string) Status {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PAID", "SUCCESS", "SUCCEEDED", "SETTLED", "COMPLETE", "COMPLETED":
		return StatusPaid
	case "FAILED", "CANCELED", "CANCELLED", "DENY":
		return StatusFailed
	case "EXPIRED":
		return StatusExpired
	default:
		return StatusPending
	}
}
