package checkout

import (
	"time"

	"github.com/maxnotes/storefront/internal/cart"
	"github.com/maxnotes/storefront/internal/events"
	"github.com/maxnotes/storefront/internal/payment"
	"github.com/maxnotes/storefront/internal/pricing"
)

// Session is a checkout attempt. It is priced once, when it is opened, and settled at most once.
type Session struct {
	Reference     string         `json:"reference"`
	CartID        string         `json:"cartId"`
	Email         string         `json:"email"`
	Provider      string         `json:"provider"`
	ProviderToken string         `json:"providerToken,omitempty"`
	Status        payment.Status `json:"status"`
	Amount        float64        `json:"amount"`
	Currency      string         `json:"currency"`
	Message       string         `json:"message"`
	Tier          pricing.Tier   `json:"tier"`
	Units         int            `json:"units"`
	Items         []cart.Item    `json:"items"`
	RedirectURL   string         `json:"redirectUrl,omitempty"`
	QRPayload     string         `json:"qrPayload,omitempty"`
	Steps         []string       `json:"steps,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	ExpiresAt     time.Time      `json:"expiresAt"`
	SettledAt     *time.Time     `json:"settledAt,omitempty"`
}

func (s Session) payload() events.CheckoutPayload {
	products := make([]events.PurchasedProduct, 0, len(s.Items))
	for _, it := range s.Items {
		products = append(products, events.PurchasedProduct{
			ID:            it.ProductID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			GoogleDriveID: it.GoogleDriveID,
		})
	}
	return events.CheckoutPayload{
		Reference: s.Reference,
		CartID:    s.CartID,
		Email:     s.Email,
		Provider:  s.Provider,
		Amount:    s.Amount,
		Currency:  s.Currency,
		Units:     s.Units,
		Message:   s.Message,
		Products:  products,
	}
}

// Input is the checkout request body.
type Input struct {
	CartID string `json:"cartId" validate:"required,uuid"`
	Email  string `json:"email" validate:"required,email,max=254"`
}

// Output tells the client how to complete payment.
type Output struct {
	Reference   string         `json:"reference"`
	Status      payment.Status `json:"status"`
	Provider    string         `json:"provider"`
	Amount      float64        `json:"amount"`
	Currency    string         `json:"currency"`
	Message     string         `json:"message"`
	Tier        pricing.Tier   `json:"tier"`
	RedirectURL string         `json:"redirectUrl,omitempty"`
	QRPayload   string         `json:"qrPayload,omitempty"`
	Steps       []string       `json:"steps,omitempty"`
	ExpiresAt   time.Time      `json:"expiresAt"`
}

// StatusView is the public shape of a session. It leaves out the buyer email, the provider
// token and the cart contents.
type StatusView struct {
	Reference   string         `json:"reference"`
	Status      payment.Status `json:"status"`
	Provider    string         `json:"provider"`
	Amount      float64        `json:"amount"`
	Currency    string         `json:"currency"`
	Message     string         `json:"message"`
	Tier        pricing.Tier   `json:"tier"`
	Units       int            `json:"units"`
	RedirectURL string         `json:"redirectUrl,omitempty"`
	QRPayload   string         `json:"qrPayload,omitempty"`
	Steps       []string       `json:"steps,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	SettledAt   *time.Time     `json:"settledAt,omitempty"`
}

// View trims the session for clients that only hold the reference.
func (s Session) View() StatusView {
	v := StatusView{
		Reference: s.Reference,
		Status:    s.Status,
		Provider:  s.Provider,
		Amount:    s.Amount,
		Currency:  s.Currency,
		Message:   s.Message,
		Tier:      s.Tier,
		Units:     s.Units,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		SettledAt: s.SettledAt,
	}
	if s.Status == payment.StatusPending {
		v.RedirectURL = s.RedirectURL
		v.QRPayload = s.QRPayload
		v.Steps = s.Steps
	}
	return v
}
