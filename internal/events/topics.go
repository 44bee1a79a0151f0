package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicCheckoutStarted   = "checkout.started"
	TopicCheckoutCompleted = "checkout.completed"
	TopicCheckoutFailed    = "checkout.failed"
	TopicCheckoutExpired   = "checkout.expired"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicCheckoutStarted,
		TopicCheckoutCompleted,
		TopicCheckoutFailed,
		TopicCheckoutExpired,
	}
}

// PurchasedProduct is a product line delivered by a completed checkout.
type PurchasedProduct struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	GoogleDriveID string `json:"googleDriveId,omitempty"`
}

// CheckoutPayload is carried by every checkout.* event.
type CheckoutPayload struct {
	Reference string             `json:"reference"`
	CartID    string             `json:"cartId"`
	Email     string             `json:"email"`
	Provider  string             `json:"provider"`
	Amount    float64            `json:"amount"`
	Currency  string             `json:"currency"`
	Units     int                `json:"units"`
	Message   string             `json:"message,omitempty"`
	Products  []PurchasedProduct `json:"products,omitempty"`
}
