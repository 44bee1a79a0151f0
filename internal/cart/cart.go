package cart

import (
	"time"

	"github.com/maxnotes/storefront/internal/catalog"
	"github.com/maxnotes/storefront/internal/pricing"
)

// Item is a cart line. Product fields are captured when the product is first added.
type Item struct {
	ProductID     string  `json:"productId"`
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	Price         float64 `json:"price"`
	Image         string  `json:"image,omitempty"`
	GoogleDriveID string  `json:"googleDriveId,omitempty"`
	Quantity      int     `json:"quantity"`
}

// Cart is an ephemeral shopping cart. Items are unique by ProductID.
type Cart struct {
	ID        string    `json:"id"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Count returns the total quantity across all lines.
func (c Cart) Count() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// LineItems adapts the cart to pricing input.
func (c Cart) LineItems() []pricing.LineItem {
	out := make([]pricing.LineItem, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, pricing.LineItem{
			ID:       it.ProductID,
			Category: it.Category,
			Price:    it.Price,
			Quantity: it.Quantity,
		})
	}
	return out
}

// Price runs the pricing engine over the cart.
func (c Cart) Price(schedule pricing.Schedule, bundleID string) pricing.Totals {
	return schedule.Calculate(c.LineItems(), bundleID)
}

func (c *Cart) add(p catalog.Product) {
	for i := range c.Items {
		if c.Items[i].ProductID == p.ID {
			c.Items[i].Quantity++
			return
		}
	}
	c.Items = append(c.Items, Item{
		ProductID:     p.ID,
		Code:          p.Code,
		Name:          p.Name,
		Category:      p.Category,
		Price:         p.Price,
		Image:         p.Image,
		GoogleDriveID: p.GoogleDriveID,
		Quantity:      1,
	})
}

func (c *Cart) remove(productID string) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}
