package catalog

import "strings"

// FilterAll disables filter category matching.
const FilterAll = "All"

var filters = []string{
	FilterAll,
	"Year 1",
	"Year 2",
	"Year 3",
	"Year 4",
	"Prescribed Elective",
	"Design Elective",
	"Technical Elective",
	"Others",
}

// Filters returns the storefront filter categories in display order.
func Filters() []string {
	return append([]string(nil), filters...)
}

// IsFilter reports whether name is a known filter category.
func IsFilter(name string) bool {
	for _, f := range filters {
		if f == name {
			return true
		}
	}
	return false
}

// Product is a purchasable catalog entry. Notes are delivered as Google Drive folders.
type Product struct {
	ID             string   `json:"id" validate:"required,max=64"`
	Code           string   `json:"code" validate:"max=32"`
	Name           string   `json:"name" validate:"required,max=200"`
	Description    string   `json:"description"`
	Price          float64  `json:"price" validate:"gte=0"`
	Category       string   `json:"category" validate:"required"`
	Tags           []string `json:"tags"`
	Image          string   `json:"image" validate:"omitempty,url"`
	FilterCategory string   `json:"filterCategory"`
	GoogleDriveID  string   `json:"googleDriveId"`
}

// Matches reports whether the product name or code contains query, ignoring case.
func (p Product) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Code), q)
}

// Snapshot is a loaded catalog: the regular products plus the optional full-access bundle.
type Snapshot struct {
	Products []Product `json:"products" validate:"dive"`
	Bundle   *Product  `json:"bundle,omitempty"`
}

// BundleID returns the bundle product id or an empty string when none is configured.
func (s Snapshot) BundleID() string {
	if s.Bundle == nil {
		return ""
	}
	return s.Bundle.ID
}

// Find looks up a product or the bundle by id.
func (s Snapshot) Find(id string) (Product, bool) {
	if s.Bundle != nil && s.Bundle.ID == id {
		return *s.Bundle, true
	}
	for _, p := range s.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
