package pricing

import (
	"fmt"
	"strconv"
)

// CategoryNote is the only catalog category that takes part in tiered pricing.
const CategoryNote = "Note"

// Default price points in the store currency.
const (
	PriceNoteBase   = 10.0
	PriceNoteTier1  = 8.0
	PriceNoteTier2  = 7.0
	PriceFullAccess = 89.0
)

// Default tier thresholds expressed as regular note counts.
const (
	Tier1MinNotes      = 3
	Tier2MinNotes      = 5
	FullAccessMinNotes = 21
)

// Tier names the notes pricing branch that was applied to a cart.
type Tier string

const (
	TierNone       Tier = "none"
	TierBase       Tier = "base"
	TierThreePack  Tier = "three_pack"
	TierFivePack   Tier = "five_pack"
	TierFullAccess Tier = "full_access_cap"
	TierBundle     Tier = "bundle"
)

// LineItem is the pricing view of a cart entry.
type LineItem struct {
	ID       string
	Category string
	Price    float64
	Quantity int
}

// Totals is the result of pricing a cart. Total and Message are the contract consumed by the
// cart and checkout surfaces; the remaining fields explain how the total was reached.
type Totals struct {
	Total       float64 `json:"total"`
	Message     string  `json:"message"`
	NotesCost   float64 `json:"notesCost"`
	OtherCost   float64 `json:"otherCost"`
	NoteCount   int     `json:"noteCount"`
	BundleCount int     `json:"bundleCount"`
	Tier        Tier    `json:"tier"`
}

// CalculateCartTotals prices items with the default schedule. bundleID may be empty when no
// bundle product is configured.
func CalculateCartTotals(items []LineItem, bundleID string) Totals {
	return DefaultSchedule().Calculate(items, bundleID)
}

// Calculate prices items against the schedule. It never fails: every cart maps to exactly one
// notes branch, and entries with a non-positive quantity are ignored.
func (s Schedule) Calculate(items []LineItem, bundleID string) Totals {
	var out Totals
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		switch {
		case bundleID != "" && it.ID == bundleID:
			out.BundleCount += it.Quantity
		case it.Category == CategoryNote:
			out.NoteCount += it.Quantity
		default:
			out.OtherCost += it.Price * float64(it.Quantity)
		}
	}

	count := out.NoteCount
	switch {
	case out.BundleCount > 0:
		out.Tier = TierBundle
		out.NotesCost = float64(out.BundleCount) * s.FullAccessPrice
		out.Message = "DaBao Active: All Notes Included!"
	case count >= s.FullAccessMin:
		out.Tier = TierFullAccess
		out.NotesCost = s.FullAccessPrice
		out.Message = fmt.Sprintf("Full Access Price Cap Applied ($%s)", formatPrice(s.FullAccessPrice))
	case count >= s.Tier2Min:
		out.Tier = TierFivePack
		out.NotesCost = float64(count) * s.Tier2Price
		out.Message = fmt.Sprintf("%d-Pack Discount Applied ($%s/note)", s.Tier2Min, formatPrice(s.Tier2Price))
	case count >= s.Tier1Min:
		out.Tier = TierThreePack
		out.NotesCost = float64(count) * s.Tier1Price
		out.Message = fmt.Sprintf("%d-Pack Discount Applied ($%s/note)", s.Tier1Min, formatPrice(s.Tier1Price))
	case count > 0:
		out.Tier = TierBase
		out.NotesCost = float64(count) * s.BasePrice
		out.Message = fmt.Sprintf("Add %d more notes to save ($%s/each)!", s.Tier1Min-count, formatPrice(s.Tier1Price))
	default:
		out.Tier = TierNone
	}

	out.Total = out.NotesCost + out.OtherCost
	return out
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
