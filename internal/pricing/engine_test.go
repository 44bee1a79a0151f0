package pricing_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxnotes/storefront/internal/pricing"
)

const bundleID = "dabao-full-access"

func notes(n int) []pricing.LineItem {
	items := make([]pricing.LineItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, pricing.LineItem{
			ID:       fmt.Sprintf("note-%d", i),
			Category: pricing.CategoryNote,
			Price:    pricing.PriceNoteBase,
			Quantity: 1,
		})
	}
	return items
}

func bundle(qty int) pricing.LineItem {
	return pricing.LineItem{ID: bundleID, Category: pricing.CategoryNote, Price: pricing.PriceFullAccess, Quantity: qty}
}

func TestCalculateCartTotalsScenarios(t *testing.T) {
	cases := []struct {
		name    string
		items   []pricing.LineItem
		bundle  string
		total   float64
		message string
		tier    pricing.Tier
	}{
		{name: "empty cart", items: nil, bundle: bundleID, total: 0, message: "", tier: pricing.TierNone},
		{name: "empty cart without bundle", items: []pricing.LineItem{}, bundle: "", total: 0, message: "", tier: pricing.TierNone},
		{name: "scenario A two notes", items: notes(2), bundle: bundleID, total: 20, message: "Add 1 more notes to save ($8/each)!", tier: pricing.TierBase},
		{name: "one note", items: notes(1), bundle: bundleID, total: 10, message: "Add 2 more notes to save ($8/each)!", tier: pricing.TierBase},
		{name: "three notes", items: notes(3), bundle: bundleID, total: 24, message: "3-Pack Discount Applied ($8/note)", tier: pricing.TierThreePack},
		{name: "scenario B four notes", items: notes(4), bundle: bundleID, total: 32, message: "3-Pack Discount Applied ($8/note)", tier: pricing.TierThreePack},
		{name: "five notes", items: notes(5), bundle: bundleID, total: 35, message: "5-Pack Discount Applied ($7/note)", tier: pricing.TierFivePack},
		{name: "scenario C six notes", items: notes(6), bundle: bundleID, total: 42, message: "5-Pack Discount Applied ($7/note)", tier: pricing.TierFivePack},
		{name: "twenty notes", items: notes(20), bundle: bundleID, total: 140, message: "5-Pack Discount Applied ($7/note)", tier: pricing.TierFivePack},
		{name: "twenty one notes", items: notes(21), bundle: bundleID, total: 89, message: "Full Access Price Cap Applied ($89)", tier: pricing.TierFullAccess},
		{name: "scenario D twenty five notes", items: notes(25), bundle: bundleID, total: 89, message: "Full Access Price Cap Applied ($89)", tier: pricing.TierFullAccess},
		{name: "scenario E bundle overrides notes", items: append([]pricing.LineItem{bundle(1)}, notes(3)...), bundle: bundleID, total: 89, message: "DaBao Active: All Notes Included!", tier: pricing.TierBundle},
		{name: "bundle alone", items: []pricing.LineItem{bundle(1)}, bundle: bundleID, total: 89, message: "DaBao Active: All Notes Included!", tier: pricing.TierBundle},
		{
			name:    "bundle overrides full access tier with other items",
			items:   append(append([]pricing.LineItem{bundle(1)}, notes(25)...), pricing.LineItem{ID: "formula-sheet", Category: "Tool", Price: 15, Quantity: 2}),
			bundle:  bundleID,
			total:   119,
			message: "DaBao Active: All Notes Included!",
			tier:    pricing.TierBundle,
		},
		{name: "bundle quantity two", items: []pricing.LineItem{bundle(2)}, bundle: bundleID, total: 178, message: "DaBao Active: All Notes Included!", tier: pricing.TierBundle},
		{
			name:    "scenario F note plus other item",
			items:   append(notes(2), pricing.LineItem{ID: "formula-sheet", Category: "Tool", Price: 15, Quantity: 1}),
			bundle:  bundleID,
			total:   35,
			message: "Add 1 more notes to save ($8/each)!",
			tier:    pricing.TierBase,
		},
		{
			name:    "other items only",
			items:   []pricing.LineItem{{ID: "formula-sheet", Category: "Tool", Price: 15, Quantity: 2}},
			bundle:  bundleID,
			total:   30,
			message: "",
			tier:    pricing.TierNone,
		},
		{
			name:    "bundle id unset treats bundle as a note",
			items:   []pricing.LineItem{bundle(1)},
			bundle:  "",
			total:   10,
			message: "Add 2 more notes to save ($8/each)!",
			tier:    pricing.TierBase,
		},
		{
			name:    "quantities count towards tiers",
			items:   []pricing.LineItem{{ID: "cs1010", Category: pricing.CategoryNote, Price: 10, Quantity: 5}},
			bundle:  bundleID,
			total:   35,
			message: "5-Pack Discount Applied ($7/note)",
			tier:    pricing.TierFivePack,
		},
		{
			name:    "non positive quantities are ignored",
			items:   []pricing.LineItem{{ID: "cs1010", Category: pricing.CategoryNote, Price: 10, Quantity: 0}, {ID: "x", Category: "Tool", Price: 5, Quantity: -2}},
			bundle:  bundleID,
			total:   0,
			message: "",
			tier:    pricing.TierNone,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := pricing.CalculateCartTotals(tc.items, tc.bundle)
			require.InDelta(t, tc.total, got.Total, 1e-9)
			require.Equal(t, tc.message, got.Message)
			require.Equal(t, tc.tier, got.Tier)
			require.InDelta(t, got.Total, got.NotesCost+got.OtherCost, 1e-9)
		})
	}
}

func TestBundleExcludedFromOtherItemsRegardlessOfCategory(t *testing.T) {
	items := []pricing.LineItem{{ID: bundleID, Category: "Bundle", Price: 89, Quantity: 1}}
	got := pricing.CalculateCartTotals(items, bundleID)
	require.Equal(t, pricing.TierBundle, got.Tier)
	require.Zero(t, got.OtherCost)
	require.InDelta(t, 89, got.Total, 1e-9)
}

func TestNotesTierTable(t *testing.T) {
	for count := 0; count <= 120; count++ {
		got := pricing.CalculateCartTotals(notes(count), bundleID)
		var want float64
		switch {
		case count >= 21:
			want = 89
		case count >= 5:
			want = float64(count) * 7
		case count >= 3:
			want = float64(count) * 8
		default:
			want = float64(count) * 10
		}
		require.InDeltaf(t, want, got.Total, 1e-9, "count=%d", count)
		require.Equal(t, count, got.NoteCount)
	}
}

func TestOtherItemsNeverDiscounted(t *testing.T) {
	other := pricing.LineItem{ID: "printed-binder", Category: "Merch", Price: 12.5, Quantity: 3}
	for _, n := range []int{0, 1, 3, 5, 21, 40} {
		withOther := pricing.CalculateCartTotals(append(notes(n), other), bundleID)
		without := pricing.CalculateCartTotals(notes(n), bundleID)
		require.InDelta(t, without.Total+37.5, withOther.Total, 1e-9)
		require.Equal(t, without.Message, withOther.Message)
	}
}

func TestCalculateIsIdempotent(t *testing.T) {
	items := append(notes(4), bundle(1), pricing.LineItem{ID: "t", Category: "Tool", Price: 3.3, Quantity: 1})
	first := pricing.CalculateCartTotals(items, bundleID)
	second := pricing.CalculateCartTotals(items, bundleID)
	require.Equal(t, first, second)
}

func TestCalculateDoesNotMutateInput(t *testing.T) {
	items := notes(3)
	snapshot := append([]pricing.LineItem(nil), items...)
	_ = pricing.CalculateCartTotals(items, bundleID)
	require.Equal(t, snapshot, items)
}

func TestCustomScheduleMessages(t *testing.T) {
	sched := pricing.Schedule{
		BasePrice:       12,
		Tier1Price:      9.5,
		Tier1Min:        2,
		Tier2Price:      8,
		Tier2Min:        4,
		FullAccessPrice: 99,
		FullAccessMin:   10,
	}
	require.NoError(t, sched.Validate())

	got := sched.Calculate(notes(1), bundleID)
	require.Equal(t, "Add 1 more notes to save ($9.5/each)!", got.Message)
	require.InDelta(t, 12, got.Total, 1e-9)

	got = sched.Calculate(notes(4), bundleID)
	require.Equal(t, "4-Pack Discount Applied ($8/note)", got.Message)

	got = sched.Calculate(notes(11), bundleID)
	require.Equal(t, "Full Access Price Cap Applied ($99)", got.Message)
	require.InDelta(t, 99, got.Total, 1e-9)
}

func TestScheduleValidate(t *testing.T) {
	require.NoError(t, pricing.DefaultSchedule().Validate())

	bad := pricing.DefaultSchedule()
	bad.Tier2Min = bad.Tier1Min
	require.Error(t, bad.Validate())

	bad = pricing.DefaultSchedule()
	bad.Tier1Price = -1
	require.Error(t, bad.Validate())

	bad = pricing.DefaultSchedule()
	bad.Tier1Min = 0
	require.Error(t, bad.Validate())
}

func TestLoadSchedule(t *testing.T) {
	sched, err := pricing.LoadSchedule("")
	require.NoError(t, err)
	require.Equal(t, pricing.DefaultSchedule(), sched)

	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("full_access_price: 79\ntier2_price: 6.5\n"), 0o600))

	sched, err = pricing.LoadSchedule(path)
	require.NoError(t, err)
	require.InDelta(t, 79, sched.FullAccessPrice, 1e-9)
	require.InDelta(t, 6.5, sched.Tier2Price, 1e-9)
	require.Equal(t, pricing.Tier1MinNotes, sched.Tier1Min)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("tier1_min: 9\n"), 0o600))
	_, err = pricing.LoadSchedule(badPath)
	require.Error(t, err)

	_, err = pricing.LoadSchedule(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
