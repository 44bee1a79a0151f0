package pricing

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Schedule holds the tier thresholds and price points used by Calculate.
type Schedule struct {
	BasePrice       float64 `yaml:"base_price"`
	Tier1Price      float64 `yaml:"tier1_price"`
	Tier1Min        int     `yaml:"tier1_min"`
	Tier2Price      float64 `yaml:"tier2_price"`
	Tier2Min        int     `yaml:"tier2_min"`
	FullAccessPrice float64 `yaml:"full_access_price"`
	FullAccessMin   int     `yaml:"full_access_min"`
}

// DefaultSchedule returns the storefront's standard price list.
func DefaultSchedule() Schedule {
	return Schedule{
		BasePrice:       PriceNoteBase,
		Tier1Price:      PriceNoteTier1,
		Tier1Min:        Tier1MinNotes,
		Tier2Price:      PriceNoteTier2,
		Tier2Min:        Tier2MinNotes,
		FullAccessPrice: PriceFullAccess,
		FullAccessMin:   FullAccessMinNotes,
	}
}

// Validate ensures thresholds are strictly increasing and prices are non-negative.
func (s Schedule) Validate() error {
	if s.BasePrice < 0 || s.Tier1Price < 0 || s.Tier2Price < 0 || s.FullAccessPrice < 0 {
		return errors.New("pricing: prices must not be negative")
	}
	if s.Tier1Min < 1 {
		return errors.New("pricing: tier1_min must be at least 1")
	}
	if s.Tier2Min <= s.Tier1Min || s.FullAccessMin <= s.Tier2Min {
		return fmt.Errorf("pricing: thresholds must increase (got %d, %d, %d)", s.Tier1Min, s.Tier2Min, s.FullAccessMin)
	}
	return nil
}

// LoadSchedule reads a YAML schedule override. Keys missing from the file keep their default
// values. An empty path returns the default schedule.
func LoadSchedule(path string) (Schedule, error) {
	sched := DefaultSchedule()
	path = strings.TrimSpace(path)
	if path == "" {
		return sched, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("read pricing schedule: %w", err)
	}
	if err := yaml.Unmarshal(raw, &sched); err != nil {
		return Schedule{}, fmt.Errorf("parse pricing schedule: %w", err)
	}
	if err := sched.Validate(); err != nil {
		return Schedule{}, err
	}
	return sched, nil
}
