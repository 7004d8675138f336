// Package billing holds the pure tier arithmetic shared by login
// verification, balance top-up and session settlement. No I/O happens here.
package billing

import (
	"math"
	"time"

	"warnet-server-go/internal/platform/config"
)

// Tier is a named PC category. MinutesPerHour is how many minutes of
// entitlement one purchased hour buys; PricePerHour is the currency rate
// used for quotes only.
type Tier struct {
	Name           string
	MinutesPerHour int
	PricePerHour   float64
}

// Table is an immutable lookup of the configured tiers, preserving
// configuration order for display.
type Table struct {
	tiers map[string]Tier
	order []string
}

// NewTable builds a tier table from configuration entries.
func NewTable(entries []config.TierConfig) *Table {
	t := &Table{tiers: make(map[string]Tier, len(entries))}
	for _, e := range entries {
		if _, dup := t.tiers[e.Name]; dup {
			continue
		}
		t.tiers[e.Name] = Tier{
			Name:           e.Name,
			MinutesPerHour: e.MinutesPerHour,
			PricePerHour:   e.PricePerHour,
		}
		t.order = append(t.order, e.Name)
	}
	return t
}

// DefaultTable returns the built-in Normal/VIP/Gamer tiers.
func DefaultTable() *Table {
	return NewTable(config.DefaultConfig().Tiers)
}

// Lookup resolves a tier by name.
func (t *Table) Lookup(name string) (Tier, bool) {
	tier, ok := t.tiers[name]
	return tier, ok
}

// Names lists the tier names in configuration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// ValidHours reports whether an administrative top-up amount is acceptable.
func ValidHours(hours float64) bool {
	return hours > 0 && !math.IsNaN(hours) && !math.IsInf(hours, 0)
}

// MinutesFromHours converts purchased hours into entitlement minutes for a
// tier, truncating fractional minutes.
func MinutesFromHours(hours float64, tier Tier) int {
	return int(hours * float64(tier.MinutesPerHour))
}

// PriceFromHours quotes the currency price for the given hours. Quote only,
// never persisted.
func PriceFromHours(hours float64, tier Tier) float64 {
	return hours * tier.PricePerHour
}

// HoursFromMinutes converts a stored minute balance to the fractional hours
// reported to the terminal on login.
func HoursFromMinutes(minutes int) float64 {
	return float64(minutes) / 60
}

// SettleMinutes converts the elapsed wall-clock span of a session into the
// minute count deducted from the balance, truncating fractional minutes.
func SettleMinutes(start, now time.Time) int {
	return int(now.Sub(start).Hours() * 60)
}
