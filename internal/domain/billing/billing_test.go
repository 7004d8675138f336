package billing

import (
	"math"
	"testing"
	"time"

	"warnet-server-go/internal/platform/config"
)

func normalTier(t *testing.T) Tier {
	t.Helper()
	tier, ok := DefaultTable().Lookup("Normal")
	if !ok {
		t.Fatal("Normal tier missing from default table")
	}
	return tier
}

func TestMinutesFromHours(t *testing.T) {
	tier := normalTier(t)

	cases := []struct {
		hours float64
		want  int
	}{
		{1, 60},
		{0.5, 30},
		{2.5, 150},
		{0.016, 0}, // below one minute truncates to zero
	}
	for _, tc := range cases {
		if got := MinutesFromHours(tc.hours, tier); got != tc.want {
			t.Fatalf("MinutesFromHours(%v) = %d, want %d", tc.hours, got, tc.want)
		}
	}
}

func TestPriceFromHours(t *testing.T) {
	table := DefaultTable()

	cases := []struct {
		tier  string
		hours float64
		want  float64
	}{
		{"Normal", 1, 3000},
		{"VIP", 2, 10000},
		{"Gamer", 0.5, 3000},
	}
	for _, tc := range cases {
		tier, ok := table.Lookup(tc.tier)
		if !ok {
			t.Fatalf("tier %s missing", tc.tier)
		}
		if got := PriceFromHours(tc.hours, tier); got != tc.want {
			t.Fatalf("PriceFromHours(%v, %s) = %v, want %v", tc.hours, tc.tier, got, tc.want)
		}
	}
}

func TestSettleMinutes(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{30 * time.Minute, 30},
		{1800 * time.Second, 30},
		{time.Hour, 60},
		{90*time.Second + 500*time.Millisecond, 1},
		{10 * time.Second, 0},
	}
	for _, tc := range cases {
		if got := SettleMinutes(start, start.Add(tc.elapsed)); got != tc.want {
			t.Fatalf("SettleMinutes(%v) = %d, want %d", tc.elapsed, got, tc.want)
		}
	}
}

func TestHoursFromMinutesRoundTrip(t *testing.T) {
	if got := HoursFromMinutes(180); got != 3.0 {
		t.Fatalf("HoursFromMinutes(180) = %v, want 3.0", got)
	}
	if got := HoursFromMinutes(90); got != 1.5 {
		t.Fatalf("HoursFromMinutes(90) = %v, want 1.5", got)
	}
}

func TestValidHours(t *testing.T) {
	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if ValidHours(bad) {
			t.Fatalf("expected %v to be rejected", bad)
		}
	}
	if !ValidHours(0.5) {
		t.Fatal("expected 0.5 to be accepted")
	}
}

func TestNewTableSkipsDuplicates(t *testing.T) {
	table := NewTable([]config.TierConfig{
		{Name: "Normal", MinutesPerHour: 60, PricePerHour: 3000},
		{Name: "Normal", MinutesPerHour: 30, PricePerHour: 1},
	})
	tier, ok := table.Lookup("Normal")
	if !ok || tier.MinutesPerHour != 60 {
		t.Fatalf("expected first Normal entry to win, got %+v", tier)
	}
	if len(table.Names()) != 1 {
		t.Fatalf("expected one tier, got %v", table.Names())
	}
}
