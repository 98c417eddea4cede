package market

import (
	"testing"
	"time"

	"chainflow/config"
)

func TestGateIsOpen(t *testing.T) {
	g, err := NewGate(config.MarketHoursConfig{Timezone: "Asia/Kolkata", Open: "08:40", Close: "15:30"})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	ist := g.Location

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", time.Date(2025, 10, 20, 8, 39, 59, 0, ist), false},
		{"at open", time.Date(2025, 10, 20, 8, 40, 0, 0, ist), true},
		{"midday", time.Date(2025, 10, 22, 12, 0, 0, 0, ist), true},
		{"at close", time.Date(2025, 10, 24, 15, 30, 0, 0, ist), true},
		{"after close", time.Date(2025, 10, 24, 15, 30, 1, 0, ist), false},
		{"saturday", time.Date(2025, 10, 25, 10, 0, 0, 0, ist), false},
		{"sunday", time.Date(2025, 10, 26, 10, 0, 0, 0, ist), false},
		// 04:00 UTC is 09:30 IST on a Monday.
		{"utc input", time.Date(2025, 10, 20, 4, 0, 0, 0, time.UTC), true},
		// Friday 20:00 UTC is already Saturday in IST.
		{"utc friday night", time.Date(2025, 10, 24, 20, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.IsOpen(tt.at); got != tt.want {
				t.Errorf("IsOpen(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestNewGateInvalid(t *testing.T) {
	tests := []config.MarketHoursConfig{
		{Timezone: "Mars/Olympus", Open: "08:40", Close: "15:30"},
		{Timezone: "Asia/Kolkata", Open: "8.40", Close: "15:30"},
		{Timezone: "Asia/Kolkata", Open: "15:30", Close: "08:40"},
	}
	for _, cfg := range tests {
		if _, err := NewGate(cfg); err == nil {
			t.Errorf("NewGate(%+v) succeeded, want error", cfg)
		}
	}
}
