// Package market decides whether the exchange session is open.
package market

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"chainflow/config"
)

// Gate is an inclusive daily trading window on weekdays.
type Gate struct {
	Location *time.Location
	// Open and Close are offsets from local midnight.
	Open  time.Duration
	Close time.Duration
}

// NewGate builds a gate from the market hours configuration.
func NewGate(cfg config.MarketHoursConfig) (*Gate, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	open, err := parseClock(cfg.Open)
	if err != nil {
		return nil, err
	}
	closing, err := parseClock(cfg.Close)
	if err != nil {
		return nil, err
	}
	if closing < open {
		return nil, fmt.Errorf("market close %s is before open %s", cfg.Close, cfg.Open)
	}
	return &Gate{Location: loc, Open: open, Close: closing}, nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// IsOpen reports whether t falls inside the window. Seconds count, so with a
// 15:30 close 15:30:00 is open and 15:30:01 is not.
func (g *Gate) IsOpen(t time.Time) bool {
	local := t.In(g.Location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, g.Location)
	offset := local.Sub(midnight)
	return offset >= g.Open && offset <= g.Close
}
