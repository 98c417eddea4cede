// Package events announces published tables to downstream consumers.
package events

import (
	"context"
	"time"
)

// TableEvent describes one table replaced by a run.
type TableEvent struct {
	RunID       string     `json:"run_id"`
	Symbol      string     `json:"symbol"`
	Table       string     `json:"table"`
	Layout      string     `json:"layout"`
	Expiry      string     `json:"expiry"`
	Spot        float64    `json:"spot"`
	Header      []string   `json:"header"`
	Rows        [][]string `json:"rows"`
	CallDiffSum float64    `json:"call_diff_sum"`
	PutDiffSum  float64    `json:"put_diff_sum"`
	PublishedAt time.Time  `json:"published_at"`
}

// Publisher delivers table events. Publish must not block the pipeline on a
// slow broker.
type Publisher interface {
	Publish(ctx context.Context, ev TableEvent) error
	Close() error
}
