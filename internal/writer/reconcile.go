// Package writer publishes rendered tables, replacing whatever the table held.
package writer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainflow/internal/schema"
	"chainflow/internal/store"
	"chainflow/logger"
)

// ErrNoRows is returned when a table has no data rows. The target is left
// untouched.
var ErrNoRows = errors.New("no rows to write")

// Stats describes one completed replace.
type Stats struct {
	Table    string
	Rows     int
	Writes   int
	Summary  bool
	Duration time.Duration
}

// Writer replaces tables in a store. The sequence is clear, header, data
// rows, summary. A failure midway leaves the table partially written; the
// next successful run repairs it.
type Writer struct {
	store   store.Store
	summary bool
	log     *logger.Entry
}

// New returns a writer. When summary is false the summary block is skipped
// even if the table carries one. A nil log falls back to the global logger.
func New(s store.Store, summary bool, log *logger.Log) *Writer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Writer{
		store:   s,
		summary: summary,
		log:     log.WithComponent("writer"),
	}
}

func (w *Writer) Replace(ctx context.Context, table string, t schema.Table) (Stats, error) {
	start := time.Now()
	stats := Stats{Table: table, Rows: len(t.Rows)}
	if len(t.Rows) == 0 {
		return stats, ErrNoRows
	}

	if err := w.store.Clear(ctx, table); err != nil {
		return stats, fmt.Errorf("clear %s: %w", table, err)
	}
	stats.Writes++

	if err := w.store.WriteRange(ctx, table, 0, 0, [][]string{t.Header}); err != nil {
		return stats, fmt.Errorf("write header %s: %w", table, err)
	}
	stats.Writes++

	base, derived := split(t.Rows, t.DerivedFrom)
	if err := w.store.WriteRange(ctx, table, 1, 0, base); err != nil {
		return stats, fmt.Errorf("write rows %s: %w", table, err)
	}
	stats.Writes++
	if derived != nil {
		if err := w.store.WriteRange(ctx, table, 1, t.DerivedFrom, derived); err != nil {
			return stats, fmt.Errorf("write derived block %s at %s: %w", table, store.A1(1, t.DerivedFrom), err)
		}
		stats.Writes++
	}

	if w.summary && len(t.Summary) > 0 {
		row := len(t.Rows) + 2
		if err := w.store.WriteRange(ctx, table, row, 0, [][]string{t.Summary}); err != nil {
			return stats, fmt.Errorf("write summary %s: %w", table, err)
		}
		stats.Writes++
		stats.Summary = true
	}

	stats.Duration = time.Since(start)
	logger.LogPerformanceEntry(w.log, "writer", "replace", stats.Duration, logger.Fields{
		"table":  table,
		"rows":   stats.Rows,
		"writes": stats.Writes,
	})
	return stats, nil
}

// split cuts every row at col. derived is nil when col is zero.
func split(rows [][]string, col int) (base, derived [][]string) {
	if col <= 0 {
		return rows, nil
	}
	base = make([][]string, len(rows))
	derived = make([][]string, len(rows))
	for i, r := range rows {
		if col >= len(r) {
			base[i] = r
			derived[i] = []string{}
			continue
		}
		base[i] = r[:col]
		derived[i] = r[col:]
	}
	return base, derived
}
