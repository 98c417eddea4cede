// Package schema renders analytics results into the published table layouts.
package schema

import (
	"fmt"
	"strconv"

	"chainflow/config"
	"chainflow/internal/analytics"
)

// Table is a rendered snapshot ready for the writer.
type Table struct {
	Header []string
	Rows   [][]string
	// DerivedFrom is the first column of the derived-metrics block. Zero
	// means the rows are written as a single block.
	DerivedFrom int
	// Summary is written below the data rows after one blank row. Nil
	// means no summary.
	Summary []string
}

// Meta carries run values that are not part of the analytics result.
type Meta struct {
	Expiry string
}

// Layout is one presentation of an analytics result.
type Layout interface {
	Name() string
	Header() []string
	Render(res analytics.Result, meta Meta) Table
}

// ForMode returns the layout configured by mode.
func ForMode(mode string) (Layout, error) {
	switch mode {
	case config.ModeAnalytics:
		return Analytics{}, nil
	case config.ModeOIDelta:
		return OIDelta{}, nil
	default:
		return nil, fmt.Errorf("unknown presentation mode %q", mode)
	}
}

// FormatFloat renders v with the shortest exact representation. Negative
// zero is written as "0".
func FormatFloat(v float64) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func FormatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
