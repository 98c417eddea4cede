// Package prior rebuilds the previous run's open interest from a published table.
package prior

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"chainflow/internal/models"
)

// Header labels that must be present for a table to be usable as history.
const (
	StrikeColumn = "Strike"
	CallOIColumn = "Call OI"
	PutOIColumn  = "Put OI"

	// SummaryLabel opens the summary row written below the data block.
	SummaryLabel = "Call Diff Sum"
)

// Load parses rows (first row = header labels) into a PriorState.
//
// A table without the Strike, Call OI and Put OI columns yields an empty
// state, which callers treat as "no history". Rows that fail to parse are
// skipped and reported in the returned diagnostics. Blank OI cells count as 0.
// Blank rows and the summary row are passed over without a diagnostic.
func Load(rows [][]string) (models.PriorState, models.Diagnostics) {
	state := make(models.PriorState)
	var diags models.Diagnostics
	if len(rows) == 0 {
		return state, diags
	}

	idx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		label := strings.TrimSpace(h)
		if _, dup := idx[label]; !dup {
			idx[label] = i
		}
	}
	strikeCol, ok1 := idx[StrikeColumn]
	callCol, ok2 := idx[CallOIColumn]
	putCol, ok3 := idx[PutOIColumn]
	if !ok1 || !ok2 || !ok3 {
		return state, diags
	}

	for n, row := range rows[1:] {
		rowKey := fmt.Sprintf("row %d", n+2)
		if isBlank(row) || isSummary(row) {
			continue
		}
		strikeCell, err := cell(row, strikeCol)
		if err != nil {
			diags.Add(models.StagePrior, rowKey, err)
			continue
		}
		_, key, err := models.ParseStrike(strikeCell)
		if err != nil {
			diags.Add(models.StagePrior, rowKey, err)
			continue
		}
		callOI, err := parseOI(row, callCol)
		if err != nil {
			diags.Add(models.StagePrior, rowKey, fmt.Errorf("call oi: %w", err))
			continue
		}
		putOI, err := parseOI(row, putCol)
		if err != nil {
			diags.Add(models.StagePrior, rowKey, fmt.Errorf("put oi: %w", err))
			continue
		}
		state[key] = models.PriorOI{Call: callOI, Put: putOI}
	}

	return state, diags
}

func cell(row []string, col int) (string, error) {
	if col >= len(row) {
		return "", fmt.Errorf("missing column %d", col+1)
	}
	return strings.TrimSpace(row[col]), nil
}

// parseOI accepts non-negative integers, including integer valued decimals
// such as "650.0" that spreadsheets produce. A short row or blank cell is 0.
func parseOI(row []string, col int) (int64, error) {
	if col >= len(row) {
		return 0, nil
	}
	v := strings.TrimSpace(row[col])
	if v == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", v, err)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("parse %q: not an integer", v)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse %q: negative", v)
	}
	return d.IntPart(), nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isSummary(row []string) bool {
	return len(row) > 0 && strings.TrimSpace(row[0]) == SummaryLabel
}
