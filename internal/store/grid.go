package store

import (
	"fmt"
	"strings"
)

// ParseA1 converts a reference such as "A1" or "AB12" to zero based indices.
func ParseA1(ref string) (row, col int, err error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		col = col*26 + int(ref[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(ref) {
		return 0, 0, fmt.Errorf("invalid cell reference %q", ref)
	}
	for _, c := range ref[i:] {
		if c < '0' || c > '9' {
			return 0, 0, fmt.Errorf("invalid cell reference %q", ref)
		}
		row = row*10 + int(c-'0')
	}
	if row == 0 {
		return 0, 0, fmt.Errorf("invalid cell reference %q", ref)
	}
	return row - 1, col - 1, nil
}

// A1 formats zero based indices as an A1 reference.
func A1(row, col int) string {
	return ColumnName(col) + fmt.Sprint(row+1)
}

// ColumnName returns the letters of a zero based column index.
func ColumnName(col int) string {
	name := ""
	for col++; col > 0; col = (col - 1) / 26 {
		name = string(rune('A'+(col-1)%26)) + name
	}
	return name
}

// applyRange writes values into grid at (row, col), growing it as needed.
func applyRange(grid [][]string, row, col int, values [][]string) [][]string {
	for len(grid) < row+len(values) {
		grid = append(grid, nil)
	}
	for i, vals := range values {
		r := grid[row+i]
		for len(r) < col+len(vals) {
			r = append(r, "")
		}
		copy(r[col:], vals)
		grid[row+i] = r
	}
	return grid
}

func cellAt(grid [][]string, row, col int) string {
	if row < len(grid) && col < len(grid[row]) {
		return grid[row][col]
	}
	return ""
}

func cloneGrid(grid [][]string) [][]string {
	out := make([][]string, len(grid))
	for i, r := range grid {
		out[i] = append([]string(nil), r...)
	}
	return out
}

func checkAnchor(row, col int) error {
	if row < 0 || col < 0 {
		return fmt.Errorf("invalid anchor (%d,%d)", row, col)
	}
	return nil
}
