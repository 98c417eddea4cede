package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"chainflow/logger"
)

// CSVStore keeps one CSV file per table under a directory.
type CSVStore struct {
	dir string
	mu  sync.Mutex
	log *logger.Entry
}

func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create table dir: %w", err)
	}
	return &CSVStore{dir: dir, log: logger.GetLogger().WithComponent("csv_store")}, nil
}

func (s *CSVStore) path(table string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, table)
	return filepath.Join(s.dir, name+".csv")
}

func (s *CSVStore) ReadAll(_ context.Context, table string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(table)
}

func (s *CSVStore) read(table string) ([][]string, error) {
	f, err := os.Open(s.path(table))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", table, ErrTableNotFound)
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", table, err)
	}
	return rows, nil
}

func (s *CSVStore) write(table string, rows [][]string) error {
	tmp, err := os.CreateTemp(s.dir, ".table-*")
	if err != nil {
		return err
	}
	w := csv.NewWriter(tmp)
	if err := w.WriteAll(padBlankRows(rows)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", table, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(table))
}

// padBlankRows widens empty rows to the grid width. encoding/csv writes an
// empty record as an empty line, which the reader then skips, so a separator
// row would not survive a round trip.
func padBlankRows(rows [][]string) [][]string {
	width := 2
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		if len(r) < 2 && strings.Join(r, "") == "" {
			r = make([]string, width)
		}
		out[i] = r
	}
	return out
}

func (s *CSVStore) Clear(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(table, nil)
}

func (s *CSVStore) WriteRange(_ context.Context, table string, row, col int, values [][]string) error {
	if err := checkAnchor(row, col); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	grid, err := s.read(table)
	if err != nil && !errors.Is(err, ErrTableNotFound) {
		return err
	}
	grid = applyRange(grid, row, col, values)
	if err := s.write(table, grid); err != nil {
		return err
	}
	s.log.WithFields(logger.Fields{"table": table, "range": A1(row, col), "rows": len(values)}).Debug("wrote range")
	return nil
}

func (s *CSVStore) ReadCell(_ context.Context, table string, ref string) (string, error) {
	row, col, err := ParseA1(ref)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	grid, err := s.read(table)
	if err != nil {
		return "", err
	}
	return cellAt(grid, row, col), nil
}
