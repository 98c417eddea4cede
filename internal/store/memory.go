package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps tables in process. It backs tests and dry runs.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][][]string
	writes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][][]string)}
}

func (m *MemoryStore) ReadAll(_ context.Context, table string) ([][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	grid, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("%s: %w", table, ErrTableNotFound)
	}
	return cloneGrid(grid), nil
}

func (m *MemoryStore) Clear(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = [][]string{}
	m.writes++
	return nil
}

func (m *MemoryStore) WriteRange(_ context.Context, table string, row, col int, values [][]string) error {
	if err := checkAnchor(row, col); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = applyRange(m.tables[table], row, col, cloneGrid(values))
	m.writes++
	return nil
}

func (m *MemoryStore) ReadCell(_ context.Context, table string, ref string) (string, error) {
	row, col, err := ParseA1(ref)
	if err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	grid, ok := m.tables[table]
	if !ok {
		return "", fmt.Errorf("%s: %w", table, ErrTableNotFound)
	}
	return cellAt(grid, row, col), nil
}

// Put replaces a table wholesale.
func (m *MemoryStore) Put(table string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = cloneGrid(rows)
}

// Writes counts mutating calls, so tests can assert a table was untouched.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
