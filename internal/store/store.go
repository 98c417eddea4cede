// Package store defines the keyed tabular store the engine publishes to, and
// its backends.
package store

import (
	"context"
	"errors"
	"sync"
)

// ErrTableNotFound is returned by reads of a table that does not exist.
var ErrTableNotFound = errors.New("table not found")

// Store is a set of named tables of string cells. Row and column indices are
// zero based.
type Store interface {
	// ReadAll returns every row of the table, header first.
	ReadAll(ctx context.Context, table string) ([][]string, error)
	// Clear empties the table, creating it when missing.
	Clear(ctx context.Context, table string) error
	// WriteRange writes values with its top-left cell at (row, col).
	WriteRange(ctx context.Context, table string, row, col int, values [][]string) error
	// ReadCell returns one cell by A1 reference, "" when the cell is empty.
	ReadCell(ctx context.Context, table string, ref string) (string, error)
}

// Locker serializes work on a single table. Different tables never block
// each other.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*tableLock
}

type tableLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*tableLock)}
}

// Lock blocks until table is free and returns the matching unlock func.
func (l *Locker) Lock(table string) func() {
	l.mu.Lock()
	tl, ok := l.locks[table]
	if !ok {
		tl = &tableLock{}
		l.locks[table] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, table)
		}
		l.mu.Unlock()
	}
}
