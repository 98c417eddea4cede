// Package source fetches option-chain snapshots from market data providers.
package source

import (
	"context"
	"errors"
	"fmt"

	"chainflow/config"
	"chainflow/internal/models"
)

// ErrNoData is returned when the provider answers with an empty chain.
var ErrNoData = errors.New("no option chain data")

// Request selects one chain.
type Request struct {
	Symbol string
	// Expiry is YYYY-MM-DD.
	Expiry string
}

// Snapshot is one fetched chain. Spot is zero when the provider does not
// report it. Contracts that could not be decoded are listed in Diagnostics.
type Snapshot struct {
	Quotes      []models.ContractQuote
	Spot        float64
	Diagnostics models.Diagnostics
}

type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) (Snapshot, error)
}

// New builds the source selected by cfg.Source.Kind.
func New(cfg *config.Config) (Source, error) {
	transport := NewTransport(cfg.Reader)
	switch cfg.Source.Kind {
	case config.SourceNiftyTrader:
		return NewNiftyTrader(cfg.Source.NiftyTrader, transport), nil
	case config.SourceKite:
		return NewKite(cfg.Source.Kite, transport)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}
