package models

import (
	"fmt"
	"math"
	"strings"
)

// Side identifies the leg of an option contract.
type Side int8

const (
	Call Side = iota + 1
	Put
)

func (s Side) String() string {
	switch s {
	case Call:
		return "CALL"
	case Put:
		return "PUT"
	default:
		return "UNKNOWN"
	}
}

// ParseSide accepts the spellings used by the upstream feeds (CE/PE, CALL/PUT).
func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "CE", "CALL", "C":
		return Call, nil
	case "PE", "PUT", "P":
		return Put, nil
	default:
		return 0, fmt.Errorf("unknown option side %q", v)
	}
}

// ContractQuote is a single fetched contract. It is immutable once built.
type ContractQuote struct {
	InstrumentID      string
	Strike            float64
	Side              Side
	LastPrice         float64
	OpenInterest      int64
	Volume            int64
	ImpliedVolatility float64
	// VWAP is the exchange reported average traded price for the session.
	VWAP float64
}

// NewContractQuote validates q and returns it. Prices, IV and counts must be
// finite and non-negative.
func NewContractQuote(q ContractQuote) (ContractQuote, error) {
	if err := q.Validate(); err != nil {
		return ContractQuote{}, err
	}
	return q, nil
}

func (q ContractQuote) Validate() error {
	if q.Side != Call && q.Side != Put {
		return fmt.Errorf("contract %s: invalid side %d", q.InstrumentID, q.Side)
	}
	if !finite(q.Strike) || q.Strike < 0 {
		return fmt.Errorf("contract %s: invalid strike %v", q.InstrumentID, q.Strike)
	}
	if q.OpenInterest < 0 {
		return fmt.Errorf("contract %s: negative open interest %d", q.InstrumentID, q.OpenInterest)
	}
	if q.Volume < 0 {
		return fmt.Errorf("contract %s: negative volume %d", q.InstrumentID, q.Volume)
	}
	for name, v := range map[string]float64{"last price": q.LastPrice, "implied volatility": q.ImpliedVolatility, "vwap": q.VWAP} {
		if !finite(v) || v < 0 {
			return fmt.Errorf("contract %s: invalid %s %v", q.InstrumentID, name, v)
		}
	}
	return nil
}

// Key returns the fixed precision key of the quote's strike.
func (q ContractQuote) Key() StrikeKey {
	return KeyOf(q.Strike)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
