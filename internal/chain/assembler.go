// Package chain merges per-contract quotes into a per-strike option chain.
package chain

import (
	"errors"
	"sort"

	"chainflow/internal/models"
)

// StrikeRecord holds both legs of one strike. Either leg may be nil when the
// source did not return it.
type StrikeRecord struct {
	Strike float64
	Key    models.StrikeKey
	Call   *models.ContractQuote
	Put    *models.ContractQuote
}

// Leg returns the quote for one side, or nil.
func (r StrikeRecord) Leg(s models.Side) *models.ContractQuote {
	if s == models.Put {
		return r.Put
	}
	return r.Call
}

// Chain is the assembled chain, strikes ascending.
type Chain []StrikeRecord

var errDuplicateLeg = errors.New("duplicate contract for strike and side, keeping the later quote")

// Assemble groups quotes by strike. Two quotes for the same strike and side
// keep the later one; the replacement is reported as a diagnostic.
func Assemble(quotes []models.ContractQuote) (Chain, models.Diagnostics) {
	var diags models.Diagnostics
	byKey := make(map[models.StrikeKey]*StrikeRecord, len(quotes)/2+1)

	for i := range quotes {
		q := quotes[i]
		if err := q.Validate(); err != nil {
			diags.Add(models.StageAssemble, q.InstrumentID, err)
			continue
		}
		key := q.Key()
		rec, ok := byKey[key]
		if !ok {
			rec = &StrikeRecord{Strike: q.Strike, Key: key}
			byKey[key] = rec
		}
		switch q.Side {
		case models.Call:
			if rec.Call != nil {
				diags.Add(models.StageAssemble, key.String()+" "+q.Side.String(), errDuplicateLeg)
			}
			rec.Call = &q
		case models.Put:
			if rec.Put != nil {
				diags.Add(models.StageAssemble, key.String()+" "+q.Side.String(), errDuplicateLeg)
			}
			rec.Put = &q
		}
	}

	out := make(Chain, 0, len(byKey))
	for _, rec := range byKey {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, diags
}

// Strikes returns the keys of the chain in order.
func (c Chain) Strikes() []models.StrikeKey {
	keys := make([]models.StrikeKey, len(c))
	for i, r := range c {
		keys[i] = r.Key
	}
	return keys
}
