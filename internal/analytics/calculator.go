// Package analytics derives the published per-strike columns from an
// assembled chain, the previous run's open interest and the spot price.
package analytics

import (
	"math"

	"chainflow/internal/chain"
	"chainflow/internal/models"
)

// Divisors of the weighted asymmetry terms. Downstream sheets depend on these
// exact scales.
const (
	QDivisor = 1e7
	RDivisor = 1e6
)

// Leg is one side of a row. Absent legs are all zero.
type Leg struct {
	Present bool
	OI      int64
	ChgOI   int64
	Volume  int64
	LTP     float64
	IV      float64
	VWAP    float64
	// Diff is LTP - VWAP.
	Diff float64
}

// Row is one published strike.
type Row struct {
	Strike float64
	Key    models.StrikeKey
	Call   Leg
	Put    Leg

	CallIntrinsic float64
	PutIntrinsic  float64
	AbsDiff       float64
	SumDiff       float64
	Spot          float64

	Q float64
	R float64
	S float64
	T float64
}

// Summary is reported once per run.
type Summary struct {
	CallDiffSum float64
	PutDiffSum  float64
}

type Result struct {
	Rows    []Row
	Summary Summary
}

// Compute builds one row per strike of c, in the chain's ascending order.
// Strikes only present in prior are not emitted.
func Compute(c chain.Chain, prior models.PriorState, spot float64) Result {
	res := Result{Rows: make([]Row, 0, len(c))}
	for _, rec := range c {
		p := prior.Get(rec.Key)
		row := Row{
			Strike: rec.Strike,
			Key:    rec.Key,
			Call:   leg(rec.Call, p.Call),
			Put:    leg(rec.Put, p.Put),
			Spot:   spot,
		}

		row.CallIntrinsic = math.Max(spot-rec.Strike, 0)
		row.PutIntrinsic = math.Max(rec.Strike-spot, 0)
		row.AbsDiff = math.Abs(row.Call.Diff - row.Put.Diff)
		row.SumDiff = row.Call.Diff + row.Put.Diff

		callOI, putOI := float64(row.Call.OI), float64(row.Put.OI)
		row.Q = (callOI*row.Call.LTP - putOI*row.Put.LTP) / QDivisor
		row.R = (callOI - putOI) / RDivisor
		row.S = row.R * -row.Call.VWAP
		row.T = row.R * row.Put.VWAP

		res.Summary.CallDiffSum += row.Call.Diff
		res.Summary.PutDiffSum += row.Put.Diff
		res.Rows = append(res.Rows, row)
	}
	return res
}

func leg(q *models.ContractQuote, priorOI int64) Leg {
	if q == nil {
		return Leg{}
	}
	return Leg{
		Present: true,
		OI:      q.OpenInterest,
		ChgOI:   q.OpenInterest - priorOI,
		Volume:  q.Volume,
		LTP:     q.LastPrice,
		IV:      q.ImpliedVolatility,
		VWAP:    q.VWAP,
		Diff:    q.LastPrice - q.VWAP,
	}
}
