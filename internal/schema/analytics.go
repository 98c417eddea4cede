package schema

import (
	"chainflow/internal/analytics"
	"chainflow/internal/prior"
)

var analyticsHeader = []string{
	"Strike", "Call OI", "Call LTP", "Call IV", "Call VWAP", "Call LTP - VWAP",
	"Put OI", "Put LTP", "Put IV", "Put VWAP", "Put LTP - VWAP",
	"Call Intrinsic", "Put Intrinsic", "Abs Diff (Call-Put)", "Call + Put Diff", "Spot",
	"Diff Amount (Q)", "OI Diff (R)", "R * Call VWAP (S)", "R * Put VWAP (T)",
}

// analyticsDerivedFrom is the index of "Call Intrinsic".
const analyticsDerivedFrom = 11

// Analytics is the full 20 column layout.
type Analytics struct{}

func (Analytics) Name() string { return "analytics" }

func (Analytics) Header() []string {
	return append([]string(nil), analyticsHeader...)
}

func (a Analytics) Render(res analytics.Result, _ Meta) Table {
	rows := make([][]string, 0, len(res.Rows))
	for _, r := range res.Rows {
		rows = append(rows, []string{
			FormatFloat(r.Strike),
			FormatInt(r.Call.OI),
			FormatFloat(r.Call.LTP),
			FormatFloat(r.Call.IV),
			FormatFloat(r.Call.VWAP),
			FormatFloat(r.Call.Diff),
			FormatInt(r.Put.OI),
			FormatFloat(r.Put.LTP),
			FormatFloat(r.Put.IV),
			FormatFloat(r.Put.VWAP),
			FormatFloat(r.Put.Diff),
			FormatFloat(r.CallIntrinsic),
			FormatFloat(r.PutIntrinsic),
			FormatFloat(r.AbsDiff),
			FormatFloat(r.SumDiff),
			FormatFloat(r.Spot),
			FormatFloat(r.Q),
			FormatFloat(r.R),
			FormatFloat(r.S),
			FormatFloat(r.T),
		})
	}
	return Table{
		Header:      a.Header(),
		Rows:        rows,
		DerivedFrom: analyticsDerivedFrom,
		Summary: []string{
			prior.SummaryLabel, FormatFloat(res.Summary.CallDiffSum),
			"Put Diff Sum", FormatFloat(res.Summary.PutDiffSum),
		},
	}
}
