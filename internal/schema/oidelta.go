package schema

import "chainflow/internal/analytics"

var oiDeltaHeader = []string{
	"Call LTP", "Call OI", "Call Chg OI", "Call Vol",
	"Strike", "Expiry",
	"Put LTP", "Put OI", "Put Chg OI", "Put Vol",
	"VWAP",
}

// OIDelta is the compact change-in-OI layout. The VWAP column is kept empty.
type OIDelta struct{}

func (OIDelta) Name() string { return "oi_delta" }

func (OIDelta) Header() []string {
	return append([]string(nil), oiDeltaHeader...)
}

func (o OIDelta) Render(res analytics.Result, meta Meta) Table {
	rows := make([][]string, 0, len(res.Rows))
	for _, r := range res.Rows {
		rows = append(rows, []string{
			FormatFloat(r.Call.LTP),
			FormatInt(r.Call.OI),
			FormatInt(r.Call.ChgOI),
			FormatInt(r.Call.Volume),
			FormatFloat(r.Strike),
			meta.Expiry,
			FormatFloat(r.Put.LTP),
			FormatInt(r.Put.OI),
			FormatInt(r.Put.ChgOI),
			FormatInt(r.Put.Volume),
			"",
		})
	}
	return Table{Header: o.Header(), Rows: rows}
}
