package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"chainflow/config"
	"chainflow/internal/models"
	"chainflow/logger"
)

// number decodes a JSON number, numeric string or null. Valid is false for
// null, absent and empty values.
type number struct {
	Value float64
	Valid bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = number{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = number{}
			return nil
		}
		b = []byte(s)
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", b)
	}
	*n = number{Value: v, Valid: true}
	return nil
}

type niftyOptionRow struct {
	StrikePrice number `json:"strike_price"`

	CallsLTP    number `json:"calls_ltp"`
	CallsAvg    number `json:"calls_average_price"`
	CallsOI     number `json:"calls_oi"`
	CallsIV     number `json:"calls_iv"`
	CallsVolume number `json:"calls_volume"`

	PutsLTP    number `json:"puts_ltp"`
	PutsAvg    number `json:"puts_average_price"`
	PutsOI     number `json:"puts_oi"`
	PutsIV     number `json:"puts_iv"`
	PutsVolume number `json:"puts_volume"`
}

type niftyResponse struct {
	ResultData struct {
		OpDatas   []json.RawMessage `json:"opDatas"`
		SpotPrice number            `json:"spot_price"`
	} `json:"resultData"`
}

var niftyHeaders = http.Header{
	"Accept":     {"application/json"},
	"Referer":    {"https://www.niftytrader.in/"},
	"Origin":     {"https://www.niftytrader.in"},
	"User-Agent": {"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"},
}

// NiftyTrader reads the public option-chain endpoint, which reports both
// legs of a strike, including the session VWAP, in one row.
type NiftyTrader struct {
	baseURL   string
	exchange  string
	transport *Transport
	log       *logger.Entry
}

func NewNiftyTrader(cfg config.NiftyTraderConfig, transport *Transport) *NiftyTrader {
	return &NiftyTrader{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		exchange:  cfg.Exchange,
		transport: transport,
		log:       logger.GetLogger().WithComponent("niftytrader"),
	}
}

func (n *NiftyTrader) Name() string { return config.SourceNiftyTrader }

func (n *NiftyTrader) endpoint(req Request) string {
	q := url.Values{}
	q.Set("symbol", req.Symbol)
	q.Set("exchange", n.exchange)
	q.Set("expiryDate", req.Expiry)
	q.Set("atmBelow", "0")
	q.Set("atmAbove", "0")
	return n.baseURL + "/webapi/option/option-chain-data?" + q.Encode()
}

func (n *NiftyTrader) Fetch(ctx context.Context, req Request) (Snapshot, error) {
	var resp niftyResponse
	if err := n.transport.GetJSON(ctx, n.endpoint(req), niftyHeaders, &resp); err != nil {
		return Snapshot{}, fmt.Errorf("fetch %s: %w", req.Symbol, err)
	}
	if len(resp.ResultData.OpDatas) == 0 {
		return Snapshot{}, fmt.Errorf("%s: %w", req.Symbol, ErrNoData)
	}

	var snap Snapshot
	if resp.ResultData.SpotPrice.Valid {
		snap.Spot = resp.ResultData.SpotPrice.Value
	}
	for i, raw := range resp.ResultData.OpDatas {
		key := fmt.Sprintf("item %d", i)
		var row niftyOptionRow
		if err := json.Unmarshal(raw, &row); err != nil {
			snap.Diagnostics.Add(models.StageFetch, key, err)
			continue
		}
		if !row.StrikePrice.Valid {
			snap.Diagnostics.Add(models.StageFetch, key, fmt.Errorf("missing strike_price"))
			continue
		}
		strike := row.StrikePrice.Value
		legs := []struct {
			side                  models.Side
			ltp, avg, oi, iv, vol number
		}{
			{models.Call, row.CallsLTP, row.CallsAvg, row.CallsOI, row.CallsIV, row.CallsVolume},
			{models.Put, row.PutsLTP, row.PutsAvg, row.PutsOI, row.PutsIV, row.PutsVolume},
		}
		for _, leg := range legs {
			if !(leg.ltp.Valid || leg.avg.Valid || leg.oi.Valid || leg.iv.Valid || leg.vol.Valid) {
				continue
			}
			q, err := models.NewContractQuote(models.ContractQuote{
				InstrumentID:      fmt.Sprintf("%s:%s:%s", strings.ToUpper(req.Symbol), models.KeyOf(strike), leg.side),
				Strike:            strike,
				Side:              leg.side,
				LastPrice:         leg.ltp.Value,
				OpenInterest:      int64(leg.oi.Value),
				Volume:            int64(leg.vol.Value),
				ImpliedVolatility: leg.iv.Value,
				VWAP:              leg.avg.Value,
			})
			if err != nil {
				snap.Diagnostics.Add(models.StageFetch, key, err)
				continue
			}
			snap.Quotes = append(snap.Quotes, q)
		}
	}

	if len(snap.Quotes) == 0 {
		return snap, fmt.Errorf("%s: %w", req.Symbol, ErrNoData)
	}
	n.log.WithFields(logger.Fields{
		"symbol":  req.Symbol,
		"quotes":  len(snap.Quotes),
		"skipped": len(snap.Diagnostics),
	}).Debug("fetched option chain")
	return snap, nil
}
