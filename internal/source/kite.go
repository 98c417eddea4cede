package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"chainflow/config"
	"chainflow/internal/models"
	"chainflow/logger"
)

// quoteBatchSize is the largest instrument list one quote call accepts.
const quoteBatchSize = 500

// kiteAPI is the part of the Kite Connect client the source uses.
type kiteAPI interface {
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetQuote(instruments ...string) (kiteconnect.Quote, error)
}

// Kite lists the option instruments of one underlying and expiry, then
// quotes them. Kite does not report IV, so it is left at zero.
type Kite struct {
	client    kiteAPI
	exchange  string
	transport *Transport
	log       *logger.Entry
}

func NewKite(cfg config.KiteConfig, transport *Transport) (*Kite, error) {
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return nil, errors.New("kite source requires api_key and access_token")
	}
	client := kiteconnect.New(cfg.APIKey)
	client.SetAccessToken(cfg.AccessToken)
	client.SetHTTPClient(transport.HTTPClient())
	return newKite(client, cfg.Exchange, transport), nil
}

func newKite(client kiteAPI, exchange string, transport *Transport) *Kite {
	return &Kite{
		client:    client,
		exchange:  exchange,
		transport: transport,
		log:       logger.GetLogger().WithComponent("kite"),
	}
}

func (k *Kite) Name() string { return config.SourceKite }

func isRetryableKite(err error) bool {
	var kerr kiteconnect.Error
	if errors.As(err, &kerr) {
		return retryableStatus[kerr.Code]
	}
	return isRetryableHTTP(err)
}

func (k *Kite) Fetch(ctx context.Context, req Request) (Snapshot, error) {
	var instruments kiteconnect.Instruments
	err := k.transport.Do(ctx, "instruments "+k.exchange, isRetryableKite, func() error {
		var err error
		instruments, err = k.client.GetInstrumentsByExchange(k.exchange)
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("list %s instruments: %w", k.exchange, err)
	}

	name := strings.ToUpper(req.Symbol)
	var snap Snapshot
	contracts := make(map[string]kiteconnect.Instrument)
	tokens := make([]string, 0)
	for _, inst := range instruments {
		if inst.Name != name || inst.Expiry.Time.Format("2006-01-02") != req.Expiry {
			continue
		}
		if _, err := models.ParseSide(inst.InstrumentType); err != nil {
			continue
		}
		token := strconv.Itoa(inst.InstrumentToken)
		contracts[token] = inst
		tokens = append(tokens, token)
	}
	if len(tokens) == 0 {
		return Snapshot{}, fmt.Errorf("%s %s: %w", name, req.Expiry, ErrNoData)
	}

	for start := 0; start < len(tokens); start += quoteBatchSize {
		end := start + quoteBatchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		var quotes kiteconnect.Quote
		err := k.transport.Do(ctx, "quote", isRetryableKite, func() error {
			var err error
			quotes, err = k.client.GetQuote(batch...)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return Snapshot{}, ctx.Err()
			}
			for _, token := range batch {
				snap.Diagnostics.Add(models.StageFetch, contracts[token].Tradingsymbol, err)
			}
			continue
		}

		for _, token := range batch {
			inst := contracts[token]
			data, ok := quotes[token]
			if !ok {
				snap.Diagnostics.Add(models.StageFetch, inst.Tradingsymbol, errors.New("no quote returned"))
				continue
			}
			side, _ := models.ParseSide(inst.InstrumentType)
			q, err := models.NewContractQuote(models.ContractQuote{
				InstrumentID: inst.Tradingsymbol,
				Strike:       inst.StrikePrice,
				Side:         side,
				LastPrice:    data.LastPrice,
				OpenInterest: int64(data.OI),
				Volume:       int64(data.Volume),
				VWAP:         data.AveragePrice,
			})
			if err != nil {
				snap.Diagnostics.Add(models.StageFetch, inst.Tradingsymbol, err)
				continue
			}
			snap.Quotes = append(snap.Quotes, q)
		}
	}

	if len(snap.Quotes) == 0 {
		return snap, fmt.Errorf("%s %s: %w", name, req.Expiry, ErrNoData)
	}
	k.log.WithFields(logger.Fields{
		"symbol":    name,
		"expiry":    req.Expiry,
		"contracts": len(tokens),
		"quotes":    len(snap.Quotes),
		"skipped":   len(snap.Diagnostics),
	}).Debug("fetched option chain")
	return snap, nil
}
