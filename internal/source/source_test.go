package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	kitemodels "github.com/zerodha/gokiteconnect/v4/models"

	"chainflow/config"
	"chainflow/internal/models"
)

func testReader(retries int) config.ReaderConfig {
	return config.ReaderConfig{
		MaxWorkers: 1,
		Timeout:    2 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:       retries,
			BaseDelay:         time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			BackoffMultiplier: 2,
		},
	}
}

const niftyBody = `{
  "result": 1,
  "resultData": {
    "spot_price": 105.5,
    "opDatas": [
      {"strike_price": 100, "calls_oi": 650, "calls_ltp": 10, "calls_iv": 12.5, "calls_average_price": 9,
       "calls_volume": 1200, "puts_oi": 280, "puts_ltp": 4, "puts_iv": 14, "puts_average_price": 5, "puts_volume": 300},
      {"strike_price": "110", "calls_oi": "40", "calls_ltp": 2.5, "calls_average_price": null,
       "puts_oi": null, "puts_ltp": null, "puts_iv": null, "puts_average_price": null},
      {"calls_oi": 1},
      {"strike_price": 120, "calls_oi": -5, "calls_ltp": 1}
    ]
  }
}`

func TestNiftyTraderFetch(t *testing.T) {
	var gotQuery, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotReferer = r.Header.Get("Referer")
		assert.Equal(t, "/webapi/option/option-chain-data", r.URL.Path)
		w.Write([]byte(niftyBody))
	}))
	defer srv.Close()

	src := NewNiftyTrader(config.NiftyTraderConfig{BaseURL: srv.URL + "/", Exchange: "nse"}, NewTransport(testReader(0)))
	snap, err := src.Fetch(context.Background(), Request{Symbol: "nifty", Expiry: "2025-10-28"})
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "symbol=nifty")
	assert.Contains(t, gotQuery, "expiryDate=2025-10-28")
	assert.Contains(t, gotQuery, "atmBelow=0")
	assert.Equal(t, "https://www.niftytrader.in/", gotReferer)

	assert.Equal(t, 105.5, snap.Spot)
	require.Len(t, snap.Quotes, 3)

	call := snap.Quotes[0]
	assert.Equal(t, models.Call, call.Side)
	assert.Equal(t, 100.0, call.Strike)
	assert.EqualValues(t, 650, call.OpenInterest)
	assert.EqualValues(t, 1200, call.Volume)
	assert.Equal(t, 9.0, call.VWAP)
	assert.Equal(t, 12.5, call.ImpliedVolatility)

	put := snap.Quotes[1]
	assert.Equal(t, models.Put, put.Side)
	assert.EqualValues(t, 280, put.OpenInterest)

	onlyCall := snap.Quotes[2]
	assert.Equal(t, 110.0, onlyCall.Strike)
	assert.Equal(t, models.Call, onlyCall.Side)
	assert.EqualValues(t, 40, onlyCall.OpenInterest)
	assert.Equal(t, 0.0, onlyCall.VWAP)

	assert.Equal(t, 2, snap.Diagnostics.Count(models.StageFetch))
}

func TestNiftyTraderEmptyChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultData": {"opDatas": []}}`))
	}))
	defer srv.Close()

	src := NewNiftyTrader(config.NiftyTraderConfig{BaseURL: srv.URL, Exchange: "nse"}, NewTransport(testReader(0)))
	_, err := src.Fetch(context.Background(), Request{Symbol: "nifty", Expiry: "2025-10-28"})
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestTransportRetriesRetryableStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	var out struct{ OK bool }
	err := NewTransport(testReader(3)).GetJSON(context.Background(), srv.URL, nil, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestTransportGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var out struct{}
	err := NewTransport(testReader(2)).GetJSON(context.Background(), srv.URL, nil, &out)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestTransportDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var out struct{}
	err := NewTransport(testReader(5)).GetJSON(context.Background(), srv.URL, nil, &out)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestTransportHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewTransport(testReader(3)).Do(ctx, "op", func(error) bool { return true }, func() error {
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeKite struct {
	instruments kiteconnect.Instruments
	quotes      kiteconnect.Quote
	quoteErr    error
	quoteCalls  int
}

func (f *fakeKite) GetInstrumentsByExchange(string) (kiteconnect.Instruments, error) {
	return f.instruments, nil
}

func (f *fakeKite) GetQuote(instruments ...string) (kiteconnect.Quote, error) {
	f.quoteCalls++
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	out := kiteconnect.Quote{}
	for _, i := range instruments {
		if q, ok := f.quotes[i]; ok {
			out[i] = q
		}
	}
	return out, nil
}

func kiteInstrument(token int, name, expiry, typ string, strike float64) kiteconnect.Instrument {
	exp, _ := time.Parse("2006-01-02", expiry)
	return kiteconnect.Instrument{
		InstrumentToken: token,
		Tradingsymbol:   name + strconv.Itoa(int(strike)) + typ,
		Name:            name,
		Expiry:          kitemodels.Time{Time: exp},
		StrikePrice:     strike,
		InstrumentType:  typ,
	}
}

func TestKiteFetch(t *testing.T) {
	fake := &fakeKite{
		instruments: kiteconnect.Instruments{
			kiteInstrument(1, "SENSEX", "2025-10-23", "CE", 81000),
			kiteInstrument(2, "SENSEX", "2025-10-23", "PE", 81000),
			kiteInstrument(3, "SENSEX", "2025-10-23", "CE", 81100),
			kiteInstrument(4, "SENSEX", "2025-10-30", "CE", 81000),
			kiteInstrument(5, "BANKEX", "2025-10-23", "CE", 81000),
			kiteInstrument(6, "SENSEX", "2025-10-23", "FUT", 0),
		},
		quotes: kiteconnect.Quote{
			"1": {LastPrice: 250, OI: 1000, Volume: 50, AveragePrice: 240},
			"2": {LastPrice: 180, OI: 800, Volume: 20, AveragePrice: 190},
		},
	}
	src := newKite(fake, "BFO", NewTransport(testReader(0)))
	snap, err := src.Fetch(context.Background(), Request{Symbol: "sensex", Expiry: "2025-10-23"})
	require.NoError(t, err)

	require.Len(t, snap.Quotes, 2)
	assert.Equal(t, models.Call, snap.Quotes[0].Side)
	assert.EqualValues(t, 1000, snap.Quotes[0].OpenInterest)
	assert.Equal(t, 240.0, snap.Quotes[0].VWAP)
	assert.Equal(t, models.Put, snap.Quotes[1].Side)
	assert.Equal(t, 0.0, snap.Spot)

	require.Len(t, snap.Diagnostics, 1)
	assert.Equal(t, "SENSEX81100CE", snap.Diagnostics[0].Key)
	assert.Equal(t, 1, fake.quoteCalls)
}

func TestKiteNoContracts(t *testing.T) {
	fake := &fakeKite{instruments: kiteconnect.Instruments{kiteInstrument(1, "SENSEX", "2025-10-30", "CE", 81000)}}
	src := newKite(fake, "BFO", NewTransport(testReader(0)))
	_, err := src.Fetch(context.Background(), Request{Symbol: "sensex", Expiry: "2025-10-23"})
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Equal(t, 0, fake.quoteCalls)
}

func TestKiteQuoteFailureSkipsContracts(t *testing.T) {
	fake := &fakeKite{
		instruments: kiteconnect.Instruments{kiteInstrument(1, "SENSEX", "2025-10-23", "CE", 81000)},
		quoteErr:    errors.New("token expired"),
	}
	src := newKite(fake, "BFO", NewTransport(testReader(0)))
	snap, err := src.Fetch(context.Background(), Request{Symbol: "sensex", Expiry: "2025-10-23"})
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Equal(t, 1, snap.Diagnostics.Count(models.StageFetch))
}

func TestNewSourceKinds(t *testing.T) {
	cfg := &config.Config{Reader: testReader(0)}
	cfg.Source.Kind = config.SourceNiftyTrader
	src, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, config.SourceNiftyTrader, src.Name())

	cfg.Source.Kind = config.SourceKite
	_, err = New(cfg)
	assert.Error(t, err)

	cfg.Source.Kind = "bloomberg"
	_, err = New(cfg)
	assert.Error(t, err)
}
