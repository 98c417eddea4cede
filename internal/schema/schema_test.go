package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainflow/internal/analytics"
	"chainflow/internal/chain"
	"chainflow/internal/models"
	"chainflow/internal/prior"
)

func referenceResult(t *testing.T) analytics.Result {
	t.Helper()
	c, _ := chain.Assemble([]models.ContractQuote{
		{InstrumentID: "c", Strike: 100, Side: models.Call, OpenInterest: 650, LastPrice: 10, VWAP: 9, Volume: 70, ImpliedVolatility: 14.2},
		{InstrumentID: "p", Strike: 100, Side: models.Put, OpenInterest: 280, LastPrice: 4, VWAP: 5, Volume: 30},
	})
	return analytics.Compute(c, models.PriorState{models.KeyOf(100): {Call: 500, Put: 300}}, 105)
}

func TestAnalyticsRender(t *testing.T) {
	table := Analytics{}.Render(referenceResult(t), Meta{})

	require.Len(t, table.Header, 20)
	assert.Equal(t, "Strike", table.Header[0])
	assert.Equal(t, "Call Intrinsic", table.Header[table.DerivedFrom])
	assert.Equal(t, "R * Put VWAP (T)", table.Header[19])

	require.Len(t, table.Rows, 1)
	row := table.Rows[0]
	require.Len(t, row, 20)
	assert.Equal(t, []string{"100", "650", "10", "14.2", "9", "1", "280", "4", "0", "5", "-1"}, row[:11])
	assert.Equal(t, []string{"5", "0", "2", "0", "105"}, row[11:16])
	assert.Equal(t, "0.000538", row[16])
	assert.Equal(t, "0.00037", row[17])

	assert.Equal(t, []string{"Call Diff Sum", "1", "Put Diff Sum", "-1"}, table.Summary)
}

func TestOIDeltaRender(t *testing.T) {
	table := OIDelta{}.Render(referenceResult(t), Meta{Expiry: "2025-10-23"})

	require.Len(t, table.Header, 11)
	assert.Zero(t, table.DerivedFrom)
	assert.Nil(t, table.Summary)
	assert.Equal(t, [][]string{{"10", "650", "150", "70", "100", "2025-10-23", "4", "280", "-20", "30", ""}}, table.Rows)
}

func TestLayoutsRoundTripAsPriorState(t *testing.T) {
	for _, layout := range []Layout{Analytics{}, OIDelta{}} {
		table := layout.Render(referenceResult(t), Meta{Expiry: "2025-10-23"})
		state, diags := prior.Load(append([][]string{table.Header}, table.Rows...))
		require.Empty(t, diags, layout.Name())
		assert.Equal(t, models.PriorOI{Call: 650, Put: 280}, state[models.KeyOf(100)], layout.Name())
	}
}

func TestForMode(t *testing.T) {
	l, err := ForMode("analytics")
	require.NoError(t, err)
	assert.Equal(t, "analytics", l.Name())
	l, err = ForMode("oi_delta")
	require.NoError(t, err)
	assert.Equal(t, "oi_delta", l.Name())
	_, err = ForMode("candles")
	assert.Error(t, err)
}

func TestFormatFloatNegativeZero(t *testing.T) {
	negZero := 0.0
	negZero = -negZero
	assert.Equal(t, "0", FormatFloat(negZero))
	assert.Equal(t, "24550.5", FormatFloat(24550.5))
}
