package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainflow/internal/models"
)

func quote(strike float64, side models.Side, oi int64, ltp float64) models.ContractQuote {
	return models.ContractQuote{InstrumentID: "x", Strike: strike, Side: side, OpenInterest: oi, LastPrice: ltp}
}

func TestAssembleGroupsAndSorts(t *testing.T) {
	c, diags := Assemble([]models.ContractQuote{
		quote(110, models.Put, 5, 2),
		quote(100, models.Call, 650, 10),
		quote(100, models.Put, 280, 4),
		quote(105, models.Call, 10, 6),
	})
	require.Empty(t, diags)
	require.Len(t, c, 3)

	assert.Equal(t, []models.StrikeKey{models.KeyOf(100), models.KeyOf(105), models.KeyOf(110)}, c.Strikes())
	assert.Equal(t, int64(650), c[0].Call.OpenInterest)
	assert.Equal(t, int64(280), c[0].Put.OpenInterest)
	assert.Nil(t, c[1].Put)
	assert.Nil(t, c[2].Call)
	assert.Same(t, c[2].Put, c[2].Leg(models.Put))
}

func TestAssembleDuplicateLastWins(t *testing.T) {
	c, diags := Assemble([]models.ContractQuote{
		quote(100, models.Call, 1, 1),
		quote(100, models.Call, 2, 1),
	})
	require.Len(t, c, 1)
	assert.Equal(t, int64(2), c[0].Call.OpenInterest)
	assert.Equal(t, 1, diags.Count(models.StageAssemble))
}

func TestAssembleSkipsInvalidQuotes(t *testing.T) {
	bad := quote(100, models.Call, -1, 1)
	c, diags := Assemble([]models.ContractQuote{bad, quote(200, models.Call, 1000, 3)})
	require.Len(t, c, 1)
	assert.Equal(t, 200.0, c[0].Strike)
	assert.Equal(t, 1, diags.Count(models.StageAssemble))
}

func TestAssembleEmpty(t *testing.T) {
	c, diags := Assemble(nil)
	assert.Empty(t, c)
	assert.Empty(t, diags)
}
