package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/victorl2/trade-optimizer/internal/exchange"
	"github.com/victorl2/trade-optimizer/internal/models"
)

func pageOf(raw string) *exchange.Page {
	return &exchange.Page{Entries: gjson.Parse(raw).Array(), Attempts: 1}
}

func openTimes(d *models.Dataset) []int64 {
	var out []int64
	for _, c := range d.Candles() {
		out = append(out, c.OpenTime)
	}
	return out
}

func TestAssembleStopsAtEndBoundary(t *testing.T) {
	page := pageOf(`[
		{"open_time": 100, "open": "1", "high": "2", "low": "0.5", "close": "1.5", "volume": "10"},
		{"open_time": 200, "open": "1", "high": "2", "low": "0.5", "close": "1.5", "volume": "10"},
		{"open_time": 300, "open": "1", "high": "2", "low": "0.5", "close": "1.5", "volume": "10"}
	]`)

	dataset := models.NewDataset(0)
	result, err := New(1, 200, ModeBreak).Assemble(page, dataset)
	require.NoError(t, err)

	assert.Equal(t, []int64{100}, openTimes(dataset))
	assert.Equal(t, Result{Appended: 1, Discarded: 2, Stopped: true}, result)
}

func TestAssembleDerivesCloseTime(t *testing.T) {
	page := pageOf(`[{"open_time": 1000, "open": "11649.5", "high": "11655", "low": "11640", "close": "11650", "volume": "1234567"}]`)

	dataset := models.NewDataset(1)
	_, err := New(1, 5000, ModeBreak).Assemble(page, dataset)
	require.NoError(t, err)

	require.Equal(t, 1, dataset.Len())
	candle := dataset.Candles()[0]
	assert.Equal(t, int64(1060), candle.CloseTime)
	assert.Equal(t, "11649.5", candle.Open)
	assert.Equal(t, "11655", candle.High)
	assert.Equal(t, "11640", candle.Low)
	assert.Equal(t, "11650", candle.Close)
	assert.Equal(t, "1234567", candle.Volume)

	_, err = New(15, 5000, ModeBreak).Assemble(page, dataset)
	require.NoError(t, err)
	assert.Equal(t, int64(1900), dataset.Candles()[1].CloseTime)
}

func TestAssembleKeepsNumericText(t *testing.T) {
	page := pageOf(`[{"open_time": "1000", "open": 11649.50, "high": 1e3, "low": "0.00000001", "close": 7, "volume": 0}]`)

	dataset := models.NewDataset(1)
	_, err := New(1, 5000, ModeBreak).Assemble(page, dataset)
	require.NoError(t, err)

	candle := dataset.Candles()[0]
	assert.Equal(t, int64(1000), candle.OpenTime)
	assert.Equal(t, "11649.50", candle.Open)
	assert.Equal(t, "1e3", candle.High)
	assert.Equal(t, "0.00000001", candle.Low)
	assert.Equal(t, "7", candle.Close)
	assert.Equal(t, "0", candle.Volume)
}

func TestAssembleFilterMode(t *testing.T) {
	page := pageOf(`[
		{"open_time": 100},
		{"open_time": 300},
		{"open_time": 150},
		{"open_time": 200}
	]`)

	t.Run("filter keeps scanning", func(t *testing.T) {
		dataset := models.NewDataset(0)
		result, err := New(1, 200, ModeFilter).Assemble(page, dataset)
		require.NoError(t, err)

		assert.Equal(t, []int64{100, 150}, openTimes(dataset))
		assert.Equal(t, Result{Appended: 2, Discarded: 2}, result)
	})

	t.Run("break discards the tail", func(t *testing.T) {
		dataset := models.NewDataset(0)
		result, err := New(1, 200, ModeBreak).Assemble(page, dataset)
		require.NoError(t, err)

		assert.Equal(t, []int64{100}, openTimes(dataset))
		assert.Equal(t, 3, result.Discarded)
	})
}

func TestAssembleAppendsAcrossPagesWithoutDedup(t *testing.T) {
	first := pageOf(`[{"open_time": 100}, {"open_time": 160}]`)
	second := pageOf(`[{"open_time": 160}, {"open_time": 220}]`)

	dataset := models.NewDataset(0)
	a := New(1, 1000, ModeBreak)
	_, err := a.Assemble(first, dataset)
	require.NoError(t, err)
	_, err = a.Assemble(second, dataset)
	require.NoError(t, err)

	assert.Equal(t, []int64{100, 160, 160, 220}, openTimes(dataset))
}

func TestAssembleMissingOpenTime(t *testing.T) {
	page := pageOf(`[{"open_time": 100}, {"open": "1"}]`)

	dataset := models.NewDataset(0)
	result, err := New(1, 1000, ModeBreak).Assemble(page, dataset)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 1: missing open_time")
	assert.Equal(t, 1, result.Appended)
	assert.Equal(t, 1, dataset.Len())
}

func TestAssembleEmptyPage(t *testing.T) {
	dataset := models.NewDataset(0)

	result, err := New(1, 1000, ModeBreak).Assemble(&exchange.Page{}, dataset)
	require.NoError(t, err)
	assert.Zero(t, result.Appended)

	result, err = New(1, 1000, ModeBreak).Assemble(nil, dataset)
	require.NoError(t, err)
	assert.Zero(t, result.Appended)
	assert.Zero(t, dataset.Len())
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("break")
	require.NoError(t, err)
	assert.Equal(t, ModeBreak, mode)

	mode, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeBreak, mode)

	mode, err = ParseMode("filter")
	require.NoError(t, err)
	assert.Equal(t, ModeFilter, mode)

	_, err = ParseMode("skip")
	assert.Error(t, err)
}
