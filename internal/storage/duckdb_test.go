package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/victorl2/trade-optimizer/internal/errors"
	"github.com/victorl2/trade-optimizer/internal/models"
)

func countRows(t *testing.T, path, table string) int {
	t.Helper()

	db, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&count))
	return count
}

func TestDuckDBWriter_Write(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "klines.duckdb")
	dataset := createTestDataset(1598918400, 250)

	writer := NewDuckDBWriter("", createTestLogger())
	require.NoError(t, writer.Write(ctx, path, dataset))
	assert.Equal(t, 250, countRows(t, path, DefaultTable))

	db, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	defer db.Close()

	var (
		timestamp, closeTime int64
		open, high, volume   float64
	)
	err = db.QueryRow("SELECT timestamp, open, high, volume, close_time FROM klines ORDER BY timestamp LIMIT 1").
		Scan(&timestamp, &open, &high, &volume, &closeTime)
	require.NoError(t, err)

	assert.Equal(t, int64(1598918400), timestamp)
	assert.Equal(t, 11649.5, open)
	assert.Equal(t, 11655.0, high)
	assert.Equal(t, 1234567.0, volume)
	assert.Equal(t, int64(1598918460), closeTime)
}

func TestDuckDBWriter_RecreatesTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "klines.duckdb")
	writer := NewDuckDBWriter("candles_1m", createTestLogger())

	require.NoError(t, writer.Write(ctx, path, createTestDataset(0, 10)))
	require.NoError(t, writer.Write(ctx, path, createTestDataset(0, 4)))

	assert.Equal(t, 4, countRows(t, path, "candles_1m"))
}

func TestDuckDBWriter_KeepsDuplicates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "klines.duckdb")

	dataset := createTestDataset(0, 2)
	dataset.Append(dataset.Candles()[1])

	require.NoError(t, NewDuckDBWriter("", createTestLogger()).Write(ctx, path, dataset))
	assert.Equal(t, 3, countRows(t, path, DefaultTable))
}

func TestDuckDBWriter_EmptyDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klines.duckdb")

	require.NoError(t, NewDuckDBWriter("", createTestLogger()).Write(context.Background(), path, models.NewDataset(0)))
	assert.Equal(t, 0, countRows(t, path, DefaultTable))
}

func TestDuckDBWriter_InvalidDecimal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klines.duckdb")
	dataset := models.NewDataset(1)
	dataset.Append(models.NewCandle(0, "not-a-number", "1", "1", "1", "1", 1))

	err := NewDuckDBWriter("", createTestLogger()).Write(context.Background(), path, dataset)
	require.Error(t, err)

	var writeErr *apperrors.WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, path, writeErr.Path)
	assert.Contains(t, err.Error(), "invalid open")
}
