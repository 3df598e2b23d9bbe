package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcboeker/go-duckdb/v2"
	"github.com/shopspring/decimal"
	apperrors "github.com/victorl2/trade-optimizer/internal/errors"
	"github.com/victorl2/trade-optimizer/internal/models"
)

// DefaultTable is the table DuckDBWriter loads rows into
const DefaultTable = "klines"

// DuckDBWriter loads a dataset into a DuckDB table using the Appender API.
// The table is dropped and recreated on every write, mirroring the CSV file
// which is also replaced as a whole.
type DuckDBWriter struct {
	table  string
	logger *slog.Logger
}

// NewDuckDBWriter creates a DuckDB writer for the given table. An empty
// table name uses DefaultTable.
func NewDuckDBWriter(table string, logger *slog.Logger) *DuckDBWriter {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DuckDBWriter{table: table, logger: logger}
}

// Write implements DatasetWriter. path is the database file, or ":memory:".
func (w *DuckDBWriter) Write(ctx context.Context, path string, dataset *models.Dataset) error {
	start := time.Now()

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return &apperrors.WriteError{Path: path, Err: fmt.Errorf("failed to open DuckDB database: %w", err)}
	}
	defer db.Close()

	// single writer pattern as recommended for DuckDB
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := w.load(ctx, db, dataset); err != nil {
		return &apperrors.WriteError{Path: path, Err: err}
	}

	w.logger.Debug("loaded dataset into DuckDB",
		"path", path,
		"table", w.table,
		"rows", datasetLen(dataset),
		"duration", time.Since(start))
	return nil
}

func (w *DuckDBWriter) load(ctx context.Context, db *sql.DB, dataset *models.Dataset) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	if err := w.createTable(ctx, conn); err != nil {
		return fmt.Errorf("failed to create %s table: %w", w.table, err)
	}

	if dataset == nil || dataset.Len() == 0 {
		return nil
	}

	// Get the underlying driver connection
	var driverConn *duckdb.Conn
	err = conn.Raw(func(dc interface{}) error {
		var ok bool
		driverConn, ok = dc.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("underlying connection is not a DuckDB connection")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to get DuckDB connection: %w", err)
	}

	appender, err := duckdb.NewAppenderFromConn(driverConn, "", w.table)
	if err != nil {
		return fmt.Errorf("failed to create appender: %w", err)
	}

	for i, candle := range dataset.Candles() {
		if err := appendCandle(appender, candle); err != nil {
			appender.Close()
			return fmt.Errorf("failed to append candle %d (%s): %w", i, candle.String(), err)
		}
	}

	// Close flushes the remaining rows
	if err := appender.Close(); err != nil {
		return fmt.Errorf("failed to flush appender: %w", err)
	}

	return nil
}

// createTable recreates the target table. Duplicate open times are allowed,
// so there is no primary key.
func (w *DuckDBWriter) createTable(ctx context.Context, conn *sql.Conn) error {
	statements := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", w.table),
		fmt.Sprintf(`CREATE TABLE %s (
		timestamp BIGINT NOT NULL,
		open DOUBLE NOT NULL,
		high DOUBLE NOT NULL,
		low DOUBLE NOT NULL,
		close DOUBLE NOT NULL,
		volume DOUBLE NOT NULL,
		close_time BIGINT NOT NULL
	)`, w.table),
	}

	for _, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// appendCandle appends a single candle to the DuckDB appender
func appendCandle(appender *duckdb.Appender, candle models.Candle) error {
	values := make([]float64, 0, 5)
	for _, f := range []struct {
		name  string
		value string
	}{
		{"open", candle.Open},
		{"high", candle.High},
		{"low", candle.Low},
		{"close", candle.Close},
		{"volume", candle.Volume},
	} {
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", f.name, f.value, err)
		}
		v, _ := d.Float64()
		values = append(values, v)
	}

	if err := appender.AppendRow(
		candle.OpenTime,
		values[0],
		values[1],
		values[2],
		values[3],
		values[4],
		candle.CloseTime,
	); err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}

	return nil
}
