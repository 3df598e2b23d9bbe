package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/victorl2/trade-optimizer/internal/errors"
	"github.com/victorl2/trade-optimizer/internal/models"
)

// CSVWriter writes a dataset as comma-separated UTF-8 text with a header row.
// The file is written next to its destination and renamed into place, so a
// failed write never leaves a truncated file.
type CSVWriter struct {
	logger *slog.Logger
}

// NewCSVWriter creates a CSV writer
func NewCSVWriter(logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{logger: logger}
}

// Write implements DatasetWriter. An empty dataset produces a header-only file.
func (w *CSVWriter) Write(ctx context.Context, path string, dataset *models.Dataset) error {
	if err := ctx.Err(); err != nil {
		return &apperrors.WriteError{Path: path, Err: err}
	}

	start := time.Now()
	if err := w.write(path, dataset); err != nil {
		return &apperrors.WriteError{Path: path, Err: err}
	}

	w.logger.Debug("wrote csv file",
		"path", path,
		"rows", datasetLen(dataset),
		"duration", time.Since(start))
	return nil
}

func (w *CSVWriter) write(path string, dataset *models.Dataset) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	cw := csv.NewWriter(tmp)
	if err := cw.Write(models.Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if dataset != nil {
		for i, candle := range dataset.Candles() {
			if err := cw.Write(candle.Record()); err != nil {
				return fmt.Errorf("failed to write row %d: %w", i, err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush rows: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	return nil
}

func datasetLen(d *models.Dataset) int {
	if d == nil {
		return 0
	}
	return d.Len()
}
