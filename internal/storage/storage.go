// Package storage persists an assembled dataset. The CSV writer produces the
// run's output file; the DuckDB writer optionally loads the same rows into a
// database table for analysis.
package storage

import (
	"context"

	"github.com/victorl2/trade-optimizer/internal/models"
)

// DatasetWriter writes a complete dataset to path.
//
// Implementations should:
// - Write records in dataset order
// - Leave no partial output behind when they fail
// - Return *errors.WriteError for any failure
type DatasetWriter interface {
	Write(ctx context.Context, path string, dataset *models.Dataset) error
}

// Target pairs a writer with its destination. Name labels the sink in logs.
type Target struct {
	Name   string
	Path   string
	Writer DatasetWriter
}
