package storage

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"wheelhouse-etl/models"
)

// ParquetWriter persists partitions as snappy-compressed parquet files, one
// file per (listing, date). Rewriting a partition replaces it wholesale.
type ParquetWriter struct {
	root   string
	logger zerolog.Logger
}

// NewParquetWriter creates a writer rooted at the given partition tree.
func NewParquetWriter(root string, logger zerolog.Logger) *ParquetWriter {
	return &ParquetWriter{
		root:   root,
		logger: logger.With().Str("component", "parquet_writer").Logger(),
	}
}

// Plan reports the partitions Write would produce, without filesystem access.
func (w *ParquetWriter) Plan(rows []models.ListingRow, date time.Time) []models.PartitionResult {
	return planPartitions(w.root, ExtParquet, rows, date)
}

// Write commits one parquet file per listing atomically. Committed partitions
// survive failures in later ones.
func (w *ParquetWriter) Write(rows []models.ListingRow, date time.Time) ([]models.PartitionResult, error) {
	return commitPartitions(w.root, ExtParquet, "parquet", rows, date, w.logger, encodeParquet)
}

func encodeParquet(f *os.File, rows []models.ListingRow) error {
	pw := parquet.NewGenericWriter[models.ListingRow](f, parquet.Compression(&parquet.Snappy))
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("finalize file: %w", err)
	}
	return nil
}
