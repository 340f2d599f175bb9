package storage

import (
	"fmt"
	"os"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rs/zerolog"

	"wheelhouse-etl/models"
)

// CSVWriter persists partitions as headered CSV files with the same layout
// and atomicity as the parquet writer. Meant for environments where the
// partition tree gets inspected by hand.
type CSVWriter struct {
	root   string
	logger zerolog.Logger
}

// NewCSVWriter creates a writer rooted at the given partition tree.
func NewCSVWriter(root string, logger zerolog.Logger) *CSVWriter {
	return &CSVWriter{
		root:   root,
		logger: logger.With().Str("component", "csv_writer").Logger(),
	}
}

// Plan reports the partitions Write would produce, without filesystem access.
func (w *CSVWriter) Plan(rows []models.ListingRow, date time.Time) []models.PartitionResult {
	return planPartitions(w.root, ExtCSV, rows, date)
}

// Write commits one CSV file per listing atomically. Committed partitions
// survive failures in later ones.
func (w *CSVWriter) Write(rows []models.ListingRow, date time.Time) ([]models.PartitionResult, error) {
	return commitPartitions(w.root, ExtCSV, "csv", rows, date, w.logger, encodeCSV)
}

func encodeCSV(f *os.File, rows []models.ListingRow) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}
