package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"wheelhouse-etl/models"
)

// DateLayout is the partition-file date format: one file per listing per day.
const DateLayout = "2006-01-02"

// Known partition file extensions.
const (
	ExtParquet = ".parquet"
	ExtCSV     = ".csv"
)

// PartitionPath returns the file a (listing, date) partition lives at:
// {root}/{listingID}/{YYYY-MM-DD}{ext}.
func PartitionPath(root, listingID string, date time.Time, ext string) string {
	return filepath.Join(root, listingID, date.Format(DateLayout)+ext)
}

// groupRows buckets rows by listing id, preserving row order inside each
// bucket. The returned keys are sorted so partitions are always processed in
// a stable order.
func groupRows(rows []models.ListingRow) (map[string][]models.ListingRow, []string) {
	groups := make(map[string][]models.ListingRow)
	for _, row := range rows {
		groups[row.ListingID] = append(groups[row.ListingID], row)
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return groups, ids
}

// planPartitions is the shared Plan implementation for all writers.
func planPartitions(root, ext string, rows []models.ListingRow, date time.Time) []models.PartitionResult {
	groups, ids := groupRows(rows)

	results := make([]models.PartitionResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, models.PartitionResult{
			ListingID: id,
			Path:      PartitionPath(root, id, date, ext),
			Rows:      len(groups[id]),
		})
	}
	return results
}

// commitPartitions groups rows and writes one file per listing via encode.
// A failing partition does not stop the others: successes are returned while
// every failure is folded into the joined error, so a run can report exactly
// which listings are missing.
func commitPartitions(root, ext, format string, rows []models.ListingRow, date time.Time, logger zerolog.Logger, encode func(*os.File, []models.ListingRow) error) ([]models.PartitionResult, error) {
	groups, ids := groupRows(rows)

	results := make([]models.PartitionResult, 0, len(ids))
	var errs []error

	for _, id := range ids {
		path := PartitionPath(root, id, date, ext)
		group := groups[id]

		err := promotePartition(path, func(f *os.File) error {
			return encode(f, group)
		})
		if err != nil {
			logger.Error().Str("listing_id", id).Str("path", path).Err(err).Msg("partition write failed")
			errs = append(errs, fmt.Errorf("%s: partition %s: %w", format, id, err))
			continue
		}

		logger.Debug().Str("listing_id", id).Str("path", path).Int("rows", len(group)).Msg("partition written")
		results = append(results, models.PartitionResult{ListingID: id, Path: path, Rows: len(group)})
	}

	return results, errors.Join(errs...)
}

// promotePartition writes one partition through a temp file in the target
// directory and renames it onto the final path, so readers only ever see
// complete files. encode receives the open temp file; the temp file is
// removed on any failure.
func promotePartition(path string, encode func(*os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create partition dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := true
	defer func() {
		if cleanup {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := encode(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("promote temp file: %w", err)
	}
	cleanup = false
	return nil
}

// PartitionRows opens an existing partition file and returns its row count.
// This is how health scans verify a partition is actually readable.
func PartitionRows(path string) (int64, error) {
	switch filepath.Ext(path) {
	case ExtParquet:
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("open partition: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return 0, fmt.Errorf("stat partition: %w", err)
		}
		pf, err := parquet.OpenFile(f, info.Size())
		if err != nil {
			return 0, fmt.Errorf("parse parquet footer: %w", err)
		}
		return pf.NumRows(), nil

	case ExtCSV:
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("read partition: %w", err)
		}
		var rows []models.ListingRow
		if err := csvutil.Unmarshal(data, &rows); err != nil {
			return 0, fmt.Errorf("decode csv: %w", err)
		}
		return int64(len(rows)), nil

	default:
		return 0, fmt.Errorf("unrecognized partition extension %q", filepath.Ext(path))
	}
}
