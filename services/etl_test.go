package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wheelhouse-etl/models"
	"wheelhouse-etl/storage"
)

var runDate = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	records []models.RawListing
	failOn  string
	calls   int
}

func (f *fakeSource) FetchAllForDate(ctx context.Context, date time.Time) ([]models.RawListing, error) {
	f.calls++
	if f.failOn != "" && date.Format(storage.DateLayout) == f.failOn {
		return nil, errors.New("upstream down")
	}
	return f.records, nil
}

type fakeWriter struct {
	planned   []models.PartitionResult
	committed []models.PartitionResult
	err       error
	writes    int
}

func (f *fakeWriter) Plan(rows []models.ListingRow, date time.Time) []models.PartitionResult {
	return f.planned
}

func (f *fakeWriter) Write(rows []models.ListingRow, date time.Time) ([]models.PartitionResult, error) {
	f.writes++
	return f.committed, f.err
}

func sampleRecords() []models.RawListing {
	return []models.RawListing{
		{"id": "listing_a", "name": "First", "price_per_night": 100.0},
		{"id": "listing_a", "name": "First Again", "price_per_night": 110.0},
		{"id": "listing_b", "name": "Second", "price_per_night": 85.0},
	}
}

func newOrchestrator(src ListingSource, w storage.PartitionWriter) *Orchestrator {
	return NewOrchestrator(src, NewTransformer(zerolog.Nop()), w, zerolog.Nop())
}

func TestRunWritesPartitions(t *testing.T) {
	root := filepath.Join(t.TempDir(), "raw")
	o := newOrchestrator(
		&fakeSource{records: sampleRecords()},
		storage.NewParquetWriter(root, zerolog.Nop()),
	)

	summary, err := o.Run(context.Background(), runDate, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Stage != models.StageDone {
		t.Errorf("Stage = %q; want %q", summary.Stage, models.StageDone)
	}
	if summary.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d; want 3", summary.TotalRecords)
	}
	if summary.UniqueListings != 2 {
		t.Errorf("UniqueListings = %d; want 2", summary.UniqueListings)
	}
	if summary.RunID == "" {
		t.Error("RunID should be set")
	}
	if summary.Date != "2025-07-01" {
		t.Errorf("Date = %q; want %q", summary.Date, "2025-07-01")
	}

	if len(summary.Partitions) != 2 {
		t.Fatalf("partitions = %d; want 2", len(summary.Partitions))
	}
	wantRows := map[string]int{"listing_a": 2, "listing_b": 1}
	for _, p := range summary.Partitions {
		if p.Rows != wantRows[p.ListingID] {
			t.Errorf("partition %s rows = %d; want %d", p.ListingID, p.Rows, wantRows[p.ListingID])
		}
		n, err := storage.PartitionRows(p.Path)
		if err != nil {
			t.Fatalf("PartitionRows(%s): %v", p.Path, err)
		}
		if int(n) != p.Rows {
			t.Errorf("file %s holds %d rows; summary says %d", p.Path, n, p.Rows)
		}
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "raw")
	o := newOrchestrator(
		&fakeSource{records: sampleRecords()},
		storage.NewParquetWriter(root, zerolog.Nop()),
	)

	summary, err := o.Run(context.Background(), runDate, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !summary.DryRun {
		t.Error("summary should be marked dry-run")
	}
	if summary.Stage != models.StageDone {
		t.Errorf("Stage = %q; want %q", summary.Stage, models.StageDone)
	}
	if len(summary.Partitions) != 2 {
		t.Errorf("planned partitions = %d; want 2", len(summary.Partitions))
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("dry run created %s", root)
	}
}

func TestRunExtractFailureAborts(t *testing.T) {
	fw := &fakeWriter{}
	o := newOrchestrator(&fakeSource{failOn: "2025-07-01"}, fw)

	summary, err := o.Run(context.Background(), runDate, false)
	if err == nil || !strings.Contains(err.Error(), "extract") {
		t.Fatalf("err = %v; want extract failure", err)
	}
	if summary.Stage != models.StageFailed {
		t.Errorf("Stage = %q; want %q", summary.Stage, models.StageFailed)
	}
	if fw.writes != 0 {
		t.Errorf("writer called %d times after failed extract; want 0", fw.writes)
	}
}

func TestRunCountsInvalidRows(t *testing.T) {
	records := append(sampleRecords(), models.RawListing{
		"id": "listing_c", "price_per_night": "not a number",
	})
	root := filepath.Join(t.TempDir(), "raw")
	o := newOrchestrator(
		&fakeSource{records: records},
		storage.NewParquetWriter(root, zerolog.Nop()),
	)

	summary, err := o.Run(context.Background(), runDate, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.InvalidRows != 1 {
		t.Errorf("InvalidRows = %d; want 1", summary.InvalidRows)
	}
	if summary.UniqueListings != 2 {
		t.Errorf("UniqueListings = %d; want 2: the invalid row must not partition", summary.UniqueListings)
	}
}

func TestRunReportsFailedListings(t *testing.T) {
	fw := &fakeWriter{
		planned: []models.PartitionResult{
			{ListingID: "listing_a", Path: "a.parquet", Rows: 2},
			{ListingID: "listing_b", Path: "b.parquet", Rows: 1},
		},
		committed: []models.PartitionResult{
			{ListingID: "listing_a", Path: "a.parquet", Rows: 2},
		},
		err: errors.New("disk full"),
	}
	o := newOrchestrator(&fakeSource{records: sampleRecords()}, fw)

	summary, err := o.Run(context.Background(), runDate, false)
	if err == nil || !strings.Contains(err.Error(), "write") {
		t.Fatalf("err = %v; want write failure", err)
	}
	if summary.Stage != models.StageFailed {
		t.Errorf("Stage = %q; want %q", summary.Stage, models.StageFailed)
	}
	if len(summary.FailedListings) != 1 || summary.FailedListings[0] != "listing_b" {
		t.Errorf("FailedListings = %v; want [listing_b]", summary.FailedListings)
	}
	if len(summary.Partitions) != 1 {
		t.Errorf("committed partitions = %d; want 1", len(summary.Partitions))
	}
}

func TestRunEmptyFetch(t *testing.T) {
	root := filepath.Join(t.TempDir(), "raw")
	o := newOrchestrator(
		&fakeSource{},
		storage.NewParquetWriter(root, zerolog.Nop()),
	)

	summary, err := o.Run(context.Background(), runDate, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Stage != models.StageDone {
		t.Errorf("Stage = %q; want %q", summary.Stage, models.StageDone)
	}
	if summary.TotalRecords != 0 || len(summary.Partitions) != 0 {
		t.Errorf("summary = %+v; want empty run", summary)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("empty run created %s", root)
	}
}

func TestRunRangeContinuesPastFailure(t *testing.T) {
	src := &fakeSource{records: sampleRecords(), failOn: "2025-07-02"}
	root := filepath.Join(t.TempDir(), "raw")
	o := newOrchestrator(src, storage.NewParquetWriter(root, zerolog.Nop()))

	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC)

	summaries, err := o.RunRange(context.Background(), start, end, false)
	if err == nil || !strings.Contains(err.Error(), "2025-07-02") {
		t.Fatalf("err = %v; want failure naming the bad day", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("summaries = %d; want 3: one per day", len(summaries))
	}
	if src.calls != 3 {
		t.Errorf("source calls = %d; want 3", src.calls)
	}

	wantStages := []models.Stage{models.StageDone, models.StageFailed, models.StageDone}
	for i, summary := range summaries {
		if summary.Stage != wantStages[i] {
			t.Errorf("day %s stage = %q; want %q", summary.Date, summary.Stage, wantStages[i])
		}
	}
}

func TestRunRangeRejectsInvertedRange(t *testing.T) {
	o := newOrchestrator(&fakeSource{}, &fakeWriter{})

	start := time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	if _, err := o.RunRange(context.Background(), start, end, false); err == nil {
		t.Error("expected error for end before start")
	}
}

func TestRunRangeStopsOnCancelledContext(t *testing.T) {
	src := &fakeSource{records: sampleRecords()}
	o := newOrchestrator(src, &fakeWriter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summaries, err := o.RunRange(ctx, runDate, runDate.AddDate(0, 0, 2), false)
	if err == nil {
		t.Fatal("expected context error")
	}
	if len(summaries) != 0 {
		t.Errorf("summaries = %d; want 0 after immediate cancellation", len(summaries))
	}
	if src.calls != 0 {
		t.Errorf("source calls = %d; want 0", src.calls)
	}
}
