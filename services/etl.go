package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wheelhouse-etl/models"
	"wheelhouse-etl/storage"
)

// ListingSource is the upstream capability the orchestrator needs. The live
// API client and the fixture source both satisfy it.
type ListingSource interface {
	FetchAllForDate(ctx context.Context, date time.Time) ([]models.RawListing, error)
}

// Orchestrator drives one full pipeline pass per report date.
type Orchestrator struct {
	source      ListingSource
	transformer *Transformer
	writer      storage.PartitionWriter
	logger      zerolog.Logger
	now         func() time.Time
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(source ListingSource, transformer *Transformer, writer storage.PartitionWriter, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		source:      source,
		transformer: transformer,
		writer:      writer,
		logger:      logger.With().Str("component", "etl").Logger(),
		now:         time.Now,
	}
}

// Run processes one report date. Dry runs plan partitions without touching
// the filesystem. Extract failures abort the run; write failures are
// reported per partition while already-committed partitions stay in place.
func (o *Orchestrator) Run(ctx context.Context, date time.Time, dryRun bool) (*models.RunSummary, error) {
	started := o.now()
	summary := &models.RunSummary{
		RunID:  uuid.New().String(),
		Date:   date.Format(storage.DateLayout),
		DryRun: dryRun,
		Stage:  models.StageExtract,
	}

	log := o.logger.With().
		Str("run_id", summary.RunID).
		Str("date", summary.Date).
		Bool("dry_run", dryRun).
		Logger()
	log.Info().Msg("run started")

	records, err := o.source.FetchAllForDate(ctx, date)
	if err != nil {
		summary.Stage = models.StageFailed
		summary.Elapsed = o.now().Sub(started)
		log.Error().Err(err).Msg("extract failed")
		return summary, fmt.Errorf("extract: %w", err)
	}
	summary.TotalRecords = len(records)

	summary.Stage = models.StageTransform
	result := o.transformer.Transform(records)
	summary.InvalidRows = result.InvalidRows

	summary.Stage = models.StageWrite
	planned := o.writer.Plan(result.Rows, date)
	summary.UniqueListings = len(planned)

	var writeErr error
	if dryRun {
		summary.Partitions = planned
	} else {
		summary.Partitions, writeErr = o.writer.Write(result.Rows, date)
	}

	summary.Elapsed = o.now().Sub(started)

	if writeErr != nil {
		summary.Stage = models.StageFailed
		written := make(map[string]bool, len(summary.Partitions))
		for _, p := range summary.Partitions {
			written[p.ListingID] = true
		}
		for _, p := range planned {
			if !written[p.ListingID] {
				summary.FailedListings = append(summary.FailedListings, p.ListingID)
			}
		}
		log.Error().
			Err(writeErr).
			Strs("failed_listings", summary.FailedListings).
			Int("committed", len(summary.Partitions)).
			Msg("run completed with partition failures")
		return summary, fmt.Errorf("write: %w", writeErr)
	}

	summary.Stage = models.StageDone
	log.Info().
		Int("records", summary.TotalRecords).
		Int("partitions", len(summary.Partitions)).
		Int("invalid_rows", summary.InvalidRows).
		Dur("elapsed", summary.Elapsed).
		Msg("run complete")
	return summary, nil
}

// RunRange processes every date from start to end inclusive. A failed day
// does not stop the range; every day gets a summary and the per-day errors
// come back joined.
func (o *Orchestrator) RunRange(ctx context.Context, start, end time.Time, dryRun bool) ([]*models.RunSummary, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("etl: range end %s before start %s",
			end.Format(storage.DateLayout), start.Format(storage.DateLayout))
	}

	var summaries []*models.RunSummary
	var errs []error

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		summary, err := o.Run(ctx, day, dryRun)
		summaries = append(summaries, summary)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", summary.Date, err))
		}
	}

	return summaries, errors.Join(errs...)
}
