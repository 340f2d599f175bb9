package services

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"wheelhouse-etl/config"
	"wheelhouse-etl/models"
	"wheelhouse-etl/storage"
)

// HealthScanner audits the partition tree the writers maintain and produces
// the report consumed by monitoring. It never touches the network.
type HealthScanner struct {
	root           string
	staleAfterDays int
	logger         zerolog.Logger
	now            func() time.Time
}

// NewHealthScanner creates a scanner over cfg's partition root.
func NewHealthScanner(cfg *config.Config, logger zerolog.Logger) *HealthScanner {
	return &HealthScanner{
		root:           cfg.RawRoot(),
		staleAfterDays: cfg.StaleAfterDays,
		logger:         logger.With().Str("component", "health").Logger(),
		now:            time.Now,
	}
}

// listingScan accumulates one listing directory before rounding.
type listingScan struct {
	files  int
	bytes  int64
	dates  *models.DateRange
	issues []string
	fatal  bool
}

// Scan walks the partition tree and classifies its state. Bad files never
// abort the scan: problems become issues, and only an unreadable listing
// directory or a missing root escalate to critical.
func (s *HealthScanner) Scan() (*models.HealthReport, error) {
	report := &models.HealthReport{
		Timestamp: s.now().UTC(),
		Status:    models.StatusHealthy,
		Issues:    []string{},
		Listings:  map[string]models.ListingStats{},
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			report.Status = models.StatusCritical
			report.Issues = append(report.Issues, fmt.Sprintf("data root %s does not exist", s.root))
			return report, nil
		}
		return nil, fmt.Errorf("health: read data root: %w", err)
	}

	critical := false
	var totalBytes int64

	for _, entry := range entries {
		if !entry.IsDir() {
			report.Issues = append(report.Issues, fmt.Sprintf("unexpected file at data root: %s", entry.Name()))
			continue
		}

		listingID := entry.Name()
		scan := s.scanListing(listingID)
		report.Issues = append(report.Issues, scan.issues...)
		if scan.fatal {
			critical = true
			continue
		}

		report.Listings[listingID] = models.ListingStats{
			FileCount: scan.files,
			SizeMB:    roundMB(scan.bytes),
			DateRange: scan.dates,
		}
		report.FileCount += scan.files
		totalBytes += scan.bytes
		report.DateRange = mergeRange(report.DateRange, scan.dates)
	}

	report.TotalSizeMB = roundMB(totalBytes)
	s.checkFreshness(report)

	switch {
	case critical:
		report.Status = models.StatusCritical
	case len(report.Issues) > 0:
		report.Status = models.StatusDegraded
	}

	s.logger.Info().
		Str("status", report.Status).
		Int("files", report.FileCount).
		Int("listings", len(report.Listings)).
		Int("issues", len(report.Issues)).
		Msg("scan complete")
	return report, nil
}

func (s *HealthScanner) scanListing(listingID string) listingScan {
	var scan listingScan

	dir := filepath.Join(s.root, listingID)
	files, err := os.ReadDir(dir)
	if err != nil {
		scan.fatal = true
		scan.issues = append(scan.issues, fmt.Sprintf("listing %s: unreadable directory: %v", listingID, err))
		return scan
	}

	valid := 0
	for _, file := range files {
		name := file.Name()

		if file.IsDir() {
			scan.issues = append(scan.issues, fmt.Sprintf("listing %s: unexpected directory %s", listingID, name))
			continue
		}

		info, err := file.Info()
		if err != nil {
			scan.issues = append(scan.issues, fmt.Sprintf("listing %s: stat %s: %v", listingID, name, err))
			continue
		}

		scan.files++
		scan.bytes += info.Size()

		date, err := partitionDate(name)
		if err != nil {
			scan.issues = append(scan.issues, fmt.Sprintf("listing %s: unexpected file name %s", listingID, name))
			continue
		}

		if info.Size() == 0 {
			scan.issues = append(scan.issues, fmt.Sprintf("listing %s: zero-byte partition %s", listingID, name))
			continue
		}

		if _, err := storage.PartitionRows(filepath.Join(dir, name)); err != nil {
			scan.issues = append(scan.issues, fmt.Sprintf("listing %s: unreadable partition %s: %v", listingID, name, err))
			continue
		}

		valid++
		scan.dates = mergeDate(scan.dates, date)
	}

	if valid == 0 {
		scan.issues = append(scan.issues, fmt.Sprintf("listing %s: no valid partition files", listingID))
	}
	return scan
}

// checkFreshness flags a lake whose newest partition is older than the
// configured threshold. Disabled when the threshold is zero.
func (s *HealthScanner) checkFreshness(report *models.HealthReport) {
	if s.staleAfterDays <= 0 || report.DateRange == nil {
		return
	}
	latest, err := time.Parse(storage.DateLayout, report.DateRange.Latest)
	if err != nil {
		return
	}
	age := int(s.now().UTC().Sub(latest).Hours() / 24)
	if age > s.staleAfterDays {
		report.Issues = append(report.Issues,
			fmt.Sprintf("latest partition date %s is %d days old", report.DateRange.Latest, age))
	}
}

// WriteReport serializes the report and fully overwrites the file at path.
func (s *HealthScanner) WriteReport(report *models.HealthReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("health: create report dir: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("health: encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("health: write report: %w", err)
	}

	s.logger.Info().Str("path", path).Msg("report written")
	return nil
}

// partitionDate parses YYYY-MM-DD out of a partition file name with a known
// extension.
func partitionDate(name string) (string, error) {
	ext := filepath.Ext(name)
	if ext != storage.ExtParquet && ext != storage.ExtCSV {
		return "", fmt.Errorf("unknown extension %q", ext)
	}
	stem := strings.TrimSuffix(name, ext)
	if _, err := time.Parse(storage.DateLayout, stem); err != nil {
		return "", fmt.Errorf("not a date: %q", stem)
	}
	return stem, nil
}

// mergeDate widens a range to include date. Dates are YYYY-MM-DD strings, so
// lexical comparison is chronological.
func mergeDate(r *models.DateRange, date string) *models.DateRange {
	if r == nil {
		return &models.DateRange{Earliest: date, Latest: date}
	}
	if date < r.Earliest {
		r.Earliest = date
	}
	if date > r.Latest {
		r.Latest = date
	}
	return r
}

func mergeRange(dst, src *models.DateRange) *models.DateRange {
	if src == nil {
		return dst
	}
	dst = mergeDate(dst, src.Earliest)
	return mergeDate(dst, src.Latest)
}

func roundMB(bytes int64) float64 {
	mb := float64(bytes) / (1024 * 1024)
	return math.Round(mb*100) / 100
}
