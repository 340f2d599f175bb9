package models

import "time"

// Health status classifications for the partition tree.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusCritical = "critical"
)

// DateRange bounds the partition dates seen during a scan (YYYY-MM-DD,
// inclusive). A nil range means no dated partitions exist.
type DateRange struct {
	Earliest string `json:"earliest"`
	Latest   string `json:"latest"`
}

// ListingStats aggregates one listing's partition directory.
type ListingStats struct {
	FileCount int        `json:"file_count"`
	SizeMB    float64    `json:"size_mb"`
	DateRange *DateRange `json:"date_range"`
}

// HealthReport is the scan result serialized to health.json.
type HealthReport struct {
	Timestamp   time.Time               `json:"timestamp"`
	Status      string                  `json:"status"`
	FileCount   int                     `json:"file_count"`
	TotalSizeMB float64                 `json:"total_size_mb"`
	DateRange   *DateRange              `json:"date_range"`
	Issues      []string                `json:"issues"`
	Listings    map[string]ListingStats `json:"listings"`
}
