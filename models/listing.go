package models

import "time"

// SourceName tags every persisted row with the system the data came from.
const SourceName = "wheelhouse_api"

// UnknownListingID is the sentinel assigned when an upstream record carries
// no usable id. It flows into partition paths, so it must be a plain
// directory-safe token.
const UnknownListingID = "unknown"

// RawListing is one record exactly as decoded from the Wheelhouse API.
// Field names and value types drift between API versions (`id` vs
// `listing_id`, numbers arriving as strings), so it stays an untyped map
// until the transformer pins it to the ListingRow schema.
type RawListing map[string]any

// ListingRow is the fixed output schema written to partition files.
type ListingRow struct {
	ListingID    string    `parquet:"listing_id" csv:"listing_id"`
	Title        string    `parquet:"title" csv:"title"`
	Price        float64   `parquet:"price" csv:"price"`
	Location     string    `parquet:"location" csv:"location"`
	PropertyType string    `parquet:"property_type" csv:"property_type"`
	Bedrooms     int32     `parquet:"bedrooms" csv:"bedrooms"`
	Bathrooms    float64   `parquet:"bathrooms" csv:"bathrooms"`
	ReviewScore  float64   `parquet:"review_score" csv:"review_score"`
	ReviewCount  int32     `parquet:"review_count" csv:"review_count"`
	Latitude     float64   `parquet:"latitude" csv:"latitude"`
	Longitude    float64   `parquet:"longitude" csv:"longitude"`
	ListingDate  time.Time `parquet:"listing_date,timestamp(millisecond)" csv:"listing_date"`
	LastUpdated  time.Time `parquet:"last_updated,timestamp(millisecond)" csv:"last_updated"`
	Source       string    `parquet:"source" csv:"source"`
}

// PartitionResult describes one committed (or planned) partition file.
type PartitionResult struct {
	ListingID string
	Path      string
	Rows      int
}

// Stage identifies where in the pipeline a run currently is, or where it
// stopped.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageWrite     Stage = "write"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// RunSummary aggregates the outcome of one ETL run.
type RunSummary struct {
	RunID          string
	Date           string
	DryRun         bool
	Stage          Stage
	TotalRecords   int
	UniqueListings int
	InvalidRows    int
	Partitions     []PartitionResult
	FailedListings []string
	Elapsed        time.Duration
}
