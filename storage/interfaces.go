package storage

import (
	"time"

	"wheelhouse-etl/models"
)

// PartitionWriter is the interface any partition storage backend must
// satisfy. Plan reports the partitions a Write call would produce without
// touching the filesystem; Write groups rows by listing and commits one file
// per (listing, date) pair.
type PartitionWriter interface {
	Write(rows []models.ListingRow, date time.Time) ([]models.PartitionResult, error)
	Plan(rows []models.ListingRow, date time.Time) []models.PartitionResult
}
