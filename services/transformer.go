package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"wheelhouse-etl/models"
)

// timeLayouts are tried in order when coercing upstream datetime strings.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Transformer pins raw API records to the fixed ListingRow schema.
type Transformer struct {
	logger zerolog.Logger
}

// NewTransformer creates a Transformer with the given logger.
func NewTransformer(logger zerolog.Logger) *Transformer {
	return &Transformer{logger: logger.With().Str("component", "transform").Logger()}
}

// TransformResult carries the normalized rows plus what was excluded.
type TransformResult struct {
	Rows        []models.ListingRow
	InvalidRows int
	RowErrors   []string
}

// Transform normalizes records in input order. Missing fields take their
// documented defaults; a present-but-unparseable numeric field excludes the
// whole row. No deduplication happens here: upstream may legitimately repeat
// listings, and the writer overwrites per partition anyway.
func (t *Transformer) Transform(records []models.RawListing) TransformResult {
	result := TransformResult{Rows: make([]models.ListingRow, 0, len(records))}

	for i, rec := range records {
		row, err := t.transformOne(rec)
		if err != nil {
			result.InvalidRows++
			result.RowErrors = append(result.RowErrors, fmt.Sprintf("record %d: %v", i, err))
			t.logger.Warn().Int("record", i).Err(err).Msg("row excluded")
			continue
		}
		result.Rows = append(result.Rows, row)
	}

	t.logger.Info().
		Int("input", len(records)).
		Int("output", len(result.Rows)).
		Int("invalid", result.InvalidRows).
		Msg("transform complete")
	return result
}

func (t *Transformer) transformOne(rec models.RawListing) (models.ListingRow, error) {
	row := models.ListingRow{
		ListingID:    stringField(rec, models.UnknownListingID, "id", "listing_id"),
		Title:        normaliseText(stringField(rec, "", "name", "title")),
		Location:     normaliseText(stringField(rec, "", "address", "location")),
		PropertyType: normaliseText(stringField(rec, "", "room_type", "property_type")),
		ListingDate:  timeField(rec, "created_at", "listing_date"),
		LastUpdated:  timeField(rec, "updated_at", "last_updated"),
		Source:       models.SourceName,
	}

	var err error
	if row.Price, err = floatField(rec, "price_per_night", "price"); err != nil {
		return models.ListingRow{}, err
	}
	if row.Bathrooms, err = floatField(rec, "bathrooms"); err != nil {
		return models.ListingRow{}, err
	}
	if row.ReviewScore, err = floatField(rec, "review_score", "rating"); err != nil {
		return models.ListingRow{}, err
	}
	if row.Latitude, err = floatField(rec, "latitude", "lat"); err != nil {
		return models.ListingRow{}, err
	}
	if row.Longitude, err = floatField(rec, "longitude", "lng"); err != nil {
		return models.ListingRow{}, err
	}
	if row.Bedrooms, err = intField(rec, "bedrooms"); err != nil {
		return models.ListingRow{}, err
	}
	if row.ReviewCount, err = intField(rec, "review_count", "reviews_count"); err != nil {
		return models.ListingRow{}, err
	}

	return row, nil
}

// stringField returns the first present key rendered as a string, or the
// fallback when every key is absent or empty.
func stringField(rec models.RawListing, fallback string, keys ...string) string {
	for _, key := range keys {
		val, ok := rec[key]
		if !ok || val == nil {
			continue
		}
		switch v := val.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				continue
			}
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return fmt.Sprintf("%v", v)
		}
	}
	return fallback
}

// floatField coerces the first present key to float64. Missing or empty keys
// yield 0; a value that cannot be read as a number invalidates the row.
func floatField(rec models.RawListing, keys ...string) (float64, error) {
	for _, key := range keys {
		val, ok := rec[key]
		if !ok || val == nil {
			continue
		}
		switch v := val.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				continue
			}
			f, err := strconv.ParseFloat(trimmed, 64)
			if err != nil {
				return 0, fmt.Errorf("field %q: not numeric: %q", key, v)
			}
			return f, nil
		default:
			return 0, fmt.Errorf("field %q: unsupported type %T", key, val)
		}
	}
	return 0, nil
}

// intField is floatField for integer columns; fractional values truncate.
func intField(rec models.RawListing, keys ...string) (int32, error) {
	f, err := floatField(rec, keys...)
	if err != nil {
		return 0, err
	}
	return int32(f), nil
}

// timeField coerces best-effort: an unparseable datetime falls back to the
// zero time instead of invalidating the row.
func timeField(rec models.RawListing, keys ...string) time.Time {
	for _, key := range keys {
		val, ok := rec[key]
		if !ok || val == nil {
			continue
		}
		s, ok := val.(string)
		if !ok {
			return time.Time{}
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				return ts
			}
		}
		return time.Time{}
	}
	return time.Time{}
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
