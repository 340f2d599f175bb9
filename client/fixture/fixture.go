package fixture

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"wheelhouse-etl/models"
)

// Source serves listings from a JSON fixture file instead of the live API.
// It backs mock mode, where runs must work offline and without credentials.
type Source struct {
	path   string
	logger zerolog.Logger

	once     sync.Once
	listings []models.RawListing
	loadErr  error
}

// New creates a fixture-backed source reading from path. The file is loaded
// lazily on first fetch.
func New(path string, logger zerolog.Logger) *Source {
	return &Source{
		path:   path,
		logger: logger.With().Str("component", "fixture").Logger(),
	}
}

// FetchAllForDate returns the fixture listings regardless of date, mirroring
// the live client's contract and ordering.
func (s *Source) FetchAllForDate(ctx context.Context, date time.Time) ([]models.RawListing, error) {
	s.once.Do(s.load)
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]models.RawListing, len(s.listings))
	copy(out, s.listings)

	s.logger.Info().
		Str("date", date.Format("2006-01-02")).
		Int("records", len(out)).
		Msg("serving fixture listings")
	return out, nil
}

// load accepts both the API envelope ({"listings": [...]}) and a bare array.
func (s *Source) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.loadErr = fmt.Errorf("fixture: read %s: %w", s.path, err)
		return
	}

	var envelope struct {
		Listings []models.RawListing `json:"listings"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Listings != nil {
		s.listings = envelope.Listings
		return
	}

	var listings []models.RawListing
	if err := json.Unmarshal(data, &listings); err != nil {
		s.loadErr = fmt.Errorf("fixture: decode %s: %w", s.path, err)
		return
	}
	s.listings = listings
}
