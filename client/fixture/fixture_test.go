package fixture

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testDate = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func TestFetchAllForDateEnvelope(t *testing.T) {
	src := New(filepath.Join("testdata", "listings.json"), zerolog.Nop())

	got, err := src.FetchAllForDate(context.Background(), testDate)
	if err != nil {
		t.Fatalf("FetchAllForDate: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("listings = %d; want 3", len(got))
	}

	wantIDs := []string{"listing_1", "listing_2", "listing_3"}
	for i, want := range wantIDs {
		if got[i]["id"] != want {
			t.Errorf("listing %d id = %v; want %q", i, got[i]["id"], want)
		}
	}
}

func TestFetchAllForDateBareArray(t *testing.T) {
	src := New(filepath.Join("testdata", "bare.json"), zerolog.Nop())

	got, err := src.FetchAllForDate(context.Background(), testDate)
	if err != nil {
		t.Fatalf("FetchAllForDate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("listings = %d; want 2", len(got))
	}
	if got[0]["id"] != "listing_a" {
		t.Errorf("first id = %v; want %q", got[0]["id"], "listing_a")
	}
}

func TestFetchAllForDateMissingFile(t *testing.T) {
	path := filepath.Join("testdata", "missing.json")
	src := New(path, zerolog.Nop())

	_, err := src.FetchAllForDate(context.Background(), testDate)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("err = %v; want failure naming %s", err, path)
	}
}

func TestFetchAllForDateCopiesSlice(t *testing.T) {
	src := New(filepath.Join("testdata", "bare.json"), zerolog.Nop())

	first, err := src.FetchAllForDate(context.Background(), testDate)
	if err != nil {
		t.Fatalf("FetchAllForDate: %v", err)
	}
	first[0] = nil

	second, err := src.FetchAllForDate(context.Background(), testDate)
	if err != nil {
		t.Fatalf("FetchAllForDate: %v", err)
	}
	if second[0] == nil {
		t.Error("caller mutation leaked into the cached listings")
	}
}

func TestFetchAllForDateCancelledContext(t *testing.T) {
	src := New(filepath.Join("testdata", "bare.json"), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.FetchAllForDate(ctx, testDate); err == nil {
		t.Error("expected context cancellation error")
	}
}
