package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aamritt0/calendar-backend/internal/ics"
)

func TestService_QueryEchoesKeywordAndCounts(t *testing.T) {
	loader := &stubLoader{events: testEvents}
	cache := NewCache(loader, 5*time.Minute, 15*time.Minute)
	svc := NewService(cache, time.UTC, true)

	res, err := svc.Query(context.Background(), "math", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Keyword != "math" {
		t.Errorf("keyword not echoed, got %q", res.Keyword)
	}
	if res.Count != 1 || len(res.Events) != 1 {
		t.Fatalf("expected a single match, got count=%d events=%d", res.Count, len(res.Events))
	}
	if res.Events[0].Summary != "Math Exam" {
		t.Errorf("unexpected event %+v", res.Events[0])
	}
}

func TestService_SourceUnavailablePropagates(t *testing.T) {
	loader := &stubLoader{err: errors.New("upstream down")}
	cache := NewCache(loader, 5*time.Minute, 15*time.Minute)
	svc := NewService(cache, time.UTC, true)

	_, err := svc.Query(context.Background(), "", 0)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestService_AsOfStartOfDayKeepsTodayEvents(t *testing.T) {
	now := time.Date(2099, 6, 15, 18, 0, 0, 0, time.UTC)
	earlierToday := []ics.Event{{Summary: "Morning Lecture", Start: time.Date(2099, 6, 15, 9, 0, 0, 0, time.UTC)}}

	loader := &stubLoader{events: earlierToday}
	cache := NewCache(loader, 5*time.Minute, 15*time.Minute)

	svc := NewService(cache, time.UTC, true)
	svc.now = func() time.Time { return now }

	res, err := svc.Query(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Count != 1 {
		t.Errorf("start-of-day policy must keep events from earlier today, got %d", res.Count)
	}

	strict := NewService(cache, time.UTC, false)
	strict.now = func() time.Time { return now }

	res, err = strict.Query(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Count != 0 {
		t.Errorf("strict policy must drop events already started, got %d", res.Count)
	}
}

func TestService_AsOfUsesServingTimezone(t *testing.T) {
	// 23:30 UTC on June 14 is already June 15 in a UTC+2 zone; the start-of-day
	// cutoff must follow the serving zone, not UTC.
	zone := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2099, 6, 14, 23, 30, 0, 0, time.UTC)

	loader := &stubLoader{events: []ics.Event{
		{Summary: "June 14 evening", Start: time.Date(2099, 6, 14, 20, 0, 0, 0, time.UTC)},
		{Summary: "June 15 morning", Start: time.Date(2099, 6, 15, 9, 0, 0, 0, time.UTC)},
	}}
	cache := NewCache(loader, 5*time.Minute, 15*time.Minute)

	svc := NewService(cache, zone, true)
	svc.now = func() time.Time { return now }

	res, err := svc.Query(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var summaries []string
	for _, f := range res.Events {
		summaries = append(summaries, f.Summary)
	}
	if diff := cmp.Diff([]string{"June 15 morning"}, summaries); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
}

func TestService_StatusReflectsCache(t *testing.T) {
	loader := &stubLoader{events: testEvents}
	cache := NewCache(loader, 5*time.Minute, 15*time.Minute)
	svc := NewService(cache, time.UTC, true)

	if st := svc.Status(); st.HasData {
		t.Error("no data before first query")
	}

	if _, err := svc.Query(context.Background(), "", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := svc.Status()
	if !st.HasData || st.EventCount != len(testEvents) || st.Tier != "fresh" {
		t.Errorf("unexpected status: %+v", st)
	}
}
