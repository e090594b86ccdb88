package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/aamritt0/calendar-backend/internal/ics"
)

// FeedLoader fetches the upstream document and parses it into events.
type FeedLoader struct {
	URL     string
	Fetcher *ics.Fetcher
	Parser  *ics.Parser
}

func (l *FeedLoader) Load(ctx context.Context) ([]ics.Event, error) {
	started := time.Now()

	body, err := l.Fetcher.Fetch(ctx, l.URL)
	if err != nil {
		return nil, err
	}

	events := l.Parser.Parse(body)
	slog.InfoContext(ctx, "Feed loaded", "events", len(events), "bytes", len(body), "took", time.Since(started))
	return events, nil
}

// Result is the success payload returned to the transport layer.
type Result struct {
	Count   int              `json:"count"`
	Keyword string           `json:"keyword,omitempty"`
	Events  []FormattedEvent `json:"events"`
}

// Service answers event queries from the cache.
type Service struct {
	cache *Cache

	// location is the serving timezone used to anchor the "today" boundary.
	location *time.Location

	// includeToday keeps events from earlier today by cutting at start of
	// day; when false the cutoff is the request instant itself.
	includeToday bool

	now func() time.Time
}

// NewService wires a query service over cache. loc anchors the date-window
// cutoff; a nil loc means server local time.
func NewService(cache *Cache, loc *time.Location, includeToday bool) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		cache:        cache,
		location:     loc,
		includeToday: includeToday,
		now:          time.Now,
	}
}

// Query resolves the current event set and runs the pipeline over it. The
// reference instant is captured once here so filter stages cannot disagree
// about what "today" means within one request.
func (s *Service) Query(ctx context.Context, keyword string, limit int) (*Result, error) {
	events, err := s.cache.Events(ctx)
	if err != nil {
		return nil, err
	}

	formatted := Run(events, QueryParams{
		Keyword: keyword,
		Limit:   limit,
		AsOf:    s.asOf(),
	})

	return &Result{
		Count:   len(formatted),
		Keyword: keyword,
		Events:  formatted,
	}, nil
}

// Status exposes cache state for the health endpoint.
func (s *Service) Status() Status {
	return s.cache.Status()
}

func (s *Service) asOf() time.Time {
	now := s.now().In(s.location)
	if !s.includeToday {
		return now
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
}
