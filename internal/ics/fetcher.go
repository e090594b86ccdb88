package ics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// minPayloadSize rejects bodies too short to be a calendar; a provider
// error page or an empty redirect target never reaches this length with
// valid markers anyway, but the cheap check fails fast.
const minPayloadSize = 50

// FetchStrategy is one attempt profile in the cascade: how long to wait and
// which headers to present. Strategies carry no mutable state.
type FetchStrategy struct {
	Label   string
	Timeout time.Duration
	Headers map[string]string
}

// DefaultStrategies escalates patience and identity across attempts. Campus
// calendar systems and Google Calendar exports vary widely in latency, and
// some block default Go user agents, so later attempts look like a browser.
func DefaultStrategies() []FetchStrategy {
	browser := map[string]string{
		"User-Agent": "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		"Accept":     "text/calendar,text/plain;q=0.9,*/*;q=0.8",
	}
	return []FetchStrategy{
		{Label: "quick", Timeout: 3 * time.Second},
		{Label: "patient", Timeout: 8 * time.Second, Headers: browser},
		{Label: "last-resort", Timeout: 20 * time.Second, Headers: browser},
	}
}

// ExhaustedError reports that every strategy in the cascade failed. It
// wraps the last attempt's error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d fetch strategies failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Fetcher retrieves an ICS document, trying each strategy in order until
// one produces a plausible calendar payload.
type Fetcher struct {
	client     *http.Client
	strategies []FetchStrategy
	attempts   metric.Int64Counter
}

// NewFetcher builds a Fetcher over the given cascade. The shared client has
// no global timeout; each attempt is bounded by its own strategy.
func NewFetcher(strategies []FetchStrategy) *Fetcher {
	attempts, err := otel.Meter("calendar-backend/ics").Int64Counter(
		"feed.fetch.attempts",
		metric.WithDescription("Upstream fetch attempts by strategy and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		slog.Error("Failed to create fetch attempt counter", "error", err)
	}
	return &Fetcher{
		client:     &http.Client{},
		strategies: strategies,
		attempts:   attempts,
	}
}

// Fetch runs the cascade against url and returns the raw ICS text of the
// first successful attempt. When every strategy fails it returns an
// *ExhaustedError carrying the last underlying failure.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	var lastErr error

	for _, s := range f.strategies {
		body, err := f.attempt(ctx, url, s)
		if err == nil {
			f.count(ctx, s.Label, "success")
			return body, nil
		}
		f.count(ctx, s.Label, "failure")
		slog.WarnContext(ctx, "Fetch attempt failed", "strategy", s.Label, "timeout", s.Timeout, "error", err)
		lastErr = err
	}

	return "", &ExhaustedError{Attempts: len(f.strategies), Last: lastErr}
}

// attempt issues one time-bounded retrieval. Cancelling the per-attempt
// context aborts the transfer before the next strategy starts.
func (f *Fetcher) attempt(ctx context.Context, url string, s FetchStrategy) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	body := string(raw)
	if err := validatePayload(body); err != nil {
		return "", err
	}
	return body, nil
}

// validatePayload guards against receiving an HTML error or login page in
// place of calendar data.
func validatePayload(body string) error {
	if len(body) < minPayloadSize {
		return fmt.Errorf("payload implausibly short (%d bytes)", len(body))
	}
	if !strings.Contains(body, "BEGIN:VCALENDAR") && !strings.Contains(body, "BEGIN:VEVENT") {
		return fmt.Errorf("payload carries no calendar markers")
	}
	return nil
}

func (f *Fetcher) count(ctx context.Context, strategy, outcome string) {
	if f.attempts == nil {
		return
	}
	f.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	))
}
