package feed

import (
	"sort"
	"strings"
	"time"

	"github.com/aamritt0/calendar-backend/internal/ics"
)

// DefaultLimit caps the response size when the caller does not ask for a
// specific limit. A payload bound, not a correctness concern.
const DefaultLimit = 100

// displayLayout renders instants the way the calendar's audience reads
// them (day-first).
const displayLayout = "02/01/2006 15:04"

// QueryParams is one request's view of the pipeline. AsOf is captured once
// per request so filtering sees a single consistent "now".
type QueryParams struct {
	Keyword string
	Limit   int
	AsOf    time.Time
}

// FormattedEvent is the client-facing shape of an event.
type FormattedEvent struct {
	Summary      string  `json:"summary"`
	Start        string  `json:"start"`
	End          *string `json:"end"`
	StartDisplay string  `json:"startDisplay"`
	EndDisplay   string  `json:"endDisplay,omitempty"`
	Location     string  `json:"location,omitempty"`
	IsAllDay     bool    `json:"isAllDay"`
}

// Run filters events to those starting at or after AsOf, applies the
// optional keyword match against summaries, sorts chronologically (document
// order breaks ties), truncates to the limit and formats the survivors.
func Run(events []ics.Event, p QueryParams) []FormattedEvent {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	kept := make([]ics.Event, 0, len(events))
	keyword := strings.ToLower(p.Keyword)
	for _, ev := range events {
		if ev.Start.Before(p.AsOf) {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(ev.Summary), keyword) {
			continue
		}
		kept = append(kept, ev)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Start.Before(kept[j].Start)
	})

	if len(kept) > limit {
		kept = kept[:limit]
	}

	out := make([]FormattedEvent, 0, len(kept))
	for _, ev := range kept {
		f := FormattedEvent{
			Summary:      ev.Summary,
			Start:        ev.Start.Format(time.RFC3339),
			StartDisplay: ev.Start.Format(displayLayout),
			Location:     ev.Location,
			IsAllDay:     isAllDay(ev),
		}
		if !ev.End.IsZero() {
			end := ev.End.Format(time.RFC3339)
			f.End = &end
			f.EndDisplay = ev.End.Format(displayLayout)
		}
		out = append(out, f)
	}
	return out
}

// isAllDay classifies an event as all-day when it has no end at all, or
// when both endpoints sit exactly on a midnight boundary (the shape
// date-only DTSTART/DTEND values parse into).
func isAllDay(ev ics.Event) bool {
	if ev.End.IsZero() {
		return true
	}
	return atMidnight(ev.Start) && atMidnight(ev.End)
}

func atMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0
}
