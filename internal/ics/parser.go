package ics

import (
	"log/slog"
	"strings"
	"time"
)

// Event is one calendar entry extracted from a feed. End and Location are
// optional; a zero End means the feed carried no DTEND for the entry.
type Event struct {
	Summary  string
	Start    time.Time
	End      time.Time
	Location string
}

// Starts before this year are assumed to be parser corruption rather than
// real calendar data, and the field is dropped.
const minPlausibleYear = 2021

type lineKind int

const (
	lineOther lineKind = iota
	lineBeginEvent
	lineEndEvent
	lineSummary
	lineDtStart
	lineDtEnd
	lineLocation
)

// classifyLine resolves a raw feed line to its kind once, so the builder
// below never does prefix matching itself. The payload is the property
// value for SUMMARY/LOCATION and the whole line for date properties, whose
// parameter block (before the colon) matters to the date parser.
func classifyLine(line string) (lineKind, string) {
	line = strings.TrimRight(line, "\r")
	switch {
	case line == "BEGIN:VEVENT":
		return lineBeginEvent, ""
	case line == "END:VEVENT":
		return lineEndEvent, ""
	case strings.HasPrefix(line, "SUMMARY:"):
		return lineSummary, line[len("SUMMARY:"):]
	case strings.HasPrefix(line, "LOCATION:"):
		return lineLocation, line[len("LOCATION:"):]
	case strings.HasPrefix(line, "DTSTART"):
		return lineDtStart, line
	case strings.HasPrefix(line, "DTEND"):
		return lineDtEnd, line
	}
	return lineOther, ""
}

// Parser extracts events from raw ICS text.
//
// It is deliberately not a general-purpose ICS parser: folded (multi-line)
// properties, recurrence rules and nested components are out of scope.
// VEVENT blocks cannot nest, so a single in-progress builder slot is enough.
type Parser struct {
	Zones ZoneResolver
}

// Parse scans the document line by line and returns the events that carry
// both a summary and a plausible start, in document order. Malformed blocks
// are dropped and never fail the scan.
func (p *Parser) Parse(body string) []Event {
	var (
		events  []Event
		current *Event
		dropped int
	)

	for _, raw := range strings.Split(body, "\n") {
		kind, payload := classifyLine(raw)

		if kind == lineBeginEvent {
			current = &Event{}
			continue
		}
		if current == nil {
			continue
		}

		switch kind {
		case lineSummary:
			current.Summary = payload
		case lineLocation:
			current.Location = payload
		case lineDtStart:
			if dv, err := ParseDateValue(payload, p.Zones); err == nil && dv.Time.Year() >= minPlausibleYear {
				current.Start = dv.Time
			}
		case lineDtEnd:
			if dv, err := ParseDateValue(payload, p.Zones); err == nil {
				current.End = dv.Time
			}
		case lineEndEvent:
			if current.Summary != "" && !current.Start.IsZero() {
				events = append(events, *current)
			} else {
				dropped++
			}
			current = nil
		}
	}

	if dropped > 0 {
		slog.Debug("dropped malformed events", "count", dropped)
	}
	return events
}
