package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	layoutDate        = "20060102"
	layoutDateTime    = "20060102T150405"
	layoutDateTimeUTC = "20060102T150405Z"
)

// ErrBadDateValue is returned when a DTSTART/DTEND value cannot be
// interpreted. Callers treat it as "no date available" and drop the field.
var ErrBadDateValue = errors.New("unparsable date value")

// ZoneResolver maps a TZID parameter value to the location used to
// interpret naive (non-UTC) calendar fields.
type ZoneResolver interface {
	Resolve(tzid string) *time.Location
}

// FixedZoneResolver is the built-in resolver. It recognizes Europe/Rome as
// a fixed CET (UTC+1) offset and maps every other zone name to the server's
// local location.
//
// Known limitation: the Europe/Rome mapping is a fixed-offset approximation
// with no DST transition awareness. Feeds observed in the wild carry either
// UTC values or Rome-zoned values, and a one-hour summer skew on display
// strings was accepted over pulling in full tzdata resolution.
type FixedZoneResolver struct{}

var romeZone = time.FixedZone("Europe/Rome", 1*60*60)

func (FixedZoneResolver) Resolve(tzid string) *time.Location {
	if tzid == "Europe/Rome" {
		return romeZone
	}
	return time.Local
}

// DateValue is the result of parsing a single DTSTART/DTEND property line.
type DateValue struct {
	Time     time.Time
	DateOnly bool // value was an 8-digit YYYYMMDD token
}

// ParseDateValue interprets one raw ICS property line of the form
// NAME[;PARAMS]:VALUE into an absolute instant.
//
//   - A trailing Z marks the value as UTC and is taken at face value.
//   - A TZID parameter is resolved through zones; without one the value is
//     read in the server's local frame.
//   - An 8-digit value is midnight of that calendar day, flagged DateOnly.
func ParseDateValue(line string, zones ZoneResolver) (DateValue, error) {
	if zones == nil {
		zones = FixedZoneResolver{}
	}

	head, value, found := strings.Cut(line, ":")
	if !found {
		return DateValue{}, fmt.Errorf("%w: no value separator in %q", ErrBadDateValue, line)
	}
	value = strings.TrimRight(value, "\r")

	if len(value) < len(layoutDate) {
		return DateValue{}, fmt.Errorf("%w: value %q too short", ErrBadDateValue, value)
	}

	if len(value) == len(layoutDate) {
		t, err := time.ParseInLocation(layoutDate, value, zones.Resolve(tzidParam(head)))
		if err != nil {
			return DateValue{}, fmt.Errorf("%w: %v", ErrBadDateValue, err)
		}
		return DateValue{Time: t, DateOnly: true}, nil
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse(layoutDateTimeUTC, value)
		if err != nil {
			return DateValue{}, fmt.Errorf("%w: %v", ErrBadDateValue, err)
		}
		return DateValue{Time: t}, nil
	}

	t, err := time.ParseInLocation(layoutDateTime, value, zones.Resolve(tzidParam(head)))
	if err != nil {
		return DateValue{}, fmt.Errorf("%w: %v", ErrBadDateValue, err)
	}
	return DateValue{Time: t}, nil
}

// tzidParam extracts the TZID parameter from the pre-colon part of a
// property line, e.g. "DTSTART;TZID=Europe/Rome" -> "Europe/Rome".
func tzidParam(head string) string {
	for _, p := range strings.Split(head, ";")[1:] {
		if v, ok := strings.CutPrefix(p, "TZID="); ok {
			return v
		}
	}
	return ""
}
