package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "guincheuse/internal/log"
)

// ParsedEvent is the normalized representation of a VEVENT as produced by
// the parser. Recurrence expansion operates on this type.
type ParsedEvent struct {
	UID    string
	Seq    int
	Status string

	Summary     string
	Description string

	// HasStart is false when DTSTART is missing or unparseable. Such events
	// are kept so the builder can log and drop them.
	HasStart bool
	Start    time.Time
	// HasEnd is true when DTEND (or DURATION) produced a usable end.
	HasEnd bool
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time

	// RecurrenceID is set on per-instance overrides of a recurring event.
	RecurrenceID *time.Time
}

// Cancelled reports whether STATUS is CANCELLED (case-insensitive).
func (ev ParsedEvent) Cancelled() bool {
	return strings.EqualFold(strings.TrimSpace(ev.Status), "CANCELLED")
}

// IsOverride reports whether this VEVENT replaces a single instance of a
// recurring event.
func (ev ParsedEvent) IsOverride() bool {
	return ev.RecurrenceID != nil
}

// ParseFeed parses an iCalendar payload into a list of ParsedEvent.
//
// Floating date-times (no TZID, no trailing Z) and all-day dates are read
// in the calendar's X-WR-TIMEZONE when it names a known zone, otherwise in
// fallback. A syntax error in the payload fails the whole call.
func ParseFeed(body []byte, fallback *time.Location) ([]ParsedEvent, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return nil, errors.New("empty ICS body")
	}
	const begin = "BEGIN:VCALENDAR"
	if len(trimmed) < len(begin) || !bytes.EqualFold(trimmed[:len(begin)], []byte(begin)) {
		return nil, errors.New("parse ICS: payload does not start with BEGIN:VCALENDAR")
	}
	if fallback == nil {
		fallback = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(trimmed))
	if err != nil {
		return nil, fmt.Errorf("parse ICS: %w", err)
	}

	loc := calendarLocation(cal, fallback)

	events := make([]ParsedEvent, 0, len(cal.Events()))
	for _, comp := range cal.Events() {
		events = append(events, parseVEvent(comp, loc))
	}

	appLog.Debug("ics parse completed", "event_count", len(events), "timezone", loc.String())
	return events, nil
}

func calendarLocation(cal *ical.Calendar, fallback *time.Location) *time.Location {
	for _, p := range cal.CalendarProperties {
		if !strings.EqualFold(p.IANAToken, "X-WR-TIMEZONE") {
			continue
		}
		if loc, err := time.LoadLocation(strings.TrimSpace(p.Value)); err == nil {
			return loc
		}
	}
	return fallback
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) ParsedEvent {
	var out ParsedEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = strings.TrimSpace(p.Value)
	}
	// SEQUENCE (optional, used to pick the newest copy of a duplicated UID)
	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Status = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = strings.TrimSpace(unescapeText(p.Value))
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if t, allDay, err := propertyTime(p, loc); err == nil {
			out.Start = t
			out.AllDay = allDay
			out.HasStart = true
		} else {
			appLog.Debug("ics DTSTART unparseable", "uid", out.UID, "value", p.Value, "err", err)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		if t, _, err := propertyTime(p, loc); err == nil {
			out.End = t
			out.HasEnd = true
		}
	} else if p := ve.GetProperty("DURATION"); p != nil && out.HasStart {
		if d, err := parseDuration(p.Value); err == nil {
			out.End = out.Start.Add(d)
			out.HasEnd = true
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = strings.TrimSpace(p.Value)
	}

	// EXDATE can appear multiple times and carry comma-separated lists.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		tz := paramValue(p.ICalParameters, "TZID")
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, _, err := parseICSTime(part, tz, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	// RECURRENCE-ID (overridden instance). Raw name avoids constant drift
	// between library versions.
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, _, err := propertyTime(p, loc); err == nil {
			out.RecurrenceID = &t
		}
	}

	return out
}

func propertyTime(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	t, allDay, err := parseICSTime(p.Value, paramValue(p.ICalParameters, "TZID"), loc)
	if err != nil {
		return t, allDay, err
	}
	if strings.EqualFold(paramValue(p.ICalParameters, "VALUE"), "DATE") {
		allDay = true
	}
	return t, allDay, nil
}

func paramValue(params map[string][]string, key string) string {
	if params == nil {
		return ""
	}
	if vs, ok := params[key]; ok && len(vs) > 0 {
		return strings.Trim(vs[0], `"`)
	}
	return ""
}

// parseICSTime parses an ICS DATE or DATE-TIME value.
//
//   - 20250101T090000Z  UTC
//   - 20250101T090000   in tzid when it is a known zone, else loc
//   - 20250101          all-day, midnight in loc
func parseICSTime(v, tzid string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}

	switch {
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	case strings.Contains(v, "T"):
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	}
}

// parseDuration handles the RFC 5545 DURATION subset calendars actually
// emit: P[n]W or P[n]D[T[n]H[n]M[n]S], optionally signed.
func parseDuration(v string) (time.Duration, error) {
	s := strings.TrimSpace(strings.ToUpper(v))
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	s = s[1:]

	var d time.Duration
	inTime := false
	num := 0
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int(r-'0')
			digits++
			continue
		case r == 'T':
			inTime = true
			continue
		}
		if digits == 0 {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		unit := time.Duration(num)
		switch {
		case r == 'W' && !inTime:
			d += unit * 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			d += unit * 24 * time.Hour
		case r == 'H' && inTime:
			d += unit * time.Hour
		case r == 'M' && inTime:
			d += unit * time.Minute
		case r == 'S' && inTime:
			d += unit * time.Second
		default:
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		num, digits = 0, 0
	}
	if digits != 0 {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	if neg {
		d = -d
	}
	return d, nil
}
