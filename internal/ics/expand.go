package ics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "guincheuse/internal/log"
	"guincheuse/internal/model"
)

const (
	// DefaultDuration is used when an event has no usable end.
	DefaultDuration = 2 * time.Hour

	defaultMaxOccurrencesPerEvent = 5000

	// idTimeLayout is ISO-8601 in UTC with milliseconds, the format the
	// occurrence IDs have always used.
	idTimeLayout = "2006-01-02T15:04:05.000Z"
)

// BuildOptions controls how parsed events become occurrences.
type BuildOptions struct {
	// Horizon is the end of the expansion window. Zero means one calendar
	// year after now.
	Horizon time.Time

	// DisplayLocation is applied to the resulting Start/End. If nil, UTC.
	DisplayLocation *time.Location

	// DefaultTitle replaces an empty SUMMARY.
	DefaultTitle string
	// AltFormat builds the image alt text from the title when the
	// description has no ImgAlt line. It must contain one %s.
	AltFormat string

	// MaxOccurrencesPerEvent is a safety cap on a single RRULE expansion.
	MaxOccurrencesPerEvent int
}

func (o *BuildOptions) normalize(now time.Time) {
	if o.Horizon.IsZero() {
		o.Horizon = now.AddDate(1, 0, 0)
	}
	if o.DisplayLocation == nil {
		o.DisplayLocation = time.UTC
	}
	if o.DefaultTitle == "" {
		o.DefaultTitle = "Événement"
	}
	if o.AltFormat == "" {
		o.AltFormat = "Affiche pour %s"
	}
	if o.MaxOccurrencesPerEvent <= 0 {
		o.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
}

// Build turns parsed events into the occurrences visible at now:
//
//   - cancelled events are skipped;
//   - recurring events are expanded over [now - duration, horizon] so that
//     a showing already in progress is still listed, EXDATEs are removed by
//     exact instant, and RECURRENCE-ID overrides replace their instance;
//   - non-recurring events without a usable start are dropped;
//   - anything whose end is strictly before now is dropped.
//
// The result is sorted by start (ties by ID) and IDs are unique.
func Build(events []ParsedEvent, now time.Time, opts BuildOptions) []model.Occurrence {
	opts.normalize(now)

	masters := make([]ParsedEvent, 0, len(events))
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		masters = append(masters, ev)
	}

	type built struct {
		occ model.Occurrence
		seq int
	}
	byID := make(map[string]built)

	for _, ev := range masters {
		if ev.Cancelled() {
			appLog.Debug("ics skip cancelled event", "uid", ev.UID, "summary", ev.Summary)
			continue
		}

		var occs []model.Occurrence
		if ev.RawRRule != "" {
			var err error
			occs, err = expandRecurring(ev, overridesByUID[ev.UID], now, opts)
			if err != nil {
				appLog.Error("ics skip recurring event", err, "uid", ev.UID, "rrule", ev.RawRRule)
				continue
			}
		} else {
			occ, ok := buildSingle(ev, now, opts)
			if !ok {
				continue
			}
			occs = []model.Occurrence{occ}
		}

		for _, occ := range occs {
			if prev, dup := byID[occ.ID]; dup && prev.seq >= ev.Seq {
				continue
			}
			byID[occ.ID] = built{occ: occ, seq: ev.Seq}
		}
	}

	out := make([]model.Occurrence, 0, len(byID))
	for _, b := range byID {
		out = append(out, b.occ)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func buildSingle(ev ParsedEvent, now time.Time, opts BuildOptions) (model.Occurrence, bool) {
	if !ev.HasStart {
		appLog.Warn("ics skip event without usable DTSTART", "uid", ev.UID, "summary", ev.Summary)
		return model.Occurrence{}, false
	}

	end := deriveEnd(ev.Start, ev.End, ev.HasEnd)
	if end.Before(now) {
		return model.Occurrence{}, false
	}
	return makeOccurrence(ev, ev.Start, end, opts), true
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, now time.Time, opts BuildOptions) ([]model.Occurrence, error) {
	if !ev.HasStart {
		return nil, errors.New("recurring event without usable DTSTART")
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		return nil, fmt.Errorf("parse RRULE: %w", err)
	}
	r.DTStart(ev.Start)

	dur := nominalDuration(ev)
	loc := ev.Start.Location()
	times := r.Between(now.Add(-dur).In(loc), opts.Horizon.In(loc), true)

	if len(times) > opts.MaxOccurrencesPerEvent {
		appLog.Warn("ics truncated recurring event", "uid", ev.UID, "cap", opts.MaxOccurrencesPerEvent, "count", len(times))
		times = times[:opts.MaxOccurrencesPerEvent]
	}

	out := make([]model.Occurrence, 0, len(times))
	for _, occStart := range times {
		if isException(occStart, ev.ExDates) {
			continue
		}

		src := ev
		start := occStart
		end := occStart.Add(dur)

		if ov, ok := findOverride(overrides, occStart); ok {
			if ov.Cancelled() {
				continue
			}
			src = mergeOverride(ev, ov)
			if ov.HasStart {
				start = ov.Start
			}
			end = start.Add(dur)
			if ov.HasEnd && !ov.End.Before(start) {
				end = ov.End
			}
		}

		if end.Before(now) {
			continue
		}
		out = append(out, makeOccurrence(src, start, end, opts))
	}
	return out, nil
}

// nominalDuration is DTEND - DTSTART when both exist and the difference is
// positive, otherwise DefaultDuration.
func nominalDuration(ev ParsedEvent) time.Duration {
	if ev.HasStart && ev.HasEnd {
		if d := ev.End.Sub(ev.Start); d > 0 {
			return d
		}
	}
	return DefaultDuration
}

// deriveEnd keeps an explicit end unless it is missing or earlier than start.
func deriveEnd(start, end time.Time, hasEnd bool) time.Time {
	if hasEnd && !end.Before(start) {
		return end
	}
	return start.Add(DefaultDuration)
}

// isException matches EXDATEs by exact instant, not by calendar date.
func isException(t time.Time, exdates []time.Time) bool {
	for _, ex := range exdates {
		if ex.Equal(t) {
			return true
		}
	}
	return false
}

// findOverride finds the override whose RECURRENCE-ID is the same instant
// as the generated occurrence start.
func findOverride(overrides []ParsedEvent, occStart time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.RecurrenceID != nil && ov.RecurrenceID.Equal(occStart) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// mergeOverride prefers the override's text fields, falling back to the
// master for anything the override leaves empty.
func mergeOverride(master, ov ParsedEvent) ParsedEvent {
	out := master
	if ov.Summary != "" {
		out.Summary = ov.Summary
	}
	if ov.Description != "" {
		out.Description = ov.Description
	}
	return out
}

func makeOccurrence(ev ParsedEvent, start, end time.Time, opts BuildOptions) model.Occurrence {
	details := ParseDescription(ev.Description)

	title := ev.Summary
	if title == "" {
		title = opts.DefaultTitle
	}

	key := ev.UID
	if key == "" {
		key = ev.Summary
	}
	if key == "" {
		key = "event"
	}

	alt := details.ImageAlt
	if alt == "" {
		alt = fmt.Sprintf(opts.AltFormat, title)
	}

	return model.Occurrence{
		ID:       key + "-" + start.UTC().Format(idTimeLayout),
		Title:    title,
		Start:    start.In(opts.DisplayLocation),
		End:      end.In(opts.DisplayLocation),
		Category: details.Category,
		Image:    details.Image,
		ImageAlt: alt,
		Summary:  details.Summary,
	}
}
