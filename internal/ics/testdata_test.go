package ics

import (
	"strings"
	"time"
)

// crlf converts a readable fixture into wire format.
func crlf(s string) string {
	return strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n")
}

// fixtureNow sits inside the 10 March showing of the weekly jam.
var fixtureNow = time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)

var programmeFeed = crlf(`
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//guincheuse//tests//FR
BEGIN:VEVENT
UID:weekly@test
DTSTART:20260303T190000Z
DTEND:20260303T210000Z
RRULE:FREQ=WEEKLY;COUNT=5
EXDATE:20260324T190000Z
EXDATE;VALUE=DATE:20260331
SUMMARY:Jam session
DESCRIPTION:Type: Jazz\nImage: /x.webp\nDesc: great night
END:VEVENT
BEGIN:VEVENT
UID:weekly@test
RECURRENCE-ID:20260317T190000Z
DTSTART:20260317T200000Z
DTEND:20260317T230000Z
SUMMARY:Special
END:VEVENT
BEGIN:VEVENT
UID:single@test
DTSTART:20260312T190000Z
DTEND:20260312T213000Z
SUMMARY:Quartet
END:VEVENT
BEGIN:VEVENT
UID:noend@test
DTSTART:20260313T180000Z
SUMMARY:Solo
END:VEVENT
BEGIN:VEVENT
UID:past@test
DTSTART:20260301T190000Z
DTEND:20260301T210000Z
SUMMARY:Already over
END:VEVENT
BEGIN:VEVENT
UID:cancelled@test
STATUS:Cancelled
DTSTART:20260314T190000Z
DTEND:20260314T210000Z
SUMMARY:Called off
END:VEVENT
BEGIN:VEVENT
UID:bad@test
DTSTART:not-a-date
SUMMARY:Broken
END:VEVENT
END:VCALENDAR
`)
