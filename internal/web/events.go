package web

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"guincheuse/internal/model"
)

// EventSource produces the live programme.
type EventSource interface {
	Events(ctx context.Context, now time.Time) ([]model.Occurrence, error)
}

const (
	msgFeedUnavailable = "Impossible de charger le calendrier pour le moment. Programme indicatif affiché en attendant."
	msgNoEvents        = "Aucun concert n'est planifié pour le moment. Repassez très bientôt."

	descLimit       = 200
	noDescription   = "Plus d'informations à venir."
	defaultCategory = "Live music"
)

// pinnedEvent is always part of the programme unless the feed already
// carries it.
var pinnedEvent = model.Occurrence{
	ID:       "fallback-nawal-michel-2025-12-19",
	Title:    "Pablo Lopez-Nussa",
	Start:    time.Date(2025, 12, 23, 21, 0, 0, 0, time.UTC),
	End:      time.Date(2025, 12, 23, 22, 30, 0, 0, time.UTC),
	Category: "guitare",
	Summary:  "Musique Cubaine: La musique de Pablo est intimiste à la fois douce et mélodieuse, rythmique et joyeuse, avec un répertoire concocté pour chaque occasion…",
	Image:    "/static/img/event_example.svg",
	ImageAlt: "guitare-chanteur",
}

// fallbackEvents is shown when the feed cannot be loaded.
var fallbackEvents = []model.Occurrence{
	{
		ID:       "fallback-sophie-2025-10-21",
		Title:    "Sophie & The Piano",
		Start:    time.Date(2025, 10, 21, 19, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 10, 21, 21, 0, 0, 0, time.UTC),
		Category: "Chanson Française",
		Summary:  "Une voix feutrée et un piano délicat pour revisiter les grands classiques : Piaf, Gainsbourg, mais aussi quelques surprises.",
		Image:    "https://lh3.googleusercontent.com/aida-public/AB6AXuDG417HoH-jD_OikFRbRCD4NYBTfswsS27jZ8BpK3XwCNi87P3kUkfhZmp4-4iwinDzV1j4L963tW0IF5vCMfczFZi-xnGzNJYz3KwfXk19LBeoylcMM5LPvUKDr3jXDEKwmMA2E2DHeG0k55OeRliGPyI6UiObgTg2FbvfwKy8dI6I1h5ogvcrjMjKGcMAk6e6dWypd5WcEPwoDvBVl9LpivKQWk3RgyTSclPEifANePOoa_lFelPH0DGMhqoWZK9XsO94KUsuPRG1",
		ImageAlt: "Chanteuse au micro sur scène intimiste",
	},
	{
		ID:       "fallback-midnight-blues-2025-10-28",
		Title:    "The Midnight Blues",
		Start:    time.Date(2025, 10, 28, 20, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 10, 28, 22, 0, 0, 0, time.UTC),
		Category: "Blues Rock",
		Summary:  "Une énergie brute venue de Chicago : riffs électriques, voix grave et solos qui font vibrer le comptoir jusque tard.",
		Image:    "https://lh3.googleusercontent.com/aida-public/AB6AXuCNAn36tw14uNWmAYB20fmc8g1DG5eeV9eHMajDK-hJ2MNisER1b2S-PsZ6TkHqLBeONHI5HaZO3iTn3imLMx3UeoTRyxb4i-uC6W__R9PCZUuZDzFlKU1clPOoyAcssUi5jgThUIZ6DBS-l0q_lIFLhZ3JnFZxVEwLjq7rP_xT0vhEfKuhWuA7BAtJL05OTYebflP2pIRwTnNxg3jnGbmkKgAHUMqQXBJZionvDGH9II04X0vAd1Goe_Uu7nhQC6oTIYPUsDF8LCii",
		ImageAlt: "Ambiance de club blues avec lumière tamisée",
	},
	{
		ID:       "fallback-le-jazz-hot-2025-11-04",
		Title:    "Le Jazz Hot",
		Start:    time.Date(2025, 11, 4, 19, 30, 0, 0, time.UTC),
		End:      time.Date(2025, 11, 4, 21, 30, 0, 0, time.UTC),
		Category: "Swing",
		Summary:  "Prêts à danser ? Un set swing incandescent, cuivres brillants et cadence soutenue pour une soirée tout feu tout flamme.",
		Image:    "https://lh3.googleusercontent.com/aida-public/AB6AXuDE4fM9tz7v9wbsjDHhIQWftHRLG8X05NJNC8h-rGXhgmWhwuHmMijiaQA1Vk3Sh2QA37tJEP6WlMXE1o_uI4HyubxdO-lA6KB91PDaALdqRuVhuVrVVUaML7om_sxKlCrRoFIQ_eZTz7VOEF2CgHtJiiUE6JmAit-M5LLRZYpnlIVYgd_Pzx8haStwGVRZOorVen6-BCV8FIduFZjiXVJCuADB5U6NnFwRdjNUa9KaJzDMbl1BXWbaGjD2eIe64mhpwAcL01eit3rX",
		ImageAlt: "Silhouette d'un saxophoniste sur scène",
	},
}

// eventCard is one occurrence formatted for the events page.
type eventCard struct {
	ID          string
	Title       string
	Label       string
	Month       string
	Day         string
	Weekday     string
	Time        string
	Range       string
	Description string
	Image       string
	ImageAlt    string
}

type eventsPage struct {
	Notice string
	Empty  string
	Cards  []eventCard
}

// programme picks what the events page shows: the live list when it has
// entries, the fallback list when loading failed, and nothing otherwise.
// The pinned event is merged into whichever list was picked.
func programme(live []model.Occurrence, loadErr error) []model.Occurrence {
	var base []model.Occurrence
	switch {
	case len(live) > 0:
		base = live
	case loadErr != nil:
		base = fallbackEvents
	}
	return mergePinned(base, pinnedEvent)
}

func mergePinned(events []model.Occurrence, pinned model.Occurrence) []model.Occurrence {
	out := make([]model.Occurrence, 0, len(events)+1)
	present := false
	for _, ev := range events {
		if ev.ID == pinned.ID || (ev.Title == pinned.Title && ev.Start.Equal(pinned.Start)) {
			present = true
		}
	}
	if !present {
		out = append(out, pinned)
	}
	out = append(out, events...)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func buildEventsPage(events []model.Occurrence, loadErr error, loc *time.Location) eventsPage {
	page := eventsPage{Empty: msgNoEvents}
	if loadErr != nil {
		page.Notice = msgFeedUnavailable
	}
	for _, ev := range programme(events, loadErr) {
		page.Cards = append(page.Cards, newEventCard(ev, loc))
	}
	return page
}

func newEventCard(ev model.Occurrence, loc *time.Location) eventCard {
	start := ev.Start.In(loc)
	end := ev.End.In(loc)

	label := strings.TrimSpace(ev.Category)
	if label == "" {
		label = defaultCategory
	}
	alt := ev.ImageAlt
	if alt == "" {
		alt = ev.Title
	}

	c := eventCard{
		ID:          ev.ID,
		Title:       ev.Title,
		Label:       label,
		Month:       frenchMonths[start.Month()-1],
		Day:         fmt.Sprintf("%02d", start.Day()),
		Weekday:     frenchWeekdays[start.Weekday()],
		Time:        start.Format("15:04"),
		Description: clampDescription(ev.Summary, descLimit),
		Image:       ev.Image,
		ImageAlt:    alt,
	}
	if !ev.End.IsZero() {
		c.Range = c.Time + " - " + end.Format("15:04")
	}
	return c
}

// Abbreviations as written in French, without the trailing period.
var (
	frenchMonths   = [12]string{"Janv", "Févr", "Mars", "Avr", "Mai", "Juin", "Juil", "Août", "Sept", "Oct", "Nov", "Déc"}
	frenchWeekdays = [7]string{"Dim", "Lun", "Mar", "Mer", "Jeu", "Ven", "Sam"}
)

// clampDescription cuts text to limit runes and marks the cut with "...".
func clampDescription(text string, limit int) string {
	if text == "" {
		return noDescription
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:limit]), " \t\r\n") + "..."
}
