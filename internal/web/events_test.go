package web

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guincheuse/internal/model"
)

func paris(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return loc
}

func TestProgrammeSelection(t *testing.T) {
	live := []model.Occurrence{{ID: "a", Title: "A", Start: time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)}}

	got := programme(live, nil)
	require.Len(t, got, 2)
	assert.Equal(t, pinnedEvent.ID, got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	got = programme(nil, errors.New("down"))
	assert.Len(t, got, len(fallbackEvents)+1)

	got = programme(nil, nil)
	require.Len(t, got, 1)
	assert.Equal(t, pinnedEvent.ID, got[0].ID)
}

func TestMergePinnedSkipsDuplicates(t *testing.T) {
	byID := []model.Occurrence{{ID: pinnedEvent.ID, Title: "renamed", Start: pinnedEvent.Start}}
	assert.Len(t, mergePinned(byID, pinnedEvent), 1)

	byTitleAndStart := []model.Occurrence{{ID: "feed-id", Title: pinnedEvent.Title, Start: pinnedEvent.Start.In(time.FixedZone("x", 3600))}}
	assert.Len(t, mergePinned(byTitleAndStart, pinnedEvent), 1)

	sameTitleOtherDay := []model.Occurrence{{ID: "feed-id", Title: pinnedEvent.Title, Start: pinnedEvent.Start.Add(24 * time.Hour)}}
	assert.Len(t, mergePinned(sameTitleOtherDay, pinnedEvent), 2)
}

func TestMergePinnedSortsByStart(t *testing.T) {
	events := []model.Occurrence{
		{ID: "late", Start: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "early", Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	got := mergePinned(events, pinnedEvent)
	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	assert.Equal(t, []string{"early", pinnedEvent.ID, "late"}, ids)
}

func TestEventCardFormatting(t *testing.T) {
	c := newEventCard(pinnedEvent, paris(t))
	assert.Equal(t, "Déc", c.Month)
	assert.Equal(t, "23", c.Day)
	assert.Equal(t, "Mar", c.Weekday)
	assert.Equal(t, "22:00", c.Time)
	assert.Equal(t, "22:00 - 23:30", c.Range)
	assert.Equal(t, "guitare", c.Label)
	assert.Equal(t, "guitare-chanteur", c.ImageAlt)

	summer := model.Occurrence{Title: "Été", Start: time.Date(2026, 7, 4, 18, 5, 0, 0, time.UTC)}
	c = newEventCard(summer, paris(t))
	assert.Equal(t, "Juil", c.Month)
	assert.Equal(t, "04", c.Day)
	assert.Equal(t, "Sam", c.Weekday)
	assert.Equal(t, "20:05", c.Time)
	assert.Equal(t, "", c.Range)
	assert.Equal(t, "Live music", c.Label)
	assert.Equal(t, "Été", c.ImageAlt)
	assert.Equal(t, noDescription, c.Description)
}

func TestClampDescription(t *testing.T) {
	assert.Equal(t, noDescription, clampDescription("", 200))
	assert.Equal(t, "court", clampDescription("court", 200))

	exact := strings.Repeat("é", 200)
	assert.Equal(t, exact, clampDescription(exact, 200))

	long := strings.Repeat("é", 150) + "     " + strings.Repeat("x", 100)
	assert.Equal(t, strings.Repeat("é", 150)+"...", clampDescription(long, 155))
}

func TestBuildEventsPageNotice(t *testing.T) {
	page := buildEventsPage(nil, errors.New("x"), time.UTC)
	assert.Equal(t, msgFeedUnavailable, page.Notice)
	assert.Len(t, page.Cards, len(fallbackEvents)+1)

	page = buildEventsPage(nil, nil, time.UTC)
	assert.Empty(t, page.Notice)
	assert.Equal(t, msgNoEvents, page.Empty)
}
