package reservation

import (
	"bytes"
	"embed"
	"html/template"
	"strings"

	"guincheuse/internal/config"
	"guincheuse/internal/model"
)

const (
	// Subject is the confirmation e-mail subject line.
	Subject = "La Guincheuse - Confirmation de demande de réservation"

	noNotes = "Aucune précision pour le moment."
)

//go:embed templates/confirmation.html
var templateFS embed.FS

var confirmationTmpl = template.Must(template.ParseFS(templateFS, "templates/confirmation.html"))

type recapRow struct {
	Label string
	Value string
}

type confirmationData struct {
	Venue     config.VenueConfig
	R         model.Reservation
	Rows      []recapRow
	NotesHTML template.HTML
	PhoneURL  template.URL
}

// Compose renders the confirmation e-mail for r as HTML and plain text.
// Every value from r is escaped in the HTML; newlines in the notes become
// <br /> there and stay as-is in the text version.
func Compose(venue config.VenueConfig, r model.Reservation) (html, text string, err error) {
	notes := strings.TrimSpace(r.Notes)
	if notes == "" {
		notes = noNotes
	}

	data := confirmationData{
		Venue: venue,
		R:     r,
		Rows: []recapRow{
			{"Date", r.Date},
			{"Heure", r.Time},
			{"Personnes", r.PartySize},
			{"Téléphone", r.Phone},
			{"E-mail", r.Email},
		},
		NotesHTML: notesHTML(notes),
		PhoneURL:  template.URL("tel:" + venue.Phone),
	}

	var buf bytes.Buffer
	if err := confirmationTmpl.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return buf.String(), composeText(venue, r, notes), nil
}

func notesHTML(notes string) template.HTML {
	lines := strings.Split(notes, "\n")
	for i, l := range lines {
		lines[i] = template.HTMLEscapeString(l)
	}
	return template.HTML(strings.Join(lines, "<br />"))
}

func composeText(venue config.VenueConfig, r model.Reservation, notes string) string {
	return strings.Join([]string{
		"Bonjour " + r.FullName + ",",
		"",
		"Merci pour votre demande de réservation à " + venue.Name + ". Nous l'avons bien reçue et revenons rapidement vers vous pour confirmer la disponibilité.",
		"",
		"Récapitulatif :",
		"- Date : " + r.Date,
		"- Heure : " + r.Time,
		"- Personnes : " + r.PartySize,
		"- Téléphone : " + r.Phone,
		"- E-mail : " + r.Email,
		"- Notes : " + notes,
		"",
		"English recap:",
		"Hello " + r.FullName + ", thank you for your booking request. We've received it and will confirm availability shortly.",
		"",
		venue.Name,
		venue.Address,
	}, "\n")
}
