package reservation

import (
	"net/http"
	"regexp"
	"strings"

	"guincheuse/internal/httperr"
	"guincheuse/internal/model"
)

// Visitor-facing messages.
const (
	MsgBadRequest     = "Requête invalide."
	MsgRequired       = "Merci de remplir tous les champs obligatoires."
	MsgInvalidEmail   = "L'adresse e-mail n'est pas valide."
	MsgRateLimited    = "Merci d'attendre un peu avant de renvoyer une nouvelle demande. Si besoin, contactez-nous par téléphone."
	MsgMisconfigured  = "Configuration SMTP manquante côté serveur. Merci de compléter les variables d'environnement."
	MsgDeliveryFailed = "Impossible d'envoyer l'email pour le moment. Merci de réessayer ou de nous contacter par téléphone."
	MsgAccepted       = "Votre demande est bien envoyée. Un email de confirmation vient d'être adressé à votre boîte mail."
)

const (
	defaultName      = "Client"
	defaultPhone     = "Non communiqué"
	defaultPartySize = "2"
	unknownClient    = "unknown"
)

var reEmail = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Request is the JSON body posted by the reservation form. Every field is
// optional on the wire; Validate decides what is required.
type Request struct {
	FullName  string `json:"fullName"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	PartySize string `json:"partySize"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Notes     string `json:"notes"`
}

// Validate returns a 400 *httperr.Error naming the first problem found.
func (r Request) Validate() error {
	if r.Email == "" || r.FullName == "" || r.Date == "" || r.Time == "" || r.PartySize == "" {
		return httperr.Validation(MsgRequired)
	}
	if !reEmail.MatchString(r.Email) {
		return httperr.Validation(MsgInvalidEmail)
	}
	return nil
}

// WithDefaults trims the free-text fields and fills the optional ones.
func (r Request) WithDefaults() model.Reservation {
	out := model.Reservation{
		FullName:  strings.TrimSpace(r.FullName),
		Phone:     strings.TrimSpace(r.Phone),
		Email:     strings.TrimSpace(r.Email),
		PartySize: r.PartySize,
		Date:      r.Date,
		Time:      r.Time,
		Notes:     r.Notes,
	}
	if out.FullName == "" {
		out.FullName = defaultName
	}
	if out.Phone == "" {
		out.Phone = defaultPhone
	}
	if out.PartySize == "" {
		out.PartySize = defaultPartySize
	}
	return out
}

// ClientIdentity picks the caller's address from proxy headers: the first
// X-Forwarded-For entry, then X-Real-IP, then "unknown". Both headers are
// client-controlled.
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	return unknownClient
}
