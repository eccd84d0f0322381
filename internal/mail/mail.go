package mail

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"

	"guincheuse/internal/config"
)

// ErrNotConfigured means the transport settings are incomplete.
var ErrNotConfigured = errors.New("mail transport is not configured")

// Message is a single outbound e-mail with an HTML body and a plain-text
// alternative.
type Message struct {
	From    string
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers messages. Implementations do not retry.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New builds the transport selected by cfg.Provider. Missing settings give
// ErrNotConfigured (wrapped with the names of what is missing).
func New(cfg config.MailConfig) (Mailer, error) {
	switch cfg.Provider {
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("%w: sendgrid_api_key", ErrNotConfigured)
		}
		return NewSendGridMailer(cfg.SendGridAPIKey), nil
	default:
		s := cfg.SMTP
		var missing []string
		for _, f := range []struct{ name, v string }{
			{"host", s.Host}, {"port", s.Port}, {"user", s.User}, {"password", s.Password},
		} {
			if f.v == "" {
				missing = append(missing, f.name)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: smtp %v", ErrNotConfigured, missing)
		}
		m, err := NewSMTPMailer(s.Host, s.Port, s.User, s.Password)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// BareAddress returns the address part of "Name <addr>". Input that does
// not parse is returned trimmed.
func BareAddress(s string) string {
	if a, err := netmail.ParseAddress(s); err == nil {
		return a.Address
	}
	return strings.TrimSpace(s)
}
