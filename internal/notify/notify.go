// Package notify sends short alerts to the venue when a reservation request
// has been accepted.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"guincheuse/internal/config"
	appLog "guincheuse/internal/log"
	"guincheuse/internal/model"
)

// Notifier is told about every reservation whose confirmation was sent.
type Notifier interface {
	Notify(ctx context.Context, r model.Reservation) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, model.Reservation) error { return nil }

// SMS texts the venue phone through Twilio.
type SMS struct {
	from   string
	to     string
	create func(*openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// New returns an SMS notifier when cfg is complete, Nop otherwise.
func New(cfg config.SMSConfig) Notifier {
	if !cfg.Enabled() {
		return Nop{}
	}
	if !strings.HasPrefix(cfg.To, "+") {
		appLog.Warn("venue sms number is not in E.164 form", "to", cfg.To)
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   cfg.AccountSID,
		Password:   cfg.AuthToken,
		AccountSid: cfg.AccountSID,
	})
	return &SMS{from: cfg.From, to: cfg.To, create: client.Api.CreateMessage}
}

func (s *SMS) Notify(ctx context.Context, r model.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(s.to)
	params.SetFrom(s.from)
	params.SetBody(Summary(r))

	resp, err := s.create(params)
	if err != nil {
		return fmt.Errorf("twilio: %w", err)
	}
	if resp != nil && resp.Sid != nil {
		appLog.Info("venue sms sent", "sid", *resp.Sid)
	}
	return nil
}

// Summary is the one-line SMS text for r.
func Summary(r model.Reservation) string {
	return fmt.Sprintf("Nouvelle demande: %s, %s pers., %s %s. Tel %s, %s",
		r.FullName, r.PartySize, r.Date, r.Time, r.Phone, r.Email)
}
