package mail

import (
	"context"
	"fmt"
	netmail "net/mail"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	appLog "guincheuse/internal/log"
)

// SendGridMailer sends through the SendGrid v3 API.
type SendGridMailer struct {
	send func(*sgmail.SGMailV3) (*rest.Response, error)
}

func NewSendGridMailer(apiKey string) *SendGridMailer {
	client := sendgrid.NewSendClient(apiKey)
	return &SendGridMailer{send: client.Send}
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resp, err := m.send(buildSendGridMail(msg))
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}

	appLog.Info("sendgrid message sent", "status", resp.StatusCode, "recipients", len(msg.To))
	return nil
}

func buildSendGridMail(msg Message) *sgmail.SGMailV3 {
	m := sgmail.NewV3Mail()
	m.SetFrom(sendGridEmail(msg.From))
	m.Subject = msg.Subject

	p := sgmail.NewPersonalization()
	for _, to := range msg.To {
		p.AddTos(sendGridEmail(to))
	}
	m.AddPersonalizations(p)

	// SendGrid requires text/plain before text/html.
	m.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	if msg.ReplyTo != "" {
		m.SetReplyTo(sendGridEmail(msg.ReplyTo))
	}
	return m
}

// sendGridEmail splits "Name <addr>" so the API gets the display name and
// the bare address separately.
func sendGridEmail(s string) *sgmail.Email {
	if a, err := netmail.ParseAddress(s); err == nil {
		return sgmail.NewEmail(a.Name, a.Address)
	}
	return sgmail.NewEmail("", s)
}
