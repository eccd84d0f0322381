package reservation

import (
	"context"
	"errors"

	"guincheuse/internal/config"
	"guincheuse/internal/httperr"
	appLog "guincheuse/internal/log"
	"guincheuse/internal/mail"
	"guincheuse/internal/notify"
	"guincheuse/internal/ratelimit"
)

// Service accepts reservation requests and sends the confirmation e-mail.
type Service struct {
	venue    config.VenueConfig
	from     string
	limiter  *ratelimit.Limiter
	mailer   mail.Mailer
	mailErr  error
	notifier notify.Notifier
}

// Options wires a Service. Mailer may be nil, in which case MailErr says
// why; every accepted submission then fails with a configuration error.
type Options struct {
	Venue    config.VenueConfig
	From     string
	Limiter  *ratelimit.Limiter
	Mailer   mail.Mailer
	MailErr  error
	Notifier notify.Notifier
}

func NewService(opts Options) *Service {
	s := &Service{
		venue:    opts.Venue,
		from:     opts.From,
		limiter:  opts.Limiter,
		mailer:   opts.Mailer,
		mailErr:  opts.MailErr,
		notifier: opts.Notifier,
	}
	if s.from == "" {
		s.from = config.DefaultFromAddress
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.mailer == nil && s.mailErr == nil {
		s.mailErr = mail.ErrNotConfigured
	}
	return s
}

// Submit validates req, applies the per-client cooldown and sends the
// confirmation to both the visitor and the venue mailbox. Errors are
// *httperr.Error values carrying the visitor-facing message.
//
// The cooldown slot is claimed before sending, released if the send fails
// and restamped once it succeeds, so the window runs from delivery.
func (s *Service) Submit(ctx context.Context, clientID string, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	key := ratelimit.Key(clientID, req.Email)
	if err := s.limiter.Check(ctx, key); err != nil {
		return s.limitError(err)
	}

	if s.mailer == nil {
		return httperr.Misconfigured(MsgMisconfigured, s.mailErr)
	}

	r := req.WithDefaults()
	html, text, err := Compose(s.venue, r)
	if err != nil {
		return httperr.Delivery(MsgDeliveryFailed, err)
	}

	claim, err := s.limiter.Claim(ctx, key)
	if err != nil {
		return s.limitError(err)
	}

	msg := mail.Message{
		From:    s.from,
		To:      []string{r.Email, mail.BareAddress(s.from)},
		ReplyTo: r.Email,
		Subject: Subject,
		HTML:    html,
		Text:    text,
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		appLog.Error("reservation email failed", err, "client", clientID)
		if rerr := s.limiter.Release(context.WithoutCancel(ctx), claim); rerr != nil {
			appLog.Error("release rate limit slot", rerr, "client", clientID)
		}
		return httperr.Delivery(MsgDeliveryFailed, err)
	}

	if err := s.limiter.Confirm(context.WithoutCancel(ctx), claim); err != nil {
		appLog.Error("confirm rate limit slot", err, "client", clientID)
	}

	appLog.Info("reservation request sent", "client", clientID, "date", r.Date, "time", r.Time, "party", r.PartySize)

	if err := s.notifier.Notify(ctx, r); err != nil {
		appLog.Warn("venue notification failed", "err", err)
	}
	return nil
}

func (s *Service) limitError(err error) error {
	if errors.Is(err, ratelimit.ErrLimited) {
		return httperr.RateLimited(MsgRateLimited)
	}
	// The store is unreachable; treat it like any other server-side fault.
	return httperr.Delivery(MsgDeliveryFailed, err)
}
