package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"time"

	appLog "guincheuse/internal/log"
)

// implicitTLSPort is the SMTPS port where TLS starts before any SMTP
// exchange. Other ports upgrade with STARTTLS when the server offers it.
const implicitTLSPort = 465

// SMTPMailer sends through an authenticated SMTP relay.
type SMTPMailer struct {
	host     string
	port     int
	user     string
	password string
	timeout  time.Duration
	now      func() time.Time

	// tlsConfig is cloned for every connection; tests swap in a config
	// that trusts their self-signed server.
	tlsConfig *tls.Config
}

func NewSMTPMailer(host, port, user, password string) (*SMTPMailer, error) {
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return nil, fmt.Errorf("%w: invalid smtp port %q", ErrNotConfigured, port)
	}
	return &SMTPMailer{
		host:      host,
		port:      p,
		user:      user,
		password:  password,
		timeout:   30 * time.Second,
		now:       time.Now,
		tlsConfig: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12},
	}, nil
}

// ImplicitTLS reports whether the connection is TLS from the first byte.
func (m *SMTPMailer) ImplicitTLS() bool {
	return m.port == implicitTLSPort
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	from, err := netmail.ParseAddress(msg.From)
	if err != nil {
		return fmt.Errorf("smtp: invalid from address: %w", err)
	}
	rcpts := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		a, err := netmail.ParseAddress(to)
		if err != nil {
			return fmt.Errorf("smtp: invalid recipient %q: %w", to, err)
		}
		rcpts = append(rcpts, a.Address)
	}
	raw, err := buildMIME(msg, m.now())
	if err != nil {
		return fmt.Errorf("smtp: build message: %w", err)
	}

	conn, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("smtp: dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(m.timeout))
	}

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp: handshake: %w", err)
	}
	defer c.Close()

	if !m.ImplicitTLS() {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(m.tlsConfig.Clone()); err != nil {
				return fmt.Errorf("smtp: starttls: %w", err)
			}
		}
	}
	if ok, _ := c.Extension("AUTH"); ok {
		if err := c.Auth(smtp.PlainAuth("", m.user, m.password, m.host)); err != nil {
			return fmt.Errorf("smtp: auth: %w", err)
		}
	}

	if err := c.Mail(from.Address); err != nil {
		return fmt.Errorf("smtp: MAIL FROM: %w", err)
	}
	for _, to := range rcpts {
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("smtp: RCPT TO %s: %w", to, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp: DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("smtp: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: end of data: %w", err)
	}

	appLog.Info("smtp message sent", "host", m.host, "port", m.port, "recipients", len(msg.To))
	return c.Quit()
}

func (m *SMTPMailer) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	d := &net.Dialer{Timeout: m.timeout}
	if m.ImplicitTLS() {
		td := &tls.Dialer{NetDialer: d, Config: m.tlsConfig.Clone()}
		return td.DialContext(ctx, "tcp", addr)
	}
	return d.DialContext(ctx, "tcp", addr)
}
