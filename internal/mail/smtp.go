package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/ferme-mv/pahou/internal/config"
)

const smtpDialTimeout = 10 * time.Second

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	settings config.EmailSettings
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	now      func() time.Time
}

// NewSMTPSender returns a sender for the relay described by settings.
func NewSMTPSender(settings config.EmailSettings) *SMTPSender {
	d := &net.Dialer{Timeout: smtpDialTimeout}
	return &SMTPSender{settings: settings, dial: d.DialContext, now: time.Now}
}

// Addr returns host:port of the relay.
func (s *SMTPSender) Addr() string {
	return net.JoinHostPort(s.settings.Host, strconv.Itoa(s.settings.Port))
}

// Send delivers msg, upgrading to TLS with STARTTLS when configured.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	msg, err := prepare(msg, s.settings.DefaultFromEmail)
	if err != nil {
		return err
	}

	conn, err := s.dial(ctx, "tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("mail: dial %s: %w", s.Addr(), err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.settings.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mail: smtp handshake: %w", err)
	}
	defer func() { _ = client.Close() }()

	if s.settings.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.settings.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("mail: starttls: %w", err)
		}
	}
	if s.settings.HostUser != "" {
		auth := smtp.PlainAuth("", s.settings.HostUser, s.settings.HostPassword, s.settings.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mail: auth: %w", err)
		}
	}

	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	for _, to := range msg.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("mail: RCPT TO %s: %w", to, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	if _, err := w.Write(format(msg, s.now())); err != nil {
		_ = w.Close()
		return fmt.Errorf("mail: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: finish body: %w", err)
	}
	return client.Quit()
}
