package mail

import (
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"

	"github.com/render-tgm/server/internal/config"
)

// Sender delivers a single HTML email.
type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender sends through a plain SMTP relay.
type SMTPSender struct {
	cfg config.SMTPConfig
	log zerolog.Logger
}

func NewSMTPSender(cfg config.SMTPConfig, log zerolog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, log: log}
}

func (s *SMTPSender) Send(to, subject, body string) error {
	sender := s.cfg.Sender
	if sender == "" {
		sender = "no-reply@localhost"
	}

	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	if err := smtp.SendMail(addr, auth, sender, []string{to}, msg); err != nil {
		s.log.Error().Err(err).Str("to", to).Msg("smtp send failed")
		return err
	}

	s.log.Debug().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}
