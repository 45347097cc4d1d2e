// Package email delivers coach notices over SMTP, or to the log when no
// mail server is configured.
package email

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

type Sender interface {
	Send(to, subject, html string) error
}

// StdoutSender logs messages instead of sending them.
type StdoutSender struct {
	Log zerolog.Logger
}

func (s StdoutSender) Send(to, subject, html string) error {
	s.Log.Info().Str("to", to).Str("subject", subject).Str("body", html).Msg("email")
	return nil
}

type SMTPSender struct {
	Addr string
	From string

	// send is smtp.SendMail outside tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender defaults to a local MailHog on localhost:1025.
func NewSMTPSender(addr, from string) *SMTPSender {
	if addr == "" {
		addr = "localhost:1025"
	}
	if from == "" {
		from = "no-reply@formcoach.local"
	}
	return &SMTPSender{Addr: addr, From: from, send: smtp.SendMail}
}

func (s *SMTPSender) Send(to, subject, html string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("email: empty recipient")
	}
	if strings.ContainsAny(to+subject, "\r\n") {
		return errors.New("email: header values must not contain line breaks")
	}
	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		html,
	}, "\r\n")
	if err := s.send(s.Addr, nil, s.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("email: sending to %s: %w", to, err)
	}
	return nil
}
