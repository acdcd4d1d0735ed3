package notify

import (
	"context"
	"errors"
	"strings"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
}

// SMTPMailer delivers through an SMTP relay with gomail.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 465
		cfg.SSL = true
	}
	return &SMTPMailer{cfg: cfg}, nil
}

func (*SMTPMailer) Name() string { return "smtp" }

func (m *SMTPMailer) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := buildMessage(env)

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, strings.TrimSpace(m.cfg.Username), m.cfg.Password)
	d.SSL = m.cfg.SSL

	// gomail has no context support; the dial is abandoned, not cancelled,
	// when ctx ends first.
	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(msg) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMessage(env Envelope) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(strings.TrimSpace(env.FromAddress), strings.TrimSpace(env.FromName)))
	msg.SetHeader("To", env.Message.Recipient)
	if bcc := strings.TrimSpace(env.Bcc); bcc != "" {
		msg.SetHeader("Bcc", bcc)
	}
	msg.SetHeader("Subject", env.Message.Subject)
	if env.Message.BodyText != "" {
		msg.SetBody("text/plain", env.Message.BodyText)
		msg.AddAlternative("text/html", env.Message.BodyHTML)
	} else {
		msg.SetBody("text/html", env.Message.BodyHTML)
	}
	return msg
}
