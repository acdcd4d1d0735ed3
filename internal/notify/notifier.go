package notify

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"order_notifier/internal/logbus"
	"order_notifier/internal/model"
)

var (
	ErrTransportFailure = errors.New("mail transport failure")
	ErrNoRecipient      = errors.New("no recipient address")
	ErrDuplicate        = errors.New("notification already sent for event")
	ErrDisabled         = errors.New("notifications disabled")
)

// Envelope is one outbound submission: sender identity plus the composed
// message.
type Envelope struct {
	FromName    string
	FromAddress string
	Bcc         string
	Message     model.NotificationMessage
}

func (e Envelope) From() string {
	addr := strings.TrimSpace(e.FromAddress)
	name := strings.TrimSpace(e.FromName)
	if name == "" {
		return addr
	}
	return (&mail.Address{Name: name, Address: addr}).String()
}

// Mailer submits one message to an external transport.
type Mailer interface {
	Name() string
	Send(ctx context.Context, env Envelope) error
}

// LogMailer only records the submission. Used for local runs without mail
// credentials.
type LogMailer struct {
	Bus *logbus.Bus
}

func (LogMailer) Name() string { return "log" }

func (m LogMailer) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Bus.Log("info", "mail (log transport)", map[string]any{
		"from":    env.From(),
		"to":      env.Message.Recipient,
		"bcc":     env.Bcc,
		"subject": env.Message.Subject,
		"bytes":   len(env.Message.BodyHTML),
	})
	return nil
}
