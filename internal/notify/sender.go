package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"order_notifier/internal/logbus"
	"order_notifier/internal/model"
)

// SettingsSource supplies operator overrides. ok is false when nothing has
// been stored yet.
type SettingsSource interface {
	GetNotifySettings(ctx context.Context) (model.NotifySettings, bool, error)
}

type SenderOptions struct {
	Mailer      Mailer
	FromName    string
	FromAddress string
	Timeout     time.Duration
	QPS         float64
	Burst       int
	DedupTTL    time.Duration
	DedupMax    int
	Settings    SettingsSource
	Bus         *logbus.Bus
}

// Sender is the best-effort delivery step: one bounded attempt per event,
// no retries.
type Sender struct {
	mailer      Mailer
	fromName    string
	fromAddress string
	timeout     time.Duration
	limiter     *rate.Limiter
	ledger      *ledger
	settings    SettingsSource
	bus         *logbus.Bus
	now         func() time.Time
}

func NewSender(opts SenderOptions) (*Sender, error) {
	if opts.Mailer == nil {
		return nil, errors.New("mailer is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.QPS > 0 {
		limit = rate.Limit(opts.QPS)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Sender{
		mailer:      opts.Mailer,
		fromName:    strings.TrimSpace(opts.FromName),
		fromAddress: strings.TrimSpace(opts.FromAddress),
		timeout:     timeout,
		limiter:     rate.NewLimiter(limit, burst),
		ledger:      newLedger(opts.DedupTTL, opts.DedupMax),
		settings:    opts.Settings,
		bus:         opts.Bus,
		now:         time.Now,
	}, nil
}

func (s *Sender) Transport() string { return s.mailer.Name() }

// Deliver submits msg once. eventID keys deduplication; an empty id is never
// deduplicated. Returned errors are informational: callers log them and move
// on.
func (s *Sender) Deliver(ctx context.Context, eventID string, msg model.NotificationMessage) error {
	recipient := strings.TrimSpace(msg.Recipient)
	if recipient == "" {
		return ErrNoRecipient
	}
	if _, err := mail.ParseAddress(recipient); err != nil {
		return fmt.Errorf("%w: %q", ErrNoRecipient, recipient)
	}
	msg.Recipient = recipient

	env, err := s.envelope(ctx, msg)
	if err != nil {
		return err
	}

	if eventID != "" {
		if !s.ledger.claim(eventID, s.now()) {
			return ErrDuplicate
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		s.forget(eventID)
		return fmt.Errorf("%w: rate limit: %w", ErrTransportFailure, err)
	}
	if err := s.mailer.Send(ctx, env); err != nil {
		s.forget(eventID)
		return fmt.Errorf("%w: %s: %w", ErrTransportFailure, s.mailer.Name(), err)
	}
	return nil
}

func (s *Sender) forget(eventID string) {
	if eventID != "" {
		s.ledger.release(eventID)
	}
}

// envelope merges stored operator settings over the configured identity.
// A failing settings store falls back to configuration.
func (s *Sender) envelope(ctx context.Context, msg model.NotificationMessage) (Envelope, error) {
	env := Envelope{FromName: s.fromName, FromAddress: s.fromAddress, Message: msg}
	if s.settings == nil {
		return env, nil
	}
	st, ok, err := s.settings.GetNotifySettings(ctx)
	if err != nil {
		s.bus.Log("warn", "notify settings unavailable, using config", map[string]any{"error": err})
		return env, nil
	}
	if !ok {
		return env, nil
	}
	if !st.Enabled {
		return Envelope{}, ErrDisabled
	}
	if v := strings.TrimSpace(st.FromName); v != "" {
		env.FromName = v
	}
	if v := strings.TrimSpace(st.FromAddress); v != "" {
		env.FromAddress = v
	}
	env.Bcc = strings.TrimSpace(st.BccAddress)
	return env, nil
}
