package main

import (
	"order_notifier/internal/config"
	"order_notifier/internal/logbus"
	"order_notifier/internal/notify"
)

// newMailer picks the configured transport and rewrites cfg.Mail.Transport to
// the one actually in use. Resend without an API key falls back to the log
// transport so the service still acknowledges events.
func newMailer(cfg *config.Config, bus *logbus.Bus) (notify.Mailer, error) {
	var (
		m   notify.Mailer
		err error
	)
	switch cfg.Mail.Transport {
	case config.TransportSMTP:
		m, err = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Secrets.SMTPPassword,
			SSL:      cfg.Mail.SMTP.SSL,
		})
	case config.TransportResend:
		if cfg.Secrets.ResendAPIKey == "" {
			bus.Log("warn", "RESEND_API_KEY is not set; confirmations will only be logged", map[string]any{"transport": config.TransportLog})
			m = notify.LogMailer{Bus: bus}
			break
		}
		m, err = notify.NewResendMailer(notify.ResendOptions{
			BaseURL: cfg.Mail.Resend.BaseURL,
			APIKey:  cfg.Secrets.ResendAPIKey,
			Timeout: cfg.Mail.Timeout(),
			Bus:     bus,
		})
	default:
		m = notify.LogMailer{Bus: bus}
	}
	if err != nil {
		return nil, err
	}
	cfg.Mail.Transport = m.Name()
	return m, nil
}
