package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order_notifier/internal/config"
	"order_notifier/internal/logbus"
)

func TestNewMailerReportsEffectiveTransport(t *testing.T) {
	cases := map[string]struct {
		transport string
		resendKey string
		smtpHost  string
		want      string
	}{
		"resend with key":    {config.TransportResend, "re_test", "", config.TransportResend},
		"resend without key": {config.TransportResend, "", "", config.TransportLog},
		"smtp":               {config.TransportSMTP, "", "smtp.example.com", config.TransportSMTP},
		"log":                {config.TransportLog, "", "", config.TransportLog},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var cfg config.Config
			cfg.Mail.Transport = tc.transport
			cfg.Mail.SMTP.Host = tc.smtpHost
			cfg.Secrets.ResendAPIKey = tc.resendKey

			m, err := newMailer(&cfg, logbus.New(10))
			require.NoError(t, err)
			assert.Equal(t, tc.want, m.Name())
			assert.Equal(t, tc.want, cfg.Mail.Transport)
		})
	}
}

func TestNewMailerSMTPNeedsHost(t *testing.T) {
	var cfg config.Config
	cfg.Mail.Transport = config.TransportSMTP
	_, err := newMailer(&cfg, logbus.New(10))
	require.Error(t, err)
	assert.Equal(t, config.TransportSMTP, cfg.Mail.Transport)
}
