package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"order_notifier/internal/logbus"
)

const DefaultResendBaseURL = "https://api.resend.com"

type ResendOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Bus     *logbus.Bus
}

// ResendMailer delivers through the Resend HTTP API. It never retries; a
// failed submission is reported once and left to the caller.
type ResendMailer struct {
	client *resty.Client
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Bcc     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

type resendError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func NewResendMailer(opts ResendOptions) (*ResendMailer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("resend api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultResendBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(strings.TrimSpace(opts.APIKey)).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	bus := opts.Bus
	client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		bus.Log("debug", "resend request", map[string]any{"method": r.Method, "url": r.URL})
		return nil
	})

	return &ResendMailer{client: client}, nil
}

func (*ResendMailer) Name() string { return "resend" }

func (m *ResendMailer) Send(ctx context.Context, env Envelope) error {
	body := resendRequest{
		From:    env.From(),
		To:      []string{env.Message.Recipient},
		Subject: env.Message.Subject,
		HTML:    env.Message.BodyHTML,
		Text:    env.Message.BodyText,
	}
	if bcc := strings.TrimSpace(env.Bcc); bcc != "" {
		body.Bcc = []string{bcc}
	}

	var out resendResponse
	var apiErr resendError
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/emails")
	if err != nil {
		return err
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return fmt.Errorf("resend: http %d: %s", resp.StatusCode(), apiErr.Message)
		}
		return fmt.Errorf("resend: http %d", resp.StatusCode())
	}
	return nil
}
