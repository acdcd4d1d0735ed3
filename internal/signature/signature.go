// Package signature authenticates processor callbacks against the raw,
// unparsed request body.
package signature

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	Header           = "Stripe-Signature"
	DefaultTolerance = webhook.DefaultTolerance
)

var (
	// ErrMissingSecret means the service has no webhook secret configured.
	// It is a server misconfiguration, not a client error.
	ErrMissingSecret = errors.New("signature: webhook secret is not configured")
	// ErrBadSignature covers absent, malformed, mismatched and stale headers.
	ErrBadSignature = errors.New("signature: invalid webhook signature")
)

type Verifier struct {
	Secret    string
	Tolerance time.Duration
}

func Verify(rawBody []byte, signatureHeader, secret string) error {
	return Verifier{Secret: secret}.Verify(rawBody, signatureHeader)
}

// Verify checks the HMAC carried in signatureHeader against rawBody.
// rawBody must be the bytes exactly as received.
func (v Verifier) Verify(rawBody []byte, signatureHeader string) error {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return ErrMissingSecret
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return fmt.Errorf("%w: %s header is missing", ErrBadSignature, Header)
	}
	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if err := webhook.ValidatePayloadWithTolerance(rawBody, signatureHeader, secret, tolerance); err != nil {
		return fmt.Errorf("%w: %s", ErrBadSignature, reason(err))
	}
	return nil
}

// Sign produces a header value for body as the processor would. Used by
// tooling that replays fixtures against a running service.
func Sign(body []byte, secret string, at time.Time) string {
	sig := webhook.ComputeSignature(at, body, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig))
}

func reason(err error) string {
	switch {
	case errors.Is(err, webhook.ErrNotSigned):
		return "header carries no signature"
	case errors.Is(err, webhook.ErrInvalidHeader):
		return "header is malformed"
	case errors.Is(err, webhook.ErrTooOld):
		return "timestamp outside tolerance"
	case errors.Is(err, webhook.ErrNoValidSignature):
		return "digest mismatch"
	default:
		return err.Error()
	}
}
