package signature

import (
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testSecret = "whsec_test_secret"

var testBody = []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","amount_total":2500}}}`)

func sign(body []byte, secret string, at time.Time) string {
	sig := webhook.ComputeSignature(at, body, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	header := sign(testBody, testSecret, time.Now())
	require.NoError(t, Verify(testBody, header, testSecret))
}

func TestVerifyAcceptsAnyMatchingV1(t *testing.T) {
	now := time.Now()
	good := hex.EncodeToString(webhook.ComputeSignature(now, testBody, testSecret))
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), hex.EncodeToString([]byte("nope")), good)
	require.NoError(t, Verify(testBody, header, testSecret))
}

func TestVerifyMissingSecret(t *testing.T) {
	header := sign(testBody, testSecret, time.Now())
	err := Verify(testBody, header, "  ")
	assert.ErrorIs(t, err, ErrMissingSecret)
	assert.NotErrorIs(t, err, ErrBadSignature)
}

func TestVerifyMissingHeader(t *testing.T) {
	err := Verify(testBody, "", testSecret)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyMalformedHeader(t *testing.T) {
	err := Verify(testBody, "garbage", testSecret)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyWrongSecret(t *testing.T) {
	header := sign(testBody, "whsec_other", time.Now())
	assert.ErrorIs(t, Verify(testBody, header, testSecret), ErrBadSignature)
}

func TestVerifyStaleTimestamp(t *testing.T) {
	header := sign(testBody, testSecret, time.Now().Add(-10*time.Minute))
	err := Verifier{Secret: testSecret, Tolerance: 5 * time.Minute}.Verify(testBody, header)
	require.ErrorIs(t, err, ErrBadSignature)
	assert.Contains(t, err.Error(), "tolerance")
}

func TestVerifyDetectsEveryTamperedByte(t *testing.T) {
	header := sign(testBody, testSecret, time.Now())
	for i := range testBody {
		tampered := append([]byte(nil), testBody...)
		tampered[i] ^= 0x01
		assert.ErrorIs(t, Verify(tampered, header, testSecret), ErrBadSignature, "byte %d", i)
	}
}

func TestSignMatchesVerify(t *testing.T) {
	header := Sign(testBody, testSecret, time.Now())
	require.NoError(t, Verify(testBody, header, testSecret))
	assert.Equal(t, sign(testBody, testSecret, time.Unix(1700000000, 0)), Sign(testBody, testSecret, time.Unix(1700000000, 0)))
}
