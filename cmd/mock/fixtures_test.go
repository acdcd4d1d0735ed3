package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order_notifier/internal/event"
	"order_notifier/internal/extract"
	"order_notifier/internal/model"
	"order_notifier/internal/notify"
	"order_notifier/internal/processor"
	"order_notifier/internal/signature"
)

func TestFixturesSignAndExtract(t *testing.T) {
	cases := map[string]struct {
		kind        string
		fulfillment model.FulfillmentType
		total       int64
	}{
		"pickup":   {model.KindCheckoutSessionCompleted, model.FulfillmentPickup, 4050},
		"delivery": {model.KindCheckoutSessionCompleted, model.FulfillmentDelivery, 4050},
		"legacy":   {model.KindCheckoutSessionCompleted, model.FulfillmentPickup, 3600},
		"unknown":  {"customer.created", model.FulfillmentUnspecified, 0},
	}
	require.ElementsMatch(t, fixtureNames(), []string{"delivery", "legacy", "pickup", "unknown"})

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			body, err := buildFixture(name, "ana@example.com")
			require.NoError(t, err)
			require.NoError(t, signature.Verify(body, signature.Sign(body, "whsec_x", time.Now()), "whsec_x"))

			evt, err := event.Parse(body)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, evt.Kind)
			if tc.kind != model.KindCheckoutSessionCompleted {
				return
			}

			res := extract.Extractor{}.Extract(extract.Input{Payload: evt.Payload})
			assert.Equal(t, tc.fulfillment, res.Order.Fulfillment)
			assert.Equal(t, tc.total, res.Order.TotalCents)
			assert.Equal(t, "ana@example.com", res.Order.CustomerEmail)
		})
	}
}

func TestBuildFixtureUnknownName(t *testing.T) {
	_, err := buildFixture("refund", "")
	assert.Error(t, err)
}

func TestMockUpstreams(t *testing.T) {
	srv := httptest.NewServer(newMockMux())
	defer srv.Close()

	client, err := processor.New(processor.Options{BaseURL: srv.URL, SecretKey: "sk_test", Timeout: time.Second})
	require.NoError(t, err)
	items, err := client.ListLineItems(context.Background(), "cs_test_pickup")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Brisket Plate", items[0].Name)
	assert.Equal(t, int64(1800), items[0].UnitPriceCents)

	mailer, err := notify.NewResendMailer(notify.ResendOptions{BaseURL: srv.URL, APIKey: "re_test", Timeout: time.Second})
	require.NoError(t, err)
	msg := notify.NewComposer(notify.Business{}).Compose(notify.SampleOrder("ana@example.com"))
	require.NoError(t, mailer.Send(context.Background(), notify.Envelope{FromAddress: "orders@example.com", Message: msg}))
}
