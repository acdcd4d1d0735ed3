package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order_notifier/internal/extract"
	"order_notifier/internal/logbus"
	"order_notifier/internal/metrics"
	"order_notifier/internal/model"
	"order_notifier/internal/notify"
	"order_notifier/internal/signature"
)

const testSecret = "whsec_pipeline"

type recordingSender struct {
	mu   sync.Mutex
	msgs []model.NotificationMessage
	ids  []string
	err  error
}

func (s *recordingSender) Deliver(_ context.Context, eventID string, msg model.NotificationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, eventID)
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type stubFetcher struct {
	items []model.LineItem
	err   error
	calls int
}

func (f *stubFetcher) ListLineItems(context.Context, string) ([]model.LineItem, error) {
	f.calls++
	return f.items, f.err
}

// blockingFetcher waits for its context, like a processor that never answers.
type blockingFetcher struct{}

func (blockingFetcher) ListLineItems(ctx context.Context, _ string) ([]model.LineItem, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type countingVerifier struct {
	inner Verifier
	calls int
}

func (v *countingVerifier) Verify(raw []byte, header string) error {
	v.calls++
	return v.inner.Verify(raw, header)
}

type testEnv struct {
	p       *Pipeline
	sender  *recordingSender
	bus     *logbus.Bus
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, secret string, mutate func(*Options)) testEnv {
	t.Helper()
	sender := &recordingSender{}
	bus := logbus.New(100)
	m := metrics.New()
	opts := Options{
		Verifier:  signature.Verifier{Secret: secret},
		Composer:  notify.NewComposer(notify.Business{Name: "Ranch Lab", PickupAddress: "964 Rose Ave, Piedmont, CA 94611", CourierNote: "Book your courier."}),
		Sender:    sender,
		Transport: "test",
		Metrics:   m,
		Bus:       bus,
	}
	if mutate != nil {
		mutate(&opts)
	}
	p, err := New(opts)
	require.NoError(t, err)
	return testEnv{p: p, sender: sender, bus: bus, metrics: m}
}

func eventBody(t *testing.T, id, kind string, object map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":      id,
		"object":  "event",
		"type":    kind,
		"created": 1717200000,
		"data":    map[string]any{"object": object},
	})
	require.NoError(t, err)
	return b
}

func signed(body []byte) Request {
	return Request{RawBody: body, SignatureHeader: signature.Sign(body, testSecret, time.Now()), RequestID: "req-1"}
}

func pickupSession() map[string]any {
	return map[string]any{
		"id":             "cs_test_1",
		"object":         "checkout.session",
		"customer_email": "ada@example.com",
		"amount_total":   2500,
		"metadata": map[string]any{
			"orderType":    "pickup",
			"pickupDate":   "2024-06-01",
			"pickupTime":   "noon",
			"customerName": "Ada",
			"cartItems":    `[{"name":"Brisket","qty":2,"price":10},{"name":"Slaw","qty":1,"price":5}]`,
		},
	}
}

func TestHandleCompletedCheckoutDelivers(t *testing.T) {
	env := newTestEnv(t, testSecret, nil)
	out := env.p.Handle(context.Background(), signed(eventBody(t, "evt_1", model.KindCheckoutSessionCompleted, pickupSession())))

	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, map[string]any{"received": true}, out.Body)
	assert.Equal(t, StateAcknowledged, out.State)
	assert.Equal(t, []State{StateReceived, StateVerified, StateParsed, StateRouted, StateExtracted, StateComposed, StateDelivered, StateAcknowledged}, out.Path)
	assert.NoError(t, out.Delivery)

	require.Equal(t, 1, env.sender.calls())
	msg := env.sender.msgs[0]
	assert.Equal(t, "evt_1", env.sender.ids[0])
	assert.Equal(t, "ada@example.com", msg.Recipient)
	assert.Equal(t, "Order Confirmation - Ranch Lab (Pickup)", msg.Subject)
	assert.Contains(t, msg.BodyHTML, "Total Paid: $25.00")
	assert.Contains(t, msg.BodyHTML, "964 Rose Ave, Piedmont, CA 94611")
	assert.NotContains(t, msg.BodyHTML, "Book your courier.")
}

func TestHandleDeliveryWithoutSchedule(t *testing.T) {
	env := newTestEnv(t, testSecret, nil)
	session := map[string]any{
		"id":             "cs_test_2",
		"customer_email": "grace@example.com",
		"metadata":       map[string]any{"orderType": "delivery"},
	}
	out := env.p.Handle(context.Background(), signed(eventBody(t, "evt_2", model.KindCheckoutSessionCompleted, session)))

	require.Equal(t, http.StatusOK, out.Status)
	require.Equal(t, 1, env.sender.calls())
	body := env.sender.msgs[0].BodyText
	assert.Contains(t, body, "Date: Not specified")
	assert.Contains(t, body, "Time: Not specified")
	assert.Contains(t, body, "Book your courier.")
}

// Scenario C
func TestHandleUnknownKindAcknowledgesWithoutDelivery(t *testing.T) {
	env := newTestEnv(t, testSecret, nil)
	out := env.p.Handle(context.Background(), signed(eventBody(t, "evt_3", "customer.created", map[string]any{"id": "cus_1"})))

	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, StateAcknowledged, out.State)
	assert.Equal(t, []State{StateReceived, StateVerified, StateParsed, StateRouted, StateAcknowledged}, out.Path)
	assert.Equal(t, "customer.created", out.EventKind)
	assert.Zero(t, env.sender.calls())
}

func TestHandleMissingKindAcknowledges(t *testing.T) {
	env := newTestEnv(t, testSecret, nil)
	out := env.p.Handle(context.Background(), signed([]byte(`{"id":"evt_4"}`)))
	assert.Equal(t, http.StatusOK, out.Status)
	assert.Zero(t, env.sender.calls())
}

func TestHandleUnknownKindWithEmptyDataAcknowledges(t *testing.T) {
	env := newTestEnv(t, testSecret, nil)
	out := env.p.Handle(context.Background(), signed([]byte(`{"id":"evt_5","type":"customer.created","data":{}}`)))
	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, StateAcknowledged, out.State)
	assert.Zero(t, env.sender.calls())
}

// Scenario D
func TestHandleMissingSignatureRejects(t *testing.T) {
	env := newTestEnv(t, testSecret, nil)
	body := eventBody(t, "evt_5", model.KindCheckoutSessionCompleted, pickupSession())

	out := env.p.Handle(context.Background(), Request{RawBody: body})

	assert.Equal(t, http.StatusBadRequest, out.Status)
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, []State{StateReceived, StateRejected}, out.Path)
	assert.Contains(t, out.Body["error"], "Webhook Error:")
	assert.Empty(t, out.EventKind, "no parsing attempted")
	assert.Zero(t, env.sender.calls())
}

func TestHandleTamperedBodyRejects(t *testing.T) {
	env := newTestEnv(t, testSecret, nil)
	req := signed(eventBody(t, "evt_6", model.KindCheckoutSessionCompleted, pickupSession()))
	req.RawBody = bytes.Replace(req.RawBody, []byte("2500"), []byte("2501"), 1)

	out := env.p.Handle(context.Background(), req)
	assert.Equal(t, http.StatusBadRequest, out.Status)
	assert.Zero(t, env.sender.calls())
}

// Scenario E
func TestHandleTransportFailureStillAcknowledges(t *testing.T) {
	env := newTestEnv(t, testSecret, nil)
	env.sender.err = fmt.Errorf("%w: smtp: connection refused", notify.ErrTransportFailure)

	out := env.p.Handle(context.Background(), signed(eventBody(t, "evt_7", model.KindCheckoutSessionCompleted, pickupSession())))

	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, StateAcknowledged, out.State)
	assert.NotContains(t, out.Path, StateDelivered)
	assert.ErrorIs(t, out.Delivery, notify.ErrTransportFailure)
	assert.Equal(t, 1, env.sender.calls())

	var logged bool
	for _, m := range env.bus.Snapshot() {
		d, ok := m.Data.(logbus.LogData)
		if ok && d.Level == "error" && d.Fields["stage"] == "deliver" {
			logged = true
			assert.Equal(t, "evt_7", d.Fields["eventId"])
			assert.Equal(t, "req-1", d.Fields["requestId"])
			assert.Equal(t, model.KindCheckoutSessionCompleted, d.Fields["eventKind"])
		}
	}
	assert.True(t, logged, "delivery failure logged with correlating fields")
}

func TestHandleMissingSecretIsServerError(t *testing.T) {
	env := newTestEnv(t, "", nil)
	out := env.p.Handle(context.Background(), signed(eventBody(t, "evt_8", model.KindCheckoutSessionCompleted, pickupSession())))

	assert.Equal(t, http.StatusInternalServerError, out.Status)
	assert.Equal(t, map[string]any{"error": "Webhook not configured"}, out.Body)
	assert.Equal(t, StateRejected, out.State)
	assert.Zero(t, env.sender.calls())
}

func TestHandleMalformedBodyRejectsAfterVerification(t *testing.T) {
	env := newTestEnv(t, testSecret, nil)
	out := env.p.Handle(context.Background(), signed([]byte(`not json`)))

	assert.Equal(t, http.StatusBadRequest, out.Status)
	assert.Equal(t, []State{StateReceived, StateVerified, StateRejected}, out.Path)
	assert.Zero(t, env.sender.calls())
}

func TestHandleNoRecipientStillAcknowledges(t *testing.T) {
	env := newTestEnv(t, testSecret, nil)
	env.sender.err = notify.ErrNoRecipient
	session := pickupSession()
	delete(session, "customer_email")

	out := env.p.Handle(context.Background(), signed(eventBody(t, "evt_9", model.KindCheckoutSessionCompleted, session)))
	assert.Equal(t, http.StatusOK, out.Status)
	assert.ErrorIs(t, out.Delivery, notify.ErrNoRecipient)
}

func TestHandleFetchesLineItemsWhenPayloadHasNone(t *testing.T) {
	fetcher := &stubFetcher{items: []model.LineItem{{Name: "Ribs", Quantity: 3, UnitPriceCents: 1000}}}
	env := newTestEnv(t, testSecret, func(o *Options) { o.Fetcher = fetcher })

	session := pickupSession()
	delete(session, "amount_total")
	out := env.p.Handle(context.Background(), signed(eventBody(t, "evt_10", model.KindCheckoutSessionCompleted, session)))

	require.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, 1, fetcher.calls)
	require.Equal(t, 1, env.sender.calls())
	assert.Contains(t, env.sender.msgs[0].BodyText, "Ribs × 3 — $30.00")
	assert.Contains(t, env.sender.msgs[0].BodyText, "Total Paid: $30.00")
}

func TestHandleFetchFailureFallsBackToMetadata(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("processor down")}
	env := newTestEnv(t, testSecret, func(o *Options) { o.Fetcher = fetcher })

	out := env.p.Handle(context.Background(), signed(eventBody(t, "evt_11", model.KindCheckoutSessionCompleted, pickupSession())))

	require.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, 1, fetcher.calls)
	assert.Contains(t, env.sender.msgs[0].BodyText, "Brisket × 2 — $20.00")
}

func TestHandleBoundsSlowFetch(t *testing.T) {
	env := newTestEnv(t, testSecret, func(o *Options) {
		o.Fetcher = blockingFetcher{}
		o.FetchTimeout = 50 * time.Millisecond
	})

	start := time.Now()
	out := env.p.Handle(context.Background(), signed(eventBody(t, "evt_13", model.KindCheckoutSessionCompleted, pickupSession())))

	require.Equal(t, http.StatusOK, out.Status)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, 1, env.sender.calls())
	assert.Contains(t, env.sender.msgs[0].BodyText, "Brisket × 2 — $20.00")
}

func TestHandleSkipsFetchForExpandedItems(t *testing.T) {
	fetcher := &stubFetcher{}
	env := newTestEnv(t, testSecret, func(o *Options) { o.Fetcher = fetcher })
	session := pickupSession()
	session["line_items"] = map[string]any{"data": []any{map[string]any{"description": "Pie", "quantity": 1, "amount_total": 450}}}

	env.p.Handle(context.Background(), signed(eventBody(t, "evt_12", model.KindCheckoutSessionCompleted, session)))
	assert.Zero(t, fetcher.calls)
}

type panickingSender struct{}

func (panickingSender) Deliver(context.Context, string, model.NotificationMessage) error {
	panic("mailer exploded")
}

func TestHandleRecoversDownstreamPanic(t *testing.T) {
	env := newTestEnv(t, testSecret, func(o *Options) { o.Sender = panickingSender{} })

	var out Outcome
	require.NotPanics(t, func() {
		out = env.p.Handle(context.Background(), signed(eventBody(t, "evt_13", model.KindCheckoutSessionCompleted, pickupSession())))
	})
	assert.Equal(t, http.StatusOK, out.Status)
	require.Error(t, out.Delivery)
	assert.Contains(t, out.Delivery.Error(), "panic during deliver")
}

func TestHandleConfiguredActionableKinds(t *testing.T) {
	env := newTestEnv(t, testSecret, func(o *Options) {
		o.ActionableKinds = []string{"checkout.session.async_payment_succeeded"}
	})

	env.p.Handle(context.Background(), signed(eventBody(t, "evt_14", model.KindCheckoutSessionCompleted, pickupSession())))
	assert.Zero(t, env.sender.calls())

	env.p.Handle(context.Background(), signed(eventBody(t, "evt_15", "checkout.session.async_payment_succeeded", pickupSession())))
	assert.Equal(t, 1, env.sender.calls())
}

func TestHandleVerifiesBeforeAnythingElse(t *testing.T) {
	cv := &countingVerifier{inner: signature.Verifier{Secret: testSecret}}
	env := newTestEnv(t, testSecret, func(o *Options) { o.Verifier = cv })

	env.p.Handle(context.Background(), Request{RawBody: []byte(`{"type":"checkout.session.completed"}`), SignatureHeader: "t=1,v1=00"})
	assert.Equal(t, 1, cv.calls)
	assert.Zero(t, env.sender.calls())
}

func TestVerifyParseRoundTrip(t *testing.T) {
	env := newTestEnv(t, testSecret, nil)
	body := eventBody(t, "evt_16", model.KindCheckoutSessionCompleted, pickupSession())
	captured := env.p.Handle(context.Background(), signed(body))

	assert.Equal(t, "evt_16", captured.EventID)
	assert.Equal(t, model.KindCheckoutSessionCompleted, captured.EventKind)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Verifier: signature.Verifier{}, Composer: notify.NewComposer(notify.Business{})})
	assert.Error(t, err)

	p, err := New(Options{Verifier: signature.Verifier{}, Composer: notify.NewComposer(notify.Business{}), Sender: &recordingSender{}})
	require.NoError(t, err)
	_, ok := p.kinds[model.KindCheckoutSessionCompleted]
	assert.True(t, ok)
	assert.Equal(t, extract.Extractor{}, p.extractor)
}
