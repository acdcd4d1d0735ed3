// Package pipeline runs one inbound processor callback from raw bytes to an
// acknowledgment decision.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"order_notifier/internal/event"
	"order_notifier/internal/extract"
	"order_notifier/internal/logbus"
	"order_notifier/internal/metrics"
	"order_notifier/internal/model"
	"order_notifier/internal/notify"
	"order_notifier/internal/signature"
	"order_notifier/internal/telemetry"
)

type State string

const (
	StateReceived     State = "received"
	StateVerified     State = "verified"
	StateParsed       State = "parsed"
	StateRouted       State = "routed"
	StateExtracted    State = "extracted"
	StateComposed     State = "composed"
	StateDelivered    State = "delivered"
	StateAcknowledged State = "acknowledged"
	StateRejected     State = "rejected"
)

type Verifier interface {
	Verify(rawBody []byte, signatureHeader string) error
}

type Deliverer interface {
	Deliver(ctx context.Context, eventID string, msg model.NotificationMessage) error
}

// LineItemFetcher retrieves authoritative line items for a checkout session.
type LineItemFetcher interface {
	ListLineItems(ctx context.Context, sessionID string) ([]model.LineItem, error)
}

type Options struct {
	Verifier        Verifier
	ActionableKinds []string
	Extractor       extract.Extractor
	Composer        *notify.Composer
	Sender          Deliverer
	// Transport labels delivery metrics.
	Transport string
	// Fetcher is optional. When set it is consulted only for payloads without
	// expanded line items.
	Fetcher LineItemFetcher
	// FetchTimeout bounds the whole retrieval, retries included.
	FetchTimeout time.Duration
	Metrics      *metrics.Metrics
	Bus          *logbus.Bus
	Tracer       trace.Tracer
}

const DefaultFetchTimeout = 8 * time.Second

type Pipeline struct {
	verifier  Verifier
	kinds     map[string]struct{}
	extractor extract.Extractor
	composer  *notify.Composer
	sender    Deliverer
	transport string
	fetcher   LineItemFetcher
	fetchWait time.Duration
	metrics   *metrics.Metrics
	bus       *logbus.Bus
	tracer    trace.Tracer
}

func New(opts Options) (*Pipeline, error) {
	if opts.Verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if opts.Composer == nil {
		return nil, errors.New("composer is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("sender is required")
	}
	kinds := make(map[string]struct{}, len(opts.ActionableKinds))
	for _, k := range opts.ActionableKinds {
		if k = strings.TrimSpace(k); k != "" {
			kinds[k] = struct{}{}
		}
	}
	if len(kinds) == 0 {
		kinds[model.KindCheckoutSessionCompleted] = struct{}{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}
	fetchWait := opts.FetchTimeout
	if fetchWait <= 0 {
		fetchWait = DefaultFetchTimeout
	}
	transport := opts.Transport
	if transport == "" {
		transport = "unknown"
	}
	return &Pipeline{
		verifier:  opts.Verifier,
		kinds:     kinds,
		extractor: opts.Extractor,
		composer:  opts.Composer,
		sender:    opts.Sender,
		transport: transport,
		fetcher:   opts.Fetcher,
		fetchWait: fetchWait,
		metrics:   opts.Metrics,
		bus:       opts.Bus,
		tracer:    tracer,
	}, nil
}

type Request struct {
	RawBody         []byte
	SignatureHeader string
	RequestID       string
}

// Outcome is the response decision plus what happened on the way. Path lists
// every state entered, in order.
type Outcome struct {
	State     State
	Status    int
	Body      map[string]any
	EventID   string
	EventKind string
	Path      []State
	// Delivery is the downstream error that was absorbed, if any.
	Delivery error
}

func (o *Outcome) enter(s State) {
	o.State = s
	o.Path = append(o.Path, s)
}

// Handle never fails: every condition maps to a status. Only verification
// and parsing can produce a non-2xx status.
func (p *Pipeline) Handle(ctx context.Context, req Request) (out Outcome) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "webhook.handle")
	defer span.End()

	log := p.bus.With(map[string]any{"requestId": req.RequestID})
	out.enter(StateReceived)

	defer func() {
		if p.metrics != nil {
			p.metrics.WebhookEvents.WithLabelValues(string(out.State), kindLabel(out.EventKind)).Inc()
			p.metrics.WebhookDuration.Observe(time.Since(start).Seconds())
		}
		span.SetAttributes(attribute.String("webhook.state", string(out.State)), attribute.Int("http.status_code", out.Status))
	}()

	if err := p.verify(ctx, req); err != nil {
		if errors.Is(err, signature.ErrMissingSecret) {
			log.Error("webhook secret not configured", map[string]any{"stage": "verify"})
			return p.reject(span, out, http.StatusInternalServerError, "Webhook not configured", err)
		}
		log.Warn("webhook signature verification failed", map[string]any{"stage": "verify", "error": err})
		return p.reject(span, out, http.StatusBadRequest, "Webhook Error: "+err.Error(), err)
	}
	out.enter(StateVerified)

	evt, err := p.parse(ctx, req.RawBody)
	if err != nil {
		log.Warn("webhook payload rejected", map[string]any{"stage": "parse", "error": err})
		return p.reject(span, out, http.StatusBadRequest, "Webhook Error: "+err.Error(), err)
	}
	out.enter(StateParsed)
	out.EventID, out.EventKind = evt.ID, evt.Kind
	span.SetAttributes(attribute.String("event.id", evt.ID), attribute.String("event.kind", evt.Kind))
	log = log.With(map[string]any{"eventId": evt.ID, "eventKind": evt.Kind})

	out.enter(StateRouted)
	if _, ok := p.kinds[evt.Kind]; !ok {
		log.Info("unhandled event kind", map[string]any{"stage": "route"})
	} else {
		// Delivery outlives a client hangup; the sender bounds it.
		out.Delivery = p.process(context.WithoutCancel(ctx), evt, log, &out)
	}

	out.enter(StateAcknowledged)
	out.Status = http.StatusOK
	out.Body = map[string]any{"received": true}
	return out
}

func (p *Pipeline) reject(span trace.Span, out Outcome, status int, msg string, err error) Outcome {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	out.enter(StateRejected)
	out.Status = status
	out.Body = map[string]any{"error": msg}
	return out
}

func (p *Pipeline) verify(ctx context.Context, req Request) error {
	_, span := p.tracer.Start(ctx, "webhook.verify")
	defer span.End()
	return p.verifier.Verify(req.RawBody, req.SignatureHeader)
}

func (p *Pipeline) parse(ctx context.Context, raw []byte) (model.WebhookEvent, error) {
	_, span := p.tracer.Start(ctx, "webhook.parse")
	defer span.End()
	return event.Parse(raw)
}

// process runs extract, compose and deliver. Every failure, panics included,
// is logged and returned for the outcome, never escalated.
func (p *Pipeline) process(ctx context.Context, evt model.WebhookEvent, log *logbus.Logger, out *Outcome) (err error) {
	stage := "extract"
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", stage, r)
			log.Error("order processing panicked", map[string]any{"stage": stage, "error": err})
		}
	}()

	res := p.extract(ctx, evt, log)
	out.enter(StateExtracted)
	log.Info("order extracted", map[string]any{
		"stage":       stage,
		"fulfillment": res.Order.Fulfillment.String(),
		"items":       len(res.Order.Items),
		"totalCents":  res.Order.TotalCents,
		"resolved":    res.Resolved,
	})

	stage = "compose"
	_, span := p.tracer.Start(ctx, "notify.compose")
	msg := p.composer.Compose(res.Order)
	span.End()
	out.enter(StateComposed)

	stage = "deliver"
	err = p.deliver(ctx, evt.ID, msg, log)
	if err == nil {
		out.enter(StateDelivered)
	}
	return err
}

func (p *Pipeline) extract(ctx context.Context, evt model.WebhookEvent, log *logbus.Logger) extract.Result {
	ctx, span := p.tracer.Start(ctx, "order.extract")
	defer span.End()

	in := extract.Input{Payload: evt.Payload}
	if p.fetcher != nil && !extract.HasExpandedLineItems(evt.Payload) {
		if id := extract.SessionID(evt.Payload); id != "" {
			items, err := p.fetcher.ListLineItems(ctx, id)
			if err != nil {
				p.countFetch("error")
				log.Warn("line item retrieval failed, using metadata", map[string]any{"stage": "extract", "sessionId": id, "error": err})
			} else {
				p.countFetch("ok")
				in.LineItems = items
			}
		}
	}
	return p.extractor.Extract(in)
}

func (p *Pipeline) deliver(ctx context.Context, eventID string, msg model.NotificationMessage, log *logbus.Logger) error {
	ctx, span := p.tracer.Start(ctx, "notify.deliver")
	defer span.End()

	err := p.sender.Deliver(ctx, eventID, msg)
	fields := map[string]any{"stage": "deliver", "transport": p.transport, "to": msg.Recipient}
	switch {
	case err == nil:
		p.countDelivery("sent")
		log.Info("confirmation sent", fields)
	case errors.Is(err, notify.ErrNoRecipient):
		p.countDelivery("no_recipient")
		fields["error"] = err
		log.Warn("confirmation skipped: no recipient", fields)
	case errors.Is(err, notify.ErrDuplicate):
		p.countDelivery("duplicate")
		log.Info("confirmation skipped: already sent for this event", fields)
	case errors.Is(err, notify.ErrDisabled):
		p.countDelivery("disabled")
		log.Info("confirmation skipped: notifications disabled", fields)
	default:
		p.countDelivery("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		fields["error"] = err
		log.Error("confirmation delivery failed", fields)
	}
	return err
}

func (p *Pipeline) countFetch(result string) {
	if p.metrics != nil {
		p.metrics.LineItemFetches.WithLabelValues(result).Inc()
	}
}

func (p *Pipeline) countDelivery(result string) {
	if p.metrics != nil {
		p.metrics.Deliveries.WithLabelValues(p.transport, result).Inc()
	}
}

func kindLabel(kind string) string {
	if kind == "" {
		return "none"
	}
	return kind
}
