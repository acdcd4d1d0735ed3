package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"

	"order_notifier/internal/model"
)

var ErrMalformed = errors.New("event: malformed payload")

// envelope carries only the fields routing needs. data and data.object are
// both optional so an unhandled kind with an empty data block still parses.
type envelope struct {
	ID      string           `json:"id"`
	Type    stripe.EventType `json:"type"`
	Created int64            `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Parse decodes a verified body into its envelope. An absent or unknown
// kind is not an error here; routing decides what to do with it.
func Parse(rawBody []byte) (model.WebhookEvent, error) {
	trimmed := bytes.TrimSpace(rawBody)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return model.WebhookEvent{}, fmt.Errorf("%w: body is not a JSON object", ErrMalformed)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return model.WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := model.WebhookEvent{
		ID:      env.ID,
		Kind:    string(env.Type),
		Created: env.Created,
	}
	if obj := env.Data.Object; len(obj) > 0 && !bytes.Equal(obj, []byte("null")) {
		out.Payload = append(json.RawMessage(nil), obj...)
	}
	return out, nil
}
