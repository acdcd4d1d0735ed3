package model

import "encoding/json"

const KindCheckoutSessionCompleted = "checkout.session.completed"

// WebhookEvent is the decoded envelope of one verified processor callback.
// Payload holds the exact bytes of the nested data object.
type WebhookEvent struct {
	ID      string          `json:"id,omitempty"`
	Kind    string          `json:"kind"`
	Created int64           `json:"created,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type NotificationMessage struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	BodyHTML  string `json:"bodyHtml"`
	BodyText  string `json:"bodyText,omitempty"`
}
