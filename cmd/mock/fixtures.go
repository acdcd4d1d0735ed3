package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type fixture func(email string) (kind string, object map[string]any)

var fixtures = map[string]fixture{
	"pickup": func(email string) (string, map[string]any) {
		return "checkout.session.completed", map[string]any{
			"id":           "cs_test_pickup",
			"object":       "checkout.session",
			"amount_total": 4050,
			"customer_details": map[string]any{
				"email": email,
				"name":  "Ana Diaz",
				"phone": "+1 510 555 0101",
			},
			"metadata": map[string]any{
				"fulfillmentType": "pickup",
				"pickupDate":      "2024-06-01",
				"pickupTime":      "12:00 PM",
			},
		}
	},
	"delivery": func(email string) (string, map[string]any) {
		return "checkout.session.completed", map[string]any{
			"id":           "cs_test_delivery",
			"object":       "checkout.session",
			"amount_total": 4050,
			"customer_details": map[string]any{
				"email": email,
				"name":  "Sam Lee",
				"address": map[string]any{
					"line1":       "1 Market St",
					"city":        "San Francisco",
					"state":       "CA",
					"postal_code": "94105",
				},
			},
			"metadata": map[string]any{
				"fulfillment_type": "delivery",
				"delivery_slot":    "2024-06-02 18:00",
			},
		}
	},
	"legacy": func(email string) (string, map[string]any) {
		return "checkout.session.completed", map[string]any{
			"id":             "cs_test_legacy",
			"object":         "checkout.session",
			"customer_email": email,
			"display_items": []map[string]any{
				{"quantity": 2, "amount": 1800, "custom": map[string]any{"name": "Brisket Plate"}},
			},
			"metadata": map[string]any{
				"orderType": "pickup",
				"cart":      `[{"name":"Brisket Plate","qty":2,"price":18}]`,
				"total":     "36.00",
			},
		}
	},
	"unknown": func(string) (string, map[string]any) {
		return "customer.created", map[string]any{"id": "cus_test", "object": "customer"}
	},
}

// buildFixture wraps a fixture object in an event envelope with a fresh id.
func buildFixture(name, email string) ([]byte, error) {
	f, ok := fixtures[name]
	if !ok {
		return nil, fmt.Errorf("unknown fixture %q", name)
	}
	kind, object := f(email)
	return json.Marshal(map[string]any{
		"id":       "evt_" + uuid.NewString(),
		"object":   "event",
		"type":     kind,
		"created":  time.Now().Unix(),
		"livemode": false,
		"data":     map[string]any{"object": object},
	})
}
