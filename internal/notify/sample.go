package notify

import "order_notifier/internal/model"

// SampleOrder is the order used for previews and test sends.
func SampleOrder(recipient string) model.Order {
	return model.Order{
		Reference:     "cs_test_preview",
		CustomerName:  "Sample Customer",
		CustomerEmail: recipient,
		CustomerPhone: "(555) 010-0000",
		Fulfillment:   model.FulfillmentPickup,
		Schedule:      model.Schedule{Date: "2024-06-01", Time: "noon"},
		Items: []model.LineItem{
			{Name: "Smoked Brisket Plate", Quantity: 2, UnitPriceCents: 1000},
			{Name: "Charred Corn", Quantity: 1, UnitPriceCents: 500},
		},
		TotalCents: 2500,
	}
}
