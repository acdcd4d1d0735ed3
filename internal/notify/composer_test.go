package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"order_notifier/internal/model"
)

func testBusiness() Business {
	return Business{
		Name:          "Ranch Lab",
		Tagline:       "Fire-inspired cooking",
		PickupAddress: "964 Rose Ave, Piedmont, CA 94611",
		Phone:         "(310) 666-0797",
		CourierNote:   "Book your courier for the scheduled slot.",
		Signature:     "The Ranch Lab team",
	}
}

func TestComposePickupOrder(t *testing.T) {
	o := model.Order{
		CustomerName:  "Ada",
		CustomerEmail: " ada@example.com ",
		Fulfillment:   model.FulfillmentPickup,
		Schedule:      model.Schedule{Date: "2024-06-01", Time: "noon"},
		Items: []model.LineItem{
			{Name: "Brisket", Quantity: 2, UnitPriceCents: 1000},
			{Name: "Slaw", Quantity: 1, UnitPriceCents: 500},
		},
		TotalCents: 2500,
	}

	msg := NewComposer(testBusiness()).Compose(o)

	assert.Equal(t, "ada@example.com", msg.Recipient)
	assert.Equal(t, "Order Confirmation - Ranch Lab (Pickup)", msg.Subject)
	for _, body := range []string{msg.BodyHTML, msg.BodyText} {
		assert.Contains(t, body, "Total Paid: $25.00")
		assert.Contains(t, body, "Brisket × 2 — $20.00")
		assert.Contains(t, body, "Slaw × 1 — $5.00")
		assert.Contains(t, body, "964 Rose Ave, Piedmont, CA 94611")
		assert.Contains(t, body, "2024-06-01")
		assert.Contains(t, body, "noon")
		assert.NotContains(t, body, "Book your courier")
	}
}

func TestComposeDeliveryWithoutSchedule(t *testing.T) {
	o := model.Order{
		CustomerEmail: "grace@example.com",
		Fulfillment:   model.FulfillmentDelivery,
		Address:       &model.Address{Line1: "1 Main St", City: "Oakland", Region: "CA", PostalCode: "94601"},
	}

	msg := NewComposer(testBusiness()).Compose(o)

	assert.Equal(t, "Order Confirmation - Ranch Lab (Delivery)", msg.Subject)
	assert.Contains(t, msg.BodyText, "Date: Not specified")
	assert.Contains(t, msg.BodyText, "Time: Not specified")
	assert.Contains(t, msg.BodyHTML, "<strong>Date:</strong> Not specified")
	assert.Contains(t, msg.BodyHTML, "<strong>Time:</strong> Not specified")
	assert.Contains(t, msg.BodyHTML, "Book your courier for the scheduled slot.")
	assert.Contains(t, msg.BodyHTML, "1 Main St, Oakland, CA 94601")
	assert.NotContains(t, msg.BodyHTML, "Pickup Address")
}

func TestComposeUnspecifiedAndEmpty(t *testing.T) {
	msg := NewComposer(testBusiness()).Compose(model.Order{})

	assert.Equal(t, "Order Confirmation - Ranch Lab", msg.Subject)
	assert.Empty(t, msg.Recipient)
	assert.Contains(t, msg.BodyText, "Hi friend,")
	assert.Contains(t, msg.BodyText, unspecifiedNotice)
	assert.Contains(t, msg.BodyText, noItemsNotice)
	assert.Contains(t, msg.BodyText, "Total Paid: $0.00")
	assert.NotContains(t, msg.BodyText, "Pickup Address")
	assert.NotContains(t, msg.BodyText, "Book your courier")
	assert.Contains(t, msg.BodyHTML, "Order Confirmed!")
}

func TestComposeIsDeterministic(t *testing.T) {
	c := NewComposer(testBusiness())
	o := SampleOrder("a@example.com")
	first := c.Compose(o)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.Compose(o))
	}
	assert.Equal(t, first, NewComposer(testBusiness()).Compose(o))
}

func TestComposeEscapesCustomerInput(t *testing.T) {
	o := model.Order{
		CustomerName: `<script>alert(1)</script>`,
		Items:        []model.LineItem{{Name: `<b>Ribs</b>`, Quantity: 1, UnitPriceCents: 100}},
	}
	msg := NewComposer(testBusiness()).Compose(o)
	assert.NotContains(t, msg.BodyHTML, "<script>")
	assert.NotContains(t, msg.BodyHTML, "<b>Ribs</b>")
	assert.True(t, strings.Contains(msg.BodyText, "<b>Ribs</b> × 1 — $1.00"))
}

func TestMoney(t *testing.T) {
	c := NewComposer(Business{})
	assert.Equal(t, "$0.00", c.Money(0))
	assert.Equal(t, "$0.05", c.Money(5))
	assert.Equal(t, "$25.00", c.Money(2500))
	assert.Equal(t, "$1,234.56", c.Money(123456))
	assert.Equal(t, "$0.00", c.Money(-10))
}
