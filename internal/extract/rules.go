package extract

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Rules is an ordered list of gjson paths that all name the same logical
// field in different checkout generations. The first non-empty value wins.
type Rules []string

func (rs Rules) Text(doc gjson.Result) (string, string, bool) {
	for _, path := range rs {
		if v := text(doc.Get(path)); v != "" {
			return v, path, true
		}
	}
	return "", "", false
}

// Each calls fn for every non-empty value in priority order until fn
// returns true.
func (rs Rules) Each(doc gjson.Result, fn func(value, path string) bool) {
	for _, path := range rs {
		if v := text(doc.Get(path)); v != "" {
			if fn(v, path) {
				return
			}
		}
	}
}

func text(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str)
	case gjson.Number:
		return strings.TrimSpace(r.Raw)
	default:
		return ""
	}
}

var (
	fulfillmentRules = Rules{
		"metadata.fulfillmentType",
		"metadata.fulfillment_type",
		"metadata.fulfillment",
		"metadata.orderType",
		"metadata.order_type",
		"metadata.deliveryMethod",
		"metadata.delivery_method",
		"metadata.type",
	}

	pickupDateRules   = Rules{"metadata.pickupDate", "metadata.pickup_date"}
	pickupTimeRules   = Rules{"metadata.pickupTime", "metadata.pickup_time"}
	pickupSlotRules   = Rules{"metadata.pickupSlot", "metadata.pickup_slot"}
	deliveryDateRules = Rules{"metadata.deliveryDate", "metadata.delivery_date"}
	deliveryTimeRules = Rules{"metadata.deliveryTime", "metadata.delivery_time"}
	deliverySlotRules = Rules{"metadata.deliverySlot", "metadata.delivery_slot"}
	genericDateRules  = Rules{"metadata.date", "metadata.orderDate", "metadata.order_date"}
	genericTimeRules  = Rules{"metadata.time", "metadata.orderTime", "metadata.order_time"}
	genericSlotRules  = Rules{"metadata.slot", "metadata.timeSlot", "metadata.time_slot"}

	customerNameRules = Rules{
		"metadata.customerName",
		"metadata.customer_name",
		"metadata.name",
		"customer_details.name",
		"shipping_details.name",
		"shipping.name",
		"billing_details.name",
	}
	customerEmailRules = Rules{
		"customer_email",
		"customer_details.email",
		"receipt_email",
		"metadata.customerEmail",
		"metadata.customer_email",
		"metadata.email",
		"billing_details.email",
	}
	customerPhoneRules = Rules{
		"metadata.customerPhone",
		"metadata.customer_phone",
		"metadata.phone",
		"customer_details.phone",
		"shipping_details.phone",
		"billing_details.phone",
	}
	referenceRules = Rules{
		"metadata.orderId",
		"metadata.order_id",
		"client_reference_id",
		"id",
	}

	// Integer minor units reported by the processor.
	totalCentsRules = Rules{
		"amount_total",
		"amount_received",
		"amount",
		"metadata.totalCents",
		"metadata.total_cents",
	}
	// Decimal major units carried in metadata by older checkouts.
	totalDollarRules = Rules{"metadata.total", "metadata.orderTotal"}

	expandedItemRules = Rules{"line_items.data", "display_items"}
	cartItemRules     = Rules{
		"metadata.cartItems",
		"metadata.cart_items",
		"metadata.cart",
		"metadata.items",
	}
)

type addressRules struct {
	line1, city, region, postalCode Rules
}

var shippingAddressSources = []struct {
	name  string
	rules addressRules
}{
	{"shipping_details.address", addressRules{
		line1:      Rules{"shipping_details.address.line1"},
		city:       Rules{"shipping_details.address.city"},
		region:     Rules{"shipping_details.address.state"},
		postalCode: Rules{"shipping_details.address.postal_code"},
	}},
	{"shipping.address", addressRules{
		line1:      Rules{"shipping.address.line1"},
		city:       Rules{"shipping.address.city"},
		region:     Rules{"shipping.address.state"},
		postalCode: Rules{"shipping.address.postal_code"},
	}},
	{"metadata.address", addressRules{
		line1:      Rules{"metadata.addressLine1", "metadata.address_line1", "metadata.address", "metadata.street"},
		city:       Rules{"metadata.city"},
		region:     Rules{"metadata.state", "metadata.region"},
		postalCode: Rules{"metadata.postalCode", "metadata.postal_code", "metadata.zip"},
	}},
	{"customer_details.address", addressRules{
		line1:      Rules{"customer_details.address.line1"},
		city:       Rules{"customer_details.address.city"},
		region:     Rules{"customer_details.address.state"},
		postalCode: Rules{"customer_details.address.postal_code"},
	}},
}
