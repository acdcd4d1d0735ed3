package model

import (
	"math"
	"strings"
)

type FulfillmentType string

const (
	FulfillmentUnspecified FulfillmentType = ""
	FulfillmentPickup      FulfillmentType = "pickup"
	FulfillmentDelivery    FulfillmentType = "delivery"
)

// ParseFulfillment maps the spellings seen across checkout generations onto
// a FulfillmentType. Unknown values resolve to FulfillmentUnspecified.
func ParseFulfillment(v string) FulfillmentType {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "pickup", "pick-up", "pick up", "pick_up", "collection", "collect":
		return FulfillmentPickup
	case "delivery", "deliver", "courier", "uber", "shipping":
		return FulfillmentDelivery
	default:
		return FulfillmentUnspecified
	}
}

func (f FulfillmentType) String() string {
	if f == FulfillmentUnspecified {
		return "unspecified"
	}
	return string(f)
}

const NotSpecified = "Not specified"

type Schedule struct {
	Date string `json:"date,omitempty"`
	Time string `json:"time,omitempty"`
}

func (s Schedule) DateLabel() string {
	return orPlaceholder(s.Date)
}

func (s Schedule) TimeLabel() string {
	return orPlaceholder(s.Time)
}

type Address struct {
	Line1      string `json:"line1,omitempty" yaml:"line1"`
	City       string `json:"city,omitempty" yaml:"city"`
	Region     string `json:"region,omitempty" yaml:"region"`
	PostalCode string `json:"postalCode,omitempty" yaml:"postalCode"`
}

func (a Address) IsZero() bool {
	return strings.TrimSpace(a.Line1) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.Region) == "" &&
		strings.TrimSpace(a.PostalCode) == ""
}

// String renders "line1, city, region postal" skipping empty parts.
func (a Address) String() string {
	var parts []string
	if v := strings.TrimSpace(a.Line1); v != "" {
		parts = append(parts, v)
	}
	if v := strings.TrimSpace(a.City); v != "" {
		parts = append(parts, v)
	}
	tail := strings.TrimSpace(strings.TrimSpace(a.Region) + " " + strings.TrimSpace(a.PostalCode))
	if tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}

type LineItem struct {
	Name           string `json:"name"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

// AmountCents saturates at math.MaxInt64 instead of wrapping.
func (li LineItem) AmountCents() int64 {
	if li.Quantity <= 0 || li.UnitPriceCents <= 0 {
		return 0
	}
	if li.UnitPriceCents > math.MaxInt64/li.Quantity {
		return math.MaxInt64
	}
	return li.Quantity * li.UnitPriceCents
}

type Order struct {
	Reference     string          `json:"reference,omitempty"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail,omitempty"`
	CustomerPhone string          `json:"customerPhone"`
	Fulfillment   FulfillmentType `json:"fulfillment"`
	Schedule      Schedule        `json:"schedule"`
	Address       *Address        `json:"address,omitempty"`
	Items         []LineItem      `json:"items"`
	TotalCents    int64           `json:"totalCents"`
}

func (o Order) ItemsTotalCents() int64 {
	var sum int64
	for _, it := range o.Items {
		amt := it.AmountCents()
		if sum > math.MaxInt64-amt {
			return math.MaxInt64
		}
		sum += amt
	}
	return sum
}

func orPlaceholder(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return NotSpecified
	}
	return v
}
