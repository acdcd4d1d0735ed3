// Package extract rebuilds an order from the loosely structured payload of a
// completed checkout. It never fails: every field has a defined default.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"order_notifier/internal/model"
)

const (
	DefaultCustomerName  = "friend"
	DefaultCustomerPhone = "Not provided"
	DefaultItemName      = "Item"

	// MaxQuantity and MaxAmountCents clamp numbers read from the payload so
	// that quantity × price and the order sum stay far inside int64.
	MaxQuantity    = 10_000
	MaxAmountCents = 10_000_000_000

	// Decimal strings outside this exponent window, or longer than
	// maxNumberLen, are not amounts and are ignored.
	maxExponent  = 18
	maxNumberLen = 40
)

var maxAmount = decimal.NewFromInt(MaxAmountCents)

type Extractor struct {
	// CourierFromStaging uses StagingAddress for every delivery order.
	CourierFromStaging bool
	StagingAddress     model.Address
}

type Input struct {
	Payload []byte
	// LineItems were retrieved from the processor out of band. nil when no
	// retrieval happened.
	LineItems []model.LineItem
}

// Result carries the order and, per logical field, the alias that supplied
// it. Fields resolved to defaults are absent from Resolved.
type Result struct {
	Order    model.Order
	Resolved map[string]string
}

func (e Extractor) Extract(in Input) Result {
	doc := parse(in.Payload)
	res := Result{Resolved: make(map[string]string)}
	o := &res.Order

	o.Fulfillment = e.fulfillment(doc, res.Resolved)
	o.Schedule = schedule(doc, o.Fulfillment, res.Resolved)
	if o.Fulfillment == model.FulfillmentDelivery {
		o.Address = e.address(doc, res.Resolved)
	}
	o.Items = items(doc, in.LineItems, res.Resolved)
	o.TotalCents = total(doc, o.Items, res.Resolved)

	o.CustomerName = resolveText(doc, "customerName", customerNameRules, DefaultCustomerName, res.Resolved)
	o.CustomerEmail = resolveText(doc, "customerEmail", customerEmailRules, "", res.Resolved)
	o.CustomerPhone = resolveText(doc, "customerPhone", customerPhoneRules, DefaultCustomerPhone, res.Resolved)
	o.Reference = resolveText(doc, "reference", referenceRules, "", res.Resolved)
	return res
}

// HasExpandedLineItems reports whether the payload already carries priced
// line entries, which makes a retrieval call unnecessary.
func HasExpandedLineItems(payload []byte) bool {
	doc := parse(payload)
	for _, path := range expandedItemRules {
		if v := doc.Get(path); v.IsArray() && len(v.Array()) > 0 {
			return true
		}
	}
	return false
}

// SessionID returns the processor object id of the payload, if any.
func SessionID(payload []byte) string {
	return text(parse(payload).Get("id"))
}

func parse(payload []byte) gjson.Result {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return gjson.Result{}
	}
	doc := gjson.ParseBytes(payload)
	if !doc.IsObject() {
		return gjson.Result{}
	}
	return doc
}

func resolveText(doc gjson.Result, field string, rules Rules, def string, resolved map[string]string) string {
	if v, path, ok := rules.Text(doc); ok {
		resolved[field] = path
		return v
	}
	return def
}

func (e Extractor) fulfillment(doc gjson.Result, resolved map[string]string) model.FulfillmentType {
	out := model.FulfillmentUnspecified
	fulfillmentRules.Each(doc, func(v, path string) bool {
		if f := model.ParseFulfillment(v); f != model.FulfillmentUnspecified {
			out = f
			resolved["fulfillment"] = path
			return true
		}
		return false
	})
	return out
}

type scheduleSource struct {
	date, time, slot Rules
}

var (
	pickupSchedule   = scheduleSource{pickupDateRules, pickupTimeRules, pickupSlotRules}
	deliverySchedule = scheduleSource{deliveryDateRules, deliveryTimeRules, deliverySlotRules}
	genericSchedule  = scheduleSource{genericDateRules, genericTimeRules, genericSlotRules}
)

func scheduleSources(f model.FulfillmentType) []scheduleSource {
	switch f {
	case model.FulfillmentPickup:
		return []scheduleSource{pickupSchedule, genericSchedule}
	case model.FulfillmentDelivery:
		return []scheduleSource{deliverySchedule, genericSchedule}
	default:
		return []scheduleSource{genericSchedule, pickupSchedule, deliverySchedule}
	}
}

// schedule fills date and time from the most specific source first. A slot
// only fills what the explicit date/time fields of the same source left empty.
func schedule(doc gjson.Result, f model.FulfillmentType, resolved map[string]string) model.Schedule {
	var s model.Schedule
	for _, src := range scheduleSources(f) {
		if s.Date == "" {
			if v, path, ok := src.date.Text(doc); ok {
				s.Date = v
				resolved["date"] = path
			}
		}
		if s.Time == "" {
			if v, path, ok := src.time.Text(doc); ok {
				s.Time = v
				resolved["time"] = path
			}
		}
		if s.Date == "" || s.Time == "" {
			if v, path, ok := src.slot.Text(doc); ok {
				date, tm := splitSlot(v)
				if s.Date == "" && date != "" {
					s.Date = date
					resolved["date"] = path
				}
				if s.Time == "" && tm != "" {
					s.Time = tm
					resolved["time"] = path
				}
			}
		}
		if s.Date != "" && s.Time != "" {
			break
		}
	}
	return s
}

var slotDatePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})(?:[\sT@,|]+(.*))?$`)

// splitSlot separates "2024-06-01 noon" into date and time. Anything that
// does not lead with an ISO date is treated as a time description.
func splitSlot(slot string) (date, tm string) {
	slot = strings.TrimSpace(slot)
	if m := slotDatePrefix.FindStringSubmatch(slot); m != nil {
		return m[1], strings.TrimSpace(m[2])
	}
	return "", slot
}

func (e Extractor) address(doc gjson.Result, resolved map[string]string) *model.Address {
	if e.CourierFromStaging && !e.StagingAddress.IsZero() {
		a := e.StagingAddress
		resolved["address"] = "staging"
		return &a
	}
	for _, src := range shippingAddressSources {
		a := model.Address{}
		a.Line1, _, _ = src.rules.line1.Text(doc)
		a.City, _, _ = src.rules.city.Text(doc)
		a.Region, _, _ = src.rules.region.Text(doc)
		a.PostalCode, _, _ = src.rules.postalCode.Text(doc)
		if !a.IsZero() {
			resolved["address"] = src.name
			return &a
		}
	}
	return nil
}

// items prefers priced entries attached to the payload, then entries
// retrieved from the processor, then a cart serialized into metadata.
func items(doc gjson.Result, fetched []model.LineItem, resolved map[string]string) []model.LineItem {
	for _, path := range expandedItemRules {
		if out := expandedItems(doc.Get(path)); len(out) > 0 {
			resolved["items"] = path
			return out
		}
	}
	if len(fetched) > 0 {
		resolved["items"] = "retrieved"
		return normalizeItems(fetched)
	}
	for _, path := range cartItemRules {
		if out := cartItems(doc.Get(path)); len(out) > 0 {
			resolved["items"] = path
			return out
		}
	}
	return nil
}

func expandedItems(list gjson.Result) []model.LineItem {
	if !list.IsArray() {
		return nil
	}
	var out []model.LineItem
	list.ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			return true
		}
		qty := quantity(entry.Get("quantity"))
		unit, ok := cents(entry.Get("price.unit_amount"))
		if !ok {
			unit, ok = cents(entry.Get("amount"))
		}
		if !ok {
			if amt, found := cents(entry.Get("amount_total")); found {
				unit = amt / qty
			}
		}
		out = append(out, model.LineItem{
			Name:           firstText(entry, "description", "price.product.name", "custom.name", "price.nickname", "name"),
			Quantity:       qty,
			UnitPriceCents: unit,
		})
		return true
	})
	return out
}

// cartItems reads a cart that was serialized into a single metadata value,
// or stored inline as an array. Prices are major units unless the key says
// otherwise.
func cartItems(v gjson.Result) []model.LineItem {
	list := v
	if v.Type == gjson.String {
		if !gjson.Valid(v.Str) {
			return nil
		}
		list = gjson.Parse(v.Str)
	}
	if !list.IsArray() {
		return nil
	}
	var out []model.LineItem
	list.ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			return true
		}
		qty := quantity(firstResult(entry, "qty", "quantity", "count"))
		unit, ok := cents(firstResult(entry, "priceCents", "price_cents", "unitAmount", "unit_amount"))
		if !ok {
			unit, _ = dollarsToCents(firstResult(entry, "price", "unitPrice", "unit_price"))
		}
		out = append(out, model.LineItem{
			Name:           firstText(entry, "name", "title", "description"),
			Quantity:       qty,
			UnitPriceCents: unit,
		})
		return true
	})
	return out
}

func normalizeItems(in []model.LineItem) []model.LineItem {
	out := make([]model.LineItem, 0, len(in))
	for _, it := range in {
		if strings.TrimSpace(it.Name) == "" {
			it.Name = DefaultItemName
		}
		it.Quantity = clampQuantity(it.Quantity)
		it.UnitPriceCents = clampCents(it.UnitPriceCents)
		out = append(out, it)
	}
	return out
}

func total(doc gjson.Result, items []model.LineItem, resolved map[string]string) int64 {
	for _, path := range totalCentsRules {
		if v, ok := cents(doc.Get(path)); ok {
			resolved["total"] = path
			return v
		}
	}
	for _, path := range totalDollarRules {
		if v, ok := dollarsToCents(doc.Get(path)); ok {
			resolved["total"] = path
			return v
		}
	}
	return model.Order{Items: items}.ItemsTotalCents()
}

func firstResult(entry gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := entry.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func firstText(entry gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := text(entry.Get(k)); v != "" {
			return v
		}
	}
	return DefaultItemName
}

func quantity(v gjson.Result) int64 {
	var n int64
	switch v.Type {
	case gjson.Number:
		if f := v.Float(); f >= MaxQuantity {
			n = MaxQuantity
		} else {
			n = int64(f)
		}
	case gjson.String:
		// Out-of-range strings come back as ±MaxInt64 and clamp below.
		n, _ = strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
	}
	return clampQuantity(n)
}

func clampQuantity(n int64) int64 {
	if n < 1 {
		return 1
	}
	if n > MaxQuantity {
		return MaxQuantity
	}
	return n
}

func clampCents(n int64) int64 {
	if n < 0 {
		return 0
	}
	if n > MaxAmountCents {
		return MaxAmountCents
	}
	return n
}

// cents reads an integer amount of minor units, clamped to
// [0, MaxAmountCents].
func cents(v gjson.Result) (int64, bool) {
	d, ok := decimalOf(v)
	if !ok {
		return 0, false
	}
	return toCents(d), true
}

func dollarsToCents(v gjson.Result) (int64, bool) {
	d, ok := decimalOf(v)
	if !ok {
		return 0, false
	}
	return toCents(d.Shift(2)), true
}

// toCents expects d to have passed decimalOf, so rounding stays cheap.
func toCents(d decimal.Decimal) int64 {
	if d.Sign() <= 0 {
		return 0
	}
	if d.GreaterThan(maxAmount) {
		return MaxAmountCents
	}
	return d.Round(0).IntPart()
}

func decimalOf(v gjson.Result) (decimal.Decimal, bool) {
	var raw string
	switch v.Type {
	case gjson.Number:
		raw = v.Raw
	case gjson.String:
		raw = strings.NewReplacer("$", "", ",", "", " ", "").Replace(v.Str)
	default:
		return decimal.Decimal{}, false
	}
	if len(raw) == 0 || len(raw) > maxNumberLen {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Decimal{}, false
	}
	return d, true
}
