package notify

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"order_notifier/internal/model"
)

// Business is the fixed copy that surrounds every confirmation.
type Business struct {
	Name          string
	Tagline       string
	PickupAddress string
	Phone         string
	CourierNote   string
	Signature     string
	LogoURL       string
}

// Composer turns an Order into a confirmation message. It performs no I/O and
// renders the same Order to the same message every time.
type Composer struct {
	biz Business
}

func NewComposer(biz Business) *Composer {
	if strings.TrimSpace(biz.Name) == "" {
		biz.Name = "Ranch Lab"
	}
	return &Composer{biz: biz}
}

func (c *Composer) Compose(o model.Order) model.NotificationMessage {
	view := c.view(o)

	var buf bytes.Buffer
	body := ""
	if err := confirmationHTMLTpl.Execute(&buf, view); err == nil {
		body = buf.String()
	} else {
		body = "<pre>" + html.EscapeString(c.text(view)) + "</pre>"
	}

	return model.NotificationMessage{
		Recipient: strings.TrimSpace(o.CustomerEmail),
		Subject:   c.subject(o),
		BodyHTML:  body,
		BodyText:  c.text(view),
	}
}

func (c *Composer) subject(o model.Order) string {
	if o.Fulfillment == model.FulfillmentUnspecified {
		return "Order Confirmation - " + c.biz.Name
	}
	return fmt.Sprintf("Order Confirmation - %s (%s)", c.biz.Name, cases.Title(language.AmericanEnglish).String(o.Fulfillment.String()))
}

// Money formats minor units as "$1,234.50".
func (c *Composer) Money(cents int64) string {
	if cents < 0 {
		cents = 0
	}
	p := message.NewPrinter(language.AmericanEnglish)
	return "$" + p.Sprintf("%d", cents/100) + fmt.Sprintf(".%02d", cents%100)
}

type itemRow struct {
	Line string
}

type detailRow struct {
	K string
	V string
}

type confirmationView struct {
	Biz         Business
	Greeting    string
	Intro       string
	Details     []detailRow
	Fulfillment string
	Pickup      bool
	Delivery    bool
	Address     string
	Items       []itemRow
	NoItems     bool
	Total       string
	Reference   string
}

func (c *Composer) view(o model.Order) confirmationView {
	v := confirmationView{
		Biz:       c.biz,
		Greeting:  "Hi " + orDefault(o.CustomerName, "friend") + ",",
		Reference: strings.TrimSpace(o.Reference),
		Total:     c.Money(o.TotalCents),
	}

	switch o.Fulfillment {
	case model.FulfillmentPickup:
		v.Pickup = true
		v.Fulfillment = "Pickup"
		v.Intro = "Thank you for your order! We've received your payment and will have your food ready for pickup."
	case model.FulfillmentDelivery:
		v.Delivery = true
		v.Fulfillment = "Delivery"
		v.Intro = "Thank you for your order! We've received your payment and will have your food ready for delivery."
		if o.Address != nil && !o.Address.IsZero() {
			v.Address = o.Address.String()
		}
	default:
		v.Fulfillment = model.NotSpecified
		v.Intro = "Thank you for your order! We've received your payment."
	}

	v.Details = []detailRow{
		{K: "Order Type", V: v.Fulfillment},
		{K: "Date", V: o.Schedule.DateLabel()},
		{K: "Time", V: o.Schedule.TimeLabel()},
		{K: "Phone", V: orDefault(o.CustomerPhone, "Not provided")},
	}

	for _, it := range o.Items {
		v.Items = append(v.Items, itemRow{Line: c.itemLine(it)})
	}
	v.NoItems = len(v.Items) == 0
	return v
}

func (c *Composer) itemLine(it model.LineItem) string {
	return fmt.Sprintf("%s × %d — %s", orDefault(it.Name, "Item"), it.Quantity, c.Money(it.AmountCents()))
}

func (c *Composer) text(v confirmationView) string {
	b := new(strings.Builder)
	b.WriteString("Order Confirmed!\n\n")
	b.WriteString(v.Greeting + "\n\n")
	b.WriteString(v.Intro + "\n\n")
	if v.Reference != "" {
		b.WriteString("Reference: " + v.Reference + "\n")
	}
	for _, r := range v.Details {
		b.WriteString(r.K + ": " + r.V + "\n")
	}
	switch {
	case v.Pickup:
		b.WriteString("Pickup Address: " + v.Biz.PickupAddress + "\n")
	case v.Delivery:
		if v.Address != "" {
			b.WriteString("Delivery Address: " + v.Address + "\n")
		}
		b.WriteString("Note: " + v.Biz.CourierNote + "\n")
	default:
		b.WriteString(unspecifiedNotice + "\n")
	}
	b.WriteString("\nItems Ordered\n")
	if v.NoItems {
		b.WriteString("- " + noItemsNotice + "\n")
	}
	for _, it := range v.Items {
		b.WriteString("- " + it.Line + "\n")
	}
	b.WriteString("Total Paid: " + v.Total + "\n\n")
	if v.Biz.Phone != "" {
		b.WriteString("Questions? Reply to this email or call us at " + v.Biz.Phone + "\n\n")
	}
	b.WriteString("Thanks,\n" + orDefault(v.Biz.Signature, v.Biz.Name) + "\n")
	return b.String()
}

const (
	unspecifiedNotice = "We didn't capture a pickup or delivery choice for this order. Reply to this email and we'll sort it out."
	noItemsNotice     = "Item details were not included with this payment."
)

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

var confirmationHTMLTpl = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"unspecifiedNotice": func() string { return unspecifiedNotice },
	"noItemsNotice":     func() string { return noItemsNotice },
}).Parse(`
<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width" />
    <title>Order Confirmed</title>
  </head>
  <body style="margin:0;padding:0;background:#fff8f0;font-family:Arial,sans-serif;">
    <div style="max-width:600px;margin:0 auto;background:#fff3e0;border-radius:12px;overflow:hidden;">
      <div style="background:linear-gradient(135deg,#ff6b35 0%,#ff8c42 100%);padding:30px;text-align:center;">
        {{ if .Biz.LogoURL }}<img src="{{ .Biz.LogoURL }}" alt="{{ .Biz.Name }}" style="max-width:200px;height:auto;margin-bottom:16px;" />{{ else }}<div style="color:#ffffff;font-size:26px;font-weight:700;">{{ .Biz.Name }}</div>{{ end }}
        {{ if .Biz.Tagline }}<p style="color:#fff3e0;margin:8px 0;font-size:16px;">{{ .Biz.Tagline }}</p>{{ end }}
      </div>

      <div style="padding:30px;">
        <h2 style="color:#bf360c;margin:0 0 20px;font-size:24px;">Order Confirmed!</h2>
        <p style="color:#5d4037;font-size:16px;line-height:1.6;">{{ .Greeting }}</p>
        <p style="color:#5d4037;font-size:16px;line-height:1.6;">{{ .Intro }}</p>

        <div style="background:#ffe0b2;padding:24px;border-radius:12px;margin:24px 0;border-left:6px solid #ff6b35;">
          <h3 style="color:#bf360c;margin:0 0 16px;font-size:20px;">Order Details</h3>
          {{ if .Reference }}<p style="margin:8px 0;color:#5d4037;"><strong>Reference:</strong> {{ .Reference }}</p>{{ end }}
          {{ range .Details }}
          <p style="margin:8px 0;color:#5d4037;"><strong>{{ .K }}:</strong> {{ .V }}</p>
          {{ end }}
          {{ if .Pickup }}
          <p style="margin:12px 0;color:#5d4037;"><strong>Pickup Address:</strong><br>{{ .Biz.PickupAddress }}</p>
          {{ else if .Delivery }}
          {{ if .Address }}<p style="margin:12px 0;color:#5d4037;"><strong>Delivery Address:</strong><br>{{ .Address }}</p>{{ end }}
          <p style="margin:12px 0;color:#5d4037;"><strong>Note:</strong> {{ .Biz.CourierNote }}</p>
          {{ else }}
          <p style="margin:12px 0;color:#5d4037;"><strong>Note:</strong> {{ unspecifiedNotice }}</p>
          {{ end }}
        </div>

        <div style="background:#ffe0b2;padding:24px;border-radius:12px;margin:24px 0;border-left:6px solid #ff8c42;">
          <h3 style="color:#bf360c;margin:0 0 16px;font-size:20px;">Items Ordered</h3>
          <ul style="list-style:none;padding:0;margin:0;">
            {{ if .NoItems }}<li style="padding:8px 0;color:#bf360c;">{{ noItemsNotice }}</li>{{ end }}
            {{ range .Items }}
            <li style="padding:8px 0;border-bottom:1px solid #ffe0b2;color:#bf360c;">{{ .Line }}</li>
            {{ end }}
          </ul>
          <div style="border-top:3px solid #ff6b35;padding-top:16px;margin-top:16px;">
            <p style="font-weight:bold;font-size:18px;color:#bf360c;margin:0;">Total Paid: {{ .Total }}</p>
          </div>
        </div>

        {{ if .Biz.Phone }}
        <div style="background:#ff8c42;padding:20px;border-radius:8px;margin:24px 0;text-align:center;">
          <p style="color:#ffffff;margin:0;font-size:16px;">Questions? Reply to this email or call us at <strong>{{ .Biz.Phone }}</strong></p>
        </div>
        {{ end }}

        <div style="text-align:center;margin-top:30px;">
          <p style="color:#bf360c;font-size:18px;font-weight:bold;margin:0;">Thanks,</p>
          <p style="color:#ff6b35;font-size:20px;font-weight:bold;margin:8px 0;">{{ if .Biz.Signature }}{{ .Biz.Signature }}{{ else }}{{ .Biz.Name }}{{ end }}</p>
        </div>
      </div>
    </div>
  </body>
</html>
`))
