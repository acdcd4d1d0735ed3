// Package processor talks to the payment processor's REST API. The only call
// made is retrieving the line items of a completed checkout session when the
// event payload did not carry them.
package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"order_notifier/internal/logbus"
	"order_notifier/internal/model"
)

const maxPages = 10

type Options struct {
	BaseURL      string
	SecretKey    string
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	Bus          *logbus.Bus
}

type Client struct {
	client *resty.Client
	bus    *logbus.Bus
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SecretKey) == "" {
		return nil, errors.New("processor secret key is required")
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("processor base url is required")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetAuthToken(strings.TrimSpace(opts.SecretKey)).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			if r == nil {
				return false
			}
			return r.StatusCode() >= http.StatusInternalServerError || r.StatusCode() == http.StatusTooManyRequests
		})

	c := &Client{client: client, bus: opts.Bus}
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		c.bus.Log("debug", "processor request", map[string]any{
			"method": req.Method,
			"url":    req.URL,
		})
		return nil
	})
	return c, nil
}

type lineItemList struct {
	Data    []lineItem `json:"data"`
	HasMore bool       `json:"has_more"`
}

type lineItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	AmountTotal int64  `json:"amount_total"`
	Price       *struct {
		UnitAmount *int64 `json:"unit_amount"`
		Nickname   string `json:"nickname"`
		Product    any    `json:"product"`
	} `json:"price"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ListLineItems returns every line item of a checkout session, following
// pagination.
func (c *Client) ListLineItems(ctx context.Context, sessionID string) ([]model.LineItem, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	var (
		out    []model.LineItem
		cursor string
	)
	for page := 0; page < maxPages; page++ {
		var list lineItemList
		var apiErr apiError
		req := c.client.R().
			SetContext(ctx).
			SetQueryParam("limit", "100").
			SetQueryParam("expand[]", "data.price.product").
			SetResult(&list).
			SetError(&apiErr)
		if cursor != "" {
			req.SetQueryParam("starting_after", cursor)
		}
		resp, err := req.Get("/v1/checkout/sessions/" + url.PathEscape(sessionID) + "/line_items")
		if err != nil {
			return nil, fmt.Errorf("list line items: %w", err)
		}
		if resp.IsError() {
			if msg := apiErr.Error.Message; msg != "" {
				return nil, fmt.Errorf("list line items: http %d: %s", resp.StatusCode(), msg)
			}
			return nil, fmt.Errorf("list line items: http %d", resp.StatusCode())
		}

		for _, li := range list.Data {
			out = append(out, li.toModel())
		}
		if !list.HasMore || len(list.Data) == 0 {
			break
		}
		cursor = list.Data[len(list.Data)-1].ID
	}
	return out, nil
}

func (li lineItem) toModel() model.LineItem {
	qty := li.Quantity
	if qty < 1 {
		qty = 1
	}
	unit := li.AmountTotal / qty
	name := strings.TrimSpace(li.Description)
	if li.Price != nil {
		if li.Price.UnitAmount != nil {
			unit = *li.Price.UnitAmount
		}
		if name == "" {
			if p, ok := li.Price.Product.(map[string]any); ok {
				name, _ = p["name"].(string)
			}
		}
		if name == "" {
			name = li.Price.Nickname
		}
	}
	if unit < 0 {
		unit = 0
	}
	return model.LineItem{Name: strings.TrimSpace(name), Quantity: qty, UnitPriceCents: unit}
}
