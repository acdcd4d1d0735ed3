package main

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"order_notifier/internal/config"
	"order_notifier/internal/model"
	"order_notifier/internal/notify"
)

func render(biz config.BusinessConfig, fulfillment, email string) model.NotificationMessage {
	order := notify.SampleOrder(email)
	switch model.ParseFulfillment(fulfillment) {
	case model.FulfillmentDelivery:
		order.Fulfillment = model.FulfillmentDelivery
		order.Schedule = model.Schedule{Date: "2024-06-02", Time: "6:00 PM"}
		addr := biz.StagingAddress
		if addr.IsZero() {
			addr = model.Address{Line1: "1 Market St", City: "San Francisco", Region: "CA", PostalCode: "94105"}
		}
		order.Address = &addr
	case model.FulfillmentPickup:
	default:
		order.Fulfillment = model.FulfillmentUnspecified
		order.Schedule = model.Schedule{}
	}

	return notify.NewComposer(notify.Business{
		Name:          biz.Name,
		Tagline:       biz.Tagline,
		PickupAddress: biz.PickupAddress,
		Phone:         biz.Phone,
		CourierNote:   biz.CourierNote,
		Signature:     biz.Signature,
		LogoURL:       biz.LogoURL,
	}).Compose(order)
}

// screenshot renders html in a headless browser and captures the full page.
func screenshot(ctx context.Context, html string) ([]byte, error) {
	l := launcher.New().Headless(true)
	u, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, err
	}
	defer l.Kill()

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, err
	}
	defer b.Close()

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, err
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: 680, Height: 900, DeviceScaleFactor: 1}); err != nil {
		return nil, err
	}
	if err := page.SetDocumentContent(html); err != nil {
		return nil, err
	}
	if err := page.WaitLoad(); err != nil {
		return nil, err
	}
	return page.Screenshot(true, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
}
