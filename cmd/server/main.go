package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order_notifier/internal/config"
	"order_notifier/internal/extract"
	"order_notifier/internal/httpapi"
	"order_notifier/internal/logbus"
	"order_notifier/internal/metrics"
	"order_notifier/internal/notify"
	"order_notifier/internal/pipeline"
	"order_notifier/internal/processor"
	"order_notifier/internal/signature"
	"order_notifier/internal/store/sqlite"
	"order_notifier/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	bus := logbus.New(cfg.Log.Buffer, logbus.WithSink(os.Stdout, cfg.Log.Level), logbus.WithService(cfg.Telemetry.ServiceName))
	bus.Log("info", "server starting", map[string]any{"addr": cfg.Server.Addr, "webhookPath": cfg.Server.WebhookPath})
	if cfg.Secrets.WebhookSecret == "" {
		bus.Log("error", "STRIPE_WEBHOOK_SECRET is not set; every webhook will be answered with 500", nil)
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Secrets.OTLPEndpointURL)
	if err != nil {
		log.Fatalf("setup tracing: %v", err)
	}

	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	mailer, err := newMailer(&cfg, bus)
	if err != nil {
		log.Fatalf("mail transport: %v", err)
	}
	sender, err := notify.NewSender(notify.SenderOptions{
		Mailer:      mailer,
		FromName:    cfg.Mail.FromName,
		FromAddress: cfg.Mail.FromAddress,
		Timeout:     cfg.Mail.Timeout(),
		QPS:         cfg.Mail.QPS,
		Burst:       cfg.Mail.Burst,
		DedupTTL:    cfg.Mail.DedupTTL(),
		DedupMax:    cfg.Mail.DedupMax,
		Settings:    store,
		Bus:         bus,
	})
	if err != nil {
		log.Fatalf("sender: %v", err)
	}

	composer := notify.NewComposer(notify.Business{
		Name:          cfg.Business.Name,
		Tagline:       cfg.Business.Tagline,
		PickupAddress: cfg.Business.PickupAddress,
		Phone:         cfg.Business.Phone,
		CourierNote:   cfg.Business.CourierNote,
		Signature:     cfg.Business.Signature,
		LogoURL:       cfg.Business.LogoURL,
	})

	m := metrics.New()
	opts := pipeline.Options{
		Verifier:        signature.Verifier{Secret: cfg.Secrets.WebhookSecret, Tolerance: cfg.Webhook.Tolerance()},
		ActionableKinds: cfg.Webhook.ActionableKinds,
		Extractor: extract.Extractor{
			CourierFromStaging: cfg.Business.CourierFromStaging,
			StagingAddress:     cfg.Business.StagingAddress,
		},
		Composer:     composer,
		Sender:       sender,
		Transport:    sender.Transport(),
		FetchTimeout: cfg.Processor.Budget(),
		Metrics:      m,
		Bus:          bus,
	}
	if cfg.Processor.FetchLineItems {
		fetcher, err := processor.New(processor.Options{
			BaseURL:      cfg.Processor.BaseURL,
			SecretKey:    cfg.Secrets.ProcessorKey,
			Timeout:      cfg.Processor.Timeout(),
			RetryCount:   cfg.Processor.Retry.Count,
			RetryWait:    cfg.Processor.Retry.Wait(),
			RetryMaxWait: cfg.Processor.Retry.MaxWait(),
			Bus:          bus,
		})
		if err != nil {
			bus.Log("warn", "line item retrieval disabled", map[string]any{"error": err})
		} else {
			opts.Fetcher = fetcher
		}
	}
	p, err := pipeline.New(opts)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		Cfg:      cfg,
		Bus:      bus,
		Pipeline: p,
		Store:    store,
		Composer: composer,
		Sender:   sender,
		Metrics:  m,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()
	bus.Log("info", "listening", map[string]any{"addr": cfg.Server.Addr, "transport": sender.Transport()})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		bus.Log("info", "shutdown signal received", map[string]any{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			bus.Log("error", "http server error", map[string]any{"error": err})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = server.Shutdown(shutdownCtx)
	_ = shutdownTracing(shutdownCtx)
	bus.Log("info", "server stopped", nil)
}
