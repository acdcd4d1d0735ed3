package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"order_notifier/internal/config"
	"order_notifier/internal/logbus"
	"order_notifier/internal/metrics"
	"order_notifier/internal/model"
	"order_notifier/internal/notify"
	"order_notifier/internal/pipeline"
	"order_notifier/internal/ws"
)

type WebhookPipeline interface {
	Handle(ctx context.Context, req pipeline.Request) pipeline.Outcome
}

type SettingsStore interface {
	GetNotifySettings(ctx context.Context) (model.NotifySettings, bool, error)
	UpsertNotifySettings(ctx context.Context, v model.NotifySettings) (model.NotifySettings, error)
	NotifySettingsHistory(ctx context.Context, limit int) ([]model.NotifySettingsChange, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Cfg      config.Config
	Bus      *logbus.Bus
	Pipeline WebhookPipeline
	// Store, Composer and Sender back the operator settings API. A nil
	// Store disables it.
	Store    SettingsStore
	Composer *notify.Composer
	Sender   pipeline.Deliverer
	Metrics  *metrics.Metrics
}

type Server struct {
	cfg      config.Config
	bus      *logbus.Bus
	pipeline WebhookPipeline
	store    SettingsStore
	composer *notify.Composer
	sender   pipeline.Deliverer
	metrics  *metrics.Metrics
	ws       *ws.Handler
}

func New(opts Options) *Server {
	return &Server{
		cfg:      opts.Cfg,
		bus:      opts.Bus,
		pipeline: opts.Pipeline,
		store:    opts.Store,
		composer: opts.Composer,
		sender:   opts.Sender,
		metrics:  opts.Metrics,
		ws:       ws.NewHandler(opts.Bus, opts.Cfg.Server.Cors.AllowOrigins, opts.Cfg.Secrets.AdminToken),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/ws", s.ws)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// Method checking happens in the handler so every verb gets the
	// documented 405 body and Allow header.
	r.Handle(s.cfg.Server.WebhookPath, s.instrument("webhook", http.HandlerFunc(s.handleWebhook)))

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(corsMiddleware(s.cfg.Server.Cors))
		api.Use(s.requireAdmin)
		api.Get("/settings/notify", s.handleGetNotifySettings)
		api.Post("/settings/notify", s.handleUpdateNotifySettings)
		api.Get("/settings/notify/history", s.handleNotifySettingsHistory)
		api.Post("/settings/notify/test", s.handleNotifyTest)
	})
	return r
}

func (s *Server) instrument(route string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return s.metrics.Instrument(route, h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	storeState := "disabled"
	if p, ok := s.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		storeState = "ok"
		if err := p.Ping(ctx); err != nil {
			storeState = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, map[string]any{
		"ok":                 status == http.StatusOK,
		"store":              storeState,
		"webhookConfigured":  strings.TrimSpace(s.cfg.Secrets.WebhookSecret) != "",
		"transport":          s.cfg.Mail.Transport,
		"lineItemRetrieval":  s.cfg.Processor.FetchLineItems && s.cfg.Secrets.ProcessorKey != "",
		"settingsApiEnabled": s.store != nil && s.cfg.Secrets.AdminToken != "",
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(s.cfg.Secrets.AdminToken)
		if token == "" || s.store == nil {
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "admin api disabled"})
			return
		}
		got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
