package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"order_notifier/internal/model"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Processor ProcessorConfig `yaml:"processor"`
	Mail      MailConfig      `yaml:"mail"`
	Business  BusinessConfig  `yaml:"business"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`

	Secrets Secrets `yaml:"-"`
}

// Secrets only ever come from the environment.
type Secrets struct {
	WebhookSecret   string `env:"STRIPE_WEBHOOK_SECRET"`
	ProcessorKey    string `env:"STRIPE_SECRET_KEY"`
	ResendAPIKey    string `env:"RESEND_API_KEY"`
	SMTPPassword    string `env:"SMTP_PASSWORD"`
	AdminToken      string `env:"ADMIN_TOKEN"`
	OTLPEndpointURL string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

type ServerConfig struct {
	Addr         string     `yaml:"addr"`
	WebhookPath  string     `yaml:"webhookPath"`
	MaxBodyBytes int64      `yaml:"maxBodyBytes"`
	Cors         CorsConfig `yaml:"cors"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type WebhookConfig struct {
	ToleranceSec    int      `yaml:"toleranceSec"`
	ActionableKinds []string `yaml:"actionableKinds"`
}

func (c WebhookConfig) Tolerance() time.Duration {
	if c.ToleranceSec <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.ToleranceSec) * time.Second
}

type ProcessorConfig struct {
	BaseURL        string            `yaml:"baseURL"`
	TimeoutMs      int               `yaml:"timeoutMs"`
	BudgetMs       int               `yaml:"budgetMs"`
	FetchLineItems bool              `yaml:"fetchLineItems"`
	Retry          ProcessorRetryCfg `yaml:"retry"`
}

// Budget caps one line-item retrieval including its retries.
func (c ProcessorConfig) Budget() time.Duration {
	if c.BudgetMs <= 0 {
		return 8 * time.Second
	}
	return time.Duration(c.BudgetMs) * time.Millisecond
}

type ProcessorRetryCfg struct {
	Count     int `yaml:"count"`
	WaitMs    int `yaml:"waitMs"`
	MaxWaitMs int `yaml:"maxWaitMs"`
}

func (c ProcessorConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c ProcessorRetryCfg) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

func (c ProcessorRetryCfg) MaxWait() time.Duration {
	if c.MaxWaitMs <= 0 {
		return 1200 * time.Millisecond
	}
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

const (
	TransportSMTP   = "smtp"
	TransportResend = "resend"
	TransportLog    = "log"
)

type MailConfig struct {
	Transport   string       `yaml:"transport"`
	FromName    string       `yaml:"fromName"`
	FromAddress string       `yaml:"fromAddress"`
	TimeoutMs   int          `yaml:"timeoutMs"`
	QPS         float64      `yaml:"qps"`
	Burst       int          `yaml:"burst"`
	DedupTTLSec int          `yaml:"dedupTTLSec"`
	DedupMax    int          `yaml:"dedupMax"`
	SMTP        SMTPConfig   `yaml:"smtp"`
	Resend      ResendConfig `yaml:"resend"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	SSL      bool   `yaml:"ssl"`
}

type ResendConfig struct {
	BaseURL string `yaml:"baseURL"`
}

func (c MailConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c MailConfig) DedupTTL() time.Duration {
	if c.DedupTTLSec <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.DedupTTLSec) * time.Second
}

type BusinessConfig struct {
	Name          string `yaml:"name"`
	Tagline       string `yaml:"tagline"`
	PickupAddress string `yaml:"pickupAddress"`
	Phone         string `yaml:"phone"`
	CourierNote   string `yaml:"courierNote"`
	Signature     string `yaml:"signature"`
	LogoURL       string `yaml:"logoURL"`
	// CourierFromStaging makes every delivery order use StagingAddress
	// instead of whatever shipping fields the payload carries.
	CourierFromStaging bool          `yaml:"courierFromStaging"`
	StagingAddress     model.Address `yaml:"stagingAddress"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
}

type TelemetryConfig struct {
	ServiceName string `yaml:"serviceName"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Buffer int    `yaml:"buffer"`
}

func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := env.Parse(&cfg.Secrets); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Server.WebhookPath == "" {
		c.Server.WebhookPath = "/api/webhook"
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}
	if len(c.Webhook.ActionableKinds) == 0 {
		c.Webhook.ActionableKinds = []string{model.KindCheckoutSessionCompleted}
	}
	if c.Processor.BaseURL == "" {
		c.Processor.BaseURL = "https://api.stripe.com"
	}
	if c.Processor.Retry.Count < 0 {
		c.Processor.Retry.Count = 0
	}
	if c.Mail.Transport == "" {
		c.Mail.Transport = TransportResend
	}
	c.Mail.Transport = strings.ToLower(strings.TrimSpace(c.Mail.Transport))
	if c.Mail.FromAddress == "" {
		c.Mail.FromAddress = "onboarding@resend.dev"
	}
	if c.Mail.QPS <= 0 {
		c.Mail.QPS = 2
	}
	if c.Mail.Burst <= 0 {
		c.Mail.Burst = 5
	}
	if c.Mail.DedupMax <= 0 {
		c.Mail.DedupMax = 5000
	}
	if c.Mail.SMTP.Port <= 0 {
		c.Mail.SMTP.Port = 465
		c.Mail.SMTP.SSL = true
	}
	if c.Mail.Resend.BaseURL == "" {
		c.Mail.Resend.BaseURL = "https://api.resend.com"
	}
	if c.Business.Name == "" {
		c.Business.Name = "Ranch Lab"
	}
	if c.Mail.FromName == "" {
		c.Mail.FromName = c.Business.Name
	}
	if c.Business.Tagline == "" {
		c.Business.Tagline = "Fire-inspired cooking crafted from my travels"
	}
	if c.Business.PickupAddress == "" {
		c.Business.PickupAddress = "964 Rose Ave, Piedmont, CA 94611"
	}
	if c.Business.Phone == "" {
		c.Business.Phone = "(310) 666-0797"
	}
	if c.Business.CourierNote == "" {
		c.Business.CourierNote = "Your order will be ready for Uber pickup at the scheduled time. Book your courier for that slot."
	}
	if c.Business.Signature == "" {
		c.Business.Signature = "Milos & the Ranch Lab team"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/order_notifier.db"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "order-notifier"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Buffer <= 0 {
		c.Log.Buffer = 200
	}
}

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if !strings.HasPrefix(c.Server.WebhookPath, "/") {
		return errors.New("server.webhookPath must start with /")
	}
	switch c.Mail.Transport {
	case TransportSMTP:
		if strings.TrimSpace(c.Mail.SMTP.Host) == "" {
			return errors.New("mail.smtp.host is required for smtp transport")
		}
	case TransportResend, TransportLog:
	default:
		return fmt.Errorf("mail.transport %q is not supported", c.Mail.Transport)
	}
	if _, err := mail.ParseAddress(c.Mail.FromAddress); err != nil {
		return fmt.Errorf("mail.fromAddress: %w", err)
	}
	return nil
}
