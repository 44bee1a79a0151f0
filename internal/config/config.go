package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	CatalogFile         string
	CatalogCacheTTL     time.Duration
	BundleProductID     string
	PricingScheduleFile string
	CartTTL             time.Duration
	CurrencyCode        string

	PaymentProvider     string
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIURL        string
	PayNowUEN           string
	PayNowMerchantName  string
	PayNowSecret        string
	PayNowSimulate      bool
	PublicBaseURL       string
	CheckoutSessionTTL  time.Duration
	WebhookReplayTTL    time.Duration
	IdempotencyTTL      time.Duration

	GeminiAPIKey   string
	GeminiModel    string
	SearchCacheTTL time.Duration

	SendGridAPIKey      string
	NotifyEmailEnabled  bool
	NotifyEmailFrom     string
	NotifyEmailName     string
	NotifyEmailMaxRetry int
	WorkerConcurrency   int

	CounterSeed int64

	RateLimitSearchPerMin   int
	RateLimitCheckoutPerMin int
	HTTPBodyLimitBytes      int64
	SecurityHeadersEnabled  bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	appEnv := valueOrDefault(k.String("APP_ENV"), "development")
	cfg := &Config{
		AppEnv:             appEnv,
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CatalogFile:         strings.TrimSpace(k.String("CATALOG_FILE")),
		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		BundleProductID:     strings.TrimSpace(k.String("BUNDLE_PRODUCT_ID")),
		PricingScheduleFile: strings.TrimSpace(k.String("PRICING_SCHEDULE_FILE")),
		CartTTL:             parseDuration(k.String("CART_TTL"), "168h"),

		PaymentProvider:     strings.ToLower(valueOrDefault(k.String("PAYMENT_PROVIDER"), "paynow")),
		CurrencyCode:        strings.ToUpper(strings.TrimSpace(k.String("CURRENCY_CODE"))),
		StripeSecretKey:     k.String("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: k.String("STRIPE_WEBHOOK_SECRET"),
		StripeAPIURL:        strings.TrimSpace(k.String("STRIPE_API_URL")),
		PayNowUEN:           valueOrDefault(k.String("PAYNOW_UEN"), "T00LL0000A"),
		PayNowMerchantName:  valueOrDefault(k.String("PAYNOW_MERCHANT_NAME"), "MAXNOTES"),
		PayNowSecret:        k.String("PAYNOW_SECRET"),
		PayNowSimulate:      parseBoolDefault(k.String("PAYNOW_SIMULATE_CONFIRM"), appEnv != "production"),
		PublicBaseURL:       strings.TrimRight(valueOrDefault(k.String("PUBLIC_BASE_URL"), "http://localhost:5173"), "/"),
		CheckoutSessionTTL:  parseDuration(k.String("CHECKOUT_SESSION_TTL"), "1h"),
		WebhookReplayTTL:    parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "48h"),
		IdempotencyTTL:      parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		GeminiAPIKey:   k.String("GEMINI_API_KEY"),
		GeminiModel:    valueOrDefault(k.String("GEMINI_MODEL"), "gemini-2.5-flash"),
		SearchCacheTTL: parseDuration(k.String("SEARCH_CACHE_TTL"), "10m"),

		SendGridAPIKey:      k.String("SENDGRID_API_KEY"),
		NotifyEmailEnabled:  parseBoolDefault(k.String("NOTIFY_EMAIL_ENABLED"), true),
		NotifyEmailFrom:     valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "no-reply@maxnotes.sg"),
		NotifyEmailName:     valueOrDefault(k.String("NOTIFY_EMAIL_NAME"), "MAXNotes"),
		NotifyEmailMaxRetry: parseInt(k.String("NOTIFY_EMAIL_MAX_RETRY"), 8),
		WorkerConcurrency:   parseInt(k.String("WORKER_CONCURRENCY"), 5),

		CounterSeed: int64(parseInt(k.String("COUNTER_SEED"), 842)),

		RateLimitSearchPerMin:   parseInt(k.String("RATE_LIMIT_SEARCH_PER_MIN"), 30),
		RateLimitCheckoutPerMin: parseInt(k.String("RATE_LIMIT_CHECKOUT_PER_MIN"), 10),
		HTTPBodyLimitBytes:      int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeadersEnabled:  parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.PaymentProvider {
	case "stripe":
		if cfg.StripeSecretKey == "" {
			return nil, errors.New("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
		cfg.CurrencyCode = valueOrDefault(cfg.CurrencyCode, "USD")
	case "paynow":
		if cfg.PayNowSecret == "" {
			return nil, errors.New("PAYNOW_SECRET is required when PAYMENT_PROVIDER=paynow")
		}
		// PayNow QR codes always settle in SGD.
		cfg.CurrencyCode = valueOrDefault(cfg.CurrencyCode, "SGD")
		if cfg.CurrencyCode != "SGD" {
			return nil, fmt.Errorf("CURRENCY_CODE %s is not supported by PAYMENT_PROVIDER=paynow", cfg.CurrencyCode)
		}
	default:
		return nil, fmt.Errorf("unsupported PAYMENT_PROVIDER %q", cfg.PaymentProvider)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
