package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maxnotes/storefront/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"REDIS_URL":              "redis://localhost:6379/0",
		"PAYMENT_PROVIDER":       "paynow",
		"PAYNOW_SECRET":          "s3cret",
		"APP_ENV":                "",
		"PORT":                   "",
		"CART_TTL":               "",
		"COUNTER_SEED":           "",
		"CURRENCY_CODE":          "",
		"NOTIFY_EMAIL_MAX_RETRY": "",
		"PUBLIC_BASE_URL":        "https://maxnotes.example/",
	})
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 168*time.Hour, cfg.CartTTL)
	require.Equal(t, int64(842), cfg.CounterSeed)
	require.Equal(t, "SGD", cfg.CurrencyCode)
	require.Equal(t, 8, cfg.NotifyEmailMaxRetry)
	require.Equal(t, "https://maxnotes.example", cfg.PublicBaseURL)
	require.True(t, cfg.PayNowSimulate)
	require.False(t, cfg.IsProduction())
}

func TestLoadRequiresRedis(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"REDIS_URL": ""})
	require.EqualError(t, err, "REDIS_URL is required")
}

func TestLoadValidatesProvider(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"REDIS_URL":         "redis://localhost:6379/0",
		"PAYMENT_PROVIDER":  "stripe",
		"STRIPE_SECRET_KEY": "",
	})
	require.Error(t, err)

	_, err = config.LoadForTests(map[string]string{
		"REDIS_URL":        "redis://localhost:6379/0",
		"PAYMENT_PROVIDER": "bitcoin",
	})
	require.Error(t, err)

	cfg, err := config.LoadForTests(map[string]string{
		"REDIS_URL":               "redis://localhost:6379/0",
		"PAYMENT_PROVIDER":        "Stripe",
		"STRIPE_SECRET_KEY":       "sk_test_123",
		"APP_ENV":                 "production",
		"PAYNOW_SIMULATE_CONFIRM": "",
		"CORS_ALLOWED_ORIGINS":    "https://a.example, ,https://b.example",
		"CHECKOUT_SESSION_TTL":    "not-a-duration",
	})
	require.NoError(t, err)
	require.Equal(t, "stripe", cfg.PaymentProvider)
	require.False(t, cfg.PayNowSimulate)
	require.True(t, cfg.IsProduction())
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.Equal(t, time.Hour, cfg.CheckoutSessionTTL)
	require.Equal(t, "USD", cfg.CurrencyCode)
}

func TestLoadRejectsPayNowCurrencyMismatch(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"REDIS_URL":        "redis://localhost:6379/0",
		"PAYMENT_PROVIDER": "paynow",
		"PAYNOW_SECRET":    "s3cret",
		"CURRENCY_CODE":    "usd",
	})
	require.EqualError(t, err, "CURRENCY_CODE USD is not supported by PAYMENT_PROVIDER=paynow")

	cfg, err := config.LoadForTests(map[string]string{
		"REDIS_URL":        "redis://localhost:6379/0",
		"PAYMENT_PROVIDER": "paynow",
		"PAYNOW_SECRET":    "s3cret",
		"CURRENCY_CODE":    "sgd",
	})
	require.NoError(t, err)
	require.Equal(t, "SGD", cfg.CurrencyCode)
}
