package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/maxnotes/storefront/internal/app"
	"github.com/maxnotes/storefront/internal/cache"
	"github.com/maxnotes/storefront/internal/cart"
	"github.com/maxnotes/storefront/internal/catalog"
	"github.com/maxnotes/storefront/internal/checkout"
	"github.com/maxnotes/storefront/internal/common"
	"github.com/maxnotes/storefront/internal/config"
	"github.com/maxnotes/storefront/internal/counter"
	"github.com/maxnotes/storefront/internal/events"
	"github.com/maxnotes/storefront/internal/health"
	"github.com/maxnotes/storefront/internal/lock"
	"github.com/maxnotes/storefront/internal/notify"
	"github.com/maxnotes/storefront/internal/obs"
	"github.com/maxnotes/storefront/internal/payment"
	"github.com/maxnotes/storefront/internal/pricing"
	"github.com/maxnotes/storefront/internal/ratelimit"
	"github.com/maxnotes/storefront/internal/resilience"
	"github.com/maxnotes/storefront/internal/search"
	"github.com/maxnotes/storefront/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Str("service", "maxnotes-api").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "maxnotes")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.RegisterMetrics(nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "maxnotes-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	redisClient, err := app.NewRedis(context.Background(), cfg.RedisURL, app.RedisOptions{
		Tracing:     tracingEnabled,
		Metrics:     metricsEnabled,
		PingTimeout: 5 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	deps := app.Dependencies{Redis: redisClient, Validator: app.NewValidator()}
	if taskRedis, err := app.NewTaskRedis(cfg.RedisURL); err != nil {
		logger.Error().Err(err).Msg("task queue disabled")
	} else {
		deps.TaskRedis = taskRedis
		deps.TaskClient = asynqClient(taskRedis)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	outbound := &http.Client{
		Timeout:   20 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	var catalogSource catalog.Source = catalog.EmbeddedSource{}
	var catalogFallback catalog.Source
	if cfg.CatalogFile != "" {
		catalogSource = catalog.FileSource{Path: cfg.CatalogFile}
		catalogFallback = catalog.EmbeddedSource{}
	}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Source:   catalogSource,
		Fallback: catalogFallback,
		Cache:    cache.NewJSON(redisClient, "catalog", cfg.CatalogCacheTTL),
		Validate: deps.Validator,
		BundleID: cfg.BundleProductID,
		Logger:   logger.With().Str("component", "catalog").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	if _, err := catalogService.Snapshot(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("load catalog")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	schedule, err := pricing.LoadSchedule(cfg.PricingScheduleFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("load pricing schedule")
	}

	locker := lock.Locker{R: redisClient, Prefix: "lock:", MaxWait: 5 * time.Second}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	cartSvc := &cart.Service{R: redisClient, Catalog: catalogService, Locker: locker, TTL: cfg.CartTTL}
	cartHandler := &cart.Handler{Svc: cartSvc, Bundles: catalogService, Schedule: schedule, Currency: cfg.CurrencyCode}

	counterSvc := &counter.Service{R: redisClient, Seed: cfg.CounterSeed}
	counterHandler := counter.Handler{Svc: counterSvc}

	provider, err := newPaymentProvider(cfg, outbound, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise payment provider")
	}

	bus := &events.Bus{
		Store: events.RedisStore{R: redisClient, MaxLen: 10000},
		Notifiers: []events.Notifier{notify.EmailNotifier{
			Tasks:    taskEnqueuer(deps),
			Enabled:  cfg.NotifyEmailEnabled,
			MaxRetry: cfg.NotifyEmailMaxRetry,
		}},
	}

	checkoutSvc := &checkout.Service{
		R:          redisClient,
		Carts:      cartSvc,
		Bundles:    catalogService,
		Schedule:   schedule,
		Provider:   provider,
		Locker:     locker,
		Counter:    counterSvc,
		Events:     bus,
		Validate:   deps.Validator,
		Currency:   cfg.CurrencyCode,
		SessionTTL: cfg.CheckoutSessionTTL,
		Logger:     logger.With().Str("component", "checkout").Logger(),
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, SimulateConfirm: cfg.PayNowSimulate}
	webhookHandler := payment.Webhook{
		Providers: map[string]payment.Provider{provider.Name(): provider},
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
		Settler:   checkoutSvc,
	}

	searcher := newSearcher(cfg, outbound, catalogService, redisClient, logger)
	searchHandler := search.Handler{Searcher: searcher, Catalog: catalogService}

	checkoutLimiter, err := ratelimit.NewFixed(redisClient, "rl:checkout:")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise checkout rate limiter")
	}
	onLimiterError := func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") }
	checkoutLimit := ratelimit.Handler{
		Limiter: checkoutLimiter,
		Config:  ratelimit.PerMinute(ratelimit.ByClientIP("checkout"), cfg.RateLimitCheckoutPerMin),
		OnError: onLimiterError,
	}
	searchLimit := ratelimit.Handler{
		Limiter: ratelimit.Sliding{Client: redisClient, Prefix: "rl:search:"},
		Config:  ratelimit.PerMinute(ratelimit.ByClientIP("search"), cfg.RateLimitSearchPerMin),
		OnError: onLimiterError,
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:          cfg.SecurityHeadersEnabled,
		EnableHSTS:      cfg.IsProduction(),
		HSTSMaxAge:      31536000,
		NoStorePrefixes: []string{"/api/v1/carts", "/api/v1/checkout"},
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.HTTPBodyLimitBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", common.IdempotencyHeader},
		ExposedHeaders:   []string{"X-Search-Source", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", !cfg.IsProduction()) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      app.RedisChecker{Redis: redisClient},
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		Probes: map[string]health.Probe{
			"catalog": func(ctx context.Context) error {
				_, err := catalogService.Snapshot(ctx)
				return err
			},
		},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.ProductDetail)
		v.Get("/bundle", catalogHandler.Bundle)
		v.Get("/filters", catalogHandler.Filters)
		v.With(searchLimit.Middleware).Get("/search", searchHandler.Search)
		v.Get("/stats", counterHandler.Stats)

		v.Route("/carts", func(c chi.Router) {
			c.Get("/{id}", cartHandler.Get)
			c.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/", cartHandler.Create)
				g.Post("/{id}/items", cartHandler.AddItem)
				g.Delete("/{id}/items/{productId}", cartHandler.RemoveItem)
				g.Delete("/{id}", cartHandler.Clear)
			})
		})

		v.Route("/checkout", func(c chi.Router) {
			c.With(checkoutLimit.Middleware, idem.Middleware).Post("/", checkoutHandler.Checkout)
			c.Get("/{reference}", checkoutHandler.Status)
			c.With(idem.Middleware).Post("/{reference}/simulate-confirm", checkoutHandler.SimulateConfirm)
		})

		v.Post("/webhooks/payment/{provider}", webhookHandler.Handle)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("provider", provider.Name()).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
	}

	health.SetReady(false)
	drain := envDurationMillis("SHUTDOWN_DRAIN_MS", 0)
	if drain > 0 {
		time.Sleep(drain)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func newPaymentProvider(cfg *config.Config, outbound *http.Client, logger zerolog.Logger) (payment.Provider, error) {
	switch cfg.PaymentProvider {
	case "stripe":
		breaker := resilience.NewBreaker(resilience.BreakerConfig{Target: "stripe", MinRequests: 5, OpenFor: 30 * time.Second, Logger: &logger})
		stripe, err := payment.NewStripe(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			APIURL:        cfg.StripeAPIURL,
			HTTPClient:    resilience.HTTPClient(outbound, breaker),
			SuccessURL:    cfg.PublicBaseURL + "/checkout/success",
			CancelURL:     cfg.PublicBaseURL + "/checkout/cancel",
			Logger:        logger.With().Str("component", "stripe").Logger(),
		})
		if err != nil {
			return nil, err
		}
		return stripe, nil
	default:
		return payment.PayNow{
			UEN:          cfg.PayNowUEN,
			MerchantName: cfg.PayNowMerchantName,
			Secret:       cfg.PayNowSecret,
		}, nil
	}
}

func newSearcher(cfg *config.Config, outbound *http.Client, cat *catalog.Service, rdb *redis.Client, logger zerolog.Logger) search.Searcher {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		logger.Info().Msg("GEMINI_API_KEY not set; search falls back to keyword matching")
		return search.Disabled{}
	}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{Target: "gemini", MinRequests: 5, OpenFor: time.Minute, Logger: &logger})
	searcher, err := search.NewGemini(context.Background(), search.GeminiConfig{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		HTTPClient: outbound,
		Catalog:    cat,
		Breaker:    breaker,
		Cache:      cache.NewJSON(rdb, "search", cfg.SearchCacheTTL),
		Timeout:    8 * time.Second,
		Logger:     logger.With().Str("component", "search").Logger(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise gemini search")
		return search.Disabled{}
	}
	return searcher
}

func asynqClient(opt asynq.RedisConnOpt) *asynq.Client {
	return asynq.NewClient(opt)
}

// taskEnqueuer avoids handing a typed nil client to the email notifier.
func taskEnqueuer(deps app.Dependencies) notify.TaskEnqueuer {
	if deps.TaskClient == nil {
		return nil
	}
	return deps.TaskClient
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
