package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/email"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/reminder"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/schedule"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadFile(config.String("CONFIG_FILE", "")); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "clinic-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	be, err := openBackend(ctx, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		panic(err)
	}
	defer be.close()
	readyChecks := be.ready

	var rdb *redis.Client
	if raw := strings.TrimSpace(config.String("REDIS_URL", "")); raw != "" {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			panic(err)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	if brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")); len(brokers) > 0 {
		writer := outbox.NewKafkaWriter(brokers)
		defer func() { _ = writer.Close() }()
		publisher := outbox.NewPublisher(be.outbox, writer, logger, outbox.PublisherConfig{
			PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set; domain events stay in the outbox")
	}

	resolver := availability.NewResolver(be.windows, be.bookings, availability.Config{
		Stride:        time.Duration(config.Int("SLOT_STRIDE_MINUTES", 30)) * time.Minute,
		HidePastSlots: config.Bool("SLOTS_HIDE_PAST", false),
	})
	bookingLedger := ledger.New(be.bookings, logger, ledger.Config{
		RequireWindow: config.Bool("BOOKING_REQUIRE_WINDOW", false),
	})

	if config.Bool("REMINDER_ENABLED", true) {
		scanner := reminder.NewScanner(be.bookings, newMarker(rdb), newSender(logger), logger, reminder.Config{
			Interval:  config.Duration("REMINDER_SCAN_INTERVAL", 30*time.Minute),
			Lookahead: config.Duration("REMINDER_LOOKAHEAD", 5*time.Hour),
			MarkerTTL: config.Duration("REMINDER_MARKER_TTL", 6*time.Hour),
		})
		go scanner.Run(ctx)
	}

	verifier, err := newVerifier()
	if err != nil {
		panic(err)
	}
	h := handlers.New(handlers.Options{
		Resolver:               resolver,
		Ledger:                 bookingLedger,
		Schedule:               schedule.NewService(be.windows, logger),
		Directory:              be.directory,
		Verifier:               verifier,
		Logger:                 logger,
		StripeWebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookTolerance: config.Duration("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 5*time.Minute),
	})

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	h.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
		rateLimiter(rdb, logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "clinic")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func newVerifier() (*auth.Verifier, error) {
	if url := config.String("AUTH_JWKS_URL", ""); url != "" {
		jwks := auth.NewJWKSClient(url, config.Duration("AUTH_JWKS_TTL", 5*time.Minute))
		return auth.NewJWKSVerifier(jwks, config.String("AUTH_ISSUER", "")), nil
	}
	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	return auth.NewHS256Verifier(secret), nil
}

func newMarker(rdb *redis.Client) reminder.Marker {
	if rdb == nil {
		return reminder.NewMemoryMarker()
	}
	return reminder.NewRedisMarker(rdb, config.String("REMINDER_MARKER_PREFIX", ""))
}

func newSender(logger *slog.Logger) email.Sender {
	host := config.String("SMTP_HOST", "")
	if host == "" {
		logger.Warn("SMTP_HOST not set; reminders are logged instead of sent")
		return email.LogSender{Log: logger.Info}
	}
	return email.NewSMTPSender(host, config.String("SMTP_PORT", "1025"), config.String("SMTP_FROM", ""))
}

func rateLimiter(rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	failOpen := config.Bool("RATE_LIMIT_FAIL_OPEN", true)
	if rdb != nil {
		perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
		logger.Info("rate limiting enabled (redis)", "per_minute", perMinute)
		rl := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		return httpx.RateLimit(rl, logger, failOpen)
	}
	rps := config.Float("RATE_LIMIT_RPS", 10)
	burst := config.Int("RATE_LIMIT_BURST", 20)
	logger.Info("rate limiting enabled (in-memory)", "rps", rps, "burst", burst)
	return httpx.RateLimit(httpx.NewRateLimiter(rps, burst), logger, failOpen)
}
