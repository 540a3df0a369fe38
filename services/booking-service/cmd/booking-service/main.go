package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/jobs"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/syncgw"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service)
	if err := run(service, logger); err != nil {
		logger.Error("booking-service exited", "err", err)
		os.Exit(1)
	}
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8083")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
	if err != nil {
		return err
	}
	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(config.String("TIMEZONE", "UTC"))
	if err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}

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
		return err
	}
	defer be.close()
	checks := be.checks

	var (
		counter notify.Counter = notify.NopCounter{}
		limiter httpx.Limiter  = httpx.NewMemoryLimiter(config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute)
	)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer rdb.Close()
		counter = notify.NewRedisCounter(rdb, config.Duration("UNREAD_CACHE_TTL", 30*time.Second))
		limiter = httpx.NewRedisLimiter(rdb, config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute, "ratelimit:"+service+":")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	notifier := notify.NewEngine(be.store, logger, notify.WithCounter(counter))
	bookings := booking.NewService(be.store, notifier, logger, booking.Config{
		Location:     loc,
		AllowSameDay: config.Bool("BOOKING_ALLOW_SAME_DAY", false),
	})
	gateway := syncgw.New(bookings, notifier, config.Duration("SYNC_POLL_INTERVAL", 3*time.Second))

	go jobs.NewWorker(bookings, logger, jobs.WorkerConfig{
		Interval: config.Duration("COMPLETION_INTERVAL", time.Minute),
	}).Run(ctx)

	if brokers := config.List("KAFKA_BROKERS", ""); len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		if be.pool != nil {
			writer := kafkax.NewWriter(brokers)
			defer writer.Close()
			go outbox.NewPublisher(be.pool, be.outboxRepo, writer, logger, outbox.PublisherConfig{
				PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
				BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
			}).Run(ctx)
		}
		go consumer.New(logger, be.inbox, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   config.String("KAFKA_MESSAGE_TOPIC", consumer.TopicChatMessageSent),
		}, consumer.ChatMessages(notifier)).Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox relay and message consumer disabled")
	}

	grpcServer := grpcx.NewServer(logger)
	health := grpcx.RegisterHealth(grpcServer, service, func(ctx context.Context) bool {
		return len(runtime.RunChecks(ctx, 2*time.Second, checks...)) == 0
	}, 5*time.Second, logger)
	go health.Run(ctx)
	go func() {
		if err := grpcx.Serve(ctx, grpcServer, ":"+grpcPort, logger); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	var jwks *auth.JWKSClient
	if url := config.String("JWKS_URL", ""); url != "" {
		jwks = auth.NewJWKSClient(url, config.Duration("JWKS_CACHE_SECONDS", 5*time.Minute))
	}
	api := httpx.Chain(handlers.New(bookings, notifier, gateway, logger).Routes(),
		httpx.RequireAuth(auth.NewVerifier(secret, jwks), logger),
		httpx.RateLimit(limiter, logger, true),
	)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/", api)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS", ""))),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 15))*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
	return nil
}
