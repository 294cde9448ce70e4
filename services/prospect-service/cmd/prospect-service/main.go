package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/campuscrm/libs/config"
	"github.com/md-rashed-zaman/campuscrm/libs/db"
	"github.com/md-rashed-zaman/campuscrm/libs/httpx"
	"github.com/md-rashed-zaman/campuscrm/libs/kafkax"
	otelx "github.com/md-rashed-zaman/campuscrm/libs/otel"
	"github.com/md-rashed-zaman/campuscrm/libs/runtime"
	"github.com/md-rashed-zaman/campuscrm/services/prospect-service/internal/adapter"
	"github.com/md-rashed-zaman/campuscrm/services/prospect-service/internal/consumer"
	"github.com/md-rashed-zaman/campuscrm/services/prospect-service/internal/handlers"
	"github.com/md-rashed-zaman/campuscrm/services/prospect-service/internal/inbox"
	"github.com/md-rashed-zaman/campuscrm/services/prospect-service/internal/projection"
	"github.com/md-rashed-zaman/campuscrm/services/prospect-service/internal/webhook"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "prospect-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	prospectRepo := projection.NewRepository(pool)
	applier := projection.NewApplier(pool, inboxRepo, prospectRepo, logger)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	if kafkaBrokers != "" {
		cons := consumer.New(logger, applier, consumer.Config{
			Brokers:     kafkaBrokers,
			GroupID:     config.String("KAFKA_GROUP_ID", "prospect-service"),
			Topic:       config.String("STUDENT_EVENTS_TOPIC", "campuscrm.students.v1"),
			RetryBudget: config.Int("CONSUMER_RETRY_BUDGET", 5),
		})
		go cons.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set, broker consumer disabled")
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	normalizer := adapter.NewNormalizer(config.String("VALIDATION_EVENT_TYPE", adapter.DefaultValidationEventType))
	pushHandler := webhook.NewHandler(normalizer, applier, config.String("PUSH_VALIDATION_KEY", ""), logger)

	// The push endpoint is internet-facing, so it gets its own rate limit.
	// Redis keeps the window shared across replicas; without Redis a
	// per-process limiter still bounds a single instance.
	pushLimit := config.Int("PUSH_RATE_LIMIT", 120)
	pushWindow := config.Duration("PUSH_RATE_WINDOW", time.Minute)
	var limited http.Handler = http.HandlerFunc(pushHandler.Events)
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		rl := httpx.NewRedisRateLimiter(rdb, pushLimit, pushWindow, "prospect:push")
		limited = rl.Middleware(logger, true)(limited)
	} else {
		limited = httpx.NewRateLimiter(pushLimit, pushWindow).Middleware()(limited)
	}
	mux.Handle("/api/v1/events", limited)

	prospectHandler := handlers.NewProspectHandler(prospectRepo, logger)
	mux.HandleFunc("/api/v1/prospects", prospectHandler.List)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "prospect")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
