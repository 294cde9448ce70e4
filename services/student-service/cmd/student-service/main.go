package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/campuscrm/libs/config"
	"github.com/md-rashed-zaman/campuscrm/libs/db"
	"github.com/md-rashed-zaman/campuscrm/libs/httpx"
	"github.com/md-rashed-zaman/campuscrm/libs/kafkax"
	"github.com/md-rashed-zaman/campuscrm/libs/outbox"
	otelx "github.com/md-rashed-zaman/campuscrm/libs/otel"
	"github.com/md-rashed-zaman/campuscrm/libs/runtime"
	"github.com/md-rashed-zaman/campuscrm/services/student-service/internal/commands"
	"github.com/md-rashed-zaman/campuscrm/services/student-service/internal/handlers"
	"github.com/md-rashed-zaman/campuscrm/services/student-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "student-service")
	port, err := config.Port("PORT", "8081")
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

	studentRepo := storage.NewStudentRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	svc := commands.NewService(pool, studentRepo, outboxRepo, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:     config.String("KAFKA_BROKERS", ""),
		Topic:       config.String("STUDENT_EVENTS_TOPIC", "campuscrm.students.v1"),
		PollEvery:   config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize:   config.Int("OUTBOX_BATCH_SIZE", 50),
		RetryBase:   config.Duration("OUTBOX_RETRY_BASE", 2*time.Second),
		RetryCap:    config.Duration("OUTBOX_RETRY_CAP", 5*time.Minute),
		RetryBudget: config.Int("OUTBOX_RETRY_BUDGET", 10),
	})
	go outboxPublisher.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	studentHandler := handlers.NewStudentHandler(svc, studentRepo, logger)
	mux.HandleFunc("/api/v1/students", studentHandler.Students)
	mux.HandleFunc("/api/v1/students/update", studentHandler.Update)
	mux.HandleFunc("/api/v1/students/delete", studentHandler.Delete)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "student")
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
