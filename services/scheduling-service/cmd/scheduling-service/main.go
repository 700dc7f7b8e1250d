package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/libs/httpx"
	"github.com/md-rashed-zaman/slotkeeper/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotkeeper/libs/otel"
	"github.com/md-rashed-zaman/slotkeeper/libs/runtime"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/consumer"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/dispatch"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/inbox"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/policy"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/reminders"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/settings"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/sweep"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := settings.Load()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelCfg, err := otelx.ConfigFromEnv(cfg.Service)
	if err != nil {
		panic(err)
	}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		otelShutdown = nil
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: int32(cfg.SweepWorkers + 10)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			panic(err)
		}
		rdb = redis.NewClient(opts)
	}

	cal, err := calendar.New(cfg.Calendar)
	if err != nil {
		panic(err)
	}

	outboxRepo := outbox.NewRepository()
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{Brokers: cfg.KafkaBrokers})
	go publisher.Run(ctx)

	if len(kafkax.SplitBrokers(cfg.KafkaBrokers)) > 0 {
		clientEvents := consumer.New(logger, consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   consumer.TopicClientCreated,
		}, consumer.ClientCreatedHandler(pool, inbox.NewRepository(), logger))
		go clientEvents.Run(ctx)
	}

	store, err := newLedger(cfg, pool, rdb, outboxRepo)
	if err != nil {
		panic(err)
	}
	renderer, err := dispatch.NewRenderer(cfg.BusinessName)
	if err != nil {
		panic(err)
	}
	resolver := policy.NewResolver(storage.NewReminderPolicyRepository(pool), storage.NewClientRepository(pool), cal.Location(), logger)
	planner := reminders.NewPlanner(storage.NewAppointmentRepository(pool), resolver, store, cfg.ReminderTolerance, logger)
	dispatcher := dispatch.New(newTransports(cfg, logger), cfg.NotifyPerSec, logger)
	driver := sweep.NewDriver(planner, store, dispatcher, renderer, logger, sweep.Config{
		Interval:    cfg.SweepInterval,
		Workers:     cfg.SweepWorkers,
		TaskTimeout: cfg.TaskTimeout,
	})

	var sweeping sync.WaitGroup
	if cfg.SweepEnabled {
		sweeping.Add(1)
		go func() {
			defer sweeping.Done()
			driver.Run(ctx)
		}()
	}

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.New(booking.NewService(pool, cal, outboxRepo, logger), cal.Location(), logger).Register(mux)

	middleware := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1 << 20),
	}
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, time.Minute, cfg.Service+":rl")
		middleware = append(middleware, limiter.Middleware(logger, cfg.RateLimitOpen))
	} else {
		middleware = append(middleware, httpx.NewLocalRateLimiter(cfg.RateLimit, time.Minute).Middleware())
	}
	middleware = append(middleware, httpx.WithTimeout(15*time.Second))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(httpx.Chain(mux, middleware...), "scheduling"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	grpcSrv, health, err := startGRPC(cfg.GRPCPort, logger)
	if err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	runtime.Shutdown(logger, 30*time.Second,
		runtime.Closer{Name: "grpc", Close: func(context.Context) error {
			if grpcSrv != nil {
				health.Shutdown()
				grpcSrv.GracefulStop()
			}
			return nil
		}},
		runtime.Closer{Name: "http", Close: srv.Shutdown},
		runtime.Closer{Name: "sweep", Close: func(ctx context.Context) error {
			return waitGroup(ctx, &sweeping)
		}},
		runtime.Closer{Name: "redis", Close: func(context.Context) error {
			if rdb == nil {
				return nil
			}
			return rdb.Close()
		}},
		runtime.Closer{Name: "otel", Close: otelShutdown},
	)
	logger.Info("stopped")
}

// waitGroup waits for wg or gives up when ctx expires.
func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
