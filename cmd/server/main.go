package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/broker"
	"checkout-service/internal/invoice"
	"checkout-service/internal/notification"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"
	"checkout-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout service")

	tp, err := util.InitTracer(context.Background(), "checkout-service", cfg.Observ.OTLPEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(cfg.Database.URL); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Database migrations applied")
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicDeadLetter)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicDeadLetter))

	invoices, err := newInvoiceRenderer(cfg, redisClient)
	if err != nil {
		logger.Fatal("Failed to initialize invoice cache", zap.Error(err))
	}

	dispatcher, err := newDispatcher(cfg, invoices, db, broker.NewDeadLetterPublisher(producer))
	if err != nil {
		logger.Fatal("Failed to initialize notification dispatcher", zap.Error(err))
	}

	queue := notification.NewQueue(notification.QueueConfig{
		Workers:      cfg.Notification.Workers,
		Size:         cfg.Notification.QueueSize,
		MaxAttempts:  cfg.Notification.MaxAttempts,
		RetryInitial: cfg.Notification.RetryInitial,
		RetryMax:     cfg.Notification.RetryMax,
	}, dispatcher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	queue.Start(workerCtx)
	if resumed, err := queue.Resume(workerCtx, db); err != nil {
		logger.Error("Failed to resume pending notifications", zap.Error(err))
	} else if resumed > 0 {
		logger.Info("Resumed pending notifications", zap.Int("count", resumed))
	}

	paymentService := service.NewPaymentService(db, cfg.Payment.Currency)
	orderService := service.NewOrderService(db, db, paymentService, queue, redisClient)

	deadLetterConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicDeadLetter, cfg.Kafka.ConsumerGroup)
	deadLetterWorker := worker.NewDeadLetterWorker(deadLetterConsumer, queue, cfg.Kafka.ReplayDeadJobs)
	go func() {
		if err := deadLetterWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Dead-letter worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, paymentService, map[string]api.ReadinessCheck{
		"postgres": db.Ping,
		"redis":    redisClient.Ping,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           otelhttp.NewHandler(router, "checkout-service"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := deadLetterWorker.Stop(); err != nil {
		logger.Error("Failed to stop dead-letter worker", zap.Error(err))
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		logger.Warn("Notification queue did not drain", zap.Error(err))
	}
	workerCancel()

	logger.Info("Server exited")
}

func newInvoiceRenderer(cfg *config.Config, redisClient *redisclient.Client) (*invoice.CachedRenderer, error) {
	var cache invoice.Cache
	switch cfg.Invoice.CacheBackend {
	case "redis":
		cache = invoice.NewRedisCache(redisClient, cfg.Invoice.CacheTTL)
	case "file":
		fileCache, err := invoice.NewFileCache(cfg.Invoice.CacheDir, cfg.Invoice.CacheTTL)
		if err != nil {
			return nil, err
		}
		cache = fileCache
	default:
		return nil, fmt.Errorf("unknown invoice cache backend %q", cfg.Invoice.CacheBackend)
	}

	generator := invoice.NewGenerator(cfg.Server.StoreName, cfg.Payment.Currency)
	return invoice.NewCachedRenderer(generator, cache), nil
}

func newDispatcher(
	cfg *config.Config,
	invoices notification.InvoiceRenderer,
	tracker notification.StatusTracker,
	deadLetters notification.DeadLetterSink,
) (*notification.Dispatcher, error) {
	nc := cfg.Notification

	templates, err := notification.NewTemplates(cfg.Server.StoreName, cfg.Payment.Currency)
	if err != nil {
		return nil, err
	}

	primary, err := notification.NewSMTPTransport(notification.SMTPConfig{
		Host:     nc.SMTPHost,
		Port:     nc.SMTPPort,
		Username: nc.SMTPUsername,
		Password: nc.SMTPPassword,
		From:     nc.FromAddress,
		Timeout:  nc.SendTimeout,
	})
	if err != nil {
		return nil, err
	}

	var backup notification.Transport
	if nc.BackupURL != "" {
		backup = notification.NewHTTPTransport(nc.BackupURL, nc.BackupAPIKey, nc.FromAddress, nc.SendTimeout)
	} else {
		util.Named("notification").Warn("No backup mail provider configured")
	}

	return notification.NewDispatcher(
		notification.DispatcherConfig{
			MaxAttempts: nc.MaxAttempts,
			SendTimeout: nc.SendTimeout,
			PDFTimeout:  nc.PDFTimeout,
		},
		primary,
		backup,
		notification.NewCircuitBreaker(nc.BreakerThreshold, nc.BreakerCooldown),
		templates,
		invoices,
		tracker,
		deadLetters,
	), nil
}
