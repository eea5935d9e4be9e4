package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketing-service/config"
	"ticketing-service/internal/api"
	"ticketing-service/internal/broker"
	"ticketing-service/internal/fallback"
	"ticketing-service/internal/lifecycle"
	"ticketing-service/internal/notify"
	"ticketing-service/internal/redisclient"
	"ticketing-service/internal/service"
	"ticketing-service/internal/store"
	"ticketing-service/internal/token"
	"ticketing-service/internal/util"
	"ticketing-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting ticketing service")

	tp, err := util.InitTracer("ticketing-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	tokens, err := token.NewService(cfg.Security.TicketTokenSecret)
	if err != nil {
		log.Fatalf("Failed to initialize token service: %v", err)
	}

	// the gate keeps working from the fallback store when Postgres is down
	db, err := store.NewStore(cfg.Database.URL, cfg.Database.Timeout)
	if err != nil {
		logger.Warn("Database unavailable, starting in degraded mode", zap.Error(err))
		db = store.Disconnected()
	} else {
		log.Println("Database connected")
		if err := db.Migrate(context.Background()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}
	defer db.Close()

	var guard service.IdempotencyGuard
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, payment confirmations run without locks", zap.Error(err))
	} else {
		defer redisClient.Close()
		guard = redisClient
		log.Println("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicTicketEvents)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	engine := lifecycle.NewEngine(tokens)
	stores := service.NewStores(db, fallback.NewStore())

	eventService := service.NewEventService(stores)
	ticketService := service.NewTicketService(stores, engine, eventPublisher)
	paymentService := service.NewPaymentService(stores, engine, eventPublisher, guard, service.PaymentConfig{
		KeySecret:     cfg.Security.PaymentKeySecret,
		WebhookSecret: cfg.Security.PaymentWebhookSecret,
		LockTTL:       cfg.Business.PaymentLockTTL,
		DedupeTTL:     cfg.Business.WebhookDedupeTTL,
	})
	checkInService := service.NewCheckInService(stores, engine, tokens, eventPublisher, cfg.Business.ConditionalCheckIn)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	dispatcher := notify.NewDispatcher(map[notify.Channel]notify.Notifier{
		notify.ChannelEmail:    notify.NewLogNotifier(notify.ChannelEmail),
		notify.ChannelSMS:      notify.NewLogNotifier(notify.ChannelSMS),
		notify.ChannelWhatsApp: notify.NewLogNotifier(notify.ChannelWhatsApp),
	})
	notifyConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicTicketEvents, cfg.Kafka.NotifyGroup)
	notificationWorker := worker.NewNotificationWorker(notifyConsumer, dispatcher)
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(eventService, ticketService, paymentService, checkInService, stores)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	notificationWorker.Stop()

	log.Println("Server exited")
}
