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

	"bakery-orders/config"
	"bakery-orders/internal/api"
	"bakery-orders/internal/auth"
	"bakery-orders/internal/broker"
	"bakery-orders/internal/redisclient"
	"bakery-orders/internal/service"
	"bakery-orders/internal/store"
	"bakery-orders/internal/util"
	"bakery-orders/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting bakery orders service")

	tp, err := util.InitTracer("bakery-orders", cfg.Observ.JaegerEndpoint)
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

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	catalogLoader := service.NewCatalogLoader(db, redisClient, cfg.Redis.CatalogTTL)
	orderService := service.NewOrderService(db, db, catalogLoader, eventPublisher)
	reconciler := service.NewPaymentReconciler(db, redisClient, eventPublisher,
		cfg.Payment.WebhookSecret, cfg.Payment.SignatureTolerance)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	receiptSender := service.NewReceiptSender(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.From)
	receiptConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	receiptWorker := worker.NewReceiptWorker(receiptConsumer, receiptSender)
	go func() {
		if err := receiptWorker.Start(workerCtx); err != nil {
			log.Printf("Receipt worker error: %v", err)
		}
	}()

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret)
	streamer := api.NewAdminStreamer(orderService, cfg.Stream.SnapshotInterval, cfg.Stream.HeartbeatInterval)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(orderService, reconciler, catalogLoader, streamer, jwtService)
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
	receiptWorker.Stop()

	log.Println("Server exited")
}
